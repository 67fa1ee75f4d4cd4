package vm

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Value: runtime values for Quill scripts
// ---------------------------------------------------------------------------

// Kind identifies the runtime type of a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindString
	KindFunction
	KindBuiltin
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindFunction:
		return "function"
	case KindBuiltin:
		return "builtin"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is a tagged runtime value. The zero value is nil.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	fn   *Closure
	bi   *Builtin
}

// Nil is the nil value.
var Nil = Value{kind: KindNil}

// True and False are the boolean values.
var (
	True  = Value{kind: KindBool, b: true}
	False = Value{kind: KindBool, b: false}
)

// Number creates a number value.
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// Str creates a string value.
func Str(s string) Value {
	return Value{kind: KindString, str: s}
}

// Bool creates a boolean value.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Function creates a function value from a closure.
func Function(cl *Closure) Value {
	return Value{kind: KindFunction, fn: cl}
}

// BuiltinValue creates a value wrapping a builtin function.
func BuiltinValue(b *Builtin) Value {
	return Value{kind: KindBuiltin, bi: b}
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether the value is nil.
func (v Value) IsNil() bool { return v.kind == KindNil }

// IsBool reports whether the value is a boolean.
func (v Value) IsBool() bool { return v.kind == KindBool }

// IsNumber reports whether the value is a number.
func (v Value) IsNumber() bool { return v.kind == KindNumber }

// IsString reports whether the value is a string.
func (v Value) IsString() bool { return v.kind == KindString }

// IsFunction reports whether the value is a function.
func (v Value) IsFunction() bool { return v.kind == KindFunction }

// IsBuiltin reports whether the value is a builtin function.
func (v Value) IsBuiltin() bool { return v.kind == KindBuiltin }

// Number returns the numeric payload. Valid only when IsNumber.
func (v Value) Number() float64 { return v.num }

// Bool returns the boolean payload. Valid only when IsBool.
func (v Value) Bool() bool { return v.b }

// String returns the string payload when the value is a string, otherwise
// a display representation.
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindString:
		return v.str
	case KindFunction:
		if v.fn != nil && v.fn.Proto != nil {
			return "<function " + v.fn.Proto.Name + ">"
		}
		return "<function>"
	case KindBuiltin:
		if v.bi != nil {
			return "<builtin " + v.bi.Name + ">"
		}
		return "<builtin>"
	default:
		return "<unknown>"
	}
}

// Closure returns the function payload. Valid only when IsFunction.
func (v Value) Closure() *Closure { return v.fn }

// Builtin returns the builtin payload. Valid only when IsBuiltin.
func (v Value) Builtin() *Builtin { return v.bi }

// Truthy reports whether the value counts as true in a condition.
// nil, false, the number 0 (including NaN), and the empty string are
// falsy; everything else is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		return v.num != 0 && v.num == v.num
	case KindString:
		return v.str != ""
	default:
		return true
	}
}

// Equal reports value equality. Functions compare by closure identity.
func (v Value) Equal(w Value) bool {
	if v.kind != w.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.b == w.b
	case KindNumber:
		return v.num == w.num
	case KindString:
		return v.str == w.str
	case KindFunction:
		return v.fn == w.fn
	case KindBuiltin:
		return v.bi == w.bi
	default:
		return false
	}
}
