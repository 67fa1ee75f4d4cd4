package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Interpreter: non-recursive bytecode execution
// ---------------------------------------------------------------------------

// Call invokes a callable value on this fiber and returns its result.
// Builtins may use it to call back into script code; doing so nests a run
// loop above the native activation marker already on the stack.
func (f *Fiber) Call(callee Value, args []Value) (Value, error) {
	switch {
	case callee.IsFunction():
		base := f.fp + 1
		f.pushFrame(callee.Closure(), args)
		return f.run(base)
	case callee.IsBuiltin():
		return f.callBuiltin(callee.Builtin(), args)
	default:
		return Nil, fmt.Errorf("value of type %s is not callable", callee.Kind())
	}
}

// callBuiltin runs a builtin under a native activation marker.
func (f *Fiber) callBuiltin(b *Builtin, args []Value) (Value, error) {
	f.pushNativeFrame(b.Name)
	result, err := b.Fn(f, args)
	f.popFrame()
	return result, err
}

// run executes frames from index base upward and returns when the frame at
// base has returned. Frame state is re-read every iteration: a parked fiber
// may have had its stack truncated or its current frame restarted, so no
// register may be cached across a safepoint.
func (f *Fiber) run(base int) (Value, error) {
	for {
		if f.fp < base {
			return f.pop(), nil
		}
		fr := f.frames[f.fp]
		code := fr.Code
		bc := code.Bytecode

		if fr.IP >= len(bc) {
			// Fell off the end of the body: implicit nil return.
			f.sp = fr.spBase
			f.popFrame()
			f.push(Nil)
			continue
		}

		op := Opcode(bc[fr.IP])
		switch op {
		case OpNOP:
			fr.IP++

		case OpPOP:
			f.pop()
			fr.IP++

		case OpDUP:
			v := f.stack[f.sp-1]
			f.push(v)
			fr.IP++

		case OpPushNil:
			f.push(Nil)
			fr.IP++

		case OpPushTrue:
			f.push(True)
			fr.IP++

		case OpPushFalse:
			f.push(False)
			fr.IP++

		case OpPushLiteral:
			idx := int(bc[fr.IP+1]) | int(bc[fr.IP+2])<<8
			f.push(code.Literals[idx])
			fr.IP += 3

		case OpPushLocal:
			f.push(fr.Locals[bc[fr.IP+1]])
			fr.IP += 2

		case OpStoreLocal:
			fr.Locals[bc[fr.IP+1]] = f.pop()
			fr.IP += 2

		case OpPushCell:
			f.push(fr.Cells[bc[fr.IP+1]].V)
			fr.IP += 2

		case OpStoreCell:
			fr.Cells[bc[fr.IP+1]].V = f.pop()
			fr.IP += 2

		case OpPushFree:
			f.push(fr.Closure.Free[bc[fr.IP+1]].V)
			fr.IP += 2

		case OpStoreFree:
			fr.Closure.Free[bc[fr.IP+1]].V = f.pop()
			fr.IP += 2

		case OpPushGlobal:
			idx := int(bc[fr.IP+1]) | int(bc[fr.IP+2])<<8
			name := code.Literals[idx].String()
			v, ok := f.vm.Global(name)
			if !ok {
				return Nil, f.runtimeError(fr, "undefined global %q", name)
			}
			f.push(v)
			fr.IP += 3

		case OpStoreGlobal:
			idx := int(bc[fr.IP+1]) | int(bc[fr.IP+2])<<8
			name := code.Literals[idx].String()
			f.vm.SetGlobal(name, f.pop())
			fr.IP += 3

		case OpAdd, OpSub, OpMul, OpDiv, OpMod,
			OpEQ, OpNE, OpLT, OpGT, OpLE, OpGE:
			if err := f.binaryOp(fr, op); err != nil {
				return Nil, err
			}
			fr.IP++

		case OpNeg:
			v := f.pop()
			if !v.IsNumber() {
				return Nil, f.runtimeError(fr, "cannot negate %s", v.Kind())
			}
			f.push(Number(-v.Number()))
			fr.IP++

		case OpNot:
			f.push(Bool(!f.pop().Truthy()))
			fr.IP++

		case OpClosure:
			nested := int(bc[fr.IP+1])
			proto := code.Nested[nested]
			spec := code.Captures[nested]
			free := make([]*Cell, len(spec))
			for i, cap := range spec {
				if cap.Source == CaptureCell {
					free[i] = fr.Cells[cap.Index]
				} else {
					free[i] = fr.Closure.Free[cap.Index]
				}
			}
			f.push(Function(&Closure{Proto: proto, Free: free}))
			fr.IP += 2

		case OpCall:
			argc := int(bc[fr.IP+1])
			fr.IP += 2
			callee := f.stack[f.sp-argc-1]
			args := make([]Value, argc)
			copy(args, f.stack[f.sp-argc:f.sp])
			f.sp -= argc + 1

			if f.checkSafepoint() {
				// The stack was rewritten under us; the pending call is
				// abandoned and the restarted frame re-executes it.
				continue
			}
			switch {
			case callee.IsFunction():
				f.pushFrame(callee.Closure(), args)
			case callee.IsBuiltin():
				result, err := f.callBuiltin(callee.Builtin(), args)
				if err != nil {
					return Nil, err
				}
				f.push(result)
			default:
				return Nil, f.runtimeError(fr, "value of type %s is not callable", callee.Kind())
			}
			continue

		case OpJump:
			offset := int(int16(uint16(bc[fr.IP+1]) | uint16(bc[fr.IP+2])<<8))
			fr.IP += 3 + offset
			if offset < 0 {
				f.checkSafepoint()
				continue
			}

		case OpJumpFalse:
			offset := int(int16(uint16(bc[fr.IP+1]) | uint16(bc[fr.IP+2])<<8))
			if !f.pop().Truthy() {
				fr.IP += 3 + offset
			} else {
				fr.IP += 3
			}

		case OpReturn:
			ret := f.pop()
			f.sp = fr.spBase
			f.popFrame()
			f.push(ret)
			f.checkSafepoint()
			continue

		case OpReturnNil:
			f.sp = fr.spBase
			f.popFrame()
			f.push(Nil)
			f.checkSafepoint()
			continue

		default:
			return Nil, f.runtimeError(fr, "unknown opcode 0x%02X", byte(op))
		}
	}
}

// binaryOp pops two operands and pushes the result of op.
func (f *Fiber) binaryOp(fr *Frame, op Opcode) error {
	b := f.pop()
	a := f.pop()

	switch op {
	case OpEQ:
		f.push(Bool(a.Equal(b)))
		return nil
	case OpNE:
		f.push(Bool(!a.Equal(b)))
		return nil
	}

	if op == OpAdd && a.IsString() && b.IsString() {
		f.push(Str(a.String() + b.String()))
		return nil
	}

	if !a.IsNumber() || !b.IsNumber() {
		return f.runtimeError(fr, "operands for %s must be numbers, got %s and %s",
			op, a.Kind(), b.Kind())
	}
	x, y := a.Number(), b.Number()

	switch op {
	case OpAdd:
		f.push(Number(x + y))
	case OpSub:
		f.push(Number(x - y))
	case OpMul:
		f.push(Number(x * y))
	case OpDiv:
		if y == 0 {
			return f.runtimeError(fr, "division by zero")
		}
		f.push(Number(x / y))
	case OpMod:
		f.push(Number(math.Mod(x, y)))
	case OpLT:
		f.push(Bool(x < y))
	case OpGT:
		f.push(Bool(x > y))
	case OpLE:
		f.push(Bool(x <= y))
	case OpGE:
		f.push(Bool(x >= y))
	}
	return nil
}

// runtimeError builds an error annotated with the current source position.
func (f *Fiber) runtimeError(fr *Frame, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	name := fr.Code.Name
	if name == "" {
		name = "<script>"
	}
	line := fr.Code.Line(fr.IP)
	if line > 0 {
		return fmt.Errorf("%s:%d: %s", name, line, msg)
	}
	return fmt.Errorf("%s: %s", name, msg)
}
