package vm

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack operations
const (
	OpNOP Opcode = 0x00 // no operation
	OpPOP Opcode = 0x01 // discard top of stack
	OpDUP Opcode = 0x02 // duplicate top of stack
)

// Push constants
const (
	OpPushNil     Opcode = 0x10 // push nil
	OpPushTrue    Opcode = 0x11 // push true
	OpPushFalse   Opcode = 0x12 // push false
	OpPushLiteral Opcode = 0x13 // push literal from constant pool (16-bit index)
)

// Variable operations
const (
	OpPushLocal   Opcode = 0x20 // push local/parameter slot (8-bit index)
	OpStoreLocal  Opcode = 0x21 // store into local slot (8-bit index)
	OpPushCell    Opcode = 0x22 // push from cell array (8-bit index)
	OpStoreCell   Opcode = 0x23 // store into cell array (8-bit index)
	OpPushFree    Opcode = 0x24 // push from closure free array (8-bit index)
	OpStoreFree   Opcode = 0x25 // store into closure free array (8-bit index)
	OpPushGlobal  Opcode = 0x26 // push global by name literal (16-bit index)
	OpStoreGlobal Opcode = 0x27 // store into global by name literal (16-bit index)
)

// Arithmetic and comparison (pop two, push one)
const (
	OpAdd Opcode = 0x30
	OpSub Opcode = 0x31
	OpMul Opcode = 0x32
	OpDiv Opcode = 0x33
	OpMod Opcode = 0x34
	OpEQ  Opcode = 0x38
	OpNE  Opcode = 0x39
	OpLT  Opcode = 0x3A
	OpGT  Opcode = 0x3B
	OpLE  Opcode = 0x3C
	OpGE  Opcode = 0x3D
)

// Unary operations
const (
	OpNeg Opcode = 0x40 // arithmetic negate
	OpNot Opcode = 0x41 // logical not
)

// Calls and closures
const (
	OpCall    Opcode = 0x50 // call TOS-argc..TOS: callee under args (8-bit argc)
	OpClosure Opcode = 0x51 // instantiate nested prototype (8-bit nested index)
)

// Control flow
const (
	OpJump      Opcode = 0x60 // unconditional jump (16-bit signed offset)
	OpJumpFalse Opcode = 0x61 // pop, jump if falsy (16-bit signed offset)
)

// Returns
const (
	OpReturn    Opcode = 0x70 // return top of stack
	OpReturnNil Opcode = 0x71 // return nil (implicit fall-off)
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string
	OperandBytes int
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP: {"NOP", 0},
	OpPOP: {"POP", 0},
	OpDUP: {"DUP", 0},

	OpPushNil:     {"PUSH_NIL", 0},
	OpPushTrue:    {"PUSH_TRUE", 0},
	OpPushFalse:   {"PUSH_FALSE", 0},
	OpPushLiteral: {"PUSH_LITERAL", 2},

	OpPushLocal:   {"PUSH_LOCAL", 1},
	OpStoreLocal:  {"STORE_LOCAL", 1},
	OpPushCell:    {"PUSH_CELL", 1},
	OpStoreCell:   {"STORE_CELL", 1},
	OpPushFree:    {"PUSH_FREE", 1},
	OpStoreFree:   {"STORE_FREE", 1},
	OpPushGlobal:  {"PUSH_GLOBAL", 2},
	OpStoreGlobal: {"STORE_GLOBAL", 2},

	OpAdd: {"ADD", 0},
	OpSub: {"SUB", 0},
	OpMul: {"MUL", 0},
	OpDiv: {"DIV", 0},
	OpMod: {"MOD", 0},
	OpEQ:  {"EQ", 0},
	OpNE:  {"NE", 0},
	OpLT:  {"LT", 0},
	OpGT:  {"GT", 0},
	OpLE:  {"LE", 0},
	OpGE:  {"GE", 0},

	OpNeg: {"NEG", 0},
	OpNot: {"NOT", 0},

	OpCall:    {"CALL", 1},
	OpClosure: {"CLOSURE", 1},

	OpJump:      {"JUMP", 2},
	OpJumpFalse: {"JUMP_FALSE", 2},

	OpReturn:    {"RETURN", 0},
	OpReturnNil: {"RETURN_NIL", 0},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// String implements fmt.Stringer.
func (op Opcode) String() string {
	return op.Info().Name
}

// ---------------------------------------------------------------------------
// BytecodeBuilder: helper for constructing bytecode
// ---------------------------------------------------------------------------

// BytecodeBuilder helps construct bytecode sequences.
type BytecodeBuilder struct {
	bytes []byte
}

// NewBytecodeBuilder creates a new bytecode builder.
func NewBytecodeBuilder() *BytecodeBuilder {
	return &BytecodeBuilder{bytes: make([]byte, 0, 64)}
}

// Bytes returns the constructed bytecode.
func (b *BytecodeBuilder) Bytes() []byte { return b.bytes }

// Len returns the current length.
func (b *BytecodeBuilder) Len() int { return len(b.bytes) }

// Emit appends an opcode with no operands.
func (b *BytecodeBuilder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitByte appends an opcode with a single byte operand.
func (b *BytecodeBuilder) EmitByte(op Opcode, operand byte) {
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitUint16 appends an opcode with a 16-bit operand (little-endian).
func (b *BytecodeBuilder) EmitUint16(op Opcode, operand uint16) {
	b.bytes = append(b.bytes, byte(op), byte(operand), byte(operand>>8))
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label represents a forward jump target in bytecode under construction.
type Label struct {
	resolved bool
	position int
	refs     []int
}

// NewLabel creates an unresolved label.
func (b *BytecodeBuilder) NewLabel() *Label {
	return &Label{refs: make([]int, 0, 2)}
}

// EmitJump appends a jump instruction referencing a label.
func (b *BytecodeBuilder) EmitJump(op Opcode, label *Label) {
	b.bytes = append(b.bytes, byte(op))
	if label.resolved {
		offset := label.position - (len(b.bytes) + 2)
		b.bytes = append(b.bytes, byte(offset), byte(offset>>8))
		return
	}
	label.refs = append(label.refs, len(b.bytes))
	b.bytes = append(b.bytes, 0, 0)
}

// Mark resolves a label to the current position, patching forward refs.
func (b *BytecodeBuilder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.bytes)

	for _, ref := range label.refs {
		offset := label.position - (ref + 2)
		b.bytes[ref] = byte(offset)
		b.bytes[ref+1] = byte(offset >> 8)
	}
	label.refs = nil
}
