package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembler
// ---------------------------------------------------------------------------

// Disassemble renders a code object's bytecode as text, one instruction
// per line, for debugging and golden tests.
func Disassemble(c *Code) string {
	var b strings.Builder
	bc := c.Bytecode
	ip := 0
	for ip < len(bc) {
		op := Opcode(bc[ip])
		info := op.Info()
		fmt.Fprintf(&b, "%04d %s", ip, info.Name)

		switch info.OperandBytes {
		case 1:
			fmt.Fprintf(&b, " %d", bc[ip+1])
		case 2:
			operand := int(bc[ip+1]) | int(bc[ip+2])<<8
			switch op {
			case OpJump, OpJumpFalse:
				offset := int(int16(uint16(operand)))
				fmt.Fprintf(&b, " %+d (-> %04d)", offset, ip+3+offset)
			case OpPushLiteral, OpPushGlobal, OpStoreGlobal:
				fmt.Fprintf(&b, " %d", operand)
				if operand < len(c.Literals) {
					fmt.Fprintf(&b, " ; %s", c.Literals[operand].String())
				}
			default:
				fmt.Fprintf(&b, " %d", operand)
			}
		}
		b.WriteByte('\n')
		ip += 1 + info.OperandBytes
	}
	return b.String()
}
