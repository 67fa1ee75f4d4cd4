package vm

import (
	"strings"
	"testing"
)

func TestDisassemble(t *testing.T) {
	code := makeCode("demo", 1, []Value{Number(1), Str("x")}, func(b *BytecodeBuilder) {
		b.EmitByte(OpPushLocal, 0)
		b.EmitUint16(OpPushLiteral, 0)
		b.Emit(OpAdd)
		top := b.NewLabel()
		b.Mark(top)
		b.EmitJump(OpJump, top)
		b.Emit(OpReturn)
	})

	out := Disassemble(code)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 instructions, got %d:\n%s", len(lines), out)
	}

	checks := []string{
		"0000 PUSH_LOCAL 0",
		"0002 PUSH_LITERAL 0 ; 1",
		"0005 ADD",
		"0006 JUMP -3 (-> 0006)",
		"0009 RETURN",
	}
	for i, want := range checks {
		if lines[i] != want {
			t.Errorf("line %d = %q, want %q", i, lines[i], want)
		}
	}
}
