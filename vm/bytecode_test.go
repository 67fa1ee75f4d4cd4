package vm

import "testing"

func TestEmitAndInfo(t *testing.T) {
	b := NewBytecodeBuilder()
	b.Emit(OpPushTrue)
	b.EmitByte(OpPushLocal, 3)
	b.EmitUint16(OpPushLiteral, 0x0102)

	want := []byte{
		byte(OpPushTrue),
		byte(OpPushLocal), 3,
		byte(OpPushLiteral), 0x02, 0x01,
	}
	got := b.Bytes()
	if len(got) != len(want) {
		t.Fatalf("expected %d bytes, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d: expected 0x%02X, got 0x%02X", i, want[i], got[i])
		}
	}

	if OpPushLiteral.Info().OperandBytes != 2 {
		t.Errorf("PUSH_LITERAL should have 2 operand bytes")
	}
	if OpCall.String() != "CALL" {
		t.Errorf("expected CALL, got %s", OpCall.String())
	}
}

func TestForwardJumpPatching(t *testing.T) {
	b := NewBytecodeBuilder()
	end := b.NewLabel()
	b.EmitJump(OpJumpFalse, end)
	b.Emit(OpPushTrue)
	b.Mark(end)
	b.Emit(OpReturnNil)

	bc := b.Bytes()
	// Jump at 0, operands at 1..2, PUSH_TRUE at 3, target at 4.
	// Interpreter computes IP = 0 + 3 + offset, so offset must be 1.
	offset := int(int16(uint16(bc[1]) | uint16(bc[2])<<8))
	if offset != 1 {
		t.Errorf("expected forward offset 1, got %d", offset)
	}
}

func TestBackwardJump(t *testing.T) {
	b := NewBytecodeBuilder()
	top := b.NewLabel()
	b.Mark(top)
	b.Emit(OpNOP)
	b.EmitJump(OpJump, top)

	bc := b.Bytes()
	// NOP at 0, jump at 1 with operands 2..3; IP = 1 + 3 + offset must be 0.
	offset := int(int16(uint16(bc[2]) | uint16(bc[3])<<8))
	if offset != -4 {
		t.Errorf("expected backward offset -4, got %d", offset)
	}
}

func TestMultipleRefsToOneLabel(t *testing.T) {
	b := NewBytecodeBuilder()
	end := b.NewLabel()
	b.EmitJump(OpJump, end)
	b.EmitJump(OpJump, end)
	b.Mark(end)

	bc := b.Bytes()
	first := int(int16(uint16(bc[1]) | uint16(bc[2])<<8))
	second := int(int16(uint16(bc[4]) | uint16(bc[5])<<8))
	if 0+3+first != 6 {
		t.Errorf("first jump lands at %d, expected 6", 0+3+first)
	}
	if 3+3+second != 6 {
		t.Errorf("second jump lands at %d, expected 6", 3+3+second)
	}
}
