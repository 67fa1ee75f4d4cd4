package compiler

import "testing"

func TestNextToken(t *testing.T) {
	input := `function add(a, b) { return a + b; } // trailing comment`

	expected := []struct {
		typ     TokenType
		literal string
	}{
		{TokenFunction, "function"},
		{TokenIdentifier, "add"},
		{TokenLParen, "("},
		{TokenIdentifier, "a"},
		{TokenComma, ","},
		{TokenIdentifier, "b"},
		{TokenRParen, ")"},
		{TokenLBrace, "{"},
		{TokenReturn, "return"},
		{TokenIdentifier, "a"},
		{TokenPlus, "+"},
		{TokenIdentifier, "b"},
		{TokenSemicolon, ";"},
		{TokenRBrace, "}"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, want := range expected {
		tok := l.NextToken()
		if tok.Type != want.typ {
			t.Fatalf("token %d: expected type %s, got %s (%q)", i, want.typ, tok.Type, tok.Literal)
		}
		if tok.Literal != want.literal {
			t.Errorf("token %d: expected literal %q, got %q", i, want.literal, tok.Literal)
		}
	}
}

func TestTwoCharOperators(t *testing.T) {
	l := NewLexer(`== != <= >= < > = !`)
	want := []TokenType{
		TokenEQ, TokenNE, TokenLE, TokenGE,
		TokenLT, TokenGT, TokenAssign, TokenBang, TokenEOF,
	}
	for i, typ := range want {
		tok := l.NextToken()
		if tok.Type != typ {
			t.Errorf("token %d: expected %s, got %s", i, typ, tok.Type)
		}
	}
}

func TestPositionsAndLines(t *testing.T) {
	l := NewLexer("var x = 1;\nvar y = 2;\n")
	var tok Token
	for {
		tok = l.NextToken()
		if tok.Type == TokenEOF {
			break
		}
		if tok.Type == TokenIdentifier && tok.Literal == "y" {
			if tok.Pos.Line != 2 {
				t.Errorf("y should be on line 2, got %d", tok.Pos.Line)
			}
			if tok.Pos.Offset != 15 {
				t.Errorf("y should be at offset 15, got %d", tok.Pos.Offset)
			}
		}
	}
}

func TestStringLiteralSpan(t *testing.T) {
	l := NewLexer(`"hi there"`)
	tok := l.NextToken()
	if tok.Type != TokenString {
		t.Fatalf("expected string token, got %s", tok.Type)
	}
	if tok.Pos.Offset != 0 || tok.End() != 10 {
		t.Errorf("string token should span the quotes, got [%d,%d)", tok.Pos.Offset, tok.End())
	}
}

func TestNumberWithDecimal(t *testing.T) {
	l := NewLexer("3.25")
	tok := l.NextToken()
	if tok.Type != TokenNumber || tok.Literal != "3.25" {
		t.Errorf("expected number 3.25, got %s %q", tok.Type, tok.Literal)
	}
}
