package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: recursive descent for Quill source
// ---------------------------------------------------------------------------

// Parser builds an AST from a token stream.
type Parser struct {
	lexer *Lexer
	cur   Token
	peek  Token

	errors []string
}

// NewParser creates a parser over the given source.
func NewParser(source string) *Parser {
	p := &Parser{lexer: NewLexer(source)}
	p.advance()
	p.advance()
	return p
}

func (p *Parser) advance() {
	p.cur = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) errorf(tok Token, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	p.errors = append(p.errors, fmt.Sprintf("line %d: %s", tok.Pos.Line, msg))
}

func (p *Parser) expect(t TokenType) Token {
	if p.cur.Type != t {
		p.errorf(p.cur, "expected %s, got %s", t, p.cur.Type)
		return p.cur
	}
	tok := p.cur
	p.advance()
	return tok
}

// ParseProgram parses a whole script: a statement list at top level.
func (p *Parser) ParseProgram() ([]Stmt, error) {
	var stmts []Stmt
	for p.cur.Type != TokenEOF {
		s := p.parseStatement()
		if s != nil {
			stmts = append(stmts, s)
		}
		if len(p.errors) > 8 {
			break
		}
	}
	if len(p.errors) > 0 {
		return nil, fmt.Errorf("parse: %s", strings.Join(p.errors, "; "))
	}
	return stmts, nil
}

func (p *Parser) parseStatement() Stmt {
	switch p.cur.Type {
	case TokenFunction:
		return p.parseFuncDecl()
	case TokenVar:
		return p.parseVarDecl()
	case TokenReturn:
		return p.parseReturn()
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		return p.parseWhile()
	case TokenIdentifier:
		if p.peek.Type == TokenAssign {
			return p.parseAssign()
		}
		return p.parseExprStmt()
	case TokenError:
		p.errorf(p.cur, "unexpected character %q", p.cur.Literal)
		p.advance()
		return nil
	default:
		return p.parseExprStmt()
	}
}

func (p *Parser) parseFuncDecl() Stmt {
	start := p.cur.Pos
	p.advance() // function
	name := p.expect(TokenIdentifier)

	p.expect(TokenLParen)
	var params []string
	for p.cur.Type != TokenRParen && p.cur.Type != TokenEOF {
		param := p.expect(TokenIdentifier)
		params = append(params, param.Literal)
		if p.cur.Type == TokenComma {
			p.advance()
		}
	}
	p.expect(TokenRParen)

	body, endPos := p.parseBlock()

	return &FuncDecl{
		Name:     name.Literal,
		NamePos:  name.Pos,
		Params:   params,
		Body:     body,
		StartPos: start.Offset,
		EndPos:   endPos,
		Line:     start.Line,
	}
}

// parseBlock parses "{ stmts }" and returns the statements plus the offset
// just past the closing brace.
func (p *Parser) parseBlock() ([]Stmt, int) {
	p.expect(TokenLBrace)
	var stmts []Stmt
	for p.cur.Type != TokenRBrace && p.cur.Type != TokenEOF {
		s := p.parseStatement()
		if s != nil {
			stmts = append(stmts, s)
		}
		if len(p.errors) > 8 {
			break
		}
	}
	closing := p.expect(TokenRBrace)
	return stmts, closing.End()
}

func (p *Parser) parseVarDecl() Stmt {
	start := p.cur.Pos
	p.advance() // var
	name := p.expect(TokenIdentifier)
	p.expect(TokenAssign)
	init := p.parseExpr()
	end := p.finishStatement(init.End())
	return &VarDecl{
		Name:     name.Literal,
		Init:     init,
		StartPos: start.Offset,
		EndPos:   end,
		Line:     start.Line,
	}
}

func (p *Parser) parseAssign() Stmt {
	name := p.cur
	p.advance()
	p.advance() // =
	value := p.parseExpr()
	end := p.finishStatement(value.End())
	return &AssignStmt{
		Name:    name.Literal,
		NamePos: name.Pos,
		Value:   value,
		EndPos:  end,
		Line:    name.Pos.Line,
	}
}

func (p *Parser) parseReturn() Stmt {
	start := p.cur.Pos
	p.advance() // return
	var value Expr
	end := start.Offset + len("return")
	if p.cur.Type != TokenSemicolon && p.cur.Type != TokenRBrace && p.cur.Type != TokenEOF {
		value = p.parseExpr()
		end = value.End()
	}
	end = p.finishStatement(end)
	return &ReturnStmt{Value: value, StartPos: start.Offset, EndPos: end, Line: start.Line}
}

func (p *Parser) parseIf() Stmt {
	start := p.cur.Pos
	p.advance() // if
	p.expect(TokenLParen)
	cond := p.parseExpr()
	p.expect(TokenRParen)
	then, end := p.parseBlock()
	var elseStmts []Stmt
	if p.cur.Type == TokenElse {
		p.advance()
		elseStmts, end = p.parseBlock()
	}
	return &IfStmt{
		Cond: cond, Then: then, Else: elseStmts,
		StartPos: start.Offset, EndPos: end, Line: start.Line,
	}
}

func (p *Parser) parseWhile() Stmt {
	start := p.cur.Pos
	p.advance() // while
	p.expect(TokenLParen)
	cond := p.parseExpr()
	p.expect(TokenRParen)
	body, end := p.parseBlock()
	return &WhileStmt{
		Cond: cond, Body: body,
		StartPos: start.Offset, EndPos: end, Line: start.Line,
	}
}

func (p *Parser) parseExprStmt() Stmt {
	line := p.cur.Pos.Line
	x := p.parseExpr()
	end := p.finishStatement(x.End())
	return &ExprStmt{X: x, EndPos: end, Line: line}
}

// finishStatement consumes an optional trailing semicolon and returns the
// statement's end offset.
func (p *Parser) finishStatement(exprEnd int) int {
	if p.cur.Type == TokenSemicolon {
		end := p.cur.End()
		p.advance()
		return end
	}
	return exprEnd
}

// ---------------------------------------------------------------------------
// Expressions, precedence climbing
// ---------------------------------------------------------------------------

const (
	precLowest = iota
	precEquality   // == !=
	precComparison // < > <= >=
	precTerm       // + -
	precFactor     // * / %
	precUnary      // - !
	precCall       // ()
)

func precedenceOf(t TokenType) int {
	switch t {
	case TokenEQ, TokenNE:
		return precEquality
	case TokenLT, TokenGT, TokenLE, TokenGE:
		return precComparison
	case TokenPlus, TokenMinus:
		return precTerm
	case TokenStar, TokenSlash, TokenPercent:
		return precFactor
	case TokenLParen:
		return precCall
	default:
		return precLowest
	}
}

func (p *Parser) parseExpr() Expr {
	return p.parseBinary(precLowest)
}

func (p *Parser) parseBinary(minPrec int) Expr {
	left := p.parseUnary()
	for {
		prec := precedenceOf(p.cur.Type)
		if prec <= minPrec || prec == precCall {
			if p.cur.Type == TokenLParen {
				left = p.parseCall(left)
				continue
			}
			return left
		}
		op := p.cur.Type
		p.advance()
		right := p.parseBinary(prec)
		left = &BinaryExpr{Op: op, X: left, Y: right}
	}
}

func (p *Parser) parseUnary() Expr {
	switch p.cur.Type {
	case TokenMinus, TokenBang:
		start := p.cur.Pos
		op := p.cur.Type
		p.advance()
		x := p.parseUnary()
		return &UnaryExpr{Op: op, X: x, StartPos: start.Offset}
	default:
		return p.parsePrimary()
	}
}

func (p *Parser) parsePrimary() Expr {
	tok := p.cur
	switch tok.Type {
	case TokenNumber:
		p.advance()
		value, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.errorf(tok, "bad number %q", tok.Literal)
		}
		return &NumberLit{Value: value, StartPos: tok.Pos.Offset, EndPos: tok.End()}

	case TokenString:
		p.advance()
		return &StringLit{
			Value:    unquote(tok.Literal),
			StartPos: tok.Pos.Offset,
			EndPos:   tok.End(),
		}

	case TokenTrue, TokenFalse:
		p.advance()
		return &BoolLit{Value: tok.Type == TokenTrue, StartPos: tok.Pos.Offset, EndPos: tok.End()}

	case TokenNil:
		p.advance()
		return &NilLit{StartPos: tok.Pos.Offset, EndPos: tok.End()}

	case TokenIdentifier:
		p.advance()
		return &Ident{Name: tok.Literal, StartPos: tok.Pos.Offset, EndPos: tok.End()}

	case TokenLParen:
		p.advance()
		x := p.parseExpr()
		p.expect(TokenRParen)
		return x

	default:
		p.errorf(tok, "unexpected token %s", tok.Type)
		p.advance()
		return &NilLit{StartPos: tok.Pos.Offset, EndPos: tok.End()}
	}
}

func (p *Parser) parseCall(callee Expr) Expr {
	line := p.cur.Pos.Line
	p.advance() // (
	var args []Expr
	for p.cur.Type != TokenRParen && p.cur.Type != TokenEOF {
		args = append(args, p.parseExpr())
		if p.cur.Type == TokenComma {
			p.advance()
		}
	}
	closing := p.expect(TokenRParen)
	return &CallExpr{Callee: callee, Args: args, EndPos: closing.End(), Line: line}
}

// unquote strips the quotes from a string lexeme and resolves escapes.
func unquote(lexeme string) string {
	body := lexeme
	if len(body) >= 2 {
		body = body[1 : len(body)-1]
	}
	if !strings.ContainsRune(body, '\\') {
		return body
	}
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		if body[i] == '\\' && i+1 < len(body) {
			i++
			switch body[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\':
				b.WriteByte('\\')
			case '"':
				b.WriteByte('"')
			default:
				b.WriteByte(body[i])
			}
			continue
		}
		b.WriteByte(body[i])
	}
	return b.String()
}
