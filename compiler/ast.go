package compiler

// ---------------------------------------------------------------------------
// AST node definitions
// ---------------------------------------------------------------------------

// Node is implemented by every AST node.
type Node interface {
	Pos() int // byte offset of the first character
	End() int // byte offset just past the last character
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// FuncDecl is a named function declaration, possibly nested.
type FuncDecl struct {
	Name     string
	NamePos  Position
	Params   []string
	Body     []Stmt
	StartPos int // offset of the "function" keyword
	EndPos   int // offset just past the closing brace
	Line     int
}

func (d *FuncDecl) Pos() int  { return d.StartPos }
func (d *FuncDecl) End() int  { return d.EndPos }
func (d *FuncDecl) stmtNode() {}

// VarDecl declares a variable with an initializer.
type VarDecl struct {
	Name     string
	Init     Expr
	StartPos int
	EndPos   int
	Line     int
}

func (d *VarDecl) Pos() int  { return d.StartPos }
func (d *VarDecl) End() int  { return d.EndPos }
func (d *VarDecl) stmtNode() {}

// AssignStmt assigns to an existing variable.
type AssignStmt struct {
	Name     string
	NamePos  Position
	Value    Expr
	EndPos   int
	Line     int
}

func (s *AssignStmt) Pos() int  { return s.NamePos.Offset }
func (s *AssignStmt) End() int  { return s.EndPos }
func (s *AssignStmt) stmtNode() {}

// ReturnStmt returns from the enclosing function.
type ReturnStmt struct {
	Value    Expr // nil for bare return
	StartPos int
	EndPos   int
	Line     int
}

func (s *ReturnStmt) Pos() int  { return s.StartPos }
func (s *ReturnStmt) End() int  { return s.EndPos }
func (s *ReturnStmt) stmtNode() {}

// IfStmt is a conditional with an optional else branch.
type IfStmt struct {
	Cond     Expr
	Then     []Stmt
	Else     []Stmt // nil when absent
	StartPos int
	EndPos   int
	Line     int
}

func (s *IfStmt) Pos() int  { return s.StartPos }
func (s *IfStmt) End() int  { return s.EndPos }
func (s *IfStmt) stmtNode() {}

// WhileStmt is a loop.
type WhileStmt struct {
	Cond     Expr
	Body     []Stmt
	StartPos int
	EndPos   int
	Line     int
}

func (s *WhileStmt) Pos() int  { return s.StartPos }
func (s *WhileStmt) End() int  { return s.EndPos }
func (s *WhileStmt) stmtNode() {}

// ExprStmt evaluates an expression for its effect.
type ExprStmt struct {
	X      Expr
	EndPos int
	Line   int
}

func (s *ExprStmt) Pos() int  { return s.X.Pos() }
func (s *ExprStmt) End() int  { return s.EndPos }
func (s *ExprStmt) stmtNode() {}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// NumberLit is a numeric literal.
type NumberLit struct {
	Value    float64
	StartPos int
	EndPos   int
}

func (e *NumberLit) Pos() int  { return e.StartPos }
func (e *NumberLit) End() int  { return e.EndPos }
func (e *NumberLit) exprNode() {}

// StringLit is a string literal.
type StringLit struct {
	Value    string
	StartPos int
	EndPos   int
}

func (e *StringLit) Pos() int  { return e.StartPos }
func (e *StringLit) End() int  { return e.EndPos }
func (e *StringLit) exprNode() {}

// BoolLit is true or false.
type BoolLit struct {
	Value    bool
	StartPos int
	EndPos   int
}

func (e *BoolLit) Pos() int  { return e.StartPos }
func (e *BoolLit) End() int  { return e.EndPos }
func (e *BoolLit) exprNode() {}

// NilLit is the nil literal.
type NilLit struct {
	StartPos int
	EndPos   int
}

func (e *NilLit) Pos() int  { return e.StartPos }
func (e *NilLit) End() int  { return e.EndPos }
func (e *NilLit) exprNode() {}

// Ident is a variable reference.
type Ident struct {
	Name     string
	StartPos int
	EndPos   int
}

func (e *Ident) Pos() int  { return e.StartPos }
func (e *Ident) End() int  { return e.EndPos }
func (e *Ident) exprNode() {}

// BinaryExpr is a binary operation.
type BinaryExpr struct {
	Op   TokenType
	X, Y Expr
}

func (e *BinaryExpr) Pos() int  { return e.X.Pos() }
func (e *BinaryExpr) End() int  { return e.Y.End() }
func (e *BinaryExpr) exprNode() {}

// UnaryExpr is a prefix operation.
type UnaryExpr struct {
	Op       TokenType
	X        Expr
	StartPos int
}

func (e *UnaryExpr) Pos() int  { return e.StartPos }
func (e *UnaryExpr) End() int  { return e.X.End() }
func (e *UnaryExpr) exprNode() {}

// CallExpr is a function call.
type CallExpr struct {
	Callee Expr
	Args   []Expr
	EndPos int
	Line   int
}

func (e *CallExpr) Pos() int  { return e.Callee.Pos() }
func (e *CallExpr) End() int  { return e.EndPos }
func (e *CallExpr) exprNode() {}
