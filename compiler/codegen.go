package compiler

import (
	"fmt"
	"strings"

	"github.com/chazu/quill/vm"
)

// ---------------------------------------------------------------------------
// Code generation
// ---------------------------------------------------------------------------

// FunctionInfo is the per-function record handed to a FunctionObserver.
// Functions are numbered in source order (preorder), with the whole-script
// top-level function at index 0 and ParentIndex -1 marking the root.
type FunctionInfo struct {
	Name          string
	StartPos      int
	EndPos        int
	ParamCount    int
	LiteralCount  int
	FunctionIndex int
	ParentIndex   int
	Proto         *vm.FunctionProto
	Code          *vm.Code
	Scope         *vm.ScopeInfo
}

// FunctionObserver receives one record per compiled function. The live-edit
// tracker implements it for the duration of a single patch operation; in
// ordinary compilation no observer is installed and nothing is recorded.
type FunctionObserver interface {
	ObserveFunction(info FunctionInfo)
}

// Options configures a compilation.
type Options struct {
	ScriptName string
	Observer   FunctionObserver
}

// Compile parses and compiles Quill source into a script ready to run.
func Compile(source string, opts Options) (*vm.Script, error) {
	stmts, err := NewParser(source).ParseProgram()
	if err != nil {
		return nil, err
	}

	res := newResolver()
	rootScope := newFuncScope(nil, nil)
	rootScope.isRoot = true
	nestedScopes := make(map[*FuncDecl]*funcScope)
	res.resolveBody(rootScope, stmts, nestedScopes)
	if len(res.errors) > 0 {
		return nil, fmt.Errorf("resolve: %s", strings.Join(res.errors, "; "))
	}

	g := &generator{
		source:       source,
		res:          res,
		nestedScopes: nestedScopes,
	}
	_, err = g.genFunction(-1, rootScope, "", nil, 0, len(source), stmts, 1)
	if err != nil {
		return nil, err
	}

	if opts.Observer != nil {
		for _, info := range g.infos {
			opts.Observer.ObserveFunction(info)
		}
	}

	return &vm.Script{
		Name:   opts.ScriptName,
		Source: source,
		Protos: g.protos,
	}, nil
}

type generator struct {
	source       string
	res          *resolver
	nestedScopes map[*FuncDecl]*funcScope

	protos []*vm.FunctionProto
	infos  []FunctionInfo
}

// funcBuilder tracks state while emitting one function's code.
type funcBuilder struct {
	b        *vm.BytecodeBuilder
	code     *vm.Code
	scope    *funcScope
	arenaIdx int
	lastLine int
}

func (fb *funcBuilder) markLine(line int) {
	if line > 0 && line != fb.lastLine {
		fb.code.Lines = append(fb.code.Lines, vm.LineEntry{Offset: fb.b.Len(), Line: line})
		fb.lastLine = line
	}
}

func (fb *funcBuilder) addLiteral(v vm.Value) (uint16, error) {
	for i, lit := range fb.code.Literals {
		if lit.Kind() == v.Kind() && lit.Equal(v) {
			return uint16(i), nil
		}
	}
	idx := len(fb.code.Literals)
	if idx > 0xFFFF {
		return 0, fmt.Errorf("too many literals in %q", fb.code.Name)
	}
	fb.code.Literals = append(fb.code.Literals, v)
	return uint16(idx), nil
}

// genFunction compiles one function and returns its arena index.
func (g *generator) genFunction(parentIdx int, scope *funcScope, name string, params []string, start, end int, body []Stmt, line int) (int, error) {
	idx := len(g.protos)
	g.protos = append(g.protos, nil)
	g.infos = append(g.infos, FunctionInfo{})

	if len(params) > 255 {
		return 0, fmt.Errorf("function %q has too many parameters", name)
	}
	if scope.numLocals > 255 {
		return 0, fmt.Errorf("function %q has too many locals", name)
	}

	fb := &funcBuilder{
		b: vm.NewBytecodeBuilder(),
		code: &vm.Code{
			Name:       name,
			StartPos:   start,
			EndPos:     end,
			ParamCount: len(params),
			NumLocals:  scope.numLocals,
		},
		scope:    scope,
		arenaIdx: idx,
	}
	fb.markLine(line)

	if err := g.genStmts(fb, body); err != nil {
		return 0, err
	}
	fb.b.Emit(vm.OpReturnNil)

	fb.code.Bytecode = fb.b.Bytes()
	fb.code.Scope = scope.scopeInfo()

	proto := vm.NewFunctionProto(fb.code)
	g.protos[idx] = proto
	g.infos[idx] = FunctionInfo{
		Name:          name,
		StartPos:      start,
		EndPos:        end,
		ParamCount:    len(params),
		LiteralCount:  fb.code.LiteralCount(),
		FunctionIndex: idx,
		ParentIndex:   parentIdx,
		Proto:         proto,
		Code:          fb.code,
		Scope:         fb.code.Scope,
	}
	return idx, nil
}

func (g *generator) genStmts(fb *funcBuilder, stmts []Stmt) error {
	for _, stmt := range stmts {
		if err := g.genStmt(fb, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) genStmt(fb *funcBuilder, stmt Stmt) error {
	switch st := stmt.(type) {
	case *FuncDecl:
		return g.genFuncDecl(fb, st)

	case *VarDecl:
		fb.markLine(st.Line)
		if err := g.genExpr(fb, st.Init); err != nil {
			return err
		}
		return g.genStore(fb, g.res.refs[st])

	case *AssignStmt:
		fb.markLine(st.Line)
		if err := g.genExpr(fb, st.Value); err != nil {
			return err
		}
		return g.genStore(fb, g.res.refs[st])

	case *ReturnStmt:
		fb.markLine(st.Line)
		if st.Value != nil {
			if err := g.genExpr(fb, st.Value); err != nil {
				return err
			}
			fb.b.Emit(vm.OpReturn)
		} else {
			fb.b.Emit(vm.OpReturnNil)
		}
		return nil

	case *IfStmt:
		fb.markLine(st.Line)
		if err := g.genExpr(fb, st.Cond); err != nil {
			return err
		}
		elseLabel := fb.b.NewLabel()
		fb.b.EmitJump(vm.OpJumpFalse, elseLabel)
		if err := g.genStmts(fb, st.Then); err != nil {
			return err
		}
		if len(st.Else) > 0 {
			endLabel := fb.b.NewLabel()
			fb.b.EmitJump(vm.OpJump, endLabel)
			fb.b.Mark(elseLabel)
			if err := g.genStmts(fb, st.Else); err != nil {
				return err
			}
			fb.b.Mark(endLabel)
		} else {
			fb.b.Mark(elseLabel)
		}
		return nil

	case *WhileStmt:
		fb.markLine(st.Line)
		top := fb.b.NewLabel()
		fb.b.Mark(top)
		if err := g.genExpr(fb, st.Cond); err != nil {
			return err
		}
		endLabel := fb.b.NewLabel()
		fb.b.EmitJump(vm.OpJumpFalse, endLabel)
		if err := g.genStmts(fb, st.Body); err != nil {
			return err
		}
		fb.b.EmitJump(vm.OpJump, top)
		fb.b.Mark(endLabel)
		return nil

	case *ExprStmt:
		fb.markLine(st.Line)
		if err := g.genExpr(fb, st.X); err != nil {
			return err
		}
		fb.b.Emit(vm.OpPOP)
		return nil

	default:
		return fmt.Errorf("unknown statement %T", stmt)
	}
}

func (g *generator) genFuncDecl(fb *funcBuilder, st *FuncDecl) error {
	nestedScope := g.nestedScopes[st]
	nestedIdx := len(fb.code.Nested)
	if nestedIdx > 255 {
		return fmt.Errorf("too many nested functions in %q", fb.code.Name)
	}

	childIdx, err := g.genFunction(
		fb.arenaIdx, nestedScope, st.Name, st.Params,
		st.StartPos, st.EndPos, st.Body, st.Line,
	)
	if err != nil {
		return err
	}

	fb.code.Nested = append(fb.code.Nested, g.protos[childIdx])
	fb.code.Captures = append(fb.code.Captures, nestedScope.captures())

	fb.markLine(st.Line)
	fb.b.EmitByte(vm.OpClosure, byte(nestedIdx))
	return g.genStore(fb, g.res.refs[st])
}

func (g *generator) genStore(fb *funcBuilder, ref storageRef) error {
	switch ref.class {
	case storeLocal:
		fb.b.EmitByte(vm.OpStoreLocal, byte(ref.index))
	case storeCell:
		fb.b.EmitByte(vm.OpStoreCell, byte(ref.index))
	case storeFree:
		fb.b.EmitByte(vm.OpStoreFree, byte(ref.index))
	case storeGlobal:
		idx, err := fb.addLiteral(vm.Str(ref.name))
		if err != nil {
			return err
		}
		fb.b.EmitUint16(vm.OpStoreGlobal, idx)
	}
	return nil
}

func (g *generator) genExpr(fb *funcBuilder, expr Expr) error {
	switch e := expr.(type) {
	case *NumberLit:
		idx, err := fb.addLiteral(vm.Number(e.Value))
		if err != nil {
			return err
		}
		fb.b.EmitUint16(vm.OpPushLiteral, idx)

	case *StringLit:
		idx, err := fb.addLiteral(vm.Str(e.Value))
		if err != nil {
			return err
		}
		fb.b.EmitUint16(vm.OpPushLiteral, idx)

	case *BoolLit:
		if e.Value {
			fb.b.Emit(vm.OpPushTrue)
		} else {
			fb.b.Emit(vm.OpPushFalse)
		}

	case *NilLit:
		fb.b.Emit(vm.OpPushNil)

	case *Ident:
		ref := g.res.refs[e]
		switch ref.class {
		case storeLocal:
			fb.b.EmitByte(vm.OpPushLocal, byte(ref.index))
		case storeCell:
			fb.b.EmitByte(vm.OpPushCell, byte(ref.index))
		case storeFree:
			fb.b.EmitByte(vm.OpPushFree, byte(ref.index))
		case storeGlobal:
			idx, err := fb.addLiteral(vm.Str(ref.name))
			if err != nil {
				return err
			}
			fb.b.EmitUint16(vm.OpPushGlobal, idx)
		}

	case *UnaryExpr:
		if err := g.genExpr(fb, e.X); err != nil {
			return err
		}
		if e.Op == TokenMinus {
			fb.b.Emit(vm.OpNeg)
		} else {
			fb.b.Emit(vm.OpNot)
		}

	case *BinaryExpr:
		if err := g.genExpr(fb, e.X); err != nil {
			return err
		}
		if err := g.genExpr(fb, e.Y); err != nil {
			return err
		}
		fb.b.Emit(binaryOpcode(e.Op))

	case *CallExpr:
		if err := g.genExpr(fb, e.Callee); err != nil {
			return err
		}
		if len(e.Args) > 255 {
			return fmt.Errorf("too many call arguments")
		}
		for _, a := range e.Args {
			if err := g.genExpr(fb, a); err != nil {
				return err
			}
		}
		fb.markLine(e.Line)
		fb.b.EmitByte(vm.OpCall, byte(len(e.Args)))

	default:
		return fmt.Errorf("unknown expression %T", expr)
	}
	return nil
}

func binaryOpcode(op TokenType) vm.Opcode {
	switch op {
	case TokenPlus:
		return vm.OpAdd
	case TokenMinus:
		return vm.OpSub
	case TokenStar:
		return vm.OpMul
	case TokenSlash:
		return vm.OpDiv
	case TokenPercent:
		return vm.OpMod
	case TokenEQ:
		return vm.OpEQ
	case TokenNE:
		return vm.OpNE
	case TokenLT:
		return vm.OpLT
	case TokenGT:
		return vm.OpGT
	case TokenLE:
		return vm.OpLE
	case TokenGE:
		return vm.OpGE
	default:
		return vm.OpNOP
	}
}
