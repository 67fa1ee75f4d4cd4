package compiler

import (
	"fmt"

	"github.com/chazu/quill/vm"
)

// ---------------------------------------------------------------------------
// Resolver: scope analysis
// ---------------------------------------------------------------------------
//
// Each function's variables are classified before code generation:
//
//   - local: a parameter or declared variable used only by this function,
//     stored in a frame slot.
//   - cell: a local captured by a nested function, stored in a heap cell
//     created at frame entry.
//   - free: a variable from an enclosing function, reached through the
//     closure's free array. Free references thread through intermediate
//     functions so that every capture resolves one level at a time.
//   - global: everything else. Top-level declarations are globals.
//
// The resulting shape (params, cells, free, in order) is the scope-info
// the live-edit analyzer compares between script versions.

type storageClass uint8

const (
	storeLocal storageClass = iota
	storeCell
	storeFree
	storeGlobal
)

// storageRef says where a name lives, relative to the function using it.
type storageRef struct {
	class storageClass
	index int
	name  string
}

type localVar struct {
	slot      int
	isCell    bool
	cellIndex int
}

type freeRef struct {
	name   string
	source vm.CaptureSource
	index  int
}

// funcScope tracks one function's variables during resolution.
type funcScope struct {
	parent *funcScope
	isRoot bool

	params    []string
	vars      map[string]*localVar
	numLocals int

	cells     []string
	free      []freeRef
	freeIndex map[string]int
}

func newFuncScope(parent *funcScope, params []string) *funcScope {
	s := &funcScope{
		parent:    parent,
		params:    params,
		vars:      make(map[string]*localVar),
		freeIndex: make(map[string]int),
	}
	for _, p := range params {
		s.vars[p] = &localVar{slot: s.numLocals}
		s.numLocals++
	}
	return s
}

func (s *funcScope) declare(name string) error {
	if _, exists := s.vars[name]; exists {
		return fmt.Errorf("duplicate declaration of %q", name)
	}
	s.vars[name] = &localVar{slot: s.numLocals}
	s.numLocals++
	return nil
}

func (s *funcScope) addFree(name string, source vm.CaptureSource, index int) int {
	idx := len(s.free)
	s.free = append(s.free, freeRef{name: name, source: source, index: index})
	s.freeIndex[name] = idx
	return idx
}

// scopeInfo builds the vm-level scope descriptor for this function.
func (s *funcScope) scopeInfo() *vm.ScopeInfo {
	freeNames := make([]string, len(s.free))
	for i, fr := range s.free {
		freeNames[i] = fr.name
	}
	return &vm.ScopeInfo{
		Params: append([]string(nil), s.params...),
		Cells:  append([]string(nil), s.cells...),
		Free:   freeNames,
	}
}

// captures builds the instantiation spec for a nested function's closure.
func (s *funcScope) captures() []vm.Capture {
	out := make([]vm.Capture, len(s.free))
	for i, fr := range s.free {
		out[i] = vm.Capture{Source: fr.source, Index: fr.index}
	}
	return out
}

// resolver records a storage ref for every name use in the program.
type resolver struct {
	refs   map[Node]storageRef
	errors []string
}

func newResolver() *resolver {
	return &resolver{refs: make(map[Node]storageRef)}
}

func (r *resolver) errorf(line int, format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf("line %d: %s", line, fmt.Sprintf(format, args...)))
}

// declarePass registers every declaration directly inside the function
// body, without descending into nested functions. Declarations are hoisted
// so siblings may reference each other regardless of order.
func (r *resolver) declarePass(s *funcScope, stmts []Stmt) {
	for _, stmt := range stmts {
		switch st := stmt.(type) {
		case *FuncDecl:
			if !s.isRoot {
				if err := s.declare(st.Name); err != nil {
					r.errorf(st.Line, "%v", err)
				}
			}
		case *VarDecl:
			if !s.isRoot {
				if err := s.declare(st.Name); err != nil {
					r.errorf(st.Line, "%v", err)
				}
			}
		case *IfStmt:
			r.declarePass(s, st.Then)
			r.declarePass(s, st.Else)
		case *WhileStmt:
			r.declarePass(s, st.Body)
		}
	}
}

// resolveFree makes name reachable in s's free array, threading captures
// through intermediate scopes. Reports false when the name is not a local
// of any enclosing function (root declarations are globals).
func (r *resolver) resolveFree(s *funcScope, name string) (int, bool) {
	if idx, ok := s.freeIndex[name]; ok {
		return idx, true
	}
	p := s.parent
	if p == nil || p.isRoot {
		return 0, false
	}
	if v, ok := p.vars[name]; ok {
		if !v.isCell {
			v.isCell = true
			v.cellIndex = len(p.cells)
			p.cells = append(p.cells, name)
		}
		return s.addFree(name, vm.CaptureCell, v.cellIndex), true
	}
	if pidx, ok := r.resolveFree(p, name); ok {
		return s.addFree(name, vm.CaptureFree, pidx), true
	}
	return 0, false
}

// resolveName classifies a name use inside s.
func (r *resolver) resolveName(s *funcScope, name string) storageRef {
	if !s.isRoot {
		if v, ok := s.vars[name]; ok {
			if v.isCell {
				return storageRef{class: storeCell, index: v.cellIndex, name: name}
			}
			return storageRef{class: storeLocal, index: v.slot, name: name}
		}
		if idx, ok := r.resolveFree(s, name); ok {
			return storageRef{class: storeFree, index: idx, name: name}
		}
	}
	return storageRef{class: storeGlobal, name: name}
}

// resolveBody resolves a function body. Nested functions are resolved
// before this function's own statements so that any capture-driven cell
// promotion in this scope happens before its references are classified.
func (r *resolver) resolveBody(s *funcScope, stmts []Stmt, nestedScopes map[*FuncDecl]*funcScope) {
	r.declarePass(s, stmts)

	for _, decl := range collectFuncDecls(stmts) {
		nested := newFuncScope(s, decl.Params)
		nestedScopes[decl] = nested
		r.resolveBody(nested, decl.Body, nestedScopes)
	}

	r.resolveStmts(s, stmts)
}

// collectFuncDecls gathers the function declarations directly inside a
// body, in source order, including those inside if/while blocks.
func collectFuncDecls(stmts []Stmt) []*FuncDecl {
	var out []*FuncDecl
	for _, stmt := range stmts {
		switch st := stmt.(type) {
		case *FuncDecl:
			out = append(out, st)
		case *IfStmt:
			out = append(out, collectFuncDecls(st.Then)...)
			out = append(out, collectFuncDecls(st.Else)...)
		case *WhileStmt:
			out = append(out, collectFuncDecls(st.Body)...)
		}
	}
	return out
}

func (r *resolver) resolveStmts(s *funcScope, stmts []Stmt) {
	for _, stmt := range stmts {
		switch st := stmt.(type) {
		case *FuncDecl:
			r.refs[st] = r.resolveName(s, st.Name)
		case *VarDecl:
			r.resolveExpr(s, st.Init)
			r.refs[st] = r.resolveName(s, st.Name)
		case *AssignStmt:
			r.resolveExpr(s, st.Value)
			r.refs[st] = r.resolveName(s, st.Name)
		case *ReturnStmt:
			if st.Value != nil {
				r.resolveExpr(s, st.Value)
			}
		case *IfStmt:
			r.resolveExpr(s, st.Cond)
			r.resolveStmts(s, st.Then)
			r.resolveStmts(s, st.Else)
		case *WhileStmt:
			r.resolveExpr(s, st.Cond)
			r.resolveStmts(s, st.Body)
		case *ExprStmt:
			r.resolveExpr(s, st.X)
		}
	}
}

func (r *resolver) resolveExpr(s *funcScope, expr Expr) {
	switch e := expr.(type) {
	case *Ident:
		r.refs[e] = r.resolveName(s, e.Name)
	case *BinaryExpr:
		r.resolveExpr(s, e.X)
		r.resolveExpr(s, e.Y)
	case *UnaryExpr:
		r.resolveExpr(s, e.X)
	case *CallExpr:
		r.resolveExpr(s, e.Callee)
		for _, a := range e.Args {
			r.resolveExpr(s, a)
		}
	}
}
