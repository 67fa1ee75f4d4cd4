package vm

import "sync/atomic"

// ---------------------------------------------------------------------------
// Code, ScopeInfo, FunctionProto, Closure: the patchable function model
// ---------------------------------------------------------------------------

// ScopeInfo describes the variable shape of one compiled function.
//
// Params, Cells and Free are ordered name lists fixed at compile time:
// Cells are locals (or parameters) captured by nested functions, Free are
// variables this function reads from enclosing scopes. A nested function's
// Free list must resolve, in order, against its parent's Params/Cells/Free.
type ScopeInfo struct {
	Params []string
	Cells  []string
	Free   []string
}

// SameShape reports whether two scope infos have an identical variable
// shape: same names in the same order in every section.
func (s *ScopeInfo) SameShape(o *ScopeInfo) bool {
	if s == nil || o == nil {
		return s == o
	}
	return equalNames(s.Params, o.Params) &&
		equalNames(s.Cells, o.Cells) &&
		equalNames(s.Free, o.Free)
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CaptureSource says where a closure's free variable comes from in the
// frame instantiating it.
type CaptureSource uint8

const (
	// CaptureCell resolves against the creating frame's cell array.
	CaptureCell CaptureSource = iota
	// CaptureFree resolves against the creating closure's own free array.
	CaptureFree
)

// Capture describes one free-variable binding for closure instantiation.
type Capture struct {
	Source CaptureSource
	Index  int
}

// Code is the compiled representation of one function body. Bytecode,
// literals, and scope metadata never change after compilation; live
// patching replaces whole Code objects rather than editing them, though
// the patcher does renumber StartPos/EndPos on surviving codes while the
// world is paused. Scope holds the scope-info handle so that swapping a
// FunctionProto's code pointer replaces code and scope metadata together.
type Code struct {
	Name     string
	StartPos int // byte offset of the function in its script source
	EndPos   int // exclusive

	ParamCount int
	NumLocals  int // parameters + declared locals
	Scope      *ScopeInfo

	Bytecode []byte
	Literals []Value

	// Nested holds the prototypes of functions declared directly inside
	// this one, in source order. OpClosure indexes into it.
	Nested []*FunctionProto

	// Captures describes, per nested prototype, how to bind its free
	// variables when instantiating it from a frame running this code.
	Captures [][]Capture

	// Lines maps bytecode offsets to 1-based source lines for diagnostics.
	Lines []LineEntry
}

// LineEntry maps a bytecode offset to a source line.
type LineEntry struct {
	Offset int
	Line   int
}

// LiteralCount returns the size of the constant pool.
func (c *Code) LiteralCount() int { return len(c.Literals) }

// Line returns the source line for a bytecode offset, or 0 if unknown.
func (c *Code) Line(offset int) int {
	line := 0
	for _, e := range c.Lines {
		if e.Offset > offset {
			break
		}
		line = e.Line
	}
	return line
}

// FunctionProto is the shared, live record of one function in a running
// script. Closures and call sites reach code through it; the live-edit
// patcher swaps the code pointer, after which new activations and new
// closure instantiations observe the new code while frames already
// executing keep the Code object they entered with.
type FunctionProto struct {
	Name string
	code atomic.Pointer[Code]
}

// NewFunctionProto creates a prototype bound to its initial code.
func NewFunctionProto(c *Code) *FunctionProto {
	p := &FunctionProto{Name: c.Name}
	p.code.Store(c)
	return p
}

// Code returns the current compiled code.
func (p *FunctionProto) Code() *Code { return p.code.Load() }

// ReplaceCode atomically installs new code (and, through it, new scope
// metadata). Used only by the live-edit patcher.
func (p *FunctionProto) ReplaceCode(c *Code) { p.code.Store(c) }

// Cell is a heap box for a variable captured by reference.
type Cell struct {
	V Value
}

// Closure is an instantiated function: a prototype plus bound free
// variables. Its code is read from the prototype at call time, so a
// patched prototype affects every existing closure's next activation.
type Closure struct {
	Proto *FunctionProto
	Free  []*Cell
}

// ---------------------------------------------------------------------------
// Script: one loaded program and its function arena
// ---------------------------------------------------------------------------

// Script is a loaded program. Protos is the owned arena of every function
// prototype compiled from the source, in source order, with the whole-script
// top-level function at index 0. Parent linkage between functions is kept
// as indices by the live-edit tracker, never as owning references.
type Script struct {
	Name   string
	Source string
	Protos []*FunctionProto
}

// Root returns the top-level prototype.
func (s *Script) Root() *FunctionProto {
	if len(s.Protos) == 0 {
		return nil
	}
	return s.Protos[0]
}
