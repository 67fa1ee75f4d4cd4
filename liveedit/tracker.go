package liveedit

import (
	"fmt"
	"sort"

	"github.com/chazu/quill/compiler"
	"github.com/chazu/quill/vm"
)

// ---------------------------------------------------------------------------
// Function trees
// ---------------------------------------------------------------------------
//
// A patch operation compiles both the retained old source and the new
// source with a function observer installed, producing one record per
// function in source order. The records form a tree mirroring lexical
// nesting: the whole-script function is the root and every other record
// hangs off the function whose text encloses it.

// FunctionRecord describes one function of a compiled script version.
type FunctionRecord struct {
	Name         string
	StartPos     int
	EndPos       int
	ParamCount   int
	LiteralCount int
	Index        int
	ParentIndex  int

	Proto *vm.FunctionProto
	Code  *vm.Code
	Scope *vm.ScopeInfo

	Children []*FunctionRecord

	// Set by MarkChanged on old-tree records.
	NewStartPos int
	NewEndPos   int
	Changed     bool

	// Set by MatchTrees: the corresponding record in the other tree,
	// nil when the function was added or removed.
	Match *FunctionRecord
}

// Encloses reports whether r's text range contains the other record's.
func (r *FunctionRecord) Encloses(other *FunctionRecord) bool {
	return r.StartPos <= other.StartPos && other.EndPos <= r.EndPos
}

// FunctionTree is the nesting tree of one script version's functions.
type FunctionTree struct {
	Root    *FunctionRecord
	Records []*FunctionRecord
	Source  string
}

// treeBuilder collects observer records during compilation.
type treeBuilder struct {
	records []*FunctionRecord
}

func (b *treeBuilder) ObserveFunction(info compiler.FunctionInfo) {
	b.records = append(b.records, &FunctionRecord{
		Name:         info.Name,
		StartPos:     info.StartPos,
		EndPos:       info.EndPos,
		ParamCount:   info.ParamCount,
		LiteralCount: info.LiteralCount,
		Index:        info.FunctionIndex,
		ParentIndex:  info.ParentIndex,
		Proto:        info.Proto,
		Code:         info.Code,
		Scope:        info.Scope,
		NewStartPos:  info.StartPos,
		NewEndPos:    info.EndPos,
	})
}

// BuildTree compiles source with an observer and assembles the function
// tree. The returned tree owns freshly compiled prototypes; callers
// patching a live script bind those to the running prototypes separately.
func BuildTree(source, scriptName string) (*FunctionTree, *vm.Script, error) {
	b := &treeBuilder{}
	script, err := compiler.Compile(source, compiler.Options{
		ScriptName: scriptName,
		Observer:   b,
	})
	if err != nil {
		return nil, nil, err
	}

	tree := &FunctionTree{Records: b.records, Source: source}
	if err := tree.assemble(); err != nil {
		return nil, nil, err
	}
	return tree, script, nil
}

// assemble wires Children links and checks the structural invariants:
// records arrive in source order, every parent precedes and encloses its
// children, and siblings occupy disjoint ranges.
func (t *FunctionTree) assemble() error {
	if len(t.Records) == 0 {
		return fmt.Errorf("function tree: no records")
	}
	root := t.Records[0]
	if root.ParentIndex != -1 {
		return fmt.Errorf("function tree: record 0 has parent %d", root.ParentIndex)
	}
	t.Root = root

	for i, r := range t.Records {
		if r.Index != i {
			return fmt.Errorf("function tree: record %d carries index %d", i, r.Index)
		}
		if i == 0 {
			continue
		}
		if r.ParentIndex < 0 || r.ParentIndex >= i {
			return fmt.Errorf("function tree: record %d has parent %d", i, r.ParentIndex)
		}
		parent := t.Records[r.ParentIndex]
		if !parent.Encloses(r) {
			return fmt.Errorf("function tree: %q [%d,%d) outside parent %q [%d,%d)",
				r.Name, r.StartPos, r.EndPos, parent.Name, parent.StartPos, parent.EndPos)
		}
		if n := len(parent.Children); n > 0 {
			prev := parent.Children[n-1]
			if r.StartPos < prev.EndPos {
				return fmt.Errorf("function tree: %q [%d,%d) overlaps sibling %q [%d,%d)",
					r.Name, r.StartPos, r.EndPos, prev.Name, prev.StartPos, prev.EndPos)
			}
		}
		parent.Children = append(parent.Children, r)
	}
	return nil
}

// BindLive replaces each record's prototype with the live script's
// prototype at the same start position, so later patching swaps code on
// the objects closures actually reference. Fails when the retained
// source no longer describes the running script.
func (t *FunctionTree) BindLive(script *vm.Script) error {
	// The key pairs position with name: the whole-script function and a
	// declaration on the first byte share a start position.
	type protoKey struct {
		start int
		name  string
	}
	live := make(map[protoKey]*vm.FunctionProto, len(script.Protos))
	for _, p := range script.Protos {
		live[protoKey{p.Code().StartPos, p.Name}] = p
	}
	for _, r := range t.Records {
		p, ok := live[protoKey{r.StartPos, r.Name}]
		if !ok {
			return fmt.Errorf("no live function %q at position %d", r.Name, r.StartPos)
		}
		r.Proto = p
		r.Code = p.Code()
		r.Scope = r.Code.Scope
	}
	return nil
}

// MarkChanged flags every old-tree record whose text intersects a diff
// chunk and computes each record's position in the new source.
func (t *FunctionTree) MarkChanged(chunks []DiffChunk) {
	for _, r := range t.Records {
		r.Changed = false
		for _, c := range chunks {
			if c.OldEnd > r.StartPos && c.OldStart < r.EndPos {
				r.Changed = true
				break
			}
		}
		r.NewStartPos = TranslatePosition(chunks, r.StartPos)
		r.NewEndPos = TranslatePosition(chunks, r.EndPos)
	}
}

// MatchTrees links each old record to the new record occupying the same
// place in the edited source, walking both trees top down. Old records
// with no counterpart were removed by the edit; new records with no
// counterpart were added.
func MatchTrees(oldTree, newTree *FunctionTree) {
	matchRecords(oldTree.Root, newTree.Root)
}

func matchRecords(oldRec, newRec *FunctionRecord) {
	oldRec.Match = newRec
	newRec.Match = oldRec

	// Children are sorted by position in both trees.
	newByStart := make(map[int]*FunctionRecord, len(newRec.Children))
	for _, nc := range newRec.Children {
		newByStart[nc.StartPos] = nc
	}
	for _, oc := range oldRec.Children {
		nc, ok := newByStart[oc.NewStartPos]
		if !ok || nc.Name != oc.Name {
			continue
		}
		matchRecords(oc, nc)
	}
}

// RecordsByDepth returns records ordered deepest first, so bottom-up
// passes can rely on children being visited before their parents.
func (t *FunctionTree) RecordsByDepth() []*FunctionRecord {
	depth := make(map[*FunctionRecord]int, len(t.Records))
	for _, r := range t.Records {
		if r.ParentIndex < 0 {
			depth[r] = 0
		} else {
			depth[r] = depth[t.Records[r.ParentIndex]] + 1
		}
	}
	out := make([]*FunctionRecord, len(t.Records))
	copy(out, t.Records)
	sort.SliceStable(out, func(i, j int) bool {
		return depth[out[i]] > depth[out[j]]
	})
	return out
}
