package liveedit

import (
	"fmt"

	"github.com/chazu/quill/vm"
)

// ---------------------------------------------------------------------------
// Code patching
// ---------------------------------------------------------------------------

// CodePatcher applies a finalized PatchPlan to a live script. Each
// target's code and scope metadata are installed with a single atomic
// pointer swap, so a fiber resuming after the pause either sees the old
// code or the new code, never a mix. Frames already executing a patched
// function keep the code they entered with.
type CodePatcher struct {
	analyzer *CompatibilityAnalyzer
}

func NewCodePatcher(analyzer *CompatibilityAnalyzer) *CodePatcher {
	return &CodePatcher{analyzer: analyzer}
}

// Apply swaps in new code for every plan target, relinks surviving
// nested functions, updates positions of unpatched records, and installs
// the new source on the script. The pre-edit source is returned as a
// read-only retained script when retainName is non-empty.
//
// Everything here mutates live state; the caller must have the world
// paused and must have validated the plan first. Apply itself does not
// fail once entered.
func (p *CodePatcher) Apply(script *vm.Script, plan *PatchPlan, newSource, retainName string) *vm.Script {
	newTree := p.analyzer.newTree

	liveByNew := make(map[*FunctionRecord]*vm.FunctionProto, len(newTree.Records))
	for _, n := range newTree.Records {
		if n.Match != nil {
			liveByNew[n] = n.Match.Proto
		}
	}

	for _, t := range plan.Targets {
		p.relinkNested(t.New, liveByNew)
		t.Old.Proto.ReplaceCode(t.New.Code)
	}

	// Unpatched surviving functions keep their code but their text
	// moved with the edit; update the recorded ranges so the next
	// patch operation can still find them by position.
	patched := make(map[*FunctionRecord]bool, len(plan.Targets))
	for _, t := range plan.Targets {
		patched[t.Old] = true
	}
	for _, r := range p.analyzer.oldTree.Records {
		if patched[r] || r.Match == nil {
			continue
		}
		code := r.Proto.Code()
		code.StartPos = r.NewStartPos
		code.EndPos = r.NewEndPos
	}

	var retained *vm.Script
	if retainName != "" {
		retained = &vm.Script{Name: retainName, Source: script.Source}
	}
	script.Source = newSource
	script.Protos = p.mergeArena(newTree)
	return retained
}

// relinkNested rewires a to-be-installed code object so that nested
// functions surviving the edit keep their live prototype. Future
// closures of the patched function then share the prototype existing
// closures already hold, and a later patch of the nested function
// reaches both. Nested functions that changed shape keep the fresh
// prototype from the new compilation.
func (p *CodePatcher) relinkNested(newRec *FunctionRecord, liveByNew map[*FunctionRecord]*vm.FunctionProto) {
	for i, child := range newRec.Children {
		if i >= len(newRec.Code.Nested) {
			break
		}
		live, ok := liveByNew[child]
		if !ok {
			continue
		}
		if !p.analyzer.Compatible(child.Match, child) {
			continue
		}
		newRec.Code.Nested[i] = live
	}
}

// mergeArena rebuilds the script's prototype arena in new-tree order:
// surviving functions keep their live prototype, added functions enter
// with their fresh one. Deleted functions simply drop out; closures
// still holding them run on, unreachable from the script.
func (p *CodePatcher) mergeArena(newTree *FunctionTree) []*vm.FunctionProto {
	protos := make([]*vm.FunctionProto, len(newTree.Records))
	for i, n := range newTree.Records {
		if n.Match != nil {
			protos[i] = n.Match.Proto
		} else {
			protos[i] = n.Proto
		}
	}
	return protos
}

// ValidatePlan rejects plans that reference records from other trees.
func (p *CodePatcher) ValidatePlan(plan *PatchPlan) error {
	oldSet := make(map[*FunctionRecord]bool, len(p.analyzer.oldTree.Records))
	for _, r := range p.analyzer.oldTree.Records {
		oldSet[r] = true
	}
	newSet := make(map[*FunctionRecord]bool, len(p.analyzer.newTree.Records))
	for _, r := range p.analyzer.newTree.Records {
		newSet[r] = true
	}
	for _, t := range plan.Targets {
		if !oldSet[t.Old] {
			return fmt.Errorf("patch target %q is not in the old tree", t.Old.Name)
		}
		if !newSet[t.New] {
			return fmt.Errorf("replacement %q is not in the new tree", t.New.Name)
		}
		if t.Old.Proto == nil {
			return fmt.Errorf("patch target %q has no live prototype", t.Old.Name)
		}
	}
	return nil
}
