// Package liveedit hot-swaps the compiled code of a running script.
//
// Given a live script and edited source text, it diffs the two versions,
// locates the functions the edit touched, decides which of them can take
// a direct code swap, applies the swaps atomically, and classifies every
// live activation of the patched functions, optionally dropping frames
// so an activation restarts on the new code.
//
// The package assumes the calling debugger front-end runs one patch
// operation at a time and has paused every fiber except (at most) the
// one issuing the request.
package liveedit

import (
	"fmt"

	"github.com/chazu/quill/vm"
)

// Options configures one patch operation.
type Options struct {
	// DoDrop requests that parked activations of patched functions be
	// unwound and restarted on the new code where that is safe.
	DoDrop bool

	// RetainName, when non-empty, names a read-only script that keeps
	// the pre-edit source for debugger clients still displaying it.
	RetainName string

	// LineGranularity diffs at whole-line granularity instead of
	// refining chunks to byte level.
	LineGranularity bool

	// Active is the fiber issuing the request, if the request
	// originates from script code rather than the host. May be nil.
	Active *vm.Fiber
}

// FunctionPatchStatus reports the outcome for one patched function.
type FunctionPatchStatus struct {
	Name     string      `cbor:"name"`
	StartPos int         `cbor:"start"`
	Status   FrameStatus `cbor:"status"`

	// Widened is set when this function was patched because a nested
	// function's change could not be applied in place.
	Widened bool `cbor:"widened,omitempty"`
}

// Result is the full outcome of one patch operation. Functions carries
// the ten-slot records of patched functions; Shared the four-slot
// records of functions that survived the edit without a code swap. When
// Error is non-empty the operation aborted before any mutation and
// every other field describes only what was attempted.
type Result struct {
	ScriptName string                `cbor:"script"`
	Chunks     []DiffChunk           `cbor:"chunks,omitempty"`
	Statuses   []FunctionPatchStatus `cbor:"statuses,omitempty"`
	Functions  [][]any               `cbor:"functions,omitempty"`
	Shared     [][]any               `cbor:"shared,omitempty"`
	Retained   string                `cbor:"retained,omitempty"`
	Error      string                `cbor:"error,omitempty"`
}

// OK reports whether the operation ran to completion.
func (r *Result) OK() bool { return r.Error == "" }

// Patched reports whether any code was actually swapped.
func (r *Result) Patched() bool { return r.OK() && len(r.Statuses) > 0 }

func failure(scriptName string, err error) *Result {
	return &Result{ScriptName: scriptName, Error: err.Error()}
}

// PatchScript replaces script's source with newSource on the given VM,
// hot-swapping the code of every function the edit changed. On any
// compile or validation failure the operation aborts with the error in
// the result's error slot and no live state touched.
func PatchScript(machine *vm.VM, script *vm.Script, newSource string, opts Options) *Result {
	var chunks []DiffChunk
	if opts.LineGranularity {
		chunks = CompareLines(script.Source, newSource)
	} else {
		chunks = TextualCompare(script.Source, newSource)
	}
	if len(chunks) == 0 {
		return &Result{ScriptName: script.Name}
	}

	oldTree, _, err := BuildTree(script.Source, script.Name)
	if err != nil {
		return failure(script.Name, fmt.Errorf("compile old version: %w", err))
	}
	if err := oldTree.BindLive(script); err != nil {
		return failure(script.Name, fmt.Errorf("bind live script: %w", err))
	}

	newTree, _, err := BuildTree(newSource, script.Name)
	if err != nil {
		return failure(script.Name, fmt.Errorf("compile new version: %w", err))
	}

	oldTree.MarkChanged(chunks)
	MatchTrees(oldTree, newTree)

	changed := NewChangeLocator(oldTree).LocateAll(chunks)
	analyzer := NewCompatibilityAnalyzer(oldTree, newTree)
	plan := analyzer.Plan(changed)

	patcher := NewCodePatcher(analyzer)
	if err := patcher.ValidatePlan(plan); err != nil {
		return failure(script.Name, err)
	}

	retained := patcher.Apply(script, plan, newSource, opts.RetainName)
	if retained != nil {
		machine.AddScript(retained)
	}

	targets := make([]*vm.FunctionProto, len(plan.Targets))
	for i, t := range plan.Targets {
		targets[i] = t.Old.Proto
	}
	guard := NewStackGuard(machine, opts.Active)
	frameStatuses := guard.CheckActivations(targets, opts.DoDrop)

	result := &Result{ScriptName: script.Name, Chunks: chunks}
	if retained != nil {
		result.Retained = retained.Name
	}
	for i, t := range plan.Targets {
		result.Statuses = append(result.Statuses, FunctionPatchStatus{
			Name:     t.Old.Name,
			StartPos: t.Old.StartPos,
			Status:   frameStatuses[i],
			Widened:  t.Widened(),
		})
		result.Functions = append(result.Functions, FunctionInfoArray(script.Name, t.Old))
	}

	patched := make(map[*FunctionRecord]bool, len(plan.Targets))
	for _, t := range plan.Targets {
		patched[t.Old] = true
	}
	for _, r := range oldTree.Records {
		if patched[r] || r.Match == nil {
			continue
		}
		result.Shared = append(result.Shared, SharedInfoArray(script.Name, r))
	}
	return result
}
