package liveedit

// ---------------------------------------------------------------------------
// Compatibility analysis
// ---------------------------------------------------------------------------

// PatchTarget pairs an old function record with the new record whose
// code will be swapped in.
type PatchTarget struct {
	Old *FunctionRecord
	New *FunctionRecord

	// Origin is the record whose change produced this target. It
	// differs from Old when incompatibility widened the patch to an
	// enclosing function.
	Origin *FunctionRecord
}

// Widened reports whether the target absorbed an incompatible change
// from a nested function.
func (t PatchTarget) Widened() bool { return t.Origin != t.Old }

// PatchPlan is the finalized set of code swaps for one edit.
type PatchPlan struct {
	Targets []PatchTarget
}

// TargetFor returns the plan entry whose old record is r, if any.
func (p *PatchPlan) TargetFor(r *FunctionRecord) (PatchTarget, bool) {
	for _, t := range p.Targets {
		if t.Old == r {
			return t, true
		}
	}
	return PatchTarget{}, false
}

// CompatibilityAnalyzer decides which functions can take a direct code
// swap and widens the rest to an enclosing function. The trees must
// already be matched via MatchTrees.
type CompatibilityAnalyzer struct {
	oldTree *FunctionTree
	newTree *FunctionTree
}

func NewCompatibilityAnalyzer(oldTree, newTree *FunctionTree) *CompatibilityAnalyzer {
	return &CompatibilityAnalyzer{oldTree: oldTree, newTree: newTree}
}

// Compatible reports whether the new record can replace the old one in
// place. Bodies may differ freely; the signature shape may not: the
// parameter count, the literal pool size, and the captured-scope shape
// must all be unchanged, since existing closures and callers bake those
// into their layout.
func (a *CompatibilityAnalyzer) Compatible(oldRec, newRec *FunctionRecord) bool {
	if oldRec.ParamCount != newRec.ParamCount {
		return false
	}
	if oldRec.LiteralCount != newRec.LiteralCount {
		return false
	}
	return oldRec.Scope.SameShape(newRec.Scope)
}

// Plan resolves each changed record to a patch target, deepest records
// first so a nested change widens before its ancestor is considered.
// An incompatible record widens to its parent, repeatedly, until a
// compatible ancestor is found. The root is always a valid target:
// replacing the whole script's code is unconditionally safe because
// nothing closes over the root from outside.
func (a *CompatibilityAnalyzer) Plan(changed []*FunctionRecord) *PatchPlan {
	changedSet := make(map[*FunctionRecord]bool, len(changed))
	for _, r := range changed {
		changedSet[r] = true
	}
	bottomUp := make([]*FunctionRecord, 0, len(changed))
	for _, r := range a.oldTree.RecordsByDepth() {
		if changedSet[r] {
			bottomUp = append(bottomUp, r)
		}
	}

	plan := &PatchPlan{}
	placed := make(map[*FunctionRecord]bool)

	for _, origin := range bottomUp {
		rec := origin
		for {
			if rec.Match != nil && a.Compatible(rec, rec.Match) {
				break
			}
			if rec.ParentIndex < 0 {
				break
			}
			rec = a.oldTree.Records[rec.ParentIndex]
		}

		target := rec.Match
		if target == nil {
			// Only possible at the root; roots always match.
			target = a.newTree.Root
		}
		if placed[rec] {
			continue
		}
		placed[rec] = true
		plan.Targets = append(plan.Targets, PatchTarget{
			Old:    rec,
			New:    target,
			Origin: origin,
		})
	}
	return plan
}
