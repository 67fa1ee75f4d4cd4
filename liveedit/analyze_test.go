package liveedit

import (
	"testing"
)

// preparePlan compiles both sources, binds nothing (fresh trees are
// enough for analysis), and runs the change pipeline up to planning.
func preparePlan(t *testing.T, oldSrc, newSrc string) (*FunctionTree, *FunctionTree, *PatchPlan) {
	t.Helper()
	oldTree := buildTestTree(t, oldSrc)
	newTree := buildTestTree(t, newSrc)

	chunks := TextualCompare(oldSrc, newSrc)
	oldTree.MarkChanged(chunks)
	MatchTrees(oldTree, newTree)

	changed := NewChangeLocator(oldTree).LocateAll(chunks)
	plan := NewCompatibilityAnalyzer(oldTree, newTree).Plan(changed)
	return oldTree, newTree, plan
}

func recordNamed(t *testing.T, tree *FunctionTree, name string) *FunctionRecord {
	t.Helper()
	for _, r := range tree.Records {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no record named %q", name)
	return nil
}

func TestBodyEditPatchesDirectly(t *testing.T) {
	oldSrc := "function f() { return 1; }\nfunction g() { return f() + 1; }\n"
	newSrc := "function f() { return 2; }\nfunction g() { return f() + 1; }\n"

	oldTree, _, plan := preparePlan(t, oldSrc, newSrc)

	if len(plan.Targets) != 1 {
		t.Fatalf("expected a single target, got %d", len(plan.Targets))
	}
	target := plan.Targets[0]
	if target.Old != recordNamed(t, oldTree, "f") {
		t.Errorf("target should be f, got %q", target.Old.Name)
	}
	if target.Widened() {
		t.Errorf("a body-only edit should not widen")
	}
	if _, ok := plan.TargetFor(recordNamed(t, oldTree, "g")); ok {
		t.Errorf("g is untouched and should not be a target")
	}
}

func TestParamCountChangeWidensToParent(t *testing.T) {
	oldSrc := `function outer() {
	function inner(a) {
		return a;
	}
	return inner;
}
`
	newSrc := `function outer() {
	function inner(a, b) {
		return a;
	}
	return inner;
}
`
	oldTree, _, plan := preparePlan(t, oldSrc, newSrc)

	outer := recordNamed(t, oldTree, "outer")
	target, ok := plan.TargetFor(outer)
	if !ok {
		t.Fatalf("the signature change should widen to outer")
	}
	if !target.Widened() {
		t.Errorf("target should report widening")
	}
	if target.Origin != recordNamed(t, oldTree, "inner") {
		t.Errorf("origin should be inner, got %q", target.Origin.Name)
	}
	if _, ok := plan.TargetFor(recordNamed(t, oldTree, "inner")); ok {
		t.Errorf("inner itself must not be patched in place")
	}
}

func TestParamCountChangeAtTopLevelWidensToRoot(t *testing.T) {
	oldSrc := "function f(a) { return a; }\n"
	newSrc := "function f(a, b) { return a + b; }\n"

	oldTree, newTree, plan := preparePlan(t, oldSrc, newSrc)

	if len(plan.Targets) != 1 {
		t.Fatalf("expected a single target, got %d", len(plan.Targets))
	}
	target := plan.Targets[0]
	if target.Old != oldTree.Root {
		t.Errorf("expected the script root, got %q", target.Old.Name)
	}
	if target.New != newTree.Root {
		t.Errorf("replacement should be the new root")
	}
	if !target.Widened() {
		t.Errorf("root absorbed f's change and should report widening")
	}
}

func TestCaptureShapeChangeWidens(t *testing.T) {
	oldSrc := `function make() {
	var n = 0;
	function get() {
		return n;
	}
	return get;
}
`
	// get now captures a second variable; its free-variable shape changed.
	newSrc := `function make() {
	var n = 0;
	var step = 1;
	function get() {
		return n + step;
	}
	return get;
}
`
	oldTree, _, plan := preparePlan(t, oldSrc, newSrc)

	oldGet := recordNamed(t, oldTree, "get")
	if _, ok := plan.TargetFor(oldGet); ok {
		t.Errorf("get's captured shape changed; it must widen")
	}
	foundWider := false
	for _, target := range plan.Targets {
		if target.Old == recordNamed(t, oldTree, "make") || target.Old == oldTree.Root {
			foundWider = true
		}
	}
	if !foundWider {
		t.Errorf("expected the patch to land on make or the root")
	}
}

func TestLiteralCountChangeWidens(t *testing.T) {
	oldSrc := `function outer() {
	function inner() {
		return 1;
	}
	return inner();
}
`
	// inner gains a literal; its pool grew.
	newSrc := `function outer() {
	function inner() {
		return 1 + 2;
	}
	return inner();
}
`
	oldTree, newTree, plan := preparePlan(t, oldSrc, newSrc)

	oldInner := recordNamed(t, oldTree, "inner")
	newInner := recordNamed(t, newTree, "inner")
	if oldInner.LiteralCount == newInner.LiteralCount {
		t.Fatalf("test premise broken: literal pools should differ")
	}
	analyzer := NewCompatibilityAnalyzer(oldTree, newTree)
	if analyzer.Compatible(oldInner, newInner) {
		t.Errorf("differing literal pools must be incompatible")
	}
	if _, ok := plan.TargetFor(oldInner); ok {
		t.Errorf("inner must widen when its literal pool grows")
	}
	if _, ok := plan.TargetFor(recordNamed(t, oldTree, "outer")); !ok {
		t.Errorf("the patch should land on outer")
	}
}

func TestSharedAncestorDeduplicated(t *testing.T) {
	oldSrc := `function outer() {
	function a(x) {
		return x;
	}
	function b(y) {
		return y;
	}
	return 0;
}
`
	newSrc := `function outer() {
	function a(x, x2) {
		return x;
	}
	function b(y, y2) {
		return y;
	}
	return 0;
}
`
	oldTree, _, plan := preparePlan(t, oldSrc, newSrc)

	if len(plan.Targets) != 1 {
		t.Fatalf("both signature changes widen to the same parent, want one target, got %d",
			len(plan.Targets))
	}
	if plan.Targets[0].Old != recordNamed(t, oldTree, "outer") {
		t.Errorf("target should be outer, got %q", plan.Targets[0].Old.Name)
	}
}
