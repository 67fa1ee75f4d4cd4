package liveedit

import (
	"testing"

	"github.com/chazu/quill/compiler"
)

const nestedSource = `function outer(x) {
	function inner() {
		return x;
	}
	function other() {
		return 0;
	}
	return inner;
}
function top() {
	return outer(1)();
}
`

func buildTestTree(t *testing.T, source string) *FunctionTree {
	t.Helper()
	tree, _, err := BuildTree(source, "test")
	if err != nil {
		t.Fatalf("building tree: %v", err)
	}
	return tree
}

func TestTreeInvariants(t *testing.T) {
	tree := buildTestTree(t, nestedSource)

	if len(tree.Records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(tree.Records))
	}
	if tree.Root != tree.Records[0] {
		t.Fatalf("record 0 should be the root")
	}

	for i, r := range tree.Records {
		if i == 0 {
			continue
		}
		parent := tree.Records[r.ParentIndex]
		if !parent.Encloses(r) {
			t.Errorf("%q [%d,%d) not inside parent %q [%d,%d)",
				r.Name, r.StartPos, r.EndPos, parent.Name, parent.StartPos, parent.EndPos)
		}
	}

	for _, r := range tree.Records {
		for i := 1; i < len(r.Children); i++ {
			if r.Children[i].StartPos < r.Children[i-1].EndPos {
				t.Errorf("children of %q overlap", r.Name)
			}
		}
	}
}

func TestAssembleRejectsBadParent(t *testing.T) {
	tree := &FunctionTree{Records: []*FunctionRecord{
		{Index: 0, ParentIndex: -1, StartPos: 0, EndPos: 100},
		{Index: 1, ParentIndex: 5, StartPos: 10, EndPos: 20},
	}}
	if err := tree.assemble(); err == nil {
		t.Errorf("a forward parent index should be rejected")
	}
}

func TestAssembleRejectsEscapingChild(t *testing.T) {
	tree := &FunctionTree{Records: []*FunctionRecord{
		{Index: 0, ParentIndex: -1, StartPos: 0, EndPos: 50},
		{Index: 1, ParentIndex: 0, StartPos: 40, EndPos: 60},
	}}
	if err := tree.assemble(); err == nil {
		t.Errorf("a child extending past its parent should be rejected")
	}
}

func TestBindLiveMatchesByPosition(t *testing.T) {
	script, err := compiler.Compile(nestedSource, compiler.Options{ScriptName: "test"})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	tree := buildTestTree(t, nestedSource)

	if err := tree.BindLive(script); err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	for i, r := range tree.Records {
		if r.Proto != script.Protos[i] {
			t.Errorf("record %d bound to the wrong prototype", i)
		}
	}
}

func TestBindLiveRejectsMismatchedScript(t *testing.T) {
	script, err := compiler.Compile("function elsewhere() { return 9; }\n",
		compiler.Options{ScriptName: "other"})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	tree := buildTestTree(t, nestedSource)
	if err := tree.BindLive(script); err == nil {
		t.Errorf("binding against an unrelated script should fail")
	}
}

func TestMarkChangedAndMatch(t *testing.T) {
	oldSrc := "function f() { return 1; }\nfunction g() { return f() + 1; }\n"
	newSrc := "function f() { return 22; }\nfunction g() { return f() + 1; }\n"

	oldTree := buildTestTree(t, oldSrc)
	newTree := buildTestTree(t, newSrc)
	chunks := TextualCompare(oldSrc, newSrc)

	oldTree.MarkChanged(chunks)
	MatchTrees(oldTree, newTree)

	var f, g *FunctionRecord
	for _, r := range oldTree.Records {
		switch r.Name {
		case "f":
			f = r
		case "g":
			g = r
		}
	}
	if f == nil || g == nil {
		t.Fatalf("missing records")
	}

	if !f.Changed {
		t.Errorf("f's text changed and should be marked")
	}
	if g.Changed {
		t.Errorf("g did not change")
	}
	if f.Match == nil || f.Match.Name != "f" {
		t.Errorf("f should match the new f")
	}
	if g.Match == nil || g.Match.Name != "g" {
		t.Errorf("g should match the new g")
	}

	// The edit grew the source by one byte; g moved right by one.
	if g.NewStartPos != g.StartPos+1 {
		t.Errorf("g's new start should shift by 1, got %d from %d", g.NewStartPos, g.StartPos)
	}
}

func TestLocatorFindsNarrowestFunction(t *testing.T) {
	tree := buildTestTree(t, nestedSource)
	var inner *FunctionRecord
	for _, r := range tree.Records {
		if r.Name == "inner" {
			inner = r
		}
	}
	if inner == nil {
		t.Fatalf("missing inner record")
	}

	loc := NewChangeLocator(tree)
	c := DiffChunk{OldStart: inner.StartPos + 5, OldEnd: inner.StartPos + 6}
	if got := loc.Locate(c); got != inner {
		t.Errorf("expected inner, got %q", got.Name)
	}

	// A chunk spanning two functions lands on their common ancestor.
	var top *FunctionRecord
	for _, r := range tree.Records {
		if r.Name == "top" {
			top = r
		}
	}
	wide := DiffChunk{OldStart: inner.StartPos, OldEnd: top.EndPos}
	if got := loc.Locate(wide); got != tree.Root {
		t.Errorf("expected the script root, got %q", got.Name)
	}
}

func TestLocatorTopLevelChunk(t *testing.T) {
	src := "var a = 1;\nfunction f() { return a; }\n"
	tree := buildTestTree(t, src)
	loc := NewChangeLocator(tree)

	c := DiffChunk{OldStart: 8, OldEnd: 9} // inside "var a = 1;"
	if got := loc.Locate(c); got != tree.Root {
		t.Errorf("top-level edits belong to the script root, got %q", got.Name)
	}
}
