package compiler

import (
	"strings"
	"testing"
)

type recordingObserver struct {
	infos []FunctionInfo
}

func (o *recordingObserver) ObserveFunction(info FunctionInfo) {
	o.infos = append(o.infos, info)
}

func TestObserverRecordsFunctionsInSourceOrder(t *testing.T) {
	src := `function f() { return 1; }
function g() { return f() + 1; }
`
	obs := &recordingObserver{}
	_, err := Compile(src, Options{ScriptName: "s", Observer: obs})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	if len(obs.infos) != 3 {
		t.Fatalf("expected 3 records (script, f, g), got %d", len(obs.infos))
	}

	root := obs.infos[0]
	if root.Name != "" || root.ParentIndex != -1 || root.FunctionIndex != 0 {
		t.Errorf("record 0 should be the script root, got %+v", root)
	}
	if root.StartPos != 0 || root.EndPos != len(src) {
		t.Errorf("root should span the whole source, got [%d,%d)", root.StartPos, root.EndPos)
	}

	f := obs.infos[1]
	if f.Name != "f" || f.ParentIndex != 0 {
		t.Errorf("record 1 should be f with parent 0, got %+v", f)
	}
	if f.StartPos != strings.Index(src, "function f") {
		t.Errorf("f starts at %d, expected %d", f.StartPos, strings.Index(src, "function f"))
	}

	g := obs.infos[2]
	if g.Name != "g" || g.ParentIndex != 0 {
		t.Errorf("record 2 should be g with parent 0, got %+v", g)
	}
	if f.EndPos > g.StartPos {
		t.Errorf("sibling ranges overlap: f ends %d, g starts %d", f.EndPos, g.StartPos)
	}

	for i, info := range obs.infos {
		if info.Proto == nil || info.Code == nil || info.Scope == nil {
			t.Errorf("record %d missing compiled handles", i)
		}
		if info.Proto.Code() != info.Code {
			t.Errorf("record %d prototype does not carry its code", i)
		}
	}
}

func TestObserverNestedParentIndex(t *testing.T) {
	src := `function outer() {
	function inner() { return 1; }
	return inner;
}
`
	obs := &recordingObserver{}
	_, err := Compile(src, Options{Observer: obs})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	if len(obs.infos) != 3 {
		t.Fatalf("expected 3 records, got %d", len(obs.infos))
	}
	outer := obs.infos[1]
	inner := obs.infos[2]
	if inner.ParentIndex != 1 {
		t.Errorf("inner's parent should be outer (index 1), got %d", inner.ParentIndex)
	}
	if !(outer.StartPos <= inner.StartPos && inner.EndPos <= outer.EndPos) {
		t.Errorf("inner [%d,%d) should nest inside outer [%d,%d)",
			inner.StartPos, inner.EndPos, outer.StartPos, outer.EndPos)
	}
	if outer.ParamCount != 0 || inner.ParamCount != 0 {
		t.Errorf("unexpected param counts: outer %d inner %d", outer.ParamCount, inner.ParamCount)
	}
}

func TestNoObserverNoRecords(t *testing.T) {
	_, err := Compile(`function f() { return 1; }`, Options{})
	if err != nil {
		t.Fatalf("compile without observer failed: %v", err)
	}
}
