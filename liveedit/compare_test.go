package liveedit

import (
	"strings"
	"testing"
)

// applyChunks reconstructs the new text by splicing each chunk's
// replacement into the old text.
func applyChunks(oldText, newText string, chunks []DiffChunk) string {
	var sb strings.Builder
	pos := 0
	for _, c := range chunks {
		sb.WriteString(oldText[pos:c.OldStart])
		sb.WriteString(newText[c.NewStart:c.NewEnd])
		pos = c.OldEnd
	}
	sb.WriteString(oldText[pos:])
	return sb.String()
}

var comparePairs = []struct {
	name     string
	old, new string
}{
	{"identical", "function f() {}\n", "function f() {}\n"},
	{"body edit", "function f() { return 1; }\n", "function f() { return 2; }\n"},
	{"insert line", "a\nb\nc\n", "a\nb\nx\nc\n"},
	{"delete line", "a\nb\nc\n", "a\nc\n"},
	{"replace line", "a\nb\nc\n", "a\nB\nc\n"},
	{"append", "a\n", "a\nb\n"},
	{"prepend", "b\n", "a\nb\n"},
	{"empty to text", "", "hello\n"},
	{"text to empty", "hello\n", ""},
	{"both empty", "", ""},
	{"disjoint edits", "one\ntwo\nthree\nfour\nfive\n", "ONE\ntwo\nthree\nfour\nFIVE\n"},
	{"no trailing newline", "abc", "abd"},
	{"whole rewrite", "x\ny\n", "p\nq\nr\n"},
}

func TestChunksRoundTrip(t *testing.T) {
	for _, pair := range comparePairs {
		chunks := TextualCompare(pair.old, pair.new)
		got := applyChunks(pair.old, pair.new, chunks)
		if got != pair.new {
			t.Errorf("%s: applying chunks gave %q, expected %q", pair.name, got, pair.new)
		}
	}
}

func TestChunksOrderedAndDisjoint(t *testing.T) {
	for _, pair := range comparePairs {
		chunks := TextualCompare(pair.old, pair.new)
		for i := 1; i < len(chunks); i++ {
			prev, cur := chunks[i-1], chunks[i]
			if cur.OldStart < prev.OldEnd || cur.NewStart < prev.NewEnd {
				t.Errorf("%s: chunks %d and %d overlap or are out of order", pair.name, i-1, i)
			}
			if cur.OldStart == prev.OldEnd && cur.NewStart == prev.NewEnd {
				t.Errorf("%s: chunks %d and %d are adjacent and should have been merged", pair.name, i-1, i)
			}
		}
	}
}

func TestIdenticalTextsYieldNoChunks(t *testing.T) {
	if chunks := TextualCompare("same\ntext\n", "same\ntext\n"); chunks != nil {
		t.Errorf("expected no chunks, got %v", chunks)
	}
}

func TestSingleBodyEditYieldsOneTightChunk(t *testing.T) {
	oldSrc := "function f() { return 1; }\nfunction g() { return f() + 1; }\n"
	newSrc := "function f() { return 2; }\nfunction g() { return f() + 1; }\n"

	chunks := TextualCompare(oldSrc, newSrc)
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	c := chunks[0]
	fEnd := strings.Index(oldSrc, "\n")
	if c.OldStart < strings.Index(oldSrc, "1") || c.OldEnd > fEnd {
		t.Errorf("chunk [%d,%d) should stay inside f's line", c.OldStart, c.OldEnd)
	}
}

func TestCompareLinesCoversWholeLines(t *testing.T) {
	oldSrc := "function f() { return 1; }\nfunction g() { return f() + 1; }\n"
	newSrc := "function f() { return 2; }\nfunction g() { return f() + 1; }\n"

	chunks := CompareLines(oldSrc, newSrc)
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	c := chunks[0]
	firstLine := strings.Index(oldSrc, "\n") + 1
	if c.OldStart != 0 || c.OldEnd != firstLine {
		t.Errorf("chunk [%d,%d) should cover exactly f's line", c.OldStart, c.OldEnd)
	}
	if got := applyChunks(oldSrc, newSrc, chunks); got != newSrc {
		t.Errorf("applying line chunks gave %q", got)
	}
}

func TestCalculateDifferenceRoles(t *testing.T) {
	in := &byteInput{a: "abcdef", b: "abXdef"}
	var got []DiffChunk
	collector := &chunkCollector{}
	collector.fn = func(pos1, pos2, len1, len2 int) {
		got = append(got, DiffChunk{pos1, pos1 + len1, pos2, pos2 + len2})
	}
	CalculateDifference(in, collector)

	if len(got) != 1 {
		t.Fatalf("expected one chunk, got %d", len(got))
	}
	c := got[0]
	if c.OldStart != 2 || c.OldEnd != 3 || c.NewStart != 2 || c.NewEnd != 3 {
		t.Errorf("unexpected chunk %+v", c)
	}
}

func TestTranslatePosition(t *testing.T) {
	// "aXc" -> "aYYc": one chunk [1,2) -> [1,3).
	chunks := []DiffChunk{{OldStart: 1, OldEnd: 2, NewStart: 1, NewEnd: 3}}

	if got := TranslatePosition(chunks, 0); got != 0 {
		t.Errorf("position before the chunk should not move, got %d", got)
	}
	if got := TranslatePosition(chunks, 1); got != 1 {
		t.Errorf("position inside the chunk clamps to its start, got %d", got)
	}
	if got := TranslatePosition(chunks, 2); got != 3 {
		t.Errorf("position after the chunk shifts by the growth, got %d", got)
	}
}
