package liveedit

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Textual comparison
// ---------------------------------------------------------------------------
//
// The comparator works over two abstract sequences. It never sees source
// text directly; callers adapt whatever they are comparing (lines, bytes)
// to the Input role and collect results through the Output role. The
// algorithm is Myers' O(ND) shortest edit script, so cost is bounded by
// the size of the difference, not the size of the inputs.

// Input presents two sequences to the comparator.
type Input interface {
	Length1() int
	Length2() int
	Equals(index1, index2 int) bool
}

// Output receives difference regions. pos1/len1 address the first
// sequence, pos2/len2 the second. Chunks arrive in ascending order and
// never overlap.
type Output interface {
	AddChunk(pos1, pos2, len1, len2 int)
}

// CalculateDifference computes the shortest edit script between the two
// sequences and reports each maximal differing region as one chunk.
func CalculateDifference(input Input, output Output) {
	n := input.Length1()
	m := input.Length2()

	if n == 0 && m == 0 {
		return
	}
	if n == 0 || m == 0 {
		output.AddChunk(0, 0, n, m)
		return
	}

	matched := myersMatch(input, n, m)
	emitChunks(matched, n, m, output)
}

// myersMatch returns, for each index of sequence one, the matching index
// in sequence two, or -1 where the element was deleted.
func myersMatch(input Input, n, m int) []int {
	max := n + m
	offset := max
	v := make([]int, 2*max+2)

	// trace[d] holds the frontier before depth d ran, for backtracking.
	var trace [][]int

	dFinal := -1
	for d := 0; d <= max && dFinal < 0; d++ {
		snapshot := make([]int, len(v))
		copy(snapshot, v)
		trace = append(trace, snapshot)

		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
				x = v[offset+k+1]
			} else {
				x = v[offset+k-1] + 1
			}
			y := x - k
			for x < n && y < m && input.Equals(x, y) {
				x++
				y++
			}
			v[offset+k] = x
			if x >= n && y >= m {
				dFinal = d
				break
			}
		}
	}

	matched := make([]int, n)
	for i := range matched {
		matched[i] = -1
	}

	x, y := n, m
	for d := dFinal; d >= 0; d-- {
		prev := trace[d]
		k := x - y

		var prevK int
		if k == -d || (k != d && prev[offset+k-1] < prev[offset+k+1]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := prev[offset+prevK]
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			x--
			y--
			matched[x] = y
		}
		if d > 0 {
			x, y = prevX, prevY
		}
	}

	return matched
}

// emitChunks converts the match table into maximal difference regions.
func emitChunks(matched []int, n, m int, output Output) {
	type chunk struct {
		pos1, pos2, len1, len2 int
	}
	var chunks []chunk

	i, j := 0, 0
	for i < n || j < m {
		if i < n && matched[i] == j {
			i++
			j++
			continue
		}
		start1, start2 := i, j
		for i < n && matched[i] < 0 {
			i++
		}
		if i < n {
			j2 := matched[i]
			chunks = append(chunks, chunk{start1, start2, i - start1, j2 - start2})
			j = j2
		} else {
			chunks = append(chunks, chunk{start1, start2, i - start1, m - start2})
			j = m
		}
	}

	for _, c := range chunks {
		output.AddChunk(c.pos1, c.pos2, c.len1, c.len2)
	}
}

// ---------------------------------------------------------------------------
// Source-level comparison
// ---------------------------------------------------------------------------

// DiffChunk is one differing region expressed in byte offsets. The half
// open range [OldStart, OldEnd) of the old source was replaced by
// [NewStart, NewEnd) of the new source.
type DiffChunk struct {
	OldStart int
	OldEnd   int
	NewStart int
	NewEnd   int
}

// OldLen returns the replaced length in the old source.
func (c DiffChunk) OldLen() int { return c.OldEnd - c.OldStart }

// NewLen returns the replacement length in the new source.
func (c DiffChunk) NewLen() int { return c.NewEnd - c.NewStart }

// TranslatePosition maps a position in the old source to the new source
// given the chunk list. Positions inside a replaced region clamp to the
// start of the replacement.
func TranslatePosition(chunks []DiffChunk, pos int) int {
	shift := 0
	for _, c := range chunks {
		if pos < c.OldStart {
			break
		}
		if pos < c.OldEnd {
			return c.NewStart
		}
		shift += c.NewLen() - c.OldLen()
	}
	return pos + shift
}

type lineRecord struct {
	start int // byte offset of the line start
	text  string
}

func splitLines(s string) []lineRecord {
	var lines []lineRecord
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, lineRecord{start, s[start : i+1]})
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, lineRecord{start, s[start:]})
	}
	return lines
}

type lineInput struct {
	a, b []lineRecord
}

func (in *lineInput) Length1() int { return len(in.a) }
func (in *lineInput) Length2() int { return len(in.b) }
func (in *lineInput) Equals(i, j int) bool {
	return in.a[i].text == in.b[j].text
}

type byteInput struct {
	a, b string
}

func (in *byteInput) Length1() int         { return len(in.a) }
func (in *byteInput) Length2() int         { return len(in.b) }
func (in *byteInput) Equals(i, j int) bool { return in.a[i] == in.b[j] }

type chunkCollector struct {
	fn func(pos1, pos2, len1, len2 int)
}

func (c *chunkCollector) AddChunk(pos1, pos2, len1, len2 int) {
	c.fn(pos1, pos2, len1, len2)
}

// TextualCompare diffs two script sources. It runs a line-level pass
// first and refines each changed run of lines with a byte-level pass, so
// results stay tight without paying byte-level cost over the whole file.
func TextualCompare(oldSource, newSource string) []DiffChunk {
	return compareSource(oldSource, newSource, true)
}

// CompareLines diffs two script sources at line granularity only, for
// hosts that prefer whole-line chunks over tight ranges.
func CompareLines(oldSource, newSource string) []DiffChunk {
	return compareSource(oldSource, newSource, false)
}

func compareSource(oldSource, newSource string, refine bool) []DiffChunk {
	if oldSource == newSource {
		return nil
	}

	oldLines := splitLines(oldSource)
	newLines := splitLines(newSource)

	var out []DiffChunk
	collector := &chunkCollector{}
	collector.fn = func(pos1, pos2, len1, len2 int) {
		oldStart, oldEnd := lineSpan(oldLines, pos1, len1, len(oldSource))
		newStart, newEnd := lineSpan(newLines, pos2, len2, len(newSource))
		if refine {
			out = append(out, refineChunk(
				oldSource[oldStart:oldEnd], newSource[newStart:newEnd],
				oldStart, newStart)...)
			return
		}
		out = append(out, DiffChunk{
			OldStart: oldStart, OldEnd: oldEnd,
			NewStart: newStart, NewEnd: newEnd,
		})
	}
	CalculateDifference(&lineInput{oldLines, newLines}, collector)
	return out
}

func lineSpan(lines []lineRecord, pos, count, total int) (int, int) {
	var start int
	if pos < len(lines) {
		start = lines[pos].start
	} else {
		start = total
	}
	var end int
	if pos+count-1 < len(lines) && count > 0 {
		last := lines[pos+count-1]
		end = last.start + len(last.text)
	} else {
		end = start
	}
	return start, end
}

// refineChunk runs a byte-level diff over one changed region, producing
// chunks in whole-source offsets. Common prefixes and suffixes are
// trimmed first so the quadratic-in-difference pass sees minimal input.
func refineChunk(oldText, newText string, oldBase, newBase int) []DiffChunk {
	prefix := commonPrefix(oldText, newText)
	oldText = oldText[prefix:]
	newText = newText[prefix:]
	suffix := commonSuffix(oldText, newText)
	oldText = oldText[:len(oldText)-suffix]
	newText = newText[:len(newText)-suffix]
	oldBase += prefix
	newBase += prefix

	if oldText == "" && newText == "" {
		return nil
	}

	// Large regions get one coarse chunk rather than a byte-level pass.
	const refineLimit = 1 << 14
	if len(oldText) > refineLimit || len(newText) > refineLimit {
		return []DiffChunk{{
			OldStart: oldBase, OldEnd: oldBase + len(oldText),
			NewStart: newBase, NewEnd: newBase + len(newText),
		}}
	}

	var out []DiffChunk
	collector := &chunkCollector{}
	collector.fn = func(pos1, pos2, len1, len2 int) {
		out = append(out, DiffChunk{
			OldStart: oldBase + pos1, OldEnd: oldBase + pos1 + len1,
			NewStart: newBase + pos2, NewEnd: newBase + pos2 + len2,
		})
	}
	CalculateDifference(&byteInput{oldText, newText}, collector)
	return out
}

func commonPrefix(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func commonSuffix(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[len(a)-1-n] == b[len(b)-1-n] {
		n++
	}
	return n
}

// FormatChunks renders chunks compactly for logs.
func FormatChunks(chunks []DiffChunk) string {
	if len(chunks) == 0 {
		return "(no changes)"
	}
	var sb strings.Builder
	for i, c := range chunks {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(formatChunk(c))
	}
	return sb.String()
}

func formatChunk(c DiffChunk) string {
	return fmt.Sprintf("[%d,%d)->[%d,%d)", c.OldStart, c.OldEnd, c.NewStart, c.NewEnd)
}
