package server

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/chazu/quill/liveedit"
)

// RenderUnifiedDiff formats the chunks of one patch operation as a
// unified diff, for logs and debugger clients. Chunks are expanded to
// whole-line hunks with no context lines.
func RenderUnifiedDiff(name, oldSource, newSource string, chunks []liveedit.DiffChunk) (string, error) {
	fd := &diff.FileDiff{
		OrigName: "a/" + name,
		NewName:  "b/" + name,
	}

	for _, c := range chunks {
		origStart, origLines := coveredLines(oldSource, c.OldStart, c.OldEnd)
		newStart, newLines := coveredLines(newSource, c.NewStart, c.NewEnd)

		var body bytes.Buffer
		for _, l := range origLines {
			body.WriteString("-")
			body.WriteString(l)
			body.WriteString("\n")
		}
		for _, l := range newLines {
			body.WriteString("+")
			body.WriteString(l)
			body.WriteString("\n")
		}

		fd.Hunks = append(fd.Hunks, &diff.Hunk{
			OrigStartLine: int32(origStart),
			OrigLines:     int32(len(origLines)),
			NewStartLine:  int32(newStart),
			NewLines:      int32(len(newLines)),
			Body:          body.Bytes(),
		})
	}

	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return "", fmt.Errorf("printing diff: %w", err)
	}
	return string(out), nil
}

// coveredLines expands a byte range to whole lines, returning the
// 1-based number of the first covered line and the lines themselves
// without trailing newlines. A zero-length range covers no lines.
func coveredLines(source string, start, end int) (int, []string) {
	if start > len(source) {
		start = len(source)
	}
	if end > len(source) {
		end = len(source)
	}

	lineStart := strings.LastIndexByte(source[:start], '\n') + 1
	lineNum := strings.Count(source[:lineStart], "\n") + 1
	if start == end {
		return lineNum, nil
	}

	lineEnd := end
	if end == 0 || source[end-1] != '\n' {
		if i := strings.IndexByte(source[end:], '\n'); i >= 0 {
			lineEnd = end + i
		} else {
			lineEnd = len(source)
		}
	}

	text := source[lineStart:lineEnd]
	if text == "" {
		return lineNum, nil
	}
	return lineNum, strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
