package api

import (
	"errors"
	"strings"
)

const (
	// maxDiffLines bounds each side of a diff
	maxDiffLines = 20000
	// maxDiffCells bounds the LCS table built for the changed middle section
	maxDiffCells = 4_000_000
)

var errDiffTooLarge = errors.New("texts too large to diff")

// DiffLine is one line of a line-based diff
type DiffLine struct {
	Type    string `json:"type"` // "added", "removed", "unchanged"
	Content string `json:"content"`
	OldLine int    `json:"old_line,omitempty"`
	NewLine int    `json:"new_line,omitempty"`
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// computeDiff trims the common head and tail of the two texts, then walks a
// longest-common-subsequence table of what is left, preferring removals
// before additions at each change.
func computeDiff(oldContent, newContent string) ([]DiffLine, error) {
	a, b := splitLines(oldContent), splitLines(newContent)
	if len(a) > maxDiffLines || len(b) > maxDiffLines {
		return nil, errDiffTooLarge
	}

	head := 0
	for head < len(a) && head < len(b) && a[head] == b[head] {
		head++
	}
	tail := 0
	for tail < len(a)-head && tail < len(b)-head && a[len(a)-1-tail] == b[len(b)-1-tail] {
		tail++
	}

	midA, midB := a[head:len(a)-tail], b[head:len(b)-tail]
	m, n := len(midA), len(midB)
	if (m+1)*(n+1) > maxDiffCells {
		return nil, errDiffTooLarge
	}

	out := make([]DiffLine, 0, max(len(a), len(b)))
	for k := 0; k < head; k++ {
		out = append(out, DiffLine{Type: "unchanged", Content: a[k], OldLine: k + 1, NewLine: k + 1})
	}

	// suffix[i*(n+1)+j] is the LCS length of midA[i:] and midB[j:]
	w := n + 1
	suffix := make([]int32, (m+1)*w)
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if midA[i] == midB[j] {
				suffix[i*w+j] = suffix[(i+1)*w+j+1] + 1
			} else {
				suffix[i*w+j] = max(suffix[(i+1)*w+j], suffix[i*w+j+1])
			}
		}
	}

	i, j := 0, 0
	for i < m || j < n {
		switch {
		case i < m && j < n && midA[i] == midB[j]:
			out = append(out, DiffLine{Type: "unchanged", Content: midA[i], OldLine: head + i + 1, NewLine: head + j + 1})
			i++
			j++
		case i < m && (j == n || suffix[(i+1)*w+j] >= suffix[i*w+j+1]):
			out = append(out, DiffLine{Type: "removed", Content: midA[i], OldLine: head + i + 1})
			i++
		default:
			out = append(out, DiffLine{Type: "added", Content: midB[j], NewLine: head + j + 1})
			j++
		}
	}

	for k := 0; k < tail; k++ {
		oldLine, newLine := len(a)-tail+k, len(b)-tail+k
		out = append(out, DiffLine{Type: "unchanged", Content: a[oldLine], OldLine: oldLine + 1, NewLine: newLine + 1})
	}
	return out, nil
}
