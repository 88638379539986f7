// Package textdiff computes a line-level alignment between two versions of
// a short text. The UI uses it to strike through removed lines and highlight
// added ones after each applied edit.
package textdiff

import "strings"

type Kind int

const (
	Unchanged Kind = iota
	Added
	Removed
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "unchanged"
	}
}

// Line is one output row of the diff: the line content and how it changed.
type Line struct {
	Content string `json:"content"`
	Kind    Kind   `json:"kind"`
}

// Lines diffs before and after line by line. Keeping Unchanged+Added rows
// reconstructs after; keeping Unchanged+Removed rows reconstructs before.
// At each divergence point removals are emitted before additions.
//
// O(m*n) time and space. The inputs here are short paragraphs, not
// documents, so the quadratic table is fine.
func Lines(before, after string) []Line {
	a := splitLines(before)
	b := splitLines(after)

	common := lcs(a, b)

	var out []Line
	i, j := 0, 0
	for _, c := range common {
		for i < len(a) && a[i] != c {
			out = append(out, Line{Content: a[i], Kind: Removed})
			i++
		}
		for j < len(b) && b[j] != c {
			out = append(out, Line{Content: b[j], Kind: Added})
			j++
		}
		out = append(out, Line{Content: c, Kind: Unchanged})
		i++
		j++
	}
	for ; i < len(a); i++ {
		out = append(out, Line{Content: a[i], Kind: Removed})
	}
	for ; j < len(b); j++ {
		out = append(out, Line{Content: b[j], Kind: Added})
	}
	return out
}

// lcs returns the longest common subsequence of a and b via the standard
// dynamic-programming table, backtracking from (m,n) and breaking ties
// toward decreasing the b index.
func lcs(a, b []string) []string {
	m, n := len(a), len(b)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else if dp[i-1][j] >= dp[i][j-1] {
				dp[i][j] = dp[i-1][j]
			} else {
				dp[i][j] = dp[i][j-1]
			}
		}
	}

	seq := make([]string, 0, dp[m][n])
	for i, j := m, n; i > 0 && j > 0; {
		switch {
		case a[i-1] == b[j-1]:
			seq = append(seq, a[i-1])
			i--
			j--
		case dp[i-1][j] > dp[i][j-1]:
			i--
		default:
			// Ties step toward the "after" side.
			j--
		}
	}

	// Reverse into original order.
	for i, j := 0, len(seq)-1; i < j; i, j = i+1, j-1 {
		seq[i], seq[j] = seq[j], seq[i]
	}
	return seq
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
