package util

import "strings"

// DiffKind classifies one line of a line diff.
type DiffKind int

const (
	DiffSame DiffKind = iota
	DiffDel
	DiffAdd
)

type DiffLine struct {
	Kind DiffKind
	Text string
}

// DiffLines computes a line-level diff of two texts with the classic LCS
// table. Inputs here are prompts, not files, so the quadratic table is fine.
func DiffLines(before, after string) []DiffLine {
	a := splitLines(before)
	b := splitLines(after)
	m, n := len(a), len(b)

	lcs := make([][]int, m+1)
	for i := range lcs {
		lcs[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			switch {
			case a[i] == b[j]:
				lcs[i][j] = lcs[i+1][j+1] + 1
			case lcs[i+1][j] >= lcs[i][j+1]:
				lcs[i][j] = lcs[i+1][j]
			default:
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var out []DiffLine
	i, j := 0, 0
	for i < m && j < n {
		switch {
		case a[i] == b[j]:
			out = append(out, DiffLine{DiffSame, a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			out = append(out, DiffLine{DiffDel, a[i]})
			i++
		default:
			out = append(out, DiffLine{DiffAdd, b[j]})
			j++
		}
	}
	for ; i < m; i++ {
		out = append(out, DiffLine{DiffDel, a[i]})
	}
	for ; j < n; j++ {
		out = append(out, DiffLine{DiffAdd, b[j]})
	}
	return out
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
