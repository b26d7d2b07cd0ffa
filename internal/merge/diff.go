package merge

import "strings"

// diffLimit caps the LCS table size; beyond it hunks are not computed
// and the conflict degrades to file_level.
const diffLimit = 2000

// changedRanges computes the line ranges of b that differ from a,
// expressed against a's line numbering so ranges from different
// variants are comparable. Returns ok=false when either side exceeds
// diffLimit.
func changedRanges(a, b string) ([]LineRange, bool) {
	al := strings.Split(a, "\n")
	bl := strings.Split(b, "\n")
	if len(al) > diffLimit || len(bl) > diffLimit {
		return nil, false
	}

	// LCS table over lines.
	n, m := len(al), len(bl)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if al[i] == bl[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	var ranges []LineRange
	open := -1
	i, j := 0, 0
	flush := func(end int) {
		if open >= 0 {
			ranges = append(ranges, LineRange{Start: open, End: end})
			open = -1
		}
	}
	for i < n && j < m {
		switch {
		case al[i] == bl[j]:
			flush(i)
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			// Line i of a deleted.
			if open < 0 {
				open = i
			}
			i++
		default:
			// Line j of b inserted before a's line i.
			if open < 0 {
				open = i
			}
			j++
		}
	}
	if i < n || j < m {
		if open < 0 {
			open = i
		}
		i = n
	}
	flush(i)
	return ranges, true
}

// overlaps reports whether any range in a intersects any range in b.
func overlaps(a, b []LineRange) bool {
	for _, ra := range a {
		for _, rb := range b {
			if ra.Start < rb.End && rb.Start < ra.End {
				return true
			}
		}
	}
	return false
}
