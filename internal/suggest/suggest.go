// Package suggest offers "did you mean" candidates for mistyped names.
package suggest

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

type lowerSource []string

func (s lowerSource) String(i int) string { return strings.ToLower(s[i]) }
func (s lowerSource) Len() int            { return len(s) }

// Matches returns the candidates input fuzzily matches, best first.
func Matches(input string, candidates []string) []string {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" || len(candidates) == 0 {
		return nil
	}
	results := fuzzy.FindFrom(input, lowerSource(candidates))
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, candidates[r.Index])
	}
	return out
}

// Closest returns the best candidate for input, or "" when nothing is close.
// A case-insensitive exact match wins, then the best fuzzy match, then the
// nearest candidate by edit distance.
func Closest(input string, candidates []string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	for _, c := range candidates {
		if strings.EqualFold(c, input) {
			return c
		}
	}
	if matches := Matches(input, candidates); len(matches) > 0 {
		return matches[0]
	}

	lower := strings.ToLower(input)
	best, bestDist := "", -1
	for _, c := range candidates {
		d := levenshtein(lower, strings.ToLower(c))
		if d > maxDistance(c) {
			continue
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// maxDistance allows roughly half the candidate's length in edits, capped at 3.
func maxDistance(candidate string) int {
	return min(3, max(1, (len(candidate)+1)/2))
}

func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	row := make([]int, lb+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= la; i++ {
		prev := i - 1
		row[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			val := min(row[j]+1, row[j-1]+1, prev+cost)
			prev = row[j]
			row[j] = val
		}
	}
	return row[lb]
}
