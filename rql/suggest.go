package rql

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Suggest returns the closest vocabulary entry to input. A unique prefix match
// wins; otherwise the entry with the smallest edit distance is returned when
// that distance is small relative to the input length.
func Suggest(input string, vocab []string) (string, bool) {
	out := SuggestN(input, vocab, 1)
	if len(out) == 0 {
		return "", false
	}
	return out[0], true
}

// SuggestN returns up to n suggestions, best first.
func SuggestN(input string, vocab []string, n int) []string {
	in := strings.ToLower(strings.TrimSpace(input))
	if in == "" || n <= 0 {
		return nil
	}

	type candidate struct {
		word  string
		score int
	}
	var cands []candidate
	limit := maxDistance(in)
	for _, w := range vocab {
		lw := strings.ToLower(w)
		if lw == in {
			continue
		}
		switch {
		case strings.HasPrefix(lw, in):
			cands = append(cands, candidate{w, -1})
		default:
			if d := levenshtein.ComputeDistance(in, lw); d <= limit {
				cands = append(cands, candidate{w, d})
			}
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score < cands[j].score
		}
		return len(cands[i].word) < len(cands[j].word)
	})

	if len(cands) > n {
		cands = cands[:n]
	}
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.word
	}
	return out
}

// CompletePrefix returns the vocabulary entries starting with prefix, in
// vocabulary order. Matching is case-insensitive.
func CompletePrefix(prefix string, vocab []string) []string {
	p := strings.ToLower(prefix)
	var out []string
	for _, w := range vocab {
		if strings.HasPrefix(strings.ToLower(w), p) {
			out = append(out, w)
		}
	}
	return out
}

func maxDistance(s string) int {
	switch n := len(s); {
	case n <= 3:
		return 1
	case n <= 6:
		return 2
	default:
		return 3
	}
}
