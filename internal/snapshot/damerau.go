package snapshot

import "strings"

// damerauLevenshtein computes the Damerau-Levenshtein edit distance
// (insertions, deletions, substitutions, and adjacent transpositions)
// between a and b. No third-party Go library in the example corpus
// implements this variant (github.com/agnivade/levenshtein is standard
// Levenshtein only, without transpositions) — see DESIGN.md.
func damerauLevenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	d := make([][]int, la+2)
	for i := range d {
		d[i] = make([]int, lb+2)
	}

	maxDist := la + lb
	d[0][0] = maxDist
	for i := 0; i <= la; i++ {
		d[i+1][0] = maxDist
		d[i+1][1] = i
	}
	for j := 0; j <= lb; j++ {
		d[0][j+1] = maxDist
		d[1][j+1] = j
	}

	lastRow := make(map[rune]int)
	for i := 1; i <= la; i++ {
		lastCol := 0
		for j := 1; j <= lb; j++ {
			i2 := lastRow[rb[j-1]]
			j2 := lastCol
			var cost int
			if ra[i-1] == rb[j-1] {
				cost = 0
				lastCol = j
			} else {
				cost = 1
			}

			del := d[i][j+1] + 1
			ins := d[i+1][j] + 1
			sub := d[i][j] + cost
			trans := d[i2][j2] + (i-i2-1) + 1 + (j-j2-1)

			best := del
			if ins < best {
				best = ins
			}
			if sub < best {
				best = sub
			}
			if trans < best {
				best = trans
			}
			d[i+1][j+1] = best
		}
		lastRow[ra[i-1]] = i
	}

	return d[la+1][lb+1]
}

// similarity normalizes the Damerau-Levenshtein distance into a score in
// [0,1], 1 meaning identical, against the longer of the two strings.
func similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1
	}
	dist := damerauLevenshtein(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// normalizeName lowercases s and strips '-', '_', and space, matching
// the original's crate-name suggestion normalization.
func normalizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch r {
		case '-', '_', ' ':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

const (
	maxNameSuggestions  = 3
	minSuggestionScore  = 0.8
	minSuggestableLen   = 5
)

// suggestNames returns up to maxNameSuggestions names from candidates
// most similar to want, each scoring >= minSuggestionScore, sorted by
// descending similarity. Candidates shorter than minSuggestableLen are
// never suggested (but may still be looked up directly).
func suggestNames(want string, candidates []string) []string {
	normWant := normalizeName(want)

	type scored struct {
		name  string
		score float64
	}
	var matches []scored
	for _, c := range candidates {
		if len([]rune(c)) < minSuggestableLen {
			continue
		}
		score := similarity(normWant, normalizeName(c))
		if score >= minSuggestionScore {
			matches = append(matches, scored{name: c, score: score})
		}
	}

	// simple insertion sort by descending score; candidate lists here are small.
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].score > matches[j-1].score; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}

	if len(matches) > maxNameSuggestions {
		matches = matches[:maxNameSuggestions]
	}

	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.name
	}
	return out
}
