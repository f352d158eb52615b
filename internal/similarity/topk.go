package similarity

import "slices"

// Scored is a candidate position with its similarity to the query.
type Scored struct {
	Index int
	Score float64
}

// Rank scores every candidate against query and sorts by score descending.
// The sort is stable so earlier candidates win ties.
func Rank(query []float32, candidates [][]float32) ([]Scored, error) {
	out := make([]Scored, 0, len(candidates))
	for i, c := range candidates {
		s, err := Cosine(query, c)
		if err != nil {
			return nil, err
		}
		out = append(out, Scored{Index: i, Score: s})
	}
	slices.SortStableFunc(out, func(a, b Scored) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	return out, nil
}

// Select walks ranked from the top and stops at the first score below threshold
// or after k accepted entries.
func Select(ranked []Scored, threshold float64, k int) []Scored {
	if k <= 0 {
		return nil
	}
	out := make([]Scored, 0, min(k, len(ranked)))
	for _, s := range ranked {
		if s.Score < threshold || len(out) == k {
			break
		}
		out = append(out, s)
	}
	return out
}
