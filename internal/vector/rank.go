package vector

import "sort"

// Scored is one ranked hit. Index refers to the caller's candidate slice.
type Scored struct {
	Index int
	Score float64
}

// Rank scores every candidate vector against query by cosine similarity and
// returns the top k, ordered by descending score. Ties keep the candidates'
// original order, so callers that pass candidates in stable id order get
// deterministic results. Candidates whose dimensionality differs from the
// query are skipped. k <= 0 returns nil.
func Rank(query []float32, candidates [][]float32, k int) []Scored {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	scored := make([]Scored, 0, len(candidates))
	for i, c := range candidates {
		if len(c) != len(query) {
			continue
		}
		scored = append(scored, Scored{Index: i, Score: Cosine(query, c)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
