package vectorstore

import "sort"

// DefaultRRFConstant is the k value for Reciprocal Rank Fusion
const DefaultRRFConstant = 60.0

// FuseRRF combines ranked lists with Reciprocal Rank Fusion:
// score(d) = sum over lists of 1/(k + rank(d)), rank starting at 1.
// The returned set has Metric MetricRRF and Scale len(lists)/(k+1), the score
// of a chunk ranked first everywhere.
func FuseRRF(k float64, lists ...[]Hit) HitSet {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	scores := make(map[string]float64)
	chunks := make(map[string]Hit)
	order := make([]string, 0)
	for _, list := range lists {
		for rank, h := range list {
			id := h.Chunk.ID
			if _, seen := chunks[id]; !seen {
				chunks[id] = h
				order = append(order, id)
			}
			scores[id] += 1.0 / (k + float64(rank+1))
		}
	}

	hits := make([]Hit, len(order))
	for i, id := range order {
		hits[i] = Hit{Chunk: chunks[id].Chunk, Score: scores[id]}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	return HitSet{
		Hits:   hits,
		Metric: MetricRRF,
		Scale:  float64(len(lists)) / (k + 1),
	}
}
