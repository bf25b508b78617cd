package vectorstore

import "math"

// Metric names the native meaning of a backend score
type Metric int

const (
	// MetricCosineSimilarity is in [-1, 1], higher is better
	MetricCosineSimilarity Metric = iota
	// MetricCosineDistance is in [0, 2], lower is better
	MetricCosineDistance
	// MetricL2Distance is in [0, inf), lower is better
	MetricL2Distance
	// MetricLexical is a non-negative relevance such as BM25 or ts_rank, higher is better
	MetricLexical
	// MetricRRF is a reciprocal rank fusion sum in (0, Scale]
	MetricRRF
	// MetricNormalized is already in [0, 1]
	MetricNormalized
)

func (m Metric) String() string {
	switch m {
	case MetricCosineSimilarity:
		return "cosine_similarity"
	case MetricCosineDistance:
		return "cosine_distance"
	case MetricL2Distance:
		return "l2_distance"
	case MetricLexical:
		return "lexical"
	case MetricRRF:
		return "rrf"
	case MetricNormalized:
		return "normalized"
	default:
		return "unknown"
	}
}

// NormalizeScore maps a native score into [0, 1]. The mapping is monotonic:
// a more relevant native score never maps lower.
func NormalizeScore(score float64, m Metric, scale float64) float64 {
	if math.IsNaN(score) {
		return 0
	}
	var s float64
	switch m {
	case MetricCosineSimilarity:
		s = (score + 1) / 2
	case MetricCosineDistance:
		s = 1 - score/2
	case MetricL2Distance:
		s = 1 / (1 + math.Max(score, 0))
	case MetricLexical:
		r := math.Max(score, 0)
		s = r / (r + 1)
	case MetricRRF:
		if scale <= 0 {
			scale = 2 / (DefaultRRFConstant + 1)
		}
		s = score / scale
	default:
		s = score
	}
	return clamp01(s)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// CosineSimilarity computes the cosine similarity between two vectors
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
