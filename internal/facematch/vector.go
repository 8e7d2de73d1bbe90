package facematch

import "math"

// L2Normalize returns a unit-length copy of v. A zero vector is returned unchanged.
func L2Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i := range out {
		out[i] = float32(float64(out[i]) / norm)
	}
	return out
}

// AverageEmbeddings averages vectors elementwise and L2-normalizes the mean.
// Returns nil for an empty input.
func AverageEmbeddings(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	sum := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i := range sum {
			sum[i] += float64(v[i])
		}
	}
	avg := make([]float32, len(sum))
	for i, s := range sum {
		avg[i] = float32(s / float64(len(vectors)))
	}
	return L2Normalize(avg)
}

// CosineSimilarity computes the cosine similarity between two embedding vectors
// Returns a value between -1 and 1, where 1 means identical
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
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

	return max(-1, min(1, dotProduct/(math.Sqrt(normA)*math.Sqrt(normB))))
}

// SimilarityMapping turns a cosine similarity into a confidence score.
// Similarities in [UpperKnee,1] map linearly onto [UpperConfidence,100],
// [LowerKnee,UpperKnee) onto [LowerConfidence,UpperConfidence) and
// [-1,LowerKnee) onto [0,LowerConfidence). Candidates below Floor are excluded.
type SimilarityMapping struct {
	Floor           float64
	UpperKnee       float64
	UpperConfidence float64
	LowerKnee       float64
	LowerConfidence float64
}

// DefaultSimilarityMapping returns the stock mapping: floor -0.70, knees at 0.5 and 0.0.
func DefaultSimilarityMapping() SimilarityMapping {
	return SimilarityMapping{
		Floor:           -0.70,
		UpperKnee:       0.5,
		UpperConfidence: 50,
		LowerKnee:       0,
		LowerConfidence: 10,
	}
}

// Excluded reports whether sim falls below the floor.
func (m SimilarityMapping) Excluded(sim float64) bool {
	return sim < m.Floor
}

// Confidence maps sim to [0,100].
func (m SimilarityMapping) Confidence(sim float64) float64 {
	var c float64
	switch {
	case sim >= m.UpperKnee && m.UpperKnee >= 1:
		c = 100
	case sim >= m.UpperKnee:
		c = m.UpperConfidence + (sim-m.UpperKnee)/(1-m.UpperKnee)*(100-m.UpperConfidence)
	case sim >= m.LowerKnee:
		c = m.LowerConfidence + (sim-m.LowerKnee)/(m.UpperKnee-m.LowerKnee)*(m.UpperConfidence-m.LowerConfidence)
	default:
		c = m.LowerConfidence * (sim + 1) / (m.LowerKnee + 1)
	}
	return clampConfidence(c)
}
