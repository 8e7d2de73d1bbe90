package facematch

import (
	"image"
	"math"

	"github.com/kozaktomas/attendance-tracker/internal/constants"
)

// ComputeHistogram returns the 256-bin intensity histogram of img,
// min-max normalized to [0,1].
func ComputeHistogram(img image.Image) []float32 {
	hist := make([]float32, constants.HistogramBins)
	for _, v := range luma(img) {
		hist[v]++
	}
	return normalizeMinMax(hist)
}

// normalizeMinMax rescales h in place so its minimum is 0 and maximum is 1.
// A flat histogram becomes all zeros.
func normalizeMinMax(h []float32) []float32 {
	if len(h) == 0 {
		return h
	}
	lo, hi := h[0], h[0]
	for _, v := range h[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	span := hi - lo
	for i := range h {
		if span == 0 {
			h[i] = 0
			continue
		}
		h[i] = (h[i] - lo) / span
	}
	return h
}

// AverageHistograms averages histograms elementwise and renormalizes the
// result to [0,1]. Returns nil for an empty input.
func AverageHistograms(hists [][]float32) []float32 {
	if len(hists) == 0 {
		return nil
	}
	sum := make([]float64, len(hists[0]))
	for _, h := range hists {
		for i := range sum {
			sum[i] += float64(h[i])
		}
	}
	avg := make([]float32, len(sum))
	for i, v := range sum {
		avg[i] = float32(v / float64(len(hists)))
	}
	return normalizeMinMax(avg)
}

// Correlation computes the Pearson correlation of two histograms in [-1,1].
// Mismatched lengths and zero-variance inputs correlate as 0.
func Correlation(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	n := float64(len(a))
	var meanA, meanB float64
	for i := range a {
		meanA += float64(a[i])
		meanB += float64(b[i])
	}
	meanA /= n
	meanB /= n

	var cov, varA, varB float64
	for i := range a {
		da := float64(a[i]) - meanA
		db := float64(b[i]) - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return max(-1, min(1, cov/math.Sqrt(varA*varB)))
}

// HistogramConfidence maps a correlation in [-1,1] to a confidence in [0,100].
func HistogramConfidence(corr float64) float64 {
	return clampConfidence((corr + 1) * 50)
}

func clampConfidence(c float64) float64 {
	return max(0, min(100, c))
}
