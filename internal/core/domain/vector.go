package domain

import (
	"fmt"
	"math"
)

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. Zero-length or zero-magnitude inputs score 0.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Centroid returns the arithmetic mean of the given vectors. All vectors must
// share the same dimension; nil is returned for an empty input.
func Centroid(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}

	dim := len(vectors[0])
	sums := make([]float64, dim)
	for _, v := range vectors {
		for i := 0; i < dim && i < len(v); i++ {
			sums[i] += float64(v[i])
		}
	}

	out := make([]float32, dim)
	count := float64(len(vectors))
	for i := range sums {
		out[i] = float32(sums[i] / count)
	}
	return out
}

// CheckDimension enforces the fixed-dimension invariant for vectors entering
// or leaving the index. Mismatches are a hard error, never silently truncated
// or padded.
func CheckDimension(vector []float32, want int) error {
	if len(vector) != want {
		return WrapError(
			ErrDimensionMismatch,
			"check vector dimension",
			fmt.Errorf("got %d, want %d", len(vector), want),
		)
	}
	return nil
}
