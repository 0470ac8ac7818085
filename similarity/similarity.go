// Package similarity provides the pure vector math used for scoring.
//
// The store precomputes item norms at insert time, so the hot path is
// NormalizedCosine, which avoids recomputing norms per query.
package similarity

import "math"

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm returns the Euclidean length of v.
func Norm(v []float32) float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	return float32(math.Sqrt(float64(sum)))
}

// Cosine calculates the cosine similarity of two vectors.
// Returns 0 when either vector has zero norm.
func Cosine(a, b []float32) float32 {
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return Dot(a, b) / (na * nb)
}

// NormalizedCosine calculates cosine similarity from precomputed norms.
// Returns 0 when either norm is zero.
func NormalizedCosine(a []float32, normA float32, b []float32, normB float32) float32 {
	if normA == 0 || normB == 0 {
		return 0
	}
	return Dot(a, b) / (normA * normB)
}
