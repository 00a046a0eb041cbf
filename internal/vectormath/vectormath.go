// Package vectormath holds the similarity primitives shared by the ranker and
// the deduplicator.
package vectormath

import (
	"fmt"
	"math"

	"tagforge/internal/models"
)

// Dot returns the dot product of a and b.
func Dot(a, b models.Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dot product of %d-dim and %d-dim vectors: %w", len(a), len(b), models.ErrDimensionMismatch)
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum, nil
}

// Norm returns the L2 norm of v.
func Norm(v models.Vector) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Cosine returns dot(a,b) / (|a|*|b|). It returns exactly 0 when either norm
// is zero. Callers must still check the result with IsValid because non-finite
// components propagate.
func Cosine(a, b models.Vector) (float64, error) {
	dot, err := Dot(a, b)
	if err != nil {
		return 0, err
	}
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0, nil
	}
	sim := dot / (na * nb)
	// Rounding can push parallel vectors slightly past the unit interval.
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim, nil
}

// Normalize returns v scaled to unit length, or v itself when its norm is zero.
func Normalize(v models.Vector) models.Vector {
	n := Norm(v)
	if n == 0 {
		return v
	}
	out := make(models.Vector, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// Euclidean returns the straight-line distance between a and b.
func Euclidean(a, b models.Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("distance between %d-dim and %d-dim vectors: %w", len(a), len(b), models.ErrDimensionMismatch)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// IsValid reports whether a similarity value can be used: NaN and ±Inf cannot.
func IsValid(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
