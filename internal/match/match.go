// Package match compares face encodings the way face_recognition does:
// Euclidean distance with a fixed tolerance.
package match

import (
	"math"

	"github.com/andresmejia3/facesift/internal/types"
)

// DefaultTolerance is the distance at or below which two encodings are the same person.
const DefaultTolerance = 0.6

// Distance returns the Euclidean distance between two encodings.
// Encodings of different (or zero) length are infinitely far apart.
func Distance(a, b types.Encoding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Distances returns the distance from candidate to every reference, in order.
func Distances(refs []types.Encoding, candidate types.Encoding) []float64 {
	out := make([]float64, len(refs))
	for i, r := range refs {
		out[i] = Distance(r, candidate)
	}
	return out
}

// Compare reports, per reference, whether candidate is within tolerance.
func Compare(refs []types.Encoding, candidate types.Encoding, tolerance float64) []bool {
	dists := Distances(refs, candidate)
	out := make([]bool, len(dists))
	for i, d := range dists {
		out[i] = d <= tolerance
	}
	return out
}

// Best picks the closest reference and reports whether it is within tolerance.
func Best(refs []types.Encoding, candidate types.Encoding, tolerance float64) types.Decision {
	if len(refs) == 0 {
		return types.Decision{Index: -1, Distance: math.Inf(1)}
	}

	dists := Distances(refs, candidate)
	matches := Compare(refs, candidate, tolerance)

	best := 0
	for i := 1; i < len(dists); i++ {
		if dists[i] < dists[best] {
			best = i
		}
	}
	return types.Decision{Index: best, Distance: dists[best], Matched: matches[best]}
}
