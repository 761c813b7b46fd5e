// Package vector provides the fixed-dimension float vector type and the
// similarity math shared by indexing, search, and pruning.
package vector

import "math"

// Vector is an ordered sequence of float64 components. All vectors that
// participate in one aggregation or similarity computation must share the
// same dimension.
type Vector []float64

// Clone returns an independent copy of v.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b Vector) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm returns the L2 norm of v.
func Norm(v Vector) float64 {
	return math.Sqrt(Dot(v, v))
}

// Cosine returns the cosine similarity of a and b, in [-1, 1].
// Returns 0 if either vector has zero norm.
func Cosine(a, b Vector) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Normalize returns a unit-length copy of v.
// Returns nil and false if v has zero norm.
func Normalize(v Vector) (Vector, bool) {
	n := Norm(v)
	if n == 0 {
		return nil, false
	}
	out := make(Vector, len(v))
	for i := range v {
		out[i] = v[i] / n
	}
	return out, true
}

// Mean returns the arithmetic mean of vecs.
// Returns nil and false if vecs is empty.
func Mean(vecs []Vector) (Vector, bool) {
	if len(vecs) == 0 {
		return nil, false
	}
	out := make(Vector, len(vecs[0]))
	for _, v := range vecs {
		for i := range v {
			out[i] += v[i]
		}
	}
	inv := 1 / float64(len(vecs))
	for i := range out {
		out[i] *= inv
	}
	return out, true
}

// WeightedMean returns sum(w_i * v_i) / sum(w_i).
// Returns nil and false if the inputs are empty or the total weight is zero.
func WeightedMean(vecs []Vector, weights []float64) (Vector, bool) {
	if len(vecs) == 0 || len(vecs) != len(weights) {
		return nil, false
	}
	var total float64
	out := make(Vector, len(vecs[0]))
	for i, v := range vecs {
		w := weights[i]
		total += w
		for j := range v {
			out[j] += w * v[j]
		}
	}
	if total == 0 {
		return nil, false
	}
	for j := range out {
		out[j] /= total
	}
	return out, true
}
