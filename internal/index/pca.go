package index

import (
	"math"

	"github.com/semvault/semvault/internal/vector"
)

const (
	powerIterations = 100
	powerTolerance  = 1e-9
)

// PrincipalComponent computes the dominant principal component of the
// vector set (the first eigenvector of the covariance matrix) via power
// iteration on the mean-centered data. Returns nil when fewer than 2
// vectors are available, where the component is undefined.
//
// SIF common-component removal only needs the top component, so a full
// eigendecomposition is unnecessary; power iteration on X'X(u) avoids
// materializing the DxD covariance matrix.
func PrincipalComponent(vecs []vector.Vector) vector.Vector {
	if len(vecs) < 2 {
		return nil
	}
	dim := len(vecs[0])

	mean, _ := vector.Mean(vecs)
	centered := make([]vector.Vector, len(vecs))
	for i, v := range vecs {
		c := make(vector.Vector, dim)
		for j := range v {
			c[j] = v[j] - mean[j]
		}
		centered[i] = c
	}

	// Deterministic start so rebuilds of the same corpus agree. The
	// uniform vector can be exactly orthogonal to the dominant direction
	// (symmetric data collapses the first iterate to zero), so fall back
	// to the standard basis vectors, in order, before concluding there is
	// no dominant direction at all.
	uniform := make(vector.Vector, dim)
	for j := range uniform {
		uniform[j] = 1 / math.Sqrt(float64(dim))
	}
	if pc, ok := powerIterate(centered, uniform); ok {
		return pc
	}
	for k := 0; k < dim; k++ {
		basis := make(vector.Vector, dim)
		basis[k] = 1
		if pc, ok := powerIterate(centered, basis); ok {
			return pc
		}
	}
	// All centered vectors are zero; no dominant direction.
	return nil
}

// powerIterate runs power iteration from the given start vector. Returns
// false when an iterate collapses to zero, meaning the start was orthogonal
// to every centered vector.
func powerIterate(centered []vector.Vector, start vector.Vector) (vector.Vector, bool) {
	dim := len(start)
	u := start.Clone()
	next := make(vector.Vector, dim)
	for iter := 0; iter < powerIterations; iter++ {
		for j := range next {
			next[j] = 0
		}
		// next = sum_i (x_i . u) x_i, i.e. covariance times u up to scale.
		for _, c := range centered {
			proj := vector.Dot(c, u)
			for j := range c {
				next[j] += proj * c[j]
			}
		}
		norm := vector.Norm(next)
		if norm == 0 {
			return nil, false
		}
		var delta float64
		for j := range next {
			next[j] /= norm
			d := next[j] - u[j]
			delta += d * d
		}
		u, next = next, u
		if delta < powerTolerance {
			break
		}
	}
	return u.Clone(), true
}

// RemoveComponent returns v minus its projection onto the unit component
// pc: v' = v - (v.pc)pc. A nil component leaves v unchanged.
func RemoveComponent(v, pc vector.Vector) vector.Vector {
	if pc == nil || len(pc) != len(v) {
		return v
	}
	proj := vector.Dot(v, pc)
	out := make(vector.Vector, len(v))
	for i := range v {
		out[i] = v[i] - proj*pc[i]
	}
	return out
}
