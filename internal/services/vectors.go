package services

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// styleAccumulator sums weighted embeddings of a fixed dimension. The first
// embedding added fixes the dimension; mismatched embeddings are ignored.
type styleAccumulator struct {
	sum         []float64
	totalWeight float64
	contributed int
}

func (a *styleAccumulator) add(embedding []float32, weight float64) bool {
	if len(embedding) == 0 || weight == 0 {
		return false
	}
	if a.sum == nil {
		a.sum = make([]float64, len(embedding))
	}
	if len(embedding) != len(a.sum) {
		return false
	}

	floats.AddScaled(a.sum, weight, toFloat64(embedding))
	a.totalWeight += weight
	a.contributed++
	return true
}

// vector returns the L2-normalised accumulation, nil when nothing was added
// and the zero vector when the weights cancel out.
func (a *styleAccumulator) vector() []float32 {
	if a.contributed == 0 {
		return nil
	}
	if a.totalWeight == 0 {
		return make([]float32, len(a.sum))
	}
	out := make([]float64, len(a.sum))
	copy(out, a.sum)
	return toFloat32(normalizeFloat64(out))
}

// BlendVectors mixes a session vector into a profile vector with weight alpha
// on the session. Either input may be nil; the result is nil only when both are.
func BlendVectors(profile, session []float32, alpha float64) []float32 {
	if profile == nil {
		return session
	}
	if session == nil {
		return profile
	}
	if len(profile) != len(session) {
		// Mismatched models: the session reflects the current intent.
		return session
	}

	blended := make([]float64, len(profile))
	floats.AddScaled(blended, alpha, toFloat64(session))
	floats.AddScaled(blended, 1-alpha, toFloat64(profile))
	return toFloat32(normalizeFloat64(blended))
}

// NormalizeVector returns a unit-length copy of v. Zero vectors are returned unchanged.
func NormalizeVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	return toFloat32(normalizeFloat64(toFloat64(v)))
}

// VectorNorm is the Euclidean norm of v, 0 for an empty vector.
func VectorNorm(v []float32) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(toFloat64(v), 2)
}

// CosineSimilarity returns 0 for empty, zero or mismatched vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	af, bf := toFloat64(a), toFloat64(b)
	na, nb := floats.Norm(af, 2), floats.Norm(bf, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(af, bf) / (na * nb)
}

func normalizeFloat64(v []float64) []float64 {
	norm := floats.Norm(v, 2)
	if norm == 0 || math.IsNaN(norm) {
		return v
	}
	floats.Scale(1/norm, v)
	return v
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
