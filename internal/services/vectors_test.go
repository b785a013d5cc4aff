package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlendVectors(t *testing.T) {
	t.Run("weighted and normalised", func(t *testing.T) {
		blended := BlendVectors([]float32{1, 0}, []float32{0, 1}, 0.7)
		require.Len(t, blended, 2)

		norm := math.Sqrt(0.3*0.3 + 0.7*0.7)
		assert.InDelta(t, 0.3/norm, blended[0], 1e-6)
		assert.InDelta(t, 0.7/norm, blended[1], 1e-6)
		assert.InDelta(t, 1.0, VectorNorm(blended), 1e-6)
	})

	t.Run("missing inputs", func(t *testing.T) {
		profile := []float32{1, 0}
		session := []float32{0, 1}
		assert.Equal(t, profile, BlendVectors(profile, nil, 0.7))
		assert.Equal(t, session, BlendVectors(nil, session, 0.7))
		assert.Nil(t, BlendVectors(nil, nil, 0.7))
	})

	t.Run("mismatched dimensions keep the session", func(t *testing.T) {
		session := []float32{0, 0, 1}
		assert.Equal(t, session, BlendVectors([]float32{1, 0}, session, 0.7))
	})
}

func TestStyleAccumulator(t *testing.T) {
	t.Run("ignores mismatched dimensions", func(t *testing.T) {
		var acc styleAccumulator
		assert.True(t, acc.add([]float32{1, 0}, 1))
		assert.True(t, acc.add([]float32{0, 1}, 1))
		assert.False(t, acc.add([]float32{1, 0, 0}, 5))
		assert.False(t, acc.add([]float32{1, 0}, 0))

		v := acc.vector()
		require.Len(t, v, 2)
		assert.InDelta(t, math.Sqrt2/2, v[0], 1e-6)
		assert.InDelta(t, math.Sqrt2/2, v[1], 1e-6)
	})

	t.Run("cancelling weights give a zero vector", func(t *testing.T) {
		var acc styleAccumulator
		acc.add([]float32{1, 0}, 1)
		acc.add([]float32{1, 0}, -1)
		assert.Equal(t, []float32{0, 0}, acc.vector())
	})

	t.Run("empty", func(t *testing.T) {
		var acc styleAccumulator
		assert.Nil(t, acc.vector())
	})
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, math.Sqrt2/2, CosineSimilarity([]float32{1, 0}, []float32{1, 1}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-2, 0}), 1e-6)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 0}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func TestNormalizeVector(t *testing.T) {
	assert.Nil(t, NormalizeVector(nil))
	assert.Equal(t, []float32{0, 0}, NormalizeVector([]float32{0, 0}))

	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
}
