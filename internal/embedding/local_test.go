package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoder_Embed_DimensionsAndNormalization(t *testing.T) {
	e := New(64)
	vec := e.Embed("the quick brown fox jumps over the lazy dog")
	require.Len(t, vec, 64)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestEncoder_Embed_Deterministic(t *testing.T) {
	e := New(128)
	a := e.Embed("reschedule the meeting to friday")
	b := e.Embed("reschedule the meeting to friday")
	assert.Equal(t, a, b)
}

func TestEncoder_Embed_EmptyTextIsZeroVector(t *testing.T) {
	e := New(32)
	vec := e.Embed("   ")
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestEncoder_Embed_SimilarTextsAreCloser(t *testing.T) {
	e := New(256)
	a := e.Embed("the cat sat on the mat")
	b := e.Embed("the cat sat on the rug")
	c := e.Embed("quantum chromodynamics describes the strong force")

	cosine := func(x, y []float32) float64 {
		var dot float64
		for i := range x {
			dot += float64(x[i]) * float64(y[i])
		}
		return dot
	}

	assert.Greater(t, cosine(a, b), cosine(a, c))
}

func TestNew_NonPositiveDimensionsFallsBackToDefault(t *testing.T) {
	e := New(0)
	assert.Equal(t, DefaultDimensions, e.Dimensions)
	e = New(-5)
	assert.Equal(t, DefaultDimensions, e.Dimensions)
}
