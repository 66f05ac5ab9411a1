package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	c := []float32{0.5, 0.5, 0}

	t.Run("identity", func(t *testing.T) {
		assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9)
	})

	t.Run("symmetry", func(t *testing.T) {
		assert.InDelta(t, CosineSimilarity(a, c), CosineSimilarity(c, a), 1e-9)
	})

	t.Run("orthogonal", func(t *testing.T) {
		assert.InDelta(t, 0.0, CosineSimilarity(a, b), 1e-9)
	})

	t.Run("mismatched dimensions", func(t *testing.T) {
		assert.Equal(t, 0.0, CosineSimilarity(a, []float32{1, 0}))
	})

	t.Run("zero vector", func(t *testing.T) {
		assert.Equal(t, 0.0, CosineSimilarity(a, []float32{0, 0, 0}))
	})
}

func TestFloat32SliceRoundTrip(t *testing.T) {
	original := []float32{0.1, -2.5, 3.75, 0}

	data := Float32SliceToBytes(original)
	require.Len(t, data, len(original)*4)

	decoded := BytesToFloat32Slice(data)
	assert.Equal(t, original, decoded)

	// Truncated payloads are rejected rather than partially decoded.
	assert.Nil(t, BytesToFloat32Slice(data[:5]))
	assert.Nil(t, BytesToFloat32Slice(nil))
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)

	zero := NormalizeVector([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestWordSetJaccard(t *testing.T) {
	assert.InDelta(t, 1.0, WordSetJaccard("go routines", "routines go"), 1e-9)
	assert.InDelta(t, 0.0, WordSetJaccard("apples", "oranges"), 1e-9)
	assert.InDelta(t, 1.0, WordSetJaccard("", ""), 1e-9)
	assert.InDelta(t, 0.0, WordSetJaccard("word", ""), 1e-9)

	// {python, code} vs {python, tips}: 1 shared of 3 distinct.
	assert.InDelta(t, 1.0/3.0, WordSetJaccard("python code", "python tips"), 1e-9)
}

func TestTopKWithScores(t *testing.T) {
	items := []ScoredItem[string]{
		{Item: "low", Score: 0.1},
		{Item: "high", Score: 0.9},
		{Item: "mid", Score: 0.5},
		{Item: "tiny", Score: 0.05},
	}

	top := TopKWithScores(items, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "high", top[0].Item)
	assert.Equal(t, "mid", top[1].Item)

	all := TopKWithScores(items, 10)
	assert.Len(t, all, 4)
	assert.Empty(t, TopKWithScores(items, 0))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 20))

	long := truncateString("this sentence is definitely too long", 20)
	assert.Len(t, long, 20)
	assert.True(t, len(long) <= 20)
	assert.Equal(t, "...", long[len(long)-3:])
}

func TestVariance(t *testing.T) {
	assert.Equal(t, 0.0, variance([]float64{0.5, 0.5, 0.5}))
	assert.InDelta(t, 0.25, variance([]float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, variance(nil))
}
