package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestKeywordScore(t *testing.T) {
	assert.Equal(t, 1.0, KeywordScore("python code", "I wrote python code today"))
	assert.Equal(t, 0.0, KeywordScore("rust lifetimes", "gardening tips for spring"))
	assert.Equal(t, 0.5, KeywordScore("python tips", "python tutorial"))
	assert.Equal(t, 0.0, KeywordScore("", "anything at all"))
}

func TestRecencyScore(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scorer := NewRelevanceScorerWithClock(fixedClock(now))

	t.Run("fresh memory scores one", func(t *testing.T) {
		assert.InDelta(t, 1.0, scorer.RecencyScore(now), 1e-9)
	})

	t.Run("strictly decreasing with age", func(t *testing.T) {
		prev := scorer.RecencyScore(now)
		for days := 1; days <= 60; days *= 2 {
			score := scorer.RecencyScore(now.AddDate(0, 0, -days))
			assert.Less(t, score, prev, "score at %d days should be below newer score", days)
			assert.Greater(t, score, 0.0)
			prev = score
		}
	})

	t.Run("one day old", func(t *testing.T) {
		assert.InDelta(t, 0.95, scorer.RecencyScore(now.AddDate(0, 0, -1)), 1e-9)
	})

	t.Run("zero timestamp", func(t *testing.T) {
		assert.Equal(t, 0.0, scorer.RecencyScore(time.Time{}))
	})

	t.Run("future timestamp clamps to now", func(t *testing.T) {
		assert.InDelta(t, 1.0, scorer.RecencyScore(now.Add(time.Hour)), 1e-9)
	})
}

func TestFrequencyScore(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scorer := NewRelevanceScorerWithClock(fixedClock(now))

	assert.InDelta(t, 1.0, scorer.FrequencyScore(now), 1e-9)
	assert.InDelta(t, 0.5, scorer.FrequencyScore(now.AddDate(0, 0, -15)), 1e-9)
	assert.Equal(t, 0.0, scorer.FrequencyScore(now.AddDate(0, 0, -45)))
	assert.Equal(t, 0.0, scorer.FrequencyScore(time.Time{}))
}

func TestInteractionScore(t *testing.T) {
	assert.Equal(t, 0.9, InteractionScore(MemoryTypeQuestion))
	assert.Equal(t, 0.8, InteractionScore(MemoryTypePreference))
	assert.Equal(t, 0.8, InteractionScore(MemoryTypeConversation))
	assert.Equal(t, 0.7, InteractionScore(MemoryTypeInstruction))
	assert.Equal(t, 0.6, InteractionScore(MemoryTypeFact))
	assert.Equal(t, DefaultInteractionWeight, InteractionScore(MemoryType("something-else")))
}

func TestDynamicWeights(t *testing.T) {
	sumOf := func(weights map[string]float64) float64 {
		total := 0.0
		for _, w := range weights {
			total += w
		}
		return total
	}

	t.Run("always sums to one", func(t *testing.T) {
		queries := []string{
			"",
			"go",
			"what did I say about python recently",
			"latest news",
			"how often do I mention kubernetes",
			"recent frequent common latest",
		}
		for _, q := range queries {
			assert.InDelta(t, 1.0, sumOf(DynamicWeights(q)), 1e-9, "query %q", q)
		}
	})

	t.Run("short query boosts keyword", func(t *testing.T) {
		short := DynamicWeights("python tips")
		long := DynamicWeights("tell me everything I know about python tips")
		assert.Greater(t, short[FactorKeyword], long[FactorKeyword])
		assert.Less(t, short[FactorSemantic], long[FactorSemantic])
	})

	t.Run("recency cue boosts recency", func(t *testing.T) {
		cued := DynamicWeights("what are my latest project notes")
		plain := DynamicWeights("what are my ongoing project notes")
		assert.Greater(t, cued[FactorRecency], plain[FactorRecency])
	})

	t.Run("frequency cue boosts frequency", func(t *testing.T) {
		cued := DynamicWeights("which topics come up often in my notes")
		plain := DynamicWeights("which topics come up again in my notes")
		assert.Greater(t, cued[FactorFrequency], plain[FactorFrequency])
	})

	t.Run("cue must match as whole word", func(t *testing.T) {
		// "newest" contains "new" as a substring but is not the cue word.
		base := DynamicWeights("describe the newest feature branch work")
		plain := DynamicWeights("describe the feature branch work today")
		assert.InDelta(t, base[FactorRecency], plain[FactorRecency], 1e-9)
	})
}

func TestScore(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scorer := NewRelevanceScorerWithClock(fixedClock(now))

	mem := MemoryRecord{
		ID:        "mem_1",
		Owner:     "alice",
		Content:   "python generators make lazy iteration easy",
		Type:      MemoryTypeFact,
		CreatedAt: now.AddDate(0, 0, -1),
		Embedding: []float32{1, 0, 0},
	}

	relevance, confidence, breakdown := scorer.Score(mem, "python generators lazy iteration explained", []float32{1, 0, 0})

	require.Len(t, breakdown.Factors, 5)
	require.Len(t, breakdown.Weights, 5)

	assert.InDelta(t, 1.0, breakdown.Factors[FactorSemantic], 1e-9)
	assert.InDelta(t, 0.8, breakdown.Factors[FactorKeyword], 1e-9)
	assert.InDelta(t, 0.95, breakdown.Factors[FactorRecency], 1e-9)

	assert.Greater(t, relevance, 0.5)
	assert.GreaterOrEqual(t, confidence, 0.0)
	assert.LessOrEqual(t, confidence, 1.0)
	assert.LessOrEqual(t, confidence, relevance+1e-9)
}

func TestScoreWithoutQueryEmbedding(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	scorer := NewRelevanceScorerWithClock(fixedClock(now))

	mem := MemoryRecord{
		Content:   "coffee preference is espresso",
		Type:      MemoryTypePreference,
		CreatedAt: now,
		Embedding: []float32{1, 0},
	}

	relevance, _, breakdown := scorer.Score(mem, "coffee preference details", nil)
	assert.Equal(t, 0.0, breakdown.Factors[FactorSemantic])
	assert.Greater(t, relevance, 0.0, "lexical and temporal factors still contribute")
}
