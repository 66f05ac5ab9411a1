package memory

import (
	"math"
	"time"
)

// Factor names used in score breakdowns and weight maps.
const (
	FactorSemantic    = "semantic"
	FactorKeyword     = "keyword"
	FactorRecency     = "recency"
	FactorFrequency   = "frequency"
	FactorInteraction = "interaction"
)

// Base factor weights before query-dependent adjustment.
const (
	BaseWeightSemantic    = 0.40
	BaseWeightKeyword     = 0.25
	BaseWeightRecency     = 0.20
	BaseWeightFrequency   = 0.10
	BaseWeightInteraction = 0.05
)

// RecencyDecayRate is the per-day multiplier for the recency factor.
const RecencyDecayRate = 0.95

// FrequencyHorizonDays is the linear-decay horizon for the frequency proxy.
// There is no real access log; age decay stands in for access frequency.
const FrequencyHorizonDays = 30

// interactionWeights maps memory types to an assumed engagement value.
var interactionWeights = map[MemoryType]float64{
	MemoryTypeQuestion:     0.9,
	MemoryTypePreference:   0.8,
	MemoryTypeConversation: 0.8,
	MemoryTypeInstruction:  0.7,
	MemoryTypeFact:         0.6,
}

// DefaultInteractionWeight is the engagement value for unknown memory types.
const DefaultInteractionWeight = 0.5

// RelevanceScorer computes multi-factor relevance for (memory, query) pairs.
// Five factor scores are each normalized to [0,1], combined by dynamically
// adjusted weights that always sum to 1.0. The weighted sum itself can
// exceed 1.0 only through floating error; it is left unclamped by contract.
type RelevanceScorer struct {
	now func() time.Time
}

// NewRelevanceScorer creates a scorer using the wall clock.
func NewRelevanceScorer() *RelevanceScorer {
	return &RelevanceScorer{now: time.Now}
}

// NewRelevanceScorerWithClock creates a scorer with an injected clock,
// used by tests and by callers that need reproducible recency scoring.
func NewRelevanceScorerWithClock(now func() time.Time) *RelevanceScorer {
	if now == nil {
		now = time.Now
	}
	return &RelevanceScorer{now: now}
}

// Score computes the relevance, confidence, and per-factor breakdown for a
// (memory, query) pair. queryEmb may be nil; the semantic factor then
// scores 0 rather than failing. A bad record never produces an error here,
// only degraded factor scores.
func (s *RelevanceScorer) Score(m MemoryRecord, query string, queryEmb []float32) (float64, float64, ScoreBreakdown) {
	factors := map[string]float64{
		FactorSemantic:    SemanticScore(queryEmb, m.Embedding),
		FactorKeyword:     KeywordScore(query, m.Content),
		FactorRecency:     s.RecencyScore(m.CreatedAt),
		FactorFrequency:   s.FrequencyScore(m.CreatedAt),
		FactorInteraction: InteractionScore(m.Type),
	}

	weights := DynamicWeights(query)

	relevance := 0.0
	values := make([]float64, 0, len(factors))
	for name, score := range factors {
		relevance += score * weights[name]
		values = append(values, score)
	}

	// Confidence drops when the factor scores disagree with each other,
	// independent of their magnitude.
	confidence := clamp01(relevance * (1 - variance(values)))

	return relevance, confidence, ScoreBreakdown{Factors: factors, Weights: weights}
}

// SemanticScore is the cosine similarity between query and memory
// embeddings, clamped to [0,1]. Missing embeddings score 0.
func SemanticScore(queryEmb, memEmb []float32) float64 {
	if len(queryEmb) == 0 || len(memEmb) == 0 {
		return 0
	}
	return clamp01(CosineSimilarity(queryEmb, memEmb))
}

// KeywordScore is the fraction of distinct query words that appear in the
// memory text. A query with no words scores 0.
func KeywordScore(query, content string) float64 {
	queryWords := WordSet(query)
	if len(queryWords) == 0 {
		return 0
	}
	contentWords := WordSet(content)

	matched := 0
	for w := range queryWords {
		if _, ok := contentWords[w]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryWords))
}

// RecencyScore decays exponentially with age: 0.95^days. A record with no
// usable timestamp scores 0.
func (s *RelevanceScorer) RecencyScore(createdAt time.Time) float64 {
	if createdAt.IsZero() {
		return 0
	}
	days := s.now().Sub(createdAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	return clamp01(math.Pow(RecencyDecayRate, days))
}

// FrequencyScore decays linearly to 0 over a 30-day horizon. This is a
// stand-in for true access-frequency tracking.
func (s *RelevanceScorer) FrequencyScore(createdAt time.Time) float64 {
	if createdAt.IsZero() {
		return 0
	}
	days := s.now().Sub(createdAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	score := 1 - days/FrequencyHorizonDays
	if score < 0 {
		return 0
	}
	return score
}

// InteractionScore is a static lookup of assumed engagement by memory type.
func InteractionScore(t MemoryType) float64 {
	if w, ok := interactionWeights[t]; ok {
		return w
	}
	return DefaultInteractionWeight
}

// recencyCues and frequencyCues trigger weight shifts when present in the
// query as whole words.
var (
	recencyCues   = []string{"recent", "latest", "new"}
	frequencyCues = []string{"often", "frequent", "common"}
)

// DynamicWeights derives factor weights for a query from the base weights.
// Three adjustment rules apply in order, each followed by renormalization
// so the weights always sum to exactly 1.0:
//
//  1. short queries (≤2 words) lean on keyword over semantic matching
//  2. recency cue words shift weight from semantic to recency
//  3. frequency cue words shift weight from recency to frequency
func DynamicWeights(query string) map[string]float64 {
	weights := map[string]float64{
		FactorSemantic:    BaseWeightSemantic,
		FactorKeyword:     BaseWeightKeyword,
		FactorRecency:     BaseWeightRecency,
		FactorFrequency:   BaseWeightFrequency,
		FactorInteraction: BaseWeightInteraction,
	}

	words := Tokenize(query)

	if len(words) <= 2 {
		weights[FactorKeyword] += 0.10
		weights[FactorSemantic] -= 0.10
		renormalize(weights)
	}

	if containsAny(words, recencyCues) {
		weights[FactorRecency] += 0.10
		weights[FactorSemantic] -= 0.10
		renormalize(weights)
	}

	if containsAny(words, frequencyCues) {
		weights[FactorFrequency] += 0.10
		weights[FactorRecency] -= 0.10
		renormalize(weights)
	}

	return weights
}

func containsAny(words []string, cues []string) bool {
	for _, w := range words {
		for _, c := range cues {
			if w == c {
				return true
			}
		}
	}
	return false
}

func renormalize(weights map[string]float64) {
	sum := 0.0
	for _, w := range weights {
		if w < 0 {
			w = 0
		}
		sum += w
	}
	if sum == 0 {
		return
	}
	for name, w := range weights {
		if w < 0 {
			w = 0
		}
		weights[name] = w / sum
	}
}
