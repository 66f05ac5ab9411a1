package memory

import (
	"github.com/rs/zerolog/log"
)

// Weights for the keyword strategy's blended score.
const (
	keywordBlendWeight = 0.7
	fuzzyBlendWeight   = 0.3
)

// searchSemantic scores every candidate with the full relevance scorer
// against the query embedding and keeps those whose confidence clears
// minConfidence. Results are sorted descending and capped at limit.
func (s *Service) searchSemantic(candidates []MemoryRecord, query string, queryEmb []float32, limit int, threshold float64) []ScoredMemory {
	scored := make([]ScoredItem[ScoredMemory], 0, len(candidates))

	for _, m := range candidates {
		relevance, confidence, breakdown := s.scorer.Score(m, query, queryEmb)
		if confidence < threshold {
			continue
		}
		bd := breakdown
		scored = append(scored, ScoredItem[ScoredMemory]{
			Item: ScoredMemory{
				MemoryRecord: m,
				Relevance:    relevance,
				Confidence:   confidence,
				Breakdown:    &bd,
			},
			Score: relevance,
		})
	}

	return unwrapScored(TopKWithScores(scored, limit))
}

// searchKeyword blends word-overlap with a fuzzy signal. No embedding is
// required, so this path always works.
func (s *Service) searchKeyword(candidates []MemoryRecord, query string, limit int, threshold float64) []ScoredMemory {
	scored := make([]ScoredItem[ScoredMemory], 0, len(candidates))

	for _, m := range candidates {
		combined := keywordBlendWeight*KeywordScore(query, m.Content) + fuzzyBlendWeight*FuzzyScore(query, m.Content)
		if combined < threshold {
			continue
		}
		scored = append(scored, ScoredItem[ScoredMemory]{
			Item: ScoredMemory{
				MemoryRecord: m,
				Relevance:    combined,
				Confidence:   clamp01(combined),
			},
			Score: combined,
		})
	}

	return unwrapScored(TopKWithScores(scored, limit))
}

// searchFuzzy uses the fuzzy match score alone, for typo-tolerant queries.
func (s *Service) searchFuzzy(candidates []MemoryRecord, query string, limit int, threshold float64) []ScoredMemory {
	scored := make([]ScoredItem[ScoredMemory], 0, len(candidates))

	for _, m := range candidates {
		score := FuzzyScore(query, m.Content)
		if score < threshold {
			continue
		}
		scored = append(scored, ScoredItem[ScoredMemory]{
			Item: ScoredMemory{
				MemoryRecord: m,
				Relevance:    score,
				Confidence:   clamp01(score),
			},
			Score: score,
		})
	}

	return unwrapScored(TopKWithScores(scored, limit))
}

// searchHierarchical runs semantic search at 2x the requested limit and
// returns its top slice when it fills the request. When semantic results
// are thin, or no query embedding is available at all, it widens with a
// keyword pass and merges.
func (s *Service) searchHierarchical(candidates []MemoryRecord, query string, queryEmb []float32, limit int, threshold float64) []ScoredMemory {
	if len(queryEmb) == 0 {
		log.Debug().Str("query", truncateString(query, 50)).Msg("no query embedding, hierarchical search using keyword pass only")
		return s.searchKeyword(candidates, query, limit, threshold)
	}

	semantic := s.searchSemantic(candidates, query, queryEmb, 2*limit, threshold)
	if len(semantic) >= limit {
		return semantic[:limit]
	}

	keyword := s.searchKeyword(candidates, query, 2*limit, threshold)
	merged := CombineResults(semantic, keyword)
	return topByRelevance(merged, limit)
}

// searchHybrid always runs both passes and merges, trading latency for
// recall.
func (s *Service) searchHybrid(candidates []MemoryRecord, query string, queryEmb []float32, limit int, threshold float64) []ScoredMemory {
	var semantic []ScoredMemory
	if len(queryEmb) > 0 {
		semantic = s.searchSemantic(candidates, query, queryEmb, limit, threshold)
	}
	keyword := s.searchKeyword(candidates, query, limit, threshold)

	merged := CombineResults(semantic, keyword)
	return topByRelevance(merged, limit)
}

// CombineResults merges two ranked lists, deduplicating by memory identity
// and keeping the higher-scoring entry for duplicates. Output preserves
// insertion order of the merged map and is NOT re-sorted; callers that
// rely on strict ranking must re-sort after combining.
func CombineResults(a, b []ScoredMemory) []ScoredMemory {
	seen := make(map[string]int, len(a)+len(b))
	merged := make([]ScoredMemory, 0, len(a)+len(b))

	for _, lists := range [][]ScoredMemory{a, b} {
		for _, sm := range lists {
			idx, ok := seen[sm.ID]
			if !ok {
				seen[sm.ID] = len(merged)
				merged = append(merged, sm)
				continue
			}
			if sm.Relevance > merged[idx].Relevance {
				merged[idx] = sm
			}
		}
	}

	return merged
}

// topByRelevance re-sorts a merged list and keeps the top limit entries.
func topByRelevance(results []ScoredMemory, limit int) []ScoredMemory {
	scored := make([]ScoredItem[ScoredMemory], len(results))
	for i, sm := range results {
		scored[i] = ScoredItem[ScoredMemory]{Item: sm, Score: sm.Relevance}
	}
	return unwrapScored(TopKWithScores(scored, limit))
}

func unwrapScored(items []ScoredItem[ScoredMemory]) []ScoredMemory {
	result := make([]ScoredMemory, len(items))
	for i, it := range items {
		result[i] = it.Item
	}
	return result
}
