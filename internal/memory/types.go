// Package memory implements the relevance-ranking and retrieval engine for
// per-user memory records. It covers multi-strategy search, multi-factor
// scoring with dynamic weighting, result merging, clustering, context
// summarization, and session-scoped cleanup. Embedding generation is an
// external collaborator behind the Embedder interface.
package memory

import (
	"context"
	"time"
)

// MemoryType tags a record with the kind of interaction it came from.
type MemoryType string

const (
	MemoryTypeConversation MemoryType = "conversation"
	MemoryTypeQuestion     MemoryType = "question"
	MemoryTypeFact         MemoryType = "fact"
	MemoryTypePreference   MemoryType = "preference"
	MemoryTypeInstruction  MemoryType = "instruction"
)

// Strategy selects the search algorithm.
type Strategy string

const (
	// StrategyHierarchical tries semantic search first and falls back to a
	// keyword merge when it comes up short. This is the default.
	StrategyHierarchical Strategy = "hierarchical"

	// StrategySemantic scores every candidate with the full relevance
	// scorer against the query embedding.
	StrategySemantic Strategy = "semantic"

	// StrategyHybrid always runs semantic and keyword search and merges.
	StrategyHybrid Strategy = "hybrid"

	// StrategyKeyword blends word-overlap with a fuzzy signal.
	StrategyKeyword Strategy = "keyword"

	// StrategyFuzzy uses character-overlap matching only, for typo-tolerant
	// queries.
	StrategyFuzzy Strategy = "fuzzy"
)

// ClusterType selects the clustering algorithm.
type ClusterType string

const (
	ClusterTopic    ClusterType = "topic"
	ClusterTemporal ClusterType = "temporal"
	ClusterSemantic ClusterType = "semantic"
)

// SummaryStyle selects the context summary rendering.
type SummaryStyle string

const (
	SummaryKeyPoints  SummaryStyle = "key_points"
	SummaryNarrative  SummaryStyle = "narrative"
	SummaryStructured SummaryStyle = "structured"
)

// TimeRange restricts search candidates by age.
type TimeRange string

const (
	TimeRangeHour  TimeRange = "hour"
	TimeRangeDay   TimeRange = "day"
	TimeRangeWeek  TimeRange = "week"
	TimeRangeMonth TimeRange = "month"
	TimeRangeAll   TimeRange = "all"
)

// Cutoff returns the earliest CreatedAt admitted by the range, relative to
// now. The second return is false for TimeRangeAll (no cutoff).
func (tr TimeRange) Cutoff(now time.Time) (time.Time, bool) {
	switch tr {
	case TimeRangeHour:
		return now.Add(-time.Hour), true
	case TimeRangeDay:
		return now.Add(-24 * time.Hour), true
	case TimeRangeWeek:
		return now.Add(-7 * 24 * time.Hour), true
	case TimeRangeMonth:
		return now.Add(-30 * 24 * time.Hour), true
	case TimeRangeAll, "":
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// MemoryRecord is the unit being stored, searched, and ranked.
// All fields except Embedding are immutable once stored.
type MemoryRecord struct {
	ID        string         `json:"id"`
	Owner     string         `json:"owner"`
	Content   string         `json:"content"`
	Type      MemoryType     `json:"memory_type"`
	CreatedAt time.Time      `json:"created_at"`
	SessionID string         `json:"session_id,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ScoreBreakdown records the per-factor scores and the weights used for a
// single scoring call. Factor keys: semantic, keyword, recency, frequency,
// interaction.
type ScoreBreakdown struct {
	Factors map[string]float64 `json:"factors"`
	Weights map[string]float64 `json:"weights"`
}

// ScoredMemory is a record plus its relevance for a query. Relevance is a
// weighted sum and is not bounded to [0,1]; Confidence is.
type ScoredMemory struct {
	MemoryRecord
	Relevance  float64         `json:"relevance_score"`
	Confidence float64         `json:"confidence"`
	Breakdown  *ScoreBreakdown `json:"scoring_breakdown,omitempty"`
}

// SearchOptions controls a Search call. Zero values fall back to the
// defaults from DefaultSearchOptions.
type SearchOptions struct {
	Limit         int        `json:"limit"`
	Type          MemoryType `json:"memory_type,omitempty"`
	TimeRange     TimeRange  `json:"time_range,omitempty"`
	SessionID     string     `json:"session_id,omitempty"`
	MinConfidence float64    `json:"min_confidence"`
	Strategy      Strategy   `json:"strategy,omitempty"`

	// OmitMetadata strips record metadata from results. Metadata is
	// included by default.
	OmitMetadata bool `json:"omit_metadata,omitempty"`
}

// DefaultSearchOptions returns the documented search defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Limit:         5,
		TimeRange:     TimeRangeAll,
		MinConfidence: 0.1,
		Strategy:      StrategyHierarchical,
	}
}

// ClusterOptions controls a Cluster call.
type ClusterOptions struct {
	Type                ClusterType `json:"cluster_type,omitempty"`
	MaxClusters         int         `json:"max_clusters"`
	SimilarityThreshold float64     `json:"similarity_threshold"`
}

// DefaultClusterOptions returns the documented clustering defaults.
func DefaultClusterOptions() ClusterOptions {
	return ClusterOptions{
		Type:                ClusterTopic,
		MaxClusters:         5,
		SimilarityThreshold: 0.7,
	}
}

// Cluster is a group of memories judged related by topic, time, or
// (nominally) semantics.
type Cluster struct {
	ID           string         `json:"id"`
	Type         ClusterType    `json:"cluster_type"`
	Members      []ScoredMemory `json:"members"`
	AvgRelevance float64        `json:"avg_relevance"`
}

// SummaryOptions controls a Summarize call.
type SummaryOptions struct {
	Style            SummaryStyle `json:"summary_type,omitempty"`
	IncludeRelevance bool         `json:"include_relevance"`
	GroupByTopic     bool         `json:"group_by_topic"`
}

// SearchResult is the envelope returned to callers. Search never raises
// validation or storage failures across the public interface; it reports
// them here and returns a best-effort (possibly empty) list.
type SearchResult struct {
	Success  bool           `json:"success"`
	Results  []ScoredMemory `json:"results"`
	Strategy Strategy       `json:"strategy"`
	Error    string         `json:"error,omitempty"`
}

// Embedder generates vector embeddings for text. Implementations should use
// a consistent embedding model; search degrades to keyword/fuzzy matching
// whenever embedding fails or no embedder is configured.
type Embedder interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Available reports whether the embedder is ready to use.
	Available() bool
}
