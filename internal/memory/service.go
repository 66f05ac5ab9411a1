package memory

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service is the retrieval engine's public surface: search, scoring,
// clustering, summarization, session partitioning, and the small set of
// write operations the surrounding pipeline needs (add, delete, clear,
// embedding update).
//
// The embedder is optional. Every path that wants a query embedding
// degrades to keyword/fuzzy matching when embedding is unavailable or
// fails; a provider failure is logged, never surfaced.
type Service struct {
	repo     Repository
	embedder Embedder
	scorer   *RelevanceScorer
	now      func() time.Time
	metrics  *SearchMetrics
}

// SearchMetrics tracks retrieval behavior over the service lifetime.
type SearchMetrics struct {
	TotalSearches int64   // Searches attempted
	Hits          int64   // Searches returning at least one result
	Misses        int64   // Searches returning nothing
	Fallbacks     int64   // Searches that ran without a query embedding
	AvgLatencyMs  float64 // Rolling average latency
	latencySum    int64
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithClock injects the time source used for recency scoring and time-range
// filtering.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
			s.scorer = NewRelevanceScorerWithClock(now)
		}
	}
}

// WithEmbedder attaches an embedding provider.
func WithEmbedder(e Embedder) ServiceOption {
	return func(s *Service) { s.embedder = e }
}

// NewService creates the engine over an injected repository.
func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{
		repo:    repo,
		now:     time.Now,
		scorer:  NewRelevanceScorer(),
		metrics: &SearchMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search retrieves the most relevant memories for a query. It always
// returns a result envelope: contract violations (missing owner or query,
// uninitialized store, unknown strategy) flip the Success flag, and partial
// failures inside scoring degrade per-record instead of failing the call.
func (s *Service) Search(ctx context.Context, owner, query string, opts SearchOptions) SearchResult {
	opts = s.normalizeOptions(opts)
	result := SearchResult{Strategy: opts.Strategy}

	if strings.TrimSpace(owner) == "" {
		result.Error = "owner is required"
		return result
	}
	if strings.TrimSpace(query) == "" {
		result.Error = "query is required"
		return result
	}
	if s.repo == nil {
		result.Error = ErrNotInitialized.Error()
		return result
	}

	start := s.now()
	atomic.AddInt64(&s.metrics.TotalSearches, 1)

	filter := RecordFilter{Owner: owner, Type: opts.Type, SessionID: opts.SessionID}
	if cutoff, ok := opts.TimeRange.Cutoff(s.now()); ok {
		filter.Since = cutoff
	}

	candidates, err := s.repo.List(ctx, filter)
	if err != nil {
		log.Error().Err(err).Str("owner", owner).Msg("candidate fetch failed")
		result.Error = err.Error()
		return result
	}

	// One query embedding per search, reused across all candidates.
	var queryEmb []float32
	switch opts.Strategy {
	case StrategySemantic, StrategyHierarchical, StrategyHybrid:
		queryEmb = s.embedQuery(ctx, query)
		if queryEmb == nil {
			atomic.AddInt64(&s.metrics.Fallbacks, 1)
		}
	case StrategyKeyword, StrategyFuzzy:
		// No embedding needed.
	default:
		result.Error = fmt.Sprintf("unknown search strategy: %q", opts.Strategy)
		return result
	}

	var results []ScoredMemory
	switch opts.Strategy {
	case StrategySemantic:
		if queryEmb == nil {
			// Provider unavailable: degrade to the keyword path.
			results = s.searchKeyword(candidates, query, opts.Limit, opts.MinConfidence)
		} else {
			results = s.searchSemantic(candidates, query, queryEmb, opts.Limit, opts.MinConfidence)
		}
	case StrategyKeyword:
		results = s.searchKeyword(candidates, query, opts.Limit, opts.MinConfidence)
	case StrategyFuzzy:
		results = s.searchFuzzy(candidates, query, opts.Limit, opts.MinConfidence)
	case StrategyHierarchical:
		results = s.searchHierarchical(candidates, query, queryEmb, opts.Limit, opts.MinConfidence)
	case StrategyHybrid:
		results = s.searchHybrid(candidates, query, queryEmb, opts.Limit, opts.MinConfidence)
	}

	if opts.OmitMetadata {
		for i := range results {
			results[i].Metadata = nil
		}
	}

	latencyMs := s.now().Sub(start).Milliseconds()
	s.updateLatency(latencyMs)
	if len(results) > 0 {
		atomic.AddInt64(&s.metrics.Hits, 1)
	} else {
		atomic.AddInt64(&s.metrics.Misses, 1)
	}

	log.Debug().
		Str("owner", owner).
		Str("query", truncateString(query, 50)).
		Str("strategy", string(opts.Strategy)).
		Int("candidates", len(candidates)).
		Int("results", len(results)).
		Int64("latency_ms", latencyMs).
		Msg("memory search completed")

	result.Success = true
	result.Results = results
	return result
}

// Score computes relevance for a single (memory, query) pair. The query
// embedding is fetched best-effort; on provider failure the semantic factor
// is simply 0.
func (s *Service) Score(ctx context.Context, m MemoryRecord, query string) ScoredMemory {
	queryEmb := s.embedQuery(ctx, query)
	relevance, confidence, breakdown := s.scorer.Score(m, query, queryEmb)
	bd := breakdown
	return ScoredMemory{
		MemoryRecord: m,
		Relevance:    relevance,
		Confidence:   confidence,
		Breakdown:    &bd,
	}
}

// Cluster groups memories by topic, time, or (nominally) semantics. When
// memories is nil, the owner's full record set is loaded and clustered.
func (s *Service) Cluster(ctx context.Context, owner string, memories []ScoredMemory, opts ClusterOptions) ([]Cluster, error) {
	if memories == nil {
		if s.repo == nil {
			return nil, ErrNotInitialized
		}
		if strings.TrimSpace(owner) == "" {
			return nil, fmt.Errorf("%w: owner is required", ErrValidation)
		}
		records, err := s.repo.List(ctx, RecordFilter{Owner: owner})
		if err != nil {
			return nil, fmt.Errorf("load memories: %w", err)
		}
		memories = make([]ScoredMemory, len(records))
		for i, r := range records {
			memories[i] = ScoredMemory{MemoryRecord: r}
		}
	}

	return ClusterMemories(memories, opts)
}

// Summarize renders a ranked memory list into a bounded context block.
func (s *Service) Summarize(memories []ScoredMemory, query string, maxLength int, opts SummaryOptions) (string, error) {
	return SummarizeMemories(memories, query, maxLength, opts)
}

// Add creates and stores a record for the owner. The embedding is computed
// best-effort at creation; a provider failure leaves it unset, to be filled
// in later via UpdateEmbedding.
func (s *Service) Add(ctx context.Context, owner, content string, memType MemoryType, sessionID string, metadata map[string]any) (MemoryRecord, error) {
	if s.repo == nil {
		return MemoryRecord{}, ErrNotInitialized
	}
	if strings.TrimSpace(owner) == "" || strings.TrimSpace(content) == "" {
		return MemoryRecord{}, fmt.Errorf("%w: owner and content are required", ErrValidation)
	}
	if memType == "" {
		memType = MemoryTypeConversation
	}

	rec := MemoryRecord{
		ID:        fmt.Sprintf("mem_%s", uuid.New().String()),
		Owner:     owner,
		Content:   content,
		Type:      memType,
		CreatedAt: s.now(),
		SessionID: sessionID,
		Metadata:  metadata,
		Embedding: s.embedQuery(ctx, content),
	}

	if err := s.repo.Insert(ctx, rec); err != nil {
		return MemoryRecord{}, err
	}
	return rec, nil
}

// Delete removes one record.
func (s *Service) Delete(ctx context.Context, owner, id string) error {
	if s.repo == nil {
		return ErrNotInitialized
	}
	return s.repo.Delete(ctx, owner, id)
}

// Clear removes all of an owner's records and returns the count.
func (s *Service) Clear(ctx context.Context, owner string) (int, error) {
	if s.repo == nil {
		return 0, ErrNotInitialized
	}
	return s.repo.ClearOwner(ctx, owner)
}

// GetSessionMemories returns an owner's records for one session, keeping
// the newest limit entries in storage order.
func (s *Service) GetSessionMemories(ctx context.Context, owner, sessionID string, limit int, memType MemoryType) ([]MemoryRecord, error) {
	if s.repo == nil {
		return nil, ErrNotInitialized
	}
	if strings.TrimSpace(owner) == "" || strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: owner and session id are required", ErrValidation)
	}

	records, err := s.repo.List(ctx, RecordFilter{Owner: owner, SessionID: sessionID, Type: memType})
	if err != nil {
		return nil, err
	}

	// Newest-limit applied last: keep the tail in storage order.
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// CleanupSession removes the session's records across every owner and
// returns the total removed. Sessions are globally unique, so bounding the
// delete by session id alone is deliberate.
func (s *Service) CleanupSession(ctx context.Context, sessionID string) (int, error) {
	if s.repo == nil {
		return 0, ErrNotInitialized
	}
	return s.repo.DeleteSession(ctx, sessionID)
}

// UpdateEmbedding replaces one record's embedding in place and reports
// whether the record existed.
func (s *Service) UpdateEmbedding(ctx context.Context, owner, id string, embedding []float32) (bool, error) {
	if s.repo == nil {
		return false, ErrNotInitialized
	}
	return s.repo.UpdateEmbedding(ctx, owner, id, embedding)
}

// Stats reports store-wide counters.
func (s *Service) Stats(ctx context.Context) (StoreStats, error) {
	if s.repo == nil {
		return StoreStats{}, ErrNotInitialized
	}
	return s.repo.Stats(ctx)
}

// Metrics returns a snapshot of the service's retrieval counters.
func (s *Service) Metrics() SearchMetrics {
	return SearchMetrics{
		TotalSearches: atomic.LoadInt64(&s.metrics.TotalSearches),
		Hits:          atomic.LoadInt64(&s.metrics.Hits),
		Misses:        atomic.LoadInt64(&s.metrics.Misses),
		Fallbacks:     atomic.LoadInt64(&s.metrics.Fallbacks),
		AvgLatencyMs:  s.metrics.AvgLatencyMs,
	}
}

// embedQuery fetches an embedding best-effort: nil when no embedder is
// configured, it reports itself unavailable, or the call fails.
func (s *Service) embedQuery(ctx context.Context, text string) []float32 {
	if s.embedder == nil || !s.embedder.Available() {
		return nil
	}
	emb, err := s.embedder.Embed(ctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("embedding failed, falling back to lexical matching")
		return nil
	}
	return emb
}

func (s *Service) normalizeOptions(opts SearchOptions) SearchOptions {
	defaults := DefaultSearchOptions()
	if opts.Limit <= 0 {
		opts.Limit = defaults.Limit
	}
	if opts.TimeRange == "" {
		opts.TimeRange = defaults.TimeRange
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = defaults.MinConfidence
	}
	if opts.Strategy == "" {
		opts.Strategy = defaults.Strategy
	}
	return opts
}

func (s *Service) updateLatency(latencyMs int64) {
	atomic.AddInt64(&s.metrics.latencySum, latencyMs)
	total := atomic.LoadInt64(&s.metrics.TotalSearches)
	if total > 0 {
		s.metrics.AvgLatencyMs = float64(atomic.LoadInt64(&s.metrics.latencySum)) / float64(total)
	}
}
