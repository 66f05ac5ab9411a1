// Package embedding provides vector embedding generation for memory
// records and queries. The default implementation talks to a local Ollama
// instance; callers treat embedding as best-effort and fall back to
// lexical matching when it is unavailable.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Defaults for the Ollama-backed embedder.
const (
	DefaultModel         = "nomic-embed-text"
	DefaultHost          = "http://127.0.0.1:11434"
	DefaultDimension     = 768
	DefaultTimeout       = 30 * time.Second
	DefaultMaxRetries    = 1
	DefaultRetryDelay    = 2 * time.Second
	DefaultCheckInterval = 5 * time.Minute
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string

	// Available reports whether the embedder is ready to use.
	Available() bool
}

// Config configures the Ollama embedder.
type Config struct {
	Host          string        // Ollama API host (default: http://127.0.0.1:11434)
	Model         string        // Embedding model (default: nomic-embed-text)
	Timeout       time.Duration // HTTP request timeout
	MaxRetries    int           // Retries on transient failure
	RetryDelay    time.Duration // Delay between retries
	CheckInterval time.Duration // How often to re-probe availability
	CacheDisabled bool          // Disable the embedding cache
	CacheMaxSize  int           // Maximum cache entries (default: 1000)
	CacheTTL      time.Duration // Cache entry TTL (default: 1 hour)
}

// OllamaEmbedder generates embeddings using Ollama's local models.
type OllamaEmbedder struct {
	host      string
	model     string
	dimension int
	client    *http.Client

	maxRetries    int
	retryDelay    time.Duration
	checkInterval time.Duration

	available   bool
	availableMu sync.RWMutex
	lastCheck   time.Time

	cache *embeddingCache
}

// NewOllamaEmbedder creates an Ollama-backed embedder and probes its
// availability once at startup.
func NewOllamaEmbedder(cfg Config) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}

	var cache *embeddingCache
	if !cfg.CacheDisabled {
		maxSize := cfg.CacheMaxSize
		if maxSize <= 0 {
			maxSize = DefaultCacheMaxSize
		}
		ttl := cfg.CacheTTL
		if ttl <= 0 {
			ttl = DefaultCacheTTL
		}
		cache = newEmbeddingCache(maxSize, ttl)
	}

	e := &OllamaEmbedder{
		host:      strings.TrimRight(cfg.Host, "/"),
		model:     cfg.Model,
		dimension: DefaultDimension,
		client: &http.Client{
			Transport: &http.Transport{
				// ResponseHeaderTimeout rather than Client.Timeout: model
				// loading can delay the first byte well past a normal
				// request budget.
				ResponseHeaderTimeout: cfg.Timeout,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		checkInterval: cfg.CheckInterval,
		cache:         cache,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	e.setAvailable(e.probe(ctx))

	return e
}

// Embed generates an embedding for a single text, with cache lookup and
// retry on transient failures.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if !e.Available() {
		return nil, fmt.Errorf("embedder not available")
	}

	if e.cache != nil {
		if cached := e.cache.get(text); cached != nil {
			return cached, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			log.Debug().Int("attempt", attempt).Err(lastErr).Msg("retrying embedding request")
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
			case <-time.After(e.retryDelay):
			}
		}

		embedding, err := e.doEmbedRequest(ctx, text)
		if err == nil {
			if e.cache != nil {
				e.cache.put(text, embedding)
			}
			return embedding, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	return nil, lastErr
}

// EmbedBatch generates embeddings sequentially; Ollama has no native batch
// endpoint.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		embeddings[i] = embedding
	}
	return embeddings, nil
}

// Dimension returns the embedding dimension.
func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

// ModelName returns the name of the embedding model.
func (e *OllamaEmbedder) ModelName() string {
	return e.model
}

// Available reports readiness, re-probing lazily once the check interval
// has elapsed since the last failure.
func (e *OllamaEmbedder) Available() bool {
	e.availableMu.RLock()
	available := e.available
	lastCheck := e.lastCheck
	e.availableMu.RUnlock()

	if !available && time.Since(lastCheck) > e.checkInterval {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		available = e.probe(ctx)
		e.setAvailable(available)
	}

	return available
}

// CacheStats returns embedding cache statistics, or the zero value when
// the cache is disabled.
func (e *OllamaEmbedder) CacheStats() CacheStats {
	if e.cache == nil {
		return CacheStats{}
	}
	return e.cache.stats()
}

func (e *OllamaEmbedder) setAvailable(available bool) {
	e.availableMu.Lock()
	e.available = available
	e.lastCheck = time.Now()
	e.availableMu.Unlock()
}

// probe checks whether the Ollama API answers at all.
func (e *OllamaEmbedder) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("host", e.host).Msg("embedding provider unreachable")
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// doEmbedRequest performs the actual HTTP request to Ollama.
func (e *OllamaEmbedder) doEmbedRequest(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(map[string]any{
		"model":  e.model,
		"prompt": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		// Connection failure: mark unavailable, re-probed after the
		// check interval.
		e.setAvailable(false)
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	embedding := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		embedding[i] = float32(v)
	}

	if len(embedding) > 0 && e.dimension != len(embedding) {
		e.dimension = len(embedding)
	}

	return embedding, nil
}

// isRetryableError reports whether an error should trigger a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "EOF")
}
