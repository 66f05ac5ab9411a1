package memory

import (
	"context"
	"errors"
	"time"
)

// Common errors returned by store and service operations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("memory: record not found")

	// ErrNotInitialized is returned when the store is unavailable. The
	// public Search interface converts it to a failed SearchResult instead
	// of surfacing it.
	ErrNotInitialized = errors.New("memory: store not initialized")

	// ErrValidation is returned for contract violations such as a missing
	// owner or query.
	ErrValidation = errors.New("memory: validation failed")
)

// RecordFilter narrows a repository read. Owner is required; the other
// fields are optional and combine conjunctively. Since is inclusive.
type RecordFilter struct {
	Owner     string
	Type      MemoryType
	SessionID string
	Since     time.Time
}

// StoreStats summarizes repository contents for diagnostics.
type StoreStats struct {
	TotalRecords  int            `json:"total_records"`
	Owners        int            `json:"owners"`
	ByType        map[string]int `json:"by_type"`
	WithEmbedding int            `json:"with_embedding"`
}

// Repository is the injected persistence contract for memory records.
// Implementations return records in insertion order, enforce the per-owner
// capacity cap on insert (FIFO eviction of the oldest), and serialize
// concurrent writers internally; the engine layers no locking on top.
type Repository interface {
	// Insert stores a record, evicting the owner's oldest records when the
	// capacity cap is exceeded.
	Insert(ctx context.Context, rec MemoryRecord) error

	// List returns the records matching the filter, in insertion order.
	List(ctx context.Context, f RecordFilter) ([]MemoryRecord, error)

	// UpdateEmbedding replaces the embedding of one record in place. It
	// reports whether a matching record existed. The embedding is the only
	// mutable field of a stored record.
	UpdateEmbedding(ctx context.Context, owner, id string, embedding []float32) (bool, error)

	// Delete removes a single record. ErrNotFound when absent.
	Delete(ctx context.Context, owner, id string) error

	// ClearOwner removes all records of one owner and returns the count.
	ClearOwner(ctx context.Context, owner string) (int, error)

	// DeleteSession removes every record carrying the session id across
	// all owners and returns the total count removed. Session ids are
	// globally unique, so a cross-owner delete is safe.
	DeleteSession(ctx context.Context, sessionID string) (int, error)

	// Stats reports store-wide counters.
	Stats(ctx context.Context) (StoreStats, error)

	// Close releases the underlying storage handle.
	Close() error
}
