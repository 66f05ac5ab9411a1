package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultMaxPerOwner caps how many records a single owner can hold before
// FIFO eviction kicks in.
const DefaultMaxPerOwner = 1000

// SQLiteStore persists memory records in SQLite. Insertion order is the
// rowid sequence, which doubles as the eviction order.
type SQLiteStore struct {
	db          *sql.DB
	maxPerOwner int
}

// SQLiteStoreConfig configures the SQLite-backed repository.
type SQLiteStoreConfig struct {
	// MaxPerOwner is the per-owner record cap. Zero means DefaultMaxPerOwner.
	MaxPerOwner int
}

// NewSQLiteStore creates a repository over an open database handle and runs
// the schema migration.
func NewSQLiteStore(db *sql.DB, cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if db == nil {
		return nil, ErrNotInitialized
	}
	if cfg.MaxPerOwner <= 0 {
		cfg.MaxPerOwner = DefaultMaxPerOwner
	}

	s := &SQLiteStore{db: db, maxPerOwner: cfg.MaxPerOwner}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	log.Info().Int("max_per_owner", cfg.MaxPerOwner).Msg("memory store initialized")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			owner TEXT NOT NULL,
			content TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			created_at TEXT NOT NULL,
			session_id TEXT,
			embedding BLOB,
			metadata TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_memories_owner ON memories(owner);
		CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id);
		CREATE INDEX IF NOT EXISTS idx_memories_owner_type ON memories(owner, memory_type);
	`)
	return err
}

// Insert stores a record and evicts the owner's oldest rows past the cap.
func (s *SQLiteStore) Insert(ctx context.Context, rec MemoryRecord) error {
	if rec.ID == "" || rec.Owner == "" {
		return fmt.Errorf("%w: record needs id and owner", ErrValidation)
	}

	var metadataJSON any
	if rec.Metadata != nil {
		data, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadataJSON = string(data)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (id, owner, content, memory_type, created_at, session_id, embedding, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Owner, rec.Content, string(rec.Type),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		nullIfEmpty(rec.SessionID), Float32SliceToBytes(rec.Embedding), metadataJSON)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}

	// FIFO eviction: keep only the newest maxPerOwner rows for this owner.
	res, err := tx.ExecContext(ctx, `
		DELETE FROM memories
		WHERE owner = ?
		  AND seq NOT IN (
			SELECT seq FROM memories WHERE owner = ? ORDER BY seq DESC LIMIT ?
		  )
	`, rec.Owner, rec.Owner, s.maxPerOwner)
	if err != nil {
		return fmt.Errorf("evict overflow: %w", err)
	}
	if evicted, _ := res.RowsAffected(); evicted > 0 {
		log.Debug().Str("owner", rec.Owner).Int64("evicted", evicted).Msg("evicted oldest memories over capacity")
	}

	return tx.Commit()
}

// List returns matching records in insertion order.
func (s *SQLiteStore) List(ctx context.Context, f RecordFilter) ([]MemoryRecord, error) {
	if f.Owner == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrValidation)
	}

	query := strings.Builder{}
	query.WriteString(`
		SELECT id, owner, content, memory_type, created_at, session_id, embedding, metadata
		FROM memories
		WHERE owner = ?`)
	args := []any{f.Owner}

	if f.Type != "" {
		query.WriteString(` AND memory_type = ?`)
		args = append(args, string(f.Type))
	}
	if f.SessionID != "" {
		query.WriteString(` AND session_id = ?`)
		args = append(args, f.SessionID)
	}
	if !f.Since.IsZero() {
		query.WriteString(` AND created_at >= ?`)
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	query.WriteString(` ORDER BY seq ASC`)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var records []MemoryRecord
	for rows.Next() {
		rec, err := scanMemoryRow(rows)
		if err != nil {
			log.Warn().Err(err).Msg("skipping unreadable memory row")
			continue
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// UpdateEmbedding replaces one record's embedding in place.
func (s *SQLiteStore) UpdateEmbedding(ctx context.Context, owner, id string, embedding []float32) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET embedding = ? WHERE owner = ? AND id = ?
	`, Float32SliceToBytes(embedding), owner, id)
	if err != nil {
		return false, fmt.Errorf("update embedding: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// Delete removes a single record.
func (s *SQLiteStore) Delete(ctx context.Context, owner, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearOwner removes all records of one owner.
func (s *SQLiteStore) ClearOwner(ctx context.Context, owner string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE owner = ?`, owner)
	if err != nil {
		return 0, fmt.Errorf("clear owner: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// DeleteSession removes the session's records across all owners.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	if sessionID == "" {
		return 0, fmt.Errorf("%w: session id is required", ErrValidation)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete session: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected > 0 {
		log.Info().Str("session_id", sessionID).Int64("removed", affected).Msg("session memories cleaned up")
	}
	return int(affected), nil
}

// Stats reports store-wide counters.
func (s *SQLiteStore) Stats(ctx context.Context) (StoreStats, error) {
	stats := StoreStats{ByType: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&stats.TotalRecords); err != nil {
		return stats, fmt.Errorf("count records: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT owner) FROM memories`).Scan(&stats.Owners); err != nil {
		return stats, fmt.Errorf("count owners: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE embedding IS NOT NULL`).Scan(&stats.WithEmbedding); err != nil {
		return stats, fmt.Errorf("count embedded: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT memory_type, COUNT(*) FROM memories GROUP BY memory_type`)
	if err != nil {
		return stats, fmt.Errorf("count by type: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			continue
		}
		stats.ByType[t] = n
	}

	return stats, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanMemoryRow(rows *sql.Rows) (MemoryRecord, error) {
	var rec MemoryRecord
	var memType, createdAt string
	var sessionID, metadataJSON sql.NullString
	var embBlob []byte

	if err := rows.Scan(&rec.ID, &rec.Owner, &rec.Content, &memType, &createdAt, &sessionID, &embBlob, &metadataJSON); err != nil {
		return rec, fmt.Errorf("scan memory: %w", err)
	}

	rec.Type = MemoryType(memType)
	rec.SessionID = sessionID.String
	rec.Embedding = BytesToFloat32Slice(embBlob)

	// A record with an unparseable timestamp is still returned; recency and
	// frequency scoring treat the zero time as score 0.
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		rec.CreatedAt = t
	} else if t, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
		rec.CreatedAt = t
	}

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata); err != nil {
			log.Warn().Err(err).Str("id", rec.ID).Msg("dropping unreadable metadata")
		}
	}

	return rec, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
