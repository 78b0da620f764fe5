package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/spendcat/internal/category"
)

// EmbeddingStore persists StoreEmbedding records, one per name.
type EmbeddingStore struct {
	db *DB
}

// scanEmbedding reads one row into a StoreEmbedding.
func scanEmbedding(scan func(dest ...any) error) (category.StoreEmbedding, error) {
	var (
		e    category.StoreEmbedding
		blob []byte
	)
	if err := scan(&e.Name, &e.Category, &blob, &e.Source, &e.Confidence, &e.MatchCount); err != nil {
		return category.StoreEmbedding{}, err
	}
	vector, err := decodeVector(blob)
	if err != nil {
		return category.StoreEmbedding{}, fmt.Errorf("decoding vector for %s: %w", e.Name, err)
	}
	e.Vector = vector
	return e, nil
}

const embeddingColumns = `name, category, vector, source, confidence, match_count`

// GetAll returns every embedding record. The similarity index uses this to
// build its in-memory snapshot.
func (s *EmbeddingStore) GetAll(ctx context.Context) ([]category.StoreEmbedding, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT `+embeddingColumns+` FROM store_embeddings`)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var records []category.StoreEmbedding
	for rows.Next() {
		e, err := scanEmbedding(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}
	return records, nil
}

// GetByName returns the record for a name, or ErrNotFound.
func (s *EmbeddingStore) GetByName(ctx context.Context, name string) (category.StoreEmbedding, error) {
	row := s.db.conn.QueryRowContext(ctx,
		`SELECT `+embeddingColumns+` FROM store_embeddings WHERE name = ?`, name)
	e, err := scanEmbedding(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return category.StoreEmbedding{}, ErrNotFound
		}
		return category.StoreEmbedding{}, fmt.Errorf("querying embedding: %w", err)
	}
	return e, nil
}

// BelowConfidence returns all records with confidence strictly below the
// threshold, candidates for reclassification.
func (s *EmbeddingStore) BelowConfidence(ctx context.Context, threshold float64) ([]category.StoreEmbedding, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT `+embeddingColumns+` FROM store_embeddings WHERE confidence < ?`, threshold)
	if err != nil {
		return nil, fmt.Errorf("querying low-confidence embeddings: %w", err)
	}
	defer rows.Close()

	var records []category.StoreEmbedding
	for rows.Next() {
		e, err := scanEmbedding(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}
	return records, nil
}

// Upsert inserts or replaces the record for a name.
func (s *EmbeddingStore) Upsert(ctx context.Context, e category.StoreEmbedding) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO store_embeddings (name, category, vector, source, confidence, match_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(name) DO UPDATE SET
			category = excluded.category,
			vector = excluded.vector,
			source = excluded.source,
			confidence = excluded.confidence,
			match_count = excluded.match_count,
			updated_at = excluded.updated_at`,
		e.Name, e.Category, encodeVector(e.Vector), e.Source, e.Confidence, e.MatchCount)
	if err != nil {
		return fmt.Errorf("upserting embedding: %w", err)
	}
	return nil
}

// UpsertMany inserts or replaces a batch of records in one transaction.
func (s *EmbeddingStore) UpsertMany(ctx context.Context, records []category.StoreEmbedding) error {
	if len(records) == 0 {
		return nil
	}
	for _, e := range records {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidRecord, e.Name, err)
		}
	}

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO store_embeddings (name, category, vector, source, confidence, match_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(name) DO UPDATE SET
			category = excluded.category,
			vector = excluded.vector,
			source = excluded.source,
			confidence = excluded.confidence,
			match_count = excluded.match_count,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range records {
		if _, err := stmt.ExecContext(ctx,
			e.Name, e.Category, encodeVector(e.Vector), e.Source, e.Confidence, e.MatchCount); err != nil {
			return fmt.Errorf("upserting embedding %s: %w", e.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing embeddings: %w", err)
	}
	return nil
}

// IncrementMatchCount bumps the observability counter for a matched
// neighbor. Missing names are a no-op.
func (s *EmbeddingStore) IncrementMatchCount(ctx context.Context, name string) error {
	_, err := s.db.conn.ExecContext(ctx,
		`UPDATE store_embeddings SET match_count = match_count + 1 WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("incrementing match count: %w", err)
	}
	return nil
}

// UpdateCategory sets the category, source, and confidence for a name.
// When skipUser is true, rows whose current source is "user" are left
// untouched; propagation relies on this to never overwrite manual edits.
// Returns true if a row was changed.
func (s *EmbeddingStore) UpdateCategory(ctx context.Context, name string, cat category.Category, source category.Source, confidence float64, skipUser bool) (bool, error) {
	query := `UPDATE store_embeddings SET category = ?, source = ?, confidence = ?, updated_at = datetime('now') WHERE name = ?`
	args := []any{cat, source, confidence, name}
	if skipUser {
		query += ` AND source != ?`
		args = append(args, category.SourceUser)
	}

	res, err := s.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("updating embedding category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n > 0, nil
}

// Count returns the number of stored embedding records.
func (s *EmbeddingStore) Count(ctx context.Context) (int, error) {
	var n int
	row := s.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM store_embeddings`)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("counting embeddings: %w", err)
	}
	return n, nil
}

// DeleteAll removes every embedding record. Full-data reset only.
func (s *EmbeddingStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.conn.ExecContext(ctx, `DELETE FROM store_embeddings`); err != nil {
		return fmt.Errorf("deleting embeddings: %w", err)
	}
	return nil
}
