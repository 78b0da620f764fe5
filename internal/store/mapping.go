package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/spendcat/internal/category"
)

// minPartialLength is the shortest name considered for partial matching.
// Single-rune fragments match almost everything and poison the cache.
const minPartialLength = 2

// MappingStore is the Tier 1 persistent name-to-category cache.
type MappingStore struct {
	db *DB
}

// GetExact returns the mapping for the exact name, or ErrNotFound.
func (s *MappingStore) GetExact(ctx context.Context, name string) (category.Mapping, error) {
	var m category.Mapping
	row := s.db.conn.QueryRowContext(ctx,
		`SELECT name, category, source FROM category_mappings WHERE name = ?`, name)
	if err := row.Scan(&m.Name, &m.Category, &m.Source); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return category.Mapping{}, ErrNotFound
		}
		return category.Mapping{}, fmt.Errorf("querying mapping: %w", err)
	}
	return m, nil
}

// GetPartial returns a mapping whose name contains the query or is contained
// in it, case-insensitive. The longest mapping name wins so that the most
// specific known pattern is preferred. Returns ErrNotFound when nothing
// qualifies.
func (s *MappingStore) GetPartial(ctx context.Context, name string) (category.Mapping, error) {
	q := strings.ToLower(strings.TrimSpace(name))
	if len(q) < minPartialLength {
		return category.Mapping{}, ErrNotFound
	}

	var m category.Mapping
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT name, category, source FROM category_mappings
		WHERE length(name) >= ?
		  AND (instr(?, lower(name)) > 0 OR instr(lower(name), ?) > 0)
		ORDER BY length(name) DESC
		LIMIT 1`,
		minPartialLength, q, q)
	if err := row.Scan(&m.Name, &m.Category, &m.Source); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return category.Mapping{}, ErrNotFound
		}
		return category.Mapping{}, fmt.Errorf("querying partial mapping: %w", err)
	}
	return m, nil
}

// GetAll returns every stored mapping. The bulk cache preloads from this.
func (s *MappingStore) GetAll(ctx context.Context) ([]category.Mapping, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT name, category, source FROM category_mappings`)
	if err != nil {
		return nil, fmt.Errorf("querying mappings: %w", err)
	}
	defer rows.Close()

	var mappings []category.Mapping
	for rows.Next() {
		var m category.Mapping
		if err := rows.Scan(&m.Name, &m.Category, &m.Source); err != nil {
			return nil, fmt.Errorf("scanning mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating mappings: %w", err)
	}
	return mappings, nil
}

// Upsert writes or replaces the mapping for a name (last-write-wins).
func (s *MappingStore) Upsert(ctx context.Context, m category.Mapping) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO category_mappings (name, category, source, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(name) DO UPDATE SET
			category = excluded.category,
			source = excluded.source,
			updated_at = excluded.updated_at`,
		m.Name, m.Category, m.Source)
	if err != nil {
		return fmt.Errorf("upserting mapping: %w", err)
	}
	return nil
}

// UpsertMany writes a batch of mappings in a single transaction. Either the
// whole batch lands or none of it does.
func (s *MappingStore) UpsertMany(ctx context.Context, mappings []category.Mapping) error {
	if len(mappings) == 0 {
		return nil
	}
	for _, m := range mappings {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidRecord, m.Name, err)
		}
	}

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO category_mappings (name, category, source, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(name) DO UPDATE SET
			category = excluded.category,
			source = excluded.source,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, m := range mappings {
		if _, err := stmt.ExecContext(ctx, m.Name, m.Category, m.Source); err != nil {
			return fmt.Errorf("upserting mapping %s: %w", m.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing mappings: %w", err)
	}
	return nil
}

// Count returns the number of stored mappings.
func (s *MappingStore) Count(ctx context.Context) (int, error) {
	var n int
	row := s.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM category_mappings`)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("counting mappings: %w", err)
	}
	return n, nil
}

// DeleteAll removes every mapping. Full-data reset only.
func (s *MappingStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.conn.ExecContext(ctx, `DELETE FROM category_mappings`); err != nil {
		return fmt.Errorf("deleting mappings: %w", err)
	}
	return nil
}
