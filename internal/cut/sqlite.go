// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cut

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteRepository persists cuts in the shared on-disk store.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Close() error { return nil }

func (r *SQLiteRepository) SaveMany(ctx context.Context, materialID string, cuts []*Cut) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrOperationFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cuts (id, material_id, chunk_index, content, token_count, byte_start, byte_end, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare insert: %v", ErrOperationFailed, err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, c := range cuts {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, id, materialID, c.ChunkIndex, c.Content, c.TokenCount, c.ByteStart, c.ByteEnd, now); err != nil {
			return fmt.Errorf("%w: insert cut: %v", ErrOperationFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrOperationFailed, err)
	}
	return nil
}

func (r *SQLiteRepository) GetByMaterialID(ctx context.Context, materialID string) ([]*Cut, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, material_id, chunk_index, content, token_count, byte_start, byte_end, created_at
		 FROM cuts WHERE material_id = ? ORDER BY chunk_index ASC`, materialID)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrOperationFailed, err)
	}
	defer rows.Close()

	var out []*Cut
	for rows.Next() {
		var c Cut
		var createdAt string
		if err := rows.Scan(&c.ID, &c.MaterialID, &c.ChunkIndex, &c.Content, &c.TokenCount, &c.ByteStart, &c.ByteEnd, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrOperationFailed, err)
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("%w: parse created_at: %v", ErrOperationFailed, err)
		}
		c.CreatedAt = t
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteByMaterialID(ctx context.Context, materialID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cuts WHERE material_id = ?`, materialID); err != nil {
		return fmt.Errorf("%w: delete: %v", ErrOperationFailed, err)
	}
	return nil
}

func (r *SQLiteRepository) CountByMaterialID(ctx context.Context, materialID string) (int, error) {
	var n int
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cuts WHERE material_id = ?`, materialID)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrOperationFailed, err)
	}
	return n, nil
}

var _ Repository = (*SQLiteRepository)(nil)
