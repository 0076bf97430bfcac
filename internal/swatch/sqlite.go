// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package swatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quiltmemory/quilt/internal/persistence/sqlite"
)

// SQLiteRepository persists swatches and their vector index entries in the
// shared on-disk store. There is no native SQLite vector extension
// available, so SearchSimilar performs a brute-force cosine-similarity
// scan over the companion swatch_vector_index table; this is adequate for
// a single-user local corpus and keeps the persistent layout honest about
// what it actually stores.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Close() error { return nil }

func (r *SQLiteRepository) SaveMany(ctx context.Context, swatches []*Swatch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrOperationFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck

	rowStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO swatches (id, cut_id, material_id, model_name, model_version, dimensions, embedding, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare swatch insert: %v", ErrOperationFailed, err)
	}
	defer rowStmt.Close()

	idxStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO swatch_vector_index (swatch_id, material_id, dimensions, embedding) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare index insert: %v", ErrOperationFailed, err)
	}
	defer idxStmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, s := range swatches {
		id := s.ID
		if id == "" {
			id = uuid.NewString()
		}
		blob := sqlite.EncodeVector(s.Embedding)

		var metadata any
		if s.Metadata != nil {
			metadata = string(s.Metadata)
		}

		if _, err := rowStmt.ExecContext(ctx, id, s.CutID, s.MaterialID, s.ModelName, s.ModelVersion, s.Dimensions, blob, metadata, now); err != nil {
			return fmt.Errorf("%w: insert swatch: %v", ErrOperationFailed, err)
		}
		if _, err := idxStmt.ExecContext(ctx, id, s.MaterialID, s.Dimensions, blob); err != nil {
			return fmt.Errorf("%w: insert vector index: %v", ErrOperationFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrOperationFailed, err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Swatch, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, cut_id, material_id, model_name, model_version, dimensions, embedding, metadata, created_at
		 FROM swatches WHERE id = ?`, id)
	return scanSwatch(row)
}

func (r *SQLiteRepository) GetByCutID(ctx context.Context, cutID string) (*Swatch, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, cut_id, material_id, model_name, model_version, dimensions, embedding, metadata, created_at
		 FROM swatches WHERE cut_id = ?`, cutID)
	return scanSwatch(row)
}

func (r *SQLiteRepository) GetByMaterialID(ctx context.Context, materialID string) ([]*Swatch, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, cut_id, material_id, model_name, model_version, dimensions, embedding, metadata, created_at
		 FROM swatches WHERE material_id = ?`, materialID)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrOperationFailed, err)
	}
	defer rows.Close()

	var out []*Swatch
	for rows.Next() {
		s, err := scanSwatchRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteByMaterialID(ctx context.Context, materialID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM swatches WHERE material_id = ?`, materialID); err != nil {
		return fmt.Errorf("%w: delete: %v", ErrOperationFailed, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByCutID(ctx context.Context, cutID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM swatches WHERE cut_id = ?`, cutID); err != nil {
		return fmt.Errorf("%w: delete: %v", ErrOperationFailed, err)
	}
	return nil
}

func (r *SQLiteRepository) SearchSimilar(ctx context.Context, query []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT swatch_id, dimensions, embedding FROM swatch_vector_index`)
	if err != nil {
		return nil, fmt.Errorf("%w: query index: %v", ErrSearchFailed, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			swatchID   string
			dimensions int
			blob       []byte
		)
		if err := rows.Scan(&swatchID, &dimensions, &blob); err != nil {
			return nil, fmt.Errorf("%w: scan index row: %v", ErrSearchFailed, err)
		}
		if dimensions != len(query) {
			return nil, fmt.Errorf("%w: query dimension %d does not match index dimension %d", ErrSearchFailed, len(query), dimensions)
		}
		vec, err := sqlite.DecodeVector(blob, dimensions)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
		}
		matches = append(matches, Match{SwatchID: swatchID, Score: CosineSimilarity(query, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	sortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSwatch(row *sql.Row) (*Swatch, error) {
	s, err := scanSwatchRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return s, err
}

func scanSwatchRow(row rowScanner) (*Swatch, error) {
	var (
		s         Swatch
		blob      []byte
		metadata  sql.NullString
		createdAt string
	)
	if err := row.Scan(&s.ID, &s.CutID, &s.MaterialID, &s.ModelName, &s.ModelVersion, &s.Dimensions, &blob, &metadata, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("%w: scan swatch: %v", ErrOperationFailed, err)
	}
	vec, err := sqlite.DecodeVector(blob, s.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	s.Embedding = vec
	if metadata.Valid {
		s.Metadata = json.RawMessage(metadata.String)
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("%w: parse created_at: %v", ErrOperationFailed, err)
	}
	s.CreatedAt = t
	return &s, nil
}

var _ Repository = (*SQLiteRepository)(nil)
