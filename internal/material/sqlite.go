// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package material

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLiteRepository persists materials in the shared on-disk store.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps an already-migrated *sql.DB.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Close() error { return nil }

func (r *SQLiteRepository) Register(ctx context.Context, path string, fileType FileType) (*Material, error) {
	now := time.Now().UTC()
	m := &Material{
		ID:              uuid.NewString(),
		Path:            path,
		FileType:        fileType,
		Status:          StatusDiscovered,
		CreatedAt:       now,
		StatusUpdatedAt: now,
		UpdatedAt:       now,
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %v", ErrOperationFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO materials (id, path, file_type, status, error_message, created_at, status_updated_at, updated_at)
		 VALUES (?, ?, ?, ?, NULL, ?, ?, ?)`,
		m.ID, m.Path, string(m.FileType), string(m.Status),
		formatTime(m.CreatedAt), formatTime(m.StatusUpdatedAt), formatTime(m.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: path %q", ErrAlreadyExists, path)
		}
		return nil, fmt.Errorf("%w: insert material: %v", ErrOperationFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrOperationFailed, err)
	}
	return m, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Material, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, path, file_type, status, error_message, created_at, status_updated_at, updated_at
		 FROM materials WHERE id = ?`, id)
	return scanMaterial(row)
}

func (r *SQLiteRepository) GetByPath(ctx context.Context, path string) (*Material, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, path, file_type, status, error_message, created_at, status_updated_at, updated_at
		 FROM materials WHERE path = ? AND status != 'Error'`, path)
	return scanMaterial(row)
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status Status, errMsg *string) (*Material, error) {
	now := formatTime(time.Now().UTC())

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %v", ErrOperationFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE materials SET status = ?, error_message = ?, status_updated_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(status), errMsg, now, now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: update status: %v", ErrOperationFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: rows affected: %v", ErrOperationFailed, err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrOperationFailed, err)
	}
	return r.GetByID(ctx, id)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*Material, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, path, file_type, status, error_message, created_at, status_updated_at, updated_at FROM materials`)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrOperationFailed, err)
	}
	defer rows.Close()

	var out []*Material
	for rows.Next() {
		m, err := scanMaterialRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMaterial(row *sql.Row) (*Material, error) {
	m, err := scanMaterialRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func scanMaterialRow(row rowScanner) (*Material, error) {
	var (
		m             Material
		fileType      string
		status        string
		errMsg        sql.NullString
		createdAt     string
		statusUpdated string
		updatedAt     string
	)
	if err := row.Scan(&m.ID, &m.Path, &fileType, &status, &errMsg, &createdAt, &statusUpdated, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: scan material: %v", ErrOperationFailed, err)
	}
	m.FileType = FileType(fileType)
	m.Status = Status(status)
	if errMsg.Valid {
		msg := errMsg.String
		m.ErrorMessage = &msg
	}
	var err error
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if m.StatusUpdatedAt, err = parseTime(statusUpdated); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func formatTime(t time.Time) string { return t.Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: parse time %q: %v", ErrOperationFailed, s, err)
	}
	return t, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ Repository = (*SQLiteRepository)(nil)
