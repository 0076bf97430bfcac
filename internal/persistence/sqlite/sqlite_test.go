// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenCreatesFreshStoreAndPassesQuickCheck(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fresh.sqlite")

	db, err := Open(dbPath, DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db))
}

func TestOpenRejectsCorruptStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "corruptible.sqlite")

	db, err := Open(dbPath, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	for i := 0; i < 200; i++ {
		_, err := db.Exec("INSERT INTO materials (id, path, file_type, status, created_at, status_updated_at, updated_at) VALUES (?, ?, 'markdown', 'Discovered', datetime('now'), datetime('now'), datetime('now'))",
			fmt.Sprintf("id-%d", i), fmt.Sprintf("/a/%d.md", i))
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	f, err := os.OpenFile(dbPath, os.O_RDWR, 0o644)
	require.NoError(t, err)
	corrupt := make([]byte, 256)
	_, err = rand.Read(corrupt)
	require.NoError(t, err)
	_, err = f.WriteAt(corrupt, 4096)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(dbPath, DefaultConfig())
	require.Error(t, err, "Open must fail bootstrap for a store that fails quick_check")
}
