package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupAndRestore(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	b := newBooking(1, start, 30)
	require.NoError(t, db.InsertBooking(ctx, b))

	destDir := filepath.Join(t.TempDir(), "backups")
	path, err := db.Backup(ctx, destDir)
	require.NoError(t, err)
	require.FileExists(t, path)

	// The snapshot must open as a standalone database with the data intact.
	logger := zerolog.Nop()
	restored, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer restored.Close()

	got, err := restored.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.PatientID, got.PatientID)
}

func TestCleanupBackups(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()

	oldFile := filepath.Join(dir, "turnero_old.db")
	freshFile := filepath.Join(dir, "turnero_fresh.db")
	require.NoError(t, os.WriteFile(oldFile, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(freshFile, []byte("x"), 0o644))

	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldFile, stale, stale))

	deleted, err := db.CleanupBackups(dir, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.NoFileExists(t, oldFile)
	assert.FileExists(t, freshFile)
}
