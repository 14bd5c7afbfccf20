package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, dir, name string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("snapshot"), 0o600))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestRetention_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		writeArtifact(t, dir, fmt.Sprintf("casevault_p1_%02d", i), base.Add(time.Duration(i)*time.Hour))
	}

	p := NewRetentionPolicy(dir, "casevault", testLog())
	deleted, err := p.Apply(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 7, deleted)

	remaining, err := p.ListArtifacts()
	require.NoError(t, err)
	require.Len(t, remaining, 3)
	// newest first
	assert.Equal(t, "casevault_p1_09", remaining[0].Filename)
	assert.Equal(t, "casevault_p1_08", remaining[1].Filename)
	assert.Equal(t, "casevault_p1_07", remaining[2].Filename)
}

func TestRetention_ZeroKeepCountKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	writeArtifact(t, dir, "casevault_p1_old", base)
	writeArtifact(t, dir, "casevault_p1_new", base.Add(time.Hour))

	p := NewRetentionPolicy(dir, "casevault", testLog())
	deleted, err := p.Apply(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	remaining, err := p.ListArtifacts()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "casevault_p1_new", remaining[0].Filename)
}

func TestRetention_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	writeArtifact(t, dir, "casevault_p1_a", base)
	writeArtifact(t, dir, "notes.txt", base)
	writeArtifact(t, dir, "other_p1_a", base)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "casevault_subdir"), 0o700))

	p := NewRetentionPolicy(dir, "casevault", testLog())
	deleted, err := p.Apply(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "other_p1_a"))
	assert.NoError(t, err)
}

func TestRetention_NothingToDelete(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "casevault_p1_a", time.Now())

	p := NewRetentionPolicy(dir, "casevault", testLog())
	deleted, err := p.Apply(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}
