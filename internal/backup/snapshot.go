package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ArtifactName builds the artifact filename for a snapshot taken at ts:
// {prefix}_{identifier}_{ISO8601 with colons and dots replaced by dashes}.
func ArtifactName(prefix, identifier string, ts time.Time) string {
	stamp := ts.UTC().Format(time.RFC3339)
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return fmt.Sprintf("%s_%s_%s", prefix, identifier, stamp)
}

// Snapshotter exports a consistent copy of the sqlite store into the backup
// directory using VACUUM INTO, which runs inside the store's own locking and
// needs no cooperation from concurrent readers.
type Snapshotter struct {
	db     *sql.DB
	dir    string
	prefix string
}

func NewSnapshotter(db *sql.DB, dir, prefix string) *Snapshotter {
	return &Snapshotter{db: db, dir: dir, prefix: prefix}
}

// Snapshot writes one artifact and returns its path.
func (s *Snapshotter) Snapshot(ctx context.Context, identifier string, ts time.Time) (string, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}

	path := filepath.Join(s.dir, ArtifactName(s.prefix, identifier, ts))
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return "", fmt.Errorf("exporting snapshot: %w", err)
	}
	return path, nil
}
