package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/avelichko/casevault/internal/logging"
)

// Artifact describes one backup file in the backup directory.
type Artifact struct {
	Filename  string
	CreatedAt time.Time
	SizeBytes int64
}

// RetentionPolicy prunes old artifacts, keeping the newest keepCount. The
// single most recent artifact always survives, even with keepCount zero; a
// misconfigured retention setting must not be able to wipe every backup.
type RetentionPolicy struct {
	dir    string
	prefix string
	log    logging.Logger
}

func NewRetentionPolicy(dir, prefix string, log logging.Logger) *RetentionPolicy {
	return &RetentionPolicy{dir: dir, prefix: prefix, log: log}
}

// ListArtifacts returns the matching artifacts, newest first.
func (p *RetentionPolicy) ListArtifacts() ([]Artifact, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var artifacts []Artifact
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), p.prefix+"_") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, Artifact{
			Filename:  e.Name(),
			CreatedAt: info.ModTime(),
			SizeBytes: info.Size(),
		})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
	})
	return artifacts, nil
}

// Apply deletes everything but the newest keepCount artifacts and returns
// how many files were removed. Individual deletion failures are logged and
// skipped; one undeletable file must not stall the pass.
func (p *RetentionPolicy) Apply(ctx context.Context, keepCount int) (int, error) {
	if keepCount < 1 {
		p.log.Warn(ctx, "retention keep count below 1, keeping one artifact", "keep_count", keepCount)
		keepCount = 1
	}

	artifacts, err := p.ListArtifacts()
	if err != nil {
		return 0, err
	}
	if len(artifacts) <= keepCount {
		return 0, nil
	}

	deleted := 0
	for _, a := range artifacts[keepCount:] {
		path := filepath.Join(p.dir, a.Filename)
		if err := os.Remove(path); err != nil {
			p.log.Error(ctx, "failed to delete expired backup artifact", "path", path, "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}
