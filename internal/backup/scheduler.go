package backup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avelichko/casevault/internal/audit"
	"github.com/avelichko/casevault/internal/logging"
	"github.com/avelichko/casevault/internal/metrics"
)

type snapshotter interface {
	Snapshot(ctx context.Context, identifier string, ts time.Time) (string, error)
}

type retentionApplier interface {
	Apply(ctx context.Context, keepCount int) (int, error)
}

// Uploader copies a finished artifact offsite.
type Uploader interface {
	Upload(ctx context.Context, path string) error
}

// Scheduler drives periodic backups. Every tick it re-evaluates which
// profiles are due instead of arming single-shot timers, so a missed window
// (the application was closed at the scheduled time) is caught up exactly
// once on the next tick.
type Scheduler struct {
	settings  SettingsRepository
	snap      snapshotter
	retention retentionApplier
	uploader  Uploader // nil disables offsite copies
	auditLog  *audit.Logger
	log       logging.Logger
	interval  time.Duration

	now func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(settings SettingsRepository, snap snapshotter, retention retentionApplier,
	up Uploader, auditLog *audit.Logger, log logging.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{
		settings:  settings,
		snap:      snap,
		retention: retention,
		uploader:  up,
		auditLog:  auditLog,
		log:       log,
		interval:  interval,
		now:       time.Now,
	}
}

// Start launches the timer loop. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)
}

// Stop cancels the timer loop and waits for it to exit. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runDue(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// runDue backs up every profile whose schedule has come due. Per-profile
// failures are logged and do not stop the pass.
func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()

	due, err := s.settings.ListDue(ctx, now)
	if err != nil {
		s.log.Error(ctx, "failed to list due backup profiles", "error", err)
		return
	}

	for i := range due {
		if err := s.runOne(ctx, &due[i], now); err != nil {
			metrics.BackupsFailed.Inc()
			s.log.Error(ctx, "backup run failed", "profile", due[i].ProfileID, "error", err)
		}
	}
}

func (s *Scheduler) runOne(ctx context.Context, st *Settings, now time.Time) error {
	path, err := s.snap.Snapshot(ctx, st.ProfileID, now)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	if s.uploader != nil {
		// the local artifact is the source of truth; a failed offsite copy is
		// logged but does not fail the run
		if err := s.uploader.Upload(ctx, path); err != nil {
			s.log.Error(ctx, "offsite backup copy failed", "artifact", path, "error", err)
		}
	}

	deleted, err := s.retention.Apply(ctx, st.KeepCount)
	if err != nil {
		s.log.Error(ctx, "retention pass failed", "profile", st.ProfileID, "error", err)
	}

	next, err := st.ComputeNext(now)
	if err != nil {
		return fmt.Errorf("computing next run: %w", err)
	}
	st.LastBackupAt = now
	st.NextBackupAt = next
	if err := s.settings.Save(ctx, st); err != nil {
		return fmt.Errorf("saving schedule: %w", err)
	}

	metrics.BackupsCompleted.Inc()
	s.log.Info(ctx, "backup complete",
		"profile", st.ProfileID, "artifact", path, "deleted", deleted, "next", next)

	if s.auditLog != nil {
		err := s.auditLog.Append(ctx, audit.Entry{
			EventType:    audit.EventBackup,
			UserID:       st.ProfileID,
			ResourceType: "backup_artifact",
			ResourceID:   path,
			Action:       audit.ActionCreate,
			Details:      fmt.Sprintf("deleted=%d", deleted),
			Success:      true,
		})
		if err != nil {
			s.log.Error(ctx, "failed to audit backup run", "error", err)
		}
	}
	return nil
}
