package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshotter struct {
	calls []string
	err   error
}

func (f *fakeSnapshotter) Snapshot(_ context.Context, identifier string, ts time.Time) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := "/backups/" + ArtifactName("casevault", identifier, ts)
	f.calls = append(f.calls, path)
	return path, nil
}

type fakeRetention struct {
	keepCounts []int
	deleted    int
}

func (f *fakeRetention) Apply(_ context.Context, keepCount int) (int, error) {
	f.keepCounts = append(f.keepCounts, keepCount)
	return f.deleted, nil
}

type fakeUploader struct {
	paths []string
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, path string) error {
	f.paths = append(f.paths, path)
	return f.err
}

func testScheduler(t *testing.T, snap snapshotter, ret retentionApplier, up Uploader) (*Scheduler, *SQLiteSettingsRepository) {
	t.Helper()
	repo := NewSQLiteSettingsRepository(setupSettingsDB(t))
	s := NewScheduler(repo, snap, ret, up, nil, testLog(), time.Minute)
	return s, repo
}

func TestScheduler_RunsDueProfile(t *testing.T) {
	snap := &fakeSnapshotter{}
	ret := &fakeRetention{deleted: 2}
	s, repo := testScheduler(t, snap, ret, nil)

	now := time.Date(2025, 3, 10, 2, 0, 5, 0, time.UTC)
	s.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, &Settings{
		ProfileID: "p1", Enabled: true, Frequency: Daily, BackupTime: "02:00",
		KeepCount: 3, NextBackupAt: now.Add(-5 * time.Second),
	}))

	s.runDue(ctx)

	require.Len(t, snap.calls, 1)
	assert.Equal(t, []int{3}, ret.keepCounts)

	out, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, out.LastBackupAt.Equal(now))
	assert.True(t, out.NextBackupAt.Equal(time.Date(2025, 3, 11, 2, 0, 0, 0, time.UTC)))
}

func TestScheduler_MissedWindowsCoalesce(t *testing.T) {
	snap := &fakeSnapshotter{}
	s, repo := testScheduler(t, snap, &fakeRetention{}, nil)

	// scheduled for three days ago; the app was not running since
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, &Settings{
		ProfileID: "p1", Enabled: true, Frequency: Daily, BackupTime: "02:00",
		KeepCount: 3, NextBackupAt: now.AddDate(0, 0, -3),
	}))

	s.runDue(ctx)
	s.runDue(ctx)

	assert.Len(t, snap.calls, 1, "catch-up must run exactly once")

	out, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, out.NextBackupAt.After(now))
}

func TestScheduler_SkipsNotDue(t *testing.T) {
	snap := &fakeSnapshotter{}
	s, repo := testScheduler(t, snap, &fakeRetention{}, nil)

	now := time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, &Settings{
		ProfileID: "p1", Enabled: true, Frequency: Daily, BackupTime: "02:00",
		KeepCount: 3, NextBackupAt: now.Add(time.Hour),
	}))

	s.runDue(ctx)
	assert.Empty(t, snap.calls)
}

func TestScheduler_SnapshotFailureLeavesScheduleIntact(t *testing.T) {
	snap := &fakeSnapshotter{err: errors.New("disk full")}
	s, repo := testScheduler(t, snap, &fakeRetention{}, nil)

	now := time.Date(2025, 3, 10, 2, 0, 5, 0, time.UTC)
	s.now = func() time.Time { return now }

	ctx := context.Background()
	due := now.Add(-5 * time.Second)
	require.NoError(t, repo.Save(ctx, &Settings{
		ProfileID: "p1", Enabled: true, Frequency: Daily, BackupTime: "02:00",
		KeepCount: 3, NextBackupAt: due,
	}))

	s.runDue(ctx)

	// still due, so the next tick retries
	out, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, out.NextBackupAt.Equal(due))
	assert.True(t, out.LastBackupAt.IsZero())
}

func TestScheduler_UploadFailureIsNonFatal(t *testing.T) {
	snap := &fakeSnapshotter{}
	up := &fakeUploader{err: errors.New("endpoint unreachable")}
	s, repo := testScheduler(t, snap, &fakeRetention{}, up)

	now := time.Date(2025, 3, 10, 2, 0, 5, 0, time.UTC)
	s.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, &Settings{
		ProfileID: "p1", Enabled: true, Frequency: Daily, BackupTime: "02:00",
		KeepCount: 3, NextBackupAt: now.Add(-time.Second),
	}))

	s.runDue(ctx)

	require.Len(t, up.paths, 1)
	out, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, out.LastBackupAt.Equal(now), "local backup succeeded despite failed upload")
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	s, _ := testScheduler(t, &fakeSnapshotter{}, &fakeRetention{}, nil)

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx)
	s.Stop()
	s.Stop()

	// restart after stop works
	s.Start(ctx)
	s.Stop()
}
