// Package backup creates point-in-time snapshots of the store, prunes old
// artifacts under a retention policy, and drives both from a periodic
// scheduler. Artifacts are immutable files; retention only ever deletes
// whole files.
package backup

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frequency says how often a profile is backed up.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

var ErrInvalidSettings = errors.New("invalid backup settings")

// Settings is one profile's backup configuration. NextBackupAt is recomputed
// by the scheduler after every run; comparing it against the clock naturally
// coalesces any number of missed windows into a single catch-up run.
type Settings struct {
	ProfileID    string
	Enabled      bool
	Frequency    Frequency
	BackupTime   string // "HH:MM", local time
	KeepCount    int
	LastBackupAt time.Time // zero when never run
	NextBackupAt time.Time
}

// ComputeNext returns the first scheduled instant strictly after now that
// falls on BackupTime and respects the frequency.
func (s *Settings) ComputeNext(now time.Time) (time.Time, error) {
	hour, minute, err := parseBackupTime(s.BackupTime)
	if err != nil {
		return time.Time{}, err
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if next.After(now) {
		return next, nil
	}

	switch s.Frequency {
	case Daily:
		return next.AddDate(0, 0, 1), nil
	case Weekly:
		return next.AddDate(0, 0, 7), nil
	case Monthly:
		return next.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown frequency %q", ErrInvalidSettings, s.Frequency)
	}
}

func parseBackupTime(v string) (hour, minute int, err error) {
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: backup time %q", ErrInvalidSettings, v)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: backup time %q", ErrInvalidSettings, v)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: backup time %q", ErrInvalidSettings, v)
	}
	return hour, minute, nil
}
