package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avelichko/casevault/internal/dbx"
)

// SettingsRepository persists per-profile backup settings.
type SettingsRepository interface {
	Get(ctx context.Context, profileID string) (*Settings, error)
	Save(ctx context.Context, s *Settings) error
	// ListDue returns enabled profiles whose NextBackupAt is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]Settings, error)
}

var ErrSettingsNotFound = errors.New("backup settings not found")

type SQLiteSettingsRepository struct {
	db dbx.DBTX
}

func NewSQLiteSettingsRepository(db dbx.DBTX) *SQLiteSettingsRepository {
	return &SQLiteSettingsRepository{db: db}
}

func (r *SQLiteSettingsRepository) Get(ctx context.Context, profileID string) (*Settings, error) {
	query := `SELECT profile_id, enabled, frequency, backup_time, keep_count,
		last_backup_at, next_backup_at FROM backup_settings WHERE profile_id = ?`
	s, err := scanSettings(r.db.QueryRowContext(ctx, query, profileID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load backup settings: %w", err)
	}
	return s, nil
}

func (r *SQLiteSettingsRepository) Save(ctx context.Context, s *Settings) error {
	query := `INSERT INTO backup_settings
		(profile_id, enabled, frequency, backup_time, keep_count, last_backup_at, next_backup_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_id) DO UPDATE SET
			enabled = excluded.enabled,
			frequency = excluded.frequency,
			backup_time = excluded.backup_time,
			keep_count = excluded.keep_count,
			last_backup_at = excluded.last_backup_at,
			next_backup_at = excluded.next_backup_at`
	enabled := 0
	if s.Enabled {
		enabled = 1
	}
	_, err := r.db.ExecContext(ctx, query,
		s.ProfileID, enabled, string(s.Frequency), s.BackupTime, s.KeepCount,
		unixOrZero(s.LastBackupAt), unixOrZero(s.NextBackupAt))
	if err != nil {
		return fmt.Errorf("failed to save backup settings: %w", err)
	}
	return nil
}

func (r *SQLiteSettingsRepository) ListDue(ctx context.Context, now time.Time) ([]Settings, error) {
	query := `SELECT profile_id, enabled, frequency, backup_time, keep_count,
		last_backup_at, next_backup_at FROM backup_settings
		WHERE enabled = 1 AND next_backup_at <= ?`
	rows, err := r.db.QueryContext(ctx, query, now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to list due backups: %w", err)
	}
	defer rows.Close()

	var result []Settings
	for rows.Next() {
		s, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSettings(sc scanner) (*Settings, error) {
	var s Settings
	var enabled int
	var freq string
	var last, next int64
	if err := sc.Scan(&s.ProfileID, &enabled, &freq, &s.BackupTime,
		&s.KeepCount, &last, &next); err != nil {
		return nil, err
	}
	s.Enabled = enabled == 1
	s.Frequency = Frequency(freq)
	if last != 0 {
		s.LastBackupAt = time.Unix(0, last)
	}
	if next != 0 {
		s.NextBackupAt = time.Unix(0, next)
	}
	return &s, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
