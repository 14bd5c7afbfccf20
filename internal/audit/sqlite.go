package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avelichko/casevault/internal/dbx"
)

// SQLiteRepository persists audit entries in the audit_log table. The seq
// rowid column gives the insertion order the chain verification walks.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, e *Entry) error {
	query := `INSERT INTO audit_log
		(id, ts, event_type, user_id, resource_type, resource_id, action,
		 details, success, error_message, integrity_hash, previous_log_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	success := 0
	if e.Success {
		success = 1
	}
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Timestamp.UTC().UnixNano(), e.EventType, e.UserID,
		e.ResourceType, e.ResourceID, e.Action, e.Details, success,
		e.ErrorMessage, e.IntegrityHash, e.PreviousLogHash)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) LastHash(ctx context.Context) (string, error) {
	var hash string
	query := `SELECT integrity_hash FROM audit_log ORDER BY seq DESC LIMIT 1`
	err := r.db.QueryRowContext(ctx, query).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read chain head: %w", err)
	}
	return hash, nil
}

func (r *SQLiteRepository) Range(ctx context.Context, fromID, toID string) ([]Entry, error) {
	fromSeq := int64(0)
	if fromID != "" {
		seq, err := r.seqOf(ctx, fromID)
		if err != nil {
			return nil, err
		}
		fromSeq = seq
	}
	toSeq := int64(1<<63 - 1)
	if toID != "" {
		seq, err := r.seqOf(ctx, toID)
		if err != nil {
			return nil, err
		}
		toSeq = seq
	}

	query := `SELECT id, ts, event_type, user_id, resource_type, resource_id,
		action, details, success, error_message, integrity_hash, previous_log_hash
		FROM audit_log WHERE seq >= ? AND seq <= ? ORDER BY seq`
	rows, err := r.db.QueryContext(ctx, query, fromSeq, toSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to select audit range: %w", err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		var success int
		if err := rows.Scan(&e.ID, &ts, &e.EventType, &e.UserID, &e.ResourceType,
			&e.ResourceID, &e.Action, &e.Details, &success, &e.ErrorMessage,
			&e.IntegrityHash, &e.PreviousLogHash); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		e.Success = success == 1
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) seqOf(ctx context.Context, id string) (int64, error) {
	var seq int64
	err := r.db.QueryRowContext(ctx, `SELECT seq FROM audit_log WHERE id = ?`, id).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve audit entry %q: %w", id, err)
	}
	return seq, nil
}
