package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avelichko/casevault/internal/audit"
	"github.com/avelichko/casevault/internal/cache"
	"github.com/avelichko/casevault/internal/cryptox"
	"github.com/avelichko/casevault/internal/dbx"
	"github.com/avelichko/casevault/internal/logging"
	"github.com/avelichko/casevault/internal/metrics"
	"github.com/google/uuid"
)

const resourceTypeCase = "case"

// Repository reads and writes case records. It is stateless between calls;
// all durable state lives in the store and all transient state in the
// injected cache. Store errors propagate unretried, since a blind retry of a
// non-idempotent write is worse than surfacing the failure.
type Repository struct {
	db     *sql.DB
	crypto *cryptox.Service
	cache  *cache.Cache
	audit  *audit.Logger
	log    logging.Logger

	now func() time.Time
}

func NewRepository(db *sql.DB, crypto *cryptox.Service, c *cache.Cache, a *audit.Logger, log logging.Logger) *Repository {
	return &Repository{
		db:     db,
		crypto: crypto,
		cache:  c,
		audit:  a,
		log:    log,
		now:    time.Now,
	}
}

// row is the raw, still-encrypted shape scanned from the store.
type row struct {
	id         string
	caseNumber string
	title      string
	status     string
	clientEnc  []byte
	notesEnc   []byte
	createdAt  int64
	updatedAt  int64
}

// FindPage returns one window of the filtered case set, ordered by the
// stable (created_at, id) key. limit must be between 1 and MaxPageLimit.
// Only the rows actually returned are decrypted, so the cost of a page is
// proportional to the page, never to the table.
func (r *Repository) FindPage(ctx context.Context, userID string, f Filter, cursorToken string, limit int, dir Direction) (*Page, error) {
	if limit < 1 || limit > MaxPageLimit {
		return nil, fmt.Errorf("%w: limit must be 1..%d, got %d", ErrInvalidArgument, MaxPageLimit, limit)
	}
	if !dir.valid() {
		return nil, fmt.Errorf("%w: direction must be %q or %q", ErrInvalidArgument, Asc, Desc)
	}

	var cur *Cursor
	if cursorToken != "" {
		c, err := DecodeCursor(cursorToken)
		if err != nil {
			return nil, err
		}
		if c.Direction != dir {
			return nil, fmt.Errorf("%w: cursor direction mismatch", ErrInvalidArgument)
		}
		cur = &c
	}

	rows, hasMore, err := r.scanWindow(ctx, f, cur, limit, dir)
	if err != nil {
		return nil, fmt.Errorf("querying case page: %w", err)
	}

	page := &Page{Items: make([]Item, 0, len(rows))}
	for _, rw := range rows {
		page.Items = append(page.Items, r.openRow(rw))
	}

	reverse := cur != nil && cur.Reverse
	if len(rows) > 0 {
		first, last := rows[0], rows[len(rows)-1]
		if (!reverse && hasMore) || reverse {
			page.NextCursor = Cursor{CreatedAt: last.createdAt, ID: last.id, Direction: dir}.Encode()
		}
		if (reverse && hasMore) || (!reverse && cur != nil) {
			page.PrevCursor = Cursor{CreatedAt: first.createdAt, ID: first.id, Direction: dir, Reverse: true}.Encode()
		}
	}

	metrics.PagesServed.Inc()
	r.auditRead(ctx, userID, fmt.Sprintf("count=%d", len(page.Items)))
	return page, nil
}

// scanWindow fetches limit+1 raw rows around the cursor. The extra row only
// signals whether the traversal continues; it is never decrypted.
func (r *Repository) scanWindow(ctx context.Context, f Filter, cur *Cursor, limit int, dir Direction) ([]row, bool, error) {
	var where []string
	var args []any

	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.CaseNumber != "" {
		where = append(where, "case_number = ?")
		args = append(args, f.CaseNumber)
	}

	// Scan direction matches presentation order for next-page fetches and is
	// flipped for prev-page fetches, which are then reversed in memory.
	forward := "asc"
	if dir == Desc {
		forward = "desc"
	}
	scan := forward
	if cur != nil && cur.Reverse {
		scan = flip(forward)
	}

	if cur != nil {
		// moving away from the cursor in scan order
		cmp := ">"
		if scan == "desc" {
			cmp = "<"
		}
		where = append(where, fmt.Sprintf("(created_at %s ? OR (created_at = ? AND id %s ?))", cmp, cmp))
		args = append(args, cur.CreatedAt, cur.CreatedAt, cur.ID)
	}

	query := `SELECT id, case_number, title, status, client_name_enc, notes_enc, created_at, updated_at FROM cases`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at %s, id %s LIMIT ?", scan, scan)
	args = append(args, limit+1)

	res, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}
	defer res.Close()

	var rows []row
	for res.Next() {
		var rw row
		if err := res.Scan(&rw.id, &rw.caseNumber, &rw.title, &rw.status,
			&rw.clientEnc, &rw.notesEnc, &rw.createdAt, &rw.updatedAt); err != nil {
			return nil, false, err
		}
		rows = append(rows, rw)
	}
	if err := res.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	if scan != forward {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	return rows, hasMore, nil
}

func flip(order string) string {
	if order == "asc" {
		return "desc"
	}
	return "asc"
}

// openRow decrypts a row's sensitive fields into an Item. A failed decrypt
// marks the item unreadable instead of failing the whole page; garbled or
// empty text must never be presented as the record's content.
func (r *Repository) openRow(rw row) Item {
	item := Item{Case: Case{
		ID:         rw.id,
		CaseNumber: rw.caseNumber,
		Title:      rw.title,
		Status:     rw.status,
		CreatedAt:  time.Unix(0, rw.createdAt).UTC(),
		UpdatedAt:  time.Unix(0, rw.updatedAt).UTC(),
	}}

	clientName, err := r.openField(rw.clientEnc)
	if err == nil {
		item.Case.ClientName = clientName

		var notes string
		if notes, err = r.openField(rw.notesEnc); err == nil {
			item.Case.Notes = notes
		}
	}
	if err != nil {
		metrics.DecryptFailures.Inc()
		item.DecryptErr = err
		item.Case.ClientName = ""
		item.Case.Notes = ""
	}
	return item
}

// openField resolves one envelope through the cache, decrypting on a miss.
func (r *Repository) openField(blob []byte) (string, error) {
	env, err := cryptox.UnmarshalEnvelope(blob)
	if err != nil {
		return "", err
	}
	fp := cryptox.Fingerprint(env)

	if v, ok := r.cache.Get(fp); ok {
		metrics.CacheHits.Inc()
		return v, nil
	}
	metrics.CacheMisses.Inc()

	v, err := r.crypto.Decrypt(env)
	if err != nil {
		return "", err
	}
	r.cache.Put(fp, v, int64(len(v)))
	return v, nil
}

// sealField encrypts a value and returns the stored blob plus the cache
// fingerprint of the new envelope.
func (r *Repository) sealField(value string) ([]byte, string, error) {
	env, err := r.crypto.Encrypt(value)
	if err != nil {
		return nil, "", err
	}
	blob, err := env.MarshalBinary()
	if err != nil {
		return nil, "", err
	}
	return blob, cryptox.Fingerprint(env), nil
}

// Create inserts a new case with encrypted sensitive fields. If the audit
// append fails after the row committed, the operation is reported as failed
// and the inconsistency is logged for operator review.
func (r *Repository) Create(ctx context.Context, userID string, d Draft) (*Case, error) {
	clientBlob, clientFP, err := r.sealField(d.ClientName)
	if err != nil {
		return nil, fmt.Errorf("encrypting client name: %w", err)
	}
	notesBlob, notesFP, err := r.sealField(d.Notes)
	if err != nil {
		return nil, fmt.Errorf("encrypting notes: %w", err)
	}

	id := uuid.NewString()
	now := r.now().UTC()

	query := `INSERT INTO cases
		(id, case_number, title, status, client_name_enc, notes_enc, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query,
		id, d.CaseNumber, d.Title, d.Status, clientBlob, notesBlob,
		now.UnixNano(), now.UnixNano()); err != nil {
		return nil, fmt.Errorf("inserting case: %w", err)
	}

	r.cache.Put(clientFP, d.ClientName, int64(len(d.ClientName)))
	r.cache.Put(notesFP, d.Notes, int64(len(d.Notes)))

	if err := r.auditMutation(ctx, userID, id, audit.ActionCreate); err != nil {
		return nil, err
	}

	return &Case{
		ID:         id,
		CaseNumber: d.CaseNumber,
		Title:      d.Title,
		Status:     d.Status,
		ClientName: d.ClientName,
		Notes:      d.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Update re-encrypts and rewrites a case. The old cache entries are
// invalidated before the new values are cached, so a reader can never be
// served pre-update plaintext. created_at is deliberately left untouched; it
// anchors the pagination order.
func (r *Repository) Update(ctx context.Context, userID, id string, d Draft) (*Case, error) {
	clientBlob, clientFP, err := r.sealField(d.ClientName)
	if err != nil {
		return nil, fmt.Errorf("encrypting client name: %w", err)
	}
	notesBlob, notesFP, err := r.sealField(d.Notes)
	if err != nil {
		return nil, fmt.Errorf("encrypting notes: %w", err)
	}

	now := r.now().UTC()

	var existing storedEnvelopes
	err = dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		existing, err = fetchEnvelopes(ctx, tx, id)
		if err != nil {
			return err
		}
		query := `UPDATE cases SET case_number = ?, title = ?, status = ?,
			client_name_enc = ?, notes_enc = ?, updated_at = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, query,
			d.CaseNumber, d.Title, d.Status, clientBlob, notesBlob,
			now.UnixNano(), id); err != nil {
			return fmt.Errorf("updating case: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, fp := range existing.fingerprints() {
		r.cache.Invalidate(fp)
	}
	r.cache.Put(clientFP, d.ClientName, int64(len(d.ClientName)))
	r.cache.Put(notesFP, d.Notes, int64(len(d.Notes)))

	if err := r.auditMutation(ctx, userID, id, audit.ActionUpdate); err != nil {
		return nil, err
	}

	return &Case{
		ID:         id,
		CaseNumber: d.CaseNumber,
		Title:      d.Title,
		Status:     d.Status,
		ClientName: d.ClientName,
		Notes:      d.Notes,
		CreatedAt:  time.Unix(0, existing.createdAt).UTC(),
		UpdatedAt:  now,
	}, nil
}

// Delete removes a case and drops its cached plaintext. Returns false when
// the id matches nothing.
func (r *Repository) Delete(ctx context.Context, userID, id string) (bool, error) {
	var existing storedEnvelopes
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		existing, err = fetchEnvelopes(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cases WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting case: %w", err)
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	for _, fp := range existing.fingerprints() {
		r.cache.Invalidate(fp)
	}

	if err := r.auditMutation(ctx, userID, id, audit.ActionDelete); err != nil {
		return false, err
	}
	return true, nil
}

type storedEnvelopes struct {
	clientEnc []byte
	notesEnc  []byte
	createdAt int64
}

func (s storedEnvelopes) fingerprints() []string {
	var fps []string
	for _, blob := range [][]byte{s.clientEnc, s.notesEnc} {
		if env, err := cryptox.UnmarshalEnvelope(blob); err == nil {
			fps = append(fps, cryptox.Fingerprint(env))
		}
	}
	return fps
}

func fetchEnvelopes(ctx context.Context, db dbx.DBTX, id string) (storedEnvelopes, error) {
	var s storedEnvelopes
	err := db.QueryRowContext(ctx,
		`SELECT client_name_enc, notes_enc, created_at FROM cases WHERE id = ?`, id).
		Scan(&s.clientEnc, &s.notesEnc, &s.createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	if err != nil {
		return s, fmt.Errorf("fetching case %q: %w", id, err)
	}
	return s, nil
}

// auditRead records a page access. A failing audit store must not take the
// read path down with it, so failures are logged and counted only.
func (r *Repository) auditRead(ctx context.Context, userID, details string) {
	err := r.audit.Append(ctx, audit.Entry{
		EventType:    audit.EventDataAccess,
		UserID:       userID,
		ResourceType: resourceTypeCase,
		Action:       audit.ActionRead,
		Details:      details,
		Success:      true,
	})
	if err != nil {
		metrics.AuditAppendFailures.Inc()
		r.log.Error(ctx, "audit append failed on read path", "error", err)
	}
}

// auditMutation records a write. Here the policy is audit-or-abort: the
// caller's operation fails when the append does, even though the row write
// already committed, and the gap is logged for operator review.
func (r *Repository) auditMutation(ctx context.Context, userID, caseID, action string) error {
	err := r.audit.Append(ctx, audit.Entry{
		EventType:    audit.EventDataMutation,
		UserID:       userID,
		ResourceType: resourceTypeCase,
		ResourceID:   caseID,
		Action:       action,
		Success:      true,
	})
	if err != nil {
		metrics.AuditAppendFailures.Inc()
		r.log.Error(ctx, "case write committed but audit append failed",
			"case_id", caseID, "action", action, "error", err)
		return err
	}
	return nil
}
