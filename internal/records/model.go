// Package records is the encrypted, paginated access layer for case
// records. It owns the read/write path: sensitive fields pass through the
// encryption service, decrypted values go through the injected cache, and
// every access or mutation lands in the audit log.
package records

import (
	"errors"
	"time"
)

var (
	// ErrInvalidArgument rejects bad pagination input before the store is
	// touched. Oversized limits fail loudly instead of being clamped.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound reports an id that matches no case.
	ErrNotFound = errors.New("case not found")
)

// MaxPageLimit is the hard ceiling for FindPage limits.
const MaxPageLimit = 200

// Case is a plaintext view of one record. ClientName and Notes are stored
// encrypted; callers never see envelopes.
type Case struct {
	ID         string
	CaseNumber string
	Title      string
	Status     string
	ClientName string
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Draft carries the caller-supplied fields for create and update.
type Draft struct {
	CaseNumber string
	Title      string
	Status     string
	ClientName string
	Notes      string
}

// Filter narrows FindPage results. Zero values match everything.
type Filter struct {
	Status     string
	CaseNumber string
}

// Item is one page entry. DecryptErr is set when a sensitive field could not
// be opened (tamper or wrong key); the row is still listed so one bad record
// does not hide the rest of the page.
type Item struct {
	Case       Case
	DecryptErr error
}

// Page is one window of a cursor traversal. Empty cursor strings mean there
// is nothing further in that direction.
type Page struct {
	Items      []Item
	NextCursor string
	PrevCursor string
}

// Direction selects the presentation order of a traversal.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

func (d Direction) valid() bool {
	return d == Asc || d == Desc
}
