package records

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Cursor pins a position in the (created_at, id) ordering. created_at is set
// once at insert and never updated, and the uuid breaks ties, so the sort key
// is stable and monotonic; pages never duplicate or skip rows that existed
// for the whole traversal. The token is opaque to callers.
type Cursor struct {
	CreatedAt int64     `json:"c"` // unix nanoseconds
	ID        string    `json:"i"`
	Direction Direction `json:"d"` // presentation order of the traversal
	Reverse   bool      `json:"r"` // true for prev-page tokens
}

// Encode serializes the cursor as a base64url token.
func (c Cursor) Encode() string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor parses a token produced by Encode.
func DecodeCursor(token string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: undecodable cursor", ErrInvalidArgument)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, fmt.Errorf("%w: malformed cursor", ErrInvalidArgument)
	}
	if !c.Direction.valid() || c.ID == "" {
		return Cursor{}, fmt.Errorf("%w: incomplete cursor", ErrInvalidArgument)
	}
	return c, nil
}
