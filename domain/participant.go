// Package domain contains core concepts of the direct-message system.
// This file defines participant identities and their canonical representation.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"bytes"
	"dm-relay/errors"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// UserID is the single canonical identity of a participant.
// Numbers and numeric strings are both accepted on the wire and normalized here,
// so that a registry lookup never depends on how a client encoded the id.
type UserID int64

// ParseUserID converts a textual id (URL parameter, JSON string) into a UserID.
func ParseUserID(s string) (UserID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", errors.ErrInvalidUserID, s)
	}
	return UserID(n), nil
}

func (id UserID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

func (id UserID) Valid() bool {
	return id > 0
}

func (id *UserID) UnmarshalJSON(data []byte) error {
	parsed, err := UserIDFromJSON(data)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// UserIDFromJSON reads an id encoded as a JSON number or numeric string.
// Missing, null, non-numeric and non-positive values are ErrInvalidUserID.
func UserIDFromJSON(data []byte) (UserID, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, fmt.Errorf("%w: missing", errors.ErrInvalidUserID)
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, fmt.Errorf("%w: %s", errors.ErrInvalidUserID, data)
		}
		return ParseUserID(s)
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s", errors.ErrInvalidUserID, data)
	}
	return UserID(n), nil
}

// User is owned by the identity store. PasswordHash never leaves the server.
type User struct {
	ID           UserID    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
}
