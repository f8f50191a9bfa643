package domain

import (
	"dm-relay/errors"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserID_UnmarshalJSON_Normalizes_Numbers_And_Strings(t *testing.T) {
	req := require.New(t)

	var fromNumber, fromString struct {
		ID UserID `json:"id"`
	}
	req.NoError(json.Unmarshal([]byte(`{"id": 42}`), &fromNumber))
	req.NoError(json.Unmarshal([]byte(`{"id": "42"}`), &fromString))

	// Then both encodings resolve to the same canonical identity
	req.Equal(UserID(42), fromNumber.ID)
	req.Equal(fromNumber.ID, fromString.ID)
}

func TestUserID_UnmarshalJSON_Rejects_Invalid(t *testing.T) {
	for _, raw := range []string{`{"id": "abc"}`, `{"id": 0}`, `{"id": -3}`, `{"id": 1.5}`, `{"id": true}`} {
		var v struct {
			ID UserID `json:"id"`
		}
		err := json.Unmarshal([]byte(raw), &v)
		require.ErrorIs(t, err, errors.ErrInvalidUserID, raw)
	}
}

func TestParseUserID(t *testing.T) {
	req := require.New(t)
	id, err := ParseUserID("7")
	req.NoError(err)
	req.Equal(UserID(7), id)
	req.Equal("7", id.String())

	_, err = ParseUserID("")
	req.ErrorIs(err, errors.ErrInvalidUserID)
}

func TestMessage_Between(t *testing.T) {
	req := require.New(t)
	m := Message{SenderID: 1, ReceiverID: 2}
	req.True(m.Between(1, 2))
	req.True(m.Between(2, 1))
	req.False(m.Between(1, 3))
}

func TestUserIDFromJSON_Rejects_Missing(t *testing.T) {
	req := require.New(t)
	for _, raw := range []string{``, `null`, ` `} {
		_, err := UserIDFromJSON([]byte(raw))
		req.ErrorIs(err, errors.ErrInvalidUserID, raw)
	}
	id, err := UserIDFromJSON([]byte(` "9" `))
	req.NoError(err)
	req.Equal(UserID(9), id)
}
