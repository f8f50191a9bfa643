package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func TestDefaultMapper(t *testing.T) {
	req := require.New(t)

	row := DefaultMapper("conv:0000000000000000001:0000000000000000002:0000000000000000007",
		[]byte(`{"id":7,"sender_id":2,"receiver_id":1,"content":"hi","at":0}`))
	req.Equal("MESSAGE", row.Type)
	req.Equal("7", row.EntityID)
	req.Equal("2 -> 1: hi", row.Detail)

	row = DefaultMapper("user:0000000000000000003", []byte(`{"id":3,"username":"carol"}`))
	req.Equal("USER", row.Type)
	req.Equal("3", row.EntityID)
	req.Equal("carol", row.Detail)

	row = DefaultMapper("seq:msg", []byte{1, 2})
	req.Equal("RAW", row.Type)
	req.Equal("Size: 2 bytes", row.Detail)
}

func TestInspectHandler_Lists_Prefix(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer func() { _ = db.Close() }()
	req.NoError(db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte("user:0000000000000000001"), []byte(`{"username":"alice"}`)); err != nil {
			return err
		}
		return txn.Set([]byte("username:alice"), []byte("1"))
	}))

	rec := httptest.NewRecorder()
	InspectHandler(db, nil, func() map[string]any { return map[string]any{"connections": 2} }).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/inspect?prefix=user:", nil))

	req.Equal(http.StatusOK, rec.Code)
	req.Contains(rec.Body.String(), "alice")
	req.Contains(rec.Body.String(), "connections: 2")
	req.NotContains(rec.Body.String(), "username:alice")
}
