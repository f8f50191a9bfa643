package repositories

import (
	"context"
	"dm-relay/domain"
	"dm-relay/errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

// setupPostgres requires DATABASE_URL to point at a disposable database.
func setupPostgres(t *testing.T, limitMessages *int) *PostgresStore {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := NewPostgresStore(ctx, url, limitMessages)
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(store.Close)
	return store
}

func TestPostgresStore_Append_And_Conversation(t *testing.T) {
	req := require.New(t)
	store := setupPostgres(t, nil)
	ctx := context.Background()
	suffix := time.Now().UnixNano()

	alice, err := store.CreateUser(ctx, fmt.Sprintf("alice%d", suffix), "hash")
	req.NoError(err)
	bob, err := store.CreateUser(ctx, fmt.Sprintf("bob%d", suffix), "hash")
	req.NoError(err)

	_, err = store.CreateUser(ctx, alice.Username, "hash")
	req.ErrorIs(err, errors.ErrUserAlreadyExists)

	first, err := store.Append(ctx, domain.NewMessage{SenderID: alice.ID, ReceiverID: bob.ID, Content: "hi"})
	req.NoError(err)
	req.Equal(alice.Username, first.SenderName)
	second, err := store.Append(ctx, domain.NewMessage{SenderID: bob.ID, ReceiverID: alice.ID, Content: "hey"})
	req.NoError(err)
	req.Greater(second.ID, first.ID)

	messages, err := store.Conversation(ctx, bob.ID, alice.ID)
	req.NoError(err)
	req.Len(messages, 2)
	req.Equal(first.ID, messages[0].ID)
	req.Equal(bob.Username, messages[1].SenderName)

	_, err = store.GetUser(ctx, domain.UserID(1<<62))
	req.ErrorIs(err, errors.ErrUserNotFound)
}

func TestPostgresStore_Conversation_Limit_Keeps_Most_Recent(t *testing.T) {
	req := require.New(t)
	limit := 2
	store := setupPostgres(t, &limit)
	ctx := context.Background()
	suffix := time.Now().UnixNano()

	alice, err := store.CreateUser(ctx, fmt.Sprintf("alice%d", suffix), "hash")
	req.NoError(err)
	bob, err := store.CreateUser(ctx, fmt.Sprintf("bob%d", suffix), "hash")
	req.NoError(err)

	// Given three messages in the conversation
	for _, content := range []string{"a", "b", "c"} {
		_, err = store.Append(ctx, domain.NewMessage{SenderID: alice.ID, ReceiverID: bob.ID, Content: content})
		req.NoError(err)
	}

	// When the history is read with a limit of two
	messages, err := store.Conversation(ctx, bob.ID, alice.ID)
	req.NoError(err)

	// Then the two most recent are returned, oldest first
	req.Equal([]string{"b", "c"}, lo.Map(messages, func(m domain.Message, _ int) string { return m.Content }))
}
