package repositories

import (
	"context"
	"dm-relay/domain"
	"dm-relay/errors"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_Create_And_Get(t *testing.T) {
	req := require.New(t)
	repository, err := NewUserRepository(openBadger(t))
	req.NoError(err)
	defer repository.Close()
	ctx := context.Background()

	created, err := repository.CreateUser(ctx, "alice", "hash")
	req.NoError(err)
	req.True(created.ID.Valid())

	byID, err := repository.GetUser(ctx, created.ID)
	req.NoError(err)
	req.Equal("alice", byID.Username)
	req.Equal("hash", byID.PasswordHash)

	byName, err := repository.GetUserByUsername(ctx, "ALICE")
	req.NoError(err)
	req.Equal(created.ID, byName.ID)
}

func TestUserRepository_Duplicate_Username(t *testing.T) {
	req := require.New(t)
	repository, err := NewUserRepository(openBadger(t))
	req.NoError(err)
	defer repository.Close()
	ctx := context.Background()

	_, err = repository.CreateUser(ctx, "bob", "hash")
	req.NoError(err)

	_, err = repository.CreateUser(ctx, "Bob", "other")
	req.ErrorIs(err, errors.ErrUserAlreadyExists)
}

func TestUserRepository_Unknown_User(t *testing.T) {
	req := require.New(t)
	repository, err := NewUserRepository(openBadger(t))
	req.NoError(err)
	defer repository.Close()

	_, err = repository.GetUser(context.Background(), 404)
	req.ErrorIs(err, errors.ErrUserNotFound)

	_, err = repository.GetUserByUsername(context.Background(), "nobody")
	req.ErrorIs(err, errors.ErrUserNotFound)
}

func TestUserRepository_ListUsers_Excludes_Current(t *testing.T) {
	req := require.New(t)
	repository, err := NewUserRepository(openBadger(t))
	req.NoError(err)
	defer repository.Close()
	ctx := context.Background()

	var ids []domain.UserID
	for _, name := range []string{"alice", "bob", "clara"} {
		user, err := repository.CreateUser(ctx, name, "hash")
		req.NoError(err)
		ids = append(ids, user.ID)
	}

	users, err := repository.ListUsers(ctx, ids[1])
	req.NoError(err)
	req.Equal([]string{"alice", "clara"}, lo.Map(users, func(u domain.User, _ int) string { return u.Username }))
}
