package services_test

import (
	"context"
	"dm-relay/auth"
	"dm-relay/domain"
	"dm-relay/errors"
	"dm-relay/mocks"
	"dm-relay/services"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newAuthService(t *testing.T) (services.IAuthService, *mocks.MockIIdentityStore, *auth.TokenIssuer) {
	ctrl := gomock.NewController(t)
	identity := mocks.NewMockIIdentityStore(ctrl)
	tokens := auth.NewTokenIssuer("test-secret", 24*time.Hour)
	return services.NewAuthService(identity, tokens), identity, tokens
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("should register successfully when input is valid", func(t *testing.T) {
		req := require.New(t)
		svc, identity, tokens := newAuthService(t)

		// Expect CreateUser to be called with a hashed password, never the plain one
		identity.EXPECT().
			CreateUser(gomock.Any(), "alice", gomock.Not("ComplexPass123!")).
			Return(domain.User{ID: 1, Username: "alice"}, nil).
			Times(1)

		session, err := svc.Register(ctx, "alice", "ComplexPass123!")

		req.NoError(err)
		req.Equal(domain.UserID(1), session.ID)
		req.Equal("alice", session.Username)
		claims, err := tokens.ValidateToken(session.Token)
		req.NoError(err)
		req.Equal(domain.UserID(1), claims.UserID)
	})

	t.Run("should fail when password complexity is not met", func(t *testing.T) {
		req := require.New(t)
		svc, identity, _ := newAuthService(t)

		// Store should never be called
		identity.EXPECT().CreateUser(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		session, err := svc.Register(ctx, "alice", "simplepassword")

		req.ErrorIs(err, errors.ErrInvalidPassword)
		req.Empty(session.Token)
	})

	t.Run("should fail when user already exists", func(t *testing.T) {
		req := require.New(t)
		svc, identity, _ := newAuthService(t)

		identity.EXPECT().
			CreateUser(gomock.Any(), "alice", gomock.Any()).
			Return(domain.User{}, errors.ErrUserAlreadyExists).
			Times(1)

		_, err := svc.Register(ctx, "alice", "ComplexPass123!")

		req.ErrorIs(err, errors.ErrUserAlreadyExists)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	hash, err := auth.HashPassword("ComplexPass123!")
	require.NoError(t, err)

	t.Run("should login successfully with correct credentials", func(t *testing.T) {
		req := require.New(t)
		svc, identity, _ := newAuthService(t)
		identity.EXPECT().
			GetUserByUsername(gomock.Any(), "alice").
			Return(domain.User{ID: 3, Username: "alice", PasswordHash: hash}, nil)

		session, err := svc.Login(ctx, "alice", "ComplexPass123!")

		req.NoError(err)
		req.Equal(domain.UserID(3), session.ID)
		req.NotEmpty(session.Token)
	})

	t.Run("should fail with wrong password", func(t *testing.T) {
		req := require.New(t)
		svc, identity, _ := newAuthService(t)
		identity.EXPECT().
			GetUserByUsername(gomock.Any(), "alice").
			Return(domain.User{ID: 3, Username: "alice", PasswordHash: hash}, nil)

		_, err := svc.Login(ctx, "alice", "WrongPass123!")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})

	t.Run("should not reveal unknown users", func(t *testing.T) {
		req := require.New(t)
		svc, identity, _ := newAuthService(t)
		identity.EXPECT().
			GetUserByUsername(gomock.Any(), "ghost").
			Return(domain.User{}, errors.ErrUserNotFound)

		_, err := svc.Login(ctx, "ghost", "ComplexPass123!")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})
}

func TestAuthService_ListUsers(t *testing.T) {
	req := require.New(t)
	svc, identity, _ := newAuthService(t)
	users := []domain.User{{ID: 2, Username: "bob"}}
	identity.EXPECT().ListUsers(gomock.Any(), domain.UserID(1)).Return(users, nil)

	got, err := svc.ListUsers(context.Background(), 1)

	req.NoError(err)
	req.Equal(users, got)
}
