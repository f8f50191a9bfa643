//go:generate go run go.uber.org/mock/mockgen -source=auth_service.go -destination=../mocks/mock_auth_service.go -package=mocks
package services

import (
	"context"
	"dm-relay/auth"
	"dm-relay/contract"
	"dm-relay/domain"
	"dm-relay/errors"
	stderrors "errors"
	"fmt"
)

type IAuthService interface {
	Register(ctx context.Context, username, password string) (Session, error)
	Login(ctx context.Context, username, password string) (Session, error)
	ListUsers(ctx context.Context, current domain.UserID) ([]domain.User, error)
}

// Session is what a client needs after register or login.
type Session struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
	Token    string        `json:"token"`
}

type AuthService struct {
	identity contract.IIdentityStore
	tokens   *auth.TokenIssuer
}

func NewAuthService(identity contract.IIdentityStore, tokens *auth.TokenIssuer) IAuthService {
	return &AuthService{identity: identity, tokens: tokens}
}

func (s *AuthService) Register(ctx context.Context, username, password string) (Session, error) {
	// Validated before any expensive cryptographic operation
	if err := auth.ValidateRegister(auth.RegisterRequest{Username: username, Password: password}); err != nil {
		return Session{}, err
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return Session{}, fmt.Errorf("hashing failed: %w", err)
	}

	user, err := s.identity.CreateUser(ctx, username, hashedPassword)
	if err != nil {
		return Session{}, err // ErrUserAlreadyExists if the username is taken
	}
	return s.session(user)
}

func (s *AuthService) Login(ctx context.Context, username, password string) (Session, error) {
	if err := auth.ValidateLogin(auth.LoginRequest{Username: username, Password: password}); err != nil {
		return Session{}, err
	}

	user, err := s.identity.GetUserByUsername(ctx, username)
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			// Generic error to prevent user enumeration
			return Session{}, errors.ErrInvalidCredentials
		}
		return Session{}, err
	}

	if err := auth.VerifyPassword(password, user.PasswordHash); err != nil {
		return Session{}, err
	}
	return s.session(user)
}

// ListUsers returns every user except current.
func (s *AuthService) ListUsers(ctx context.Context, current domain.UserID) ([]domain.User, error) {
	return s.identity.ListUsers(ctx, current)
}

func (s *AuthService) session(user domain.User) (Session, error) {
	token, err := s.tokens.GenerateToken(user.ID)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", errors.ErrTokenGeneration, err)
	}
	return Session{ID: user.ID, Username: user.Username, Token: token}, nil
}
