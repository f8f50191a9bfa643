//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"dm-relay/contract"
	"dm-relay/domain"
	"dm-relay/errors"
	"fmt"
	"log/slog"
)

type IChatService interface {
	Join(userID domain.UserID, conn contract.Connection) error
	Leave(connectionID string)
	Send(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
	History(ctx context.Context, a, b domain.UserID) ([]domain.Message, error)
	Presence() (users int, connections int)
}

// MessageSubmitter runs the delivery protocol for one send.
type MessageSubmitter interface {
	Submit(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
}

// ChatService is the facade used by transports. Joining never replays history: clients pull it explicitly.
type ChatService struct {
	log      *slog.Logger
	engine   MessageSubmitter
	registry contract.IRegistry
	history  contract.IHistoryStore
}

func NewChatService(log *slog.Logger, engine MessageSubmitter, registry contract.IRegistry, history contract.IHistoryStore) *ChatService {
	return &ChatService{log: log, engine: engine, registry: registry, history: history}
}

func (s *ChatService) Join(userID domain.UserID, conn contract.Connection) error {
	if err := s.registry.Join(userID, conn); err != nil {
		return err
	}
	s.log.Debug("Connection joined", "user_id", userID, "connection_id", conn.ID())
	return nil
}

func (s *ChatService) Leave(connectionID string) {
	s.registry.Leave(connectionID)
	s.log.Debug("Connection left", "connection_id", connectionID)
}

func (s *ChatService) Send(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	return s.engine.Submit(ctx, cmd)
}

// History returns the conversation between a and b, oldest first.
func (s *ChatService) History(ctx context.Context, a, b domain.UserID) ([]domain.Message, error) {
	if !a.Valid() || !b.Valid() {
		return nil, fmt.Errorf("%w: %s, %s", errors.ErrInvalidUserID, a, b)
	}
	messages, err := s.history.Conversation(ctx, a, b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrPersistenceFailure, err)
	}
	return messages, nil
}

func (s *ChatService) Presence() (int, int) {
	return s.registry.Stats()
}
