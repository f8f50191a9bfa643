package services_test

import (
	"context"
	"dm-relay/domain"
	"dm-relay/errors"
	"dm-relay/mocks"
	"dm-relay/services"
	stderrors "errors"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type chatFixture struct {
	svc      *services.ChatService
	engine   *mocks.MockMessageSubmitter
	registry *mocks.MockIRegistry
	history  *mocks.MockIHistoryStore
}

func newChatFixture(t *testing.T) chatFixture {
	ctrl := gomock.NewController(t)
	f := chatFixture{
		engine:   mocks.NewMockMessageSubmitter(ctrl),
		registry: mocks.NewMockIRegistry(ctrl),
		history:  mocks.NewMockIHistoryStore(ctrl),
	}
	f.svc = services.NewChatService(logs.GetLoggerFromLevel(slog.LevelDebug), f.engine, f.registry, f.history)
	return f
}

func TestChatService_Join_And_Leave(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	conn := mocks.NewMockConnection(gomock.NewController(t))
	conn.EXPECT().ID().Return("conn-1").AnyTimes()

	f.registry.EXPECT().Join(domain.UserID(1), conn).Return(nil)
	f.registry.EXPECT().Leave("conn-1")

	req.NoError(f.svc.Join(1, conn))
	f.svc.Leave("conn-1")
}

func TestChatService_Join_Refused(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	conn := mocks.NewMockConnection(gomock.NewController(t))

	f.registry.EXPECT().Join(domain.UserID(0), conn).Return(errors.ErrInvalidUserID)

	req.ErrorIs(f.svc.Join(0, conn), errors.ErrInvalidUserID)
}

func TestChatService_Send_Delegates_To_Engine(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	cmd := domain.SendMessageCommand{SenderID: 1, ReceiverID: 2, Content: "hi"}
	persisted := domain.Message{ID: 10, SenderID: 1, ReceiverID: 2, Content: "hi"}

	f.engine.EXPECT().Submit(gomock.Any(), cmd).Return(persisted, nil)

	msg, err := f.svc.Send(context.Background(), cmd)
	req.NoError(err)
	req.Equal(persisted, msg)
}

func TestChatService_History(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	messages := []domain.Message{{ID: 1}, {ID: 2}}

	f.history.EXPECT().Conversation(gomock.Any(), domain.UserID(1), domain.UserID(2)).Return(messages, nil)

	got, err := f.svc.History(context.Background(), 1, 2)
	req.NoError(err)
	req.Equal(messages, got)
}

func TestChatService_History_Errors(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)

	// Given invalid ids, the store is never hit
	_, err := f.svc.History(context.Background(), 0, 2)
	req.ErrorIs(err, errors.ErrInvalidUserID)

	// Given a failing store
	f.history.EXPECT().Conversation(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, stderrors.New("closed"))
	_, err = f.svc.History(context.Background(), 1, 2)
	req.ErrorIs(err, errors.ErrPersistenceFailure)
}

func TestChatService_Presence(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	f.registry.EXPECT().Stats().Return(2, 5)

	users, connections := f.svc.Presence()
	req.Equal(2, users)
	req.Equal(5, connections)
}
