package runtime

import (
	"context"
	"dm-relay/domain"
	"dm-relay/domain/event"
	"dm-relay/errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// recordingConnection collects every event it receives.
type recordingConnection struct {
	id     string
	mu     sync.Mutex
	events []event.DomainEvent
	block  bool
}

func newRecordingConnection() *recordingConnection {
	return &recordingConnection{id: uuid.NewString()}
}

func (c *recordingConnection) ID() string { return c.id }

func (c *recordingConnection) Consume(ctx context.Context, e event.DomainEvent) error {
	if c.block {
		<-ctx.Done()
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *recordingConnection) received() []event.DomainEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.DomainEvent(nil), c.events...)
}

func newTestRegistry() *Registry {
	return NewRegistry(logs.GetLoggerFromLevel(slog.LevelDebug), time.Second)
}

func TestRegistry_Join_One_User_Multiple_Connections(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()
	userID := domain.UserID(2)
	tab1, tab2 := newRecordingConnection(), newRecordingConnection()

	// Given no user is connected
	req.False(registry.Reachable(userID))

	// When a user joins from two tabs
	req.NoError(registry.Join(userID, tab1))
	req.NoError(registry.Join(userID, tab2))

	// Then each connection receives the routed event exactly once
	evt := event.NewMessage{Message: domain.Message{ID: 1}}
	req.Equal(2, registry.Route(context.Background(), userID, evt))
	req.Len(tab1.received(), 1)
	req.Len(tab2.received(), 1)

	users, connections := registry.Stats()
	req.Equal(1, users)
	req.Equal(2, connections)
}

func TestRegistry_Route_Absent_User_Is_Noop(t *testing.T) {
	registry := newTestRegistry()
	require.Equal(t, 0, registry.Route(context.Background(), 99, event.NewMessage{}))
}

func TestRegistry_Leave_Is_Idempotent_And_Cleans_Rooms(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()
	conn := newRecordingConnection()

	// Given a connection joined two rooms
	req.NoError(registry.Join(1, conn))
	req.NoError(registry.Join(2, conn))

	// When it leaves twice
	registry.Leave(conn.ID())
	registry.Leave(conn.ID())

	// Then no room is left behind
	req.False(registry.Reachable(1))
	req.False(registry.Reachable(2))
	users, connections := registry.Stats()
	req.Zero(users)
	req.Zero(connections)
	req.Equal(0, registry.Route(context.Background(), 1, event.NewMessage{}))
}

func TestRegistry_Leave_Keeps_Other_Connections(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()
	tab1, tab2 := newRecordingConnection(), newRecordingConnection()
	req.NoError(registry.Join(1, tab1))
	req.NoError(registry.Join(1, tab2))

	registry.Leave(tab1.ID())

	req.True(registry.Reachable(1))
	req.Equal(1, registry.Route(context.Background(), 1, event.NewMessage{}))
	req.Empty(tab1.received())
	req.Len(tab2.received(), 1)
}

func TestRegistry_RouteExcept_Skips_Origin(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()
	origin, other := newRecordingConnection(), newRecordingConnection()
	req.NoError(registry.Join(1, origin))
	req.NoError(registry.Join(1, other))

	req.Equal(1, registry.RouteExcept(context.Background(), 1, event.NewMessage{}, origin.ID()))
	req.Empty(origin.received())
	req.Len(other.received(), 1)
}

func TestRegistry_Join_Rejects_Invalid_User(t *testing.T) {
	registry := newTestRegistry()
	err := registry.Join(0, newRecordingConnection())
	require.ErrorIs(t, err, errors.ErrInvalidUserID)
}

func TestRegistry_Slow_Connection_Does_Not_Block_Others(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(logs.GetLoggerFromLevel(slog.LevelDebug), 20*time.Millisecond)
	slow, fast := newRecordingConnection(), newRecordingConnection()
	slow.block = true
	req.NoError(registry.Join(1, slow))
	req.NoError(registry.Join(1, fast))

	start := time.Now()
	delivered := registry.Route(context.Background(), 1, event.NewMessage{})

	req.Equal(1, delivered)
	req.Len(fast.received(), 1)
	req.Less(time.Since(start), time.Second)
}
