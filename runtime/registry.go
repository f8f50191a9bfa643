package runtime

import (
	"context"
	"dm-relay/contract"
	"dm-relay/domain"
	"dm-relay/domain/event"
	"dm-relay/errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type Set map[string]struct{}

// Registry is the live mapping of users to their connections ("rooms" keyed by user id).
// It is the only authority on whether a user is reachable in real time.
type Registry struct {
	mu              sync.RWMutex
	log             *slog.Logger
	deliveryTimeout time.Duration
	connections     map[string]contract.Connection        // connection id -> Connection
	rooms           map[domain.UserID]Set                 // user -> connection ids
	memberships     map[string]map[domain.UserID]struct{} // connection id -> users
}

func NewRegistry(log *slog.Logger, deliveryTimeout time.Duration) *Registry {
	return &Registry{
		log:             log,
		deliveryTimeout: deliveryTimeout,
		connections:     make(map[string]contract.Connection),
		rooms:           make(map[domain.UserID]Set),
		memberships:     make(map[string]map[domain.UserID]struct{}),
	}
}

// Join adds the connection to the room of userID.
// A connection may join several rooms, joining twice is a no-op.
func (r *Registry) Join(userID domain.UserID, conn contract.Connection) error {
	if !userID.Valid() {
		return fmt.Errorf("%w: %d", errors.ErrInvalidUserID, userID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	r.connections[id] = conn

	if _, ok := r.rooms[userID]; !ok {
		r.rooms[userID] = make(Set)
	}
	r.rooms[userID][id] = struct{}{}

	if _, ok := r.memberships[id]; !ok {
		r.memberships[id] = make(map[domain.UserID]struct{})
	}
	r.memberships[id][userID] = struct{}{}
	return nil
}

// Leave removes the connection from every room containing it.
// Rooms left empty are deleted. Calling Leave twice is safe.
func (r *Registry) Leave(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID := range r.memberships[connectionID] {
		if members, ok := r.rooms[userID]; ok {
			delete(members, connectionID)
			if len(members) == 0 {
				delete(r.rooms, userID)
			}
		}
	}
	delete(r.memberships, connectionID)
	delete(r.connections, connectionID)
}

// Route delivers e to every connection of userID and returns the number of successful deliveries.
// An absent user is not an error: real-time delivery is simply dropped.
func (r *Registry) Route(ctx context.Context, userID domain.UserID, e event.DomainEvent) int {
	return r.deliver(ctx, r.connectionsOf(userID, ""), e)
}

// RouteExcept is Route skipping one connection, typically the one a request came from.
func (r *Registry) RouteExcept(ctx context.Context, userID domain.UserID, e event.DomainEvent, connectionID string) int {
	return r.deliver(ctx, r.connectionsOf(userID, connectionID), e)
}

func (r *Registry) Reachable(userID domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[userID]) > 0
}

func (r *Registry) Stats() (users int, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), len(r.connections)
}

// connectionsOf snapshots the connections of a room so that delivery happens outside the lock.
func (r *Registry) connectionsOf(userID domain.UserID, except string) []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[userID]
	if !ok {
		return nil
	}
	conns := make([]contract.Connection, 0, len(members))
	for id := range members {
		if id == except {
			continue
		}
		if conn, exists := r.connections[id]; exists {
			conns = append(conns, conn)
		}
	}
	return conns
}

// deliver consumes e on each connection concurrently, each bounded by the delivery timeout.
func (r *Registry) deliver(ctx context.Context, conns []contract.Connection, e event.DomainEvent) int {
	if len(conns) == 0 {
		return 0
	}
	var delivered atomic.Int64
	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c contract.Connection) {
			defer wg.Done()
			sinkCtx, cancel := context.WithTimeout(ctx, r.deliveryTimeout)
			defer cancel()
			if err := c.Consume(sinkCtx, e); err != nil {
				r.log.Warn("Delivery to connection failed",
					"connection_id", c.ID(),
					"event", e.Name(),
					"error", err)
				return
			}
			delivered.Add(1)
		}(conn)
	}
	wg.Wait()
	return int(delivered.Load())
}
