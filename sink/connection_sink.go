package sink

import (
	"context"
	"dm-relay/domain/event"
	"dm-relay/errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ConnectionSink buffers the events routed to one live connection.
// The transport drains Events and writes them to the wire.
type ConnectionSink struct {
	id     string
	events chan event.DomainEvent
	done   chan struct{}
	once   sync.Once
}

func NewConnectionSink(bufferSize int) *ConnectionSink {
	return &ConnectionSink{
		id:     uuid.NewString(),
		events: make(chan event.DomainEvent, bufferSize),
		done:   make(chan struct{}),
	}
}

func (s *ConnectionSink) ID() string { return s.id }

// Consume enqueues the event, waiting for buffer space until ctx expires or the sink is closed.
func (s *ConnectionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case <-s.done:
		return fmt.Errorf("%w: connection %s closed", errors.ErrTransportDisruption, s.id)
	default:
	}

	select {
	case s.events <- e:
		return nil
	case <-s.done:
		return fmt.Errorf("%w: connection %s closed", errors.ErrTransportDisruption, s.id)
	case <-ctx.Done():
		return fmt.Errorf("%w: connection %s: %v", errors.ErrDeliveryTimeout, s.id, ctx.Err())
	}
}

func (s *ConnectionSink) Events() <-chan event.DomainEvent {
	return s.events
}

// Done is closed once the connection is gone.
func (s *ConnectionSink) Done() <-chan struct{} {
	return s.done
}

// Close is idempotent. Events already buffered stay readable.
func (s *ConnectionSink) Close() {
	s.once.Do(func() { close(s.done) })
}
