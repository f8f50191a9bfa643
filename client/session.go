package client

import (
	"context"
	"dm-relay/domain"
	"dm-relay/errors"
	"dm-relay/infrastructure/grpc/chatwire"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Session is one open chat stream. It implements Link and Sender.
// Acks are correlated by ack id; futures still waiting when the stream drops are left
// unresolved, the conversation deadline turns them into failures.
type Session struct {
	log       *slog.Logger
	stream    chatwire.SessionClient
	cancel    context.CancelFunc
	transport string
	incoming  chan domain.Message
	done      chan struct{}

	sendMu sync.Mutex

	mu      sync.Mutex
	nextAck uint64
	pending map[uint64]*AckFuture
	err     error
}

// DialSession opens the stream and waits for the server header within ctx.
// The stream itself outlives ctx until Close.
func DialSession(ctx context.Context, log *slog.Logger, conn grpc.ClientConnInterface, token string, incomingBuffer int) (*Session, error) {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if token != "" {
		streamCtx = metadata.AppendToOutgoingContext(streamCtx, "authorization", "Bearer "+token)
	}
	stream, err := chatwire.OpenSession(streamCtx, conn)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", errors.ErrTransportDisruption, err)
	}

	transport, err := awaitTransport(ctx, stream)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Session{
		log:       log,
		stream:    stream,
		cancel:    cancel,
		transport: transport,
		incoming:  make(chan domain.Message, incomingBuffer),
		done:      make(chan struct{}),
		pending:   make(map[uint64]*AckFuture),
	}
	go s.readLoop()
	return s, nil
}

func awaitTransport(ctx context.Context, stream chatwire.SessionClient) (string, error) {
	type result struct {
		md  metadata.MD
		err error
	}
	ch := make(chan result, 1)
	go func() {
		md, err := stream.Header()
		ch <- result{md: md, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", errors.ErrTransportDisruption, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("%w: %v", errors.ErrTransportDisruption, r.err)
		}
		values := r.md.Get(chatwire.TransportHeader)
		if len(values) == 0 {
			// Stream ended without headers, the status tells why
			if _, err := stream.Recv(); err != nil {
				return "", fmt.Errorf("%w: %v", errors.ErrTransportDisruption, err)
			}
			return "", fmt.Errorf("%w: missing transport header", errors.ErrTransportDisruption)
		}
		return values[0], nil
	}
}

func (s *Session) Join(userID domain.UserID) error {
	return s.write(chatwire.JoinFrame(userID))
}

func (s *Session) Send(_ context.Context, cmd domain.SendMessageCommand) (*AckFuture, error) {
	future := NewAckFuture()

	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", errors.ErrTransportDisruption, err)
	}
	s.nextAck++
	ackID := s.nextAck
	s.pending[ackID] = future
	s.mu.Unlock()

	if err := s.write(chatwire.SendFrame(ackID, cmd)); err != nil {
		s.mu.Lock()
		delete(s.pending, ackID)
		s.mu.Unlock()
		return nil, err
	}
	return future, nil
}

func (s *Session) write(frame *chatwire.ClientFrame) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.stream.Send(frame); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrTransportDisruption, err)
	}
	return nil
}

func (s *Session) readLoop() {
	for {
		frame, err := s.stream.Recv()
		if err != nil {
			s.fail(err)
			return
		}
		switch frame.Event {
		case chatwire.EventAck:
			s.resolve(frame)
		case chatwire.EventNewMessage:
			if frame.Message == nil {
				continue
			}
			select {
			case s.incoming <- *frame.Message:
			case <-s.stream.Context().Done():
				s.fail(s.stream.Context().Err())
				return
			}
		case chatwire.EventError:
			s.log.Warn("Server refused a request", "code", frame.Code, "error", frame.Error)
		}
	}
}

func (s *Session) resolve(frame *chatwire.ServerFrame) {
	s.mu.Lock()
	future, ok := s.pending[frame.AckID]
	delete(s.pending, frame.AckID)
	s.mu.Unlock()
	if !ok || frame.Ack == nil {
		s.log.Debug("Unexpected ack", "ack_id", frame.AckID)
		return
	}
	future.Resolve(*frame.Ack)
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	s.err = err
	s.pending = make(map[uint64]*AckFuture)
	close(s.done)
}

// Incoming delivers the messages routed to this connection.
func (s *Session) Incoming() <-chan domain.Message {
	return s.incoming
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) Transport() string {
	return s.transport
}

func (s *Session) Close() error {
	s.cancel()
	return nil
}
