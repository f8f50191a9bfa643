package server

import (
	"context"
	"dm-relay/auth"
	"dm-relay/domain"
	"dm-relay/domain/event"
	"dm-relay/errors"
	"dm-relay/infrastructure/grpc/chatwire"
	"dm-relay/services"
	"dm-relay/sink"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"google.golang.org/grpc/metadata"
)

type ChatServer struct {
	chatService          services.IChatService
	connectionBufferSize int
	log                  *slog.Logger
	requestTimeout       time.Duration
}

func NewChatServer(log *slog.Logger, chatService services.IChatService,
	connectionBufferSize int, requestTimeout time.Duration) *ChatServer {
	return &ChatServer{chatService: chatService,
		connectionBufferSize: connectionBufferSize, log: log,
		requestTimeout: requestTimeout,
	}
}

// Session serves one client connection for its whole life.
// A reader goroutine handles join and sendMessage frames; every send runs in its own goroutine
// and this loop is the only writer on the stream, interleaving acks with routed messages.
// The connection leaves the registry when the stream ends.
func (s *ChatServer) Session(stream chatwire.SessionServer) error {
	ctx := stream.Context()
	if err := stream.SendHeader(metadata.Pairs(chatwire.TransportHeader, "grpc")); err != nil {
		return err
	}

	connSink := sink.NewConnectionSink(s.connectionBufferSize)
	defer func() {
		connSink.Close()
		s.chatService.Leave(connSink.ID())
	}()

	out := make(chan *chatwire.ServerFrame, s.connectionBufferSize)
	readErr := make(chan error, 1)
	go func() {
		readErr <- s.read(ctx, stream, connSink, out)
	}()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Client disconnected", "connection_id", connSink.ID(), "reason", ctx.Err())
			return nil
		case err := <-readErr:
			if err == nil || stderrors.Is(err, io.EOF) {
				return nil
			}
			return err
		case frame := <-out:
			if err := stream.Send(frame); err != nil {
				s.log.Error("failed to push frame to stream", "connection_id", connSink.ID(), "error", err)
				return err
			}
		case evt := <-connSink.Events():
			e, ok := evt.(event.NewMessage)
			if !ok {
				continue
			}
			if err := stream.Send(chatwire.NewMessageFrame(e.Message)); err != nil {
				s.log.Error("failed to push event to stream",
					"connection_id", connSink.ID(),
					"message_id", e.Message.ID,
					"error", err)
				return err
			}
		}
	}
}

func (s *ChatServer) read(ctx context.Context, stream chatwire.SessionServer,
	connSink *sink.ConnectionSink, out chan<- *chatwire.ServerFrame) error {
	authUser, authenticated := auth.UserIDFromContext(ctx)
	emit := func(frame *chatwire.ServerFrame) {
		select {
		case out <- frame:
		case <-connSink.Done():
		case <-ctx.Done():
		}
	}

	for {
		frame, err := stream.Recv()
		if err != nil {
			return err
		}

		switch frame.Event {
		case chatwire.EventJoin:
			if err := s.join(frame, connSink, authUser, authenticated); err != nil {
				s.log.Debug("Join refused", "connection_id", connSink.ID(), "error", err)
				emit(chatwire.ErrorFrame(errors.Code(err), err))
			}
		case chatwire.EventSendMessage:
			if frame.Send == nil {
				emit(chatwire.AckFrame(frame.AckID, domain.ErrorAck(errors.CodeEmptyContent, errors.ErrEmptyContent)))
				continue
			}
			cmd, err := frame.Send.Command()
			if err != nil {
				s.log.Debug("Send refused", "connection_id", connSink.ID(), "ack_id", frame.AckID, "error", err)
				emit(chatwire.AckFrame(frame.AckID, domain.ErrorAck(errors.Code(err), err)))
				continue
			}
			cmd.OriginConnection = connSink.ID()
			if authenticated && cmd.SenderID != authUser {
				err := fmt.Errorf("%w: sender %s is not the authenticated user", errors.ErrInvalidParticipant, cmd.SenderID)
				emit(chatwire.AckFrame(frame.AckID, domain.ErrorAck(errors.Code(err), err)))
				continue
			}
			go func(ackID uint64) {
				emit(chatwire.AckFrame(ackID, s.send(ctx, cmd)))
			}(frame.AckID)
		default:
			emit(chatwire.ErrorFrame(errors.CodeInternal, fmt.Errorf("unknown event %q", frame.Event)))
		}
	}
}

func (s *ChatServer) join(frame *chatwire.ClientFrame, connSink *sink.ConnectionSink,
	authUser domain.UserID, authenticated bool) error {
	if frame.Join == nil {
		return fmt.Errorf("%w: missing user id", errors.ErrInvalidUserID)
	}
	userID, err := frame.Join.User()
	if err != nil {
		return err
	}
	if authenticated && userID != authUser {
		return fmt.Errorf("%w: cannot join as %s", errors.ErrInvalidParticipant, userID)
	}
	return s.chatService.Join(userID, connSink)
}

// send runs to completion even if the client goes away; the ack is then dropped.
func (s *ChatServer) send(ctx context.Context, cmd domain.SendMessageCommand) domain.Ack {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.requestTimeout)
	defer cancel()

	msg, err := s.chatService.Send(sendCtx, cmd)
	if err != nil {
		return domain.ErrorAck(errors.Code(err), err)
	}
	return domain.SuccessAck(msg)
}
