package server

import (
	"dm-relay/auth"
	"dm-relay/infrastructure/grpc/chatwire"
	"log/slog"

	"google.golang.org/grpc"
)

// NewGRPCServer builds the relay gRPC server with logging and, when enabled, token authentication.
func NewGRPCServer(log *slog.Logger, chatServer *ChatServer, tokens *auth.TokenIssuer, authEnabled bool) *grpc.Server {
	s := grpc.NewServer(
		grpc.ChainStreamInterceptor(
			StreamLoggingInterceptor(log),
			auth.StreamAuthInterceptor(tokens, authEnabled),
		))
	chatwire.RegisterChatServiceServer(s, chatServer)
	return s
}
