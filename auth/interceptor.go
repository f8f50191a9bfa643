package auth

import (
	"context"
	"dm-relay/domain"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// WithUserID returns a context carrying the authenticated user.
func WithUserID(ctx context.Context, userID domain.UserID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// UserIDFromContext returns the authenticated user, if the stream was authenticated.
func UserIDFromContext(ctx context.Context) (domain.UserID, bool) {
	userID, ok := ctx.Value(UserIDKey).(domain.UserID)
	return userID, ok
}

// StreamAuthInterceptor validates the bearer token of every stream when enabled.
// The user id found in the token is injected into the stream context.
func StreamAuthInterceptor(tokens *TokenIssuer, enabled bool) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if !enabled {
			return handler(srv, ss)
		}

		md, ok := metadata.FromIncomingContext(ss.Context())
		if !ok {
			return status.Error(codes.Unauthenticated, "metadata is missing")
		}

		values := md.Get("authorization")
		if len(values) == 0 {
			return status.Error(codes.Unauthenticated, "authorization token is missing")
		}

		// Expecting the standard "Bearer <token>" format
		tokenStr := strings.TrimPrefix(values[0], "Bearer ")

		claims, err := tokens.ValidateToken(tokenStr)
		if err != nil {
			return status.Error(codes.Unauthenticated, "invalid or expired token")
		}

		return handler(srv, &authenticatedStream{
			ServerStream: ss,
			ctx:          WithUserID(ss.Context(), claims.UserID),
		})
	}
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context {
	return s.ctx
}
