package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCode(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{fmt.Errorf("%w: receiver 9", ErrInvalidParticipant), CodeInvalidParticipant},
		{ErrInvalidUserID, CodeInvalidParticipant},
		{ErrEmptyContent, CodeEmptyContent},
		{fmt.Errorf("%w: disk full", ErrPersistenceFailure), CodePersistenceFailure},
		{ErrUnauthenticated, CodeUnauthenticated},
		{fmt.Errorf("boom"), CodeInternal},
	}
	for _, tt := range tests {
		require.Equal(t, tt.expected, Code(tt.err), tt.err.Error())
	}
}

func TestMapToGRPCError(t *testing.T) {
	req := require.New(t)
	req.Nil(MapToGRPCError(nil))
	req.Equal(codes.InvalidArgument, status.Code(MapToGRPCError(ErrEmptyContent)))
	req.Equal(codes.Unauthenticated, status.Code(MapToGRPCError(ErrUnauthenticated)))
	req.Equal(codes.Unavailable, status.Code(MapToGRPCError(fmt.Errorf("%w: x", ErrPersistenceFailure))))
	req.Equal(codes.Internal, status.Code(MapToGRPCError(fmt.Errorf("boom"))))
}
