package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrInvalidParticipant  = fmt.Errorf("invalid participant")
	ErrEmptyContent        = fmt.Errorf("empty content")
	ErrPersistenceFailure  = fmt.Errorf("persistence failure")
	ErrDeliveryTimeout     = fmt.Errorf("delivery timeout")
	ErrTransportDisruption = fmt.Errorf("transport disruption")
	ErrInvalidUserID       = fmt.Errorf("invalid user id")
	ErrUserNotFound        = fmt.Errorf("user not found")
	ErrUserAlreadyExists   = fmt.Errorf("user already exists")
	ErrInvalidCredentials  = fmt.Errorf("invalid credentials")
	ErrInvalidPassword     = fmt.Errorf("invalid password")
	ErrInvalidRequest      = fmt.Errorf("invalid request")
	ErrTokenGeneration     = fmt.Errorf("token generation failed")
	ErrUnauthenticated     = fmt.Errorf("unauthenticated")
	ErrWorkerPanic         = fmt.Errorf("worker panic")
)

// Ack codes carried next to the human readable error of a failed send.
const (
	CodeInvalidParticipant = "InvalidParticipant"
	CodeEmptyContent       = "EmptyContent"
	CodePersistenceFailure = "PersistenceFailure"
	CodeUnauthenticated    = "Unauthenticated"
	CodeInternal           = "Internal"
)

// Code classifies an error for the acknowledgement sent back to a client.
func Code(err error) string {
	switch {
	case stderrors.Is(err, ErrInvalidParticipant), stderrors.Is(err, ErrInvalidUserID):
		return CodeInvalidParticipant
	case stderrors.Is(err, ErrEmptyContent):
		return CodeEmptyContent
	case stderrors.Is(err, ErrPersistenceFailure):
		return CodePersistenceFailure
	case stderrors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	default:
		return CodeInternal
	}
}
