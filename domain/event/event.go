package event

import (
	"dm-relay/domain"
)

// DomainEvent is anything pushed to live connections through the registry.
type DomainEvent interface {
	Name() string
}

const NewMessageName = "newMessage"

// NewMessage is routed to the connections of a message's participants once it is persisted.
type NewMessage struct {
	Message domain.Message
}

func (NewMessage) Name() string { return NewMessageName }
