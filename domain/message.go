// Package domain contains core concepts of the direct-message system.
// This file defines Message events and related rules.
// Messages are immutable once the history store assigned their id.
package domain

import (
	"time"
)

// MessageID is assigned by the history store, unique and monotonic by insertion.
type MessageID int64

// Message represents a confirmed, persisted direct message.
// JSON names follow the wire format consumed by existing clients.
type Message struct {
	ID         MessageID `json:"id"`
	SenderID   UserID    `json:"sender_id"`
	ReceiverID UserID    `json:"receiver_id"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	SenderName string    `json:"sender_name"`
}

// NewMessage is what the engine hands to the history store.
// The store assigns ID and Timestamp.
type NewMessage struct {
	SenderID   UserID
	ReceiverID UserID
	Content    string
	SenderName string
}

// Between reports whether the message belongs to the conversation of a and b, in either direction.
func (m Message) Between(a, b UserID) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}
