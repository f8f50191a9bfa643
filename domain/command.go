package domain

import "strings"

// SendMessageCommand is one logical send as received from a transport.
// OriginConnection identifies the connection the request came from, if any.
type SendMessageCommand struct {
	SenderID         UserID `json:"senderId"`
	ReceiverID       UserID `json:"receiverId"`
	Content          string `json:"content"`
	OriginConnection string `json:"-"`
}

// DedupKey returns the identity used to collapse retransmits of the same send.
func (c SendMessageCommand) DedupKey() DedupKey {
	return DedupKey{SenderID: c.SenderID, ReceiverID: c.ReceiverID, Content: c.Content}
}

// Blank reports whether the content is empty once trimmed.
func (c SendMessageCommand) Blank() bool {
	return strings.TrimSpace(c.Content) == ""
}

type DedupKey struct {
	SenderID   UserID
	ReceiverID UserID
	Content    string
}
