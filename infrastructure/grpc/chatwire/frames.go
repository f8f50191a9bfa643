package chatwire

import (
	"dm-relay/domain"
	"dm-relay/errors"
	"encoding/json"
	"fmt"
)

const (
	EventJoin        = "join"
	EventSendMessage = "sendMessage"
	EventAck         = "ack"
	EventNewMessage  = "newMessage"
	EventError       = "error"
)

// TransportHeader is sent by the server when a session opens. Its value describes the transport.
const TransportHeader = "x-transport"

// ClientFrame is one client to server event.
// AckID correlates a sendMessage with the ack frame answering it.
type ClientFrame struct {
	Event string       `json:"event"`
	AckID uint64       `json:"ack_id,omitempty"`
	Join  *JoinRequest `json:"join,omitempty"`
	Send  *SendRequest `json:"send,omitempty"`
}

// JoinRequest and SendRequest keep ids raw so that a malformed id fails the frame, not the stream.
type JoinRequest struct {
	UserID json.RawMessage `json:"user_id"`
}

func (j *JoinRequest) User() (domain.UserID, error) {
	return domain.UserIDFromJSON(j.UserID)
}

type SendRequest struct {
	SenderID   json.RawMessage `json:"senderId"`
	ReceiverID json.RawMessage `json:"receiverId"`
	Content    string          `json:"content"`
}

// Command resolves both ids. Any invalid id is reported as ErrInvalidParticipant.
func (r *SendRequest) Command() (domain.SendMessageCommand, error) {
	sender, err := domain.UserIDFromJSON(r.SenderID)
	if err != nil {
		return domain.SendMessageCommand{}, fmt.Errorf("%w: sender: %v", errors.ErrInvalidParticipant, err)
	}
	receiver, err := domain.UserIDFromJSON(r.ReceiverID)
	if err != nil {
		return domain.SendMessageCommand{}, fmt.Errorf("%w: receiver: %v", errors.ErrInvalidParticipant, err)
	}
	return domain.SendMessageCommand{SenderID: sender, ReceiverID: receiver, Content: r.Content}, nil
}

func rawID(id domain.UserID) json.RawMessage {
	return json.RawMessage(id.String())
}

// ServerFrame is one server to client event.
type ServerFrame struct {
	Event   string          `json:"event"`
	AckID   uint64          `json:"ack_id,omitempty"`
	Ack     *domain.Ack     `json:"ack,omitempty"`
	Message *domain.Message `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
}

func JoinFrame(userID domain.UserID) *ClientFrame {
	return &ClientFrame{Event: EventJoin, Join: &JoinRequest{UserID: rawID(userID)}}
}

func SendFrame(ackID uint64, cmd domain.SendMessageCommand) *ClientFrame {
	return &ClientFrame{Event: EventSendMessage, AckID: ackID, Send: &SendRequest{
		SenderID:   rawID(cmd.SenderID),
		ReceiverID: rawID(cmd.ReceiverID),
		Content:    cmd.Content,
	}}
}

func AckFrame(ackID uint64, ack domain.Ack) *ServerFrame {
	return &ServerFrame{Event: EventAck, AckID: ackID, Ack: &ack}
}

func NewMessageFrame(msg domain.Message) *ServerFrame {
	return &ServerFrame{Event: EventNewMessage, Message: &msg}
}

func ErrorFrame(code string, err error) *ServerFrame {
	return &ServerFrame{Event: EventError, Error: err.Error(), Code: code}
}
