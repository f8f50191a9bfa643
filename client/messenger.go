package client

import (
	"context"
	"dm-relay/domain"
	"dm-relay/errors"
	"fmt"
	"log/slog"
	"sync"
)

// ChatLink is a Link able to join a room, send, and deliver routed messages. Session is one.
type ChatLink interface {
	Link
	Sender
	Join(userID domain.UserID) error
	Incoming() <-chan domain.Message
}

// Messenger binds the conversations of one user to whatever link the supervisor currently holds.
// It re-joins the user's room after every reconnection; history missed while offline must be reloaded.
type Messenger struct {
	log        *slog.Logger
	self       domain.UserID
	config     ConversationConfig
	supervisor *ReconnectSupervisor

	mu            sync.Mutex
	link          ChatLink
	conversations map[domain.UserID]*Conversation
	unrouted      chan domain.Message
}

func NewMessenger(log *slog.Logger, self domain.UserID, supervisor *ReconnectSupervisor, config ConversationConfig) *Messenger {
	m := &Messenger{
		log:           log,
		self:          self,
		config:        config,
		supervisor:    supervisor,
		conversations: make(map[domain.UserID]*Conversation),
		unrouted:      make(chan domain.Message, 64),
	}
	supervisor.OnConnect(m.attach)
	return m
}

func (m *Messenger) attach(_ context.Context, link Link) {
	chatLink, ok := link.(ChatLink)
	if !ok {
		m.log.Error("Link cannot carry chat traffic", "transport", link.Transport())
		return
	}
	if err := chatLink.Join(m.self); err != nil {
		m.log.Warn("Join failed", "user_id", m.self, "error", err)
	}

	m.mu.Lock()
	m.link = chatLink
	m.mu.Unlock()

	go m.pump(chatLink)
}

func (m *Messenger) pump(link ChatLink) {
	for {
		select {
		case msg := <-link.Incoming():
			m.route(msg)
		case <-link.Done():
			m.mu.Lock()
			if m.link == link {
				m.link = nil
			}
			m.mu.Unlock()
			return
		}
	}
}

func (m *Messenger) route(msg domain.Message) {
	peer := msg.SenderID
	if peer == m.self {
		peer = msg.ReceiverID
	}

	m.mu.Lock()
	conv, ok := m.conversations[peer]
	m.mu.Unlock()

	if ok {
		conv.OnIncomingRouted(msg)
		return
	}
	select {
	case m.unrouted <- msg:
	default:
		m.log.Debug("Unrouted message dropped", "message_id", msg.ID, "peer", peer)
	}
}

// Unrouted delivers messages from peers without an open conversation.
func (m *Messenger) Unrouted() <-chan domain.Message {
	return m.unrouted
}

// Send implements Sender on top of the current link.
func (m *Messenger) Send(ctx context.Context, cmd domain.SendMessageCommand) (*AckFuture, error) {
	m.mu.Lock()
	link := m.link
	m.mu.Unlock()
	if link == nil {
		return nil, fmt.Errorf("%w: not connected", errors.ErrTransportDisruption)
	}
	return link.Send(ctx, cmd)
}

// Open returns the conversation with peer, creating it on first use.
func (m *Messenger) Open(peer domain.UserID) *Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv, ok := m.conversations[peer]; ok {
		return conv
	}
	conv := NewConversation(m.log, m.self, peer, m, m.config)
	m.conversations[peer] = conv
	return conv
}

// Close tears down the conversation with peer and forgets its local entries.
func (m *Messenger) Close(peer domain.UserID) {
	m.mu.Lock()
	conv, ok := m.conversations[peer]
	delete(m.conversations, peer)
	m.mu.Unlock()
	if ok {
		conv.Close()
	}
}

// Reconnect asks the supervisor for a fresh link.
func (m *Messenger) Reconnect() {
	m.supervisor.Reconnect()
}

func (m *Messenger) Status() Status {
	return m.supervisor.Status()
}
