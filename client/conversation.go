package client

import (
	"context"
	"dm-relay/domain"
	"dm-relay/errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultAckDeadline is how long a composed message may stay pending.
const DefaultAckDeadline = 5 * time.Second

// Sender issues a send request and returns the future of its ack.
type Sender interface {
	Send(ctx context.Context, cmd domain.SendMessageCommand) (*AckFuture, error)
}

type ConversationConfig struct {
	Deadline time.Duration
	Clock    func() time.Time
	// SelfName is shown as the sender of pending entries until the server confirms them.
	SelfName string
}

// pendingCell is the resolution slot of one temp id. Whoever removes it from
// the conversation owns the terminal transition.
type pendingCell struct {
	timer *time.Timer
	stop  chan struct{}
}

// Conversation is the optimistic view of the direct messages exchanged with one peer.
// Every composed message is Pending until its ack, a timeout, or Close.
type Conversation struct {
	mu         sync.Mutex
	log        *slog.Logger
	self       domain.UserID
	selfName   string
	peer       domain.UserID
	sender     Sender
	deadline   time.Duration
	clock      func() time.Time
	transcript *Transcript
	cells      map[TempID]*pendingCell
	lastTempID TempID
	updates    chan struct{}
	closed     bool
}

func NewConversation(log *slog.Logger, self, peer domain.UserID, sender Sender, config ConversationConfig) *Conversation {
	if config.Deadline <= 0 {
		config.Deadline = DefaultAckDeadline
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &Conversation{
		log:        log,
		self:       self,
		selfName:   config.SelfName,
		peer:       peer,
		sender:     sender,
		deadline:   config.Deadline,
		clock:      config.Clock,
		transcript: &Transcript{},
		cells:      make(map[TempID]*pendingCell),
		updates:    make(chan struct{}, 1),
	}
}

func (c *Conversation) Peer() domain.UserID {
	return c.peer
}

// Compose appends a pending entry and sends it. The returned temp id identifies the entry until it is confirmed.
func (c *Conversation) Compose(ctx context.Context, content string) (TempID, error) {
	if strings.TrimSpace(content) == "" {
		return 0, errors.ErrEmptyContent
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, fmt.Errorf("conversation with %s is closed", c.peer)
	}
	now := c.clock()
	tempID := c.nextTempID(now)
	c.transcript.appendPending(tempID, provisional(c.self, c.selfName, c.peer, content, now))
	cell := &pendingCell{stop: make(chan struct{})}
	cell.timer = time.AfterFunc(c.deadline, func() { c.OnTimeout(tempID) })
	c.cells[tempID] = cell
	c.mu.Unlock()
	c.notify()

	future, err := c.sender.Send(ctx, domain.SendMessageCommand{
		SenderID:   c.self,
		ReceiverID: c.peer,
		Content:    content,
	})
	if err != nil {
		c.log.Debug("Send not issued", "temp_id", tempID, "error", err)
		c.OnAck(tempID, domain.ErrorAck(errors.Code(err), err))
		return tempID, nil
	}

	go func() {
		select {
		case <-future.Done():
			c.OnAck(tempID, future.Ack())
		case <-cell.stop:
		}
	}()
	return tempID, nil
}

// nextTempID is the clock in nanoseconds, bumped when two sends share a tick.
func (c *Conversation) nextTempID(now time.Time) TempID {
	tempID := TempID(now.UnixNano())
	if tempID <= c.lastTempID {
		tempID = c.lastTempID + 1
	}
	c.lastTempID = tempID
	return tempID
}

// take removes the pending cell, making the caller the only one allowed to resolve tempID.
func (c *Conversation) take(tempID TempID) bool {
	cell, ok := c.cells[tempID]
	if !ok {
		return false
	}
	delete(c.cells, tempID)
	cell.timer.Stop()
	close(cell.stop)
	return true
}

// OnAck resolves a pending entry with the server answer. It reports false when the entry was already terminal.
func (c *Conversation) OnAck(tempID TempID, ack domain.Ack) bool {
	c.mu.Lock()
	if !c.take(tempID) {
		c.mu.Unlock()
		c.log.Debug("Late ack ignored", "temp_id", tempID, "status", ack.Status)
		return false
	}
	if ack.Succeeded() {
		c.transcript.Confirm(tempID, *ack.Message)
	} else {
		c.transcript.Fail(tempID, FailureRejected, ack.Error)
	}
	c.mu.Unlock()
	c.notify()
	return true
}

// OnTimeout fails a pending entry whose ack did not arrive in time.
func (c *Conversation) OnTimeout(tempID TempID) bool {
	c.mu.Lock()
	if !c.take(tempID) {
		c.mu.Unlock()
		return false
	}
	c.transcript.Fail(tempID, FailureTimeout, errors.ErrDeliveryTimeout.Error())
	c.mu.Unlock()
	c.log.Debug("Message timed out", "temp_id", tempID, "peer", c.peer)
	c.notify()
	return true
}

// OnIncomingRouted adds a message pushed by the server, unless it belongs elsewhere or is already visible.
func (c *Conversation) OnIncomingRouted(msg domain.Message) bool {
	if !msg.Between(c.self, c.peer) {
		return false
	}
	c.mu.Lock()
	added := !c.closed && c.transcript.AddIfAbsent(msg)
	c.mu.Unlock()
	if added {
		c.notify()
	}
	return added
}

// LoadHistory merges a page of persisted messages of this conversation.
func (c *Conversation) LoadHistory(messages []domain.Message) int {
	mine := make([]domain.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Between(c.self, c.peer) {
			mine = append(mine, msg)
		}
	}
	c.mu.Lock()
	added := c.transcript.Merge(mine)
	c.mu.Unlock()
	if added > 0 {
		c.notify()
	}
	return added
}

// Retry removes a failed entry and composes its content again.
func (c *Conversation) Retry(ctx context.Context, tempID TempID) (TempID, error) {
	c.mu.Lock()
	i := c.transcript.indexOfTemp(tempID)
	if i < 0 || c.transcript.entries[i].State != Failed {
		c.mu.Unlock()
		return 0, fmt.Errorf("no failed message %d", tempID)
	}
	entry, _ := c.transcript.Remove(tempID)
	c.mu.Unlock()
	return c.Compose(ctx, entry.Message.Content)
}

func (c *Conversation) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.Entries()
}

// Updates signals that Entries changed. Signals are coalesced.
func (c *Conversation) Updates() <-chan struct{} {
	return c.updates
}

// Close stops every timer. Entries still pending stay pending.
func (c *Conversation) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for tempID := range c.cells {
		c.take(tempID)
	}
}

func (c *Conversation) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}
