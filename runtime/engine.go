// Package runtime holds the live side of the relay: the connection registry and the delivery engine.
// Durable state lives behind the stores it is given.
package runtime

import (
	"context"
	"dm-relay/contract"
	"dm-relay/domain"
	"dm-relay/domain/event"
	"dm-relay/errors"
	"dm-relay/observability"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Censor rewrites content before it is persisted and reports the words it masked.
type Censor interface {
	Censor(content string) (string, []string)
}

type EngineConfig struct {
	// EchoToSender also routes a new message to the sender's other connections.
	EchoToSender bool
	Moderator    Censor
	Clock        func() time.Time
}

// Engine validates, deduplicates, persists and fans out direct messages.
type Engine struct {
	log          *slog.Logger
	identity     contract.IIdentityStore
	history      contract.IHistoryStore
	window       contract.IDedupWindow
	registry     contract.IRegistry
	moderator    Censor
	echoToSender bool
	clock        func() time.Time
	locks        *pairLocks
}

func NewEngine(
	log *slog.Logger,
	identity contract.IIdentityStore,
	history contract.IHistoryStore,
	window contract.IDedupWindow,
	registry contract.IRegistry,
	config EngineConfig,
) *Engine {
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		log:          log,
		identity:     identity,
		history:      history,
		window:       window,
		registry:     registry,
		moderator:    config.Moderator,
		echoToSender: config.EchoToSender,
		clock:        clock,
		locks:        newPairLocks(),
	}
}

// Submit handles one send request and returns the persisted message.
// A retransmit inside the dedup window returns the message persisted the first time, without routing it again.
func (e *Engine) Submit(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	start := time.Now()
	defer func() {
		observability.SubmitDuration.Observe(time.Since(start).Seconds())
	}()

	msg, err := e.submit(ctx, cmd)
	if err != nil {
		observability.MessagesRejected.WithLabelValues(errors.Code(err)).Inc()
		e.log.Debug("Send rejected",
			"sender_id", cmd.SenderID,
			"receiver_id", cmd.ReceiverID,
			"error", err)
		return domain.Message{}, err
	}
	return msg, nil
}

func (e *Engine) submit(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	if cmd.Blank() {
		return domain.Message{}, fmt.Errorf("%w: from %s to %s", errors.ErrEmptyContent, cmd.SenderID, cmd.ReceiverID)
	}
	sender, err := e.participant(ctx, cmd.SenderID, "sender")
	if err != nil {
		return domain.Message{}, err
	}
	if _, err := e.participant(ctx, cmd.ReceiverID, "receiver"); err != nil {
		return domain.Message{}, err
	}

	msg, fresh, err := e.persistOnce(ctx, cmd, sender)
	if err != nil || !fresh {
		return msg, err
	}

	e.fanOut(context.WithoutCancel(ctx), msg, cmd.OriginConnection)
	return msg, nil
}

// persistOnce runs the dedup lookup, the write and the dedup registration under the pair lock.
// A shared window is also claimed before the write so that only one instance persists a send.
// fresh is false when the message comes from the window.
func (e *Engine) persistOnce(ctx context.Context, cmd domain.SendMessageCommand, sender domain.User) (domain.Message, bool, error) {
	unlock := e.locks.lock(cmd.SenderID, cmd.ReceiverID)
	defer unlock()

	now := e.clock()
	key := cmd.DedupKey()
	previous, found, err := e.window.Lookup(ctx, key, now)
	switch {
	case err != nil:
		e.log.Warn("Dedup lookup failed, treating as miss", "error", err)
	case found:
		observability.MessagesDeduplicated.Inc()
		e.log.Debug("Duplicate send collapsed", "message_id", previous.ID)
		return previous, false, nil
	}

	var claimer contract.IDedupClaimer
	if c, ok := e.window.(contract.IDedupClaimer); ok {
		winner, claimed, err := c.Claim(ctx, key, now)
		switch {
		case err != nil:
			e.log.Warn("Dedup claim failed, treating as miss", "error", err)
		case !claimed:
			observability.MessagesDeduplicated.Inc()
			e.log.Debug("Duplicate send collapsed by another instance", "message_id", winner.ID)
			return winner, false, nil
		default:
			claimer = c
		}
	}

	content := cmd.Content
	if e.moderator != nil {
		var words []string
		content, words = e.moderator.Censor(content)
		if len(words) > 0 {
			e.log.Info("Message censored", "sender_id", cmd.SenderID, "words", len(words))
		}
	}

	msg, err := e.history.Append(ctx, domain.NewMessage{
		SenderID:   cmd.SenderID,
		ReceiverID: cmd.ReceiverID,
		Content:    content,
		SenderName: sender.Username,
	})
	if err != nil {
		if claimer != nil {
			if err := claimer.Release(context.WithoutCancel(ctx), key); err != nil {
				e.log.Warn("Dedup release failed", "error", err)
			}
		}
		return domain.Message{}, false, fmt.Errorf("%w: %v", errors.ErrPersistenceFailure, err)
	}
	observability.MessagesPersisted.Inc()

	if err := e.window.Record(ctx, key, msg, now); err != nil {
		e.log.Warn("Dedup record failed", "message_id", msg.ID, "error", err)
	}
	return msg, true, nil
}

func (e *Engine) participant(ctx context.Context, id domain.UserID, role string) (domain.User, error) {
	if !id.Valid() {
		return domain.User{}, fmt.Errorf("%w: %s %s", errors.ErrInvalidParticipant, role, id)
	}
	user, err := e.identity.GetUser(ctx, id)
	switch {
	case stderrors.Is(err, errors.ErrUserNotFound):
		return domain.User{}, fmt.Errorf("%w: unknown %s %s", errors.ErrInvalidParticipant, role, id)
	case err != nil:
		return domain.User{}, fmt.Errorf("%w: resolving %s %s: %v", errors.ErrPersistenceFailure, role, id, err)
	}
	return user, nil
}

func (e *Engine) fanOut(ctx context.Context, msg domain.Message, origin string) {
	evt := event.NewMessage{Message: msg}
	delivered := e.registry.Route(ctx, msg.ReceiverID, evt)
	observability.Deliveries.WithLabelValues("receiver").Add(float64(delivered))

	if e.echoToSender && msg.SenderID != msg.ReceiverID {
		echoed := e.registry.RouteExcept(ctx, msg.SenderID, evt, origin)
		observability.Deliveries.WithLabelValues("sender").Add(float64(echoed))
	}
	e.log.Debug("Message routed", "message_id", msg.ID, "receiver_connections", delivered)
}

type pair struct {
	sender, receiver domain.UserID
}

type pairLock struct {
	mu   sync.Mutex
	refs int
}

// pairLocks serializes work per (sender, receiver). Entries are dropped once nobody holds or waits on them.
type pairLocks struct {
	mu    sync.Mutex
	locks map[pair]*pairLock
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: make(map[pair]*pairLock)}
}

func (p *pairLocks) lock(sender, receiver domain.UserID) func() {
	key := pair{sender: sender, receiver: receiver}

	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &pairLock{}
		p.locks[key] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, key)
		}
		p.mu.Unlock()
	}
}

func (p *pairLocks) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
