package repositories

import (
	"context"
	"dm-relay/domain"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

const (
	messageSequenceKey = "seq:msg"
	sequenceBandwidth  = 100
)

type MessageRepository struct {
	db            *badger.DB
	seq           *badger.Sequence
	log           *slog.Logger
	limitMessages *int
	clock         func() time.Time

	// mu pairs each id with its timestamp so that id order is also time order.
	mu   sync.Mutex
	last time.Time
}

// NewMessageRepository leases a Badger sequence for message ids.
// Ids leased but unused before a restart are skipped, ids never go backwards.
func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte(messageSequenceKey), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &MessageRepository{
		db:            db,
		seq:           seq,
		log:           log,
		limitMessages: limitMessages,
		clock:         time.Now,
	}, nil
}

// Close releases the unused part of the leased sequence.
func (m *MessageRepository) Close() error {
	return m.seq.Release()
}

type diskMessage struct {
	ID         int64  `json:"id"`
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
	At         int64  `json:"at"`
	SenderName string `json:"sender_name"`
}

// conversationPrefix is shared by both directions of a pair: "conv:{low}:{high}:".
// Ids are zero padded to 19 digits so that lexicographic order is insertion order.
func conversationPrefix(a, b domain.UserID) string {
	low, high := a, b
	if low > high {
		low, high = high, low
	}
	return fmt.Sprintf("conv:%019d:%019d:", low, high)
}

func conversationKey(msg domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%019d", conversationPrefix(msg.SenderID, msg.ReceiverID), msg.ID))
}

// Append assigns the next id and the server timestamp, then persists the message.
// Timestamps never decrease in id order, even if the wall clock steps back.
func (m *MessageRepository) Append(_ context.Context, newMessage domain.NewMessage) (domain.Message, error) {
	id, at, err := m.stamp()
	if err != nil {
		return domain.Message{}, err
	}
	msg := domain.Message{
		ID:         id,
		SenderID:   newMessage.SenderID,
		ReceiverID: newMessage.ReceiverID,
		Content:    newMessage.Content,
		Timestamp:  at,
		SenderName: newMessage.SenderName,
	}
	bytes, err := json.Marshal(fromMessage(msg))
	if err != nil {
		return domain.Message{}, err
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(conversationKey(msg), bytes)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func (m *MessageRepository) stamp() (domain.MessageID, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := m.seq.Next()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("next message id: %w", err)
	}
	at := m.clock().UTC()
	if at.Before(m.last) {
		at = m.last
	}
	m.last = at
	return domain.MessageID(next + 1), at, nil
}

// Conversation returns the messages exchanged by a and b in both directions, oldest first.
// When limitMessages is set only the most recent messages are returned.
func (m *MessageRepository) Conversation(_ context.Context, a, b domain.UserID) ([]domain.Message, error) {
	var diskMessages []diskMessage
	prefix := []byte(conversationPrefix(a, b))
	reverse := m.limitMessages != nil

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		options.Reverse = reverse
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := prefix
		if reverse {
			// Start past the highest possible id of the pair and walk back.
			seekKey = append(slices.Clone(prefix), 0xFF)
		}
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if reverse && len(diskMessages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
				break
			}
			var dm diskMessage
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &dm)
			})
			if err != nil {
				return err
			}
			diskMessages = append(diskMessages, dm)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reverse {
		slices.Reverse(diskMessages)
	}
	return lo.Map(diskMessages, func(item diskMessage, _ int) domain.Message {
		return toMessage(item)
	}), nil
}

func fromMessage(msg domain.Message) diskMessage {
	return diskMessage{
		ID:         int64(msg.ID),
		SenderID:   int64(msg.SenderID),
		ReceiverID: int64(msg.ReceiverID),
		Content:    msg.Content,
		At:         msg.Timestamp.UnixNano(),
		SenderName: msg.SenderName,
	}
}

func toMessage(dm diskMessage) domain.Message {
	return domain.Message{
		ID:         domain.MessageID(dm.ID),
		SenderID:   domain.UserID(dm.SenderID),
		ReceiverID: domain.UserID(dm.ReceiverID),
		Content:    dm.Content,
		Timestamp:  time.Unix(0, dm.At).UTC(),
		SenderName: dm.SenderName,
	}
}
