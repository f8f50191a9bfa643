package client

import (
	"context"
	"dm-relay/domain"
	"dm-relay/errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const (
	alice domain.UserID = 1
	bob   domain.UserID = 2
)

// fakeSender hands out futures the test resolves by hand.
type fakeSender struct {
	mu      sync.Mutex
	sent    []domain.SendMessageCommand
	futures []*AckFuture
	err     error
}

func (s *fakeSender) Send(_ context.Context, cmd domain.SendMessageCommand) (*AckFuture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	future := NewAckFuture()
	s.sent = append(s.sent, cmd)
	s.futures = append(s.futures, future)
	return future, nil
}

func (s *fakeSender) future(i int) *AckFuture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.futures[i]
}

func newTestConversation(sender Sender, deadline time.Duration) *Conversation {
	return NewConversation(logs.GetLoggerFromLevel(slog.LevelDebug), alice, bob, sender, ConversationConfig{Deadline: deadline})
}

func stateOf(c *Conversation, i int) func() EntryState {
	return func() EntryState {
		entries := c.Entries()
		if i >= len(entries) {
			return -1
		}
		return entries[i].State
	}
}

func TestConversation_Compose_Is_Optimistic_Then_Confirmed(t *testing.T) {
	req := require.New(t)
	sender := &fakeSender{}
	conv := newTestConversation(sender, time.Second)
	defer conv.Close()

	// When alice composes a message
	tempID, err := conv.Compose(context.Background(), "hello")
	req.NoError(err)

	// Then it is visible immediately as pending
	entries := conv.Entries()
	req.Len(entries, 1)
	req.Equal(Pending, entries[0].State)
	req.Equal(tempID, entries[0].TempID)
	req.Equal(domain.SendMessageCommand{SenderID: alice, ReceiverID: bob, Content: "hello"}, sender.sent[0])

	// When the server acknowledges it
	confirmed := domain.Message{ID: 7, SenderID: alice, ReceiverID: bob, Content: "hello"}
	sender.future(0).Resolve(domain.SuccessAck(confirmed))

	// Then the pending entry becomes the confirmed message
	req.Eventually(func() bool { return stateOf(conv, 0)() == Confirmed }, time.Second, 5*time.Millisecond)
	req.Equal(confirmed, conv.Entries()[0].Message)
}

func TestConversation_Error_Ack_Fails_Entry(t *testing.T) {
	req := require.New(t)
	sender := &fakeSender{}
	conv := newTestConversation(sender, time.Second)
	defer conv.Close()

	_, err := conv.Compose(context.Background(), "hello")
	req.NoError(err)
	sender.future(0).Resolve(domain.ErrorAck(errors.CodePersistenceFailure, errors.ErrPersistenceFailure))

	req.Eventually(func() bool { return stateOf(conv, 0)() == Failed }, time.Second, 5*time.Millisecond)
	entry := conv.Entries()[0]
	req.Equal(FailureRejected, entry.Failure)
	req.Equal(errors.ErrPersistenceFailure.Error(), entry.Error)
	req.Equal("hello", entry.Message.Content)
}

func TestConversation_Timeout_Then_Late_Ack_Is_Ignored(t *testing.T) {
	req := require.New(t)
	sender := &fakeSender{}
	conv := newTestConversation(sender, 20*time.Millisecond)
	defer conv.Close()

	tempID, err := conv.Compose(context.Background(), "hello")
	req.NoError(err)

	// Given no ack within the deadline
	req.Eventually(func() bool { return stateOf(conv, 0)() == Failed }, time.Second, 5*time.Millisecond)
	req.Equal(FailureTimeout, conv.Entries()[0].Failure)

	// When a successful ack arrives late
	late := domain.SuccessAck(domain.Message{ID: 9, SenderID: alice, ReceiverID: bob, Content: "hello"})
	req.False(conv.OnAck(tempID, late))
	sender.future(0).Resolve(late)

	// Then the entry stays failed
	time.Sleep(20 * time.Millisecond)
	entries := conv.Entries()
	req.Len(entries, 1)
	req.Equal(Failed, entries[0].State)
}

func TestConversation_Ack_And_Timeout_Are_Mutually_Exclusive(t *testing.T) {
	req := require.New(t)
	conv := newTestConversation(&fakeSender{}, time.Hour)
	defer conv.Close()

	for i := 0; i < 50; i++ {
		tempID, err := conv.Compose(context.Background(), "race")
		req.NoError(err)

		var wg sync.WaitGroup
		results := make(chan bool, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			results <- conv.OnAck(tempID, domain.SuccessAck(domain.Message{ID: domain.MessageID(i + 1), SenderID: alice, ReceiverID: bob}))
		}()
		go func() {
			defer wg.Done()
			results <- conv.OnTimeout(tempID)
		}()
		wg.Wait()
		close(results)

		wins := 0
		for won := range results {
			if won {
				wins++
			}
		}
		req.Equal(1, wins)
	}

	for _, entry := range conv.Entries() {
		req.NotEqual(Pending, entry.State)
	}
}

func TestConversation_Same_Server_Id_Visible_Once(t *testing.T) {
	msg := domain.Message{ID: 5, SenderID: alice, ReceiverID: bob, Content: "hi"}

	t.Run("ack then fan-out", func(t *testing.T) {
		req := require.New(t)
		conv := newTestConversation(&fakeSender{}, time.Second)
		defer conv.Close()
		tempID, err := conv.Compose(context.Background(), "hi")
		req.NoError(err)

		req.True(conv.OnAck(tempID, domain.SuccessAck(msg)))
		req.False(conv.OnIncomingRouted(msg))
		req.Len(conv.Entries(), 1)
	})

	t.Run("fan-out then ack", func(t *testing.T) {
		req := require.New(t)
		conv := newTestConversation(&fakeSender{}, time.Second)
		defer conv.Close()
		tempID, err := conv.Compose(context.Background(), "hi")
		req.NoError(err)

		req.True(conv.OnIncomingRouted(msg))
		req.True(conv.OnAck(tempID, domain.SuccessAck(msg)))
		entries := conv.Entries()
		req.Len(entries, 1)
		req.Equal(Confirmed, entries[0].State)
	})

	t.Run("fan-out twice", func(t *testing.T) {
		req := require.New(t)
		conv := newTestConversation(&fakeSender{}, time.Second)
		defer conv.Close()

		req.True(conv.OnIncomingRouted(msg))
		req.False(conv.OnIncomingRouted(msg))
		req.Len(conv.Entries(), 1)
	})
}

func TestConversation_Ignores_Other_Conversations(t *testing.T) {
	req := require.New(t)
	conv := newTestConversation(&fakeSender{}, time.Second)
	defer conv.Close()

	req.False(conv.OnIncomingRouted(domain.Message{ID: 1, SenderID: 3, ReceiverID: alice}))
	req.Empty(conv.Entries())
}

func TestConversation_Rejects_Blank_Content(t *testing.T) {
	req := require.New(t)
	sender := &fakeSender{}
	conv := newTestConversation(sender, time.Second)
	defer conv.Close()

	_, err := conv.Compose(context.Background(), "  ")

	req.ErrorIs(err, errors.ErrEmptyContent)
	req.Empty(conv.Entries())
	req.Empty(sender.sent)
}

func TestConversation_Send_Error_Fails_Immediately(t *testing.T) {
	req := require.New(t)
	conv := newTestConversation(&fakeSender{err: errors.ErrTransportDisruption}, time.Hour)
	defer conv.Close()

	_, err := conv.Compose(context.Background(), "offline")
	req.NoError(err)

	entries := conv.Entries()
	req.Len(entries, 1)
	req.Equal(Failed, entries[0].State)
	req.Equal(FailureRejected, entries[0].Failure)
}

func TestConversation_Retry(t *testing.T) {
	req := require.New(t)
	sender := &fakeSender{}
	conv := newTestConversation(sender, 10*time.Millisecond)
	defer conv.Close()

	tempID, err := conv.Compose(context.Background(), "again")
	req.NoError(err)
	req.Eventually(func() bool { return stateOf(conv, 0)() == Failed }, time.Second, 5*time.Millisecond)

	// When the failed message is retried
	retried, err := conv.Retry(context.Background(), tempID)
	req.NoError(err)

	// Then a fresh pending entry replaces it
	req.NotEqual(tempID, retried)
	entries := conv.Entries()
	req.Len(entries, 1)
	req.Equal(retried, entries[0].TempID)
	req.Len(sender.sent, 2)

	// And retrying something not failed is refused
	_, err = conv.Retry(context.Background(), 12345)
	req.Error(err)
}

func TestConversation_Temp_Ids_Are_Unique_On_Frozen_Clock(t *testing.T) {
	req := require.New(t)
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conv := NewConversation(logs.GetLoggerFromLevel(slog.LevelDebug), alice, bob, &fakeSender{},
		ConversationConfig{Deadline: time.Hour, Clock: func() time.Time { return frozen }})
	defer conv.Close()

	first, err := conv.Compose(context.Background(), "a")
	req.NoError(err)
	second, err := conv.Compose(context.Background(), "b")
	req.NoError(err)

	req.Equal(first+1, second)
}

func TestConversation_LoadHistory(t *testing.T) {
	req := require.New(t)
	conv := newTestConversation(&fakeSender{}, time.Second)
	defer conv.Close()

	added := conv.LoadHistory([]domain.Message{
		{ID: 1, SenderID: alice, ReceiverID: bob},
		{ID: 2, SenderID: bob, ReceiverID: alice},
		{ID: 3, SenderID: 3, ReceiverID: alice},
	})

	req.Equal(2, added)
	req.Len(conv.Entries(), 2)
	select {
	case <-conv.Updates():
	default:
		req.Fail("an update should be signaled")
	}
}

func TestConversation_Close_Stops_Timers(t *testing.T) {
	req := require.New(t)
	conv := newTestConversation(&fakeSender{}, 10*time.Millisecond)

	tempID, err := conv.Compose(context.Background(), "bye")
	req.NoError(err)
	conv.Close()

	time.Sleep(30 * time.Millisecond)
	req.Equal(Pending, conv.Entries()[0].State)
	req.False(conv.OnTimeout(tempID))

	_, err = conv.Compose(context.Background(), "after close")
	req.Error(err)
}

func TestConversation_Pending_Entry_Carries_Sender_Name(t *testing.T) {
	req := require.New(t)
	sender := &fakeSender{}
	conv := NewConversation(logs.GetLoggerFromLevel(slog.LevelDebug), alice, bob, sender,
		ConversationConfig{Deadline: time.Hour, SelfName: "alice"})
	defer conv.Close()

	// When alice composes a message
	_, err := conv.Compose(context.Background(), "hello")
	req.NoError(err)

	// Then the pending entry already shows her name
	entries := conv.Entries()
	req.Len(entries, 1)
	req.Equal(Pending, entries[0].State)
	req.Equal("alice", entries[0].Message.SenderName)
	req.Equal(alice, entries[0].Message.SenderID)
}
