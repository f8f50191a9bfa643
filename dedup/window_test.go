package dedup

import (
	"context"
	"dm-relay/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWindow_Lookup_Within_And_After_Window(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	w := NewWindow(5 * time.Second)
	key := domain.DedupKey{SenderID: 1, ReceiverID: 2, Content: "hi"}
	msg := domain.Message{ID: 10, SenderID: 1, ReceiverID: 2, Content: "hi"}
	t0 := time.Now()

	// Given a message recorded at t0
	req.NoError(w.Record(ctx, key, msg, t0))

	// Then it is found two seconds later
	found, ok, err := w.Lookup(ctx, key, t0.Add(2*time.Second))
	req.NoError(err)
	req.True(ok)
	req.Equal(msg, found)

	// And it is absent once the window elapsed
	_, ok, err = w.Lookup(ctx, key, t0.Add(5*time.Second))
	req.NoError(err)
	req.False(ok)
	req.Equal(0, w.Len())
}

func TestWindow_Keys_Are_Directional_And_Exact(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	w := NewWindow(time.Second)
	now := time.Now()
	req.NoError(w.Record(ctx, domain.DedupKey{SenderID: 1, ReceiverID: 2, Content: "hi"}, domain.Message{ID: 1}, now))

	for _, other := range []domain.DedupKey{
		{SenderID: 2, ReceiverID: 1, Content: "hi"},
		{SenderID: 1, ReceiverID: 2, Content: "hi "},
		{SenderID: 1, ReceiverID: 3, Content: "hi"},
	} {
		_, ok, err := w.Lookup(ctx, other, now)
		req.NoError(err)
		req.False(ok, "%+v", other)
	}
}

func TestWindow_Sweep(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	w := NewWindow(time.Second)
	now := time.Now()
	req.NoError(w.Record(ctx, domain.DedupKey{Content: "old"}, domain.Message{ID: 1}, now.Add(-2*time.Second)))
	req.NoError(w.Record(ctx, domain.DedupKey{Content: "new"}, domain.Message{ID: 2}, now))

	req.Equal(1, w.Sweep(now))
	req.Equal(1, w.Len())
}

func TestNewWindow_Defaults(t *testing.T) {
	require.Equal(t, DefaultWindow, NewWindow(0).Length())
}
