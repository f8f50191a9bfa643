package sink_test

import (
	"context"
	"dm-relay/domain"
	"dm-relay/domain/event"
	"dm-relay/errors"
	"dm-relay/sink"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectionSink_Consume(t *testing.T) {
	req := require.New(t)
	s := sink.NewConnectionSink(1)
	evt := event.NewMessage{Message: domain.Message{ID: 1, Content: "hi"}}

	// When an event is consumed
	req.NoError(s.Consume(context.Background(), evt))

	// Then it is readable from Events
	req.Equal(evt, <-s.Events())
	req.NotEmpty(s.ID())
}

func TestConnectionSink_Full_Buffer_Times_Out(t *testing.T) {
	req := require.New(t)
	s := sink.NewConnectionSink(1)
	req.NoError(s.Consume(context.Background(), event.NewMessage{}))

	// Given a full buffer and a short deadline
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Consume(ctx, event.NewMessage{})
	req.ErrorIs(err, errors.ErrDeliveryTimeout)
}

func TestConnectionSink_Closed(t *testing.T) {
	req := require.New(t)
	s := sink.NewConnectionSink(4)
	s.Close()
	s.Close()

	err := s.Consume(context.Background(), event.NewMessage{})
	req.ErrorIs(err, errors.ErrTransportDisruption)

	select {
	case <-s.Done():
	default:
		req.Fail("done should be closed")
	}
}
