package e2e

import (
	"context"
	"dm-relay/client"
	"dm-relay/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type testDirectMessageSuite struct {
	BaseGrpcSuite
}

func TestDirectMessageSuite(t *testing.T) {
	suite.Run(t, &testDirectMessageSuite{})
}

func (s *testDirectMessageSuite) awaitAck(future *client.AckFuture) domain.Ack {
	select {
	case <-future.Done():
		return future.Ack()
	case <-time.After(5 * time.Second):
		s.FailNow("no ack received")
	}
	return domain.Ack{}
}

func (s *testDirectMessageSuite) TestSendDeliverAndDeduplicate() {
	alice := s.NewAccount("alice")
	bob := s.NewAccount("bob")
	cmd := domain.SendMessageCommand{SenderID: alice.ID, ReceiverID: bob.ID, Content: "hi"}

	s.WithSession("Bob listens", bob, func(_ context.Context, bobSession *client.Session) {
		s.WithSession("Alice sends twice", alice, func(ctx context.Context, aliceSession *client.Session) {
			// --- STEP 1: FIRST SEND IS PERSISTED AND ROUTED ---
			future, err := aliceSession.Send(ctx, cmd)
			s.Require().NoError(err)
			first := s.awaitAck(future)
			s.Require().True(first.Succeeded(), first.Error)

			select {
			case msg := <-bobSession.Incoming():
				s.Require().Equal(first.Message.ID, msg.ID)
				s.Require().Equal("hi", msg.Content)
			case <-time.After(5 * time.Second):
				s.FailNow("bob did not receive the message")
			}

			// --- STEP 2: IMMEDIATE RETRY IS DEDUPLICATED ---
			future, err = aliceSession.Send(ctx, cmd)
			s.Require().NoError(err)
			second := s.awaitAck(future)
			s.Require().True(second.Succeeded())
			s.Require().Equal(first.Message.ID, second.Message.ID)

			select {
			case msg := <-bobSession.Incoming():
				s.FailNow("duplicate delivery", "message %d", msg.ID)
			case <-time.After(300 * time.Millisecond):
			}
		})
	})

	// --- STEP 3: HISTORY HOLDS ONE ROW ---
	history, err := s.API.History(alice.ID, bob.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
}

func (s *testDirectMessageSuite) TestOfflineReceiverGetsNoRetroactivePush() {
	alice := s.NewAccount("alice")
	bob := s.NewAccount("bob")

	s.WithSession("Alice sends to an offline bob", alice, func(ctx context.Context, session *client.Session) {
		future, err := session.Send(ctx, domain.SendMessageCommand{SenderID: alice.ID, ReceiverID: bob.ID, Content: "are you there?"})
		s.Require().NoError(err)
		s.Require().True(s.awaitAck(future).Succeeded())
	})

	s.WithSession("Bob comes online", bob, func(_ context.Context, session *client.Session) {
		select {
		case msg := <-session.Incoming():
			s.FailNow("unexpected push", "message %d", msg.ID)
		case <-time.After(500 * time.Millisecond):
		}
	})

	history, err := s.API.History(bob.ID, alice.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
}
