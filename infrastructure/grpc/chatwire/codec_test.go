package chatwire

import (
	"dm-relay/domain"
	"dm-relay/errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestCodec_Registered(t *testing.T) {
	req := require.New(t)
	req.NotNil(encoding.GetCodec(CodecName))
}

func TestCodec_Decodes_Browser_Style_Send(t *testing.T) {
	req := require.New(t)

	// Given a frame with ids sent as strings
	payload := []byte(`{"event":"sendMessage","ack_id":3,"send":{"senderId":"1","receiverId":2,"content":"hi"}}`)

	var frame ClientFrame
	req.NoError(jsonCodec{}.Unmarshal(payload, &frame))

	// Then ids are canonical integers
	req.Equal(EventSendMessage, frame.Event)
	req.Equal(uint64(3), frame.AckID)
	cmd, err := frame.Send.Command()
	req.NoError(err)
	req.Equal(domain.UserID(1), cmd.SenderID)
	req.Equal(domain.UserID(2), cmd.ReceiverID)
	req.Equal("hi", cmd.Content)
}

func TestCodec_Decodes_Send_With_Invalid_Ids(t *testing.T) {
	req := require.New(t)

	// Given frames whose ids are zero, negative or not numbers
	for _, payload := range []string{
		`{"event":"sendMessage","ack_id":1,"send":{"senderId":0,"receiverId":2,"content":"hi"}}`,
		`{"event":"sendMessage","ack_id":1,"send":{"senderId":1,"receiverId":-4,"content":"hi"}}`,
		`{"event":"sendMessage","ack_id":1,"send":{"senderId":"bob","receiverId":2,"content":"hi"}}`,
		`{"event":"sendMessage","ack_id":1,"send":{"receiverId":2,"content":"hi"}}`,
	} {
		// When the frame is decoded
		var frame ClientFrame
		req.NoError(jsonCodec{}.Unmarshal([]byte(payload), &frame), payload)

		// Then decoding succeeds and the command reports an invalid participant
		_, err := frame.Send.Command()
		req.ErrorIs(err, errors.ErrInvalidParticipant, payload)
	}
}

func TestCodec_Decodes_Join_With_Invalid_Id(t *testing.T) {
	req := require.New(t)
	var frame ClientFrame
	req.NoError(jsonCodec{}.Unmarshal([]byte(`{"event":"join","join":{"user_id":"abc"}}`), &frame))

	_, err := frame.Join.User()
	req.ErrorIs(err, errors.ErrInvalidUserID)
}

func TestSendFrame_Round_Trips_Command(t *testing.T) {
	req := require.New(t)
	data, err := jsonCodec{}.Marshal(SendFrame(4, domain.SendMessageCommand{SenderID: 1, ReceiverID: 2, Content: "yo"}))
	req.NoError(err)

	var frame ClientFrame
	req.NoError(jsonCodec{}.Unmarshal(data, &frame))
	cmd, err := frame.Send.Command()
	req.NoError(err)
	req.Equal(domain.SendMessageCommand{SenderID: 1, ReceiverID: 2, Content: "yo"}, cmd)
}

func TestCodec_Ack_Frame(t *testing.T) {
	req := require.New(t)
	frame := AckFrame(9, domain.SuccessAck(domain.Message{ID: 4, Content: "hi"}))

	data, err := jsonCodec{}.Marshal(frame)
	req.NoError(err)

	var decoded ServerFrame
	req.NoError(jsonCodec{}.Unmarshal(data, &decoded))
	req.Equal(EventAck, decoded.Event)
	req.True(decoded.Ack.Succeeded())
	req.Equal(domain.MessageID(4), decoded.Ack.Message.ID)
}
