// Package chatwire describes the chat stream exchanged between clients and the relay:
// a single bidirectional gRPC method carrying JSON frames.
package chatwire

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ServiceName   = "dmrelay.v1.ChatService"
	SessionMethod = "/dmrelay.v1.ChatService/Session"
)

type ChatServiceServer interface {
	Session(SessionServer) error
}

type SessionServer interface {
	Send(*ServerFrame) error
	Recv() (*ClientFrame, error)
	grpc.ServerStream
}

type sessionServer struct {
	grpc.ServerStream
}

func (s *sessionServer) Send(frame *ServerFrame) error {
	return s.ServerStream.SendMsg(frame)
}

func (s *sessionServer) Recv() (*ClientFrame, error) {
	frame := new(ClientFrame)
	if err := s.ServerStream.RecvMsg(frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func sessionHandler(srv any, stream grpc.ServerStream) error {
	return srv.(ChatServiceServer).Session(&sessionServer{ServerStream: stream})
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Session",
			Handler:       sessionHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "dmrelay/v1/chat",
}

func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type SessionClient interface {
	Send(*ClientFrame) error
	Recv() (*ServerFrame, error)
	grpc.ClientStream
}

type sessionClient struct {
	grpc.ClientStream
}

func (c *sessionClient) Send(frame *ClientFrame) error {
	return c.ClientStream.SendMsg(frame)
}

func (c *sessionClient) Recv() (*ServerFrame, error) {
	frame := new(ServerFrame)
	if err := c.ClientStream.RecvMsg(frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// OpenSession starts the bidirectional chat stream on cc using the JSON codec.
func OpenSession(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (SessionClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := cc.NewStream(ctx, &ServiceDesc.Streams[0], SessionMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &sessionClient{ClientStream: stream}, nil
}
