package e2e

import (
	"context"
	"dm-relay/client"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// BaseGrpcSuite runs against a live relay. It is skipped when RELAY_GRPC_ADDR is unset.
type BaseGrpcSuite struct {
	suite.Suite
	Config Config
	API    *client.APIClient
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseGrpcSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.GRPCAddr == "" {
		s.T().Skip("RELAY_GRPC_ADDR is not set")
	}
	s.API = client.NewAPIClient(s.Config.HTTPAddr, 10*time.Second)
}

// GrpcConn initializes a gRPC connection with logging, colors, and JSON debugging
func (s *BaseGrpcSuite) GrpcConn(t *testing.T, name string) *grpc.ClientConn {
	// 1. Print a colorized header for the connection step in logs
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)

	// 2. Create the client with a Stream Interceptor for logging
	conn, err := grpc.NewClient(s.Config.GRPCAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStreamInterceptor(func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
			start := time.Now()
			stream, err := streamer(ctx, desc, cc, method, opts...)
			t.Logf("GRPC %s opened in %v (err=%v)", method, time.Since(start), err)
			if err != nil || !s.Config.DebugJSON {
				return stream, err
			}
			return &loggingStream{ClientStream: stream, t: t}, nil
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.GRPCAddr)
	return conn
}

// loggingStream dumps every frame as JSON.
type loggingStream struct {
	grpc.ClientStream
	t *testing.T
}

func (l *loggingStream) SendMsg(m any) error {
	l.log("SEND", m)
	return l.ClientStream.SendMsg(m)
}

func (l *loggingStream) RecvMsg(m any) error {
	err := l.ClientStream.RecvMsg(m)
	if err == nil {
		l.log("RECV", m)
	}
	return err
}

func (l *loggingStream) log(direction string, m any) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		l.t.Logf("%s <unprintable %T>", direction, m)
		return
	}
	l.t.Logf("%s\n%s", direction, b)
}

// NewAccount registers a fresh user with a unique name.
func (s *BaseGrpcSuite) NewAccount(prefix string) client.Account {
	username := prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	password := "Corr3ct-Horse-Battery"
	_, err := s.API.Register(username, password)
	s.Require().NoError(err)
	account, err := s.API.Login(username, password)
	s.Require().NoError(err)
	return account
}

// WithSession provides a joined chat session for account within a contextual test step
func (s *BaseGrpcSuite) WithSession(name string, account client.Account, fn func(ctx context.Context, session *client.Session)) {
	conn := s.GrpcConn(s.T(), name)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session, err := client.DialSession(ctx, logs.GetLoggerFromLevel(slog.LevelDebug), conn, account.Token, 16)
	s.Require().NoError(err)
	defer func() { _ = session.Close() }()
	s.Require().Equal("grpc", session.Transport())
	s.Require().NoError(session.Join(account.ID))
	// Joins are not acknowledged
	time.Sleep(100 * time.Millisecond)

	fn(ctx, session)
}
