package rpc

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/affect-triage/internal/engine"
	"github.com/danielpatrickdp/affect-triage/internal/graph"
	"github.com/danielpatrickdp/affect-triage/internal/triage"
)

func startServer(t *testing.T) *Client {
	t.Helper()
	logger := zaptest.NewLogger(t)
	e := engine.New(engine.DefaultConfig(), graph.MustBuild(graph.DefaultSpec()), engine.WithLogger(logger))

	lis := bufconn.Listen(1 << 20)
	gs, _ := NewGRPCServer(NewServer(e, logger))
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	c, err := NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDecideOverRPC(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	d, err := c.Decide(ctx, engine.Turn{SessionID: "s1", Utterance: "I feel so sad and hopeless lately."})
	require.NoError(t, err)
	assert.Equal(t, "s1", d.SessionID)
	assert.Equal(t, triage.StateID(graph.GriefDespair), d.NextState)
	assert.Equal(t, 1, d.Turn)
	assert.NotEmpty(t, d.ID)

	d, err = c.Decide(ctx, engine.Turn{SessionID: "s1", Utterance: "I'm going to kill myself tonight. I have a plan and the pills are ready."})
	require.NoError(t, err)
	assert.Equal(t, triage.RiskCritical, d.RiskLevel)
	assert.Equal(t, triage.StateID(graph.Crisis), d.NextState)
	assert.True(t, d.OverrideApplied)
	assert.Equal(t, 2, d.Turn)
}

func TestDecideRejectsBadRequests(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	_, err := c.Decide(ctx, engine.Turn{Utterance: "hello"})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	req, err := structpb.NewStruct(map[string]any{"session_id": "x", "mood": "odd"})
	require.NoError(t, err)
	err = c.cc.Invoke(ctx, decideMethod, req, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestHealthReportsServing(t *testing.T) {
	c := startServer(t)
	ok, err := c.Healthy(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCloseWithoutOwnedConn(t *testing.T) {
	assert.NoError(t, NewClientWithConn(nil).Close())
}

func TestTurnStructRoundTrip(t *testing.T) {
	in := engine.Turn{SessionID: "a", Utterance: "hi", History: []string{"one", "two"}}
	s, err := TurnToStruct(in)
	require.NoError(t, err)
	out, err := TurnFromStruct(s)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
