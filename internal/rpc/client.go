package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/affect-triage/internal/engine"
	"github.com/danielpatrickdp/affect-triage/internal/triage"
)

// #region client-struct

// Client talks to a remote triage engine.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor

// NewClient connects to the engine at addr. Extra options are appended to
// the insecure transport default.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn wraps an existing connection. Close does not close it.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// #endregion constructor

// Close shuts down the connection the client created.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #region decide

// Decide sends one turn and returns the engine's decision.
func (c *Client) Decide(ctx context.Context, turn engine.Turn) (triage.Decision, error) {
	req, err := TurnToStruct(turn)
	if err != nil {
		return triage.Decision{}, fmt.Errorf("encode turn: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, decideMethod, req, resp); err != nil {
		return triage.Decision{}, fmt.Errorf("decide rpc: %w", err)
	}
	return DecisionFromStruct(resp)
}

// #endregion decide

// Healthy reports whether the remote triage service is SERVING.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	resp, err := healthpb.NewHealthClient(c.cc).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, fmt.Errorf("health rpc: %w", err)
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}
