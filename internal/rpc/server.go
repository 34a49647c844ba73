package rpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/affect-triage/internal/engine"
	"github.com/danielpatrickdp/affect-triage/internal/triage"
)

// Decider is the engine surface the gRPC server needs.
type Decider interface {
	ProcessTurn(ctx context.Context, turn engine.Turn) triage.Decision
}

// Server implements TriageServer on top of an engine.
type Server struct {
	engine Decider
	logger *zap.Logger
}

// NewServer creates a Server.
func NewServer(e Decider, logger *zap.Logger) *Server {
	return &Server{engine: e, logger: logger.Named("rpc")}
}

// Decide runs one turn.
func (s *Server) Decide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	turn, err := TurnFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if turn.SessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	out, err := DecisionToStruct(s.engine.ProcessTurn(ctx, turn))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// NewGRPCServer builds a grpc.Server with the triage and health services
// registered. The health server reports SERVING for ServiceName.
func NewGRPCServer(srv *Server, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(logUnary(srv.logger))}, opts...)
	gs := grpc.NewServer(opts...)
	RegisterTriageServer(gs, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return gs, hs
}

func logUnary(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("call",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("took", time.Since(start)))
		return resp, err
	}
}
