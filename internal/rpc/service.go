// Package rpc is the gRPC transport for the engine. Messages are
// google.protobuf.Struct values carrying the same snake_case fields as the
// HTTP API, so the service descriptor is declared by hand.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/affect-triage/internal/engine"
	"github.com/danielpatrickdp/affect-triage/internal/triage"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "triage.v1.TriageEngine"

	decideMethod = "/" + ServiceName + "/Decide"
)

// #region service-desc

// TriageServer is the server API for the triage service.
type TriageServer interface {
	Decide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TriageServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Decide", Handler: decideHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "triage/v1/triage.proto",
}

func decideHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TriageServer).Decide(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: decideMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TriageServer).Decide(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterTriageServer registers srv on s.
func RegisterTriageServer(s grpc.ServiceRegistrar, srv TriageServer) {
	s.RegisterService(&serviceDesc, srv)
}

// #endregion service-desc

// #region conversion

// TurnToStruct encodes a turn as a request message.
func TurnToStruct(turn engine.Turn) (*structpb.Struct, error) {
	return toStruct(turn)
}

// TurnFromStruct decodes a request message. Unknown fields are rejected.
func TurnFromStruct(s *structpb.Struct) (engine.Turn, error) {
	var turn engine.Turn
	if err := fromStruct(s, &turn, true); err != nil {
		return engine.Turn{}, fmt.Errorf("decode turn: %w", err)
	}
	return turn, nil
}

// DecisionToStruct encodes a decision as a response message.
func DecisionToStruct(d triage.Decision) (*structpb.Struct, error) {
	return toStruct(d)
}

// DecisionFromStruct decodes a response message.
func DecisionFromStruct(s *structpb.Struct) (triage.Decision, error) {
	var d triage.Decision
	if err := fromStruct(s, &d, false); err != nil {
		return triage.Decision{}, fmt.Errorf("decode decision: %w", err)
	}
	return d, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return structpb.NewStruct(m)
}

func fromStruct(s *structpb.Struct, v any, strict bool) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if strict {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(v)
}

// #endregion conversion
