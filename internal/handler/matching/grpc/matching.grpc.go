package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/matching-engine/internal/entity"
	"github.com/krobus00/matching-engine/internal/service/matching"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "matching_engine.v1.MatchingEngineService"

// MatchingEngineServer exchanges google.protobuf.Struct messages whose fields
// follow the JSON shape of the entity request and event types. There is no
// .proto file behind the service, so it carries no descriptor metadata.
type MatchingEngineServer interface {
	EnterOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DeleteOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ChangeMatchingState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Depth(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var MatchingEngineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatchingEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "EnterOrder",
			Handler:    unaryHandler("EnterOrder", MatchingEngineServer.EnterOrder),
		},
		{
			MethodName: "DeleteOrder",
			Handler:    unaryHandler("DeleteOrder", MatchingEngineServer.DeleteOrder),
		},
		{
			MethodName: "ChangeMatchingState",
			Handler:    unaryHandler("ChangeMatchingState", MatchingEngineServer.ChangeMatchingState),
		},
		{
			MethodName: "Depth",
			Handler:    unaryHandler("Depth", MatchingEngineServer.Depth),
		},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterMatchingEngineServer(s grpc.ServiceRegistrar, srv MatchingEngineServer) {
	s.RegisterService(&MatchingEngineServiceDesc, srv)
}

func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryHandler(method string, call func(MatchingEngineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MatchingEngineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: FullMethod(method),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MatchingEngineServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type depthRequest struct {
	ISIN   string `json:"isin"`
	Levels int    `json:"levels"`
}

type Server struct {
	matchingService *matching.MatchingService
}

func NewMatchingGRPCServer(matchingService *matching.MatchingService) *Server {
	return &Server{
		matchingService: matchingService,
	}
}

func (s *Server) EnterOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in entity.EnterOrderRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}

	events, err := s.matchingService.EnterOrder(ctx, in)
	if err != nil {
		return nil, toStatus(err)
	}

	return eventsStruct(events)
}

func (s *Server) DeleteOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in entity.DeleteOrderRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}

	events, err := s.matchingService.DeleteOrder(ctx, in)
	if err != nil {
		return nil, toStatus(err)
	}

	return eventsStruct(events)
}

func (s *Server) ChangeMatchingState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in entity.ChangeMatchingStateRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}

	events, err := s.matchingService.ChangeMatchingState(ctx, in)
	if err != nil {
		return nil, toStatus(err)
	}

	return eventsStruct(events)
}

func (s *Server) Depth(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in depthRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}

	snapshot, err := s.matchingService.Depth(ctx, in.ISIN, in.Levels)
	if err != nil {
		return nil, toStatus(err)
	}

	return toStruct(snapshot)
}

// UnaryLoggingInterceptor logs every call with its latency and status code.
func UnaryLoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	entry := logrus.WithFields(logrus.Fields{
		"method":      info.FullMethod,
		"code":        status.Code(err).String(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("grpc request failed")
		return resp, err
	}
	entry.Info("grpc request")
	return resp, nil
}

func decodeStruct(in *structpb.Struct, out any) error {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Error(codes.InvalidArgument, "invalid request")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return status.Error(codes.InvalidArgument, "invalid request")
	}
	return nil
}

func eventsStruct(events []entity.MatchingEvent) (*structpb.Struct, error) {
	return toStruct(map[string]any{"events": events})
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}

	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, matching.ErrDuplicateRequest):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, matching.ErrUnknownSecurity):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, matching.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, matching.ErrDispatcherClosed), errors.Is(err, matching.ErrInstrumentLeased):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, "internal server error")
	}
}
