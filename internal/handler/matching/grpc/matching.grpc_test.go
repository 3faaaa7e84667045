package grpc_test

import (
	"context"
	"net"
	"testing"

	"github.com/krobus00/matching-engine/internal/entity"
	matchinggrpc "github.com/krobus00/matching-engine/internal/handler/matching/grpc"
	"github.com/krobus00/matching-engine/internal/service/matching"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

const testISIN = "IRO1GRP0001"

type nopSink struct{}

func (nopSink) Publish(context.Context, []entity.MatchingEvent) error { return nil }

func newTestClient(t *testing.T) *grpc.ClientConn {
	t.Helper()

	registry := matching.NewRegistry()
	registry.AddSecurity(entity.Security{ISIN: testISIN, TickSize: 1, LotSize: 1})
	registry.AddBroker(1, 1_000_000)
	registry.AddBroker(2, 1_000_000)
	registry.AddShareholder(1)
	registry.AddShareholder(2).IncPosition(testISIN, 100)

	dispatcher := matching.NewDispatcher(1)
	t.Cleanup(dispatcher.Close)
	svc := matching.NewMatchingService(registry, dispatcher, nopSink{})

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.UnaryInterceptor(matchinggrpc.UnaryLoggingInterceptor))
	matchinggrpc.RegisterMatchingEngineServer(server, matchinggrpc.NewMatchingGRPCServer(svc))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func invoke(t *testing.T, conn *grpc.ClientConn, method string, in map[string]any) (*structpb.Struct, error) {
	t.Helper()

	req, err := structpb.NewStruct(in)
	require.NoError(t, err)

	out := new(structpb.Struct)
	err = conn.Invoke(context.Background(), matchinggrpc.FullMethod(method), req, out)
	return out, err
}

func eventTypes(t *testing.T, out *structpb.Struct) []string {
	t.Helper()

	var types []string
	for _, v := range out.GetFields()["events"].GetListValue().GetValues() {
		types = append(types, v.GetStructValue().GetFields()["type"].GetStringValue())
	}
	return types
}

func Test_GRPC_EnterOrderAndDepth(t *testing.T) {
	conn := newTestClient(t)

	out, err := invoke(t, conn, "EnterOrder", map[string]any{
		"request_id":     "g1",
		"isin":           testISIN,
		"order_id":       1,
		"side":           "SELL",
		"price":          100,
		"quantity":       10,
		"broker_id":      2,
		"shareholder_id": 2,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"ORDER_ACCEPTED"}, eventTypes(t, out))

	out, err = invoke(t, conn, "EnterOrder", map[string]any{
		"request_id":     "g2",
		"isin":           testISIN,
		"order_id":       2,
		"side":           "BUY",
		"price":          100,
		"quantity":       4,
		"broker_id":      1,
		"shareholder_id": 1,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"ORDER_ACCEPTED", "ORDER_EXECUTED"}, eventTypes(t, out))

	out, err = invoke(t, conn, "Depth", map[string]any{"isin": testISIN, "levels": 1})
	require.NoError(t, err)
	asks := out.GetFields()["asks"].GetListValue().GetValues()
	require.Len(t, asks, 1)
	require.Equal(t, float64(6), asks[0].GetStructValue().GetFields()["quantity"].GetNumberValue())

	out, err = invoke(t, conn, "DeleteOrder", map[string]any{
		"request_id": "g3",
		"isin":       testISIN,
		"side":       "SELL",
		"order_id":   1,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"ORDER_DELETED"}, eventTypes(t, out))

	out, err = invoke(t, conn, "ChangeMatchingState", map[string]any{
		"request_id":   "g4",
		"isin":         testISIN,
		"target_state": "AUCTION",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"SECURITY_STATE_CHANGED"}, eventTypes(t, out))
}

func Test_GRPC_Errors(t *testing.T) {
	conn := newTestClient(t)

	_, err := invoke(t, conn, "Depth", map[string]any{"isin": "UNKNOWN"})
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = invoke(t, conn, "EnterOrder", map[string]any{"isin": testISIN, "quantity": 1.5})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = invoke(t, conn, "EnterOrder", map[string]any{"isin": testISIN, "type": "DELETE_ORDER"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	out, err := invoke(t, conn, "EnterOrder", map[string]any{"isin": testISIN, "order_id": 1, "side": "BUY", "price": 100, "quantity": 1})
	require.NoError(t, err)
	require.Equal(t, []string{"ORDER_REJECTED"}, eventTypes(t, out))
}

func Test_GRPC_ServiceInfo(t *testing.T) {
	server := grpc.NewServer()
	matchinggrpc.RegisterMatchingEngineServer(server, matchinggrpc.NewMatchingGRPCServer(nil))

	info, ok := server.GetServiceInfo()[matchinggrpc.ServiceName]
	require.True(t, ok)
	require.Nil(t, info.Metadata)

	var methods []string
	for _, m := range info.Methods {
		methods = append(methods, m.Name)
	}
	require.ElementsMatch(t, []string{"EnterOrder", "DeleteOrder", "ChangeMatchingState", "Depth"}, methods)
}

func Test_GRPC_Health(t *testing.T) {
	conn := newTestClient(t)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
