package http_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/matching-engine/internal/config"
	"github.com/krobus00/matching-engine/internal/entity"
	matchinghttp "github.com/krobus00/matching-engine/internal/handler/matching/http"
	"github.com/krobus00/matching-engine/internal/infrastructure"
	"github.com/krobus00/matching-engine/internal/service/matching"
	"github.com/stretchr/testify/require"
)

const (
	testISIN   = "IRO1XYZ0001"
	testAPIKey = "test-key"
)

type nopSink struct{}

func (nopSink) Publish(context.Context, []entity.MatchingEvent) error { return nil }

type memoryMarker struct {
	seen map[string]bool
}

func (m *memoryMarker) MarkRequest(_ context.Context, requestID string, _ time.Duration) (bool, error) {
	if m.seen[requestID] {
		return false, nil
	}
	m.seen[requestID] = true
	return true, nil
}

func (m *memoryMarker) ForgetRequest(_ context.Context, requestID string) error {
	delete(m.seen, requestID)
	return nil
}

type fakeTradeReader struct {
	trades []entity.Trade
	err    error
	limit  uint64
}

func (f *fakeTradeReader) GetByISIN(_ context.Context, _ string, limit uint64) ([]entity.Trade, error) {
	f.limit = limit
	return f.trades, f.err
}

func newTestServer(t *testing.T, trades matchinghttp.TradeReader) http.Handler {
	t.Helper()

	config.Env = &config.EnvConfig{
		APIKeys: []config.APIKeyConfig{
			{Name: "desk", Key: testAPIKey, Active: true},
			{Name: "old", Key: "expired-key", Active: true, ExpiredAt: "2020-01-01"},
			{Name: "off", Key: "inactive-key", Active: false},
		},
	}
	t.Cleanup(func() { config.Env = nil })

	registry := matching.NewRegistry()
	registry.AddSecurity(entity.Security{ISIN: testISIN, TickSize: 1, LotSize: 1})
	registry.AddBroker(1, 1_000_000)
	registry.AddBroker(2, 1_000_000)
	registry.AddShareholder(1)
	registry.AddShareholder(2).IncPosition(testISIN, 100)

	dispatcher := matching.NewDispatcher(1)
	t.Cleanup(dispatcher.Close)

	svc := matching.NewMatchingService(registry, dispatcher, nopSink{},
		matching.WithRequestMarker(&memoryMarker{seen: map[string]bool{}}, time.Minute))

	router := infrastructure.NewRouter()
	matchinghttp.NewMatchingHTTPHandler(svc, trades).Register(router)
	return router
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeEvents(t *testing.T, rec *httptest.ResponseRecorder) []entity.MatchingEvent {
	t.Helper()

	var resp matchinghttp.EventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Events
}

func Test_Handler_APIKey(t *testing.T) {
	handler := newTestServer(t, nil)
	body := `{"isin":"` + testISIN + `","order_id":1,"side":"SELL","price":"100","quantity":"5","broker_id":2,"shareholder_id":2}`

	tests := []struct {
		name    string
		key     string
		wantErr string
	}{
		{name: "missing", key: "", wantErr: "api key is required"},
		{name: "unknown", key: "nope", wantErr: "invalid api key"},
		{name: "inactive", key: "inactive-key", wantErr: "api key is inactive"},
		{name: "expired", key: "expired-key", wantErr: "api key is expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/matching-engine/v1/orders", strings.NewReader(body))
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Contains(t, rec.Body.String(), tt.wantErr)
		})
	}

	t.Run("body key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/matching-engine/v1/orders",
			strings.NewReader(`{"api_key":"`+testAPIKey+`","isin":"`+testISIN+`","order_id":1,"side":"SELL","price":"100","quantity":"5","broker_id":2,"shareholder_id":2}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func Test_Handler_EnterOrderFlow(t *testing.T) {
	handler := newTestServer(t, nil)

	rec := doRequest(t, handler, http.MethodPost, "/matching-engine/v1/orders",
		`{"request_id":"r1","isin":"`+testISIN+`","order_id":1,"side":"sell","price":"100","quantity":"5","broker_id":2,"shareholder_id":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decodeEvents(t, rec)
	require.Len(t, events, 1)
	require.Equal(t, entity.EventOrderAccepted, events[0].Type)

	rec = doRequest(t, handler, http.MethodPost, "/matching-engine/v1/orders",
		`{"request_id":"r2","isin":"`+testISIN+`","order_id":2,"side":"BUY","price":"100.0","quantity":"3","broker_id":1,"shareholder_id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	events = decodeEvents(t, rec)
	require.Equal(t, entity.EventOrderExecuted, events[len(events)-1].Type)
	require.Equal(t, int64(3), events[len(events)-1].Trades[0].Quantity)

	rec = doRequest(t, handler, http.MethodPut, "/matching-engine/v1/orders/1",
		`{"request_id":"r3","isin":"`+testISIN+`","side":"SELL","price":"101","quantity":"2","broker_id":2,"shareholder_id":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, entity.EventOrderUpdated, decodeEvents(t, rec)[0].Type)

	rec = doRequest(t, handler, http.MethodGet, "/matching-engine/v1/securities/"+testISIN+"/depth?levels=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var depth entity.DepthSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &depth))
	require.Equal(t, []entity.DepthLevel{{Price: 101, Quantity: 2, Orders: 1}}, depth.Asks)
	require.Empty(t, depth.Bids)

	rec = doRequest(t, handler, http.MethodDelete, "/matching-engine/v1/orders/1?isin="+testISIN+"&side=sell&request_id=r4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, entity.EventOrderDeleted, decodeEvents(t, rec)[0].Type)

	rec = doRequest(t, handler, http.MethodDelete, "/matching-engine/v1/orders/1?isin="+testISIN+"&side=SELL&request_id=r5", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, []string{"order id not found"}, decodeEvents(t, rec)[0].Reasons)
}

func Test_Handler_EnterOrderErrors(t *testing.T) {
	handler := newTestServer(t, nil)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantBody string
	}{
		{
			name:     "invalid json",
			body:     `{`,
			wantCode: http.StatusBadRequest,
			wantBody: "invalid json body",
		},
		{
			name:     "missing fields",
			body:     `{"order_id":1,"side":"BUY"}`,
			wantCode: http.StatusBadRequest,
			wantBody: "missing required fields",
		},
		{
			name:     "fractional quantity",
			body:     `{"isin":"` + testISIN + `","order_id":1,"side":"BUY","price":"100","quantity":"1.5"}`,
			wantCode: http.StatusBadRequest,
			wantBody: "invalid quantity",
		},
		{
			name:     "bad stop price",
			body:     `{"isin":"` + testISIN + `","order_id":1,"side":"BUY","price":"100","quantity":"1","stop_price":"abc"}`,
			wantCode: http.StatusBadRequest,
			wantBody: "invalid stop price",
		},
		{
			name:     "unknown broker",
			body:     `{"isin":"` + testISIN + `","order_id":1,"side":"BUY","price":"100","quantity":"1","broker_id":9,"shareholder_id":1}`,
			wantCode: http.StatusUnprocessableEntity,
			wantBody: matching.ReasonUnknownBroker,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, handler, http.MethodPost, "/matching-engine/v1/orders", tt.body)
			require.Equal(t, tt.wantCode, rec.Code)
			require.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func Test_Handler_DuplicateRequest(t *testing.T) {
	handler := newTestServer(t, nil)
	body := `{"request_id":"same","isin":"` + testISIN + `","order_id":1,"side":"SELL","price":"100","quantity":"5","broker_id":2,"shareholder_id":2}`

	rec := doRequest(t, handler, http.MethodPost, "/matching-engine/v1/orders", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, http.MethodPost, "/matching-engine/v1/orders", body)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "duplicate request")
}

func Test_Handler_ChangeMatchingState(t *testing.T) {
	handler := newTestServer(t, nil)

	rec := doRequest(t, handler, http.MethodPut, "/matching-engine/v1/securities/"+testISIN+"/state",
		`{"request_id":"s1","target_state":"auction"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decodeEvents(t, rec)
	require.Equal(t, entity.EventSecurityStateChanged, events[0].Type)
	require.Equal(t, entity.MatchingStateAuction, events[0].State)

	rec = doRequest(t, handler, http.MethodPut, "/matching-engine/v1/securities/"+testISIN+"/state",
		`{"request_id":"s2","target_state":"HALTED"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), matching.ReasonInvalidMatchingState)

	rec = doRequest(t, handler, http.MethodPut, "/matching-engine/v1/securities/"+testISIN+"/state", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_Handler_Depth(t *testing.T) {
	handler := newTestServer(t, nil)

	rec := doRequest(t, handler, http.MethodGet, "/matching-engine/v1/securities/UNKNOWN/depth", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/matching-engine/v1/securities/"+testISIN+"/depth?levels=x", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_Handler_SubmitAsyncWithoutJetstream(t *testing.T) {
	handler := newTestServer(t, nil)

	rec := doRequest(t, handler, http.MethodPost, "/matching-engine/v1/orders/async",
		`{"kind":"NEW_ORDER","enter":{"isin":"`+testISIN+`","order_id":1,"side":"BUY","price":"100","quantity":"1"}}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	rec = doRequest(t, handler, http.MethodPost, "/matching-engine/v1/orders/async", `{"kind":"NEW_ORDER"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "missing request body")

	rec = doRequest(t, handler, http.MethodPost, "/matching-engine/v1/orders/async",
		`{"kind":"DELETE_ORDER","enter":{"isin":"`+testISIN+`","order_id":1,"side":"BUY","price":"100","quantity":"1"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid kind")
}

func Test_Handler_Trades(t *testing.T) {
	reader := &fakeTradeReader{trades: []entity.Trade{{ID: "t1", ISIN: testISIN, Price: 100, Quantity: 2}}}
	handler := newTestServer(t, reader)

	rec := doRequest(t, handler, http.MethodGet, "/matching-engine/v1/securities/"+testISIN+"/trades?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, uint64(10), reader.limit)
	require.Contains(t, rec.Body.String(), `"id":"t1"`)

	rec = doRequest(t, handler, http.MethodGet, "/matching-engine/v1/securities/"+testISIN+"/trades?limit=0", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	reader.err = errors.New("db down")
	rec = doRequest(t, handler, http.MethodGet, "/matching-engine/v1/securities/"+testISIN+"/trades", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, uint64(100), reader.limit)
}

func Test_Handler_TradesNotMounted(t *testing.T) {
	handler := newTestServer(t, nil)

	rec := doRequest(t, handler, http.MethodGet, "/matching-engine/v1/securities/"+testISIN+"/trades", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
