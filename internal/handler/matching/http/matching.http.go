package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/guregu/null/v6"
	"github.com/krobus00/matching-engine/internal/config"
	"github.com/krobus00/matching-engine/internal/entity"
	"github.com/krobus00/matching-engine/internal/service/matching"
	"github.com/shopspring/decimal"
)

const defaultTradeLimit = 100

var (
	errAPIKeyMissing  = errors.New("api key is required")
	errAPIKeyInvalid  = errors.New("invalid api key")
	errAPIKeyInactive = errors.New("api key is inactive")
	errAPIKeyExpired  = errors.New("api key is expired")
)

// TradeReader serves the trade history endpoint.
type TradeReader interface {
	GetByISIN(ctx context.Context, isin string, limit uint64) ([]entity.Trade, error)
}

// EnterOrderRequest carries prices and quantities as decimal strings; they must
// be whole numbers.
type EnterOrderRequest struct {
	ApiKey                   string      `json:"api_key"`
	RequestID                string      `json:"request_id"`
	ISIN                     string      `json:"isin"`
	OrderID                  int64       `json:"order_id"`
	Side                     string      `json:"side"`
	Price                    string      `json:"price"`
	Quantity                 string      `json:"quantity"`
	BrokerID                 int64       `json:"broker_id"`
	ShareholderID            int64       `json:"shareholder_id"`
	PeakSize                 null.String `json:"peak_size"`
	MinimumExecutionQuantity null.String `json:"minimum_execution_quantity"`
	StopPrice                null.String `json:"stop_price"`
	EntryTime                null.Int    `json:"entry_time"`
}

type ChangeMatchingStateRequest struct {
	ApiKey      string `json:"api_key"`
	RequestID   string `json:"request_id"`
	ISIN        string `json:"isin"`
	TargetState string `json:"target_state"`
}

type DeleteOrderRequest struct {
	RequestID string `json:"request_id"`
	ISIN      string `json:"isin"`
	Side      string `json:"side"`
	OrderID   int64  `json:"order_id"`
}

type SubmitAsyncRequest struct {
	ApiKey      string                      `json:"api_key"`
	Kind        string                      `json:"kind"`
	Enter       *EnterOrderRequest          `json:"enter"`
	Delete      *DeleteOrderRequest         `json:"delete"`
	ChangeState *ChangeMatchingStateRequest `json:"change_state"`
}

type EventsResponse struct {
	Events []entity.MatchingEvent `json:"events"`
}

type SubmitAsyncResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

type Handler struct {
	matchingService *matching.MatchingService
	trades          TradeReader
}

func NewMatchingHTTPHandler(matchingService *matching.MatchingService, trades TradeReader) *Handler {
	return &Handler{
		matchingService: matchingService,
		trades:          trades,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/matching-engine/v1", func(r chi.Router) {
		r.Post("/orders", h.EnterOrder)
		r.Post("/orders/async", h.SubmitAsync)
		r.Put("/orders/{orderID}", h.UpdateOrder)
		r.Delete("/orders/{orderID}", h.DeleteOrder)
		r.Put("/securities/{isin}/state", h.ChangeMatchingState)
		r.Get("/securities/{isin}/depth", h.Depth)
		if h.trades != nil {
			r.Get("/securities/{isin}/trades", h.Trades)
		}
	})
}

func (h *Handler) EnterOrder(w http.ResponseWriter, r *http.Request) {
	h.enterOrder(w, r, entity.RequestTypeNewOrder)
}

func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	h.enterOrder(w, r, entity.RequestTypeUpdateOrder)
}

func (h *Handler) enterOrder(w http.ResponseWriter, r *http.Request, requestType entity.RequestType) {
	defer r.Body.Close()

	var req EnterOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	if err := validateAPIKey(resolveAPIKey(r, req.ApiKey)); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	if requestType == entity.RequestTypeUpdateOrder {
		orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid order id"})
			return
		}
		req.OrderID = orderID
	}

	if strings.TrimSpace(req.ISIN) == "" || strings.TrimSpace(req.Side) == "" || strings.TrimSpace(req.Quantity) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing required fields"})
		return
	}

	enterReq, err := mapHTTPRequestToEnterOrderRequest(&req, requestType)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if enterReq.RequestID == "" {
		enterReq.RequestID = r.Header.Get("X-Request-Id")
	}

	events, err := h.matchingService.EnterOrder(r.Context(), enterReq)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeEvents(w, events)
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := validateAPIKey(resolveAPIKey(r, "")); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid order id"})
		return
	}

	query := r.URL.Query()
	if strings.TrimSpace(query.Get("isin")) == "" || strings.TrimSpace(query.Get("side")) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing required fields"})
		return
	}

	requestID := strings.TrimSpace(query.Get("request_id"))
	if requestID == "" {
		requestID = r.Header.Get("X-Request-Id")
	}

	events, err := h.matchingService.DeleteOrder(r.Context(), entity.DeleteOrderRequest{
		RequestID: requestID,
		ISIN:      strings.TrimSpace(query.Get("isin")),
		Side:      entity.OrderSide(strings.ToUpper(strings.TrimSpace(query.Get("side")))),
		OrderID:   orderID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeEvents(w, events)
}

func (h *Handler) ChangeMatchingState(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req ChangeMatchingStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	if err := validateAPIKey(resolveAPIKey(r, req.ApiKey)); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	if strings.TrimSpace(req.TargetState) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing required fields"})
		return
	}

	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = r.Header.Get("X-Request-Id")
	}

	events, err := h.matchingService.ChangeMatchingState(r.Context(), entity.ChangeMatchingStateRequest{
		RequestID:   requestID,
		ISIN:        chi.URLParam(r, "isin"),
		TargetState: entity.MatchingState(strings.ToUpper(strings.TrimSpace(req.TargetState))),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeEvents(w, events)
}

func (h *Handler) SubmitAsync(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req SubmitAsyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	if err := validateAPIKey(resolveAPIKey(r, req.ApiKey)); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	event, err := mapHTTPRequestToOrderRequestEvent(&req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	err = h.matchingService.SubmitAsync(r.Context(), event)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitAsyncResponse{
		RequestID: event.RequestID(),
		Status:    "queued",
	})
}

func (h *Handler) Depth(w http.ResponseWriter, r *http.Request) {
	levels := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("levels")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid levels"})
			return
		}
		levels = v
	}

	snapshot, err := h.matchingService.Depth(r.Context(), chi.URLParam(r, "isin"), levels)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) Trades(w http.ResponseWriter, r *http.Request) {
	limit := uint64(defaultTradeLimit)
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || v == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid limit"})
			return
		}
		limit = v
	}

	trades, err := h.trades.GetByISIN(r.Context(), chi.URLParam(r, "isin"), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
		return
	}
	if trades == nil {
		trades = []entity.Trade{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

func mapHTTPRequestToEnterOrderRequest(req *EnterOrderRequest, requestType entity.RequestType) (entity.EnterOrderRequest, error) {
	quantity, err := parseWholeNumber(req.Quantity)
	if err != nil {
		return entity.EnterOrderRequest{}, errors.New("invalid quantity")
	}

	var price int64
	if strings.TrimSpace(req.Price) != "" {
		price, err = parseWholeNumber(req.Price)
		if err != nil {
			return entity.EnterOrderRequest{}, errors.New("invalid price")
		}
	}

	peakSize, err := parseOptionalWholeNumber(req.PeakSize)
	if err != nil {
		return entity.EnterOrderRequest{}, errors.New("invalid peak size")
	}

	minimumExecutionQuantity, err := parseOptionalWholeNumber(req.MinimumExecutionQuantity)
	if err != nil {
		return entity.EnterOrderRequest{}, errors.New("invalid minimum execution quantity")
	}

	stopPrice, err := parseOptionalWholeNumber(req.StopPrice)
	if err != nil {
		return entity.EnterOrderRequest{}, errors.New("invalid stop price")
	}

	var entryTime time.Time
	if req.EntryTime.Valid {
		entryTime = time.UnixMilli(req.EntryTime.Int64).UTC()
	}

	return entity.EnterOrderRequest{
		RequestID:                strings.TrimSpace(req.RequestID),
		Type:                     requestType,
		ISIN:                     strings.TrimSpace(req.ISIN),
		OrderID:                  req.OrderID,
		EntryTime:                entryTime,
		Side:                     entity.OrderSide(strings.ToUpper(strings.TrimSpace(req.Side))),
		Quantity:                 quantity,
		Price:                    price,
		BrokerID:                 req.BrokerID,
		ShareholderID:            req.ShareholderID,
		PeakSize:                 peakSize,
		MinimumExecutionQuantity: minimumExecutionQuantity,
		StopPrice:                stopPrice,
	}, nil
}

func mapHTTPRequestToOrderRequestEvent(req *SubmitAsyncRequest) (entity.OrderRequestEvent, error) {
	kind := entity.RequestType(strings.ToUpper(strings.TrimSpace(req.Kind)))

	switch {
	case req.Enter != nil:
		if kind == "" {
			kind = entity.RequestTypeNewOrder
		}
		if kind != entity.RequestTypeNewOrder && kind != entity.RequestTypeUpdateOrder {
			return entity.OrderRequestEvent{}, errors.New("invalid kind")
		}
		enterReq, err := mapHTTPRequestToEnterOrderRequest(req.Enter, kind)
		if err != nil {
			return entity.OrderRequestEvent{}, err
		}
		return entity.OrderRequestEvent{Kind: kind, Enter: &enterReq}, nil
	case req.Delete != nil:
		return entity.OrderRequestEvent{
			Kind: entity.RequestTypeDeleteOrder,
			Delete: &entity.DeleteOrderRequest{
				RequestID: strings.TrimSpace(req.Delete.RequestID),
				ISIN:      strings.TrimSpace(req.Delete.ISIN),
				Side:      entity.OrderSide(strings.ToUpper(strings.TrimSpace(req.Delete.Side))),
				OrderID:   req.Delete.OrderID,
			},
		}, nil
	case req.ChangeState != nil:
		return entity.OrderRequestEvent{
			Kind: entity.RequestTypeChangeState,
			ChangeState: &entity.ChangeMatchingStateRequest{
				RequestID:   strings.TrimSpace(req.ChangeState.RequestID),
				ISIN:        strings.TrimSpace(req.ChangeState.ISIN),
				TargetState: entity.MatchingState(strings.ToUpper(strings.TrimSpace(req.ChangeState.TargetState))),
			},
		}, nil
	}

	return entity.OrderRequestEvent{}, errors.New("missing request body")
}

func parseWholeNumber(raw string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, errors.New("not a whole number")
	}
	return d.IntPart(), nil
}

func parseOptionalWholeNumber(raw null.String) (int64, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return 0, nil
	}
	return parseWholeNumber(raw.String)
}

func writeEvents(w http.ResponseWriter, events []entity.MatchingEvent) {
	code := http.StatusOK
	if len(events) > 0 && events[0].Type == entity.EventOrderRejected {
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, EventsResponse{Events: events})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, matching.ErrDuplicateRequest):
		writeJSON(w, http.StatusConflict, map[string]any{"error": "duplicate request"})
	case errors.Is(err, matching.ErrUnknownSecurity):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "security not found"})
	case errors.Is(err, matching.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, matching.ErrPublishRequestFailed):
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
	case errors.Is(err, matching.ErrDispatcherClosed), errors.Is(err, matching.ErrInstrumentLeased):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, map[string]any{"error": "request timed out"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func resolveAPIKey(r *http.Request, bodyKey string) string {
	if headerKey := strings.TrimSpace(r.Header.Get("X-API-Key")); headerKey != "" {
		return headerKey
	}

	return strings.TrimSpace(bodyKey)
}

func validateAPIKey(rawAPIKey string) error {
	apiKey := strings.TrimSpace(rawAPIKey)
	if apiKey == "" {
		return errAPIKeyMissing
	}

	if config.Env == nil || len(config.Env.APIKeys) == 0 {
		return errAPIKeyInvalid
	}

	now := time.Now().UTC()
	for _, candidate := range config.Env.APIKeys {
		storedKey := strings.TrimSpace(candidate.Key)
		if storedKey == "" {
			continue
		}

		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(storedKey)) != 1 {
			continue
		}

		if !candidate.Active {
			return errAPIKeyInactive
		}

		expiredAt, hasExpiry, err := parseExpiry(candidate.ExpiredAt)
		if err != nil {
			return errAPIKeyInvalid
		}
		if !hasExpiry {
			return nil
		}

		if !now.Before(expiredAt) {
			return errAPIKeyExpired
		}

		return nil
	}

	return errAPIKeyInvalid
}

func parseExpiry(value any) (time.Time, bool, error) {
	if value == nil {
		return time.Time{}, false, nil
	}

	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false, nil
		}
		return v.UTC(), true, nil
	case string:
		raw := strings.TrimSpace(v)
		if raw == "" {
			return time.Time{}, false, nil
		}

		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			return parsed.UTC(), true, nil
		}

		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, false, err
		}

		return parsed.UTC().Add(24 * time.Hour), true, nil
	default:
		return time.Time{}, false, errors.New("unsupported expiry type")
	}
}
