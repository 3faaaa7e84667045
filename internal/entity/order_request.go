package entity

import "time"

type OrderSide string
type RequestType string
type MatchingState string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"

	RequestTypeNewOrder    RequestType = "NEW_ORDER"
	RequestTypeUpdateOrder RequestType = "UPDATE_ORDER"
	RequestTypeDeleteOrder RequestType = "DELETE_ORDER"
	RequestTypeChangeState RequestType = "CHANGE_MATCHING_STATE"

	MatchingStateContinuous MatchingState = "CONTINUOUS"
	MatchingStateAuction    MatchingState = "AUCTION"
)

// EnterOrderRequest is a new-order or update-order request as received from a client.
type EnterOrderRequest struct {
	RequestID                string      `json:"request_id"`
	Type                     RequestType `json:"type"`
	ISIN                     string      `json:"isin"`
	OrderID                  int64       `json:"order_id"`
	EntryTime                time.Time   `json:"entry_time"`
	Side                     OrderSide   `json:"side"`
	Quantity                 int64       `json:"quantity"`
	Price                    int64       `json:"price"`
	BrokerID                 int64       `json:"broker_id"`
	ShareholderID            int64       `json:"shareholder_id"`
	PeakSize                 int64       `json:"peak_size"`
	MinimumExecutionQuantity int64       `json:"minimum_execution_quantity"`
	StopPrice                int64       `json:"stop_price"`
}

type DeleteOrderRequest struct {
	RequestID string    `json:"request_id"`
	ISIN      string    `json:"isin"`
	Side      OrderSide `json:"side"`
	OrderID   int64     `json:"order_id"`
}

type ChangeMatchingStateRequest struct {
	RequestID   string        `json:"request_id"`
	ISIN        string        `json:"isin"`
	TargetState MatchingState `json:"target_state"`
}

// OrderRequestEvent is the JetStream envelope for asynchronous requests. Exactly
// one of Enter, Delete and ChangeState is set, selected by Kind.
type OrderRequestEvent struct {
	RetryCount  int                         `json:"retry"`
	Kind        RequestType                 `json:"kind"`
	Enter       *EnterOrderRequest          `json:"enter,omitempty"`
	Delete      *DeleteOrderRequest         `json:"delete,omitempty"`
	ChangeState *ChangeMatchingStateRequest `json:"change_state,omitempty"`
}

func (e *OrderRequestEvent) RequestID() string {
	switch {
	case e.Enter != nil:
		return e.Enter.RequestID
	case e.Delete != nil:
		return e.Delete.RequestID
	case e.ChangeState != nil:
		return e.ChangeState.RequestID
	}
	return ""
}
