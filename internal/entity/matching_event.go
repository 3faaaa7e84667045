package entity

import "time"

type MatchingEventType string

const (
	EventOrderAccepted        MatchingEventType = "ORDER_ACCEPTED"
	EventOrderUpdated         MatchingEventType = "ORDER_UPDATED"
	EventOrderRejected        MatchingEventType = "ORDER_REJECTED"
	EventOrderExecuted        MatchingEventType = "ORDER_EXECUTED"
	EventOrderActivated       MatchingEventType = "ORDER_ACTIVATED"
	EventOrderDeleted         MatchingEventType = "ORDER_DELETED"
	EventOpeningPrice         MatchingEventType = "OPENING_PRICE"
	EventSecurityStateChanged MatchingEventType = "SECURITY_STATE_CHANGED"
	EventTrade                MatchingEventType = "TRADE"
)

// MatchingEvent is one outbound notification. Sequence is assigned by the
// service in emission order and is unique per process lifetime.
type MatchingEvent struct {
	ID               string            `json:"id"`
	Sequence         uint64            `json:"sequence"`
	Type             MatchingEventType `json:"type"`
	RequestID        string            `json:"request_id,omitempty"`
	ISIN             string            `json:"isin"`
	OrderID          int64             `json:"order_id,omitempty"`
	Side             OrderSide         `json:"side,omitempty"`
	Reasons          []string          `json:"reasons,omitempty"`
	Trades           []TradeEvent      `json:"trades,omitempty"`
	OpeningPrice     int64             `json:"opening_price,omitempty"`
	TradableQuantity int64             `json:"tradable_quantity,omitempty"`
	State            MatchingState     `json:"state,omitempty"`
	LastTradePrice   int64             `json:"last_trade_price,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

type TradeEvent struct {
	ISIN              string `json:"isin"`
	Price             int64  `json:"price"`
	Quantity          int64  `json:"quantity"`
	BuyOrderID        int64  `json:"buy_order_id"`
	SellOrderID       int64  `json:"sell_order_id"`
	BuyBrokerID       int64  `json:"buy_broker_id"`
	SellBrokerID      int64  `json:"sell_broker_id"`
	BuyShareholderID  int64  `json:"buy_shareholder_id"`
	SellShareholderID int64  `json:"sell_shareholder_id"`
}

func (t TradeEvent) Value() int64 {
	return t.Price * t.Quantity
}

type DepthLevel struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
	Orders   int   `json:"orders"`
}

type DepthSnapshot struct {
	ISIN           string        `json:"isin"`
	State          MatchingState `json:"state"`
	LastTradePrice int64         `json:"last_trade_price"`
	Bids           []DepthLevel  `json:"bids"`
	Asks           []DepthLevel  `json:"asks"`
}
