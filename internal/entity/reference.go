package entity

import (
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

type Broker struct {
	ID        int64           `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Credit    decimal.Decimal `db:"credit" json:"credit"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt null.Time       `db:"updated_at" json:"updated_at"`
}

func (b Broker) TableName() string {
	return "brokers"
}

type Shareholder struct {
	ID        int64       `db:"id" json:"id"`
	Name      null.String `db:"name" json:"name"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}

func (s Shareholder) TableName() string {
	return "shareholders"
}

type ShareholderPosition struct {
	ShareholderID int64     `db:"shareholder_id" json:"shareholder_id"`
	ISIN          string    `db:"isin" json:"isin"`
	Quantity      int64     `db:"quantity" json:"quantity"`
	UpdatedAt     null.Time `db:"updated_at" json:"updated_at"`
}

func (p ShareholderPosition) TableName() string {
	return "shareholder_positions"
}

type Security struct {
	ISIN           string        `db:"isin" json:"isin"`
	TickSize       int64         `db:"tick_size" json:"tick_size"`
	LotSize        int64         `db:"lot_size" json:"lot_size"`
	LastTradePrice int64         `db:"last_trade_price" json:"last_trade_price"`
	MatchingState  MatchingState `db:"matching_state" json:"matching_state"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      null.Time     `db:"updated_at" json:"updated_at"`
}

func (s Security) TableName() string {
	return "securities"
}

type Trade struct {
	ID                string          `db:"id" json:"id"`
	EventID           string          `db:"event_id" json:"event_id"`
	RequestID         null.String     `db:"request_id" json:"request_id"`
	ISIN              string          `db:"isin" json:"isin"`
	Price             int64           `db:"price" json:"price"`
	Quantity          int64           `db:"quantity" json:"quantity"`
	Value             decimal.Decimal `db:"value" json:"value"`
	BuyOrderID        int64           `db:"buy_order_id" json:"buy_order_id"`
	SellOrderID       int64           `db:"sell_order_id" json:"sell_order_id"`
	BuyBrokerID       int64           `db:"buy_broker_id" json:"buy_broker_id"`
	SellBrokerID      int64           `db:"sell_broker_id" json:"sell_broker_id"`
	BuyShareholderID  int64           `db:"buy_shareholder_id" json:"buy_shareholder_id"`
	SellShareholderID int64           `db:"sell_shareholder_id" json:"sell_shareholder_id"`
	TradedAt          time.Time       `db:"traded_at" json:"traded_at"`
}

func (t Trade) TableName() string {
	return "trades"
}
