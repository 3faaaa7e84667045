package engine

import (
	"fmt"
	"time"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "NEW"
	OrderStatusQueued   OrderStatus = "QUEUED"
	OrderStatusSnapshot OrderStatus = "SNAPSHOT"
)

type OrderKind string

const (
	OrderKindLimit   OrderKind = "LIMIT"
	OrderKindIceberg OrderKind = "ICEBERG"
)

// Order is a limit order, optionally an iceberg (Kind) and optionally a stop order (StopPrice != 0).
type Order struct {
	ID                       int64
	ISIN                     string
	Side                     Side
	Price                    int64
	Quantity                 int64
	MinimumExecutionQuantity int64
	StopPrice                int64
	Broker                   *Broker
	Shareholder              *Shareholder
	EntryTime                time.Time
	Status                   OrderStatus
	Inactive                 bool

	Kind              OrderKind
	PeakSize          int64
	DisplayedQuantity int64

	seq uint64
}

// NewOrder builds an order from an entry request. A non-zero peak size makes it an iceberg.
func NewOrder(isin string, req EnterOrderRequest, broker *Broker, shareholder *Shareholder) *Order {
	o := &Order{
		ID:                       req.OrderID,
		ISIN:                     isin,
		Side:                     req.Side,
		Price:                    req.Price,
		Quantity:                 req.Quantity,
		MinimumExecutionQuantity: req.MinimumExecutionQuantity,
		StopPrice:                req.StopPrice,
		Broker:                   broker,
		Shareholder:              shareholder,
		EntryTime:                req.EntryTime,
		Status:                   OrderStatusNew,
		Inactive:                 req.StopPrice != 0,
		Kind:                     OrderKindLimit,
	}

	if req.PeakSize > 0 {
		o.Kind = OrderKindIceberg
		o.PeakSize = req.PeakSize
		o.DisplayedQuantity = min(req.PeakSize, req.Quantity)
	}

	return o
}

func (o *Order) IsIceberg() bool {
	return o.Kind == OrderKindIceberg
}

// VisibleQuantity is the quantity the book trades against: the displayed slice for
// a queued iceberg, the full remaining quantity otherwise.
func (o *Order) VisibleQuantity() int64 {
	if o.IsIceberg() && o.Status != OrderStatusNew {
		return o.DisplayedQuantity
	}
	return o.Quantity
}

// Value is the reservation amount for the full remaining quantity.
func (o *Order) Value() int64 {
	return o.Price * o.Quantity
}

func (o *Order) DecreaseQuantity(amount int64) {
	if amount > o.VisibleQuantity() {
		panic(fmt.Sprintf("order %d: decrease by %d exceeds visible quantity %d", o.ID, amount, o.VisibleQuantity()))
	}

	o.Quantity -= amount
	if !o.IsIceberg() {
		return
	}
	if o.Status == OrderStatusNew {
		o.DisplayedQuantity = min(o.DisplayedQuantity, o.Quantity)
		return
	}
	o.DisplayedQuantity -= amount
}

func (o *Order) Replenish() {
	if o.IsIceberg() {
		o.DisplayedQuantity = min(o.Quantity, o.PeakSize)
	}
}

func (o *Order) MarkAsNew() {
	o.Status = OrderStatusNew
}

func (o *Order) queue() {
	o.Status = OrderStatusQueued
	o.Replenish()
}

// Snapshot returns a detached copy for trade records and update rollback.
func (o *Order) Snapshot() Order {
	cp := *o
	cp.Status = OrderStatusSnapshot
	return cp
}

func (o *Order) ShouldActivate(lastTradePrice int64) bool {
	if !o.Inactive {
		return false
	}
	if o.Side == SideBuy {
		return o.StopPrice <= lastTradePrice
	}
	return o.StopPrice >= lastTradePrice
}

func (o *Order) isQuantityIncreased(newQuantity int64) bool {
	return newQuantity > o.Quantity
}

func (o *Order) isUpdateStopPriceInvalid(req EnterOrderRequest) bool {
	if o.StopPrice == 0 {
		return req.StopPrice != 0
	}
	if o.Inactive {
		return req.StopPrice == 0
	}
	return req.StopPrice != o.StopPrice
}

func (o *Order) losesPriority(req EnterOrderRequest) bool {
	return o.isQuantityIncreased(req.Quantity) ||
		req.Price != o.Price ||
		(o.IsIceberg() && req.PeakSize > o.PeakSize)
}

// updateFromRequest applies the mutable fields of an update request.
func (o *Order) updateFromRequest(req EnterOrderRequest) {
	o.Quantity = req.Quantity
	o.Price = req.Price
	o.StopPrice = req.StopPrice

	if !o.IsIceberg() {
		return
	}

	if req.PeakSize > o.PeakSize {
		o.DisplayedQuantity = min(o.Quantity, req.PeakSize)
	} else {
		o.DisplayedQuantity = min(o.DisplayedQuantity, req.PeakSize, o.Quantity)
	}
	o.PeakSize = req.PeakSize
}
