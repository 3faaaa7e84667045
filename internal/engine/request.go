package engine

import "time"

// EnterOrderRequest carries the fields of a new-order or update-order request
// after validation and reference lookup.
type EnterOrderRequest struct {
	OrderID                  int64
	EntryTime                time.Time
	Side                     Side
	Quantity                 int64
	Price                    int64
	PeakSize                 int64
	MinimumExecutionQuantity int64
	StopPrice                int64
}

func (r EnterOrderRequest) HasStopPrice() bool {
	return r.StopPrice != 0
}

func (r EnterOrderRequest) IsStopLimitCombinationInvalid() bool {
	return r.StopPrice != 0 && (r.MinimumExecutionQuantity != 0 || r.PeakSize != 0)
}
