package engine

import "errors"

type MatchingState string

const (
	MatchingStateContinuous MatchingState = "CONTINUOUS"
	MatchingStateAuction    MatchingState = "AUCTION"
)

func (s MatchingState) Valid() bool {
	return s == MatchingStateContinuous || s == MatchingStateAuction
}

var (
	ErrOrderNotFound                        = errors.New("order id not found")
	ErrCannotUpdateMinimumExecutionQuantity = errors.New("cannot update minimum execution quantity")
	ErrInvalidPeakSize                      = errors.New("invalid peak size")
	ErrCannotSpecifyPeakSizeForNonIceberg   = errors.New("cannot specify peak size for a non-iceberg order")
	ErrInvalidUpdateStopPrice               = errors.New("invalid stop price update")
	ErrInvalidMatchingState                 = errors.New("invalid matching state")
)

// Security is the per-instrument orchestrator. It is not safe for concurrent
// use; callers serialise every operation on one instrument.
type Security struct {
	ISIN           string
	TickSize       int64
	LotSize        int64
	LastTradePrice int64
	MatchingState  MatchingState

	book       *OrderBook
	continuous ContinuousMatcher
	auction    AuctionMatcher
}

type SecurityOption func(*Security)

func WithLastTradePrice(price int64) SecurityOption {
	return func(s *Security) {
		s.LastTradePrice = price
	}
}

func WithMatchingState(state MatchingState) SecurityOption {
	return func(s *Security) {
		s.MatchingState = state
	}
}

func NewSecurity(isin string, tickSize, lotSize int64, opts ...SecurityOption) *Security {
	s := &Security{
		ISIN:          isin,
		TickSize:      tickSize,
		LotSize:       lotSize,
		MatchingState: MatchingStateContinuous,
		book:          NewOrderBook(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Security) OrderBook() *OrderBook {
	return s.book
}

func (s *Security) Depth(levels int) Depth {
	return s.book.Depth(levels)
}

func (s *Security) hasEnoughPositions(sh *Shareholder, committedDelta int64) bool {
	return sh.HasEnoughPositionsOn(s.ISIN, s.book.TotalSellQuantityByShareholder(sh)+committedDelta)
}

// NewOrder admits an order under the current matching state.
func (s *Security) NewOrder(req EnterOrderRequest, broker *Broker, shareholder *Shareholder) []MatchResult {
	order := NewOrder(s.ISIN, req, broker, shareholder)

	if order.Side == SideSell && !s.hasEnoughPositions(shareholder, order.Quantity) {
		return []MatchResult{NotEnoughPositions(order)}
	}
	if req.IsStopLimitCombinationInvalid() {
		return []MatchResult{NotAbleToCreateStopLimitOrder(order)}
	}

	if s.MatchingState == MatchingStateAuction {
		return []MatchResult{s.newAuctionOrder(order)}
	}
	if !order.Inactive {
		return s.continuous.Execute(s, order)
	}
	return s.newStopOrder(order)
}

func (s *Security) newAuctionOrder(order *Order) MatchResult {
	if order.StopPrice != 0 || order.MinimumExecutionQuantity != 0 {
		return InvalidOrderInAuctionState(order)
	}
	if order.Side == SideBuy {
		if !order.Broker.HasEnoughCredit(order.Value()) {
			return NotEnoughCredit(order)
		}
		order.Broker.DecreaseCreditBy(order.Value())
	}
	s.book.Enqueue(order)
	return s.auction.RecomputeOpening(s)
}

func (s *Security) newStopOrder(order *Order) []MatchResult {
	if order.Side == SideBuy {
		if !order.Broker.HasEnoughCredit(order.Value()) {
			return []MatchResult{NotEnoughCredit(order)}
		}
		order.Broker.DecreaseCreditBy(order.Value())
	}

	if order.ShouldActivate(s.LastTradePrice) {
		return s.activate(order)
	}

	s.book.Enqueue(order)
	return []MatchResult{StopLimitOrderAccepted(order)}
}

// activate turns a staged order (already out of the book, credit reserved)
// into a live one and executes it. On rejection only the rejection is returned.
func (s *Security) activate(order *Order) []MatchResult {
	order.Inactive = false
	order.MarkAsNew()
	if order.Side == SideBuy {
		order.Broker.IncreaseCreditBy(order.Value())
	}

	results := s.continuous.Execute(s, order)
	if results[0].Outcome.IsRejection() {
		return results[:1]
	}
	return append([]MatchResult{StopLimitOrderActivated(order)}, results...)
}

// UpdateOrder modifies a resting or staged order. Request-shape problems are
// returned as errors; business outcomes as results. An empty result list means
// a staged order was re-staged.
func (s *Security) UpdateOrder(req EnterOrderRequest) ([]MatchResult, error) {
	order := s.book.FindByID(req.Side, req.OrderID)
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if req.MinimumExecutionQuantity != order.MinimumExecutionQuantity {
		return nil, ErrCannotUpdateMinimumExecutionQuantity
	}
	if order.IsIceberg() && req.PeakSize == 0 {
		return nil, ErrInvalidPeakSize
	}
	if !order.IsIceberg() && req.PeakSize != 0 {
		return nil, ErrCannotSpecifyPeakSizeForNonIceberg
	}
	if order.isUpdateStopPriceInvalid(req) {
		return nil, ErrInvalidUpdateStopPrice
	}

	if order.Side == SideSell && !s.hasEnoughPositions(order.Shareholder, req.Quantity-order.Quantity) {
		return []MatchResult{NotEnoughPositions(order)}, nil
	}

	switch {
	case s.MatchingState == MatchingStateAuction:
		return []MatchResult{s.updateAuctionOrder(order, req)}, nil
	case order.Inactive:
		return s.updateStagedOrder(order, req), nil
	default:
		return s.updateActiveOrder(order, req), nil
	}
}

// rebalanceCredit swaps the reservation of a buy order from its current value to
// newValue. It reports false, leaving credit untouched, when newValue cannot be covered.
func rebalanceCredit(order *Order, newValue int64) bool {
	if order.Side != SideBuy {
		return true
	}
	order.Broker.IncreaseCreditBy(order.Value())
	if !order.Broker.HasEnoughCredit(newValue) {
		order.Broker.DecreaseCreditBy(order.Value())
		return false
	}
	order.Broker.DecreaseCreditBy(newValue)
	return true
}

func (s *Security) updateAuctionOrder(order *Order, req EnterOrderRequest) MatchResult {
	if order.Inactive {
		return InvalidOrderInAuctionState(order)
	}
	if !rebalanceCredit(order, req.Price*req.Quantity) {
		return NotEnoughCredit(order)
	}

	if order.losesPriority(req) {
		s.book.detach(order)
		order.updateFromRequest(req)
		s.book.Enqueue(order)
	} else {
		order.updateFromRequest(req)
	}

	return s.auction.RecomputeOpening(s)
}

func (s *Security) updateStagedOrder(order *Order, req EnterOrderRequest) []MatchResult {
	before := *order
	if !rebalanceCredit(order, req.Price*req.Quantity) {
		return []MatchResult{NotEnoughCredit(order)}
	}

	s.book.detach(order)
	order.updateFromRequest(req)

	if !order.ShouldActivate(s.LastTradePrice) {
		s.book.Enqueue(order)
		return nil
	}

	results := s.activate(order)
	if results[0].Outcome.IsRejection() {
		*order = before
		s.book.Restore(order)
		if order.Side == SideBuy {
			order.Broker.DecreaseCreditBy(order.Value())
		}
	}
	return results
}

func (s *Security) updateActiveOrder(order *Order, req EnterOrderRequest) []MatchResult {
	if !order.losesPriority(req) {
		if order.Side == SideBuy {
			order.Broker.IncreaseCreditBy(order.Value())
		}
		order.updateFromRequest(req)
		if order.Side == SideBuy {
			order.Broker.DecreaseCreditBy(order.Value())
		}
		return []MatchResult{Executed(order, nil)}
	}

	before := *order
	if order.Side == SideBuy {
		order.Broker.IncreaseCreditBy(order.Value())
	}
	s.book.detach(order)
	order.updateFromRequest(req)
	order.MarkAsNew()

	results := s.continuous.ExecuteUpdated(s, order)
	if results[0].Outcome.IsRejection() {
		*order = before
		s.book.Restore(order)
		if order.Side == SideBuy {
			order.Broker.DecreaseCreditBy(order.Value())
		}
	}
	return results
}

// DeleteOrder removes an active or staged order and releases a buy reservation.
func (s *Security) DeleteOrder(side Side, orderID int64) ([]MatchResult, error) {
	order := s.book.FindByID(side, orderID)
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if order.Side == SideBuy {
		order.Broker.IncreaseCreditBy(order.Value())
	}
	s.book.detach(order)

	if s.MatchingState == MatchingStateAuction {
		return []MatchResult{s.auction.RecomputeOpening(s)}, nil
	}
	return nil, nil
}

// ChangeMatchingState switches regime. Leaving an auction uncrosses the book
// first; returning to continuous trading then activates stop orders reached by
// the new last trade price.
func (s *Security) ChangeMatchingState(target MatchingState) ([]MatchResult, error) {
	if !target.Valid() {
		return nil, ErrInvalidMatchingState
	}

	var results []MatchResult
	previous := s.MatchingState
	if previous == MatchingStateAuction {
		results = append(results, s.auction.Uncross(s))
	}

	s.MatchingState = target
	if previous == MatchingStateAuction && target == MatchingStateContinuous {
		results = append(results, s.continuous.ActivateStopOrders(s)...)
	}

	return results, nil
}
