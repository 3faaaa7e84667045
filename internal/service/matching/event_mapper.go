package matching

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/krobus00/matching-engine/internal/engine"
	"github.com/krobus00/matching-engine/internal/entity"
)

var outcomeReasons = map[engine.Outcome]string{
	engine.OutcomeNotEnoughCredit:             ReasonBuyerNotEnoughCredit,
	engine.OutcomeNotEnoughPositions:          ReasonSellerNotEnoughPositions,
	engine.OutcomeNotEnoughQuantitiesTraded:   ReasonMinimumExecutionNotMet,
	engine.OutcomeNotAbleToCreateStopLimit:    ReasonInvalidStopLimitCombination,
	engine.OutcomeInvalidOrderInAuctionState:  ReasonInvalidOrderInAuctionState,
	engine.OutcomeNoAuctionOrdersOppositeSide: ReasonNoAuctionOrdersOnOppositeSides,
}

var engineErrorReasons = []struct {
	err    error
	reason string
}{
	{engine.ErrOrderNotFound, "order id not found"},
	{engine.ErrCannotUpdateMinimumExecutionQuantity, "minimum execution quantity cannot be updated"},
	{engine.ErrInvalidPeakSize, ReasonInvalidPeakSize},
	{engine.ErrCannotSpecifyPeakSizeForNonIceberg, "peak size cannot be set on a non-iceberg order"},
	{engine.ErrInvalidUpdateStopPrice, "stop price can only be updated on an inactive stop order"},
	{engine.ErrInvalidMatchingState, ReasonInvalidMatchingState},
}

func reasonForError(err error) string {
	for _, e := range engineErrorReasons {
		if errors.Is(err, e.err) {
			return e.reason
		}
	}
	return err.Error()
}

type eventBuilder struct {
	requestID string
	isin      string
	now       time.Time
	events    []entity.MatchingEvent
}

func newEventBuilder(requestID, isin string) *eventBuilder {
	return &eventBuilder{requestID: requestID, isin: isin, now: time.Now().UTC()}
}

func (b *eventBuilder) add(event entity.MatchingEvent) {
	event.ID = uuid.NewString()
	event.RequestID = b.requestID
	event.CreatedAt = b.now
	if event.ISIN == "" {
		event.ISIN = b.isin
	}
	b.events = append(b.events, event)
}

func (b *eventBuilder) rejected(orderID int64, side entity.OrderSide, reasons ...string) {
	b.add(entity.MatchingEvent{
		Type:    entity.EventOrderRejected,
		OrderID: orderID,
		Side:    side,
		Reasons: reasons,
	})
}

// enterOrderEvents maps the results of a new or updated order. The first
// result belongs to the request itself; anything after it comes from the stop
// cascade and is attributed to the order it carries.
func enterOrderEvents(b *eventBuilder, req entity.EnterOrderRequest, results []engine.MatchResult) []entity.MatchingEvent {
	if len(results) > 0 && results[0].Outcome.IsRejection() {
		b.rejected(req.OrderID, req.Side, outcomeReasons[results[0].Outcome])
		return b.events
	}

	accepted := entity.EventOrderAccepted
	if req.Type == entity.RequestTypeUpdateOrder {
		accepted = entity.EventOrderUpdated
	}
	b.add(entity.MatchingEvent{Type: accepted, OrderID: req.OrderID, Side: req.Side})

	for i, result := range results {
		orderID := req.OrderID
		side := req.Side
		if i > 0 && result.Order != nil {
			orderID = result.Order.ID
			side = entity.OrderSide(result.Order.Side)
		}
		resultEvents(b, orderID, side, result)
	}

	return b.events
}

func resultEvents(b *eventBuilder, orderID int64, side entity.OrderSide, result engine.MatchResult) {
	switch {
	case result.Outcome == engine.OutcomeExecuted:
		if len(result.Trades) > 0 {
			b.add(entity.MatchingEvent{
				Type:    entity.EventOrderExecuted,
				OrderID: orderID,
				Side:    side,
				Trades:  tradeEvents(result.Trades),
			})
		}
	case result.Outcome == engine.OutcomeStopLimitOrderActivated:
		b.add(entity.MatchingEvent{Type: entity.EventOrderActivated, OrderID: orderID, Side: side})
	case result.Outcome == engine.OutcomeOpeningPriceSet:
		b.add(entity.MatchingEvent{
			Type:             entity.EventOpeningPrice,
			ISIN:             result.ISIN,
			OpeningPrice:     result.OpeningPrice,
			TradableQuantity: result.TradableQuantity,
		})
	case result.Outcome.IsRejection(), result.Outcome == engine.OutcomeNoAuctionOrdersOppositeSide:
		b.rejected(orderID, side, outcomeReasons[result.Outcome])
	}
}

func deleteOrderEvents(b *eventBuilder, req entity.DeleteOrderRequest, results []engine.MatchResult) []entity.MatchingEvent {
	b.add(entity.MatchingEvent{Type: entity.EventOrderDeleted, OrderID: req.OrderID, Side: req.Side})
	for _, result := range results {
		resultEvents(b, req.OrderID, req.Side, result)
	}
	return b.events
}

// stateChangeEvents announces the new state first, then the uncross trades one
// by one, then whatever the stop cascade produced.
func stateChangeEvents(b *eventBuilder, sec *engine.Security, results []engine.MatchResult) []entity.MatchingEvent {
	b.add(entity.MatchingEvent{
		Type:           entity.EventSecurityStateChanged,
		State:          entity.MatchingState(sec.MatchingState),
		LastTradePrice: sec.LastTradePrice,
	})

	for i, result := range results {
		if i == 0 && result.Outcome == engine.OutcomeExecuted && result.Order == nil {
			for _, trade := range tradeEvents(result.Trades) {
				b.add(entity.MatchingEvent{Type: entity.EventTrade, Trades: []entity.TradeEvent{trade}})
			}
			continue
		}

		var (
			orderID int64
			side    entity.OrderSide
		)
		if result.Order != nil {
			orderID = result.Order.ID
			side = entity.OrderSide(result.Order.Side)
		}
		resultEvents(b, orderID, side, result)
	}

	return b.events
}

func tradeEvents(trades []engine.Trade) []entity.TradeEvent {
	out := make([]entity.TradeEvent, 0, len(trades))
	for _, t := range trades {
		out = append(out, entity.TradeEvent{
			ISIN:              t.ISIN,
			Price:             t.Price,
			Quantity:          t.Quantity,
			BuyOrderID:        t.Buy.ID,
			SellOrderID:       t.Sell.ID,
			BuyBrokerID:       brokerID(t.Buy),
			SellBrokerID:      brokerID(t.Sell),
			BuyShareholderID:  shareholderID(t.Buy),
			SellShareholderID: shareholderID(t.Sell),
		})
	}
	return out
}

func brokerID(o engine.Order) int64 {
	if o.Broker == nil {
		return 0
	}
	return o.Broker.ID
}

func shareholderID(o engine.Order) int64 {
	if o.Shareholder == nil {
		return 0
	}
	return o.Shareholder.ID
}

func depthSnapshot(sec *engine.Security, levels int) entity.DepthSnapshot {
	depth := sec.Depth(levels)
	return entity.DepthSnapshot{
		ISIN:           sec.ISIN,
		State:          entity.MatchingState(sec.MatchingState),
		LastTradePrice: sec.LastTradePrice,
		Bids:           depthLevels(depth.Bids),
		Asks:           depthLevels(depth.Asks),
	}
}

func depthLevels(levels []engine.PriceLevel) []entity.DepthLevel {
	out := make([]entity.DepthLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, entity.DepthLevel{Price: l.Price, Quantity: l.Quantity, Orders: l.Orders})
	}
	return out
}
