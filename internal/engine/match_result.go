package engine

type Outcome string

const (
	OutcomeExecuted                    Outcome = "EXECUTED"
	OutcomeNotEnoughCredit             Outcome = "NOT_ENOUGH_CREDIT"
	OutcomeNotEnoughPositions          Outcome = "NOT_ENOUGH_POSITIONS"
	OutcomeNotEnoughQuantitiesTraded   Outcome = "NOT_ENOUGH_QUANTITIES_TRADED"
	OutcomeNotAbleToCreateStopLimit    Outcome = "NOT_ABLE_TO_CREATE_STOP_LIMIT_ORDER"
	OutcomeInvalidOrderInAuctionState  Outcome = "INVALID_ORDER_IN_AUCTION_STATE"
	OutcomeNoAuctionOrdersOppositeSide Outcome = "NO_AUCTION_ORDERS_OPPOSITE_SIDE"
	OutcomeStopLimitOrderAccepted      Outcome = "STOP_LIMIT_ORDER_ACCEPTED"
	OutcomeStopLimitOrderActivated     Outcome = "STOP_LIMIT_ORDER_ACTIVATED"
	OutcomeOpeningPriceSet             Outcome = "OPENING_PRICE_SET"
)

// IsRejection reports whether the outcome means the order was not accepted and
// every side effect of the attempt was undone.
func (o Outcome) IsRejection() bool {
	switch o {
	case OutcomeNotEnoughCredit,
		OutcomeNotEnoughPositions,
		OutcomeNotEnoughQuantitiesTraded,
		OutcomeNotAbleToCreateStopLimit,
		OutcomeInvalidOrderInAuctionState:
		return true
	}
	return false
}

// MatchResult is how matchers and Security report effects and failures.
// Order is the order the result concerns (the remainder for Executed).
type MatchResult struct {
	Outcome          Outcome
	Order            *Order
	Trades           []Trade
	ISIN             string
	OpeningPrice     int64
	TradableQuantity int64
}

func Executed(remainder *Order, trades []Trade) MatchResult {
	return MatchResult{Outcome: OutcomeExecuted, Order: remainder, Trades: trades}
}

func NotEnoughCredit(order *Order) MatchResult {
	return MatchResult{Outcome: OutcomeNotEnoughCredit, Order: order}
}

func NotEnoughPositions(order *Order) MatchResult {
	return MatchResult{Outcome: OutcomeNotEnoughPositions, Order: order}
}

func NotEnoughQuantitiesTraded(order *Order) MatchResult {
	return MatchResult{Outcome: OutcomeNotEnoughQuantitiesTraded, Order: order}
}

func NotAbleToCreateStopLimitOrder(order *Order) MatchResult {
	return MatchResult{Outcome: OutcomeNotAbleToCreateStopLimit, Order: order}
}

func InvalidOrderInAuctionState(order *Order) MatchResult {
	return MatchResult{Outcome: OutcomeInvalidOrderInAuctionState, Order: order}
}

func NoAuctionOrdersOppositeSide(isin string) MatchResult {
	return MatchResult{Outcome: OutcomeNoAuctionOrdersOppositeSide, ISIN: isin}
}

func StopLimitOrderAccepted(order *Order) MatchResult {
	return MatchResult{Outcome: OutcomeStopLimitOrderAccepted, Order: order}
}

func StopLimitOrderActivated(order *Order) MatchResult {
	return MatchResult{Outcome: OutcomeStopLimitOrderActivated, Order: order}
}

func OpeningPriceSet(isin string, price, tradableQuantity int64) MatchResult {
	return MatchResult{
		Outcome:          OutcomeOpeningPriceSet,
		ISIN:             isin,
		OpeningPrice:     price,
		TradableQuantity: tradableQuantity,
	}
}
