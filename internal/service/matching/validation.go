package matching

import "github.com/krobus00/matching-engine/internal/entity"

const (
	ReasonInvalidOrderID                 = "invalid order id"
	ReasonInvalidMinimumExecution        = "invalid minimum execution quantity"
	ReasonQuantityNotPositive            = "order quantity is not positive"
	ReasonPriceNotPositive               = "order price is not positive"
	ReasonInvalidSide                    = "invalid order side"
	ReasonInvalidStopLimitCombination    = "stop limit order cannot have minimum execution quantity or peak size"
	ReasonUnknownSecurity                = "unknown security isin"
	ReasonQuantityNotMultipleOfLotSize   = "quantity is not a multiple of lot size"
	ReasonPriceNotMultipleOfTickSize     = "price is not a multiple of tick size"
	ReasonUnknownBroker                  = "unknown broker id"
	ReasonUnknownShareholder             = "unknown shareholder id"
	ReasonInvalidPeakSize                = "invalid peak size"
	ReasonInvalidStopPrice               = "stop price is negative"
	ReasonInvalidMatchingState           = "invalid target matching state"
	ReasonBuyerNotEnoughCredit           = "buyer has not enough credit"
	ReasonSellerNotEnoughPositions       = "seller has not enough positions"
	ReasonMinimumExecutionNotMet         = "minimum execution quantity was not traded"
	ReasonInvalidOrderInAuctionState     = "stop limit and minimum execution orders are not allowed in auction"
	ReasonNoAuctionOrdersOnOppositeSides = "no tradable orders on opposite sides"
)

// validateEnterOrder collects every reason the request cannot reach the engine.
func (r *Registry) validateEnterOrder(req entity.EnterOrderRequest) []string {
	var reasons []string

	if req.OrderID <= 0 {
		reasons = append(reasons, ReasonInvalidOrderID)
	}
	if req.MinimumExecutionQuantity < 0 || req.MinimumExecutionQuantity > req.Quantity {
		reasons = append(reasons, ReasonInvalidMinimumExecution)
	}
	if req.Quantity <= 0 {
		reasons = append(reasons, ReasonQuantityNotPositive)
	}
	if req.Price <= 0 {
		reasons = append(reasons, ReasonPriceNotPositive)
	}
	if req.Side != entity.OrderSideBuy && req.Side != entity.OrderSideSell {
		reasons = append(reasons, ReasonInvalidSide)
	}
	if req.StopPrice < 0 {
		reasons = append(reasons, ReasonInvalidStopPrice)
	}
	if req.StopPrice != 0 && (req.MinimumExecutionQuantity != 0 || req.PeakSize != 0) {
		reasons = append(reasons, ReasonInvalidStopLimitCombination)
	}

	sec, ok := r.Security(req.ISIN)
	if !ok {
		reasons = append(reasons, ReasonUnknownSecurity)
	} else {
		if sec.LotSize > 0 && req.Quantity%sec.LotSize != 0 {
			reasons = append(reasons, ReasonQuantityNotMultipleOfLotSize)
		}
		if sec.TickSize > 0 && req.Price%sec.TickSize != 0 {
			reasons = append(reasons, ReasonPriceNotMultipleOfTickSize)
		}
	}

	if _, ok := r.Broker(req.BrokerID); !ok {
		reasons = append(reasons, ReasonUnknownBroker)
	}
	if _, ok := r.Shareholder(req.ShareholderID); !ok {
		reasons = append(reasons, ReasonUnknownShareholder)
	}
	if req.PeakSize < 0 || req.PeakSize >= req.Quantity {
		reasons = append(reasons, ReasonInvalidPeakSize)
	}

	return reasons
}

func (r *Registry) validateDeleteOrder(req entity.DeleteOrderRequest) []string {
	var reasons []string

	if req.OrderID <= 0 {
		reasons = append(reasons, ReasonInvalidOrderID)
	}
	if req.Side != entity.OrderSideBuy && req.Side != entity.OrderSideSell {
		reasons = append(reasons, ReasonInvalidSide)
	}
	if _, ok := r.Security(req.ISIN); !ok {
		reasons = append(reasons, ReasonUnknownSecurity)
	}

	return reasons
}

func (r *Registry) validateChangeMatchingState(req entity.ChangeMatchingStateRequest) []string {
	var reasons []string

	if _, ok := r.Security(req.ISIN); !ok {
		reasons = append(reasons, ReasonUnknownSecurity)
	}
	if req.TargetState != entity.MatchingStateContinuous && req.TargetState != entity.MatchingStateAuction {
		reasons = append(reasons, ReasonInvalidMatchingState)
	}

	return reasons
}
