package engine

// ContinuousMatcher matches an incoming order against the book by price/time priority.
type ContinuousMatcher struct{}

// Execute runs a freshly admitted or activated order and then the stop order
// cascade its trades may trigger. The first result always concerns order.
func (m ContinuousMatcher) Execute(sec *Security, order *Order) []MatchResult {
	return m.run(sec, order, true)
}

// ExecuteUpdated is Execute for an order resubmitted by an update that lost
// priority. Minimum execution quantity is only enforced on admission.
func (m ContinuousMatcher) ExecuteUpdated(sec *Security, order *Order) []MatchResult {
	return m.run(sec, order, false)
}

// ActivateStopOrders drains every staged order eligible at the current last
// trade price, executing each and following any further activations.
func (m ContinuousMatcher) ActivateStopOrders(sec *Security) []MatchResult {
	return m.cascade(sec, nil)
}

func (m ContinuousMatcher) run(sec *Security, order *Order, enforceMinimum bool) []MatchResult {
	result := m.match(sec, order, enforceMinimum)
	results := []MatchResult{result}
	if result.Outcome != OutcomeExecuted || len(result.Trades) == 0 {
		return results
	}
	return m.cascade(sec, results)
}

func (m ContinuousMatcher) cascade(sec *Security, results []MatchResult) []MatchResult {
	queue := sec.book.ActivateEligible(sec.LastTradePrice)
	for len(queue) > 0 {
		order := queue[0]
		queue = queue[1:]

		if order.Side == SideBuy {
			order.Broker.IncreaseCreditBy(order.Value())
		}
		results = append(results, StopLimitOrderActivated(order))

		result := m.match(sec, order, false)
		results = append(results, result)
		if result.Outcome == OutcomeExecuted && len(result.Trades) > 0 {
			queue = append(queue, sec.book.ActivateEligible(sec.LastTradePrice)...)
		}
	}
	return results
}

func crosses(order, resting *Order) bool {
	if order.Side == SideBuy {
		return order.Price >= resting.Price
	}
	return order.Price <= resting.Price
}

// match performs one all-or-nothing execution attempt. On any failure every
// credit change and book mutation made by the attempt is undone.
func (m ContinuousMatcher) match(sec *Security, order *Order, enforceMinimum bool) MatchResult {
	book := sec.book
	var undo undoLog
	var trades []Trade

	aggressor := *order
	undo.push(func() { *order = aggressor })

	for order.Quantity > 0 {
		resting := book.PeekBestOpposite(order.Side)
		if resting == nil || !crosses(order, resting) {
			break
		}

		qty := min(order.Quantity, resting.VisibleQuantity())
		trade := newTrade(sec.ISIN, resting.Price, qty, order, resting)

		seller := resting.Broker
		if order.Side == SideBuy {
			if !order.Broker.HasEnoughCredit(trade.Value()) {
				undo.rollback()
				return NotEnoughCredit(order)
			}
			undo.changeCredit(order.Broker, -trade.Value())
		} else {
			seller = order.Broker
		}
		undo.changeCredit(seller, trade.Value())

		undo.touch(book, resting)
		order.DecreaseQuantity(qty)
		resting.DecreaseQuantity(qty)
		if resting.VisibleQuantity() == 0 {
			book.detach(resting)
			if resting.IsIceberg() && resting.Quantity > 0 {
				book.Enqueue(resting)
			}
		}

		trades = append(trades, trade)
	}

	if enforceMinimum && order.MinimumExecutionQuantity > totalQuantity(trades) {
		undo.rollback()
		return NotEnoughQuantitiesTraded(order)
	}

	if order.Quantity > 0 {
		if order.Side == SideBuy {
			if !order.Broker.HasEnoughCredit(order.Value()) {
				undo.rollback()
				return NotEnoughCredit(order)
			}
			order.Broker.DecreaseCreditBy(order.Value())
		}
		book.Enqueue(order)
	}

	for _, t := range trades {
		t.Buy.Shareholder.IncPosition(sec.ISIN, t.Quantity)
		t.Sell.Shareholder.DecPosition(sec.ISIN, t.Quantity)
	}
	if len(trades) > 0 {
		sec.LastTradePrice = trades[len(trades)-1].Price
	}

	return Executed(order, trades)
}
