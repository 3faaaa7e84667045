package engine

// AuctionMatcher discovers the opening price of a call auction and uncrosses
// the book at that single price.
type AuctionMatcher struct{}

func (m AuctionMatcher) RecomputeOpening(sec *Security) MatchResult {
	price, qty := m.FindOpeningPrice(sec)
	return OpeningPriceSet(sec.ISIN, price, qty)
}

// FindOpeningPrice returns the price maximising min(buyVol, sellVol) over every
// integer between the lowest bid and the highest ask. Ties go to the price
// closest to the last trade price, then to the lower price. Volumes count the
// full quantity of each order, hidden iceberg quantity included.
// It returns (0, 0) when nothing is tradable.
func (m AuctionMatcher) FindOpeningPrice(sec *Security) (int64, int64) {
	buys := sec.book.Orders(SideBuy)
	sells := sec.book.Orders(SideSell)
	if len(buys) == 0 || len(sells) == 0 {
		return 0, 0
	}

	minBuy := buys[len(buys)-1].Price
	maxSell := sells[len(sells)-1].Price
	lo, hi := min(minBuy, maxSell), max(minBuy, maxSell)

	var buyVol int64
	for _, o := range buys {
		buyVol += o.Quantity
	}
	var sellVol int64

	// buys are walked from the lowest price, sells from the lowest price
	bi := len(buys) - 1
	si := 0

	var bestPrice, bestQty int64
	for p := lo; p <= hi; p++ {
		for bi >= 0 && buys[bi].Price < p {
			buyVol -= buys[bi].Quantity
			bi--
		}
		for si < len(sells) && sells[si].Price <= p {
			sellVol += sells[si].Quantity
			si++
		}

		qty := min(buyVol, sellVol)
		if qty == 0 {
			continue
		}
		if qty > bestQty || (qty == bestQty && distance(p, sec.LastTradePrice) < distance(bestPrice, sec.LastTradePrice)) {
			bestPrice, bestQty = p, qty
		}
	}

	return bestPrice, bestQty
}

func distance(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

func acceptableAt(o *Order, price int64) bool {
	if o.Side == SideBuy {
		return o.Price >= price
	}
	return o.Price <= price
}

func eligibleVolume(orders []*Order, price int64) int64 {
	var vol int64
	for _, o := range orders {
		if !acceptableAt(o, price) {
			break
		}
		vol += o.Quantity
	}
	return vol
}

// Uncross executes every trade possible at the opening price. The side with the
// smaller eligible volume walks the book order by order; buyers are refunded the
// difference between their limit and the opening price.
func (m AuctionMatcher) Uncross(sec *Security) MatchResult {
	open, tradable := m.FindOpeningPrice(sec)
	if tradable == 0 {
		return NoAuctionOrdersOppositeSide(sec.ISIN)
	}

	book := sec.book
	thin := SideBuy
	if eligibleVolume(book.Orders(SideSell), open) < eligibleVolume(book.Orders(SideBuy), open) {
		thin = SideSell
	}

	var trades []Trade
	for {
		order := book.peekBest(thin)
		if order == nil || !acceptableAt(order, open) {
			break
		}
		resting := book.PeekBestOpposite(thin)
		if resting == nil || !acceptableAt(resting, open) {
			break
		}

		book.detach(order)
		order.MarkAsNew()
		trades = append(trades, m.walk(sec, order, open)...)

		if order.Quantity > 0 {
			order.queue()
			book.Restore(order)
			break
		}
	}

	if len(trades) > 0 {
		sec.LastTradePrice = open
	}
	return Executed(nil, trades)
}

func (m AuctionMatcher) walk(sec *Security, order *Order, open int64) []Trade {
	book := sec.book
	var trades []Trade

	for order.Quantity > 0 {
		resting := book.PeekBestOpposite(order.Side)
		if resting == nil || !acceptableAt(resting, open) {
			break
		}

		qty := min(order.Quantity, resting.VisibleQuantity())
		trade := newTrade(sec.ISIN, open, qty, order, resting)

		buy, sell := order, resting
		if order.Side == SideSell {
			buy, sell = resting, order
		}
		buy.Broker.IncreaseCreditBy((buy.Price - open) * qty)
		sell.Broker.IncreaseCreditBy(open * qty)
		buy.Shareholder.IncPosition(sec.ISIN, qty)
		sell.Shareholder.DecPosition(sec.ISIN, qty)

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

	return trades
}
