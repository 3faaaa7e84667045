package engine_test

import (
	"testing"

	"github.com/krobus00/matching-engine/internal/engine"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type participant struct {
	broker *engine.Broker
	sh     *engine.Shareholder
}

const (
	propertyCredit   = 50_000
	propertyPosition = 200
)

func newParticipants() []participant {
	out := make([]participant, 0, 3)
	for i := int64(1); i <= 3; i++ {
		p := participant{broker: engine.NewBroker(i, propertyCredit), sh: engine.NewShareholder(i)}
		p.sh.IncPosition(testISIN, propertyPosition)
		out = append(out, p)
	}
	return out
}

func drawRequest(t *rapid.T, id int64) engine.EnterOrderRequest {
	side := engine.SideBuy
	if rapid.Bool().Draw(t, "sell") {
		side = engine.SideSell
	}
	req := engine.EnterOrderRequest{
		OrderID:  id,
		Side:     side,
		Quantity: rapid.Int64Range(1, 60).Draw(t, "qty"),
		Price:    rapid.Int64Range(90, 110).Draw(t, "price"),
	}
	switch rapid.IntRange(0, 3).Draw(t, "kind") {
	case 1:
		req.PeakSize = rapid.Int64Range(1, req.Quantity).Draw(t, "peak")
		if req.PeakSize == req.Quantity {
			req.PeakSize = 0
		}
	case 2:
		req.MinimumExecutionQuantity = rapid.Int64Range(0, req.Quantity).Draw(t, "minExec")
	case 3:
		req.StopPrice = rapid.Int64Range(90, 110).Draw(t, "stop")
	}
	return req
}

// reservedValue sums what resting and staged buy orders hold back from brokers.
func reservedValue(book *engine.OrderBook) int64 {
	var total int64
	for _, o := range book.Orders(engine.SideBuy) {
		total += o.Value()
	}
	for _, o := range book.StagedOrders(engine.SideBuy) {
		total += o.Value()
	}
	return total
}

func checkInvariants(t *rapid.T, sec *engine.Security, parts []participant) {
	book := sec.OrderBook()

	var credits, positions int64
	for _, p := range parts {
		require.GreaterOrEqual(t, p.broker.Credit, int64(0), "broker %d credit", p.broker.ID)
		require.GreaterOrEqual(t, p.sh.Position(testISIN), int64(0), "shareholder %d position", p.sh.ID)
		credits += p.broker.Credit
		positions += p.sh.Position(testISIN)
	}
	require.Equal(t, int64(len(parts)*propertyCredit), credits+reservedValue(book))
	require.Equal(t, int64(len(parts)*propertyPosition), positions)

	for _, side := range []engine.Side{engine.SideBuy, engine.SideSell} {
		for _, o := range book.Orders(side) {
			require.Equal(t, engine.OrderStatusQueued, o.Status)
			require.Positive(t, o.Quantity)
			if o.IsIceberg() {
				require.Positive(t, o.DisplayedQuantity)
				require.LessOrEqual(t, o.DisplayedQuantity, min(o.PeakSize, o.Quantity))
			}
		}
		for _, o := range book.StagedOrders(side) {
			require.True(t, o.Inactive)
		}
	}

	for _, p := range parts {
		require.LessOrEqual(t, book.TotalSellQuantityByShareholder(p.sh), p.sh.Position(testISIN))
	}
}

func checkDisclosure(t *rapid.T, o engine.Order) {
	if !o.IsIceberg() {
		return
	}
	require.GreaterOrEqual(t, o.DisplayedQuantity, int64(0), "order %d displayed", o.ID)
	require.LessOrEqual(t, o.DisplayedQuantity, min(o.PeakSize, o.Quantity), "order %d displayed", o.ID)
}

// checkResults applies the disclosure bound to every order a caller can observe
// through match results, including trade snapshots.
func checkResults(t *rapid.T, results []engine.MatchResult) {
	for _, r := range results {
		if r.Order != nil {
			checkDisclosure(t, *r.Order)
		}
		for _, tr := range r.Trades {
			checkDisclosure(t, tr.Buy)
			checkDisclosure(t, tr.Sell)
		}
	}
}

func Test_Property_ContinuousInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		parts := newParticipants()
		sec := engine.NewSecurity(testISIN, 1, 1, engine.WithLastTradePrice(100))

		var nextID int64
		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			p := parts[rapid.IntRange(0, len(parts)-1).Draw(t, "participant")]

			switch rapid.IntRange(0, 4).Draw(t, "op") {
			case 0, 1, 2:
				nextID++
				req := drawRequest(t, nextID)
				results := sec.NewOrder(req, p.broker, p.sh)
				require.NotEmpty(t, results)
				checkResults(t, results)

				if results[0].Outcome == engine.OutcomeExecuted && req.MinimumExecutionQuantity > 0 && req.StopPrice == 0 {
					var traded int64
					for _, tr := range results[0].Trades {
						traded += tr.Quantity
					}
					require.GreaterOrEqual(t, traded, req.MinimumExecutionQuantity)
				}
			case 3:
				if nextID == 0 {
					continue
				}
				id := rapid.Int64Range(1, nextID).Draw(t, "deleteID")
				side := engine.SideBuy
				if rapid.Bool().Draw(t, "deleteSell") {
					side = engine.SideSell
				}
				_, _ = sec.DeleteOrder(side, id)
			case 4:
				if nextID == 0 {
					continue
				}
				id := rapid.Int64Range(1, nextID).Draw(t, "updateID")
				side := engine.SideBuy
				if rapid.Bool().Draw(t, "updateSell") {
					side = engine.SideSell
				}
				existing := sec.OrderBook().FindByID(side, id)
				if existing == nil {
					continue
				}
				req := engine.EnterOrderRequest{
					OrderID:                  id,
					Side:                     side,
					Quantity:                 rapid.Int64Range(1, 60).Draw(t, "newQty"),
					Price:                    rapid.Int64Range(90, 110).Draw(t, "newPrice"),
					MinimumExecutionQuantity: existing.MinimumExecutionQuantity,
					StopPrice:                existing.StopPrice,
				}
				if existing.IsIceberg() {
					req.PeakSize = rapid.Int64Range(1, 30).Draw(t, "newPeak")
				}
				results, err := sec.UpdateOrder(req)
				require.NoError(t, err)
				checkResults(t, results)
			}

			checkInvariants(t, sec, parts)

			bid := sec.OrderBook().PeekBestOpposite(engine.SideSell)
			ask := sec.OrderBook().PeekBestOpposite(engine.SideBuy)
			if bid != nil && ask != nil {
				require.Less(t, bid.Price, ask.Price, "book is crossed")
			}
		}
	})
}

func Test_Property_AuctionInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		parts := newParticipants()
		last := rapid.Int64Range(90, 110).Draw(t, "last")
		sec := engine.NewSecurity(testISIN, 1, 1,
			engine.WithLastTradePrice(last),
			engine.WithMatchingState(engine.MatchingStateAuction),
		)

		n := rapid.IntRange(1, 25).Draw(t, "orders")
		for i := 1; i <= n; i++ {
			p := parts[rapid.IntRange(0, len(parts)-1).Draw(t, "participant")]
			req := drawRequest(t, int64(i))
			req.MinimumExecutionQuantity = 0
			req.StopPrice = 0
			results := sec.NewOrder(req, p.broker, p.sh)
			require.Len(t, results, 1)
			checkResults(t, results)
		}

		var am engine.AuctionMatcher
		price, tradable := am.FindOpeningPrice(sec)
		wantPrice, wantTradable := bruteForceOpening(sec)
		require.Equal(t, wantTradable, tradable)
		require.Equal(t, wantPrice, price)

		results, err := sec.ChangeMatchingState(engine.MatchingStateContinuous)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		checkResults(t, results)

		if tradable == 0 {
			require.Equal(t, engine.OutcomeNoAuctionOrdersOppositeSide, results[0].Outcome)
		} else {
			var traded int64
			for _, tr := range results[0].Trades {
				require.Equal(t, price, tr.Price)
				traded += tr.Quantity
			}
			require.Equal(t, tradable, traded)
			require.Equal(t, price, sec.LastTradePrice)
		}

		checkInvariants(t, sec, parts)
		bid := sec.OrderBook().PeekBestOpposite(engine.SideSell)
		ask := sec.OrderBook().PeekBestOpposite(engine.SideBuy)
		if bid != nil && ask != nil {
			require.Less(t, bid.Price, ask.Price, "book is crossed after uncrossing")
		}
	})
}

// bruteForceOpening scores every candidate price between the lowest bid and the
// highest ask independently.
func bruteForceOpening(sec *engine.Security) (int64, int64) {
	buys := sec.OrderBook().Orders(engine.SideBuy)
	sells := sec.OrderBook().Orders(engine.SideSell)
	if len(buys) == 0 || len(sells) == 0 {
		return 0, 0
	}

	abs := func(v int64) int64 {
		if v < 0 {
			return -v
		}
		return v
	}

	minBuy, maxSell := buys[0].Price, sells[0].Price
	for _, o := range buys {
		minBuy = min(minBuy, o.Price)
	}
	for _, o := range sells {
		maxSell = max(maxSell, o.Price)
	}

	var bestPrice, bestQty int64
	for p := min(minBuy, maxSell); p <= max(minBuy, maxSell); p++ {
		var buyVol, sellVol int64
		for _, o := range buys {
			if o.Price >= p {
				buyVol += o.Quantity
			}
		}
		for _, o := range sells {
			if o.Price <= p {
				sellVol += o.Quantity
			}
		}
		qty := min(buyVol, sellVol)
		if qty == 0 {
			continue
		}
		if qty > bestQty || (qty == bestQty && abs(p-sec.LastTradePrice) < abs(bestPrice-sec.LastTradePrice)) {
			bestPrice, bestQty = p, qty
		}
	}
	return bestPrice, bestQty
}
