package engine_test

import (
	"testing"

	"github.com/krobus00/matching-engine/internal/engine"
	"github.com/stretchr/testify/require"
)

func newBookOrder(req engine.EnterOrderRequest, sh *engine.Shareholder) *engine.Order {
	return engine.NewOrder(testISIN, req, engine.NewBroker(req.OrderID, 0), sh)
}

func Test_OrderBook_PriceTimeOrdering(t *testing.T) {
	book := engine.NewOrderBook()
	sh := engine.NewShareholder(1)

	book.Enqueue(newBookOrder(buyReq(1, 10, 100), sh))
	book.Enqueue(newBookOrder(buyReq(2, 10, 105), sh))
	book.Enqueue(newBookOrder(buyReq(3, 10, 100), sh))
	book.Enqueue(newBookOrder(sellReq(4, 10, 110), sh))
	book.Enqueue(newBookOrder(sellReq(5, 10, 108), sh))
	book.Enqueue(newBookOrder(sellReq(6, 10, 110), sh))

	require.Equal(t, []int64{2, 1, 3}, orderIDs(book.Orders(engine.SideBuy)))
	require.Equal(t, []int64{5, 4, 6}, orderIDs(book.Orders(engine.SideSell)))

	require.Equal(t, int64(5), book.PeekBestOpposite(engine.SideBuy).ID)
	require.Equal(t, int64(2), book.PeekBestOpposite(engine.SideSell).ID)
}

func Test_OrderBook_StagedOrdering(t *testing.T) {
	book := engine.NewOrderBook()

	b1 := buyReq(1, 10, 100)
	b1.StopPrice = 90
	b2 := buyReq(2, 10, 100)
	b2.StopPrice = 95
	s1 := sellReq(3, 10, 100)
	s1.StopPrice = 80
	s2 := sellReq(4, 10, 100)
	s2.StopPrice = 70

	for _, r := range []engine.EnterOrderRequest{b1, b2, s1, s2} {
		book.Enqueue(newBookOrder(r, nil))
	}

	require.Equal(t, []int64{2, 1}, orderIDs(book.StagedOrders(engine.SideBuy)))
	require.Equal(t, []int64{4, 3}, orderIDs(book.StagedOrders(engine.SideSell)))
	require.False(t, book.HasOrderOfType(engine.SideBuy), "staged orders never trade")

	activated := book.ActivateEligible(92)
	require.Equal(t, []int64{1}, orderIDs(activated))
	require.False(t, activated[0].Inactive)
	require.Equal(t, []int64{2}, orderIDs(book.StagedOrders(engine.SideBuy)))
	require.Nil(t, book.FindByID(engine.SideBuy, 1))

	activated = book.ActivateEligible(75)
	require.Equal(t, []int64{3}, orderIDs(activated))
}

func Test_OrderBook_RestoreReturnsToFront(t *testing.T) {
	book := engine.NewOrderBook()
	sh := engine.NewShareholder(1)

	book.Enqueue(newBookOrder(sellReq(1, 10, 100), sh))
	book.Enqueue(newBookOrder(sellReq(2, 10, 100), sh))

	first := book.PopBestOpposite(engine.SideBuy)
	require.Equal(t, int64(1), first.ID)
	require.Equal(t, []int64{2}, orderIDs(book.Orders(engine.SideSell)))

	book.Restore(first)
	require.Equal(t, []int64{1, 2}, orderIDs(book.Orders(engine.SideSell)))
	require.Same(t, first, book.FindByID(engine.SideSell, 1))
}

func Test_OrderBook_RemoveAndTotals(t *testing.T) {
	book := engine.NewOrderBook()
	sh := engine.NewShareholder(1)
	other := engine.NewShareholder(2)

	book.Enqueue(newBookOrder(sellReq(1, 10, 100), sh))
	book.Enqueue(newBookOrder(sellReq(2, 15, 101), other))
	staged := sellReq(3, 7, 99)
	staged.StopPrice = 90
	book.Enqueue(newBookOrder(staged, sh))

	require.Equal(t, int64(17), book.TotalSellQuantityByShareholder(sh))

	require.True(t, book.RemoveByID(engine.SideSell, 3))
	require.False(t, book.RemoveByID(engine.SideSell, 3))
	require.Equal(t, int64(10), book.TotalSellQuantityByShareholder(sh))
}

func Test_OrderBook_Depth(t *testing.T) {
	book := engine.NewOrderBook()
	sh := engine.NewShareholder(1)

	iceberg := buyReq(1, 100, 100)
	iceberg.PeakSize = 10
	book.Enqueue(newBookOrder(iceberg, sh))
	book.Enqueue(newBookOrder(buyReq(2, 5, 100), sh))
	book.Enqueue(newBookOrder(buyReq(3, 7, 99), sh))
	book.Enqueue(newBookOrder(buyReq(4, 1, 98), sh))

	depth := book.Depth(2)
	require.Equal(t, []engine.PriceLevel{
		{Price: 100, Quantity: 15, Orders: 2},
		{Price: 99, Quantity: 7, Orders: 1},
	}, depth.Bids)
	require.Empty(t, depth.Asks)

	require.Len(t, book.Depth(0).Bids, 3)
}
