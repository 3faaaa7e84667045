package engine_test

import (
	"testing"

	"github.com/krobus00/matching-engine/internal/engine"
	"github.com/stretchr/testify/require"
)

func Test_Order_IcebergVisibleQuantity(t *testing.T) {
	req := sellReq(1, 100, 50)
	req.PeakSize = 30
	o := engine.NewOrder(testISIN, req, engine.NewBroker(1, 0), engine.NewShareholder(1))

	require.True(t, o.IsIceberg())
	require.Equal(t, engine.OrderStatusNew, o.Status)
	require.Equal(t, int64(30), o.DisplayedQuantity)
	require.Equal(t, int64(100), o.VisibleQuantity(), "a new iceberg exposes its full quantity")

	book := engine.NewOrderBook()
	book.Enqueue(o)
	require.Equal(t, engine.OrderStatusQueued, o.Status)
	require.Equal(t, int64(30), o.VisibleQuantity())

	o.DecreaseQuantity(30)
	require.Equal(t, int64(70), o.Quantity)
	require.Equal(t, int64(0), o.DisplayedQuantity)

	o.Replenish()
	require.Equal(t, int64(30), o.DisplayedQuantity)
}

func Test_Order_DecreaseBeyondVisiblePanics(t *testing.T) {
	o := engine.NewOrder(testISIN, buyReq(1, 10, 50), engine.NewBroker(1, 0), engine.NewShareholder(1))

	require.Panics(t, func() { o.DecreaseQuantity(11) })
}

func Test_Order_ShouldActivate(t *testing.T) {
	buy := buyReq(1, 10, 50)
	buy.StopPrice = 400
	b := engine.NewOrder(testISIN, buy, nil, nil)
	require.True(t, b.Inactive)
	require.False(t, b.ShouldActivate(399))
	require.True(t, b.ShouldActivate(400))
	require.True(t, b.ShouldActivate(500))

	sell := sellReq(2, 10, 50)
	sell.StopPrice = 400
	s := engine.NewOrder(testISIN, sell, nil, nil)
	require.True(t, s.ShouldActivate(400))
	require.True(t, s.ShouldActivate(300))
	require.False(t, s.ShouldActivate(401))
}

func Test_Order_SnapshotIsDetached(t *testing.T) {
	o := engine.NewOrder(testISIN, buyReq(1, 10, 50), nil, nil)
	snap := o.Snapshot()
	o.DecreaseQuantity(4)

	require.Equal(t, engine.OrderStatusSnapshot, snap.Status)
	require.Equal(t, int64(10), snap.Quantity)
	require.Equal(t, int64(6), o.Quantity)
	require.Equal(t, int64(300), o.Value())
}
