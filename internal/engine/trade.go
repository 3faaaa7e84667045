package engine

// Trade is an immutable execution record. Buy and Sell are snapshots taken at trade time.
type Trade struct {
	ISIN     string
	Price    int64
	Quantity int64
	Buy      Order
	Sell     Order
}

func newTrade(isin string, price, quantity int64, a, b *Order) Trade {
	t := Trade{ISIN: isin, Price: price, Quantity: quantity}
	if a.Side == SideBuy {
		t.Buy, t.Sell = a.Snapshot(), b.Snapshot()
	} else {
		t.Buy, t.Sell = b.Snapshot(), a.Snapshot()
	}
	return t
}

func (t Trade) Value() int64 {
	return t.Price * t.Quantity
}

func totalQuantity(trades []Trade) int64 {
	var sum int64
	for _, t := range trades {
		sum += t.Quantity
	}
	return sum
}
