package engine

import (
	"github.com/google/btree"
)

const bookDegree = 16

type orderKey struct {
	side Side
	id   int64
}

// OrderBook keeps the active and staged (stop) orders of one instrument.
// Trees are keyed by price (stop price when staged) and an insertion sequence,
// so the sequence stands in for entry time and restoring an order with its
// original sequence puts it back exactly where it was.
type OrderBook struct {
	buyQueue   *btree.BTreeG[*Order]
	sellQueue  *btree.BTreeG[*Order]
	stagedBuy  *btree.BTreeG[*Order]
	stagedSell *btree.BTreeG[*Order]
	index      map[orderKey]*Order
	nextSeq    uint64
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		buyQueue: btree.NewG(bookDegree, func(a, b *Order) bool {
			if a.Price != b.Price {
				return a.Price > b.Price
			}
			return a.seq < b.seq
		}),
		sellQueue: btree.NewG(bookDegree, func(a, b *Order) bool {
			if a.Price != b.Price {
				return a.Price < b.Price
			}
			return a.seq < b.seq
		}),
		stagedBuy: btree.NewG(bookDegree, func(a, b *Order) bool {
			if a.StopPrice != b.StopPrice {
				return a.StopPrice > b.StopPrice
			}
			return a.seq < b.seq
		}),
		stagedSell: btree.NewG(bookDegree, func(a, b *Order) bool {
			if a.StopPrice != b.StopPrice {
				return a.StopPrice < b.StopPrice
			}
			return a.seq < b.seq
		}),
		index: make(map[orderKey]*Order),
	}
}

func (b *OrderBook) treeFor(side Side, inactive bool) *btree.BTreeG[*Order] {
	switch {
	case side == SideBuy && inactive:
		return b.stagedBuy
	case side == SideBuy:
		return b.buyQueue
	case inactive:
		return b.stagedSell
	default:
		return b.sellQueue
	}
}

// Enqueue inserts the order at the back of its price level. Active orders are
// marked queued and icebergs get a fresh displayed slice.
func (b *OrderBook) Enqueue(o *Order) {
	if !o.Inactive {
		o.queue()
	}
	b.nextSeq++
	o.seq = b.nextSeq
	b.attach(o)
}

// Restore puts a previously removed order back with its original sequence,
// which is the front of its price level when it was taken from the front.
func (b *OrderBook) Restore(o *Order) {
	b.attach(o)
}

func (b *OrderBook) attach(o *Order) {
	b.treeFor(o.Side, o.Inactive).ReplaceOrInsert(o)
	b.index[orderKey{o.Side, o.ID}] = o
}

func (b *OrderBook) detach(o *Order) bool {
	if _, ok := b.treeFor(o.Side, o.Inactive).Delete(o); !ok {
		return false
	}
	key := orderKey{o.Side, o.ID}
	if b.index[key] == o {
		delete(b.index, key)
	}
	return true
}

func (b *OrderBook) contains(o *Order) bool {
	return b.treeFor(o.Side, o.Inactive).Has(o)
}

func (b *OrderBook) FindByID(side Side, id int64) *Order {
	return b.index[orderKey{side, id}]
}

func (b *OrderBook) RemoveByID(side Side, id int64) bool {
	o := b.FindByID(side, id)
	if o == nil {
		return false
	}
	return b.detach(o)
}

func (b *OrderBook) HasOrderOfType(side Side) bool {
	return b.treeFor(side, false).Len() > 0
}

func (b *OrderBook) PeekBestOpposite(side Side) *Order {
	o, _ := b.treeFor(side.Opposite(), false).Min()
	return o
}

func (b *OrderBook) PopBestOpposite(side Side) *Order {
	o := b.PeekBestOpposite(side)
	if o != nil {
		b.detach(o)
	}
	return o
}

func (b *OrderBook) peekBest(side Side) *Order {
	o, _ := b.treeFor(side, false).Min()
	return o
}

// ActivateEligible removes every staged order whose stop price has been reached
// and returns them in staged order, buys before sells.
func (b *OrderBook) ActivateEligible(lastTradePrice int64) []*Order {
	var activated []*Order
	for _, side := range []Side{SideBuy, SideSell} {
		tree := b.treeFor(side, true)
		var eligible []*Order
		tree.Ascend(func(o *Order) bool {
			if o.ShouldActivate(lastTradePrice) {
				eligible = append(eligible, o)
			}
			return true
		})
		for _, o := range eligible {
			b.detach(o)
			o.Inactive = false
			o.MarkAsNew()
		}
		activated = append(activated, eligible...)
	}
	return activated
}

// TotalSellQuantityByShareholder sums the quantity the shareholder has already
// committed to resting and staged sell orders.
func (b *OrderBook) TotalSellQuantityByShareholder(sh *Shareholder) int64 {
	var total int64
	sum := func(o *Order) bool {
		if o.Shareholder == sh {
			total += o.Quantity
		}
		return true
	}
	b.sellQueue.Ascend(sum)
	b.stagedSell.Ascend(sum)
	return total
}

// Orders returns the active orders of one side in priority order.
func (b *OrderBook) Orders(side Side) []*Order {
	return collect(b.treeFor(side, false))
}

// StagedOrders returns the staged stop orders of one side in trigger order.
func (b *OrderBook) StagedOrders(side Side) []*Order {
	return collect(b.treeFor(side, true))
}

func collect(tree *btree.BTreeG[*Order]) []*Order {
	out := make([]*Order, 0, tree.Len())
	tree.Ascend(func(o *Order) bool {
		out = append(out, o)
		return true
	})
	return out
}

type PriceLevel struct {
	Price    int64
	Quantity int64
	Orders   int
}

type Depth struct {
	Bids []PriceLevel
	Asks []PriceLevel
}

// Depth aggregates visible quantity per price level, best first. levels <= 0 means all.
func (b *OrderBook) Depth(levels int) Depth {
	return Depth{
		Bids: aggregate(b.buyQueue, levels),
		Asks: aggregate(b.sellQueue, levels),
	}
}

func aggregate(tree *btree.BTreeG[*Order], levels int) []PriceLevel {
	out := make([]PriceLevel, 0)
	tree.Ascend(func(o *Order) bool {
		if n := len(out); n > 0 && out[n-1].Price == o.Price {
			out[n-1].Quantity += o.VisibleQuantity()
			out[n-1].Orders++
			return true
		}
		if levels > 0 && len(out) == levels {
			return false
		}
		out = append(out, PriceLevel{Price: o.Price, Quantity: o.VisibleQuantity(), Orders: 1})
		return true
	})
	return out
}
