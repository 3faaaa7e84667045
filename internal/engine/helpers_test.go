package engine_test

import (
	"testing"
	"time"

	"github.com/krobus00/matching-engine/internal/engine"
	"github.com/stretchr/testify/require"
)

const testISIN = "ABC"

var baseEntryTime = time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)

func buyReq(id, qty, price int64) engine.EnterOrderRequest {
	return engine.EnterOrderRequest{
		OrderID:   id,
		EntryTime: baseEntryTime.Add(time.Duration(id) * time.Second),
		Side:      engine.SideBuy,
		Quantity:  qty,
		Price:     price,
	}
}

func sellReq(id, qty, price int64) engine.EnterOrderRequest {
	r := buyReq(id, qty, price)
	r.Side = engine.SideSell
	return r
}

type fixture struct {
	sec        *engine.Security
	buyer      *engine.Broker
	seller     *engine.Broker
	buyerSh    *engine.Shareholder
	sellerSh   *engine.Shareholder
	initCredit int64
}

func newFixture(t *testing.T, credit int64, opts ...engine.SecurityOption) *fixture {
	t.Helper()

	f := &fixture{
		sec:        engine.NewSecurity(testISIN, 1, 1, opts...),
		buyer:      engine.NewBroker(1, credit),
		seller:     engine.NewBroker(2, credit),
		buyerSh:    engine.NewShareholder(1),
		sellerSh:   engine.NewShareholder(2),
		initCredit: credit,
	}
	f.sellerSh.IncPosition(testISIN, 1_000_000)
	return f
}

func (f *fixture) buy(req engine.EnterOrderRequest) []engine.MatchResult {
	return f.sec.NewOrder(req, f.buyer, f.buyerSh)
}

func (f *fixture) sell(req engine.EnterOrderRequest) []engine.MatchResult {
	return f.sec.NewOrder(req, f.seller, f.sellerSh)
}

func requireOutcome(t *testing.T, results []engine.MatchResult, outcomes ...engine.Outcome) {
	t.Helper()

	got := make([]engine.Outcome, 0, len(results))
	for _, r := range results {
		got = append(got, r.Outcome)
	}
	require.Equal(t, outcomes, got)
}

func orderIDs(orders []*engine.Order) []int64 {
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids
}

func quantities(orders []*engine.Order) []int64 {
	qs := make([]int64, 0, len(orders))
	for _, o := range orders {
		qs = append(qs, o.Quantity)
	}
	return qs
}
