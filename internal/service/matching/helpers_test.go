package matching_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/krobus00/matching-engine/internal/engine"
	"github.com/krobus00/matching-engine/internal/entity"
	"github.com/krobus00/matching-engine/internal/service/matching"
)

const (
	testISIN       = "IRO1ABC0001"
	testCredit     = 1_000_000
	testPosition   = 1_000
	buyerBrokerID  = 1
	sellerBrokerID = 2
	buyerHolderID  = 1
	sellerHolderID = 2
)

type recordingSink struct {
	mu     sync.Mutex
	events []entity.MatchingEvent
}

func (s *recordingSink) Publish(_ context.Context, events []entity.MatchingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSink) Events() []entity.MatchingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.MatchingEvent(nil), s.events...)
}

type fakeMarker struct {
	mu        sync.Mutex
	seen      map[string]bool
	forgotten []string
	err       error
}

func newFakeMarker() *fakeMarker {
	return &fakeMarker{seen: make(map[string]bool)}
}

func (m *fakeMarker) MarkRequest(_ context.Context, requestID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.seen[requestID] {
		return false, nil
	}
	m.seen[requestID] = true
	return true, nil
}

func (m *fakeMarker) ForgetRequest(_ context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, requestID)
	m.forgotten = append(m.forgotten, requestID)
	return nil
}

func (m *fakeMarker) Marked(requestID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[requestID]
}

func (m *fakeMarker) Forgotten() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.forgotten...)
}

type serviceFixture struct {
	svc        *matching.MatchingService
	registry   *matching.Registry
	dispatcher *matching.Dispatcher
	sink       *recordingSink
	buyer      *engine.Broker
	seller     *engine.Broker
	buyHolder  *engine.Shareholder
	sellHolder *engine.Shareholder
}

func newServiceFixture(t *testing.T, sec entity.Security, opts ...matching.Option) *serviceFixture {
	t.Helper()

	if sec.ISIN == "" {
		sec.ISIN = testISIN
	}
	if sec.TickSize == 0 {
		sec.TickSize = 1
	}
	if sec.LotSize == 0 {
		sec.LotSize = 1
	}

	f := &serviceFixture{
		registry:   matching.NewRegistry(),
		dispatcher: matching.NewDispatcher(2),
		sink:       &recordingSink{},
	}
	f.registry.AddSecurity(sec)
	f.buyer = f.registry.AddBroker(buyerBrokerID, testCredit)
	f.seller = f.registry.AddBroker(sellerBrokerID, testCredit)
	f.buyHolder = f.registry.AddShareholder(buyerHolderID)
	f.sellHolder = f.registry.AddShareholder(sellerHolderID)
	f.sellHolder.IncPosition(sec.ISIN, testPosition)

	f.svc = matching.NewMatchingService(f.registry, f.dispatcher, f.sink, opts...)
	t.Cleanup(f.dispatcher.Close)

	return f
}

func buyOrder(id, qty, price int64) entity.EnterOrderRequest {
	return entity.EnterOrderRequest{
		ISIN:          testISIN,
		OrderID:       id,
		Side:          entity.OrderSideBuy,
		Quantity:      qty,
		Price:         price,
		BrokerID:      buyerBrokerID,
		ShareholderID: buyerHolderID,
	}
}

func sellOrder(id, qty, price int64) entity.EnterOrderRequest {
	return entity.EnterOrderRequest{
		ISIN:          testISIN,
		OrderID:       id,
		Side:          entity.OrderSideSell,
		Quantity:      qty,
		Price:         price,
		BrokerID:      sellerBrokerID,
		ShareholderID: sellerHolderID,
	}
}

func eventTypes(events []entity.MatchingEvent) []entity.MatchingEventType {
	out := make([]entity.MatchingEventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}
