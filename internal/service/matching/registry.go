package matching

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/guregu/null/v6"
	"github.com/krobus00/matching-engine/internal/engine"
	"github.com/krobus00/matching-engine/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type BrokerStore interface {
	GetAll(ctx context.Context) ([]entity.Broker, error)
	UpdateCredits(ctx context.Context, brokers []entity.Broker) error
}

type ShareholderStore interface {
	GetAll(ctx context.Context) ([]entity.Shareholder, error)
	GetAllPositions(ctx context.Context) ([]entity.ShareholderPosition, error)
	UpsertPositions(ctx context.Context, positions []entity.ShareholderPosition) error
}

// Registry owns the in-memory securities, brokers and shareholders. Brokers and
// shareholders are shared by every instrument, so engine calls that touch them
// run under the ledger lock.
type Registry struct {
	mu           sync.RWMutex
	securities   map[string]*engine.Security
	brokers      map[int64]*engine.Broker
	shareholders map[int64]*engine.Shareholder

	ledgerMu sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		securities:   make(map[string]*engine.Security),
		brokers:      make(map[int64]*engine.Broker),
		shareholders: make(map[int64]*engine.Shareholder),
	}
}

// LoadLedger replaces brokers and shareholders with what the stores hold.
func (r *Registry) LoadLedger(ctx context.Context, brokerStore BrokerStore, shareholderStore ShareholderStore) error {
	brokers, err := brokerStore.GetAll(ctx)
	if err != nil {
		return err
	}

	shareholders, err := shareholderStore.GetAll(ctx)
	if err != nil {
		return err
	}

	positions, err := shareholderStore.GetAllPositions(ctx)
	if err != nil {
		return err
	}

	r.ledgerMu.Lock()
	defer r.ledgerMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	r.brokers = make(map[int64]*engine.Broker, len(brokers))
	for _, b := range brokers {
		r.brokers[b.ID] = engine.NewBroker(b.ID, b.Credit.IntPart())
	}

	r.shareholders = make(map[int64]*engine.Shareholder, len(shareholders))
	for _, sh := range shareholders {
		r.shareholders[sh.ID] = engine.NewShareholder(sh.ID)
	}

	for _, p := range positions {
		sh, ok := r.shareholders[p.ShareholderID]
		if !ok {
			logrus.WithFields(logrus.Fields{
				"shareholder_id": p.ShareholderID,
				"isin":           p.ISIN,
			}).Warn("position for unknown shareholder skipped")
			continue
		}
		sh.IncPosition(p.ISIN, p.Quantity)
	}

	logrus.WithFields(logrus.Fields{
		"brokers":      len(r.brokers),
		"shareholders": len(r.shareholders),
		"positions":    len(positions),
	}).Info("ledger loaded")

	return nil
}

func (r *Registry) AddSecurity(sec entity.Security) *engine.Security {
	state := engine.MatchingStateContinuous
	if sec.MatchingState == entity.MatchingStateAuction {
		state = engine.MatchingStateAuction
	}

	security := engine.NewSecurity(sec.ISIN, sec.TickSize, sec.LotSize,
		engine.WithLastTradePrice(sec.LastTradePrice),
		engine.WithMatchingState(state),
	)

	r.mu.Lock()
	r.securities[sec.ISIN] = security
	r.mu.Unlock()

	return security
}

// RemoveSecurity drops the instrument and its book. Credit reserved by the
// dropped buy orders goes back to the brokers.
func (r *Registry) RemoveSecurity(isin string) {
	r.ledgerMu.Lock()
	defer r.ledgerMu.Unlock()

	r.mu.Lock()
	sec, ok := r.securities[isin]
	delete(r.securities, isin)
	r.mu.Unlock()
	if !ok {
		return
	}

	var released int64
	for _, o := range liveBuyOrders(sec) {
		o.Broker.IncreaseCreditBy(o.Value())
		released += o.Value()
	}
	logrus.WithFields(logrus.Fields{
		"isin":     isin,
		"released": released,
	}).Info("security removed")
}

func (r *Registry) AddBroker(id, credit int64) *engine.Broker {
	b := engine.NewBroker(id, credit)
	r.mu.Lock()
	r.brokers[id] = b
	r.mu.Unlock()
	return b
}

func (r *Registry) AddShareholder(id int64) *engine.Shareholder {
	sh := engine.NewShareholder(id)
	r.mu.Lock()
	r.shareholders[id] = sh
	r.mu.Unlock()
	return sh
}

func (r *Registry) Security(isin string) (*engine.Security, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sec, ok := r.securities[isin]
	return sec, ok
}

func (r *Registry) Broker(id int64) (*engine.Broker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.brokers[id]
	return b, ok
}

func (r *Registry) Shareholder(id int64) (*engine.Shareholder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sh, ok := r.shareholders[id]
	return sh, ok
}

func (r *Registry) ISINs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.securities))
	for isin := range r.securities {
		out = append(out, isin)
	}
	sort.Strings(out)
	return out
}

// withLedger runs fn while no other instrument can move credit or positions.
func (r *Registry) withLedger(fn func()) {
	r.ledgerMu.Lock()
	defer r.ledgerMu.Unlock()
	fn()
}

// LedgerSnapshot copies every broker credit and shareholder position. Books are
// not persisted, so a broker's credit includes what its live buy orders reserve.
func (r *Registry) LedgerSnapshot() ([]entity.Broker, []entity.ShareholderPosition) {
	r.ledgerMu.Lock()
	defer r.ledgerMu.Unlock()
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := null.TimeFrom(time.Now().UTC())

	reserved := make(map[int64]int64)
	for _, sec := range r.securities {
		for _, o := range liveBuyOrders(sec) {
			reserved[o.Broker.ID] += o.Value()
		}
	}

	brokers := make([]entity.Broker, 0, len(r.brokers))
	for _, b := range r.brokers {
		brokers = append(brokers, entity.Broker{
			ID:        b.ID,
			Credit:    decimal.NewFromInt(b.Credit + reserved[b.ID]),
			UpdatedAt: now,
		})
	}
	sort.Slice(brokers, func(i, j int) bool { return brokers[i].ID < brokers[j].ID })

	var positions []entity.ShareholderPosition
	for _, sh := range r.shareholders {
		for isin, qty := range sh.Positions() {
			positions = append(positions, entity.ShareholderPosition{
				ShareholderID: sh.ID,
				ISIN:          isin,
				Quantity:      qty,
				UpdatedAt:     now,
			})
		}
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].ShareholderID != positions[j].ShareholderID {
			return positions[i].ShareholderID < positions[j].ShareholderID
		}
		return positions[i].ISIN < positions[j].ISIN
	})

	return brokers, positions
}

// liveBuyOrders lists the resting and staged buy orders of sec, which are the
// ones holding a credit reservation.
func liveBuyOrders(sec *engine.Security) []*engine.Order {
	book := sec.OrderBook()
	return append(book.Orders(engine.SideBuy), book.StagedOrders(engine.SideBuy)...)
}
