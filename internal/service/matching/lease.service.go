package matching

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultLeaseTTL = 15 * time.Second

type LeaseStore interface {
	AcquireLease(ctx context.Context, isin string, owner string, ttl time.Duration) (bool, error)
	RefreshLease(ctx context.Context, isin string, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, isin string, owner string) error
}

// LeaseKeeper holds the instrument leases of this process so that no two
// engines match the same instrument.
type LeaseKeeper struct {
	store LeaseStore
	owner string
	ttl   time.Duration

	mu     sync.Mutex
	held   map[string]struct{}
	onLost func(isin string)
}

func NewLeaseKeeper(store LeaseStore, ttl time.Duration, onLost func(isin string)) *LeaseKeeper {
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}

	owner := uuid.NewString()
	if host, err := os.Hostname(); err == nil && host != "" {
		owner = host + "/" + owner
	}

	return &LeaseKeeper{
		store:  store,
		owner:  owner,
		ttl:    ttl,
		held:   make(map[string]struct{}),
		onLost: onLost,
	}
}

func (k *LeaseKeeper) Owner() string {
	return k.owner
}

// Acquire tries every isin and returns those now held. Instruments leased by
// another engine are skipped; any other failure aborts.
func (k *LeaseKeeper) Acquire(ctx context.Context, isins []string) ([]string, error) {
	acquired := make([]string, 0, len(isins))
	for _, isin := range isins {
		err := k.acquire(ctx, isin)
		if errors.Is(err, ErrInstrumentLeased) {
			logrus.WithField("isin", isin).Warn(err)
			continue
		}
		if err != nil {
			return acquired, err
		}
		acquired = append(acquired, isin)
	}
	return acquired, nil
}

func (k *LeaseKeeper) acquire(ctx context.Context, isin string) error {
	ok, err := k.store.AcquireLease(ctx, isin, k.owner, k.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInstrumentLeased
	}

	k.mu.Lock()
	k.held[isin] = struct{}{}
	k.mu.Unlock()

	return nil
}

func (k *LeaseKeeper) Held() []string {
	k.mu.Lock()
	defer k.mu.Unlock()

	out := make([]string, 0, len(k.held))
	for isin := range k.held {
		out = append(out, isin)
	}
	sort.Strings(out)
	return out
}

// Run refreshes held leases until ctx is done.
func (k *LeaseKeeper) Run(ctx context.Context) {
	ticker := time.NewTicker(k.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.Refresh(ctx)
		}
	}
}

func (k *LeaseKeeper) Refresh(ctx context.Context) {
	for _, isin := range k.Held() {
		if ctx.Err() != nil {
			return
		}

		ok, err := k.store.RefreshLease(ctx, isin, k.owner, k.ttl)
		if err != nil {
			logrus.WithField("isin", isin).WithError(err).Error("failed to refresh instrument lease")
			continue
		}
		if ok {
			continue
		}

		logrus.WithField("isin", isin).Error("instrument lease lost")
		k.mu.Lock()
		delete(k.held, isin)
		k.mu.Unlock()

		if k.onLost != nil {
			k.onLost(isin)
		}
	}
}

func (k *LeaseKeeper) ReleaseAll(ctx context.Context) error {
	var errs []error
	for _, isin := range k.Held() {
		if err := k.store.ReleaseLease(ctx, isin, k.owner); err != nil {
			errs = append(errs, err)
			continue
		}
		k.mu.Lock()
		delete(k.held, isin)
		k.mu.Unlock()
	}
	return errors.Join(errs...)
}
