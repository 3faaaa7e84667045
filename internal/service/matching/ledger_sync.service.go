package matching

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultLedgerSyncInterval = 30 * time.Second

// LedgerSyncService periodically writes broker credit and shareholder positions
// held in memory back to the database.
type LedgerSyncService struct {
	registry         *Registry
	brokerStore      BrokerStore
	shareholderStore ShareholderStore
	syncInterval     time.Duration
}

func NewLedgerSyncService(registry *Registry, brokerStore BrokerStore, shareholderStore ShareholderStore, syncInterval time.Duration) *LedgerSyncService {
	if syncInterval <= 0 {
		syncInterval = defaultLedgerSyncInterval
	}

	return &LedgerSyncService{
		registry:         registry,
		brokerStore:      brokerStore,
		shareholderStore: shareholderStore,
		syncInterval:     syncInterval,
	}
}

// Run syncs on every tick and once more when ctx ends.
func (s *LedgerSyncService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.syncInterval)
			if err := s.Sync(flushCtx); err != nil {
				logrus.WithError(err).Error("failed to flush ledger on shutdown")
			}
			cancel()
			return
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				logrus.WithError(err).Error("failed to sync ledger")
			}
		}
	}
}

func (s *LedgerSyncService) Sync(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	brokers, positions := s.registry.LedgerSnapshot()

	if err := s.brokerStore.UpdateCredits(ctx, brokers); err != nil {
		return err
	}
	if err := s.shareholderStore.UpsertPositions(ctx, positions); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"brokers":   len(brokers),
		"positions": len(positions),
	}).Debug("ledger synced")

	return nil
}
