package infrastructure

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/krobus00/matching-engine/internal/config"
	"github.com/sirupsen/logrus"
)

func NewPebbleDB(cfg config.JournalConfig) (*pebble.DB, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("journal dir is required")
	}

	db, err := pebble.Open(cfg.Dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	logrus.WithField("dir", cfg.Dir).Info("event journal opened")

	return db, nil
}
