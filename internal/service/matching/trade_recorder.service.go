package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/guregu/null/v6"
	"github.com/krobus00/matching-engine/internal/config"
	"github.com/krobus00/matching-engine/internal/constant"
	"github.com/krobus00/matching-engine/internal/entity"
	"github.com/krobus00/matching-engine/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const tradeRecorderTimeoutHandlerName = "matching_event"

type TradeStore interface {
	CreateBatch(ctx context.Context, trades []entity.Trade) error
}

type SecurityStateStore interface {
	UpdateMarketState(ctx context.Context, isin string, state entity.MatchingState, lastTradePrice int64) error
	UpdateLastTradePrice(ctx context.Context, isin string, lastTradePrice int64) error
}

// TradeRecorderService consumes matching events and persists trades and
// security state for downstream readers.
type TradeRecorderService struct {
	tradeStore    TradeStore
	securityStore SecurityStateStore
	js            nats.JetStreamContext
}

func NewTradeRecorderService(tradeStore TradeStore, securityStore SecurityStateStore, js nats.JetStreamContext) *TradeRecorderService {
	return &TradeRecorderService{
		tradeStore:    tradeStore,
		securityStore: securityStore,
		js:            js,
	}
}

func (s *TradeRecorderService) JetstreamEventSubscribe(ctx context.Context) error {
	timeout := defaultRequestTimeout
	if config.Env != nil {
		if t := config.Env.NatsJetstream.TimeoutHandler[tradeRecorderTimeoutHandlerName]; t > 0 {
			timeout = t
		}
	}

	_, err := s.js.QueueSubscribe(
		constant.MatchingEventStreamSubjectAll,
		constant.MatchingEventQueueName,
		func(msg *nats.Msg) {
			err := util.ProcessWithTimeout(timeout, msg, s.handleMatchingEvent)
			if err != nil {
				logrus.Errorf("error processing message: %v", err)
				if nakErr := msg.Nak(); nakErr != nil {
					logrus.Errorf("failed to nak message: %v", nakErr)
				}
				return
			}

			err = msg.Ack()
			if err != nil {
				logrus.Errorf("failed to acknowledge message: %v", err)
				return
			}
		},
		nats.ManualAck(),
		nats.Durable(constant.MatchingEventQueueGroup),
		nats.DeliverNew(),
	)
	util.ContinueOrFatal(err)

	return nil
}

func (s *TradeRecorderService) handleMatchingEvent(ctx context.Context, msg *nats.Msg) error {
	var event entity.MatchingEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logrus.WithField("data", string(msg.Data)).Error(err)
		return nil // poison message, never redeliver
	}

	return s.Record(ctx, event)
}

// Record applies one matching event. Replaying the same event is harmless.
func (s *TradeRecorderService) Record(ctx context.Context, event entity.MatchingEvent) error {
	logger := logrus.WithFields(logrus.Fields{
		"event_id": event.ID,
		"sequence": event.Sequence,
		"type":     event.Type,
		"isin":     event.ISIN,
	})

	switch event.Type {
	case entity.EventOrderExecuted, entity.EventTrade:
		trades := tradeRows(event)
		if len(trades) == 0 {
			return nil
		}
		if err := s.tradeStore.CreateBatch(ctx, trades); err != nil {
			logger.WithError(err).Error("failed to store trades")
			return err
		}
		last := trades[len(trades)-1]
		if err := s.securityStore.UpdateLastTradePrice(ctx, last.ISIN, last.Price); err != nil {
			logger.WithError(err).Error("failed to update last trade price")
			return err
		}
		logger.WithField("trades", len(trades)).Debug("trades recorded")
	case entity.EventSecurityStateChanged:
		if err := s.securityStore.UpdateMarketState(ctx, event.ISIN, event.State, event.LastTradePrice); err != nil {
			logger.WithError(err).Error("failed to update security state")
			return err
		}
		logger.WithField("state", event.State).Info("security state recorded")
	}

	return nil
}

// tradeRows derives a stable id per trade from the event id and position so
// redelivery hits the primary key instead of duplicating rows.
func tradeRows(event entity.MatchingEvent) []entity.Trade {
	tradedAt := event.CreatedAt
	if tradedAt.IsZero() {
		tradedAt = time.Now().UTC()
	}

	requestID := null.NewString(event.RequestID, event.RequestID != "")

	out := make([]entity.Trade, 0, len(event.Trades))
	for i, t := range event.Trades {
		out = append(out, entity.Trade{
			ID:                uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%d", event.ID, i))).String(),
			EventID:           event.ID,
			RequestID:         requestID,
			ISIN:              t.ISIN,
			Price:             t.Price,
			Quantity:          t.Quantity,
			Value:             decimal.NewFromInt(t.Price).Mul(decimal.NewFromInt(t.Quantity)),
			BuyOrderID:        t.BuyOrderID,
			SellOrderID:       t.SellOrderID,
			BuyBrokerID:       t.BuyBrokerID,
			SellBrokerID:      t.SellBrokerID,
			BuyShareholderID:  t.BuyShareholderID,
			SellShareholderID: t.SellShareholderID,
			TradedAt:          tradedAt,
		})
	}
	return out
}
