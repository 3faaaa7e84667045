package matching

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/krobus00/matching-engine/internal/config"
	"github.com/krobus00/matching-engine/internal/constant"
	"github.com/krobus00/matching-engine/internal/engine"
	"github.com/krobus00/matching-engine/internal/entity"
	"github.com/krobus00/matching-engine/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownSecurity      = errors.New("unknown security")
	ErrEngineFault          = errors.New("matching engine fault")
	ErrDuplicateRequest     = errors.New("duplicate request")
	ErrPublishRequestFailed = errors.New("failed to publish order request")
	ErrDispatcherClosed     = errors.New("dispatcher closed")
	ErrInstrumentLeased     = errors.New("instrument is hosted by another engine")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInvalidAPIKey        = errors.New("invalid API key")
)

const (
	defaultDepthLevels        = 10
	defaultRequestTimeout     = 5 * time.Second
	requestTimeoutHandlerName = "matching_request"
)

// RequestMarker remembers request ids so redelivered requests are not matched twice.
type RequestMarker interface {
	MarkRequest(ctx context.Context, requestID string, ttl time.Duration) (bool, error)
	ForgetRequest(ctx context.Context, requestID string) error
}

// DepthListener is told about the book of an instrument after every change.
// It is called from the instrument's shard and must not block.
type DepthListener interface {
	OnDepth(snapshot entity.DepthSnapshot)
}

type MatchingService struct {
	registry   *Registry
	dispatcher *Dispatcher
	sink       EventSink

	requests       RequestMarker
	idempotencyTTL time.Duration
	js             nats.JetStreamContext
	depthLevels    int

	emitMu   sync.Mutex
	sequence uint64

	listenersMu sync.RWMutex
	listeners   []DepthListener
}

type Option func(*MatchingService)

func WithRequestMarker(marker RequestMarker, ttl time.Duration) Option {
	return func(s *MatchingService) {
		s.requests = marker
		s.idempotencyTTL = ttl
	}
}

func WithJetstream(js nats.JetStreamContext) Option {
	return func(s *MatchingService) {
		s.js = js
	}
}

func WithDepthLevels(levels int) Option {
	return func(s *MatchingService) {
		if levels > 0 {
			s.depthLevels = levels
		}
	}
}

// WithStartSequence continues numbering after seq, typically the journal's last entry.
func WithStartSequence(seq uint64) Option {
	return func(s *MatchingService) {
		s.sequence = seq
	}
}

func NewMatchingService(registry *Registry, dispatcher *Dispatcher, sink EventSink, opts ...Option) *MatchingService {
	s := &MatchingService{
		registry:    registry,
		dispatcher:  dispatcher,
		sink:        sink,
		depthLevels: defaultDepthLevels,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MatchingService) AddDepthListener(l DepthListener) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, l)
	s.listenersMu.Unlock()
}

func (s *MatchingService) EnterOrder(ctx context.Context, req entity.EnterOrderRequest) ([]entity.MatchingEvent, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if req.Type == "" {
		req.Type = entity.RequestTypeNewOrder
	}
	if req.Type != entity.RequestTypeNewOrder && req.Type != entity.RequestTypeUpdateOrder {
		return nil, ErrInvalidRequest
	}
	if req.EntryTime.IsZero() {
		req.EntryTime = time.Now().UTC()
	}
	req.RequestID = ensureRequestID(req.RequestID)

	logger := logrus.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"type":       req.Type,
		"isin":       req.ISIN,
		"order_id":   req.OrderID,
	})

	if err := s.markRequest(ctx, req.RequestID); err != nil {
		logger.WithError(err).Warn("enter order request not processed")
		return nil, err
	}

	if reasons := s.registry.validateEnterOrder(req); len(reasons) > 0 {
		b := newEventBuilder(req.RequestID, req.ISIN)
		b.rejected(req.OrderID, req.Side, reasons...)
		logger.WithField("reasons", reasons).Info("enter order request rejected")
		return s.emit(ctx, b.events), nil
	}

	var (
		events     []entity.MatchingEvent
		processErr error
	)
	err := s.dispatcher.Do(ctx, req.ISIN, func() {
		broker, _ := s.registry.Broker(req.BrokerID)
		shareholder, _ := s.registry.Shareholder(req.ShareholderID)

		engineReq := engine.EnterOrderRequest{
			OrderID:                  req.OrderID,
			EntryTime:                req.EntryTime,
			Side:                     engine.Side(req.Side),
			Quantity:                 req.Quantity,
			Price:                    req.Price,
			PeakSize:                 req.PeakSize,
			MinimumExecutionQuantity: req.MinimumExecutionQuantity,
			StopPrice:                req.StopPrice,
		}

		var (
			sec     *engine.Security
			results []engine.MatchResult
			err     error
		)
		s.registry.withLedger(func() {
			var ok bool
			if sec, ok = s.registry.Security(req.ISIN); !ok {
				processErr = ErrUnknownSecurity
				return
			}
			if req.Type == entity.RequestTypeUpdateOrder {
				results, err = sec.UpdateOrder(engineReq)
				return
			}
			results = sec.NewOrder(engineReq, broker, shareholder)
		})
		if processErr != nil {
			return
		}

		b := newEventBuilder(req.RequestID, req.ISIN)
		if err != nil {
			b.rejected(req.OrderID, req.Side, reasonForError(err))
			events = s.emit(ctx, b.events)
			return
		}

		events = s.emit(ctx, enterOrderEvents(b, req, results))
		s.notifyDepth(sec)
	})
	if err == nil {
		err = processErr
	}
	if err != nil {
		logger.WithError(err).Error("failed to process enter order request")
		if errors.Is(err, ErrDispatcherClosed) || errors.Is(err, ErrUnknownSecurity) {
			s.forgetRequest(ctx, req.RequestID)
		}
		return nil, err
	}

	logger.WithField("outcome", outcomeOf(events)).Info("enter order request processed")
	return events, nil
}

func (s *MatchingService) DeleteOrder(ctx context.Context, req entity.DeleteOrderRequest) ([]entity.MatchingEvent, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	req.RequestID = ensureRequestID(req.RequestID)

	logger := logrus.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"isin":       req.ISIN,
		"order_id":   req.OrderID,
	})

	if err := s.markRequest(ctx, req.RequestID); err != nil {
		logger.WithError(err).Warn("delete order request not processed")
		return nil, err
	}

	if reasons := s.registry.validateDeleteOrder(req); len(reasons) > 0 {
		b := newEventBuilder(req.RequestID, req.ISIN)
		b.rejected(req.OrderID, req.Side, reasons...)
		logger.WithField("reasons", reasons).Info("delete order request rejected")
		return s.emit(ctx, b.events), nil
	}

	var (
		events     []entity.MatchingEvent
		processErr error
	)
	err := s.dispatcher.Do(ctx, req.ISIN, func() {
		var (
			sec     *engine.Security
			results []engine.MatchResult
			err     error
		)
		s.registry.withLedger(func() {
			var ok bool
			if sec, ok = s.registry.Security(req.ISIN); !ok {
				processErr = ErrUnknownSecurity
				return
			}
			results, err = sec.DeleteOrder(engine.Side(req.Side), req.OrderID)
		})
		if processErr != nil {
			return
		}

		b := newEventBuilder(req.RequestID, req.ISIN)
		if err != nil {
			b.rejected(req.OrderID, req.Side, reasonForError(err))
			events = s.emit(ctx, b.events)
			return
		}

		events = s.emit(ctx, deleteOrderEvents(b, req, results))
		s.notifyDepth(sec)
	})
	if err == nil {
		err = processErr
	}
	if err != nil {
		logger.WithError(err).Error("failed to process delete order request")
		if errors.Is(err, ErrDispatcherClosed) || errors.Is(err, ErrUnknownSecurity) {
			s.forgetRequest(ctx, req.RequestID)
		}
		return nil, err
	}

	logger.WithField("outcome", outcomeOf(events)).Info("delete order request processed")
	return events, nil
}

func (s *MatchingService) ChangeMatchingState(ctx context.Context, req entity.ChangeMatchingStateRequest) ([]entity.MatchingEvent, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	req.RequestID = ensureRequestID(req.RequestID)

	logger := logrus.WithFields(logrus.Fields{
		"request_id":   req.RequestID,
		"isin":         req.ISIN,
		"target_state": req.TargetState,
	})

	if err := s.markRequest(ctx, req.RequestID); err != nil {
		logger.WithError(err).Warn("change matching state request not processed")
		return nil, err
	}

	if reasons := s.registry.validateChangeMatchingState(req); len(reasons) > 0 {
		b := newEventBuilder(req.RequestID, req.ISIN)
		b.rejected(0, "", reasons...)
		logger.WithField("reasons", reasons).Info("change matching state request rejected")
		return s.emit(ctx, b.events), nil
	}

	var (
		events     []entity.MatchingEvent
		processErr error
	)
	err := s.dispatcher.Do(ctx, req.ISIN, func() {
		var (
			sec     *engine.Security
			results []engine.MatchResult
			err     error
		)
		s.registry.withLedger(func() {
			var ok bool
			if sec, ok = s.registry.Security(req.ISIN); !ok {
				processErr = ErrUnknownSecurity
				return
			}
			results, err = sec.ChangeMatchingState(engine.MatchingState(req.TargetState))
		})
		if processErr != nil {
			return
		}

		b := newEventBuilder(req.RequestID, req.ISIN)
		if err != nil {
			b.rejected(0, "", reasonForError(err))
			events = s.emit(ctx, b.events)
			return
		}

		events = s.emit(ctx, stateChangeEvents(b, sec, results))
		s.notifyDepth(sec)
	})
	if err == nil {
		err = processErr
	}
	if err != nil {
		logger.WithError(err).Error("failed to process change matching state request")
		if errors.Is(err, ErrDispatcherClosed) || errors.Is(err, ErrUnknownSecurity) {
			s.forgetRequest(ctx, req.RequestID)
		}
		return nil, err
	}

	logger.WithField("events", len(events)).Info("matching state changed")
	return events, nil
}

// Depth reads the book of isin on its shard. levels <= 0 uses the configured depth.
func (s *MatchingService) Depth(ctx context.Context, isin string, levels int) (*entity.DepthSnapshot, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if levels <= 0 {
		levels = s.depthLevels
	}

	sec, ok := s.registry.Security(isin)
	if !ok {
		return nil, ErrUnknownSecurity
	}

	var snapshot entity.DepthSnapshot
	err := s.dispatcher.Do(ctx, isin, func() {
		snapshot = depthSnapshot(sec, levels)
	})
	if err != nil {
		return nil, err
	}

	return &snapshot, nil
}

// SubmitAsync queues a request on the request stream for the engine that hosts its instrument.
func (s *MatchingService) SubmitAsync(ctx context.Context, event entity.OrderRequestEvent) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if s.js == nil {
		return ErrPublishRequestFailed
	}

	switch {
	case event.Enter != nil:
		event.Enter.RequestID = ensureRequestID(event.Enter.RequestID)
		if event.Kind == "" {
			event.Kind = entity.RequestTypeNewOrder
		}
		event.Enter.Type = event.Kind
	case event.Delete != nil:
		event.Delete.RequestID = ensureRequestID(event.Delete.RequestID)
		event.Kind = entity.RequestTypeDeleteOrder
	case event.ChangeState != nil:
		event.ChangeState.RequestID = ensureRequestID(event.ChangeState.RequestID)
		event.Kind = entity.RequestTypeChangeState
	default:
		return ErrInvalidRequest
	}
	event.RetryCount = 0

	err := util.PublishEvent(s.js, constant.MatchingRequestStreamSubject, event)
	if err != nil {
		logrus.WithField("request_id", event.RequestID()).Error(err)
		return ErrPublishRequestFailed
	}

	return nil
}

func (s *MatchingService) JetstreamEventInit(ctx context.Context) error {
	streams := []*nats.StreamConfig{
		{
			Name:      constant.MatchingRequestStreamName,
			Subjects:  []string{constant.MatchingRequestStreamSubjectAll},
			Retention: nats.WorkQueuePolicy,
			Storage:   nats.FileStorage,
			MaxAge:    24 * time.Hour,
		},
		{
			Name:      constant.MatchingEventStreamName,
			Subjects:  []string{constant.MatchingEventStreamSubjectAll},
			Retention: nats.LimitsPolicy,
			Storage:   nats.FileStorage,
			MaxAge:    7 * 24 * time.Hour,
		},
	}

	for _, streamConfig := range streams {
		stream, err := s.js.StreamInfo(streamConfig.Name, nats.Context(ctx))
		if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
			logrus.Error(err)
			return err
		}

		if stream == nil {
			logrus.Infof("creating stream: %s", streamConfig.Name)
			if _, err = s.js.AddStream(streamConfig, nats.Context(ctx)); err != nil {
				logrus.Error(err)
				return err
			}
			continue
		}

		logrus.Infof("updating stream: %s", streamConfig.Name)
		if _, err = s.js.UpdateStream(streamConfig, nats.Context(ctx)); err != nil {
			logrus.Error(err)
			return err
		}
	}

	return nil
}

func (s *MatchingService) JetstreamEventSubscribe(ctx context.Context) error {
	timeout := requestTimeout()
	_, err := s.js.QueueSubscribe(
		constant.MatchingRequestStreamSubject,
		constant.MatchingRequestQueueName,
		func(msg *nats.Msg) {
			// failed requests are republished with a bumped retry counter, so the
			// original delivery is acknowledged either way
			err := util.ProcessWithTimeout(timeout, msg, s.handleRequestEvent)
			if err != nil {
				logrus.Errorf("error processing message: %v", err)
			}

			err = msg.Ack()
			if err != nil {
				logrus.Errorf("failed to acknowledge message: %v", err)
				return
			}
		},
		nats.ManualAck(),
		nats.Durable(constant.MatchingRequestQueueGroup),
	)
	util.ContinueOrFatal(err)

	return nil
}

func (s *MatchingService) handleRequestEvent(ctx context.Context, msg *nats.Msg) (err error) {
	logger := logrus.WithFields(logrus.Fields{
		"req": string(msg.Data),
	})

	var req entity.OrderRequestEvent
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		logger.Error(err)
		return nil // poison message, never redeliver
	}

	defer func() {
		if err != nil {
			logger.Error(err)
			req.RetryCount++
			if req.RetryCount >= maxRetries() {
				return
			}

			err := util.PublishEvent(s.js, constant.MatchingRequestStreamSubject, req)
			if err != nil {
				logger.Error(err)
				return
			}
		}
	}()

	switch {
	case req.Enter != nil:
		_, err = s.EnterOrder(ctx, *req.Enter)
	case req.Delete != nil:
		_, err = s.DeleteOrder(ctx, *req.Delete)
	case req.ChangeState != nil:
		_, err = s.ChangeMatchingState(ctx, *req.ChangeState)
	default:
		logger.Warn("order request without payload dropped")
		return nil
	}

	if errors.Is(err, ErrDuplicateRequest) || errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrEngineFault) {
		logger.WithError(err).Warn("order request dropped")
		return nil
	}

	return err
}

// emit numbers events and hands them to the sink. Numbering and publishing
// happen under one lock so every sink sees a strictly increasing sequence.
func (s *MatchingService) emit(ctx context.Context, events []entity.MatchingEvent) []entity.MatchingEvent {
	if len(events) == 0 {
		return events
	}

	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	for i := range events {
		s.sequence++
		events[i].Sequence = s.sequence
	}

	if s.sink != nil {
		if err := s.sink.Publish(context.WithoutCancel(ctx), events); err != nil {
			logrus.WithFields(logrus.Fields{
				"request_id": events[0].RequestID,
				"isin":       events[0].ISIN,
				"from_seq":   events[0].Sequence,
			}).WithError(err).Error("failed to publish matching events")
		}
	}

	return events
}

func (s *MatchingService) notifyDepth(sec *engine.Security) {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()

	if len(s.listeners) == 0 {
		return
	}

	snapshot := depthSnapshot(sec, s.depthLevels)
	for _, l := range s.listeners {
		l.OnDepth(snapshot)
	}
}

func (s *MatchingService) markRequest(ctx context.Context, requestID string) error {
	if s.requests == nil {
		return nil
	}

	first, err := s.requests.MarkRequest(ctx, requestID, s.idempotencyTTL)
	if err != nil {
		return err
	}
	if !first {
		return ErrDuplicateRequest
	}

	return nil
}

func (s *MatchingService) forgetRequest(ctx context.Context, requestID string) {
	if s.requests == nil {
		return
	}
	if err := s.requests.ForgetRequest(context.WithoutCancel(ctx), requestID); err != nil {
		logrus.WithField("request_id", requestID).WithError(err).Warn("failed to forget request id")
	}
}

func ensureRequestID(requestID string) string {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return uuid.NewString()
	}
	return requestID
}

func outcomeOf(events []entity.MatchingEvent) entity.MatchingEventType {
	if len(events) == 0 {
		return ""
	}
	return events[len(events)-1].Type
}

func maxRetries() int {
	if config.Env == nil || config.Env.NatsJetstream.MaxRetries <= 0 {
		return 1
	}
	return config.Env.NatsJetstream.MaxRetries
}

func requestTimeout() time.Duration {
	if config.Env == nil {
		return defaultRequestTimeout
	}
	if timeout := config.Env.NatsJetstream.TimeoutHandler[requestTimeoutHandlerName]; timeout > 0 {
		return timeout
	}
	return defaultRequestTimeout
}
