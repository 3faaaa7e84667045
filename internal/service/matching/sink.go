package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/krobus00/matching-engine/internal/constant"
	"github.com/krobus00/matching-engine/internal/entity"
	"github.com/krobus00/matching-engine/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
)

// EventSink receives every emitted event batch in sequence order.
type EventSink interface {
	Publish(ctx context.Context, events []entity.MatchingEvent) error
}

type EventSinkFunc func(ctx context.Context, events []entity.MatchingEvent) error

func (f EventSinkFunc) Publish(ctx context.Context, events []entity.MatchingEvent) error {
	return f(ctx, events)
}

// FanoutEventSink publishes to every sink and joins their errors.
type FanoutEventSink []EventSink

func (f FanoutEventSink) Publish(ctx context.Context, events []entity.MatchingEvent) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type JetstreamEventSink struct {
	js nats.JetStreamContext
}

func NewJetstreamEventSink(js nats.JetStreamContext) *JetstreamEventSink {
	return &JetstreamEventSink{js: js}
}

func (s *JetstreamEventSink) Publish(ctx context.Context, events []entity.MatchingEvent) error {
	for _, event := range events {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		subject := fmt.Sprintf(constant.MatchingEventStreamSubject, event.ISIN)
		if err := util.PublishEvent(s.js, subject, event); err != nil {
			return fmt.Errorf("publish event %d to jetstream: %w", event.Sequence, err)
		}
	}
	return nil
}

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaEventSink writes events keyed by ISIN so one instrument stays on one partition.
type KafkaEventSink struct {
	writer kafkaMessageWriter
}

func NewKafkaEventSink(writer kafkaMessageWriter) *KafkaEventSink {
	return &KafkaEventSink{writer: writer}
}

func (s *KafkaEventSink) Publish(ctx context.Context, events []entity.MatchingEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(event.ISIN),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.Type)},
				{Key: "event_id", Value: []byte(event.ID)},
			},
		})
	}

	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write events to kafka: %w", err)
	}
	return nil
}

type eventAppender interface {
	Append(events []entity.MatchingEvent) error
}

type JournalEventSink struct {
	journal eventAppender
}

func NewJournalEventSink(journal eventAppender) *JournalEventSink {
	return &JournalEventSink{journal: journal}
}

func (s *JournalEventSink) Publish(_ context.Context, events []entity.MatchingEvent) error {
	if err := s.journal.Append(events); err != nil {
		return fmt.Errorf("append events to journal: %w", err)
	}
	return nil
}
