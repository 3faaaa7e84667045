package repository

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/goccy/go-json"
	"github.com/krobus00/matching-engine/internal/entity"
)

const journalKeyPrefix = "event/"

// EventJournalRepository is an append-only log of matching events keyed by
// their sequence number.
type EventJournalRepository struct {
	db      *pebble.DB
	mu      sync.Mutex
	lastSeq uint64
}

func NewEventJournalRepository(db *pebble.DB) (*EventJournalRepository, error) {
	r := &EventJournalRepository{db: db}

	last, err := r.loadLastSequence()
	if err != nil {
		return nil, err
	}
	r.lastSeq = last

	return r, nil
}

// Append stores events in order. Events without a sequence get the next one.
func (r *EventJournalRepository) Append(events []entity.MatchingEvent) error {
	if len(events) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	batch := r.db.NewBatch()
	defer batch.Close()

	last := r.lastSeq
	for i := range events {
		if events[i].Sequence == 0 {
			events[i].Sequence = last + 1
		}
		if events[i].Sequence <= last {
			return fmt.Errorf("journal sequence %d is not after %d", events[i].Sequence, last)
		}
		last = events[i].Sequence

		payload, err := json.Marshal(events[i])
		if err != nil {
			return err
		}
		if err := batch.Set(journalKey(events[i].Sequence), payload, nil); err != nil {
			return err
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return err
	}
	r.lastSeq = last

	return nil
}

// Scan calls fn for every event with sequence >= from, in sequence order.
func (r *EventJournalRepository) Scan(from uint64, fn func(event entity.MatchingEvent) error) error {
	iter, err := r.db.NewIter(&pebble.IterOptions{
		LowerBound: journalKey(from),
		UpperBound: []byte(journalKeyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var event entity.MatchingEvent
		if err := json.Unmarshal(iter.Value(), &event); err != nil {
			return fmt.Errorf("decode journal entry %s: %w", iter.Key(), err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}

	return iter.Error()
}

func (r *EventJournalRepository) LastSequence() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeq
}

func (r *EventJournalRepository) loadLastSequence() (uint64, error) {
	iter, err := r.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(journalKeyPrefix),
		UpperBound: []byte(journalKeyPrefix + "~"),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}

	return parseJournalKey(iter.Key())
}

func (r *EventJournalRepository) Close() error {
	return r.db.Close()
}

func journalKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", journalKeyPrefix, seq))
}

func parseJournalKey(key []byte) (uint64, error) {
	if !bytes.HasPrefix(key, []byte(journalKeyPrefix)) {
		return 0, errors.New("invalid journal key")
	}

	var seq uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(key, []byte(journalKeyPrefix))), "%d", &seq)
	return seq, err
}
