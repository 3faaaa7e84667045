package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/krobus00/matching-engine/internal/config"
	"github.com/krobus00/matching-engine/internal/entity"
	"github.com/krobus00/matching-engine/internal/infrastructure"
	"github.com/krobus00/matching-engine/internal/repository"
	"github.com/krobus00/matching-engine/internal/service/matching"
	"github.com/krobus00/matching-engine/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const replayBatchSize = 256

// StartJournalReplay prints the journalled events from a sequence onwards, or
// republishes them to kafka when --publish is set.
func StartJournalReplay(cmd *cobra.Command, args []string) {
	from, _ := cmd.Flags().GetUint64("from")
	publish, _ := cmd.Flags().GetBool("publish")

	ctx := context.Background()

	journalDB, err := infrastructure.NewPebbleDB(config.Env.Journal)
	util.ContinueOrFatal(err)
	journal, err := repository.NewEventJournalRepository(journalDB)
	util.ContinueOrFatal(err)
	defer func() {
		if err := journal.Close(); err != nil {
			logrus.Error(err)
		}
	}()

	var sink matching.EventSink = matching.EventSinkFunc(func(_ context.Context, events []entity.MatchingEvent) error {
		encoder := json.NewEncoder(os.Stdout)
		for _, event := range events {
			if err := encoder.Encode(event); err != nil {
				return err
			}
		}
		return nil
	})

	if publish {
		writer, err := infrastructure.NewKafkaWriter(config.Env.Kafka)
		util.ContinueOrFatal(err)
		defer func() {
			if err := writer.Close(); err != nil {
				logrus.Error(err)
			}
		}()
		sink = matching.NewKafkaEventSink(writer)
	}

	var (
		batch    []entity.MatchingEvent
		replayed int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := sink.Publish(ctx, batch); err != nil {
			return fmt.Errorf("replay up to sequence %d: %w", batch[len(batch)-1].Sequence, err)
		}
		replayed += len(batch)
		batch = batch[:0]
		return nil
	}

	err = journal.Scan(from, func(event entity.MatchingEvent) error {
		batch = append(batch, event)
		if len(batch) < replayBatchSize {
			return nil
		}
		return flush()
	})
	if err == nil {
		err = flush()
	}
	util.ContinueOrFatal(err)

	logrus.WithFields(logrus.Fields{
		"from":      from,
		"replayed":  replayed,
		"published": publish,
		"last":      journal.LastSequence(),
	}).Info("journal replay finished")
}
