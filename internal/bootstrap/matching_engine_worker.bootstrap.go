package bootstrap

import (
	"context"

	"github.com/krobus00/matching-engine/internal/config"
	"github.com/krobus00/matching-engine/internal/entity"
	"github.com/krobus00/matching-engine/internal/infrastructure"
	"github.com/krobus00/matching-engine/internal/repository"
	"github.com/krobus00/matching-engine/internal/service/matching"
	"github.com/krobus00/matching-engine/internal/util"
	"github.com/spf13/cobra"
)

func StartMatchingEngineWorker(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := infrastructure.NewPostgresConnection(ctx, config.Env.Database[matchingEngineDatabase])
	util.ContinueOrFatal(err)
	infrastructure.StartPostgresHealthCheck(ctx, db, config.Env.Database[matchingEngineDatabase].PingInterval)

	nc, js, err := infrastructure.NewJetstream()
	util.ContinueOrFatal(err)

	tradeRepo := repository.NewTradeRepository(db)
	securityRepo := repository.NewSecurityRepository(db)

	tradeRecorderService := matching.NewTradeRecorderService(tradeRepo, securityRepo, js)

	subscribers := make([]entity.Subscriber, 0)
	subscribers = append(subscribers, tradeRecorderService)
	for _, v := range subscribers {
		err = v.JetstreamEventSubscribe(ctx)
		util.ContinueOrFatal(err)
	}

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"matching engine database": func(ctx context.Context) error {
			cancel()
			return db.Close()
		},
		"nats connection": func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		},
	})

	<-wait
}
