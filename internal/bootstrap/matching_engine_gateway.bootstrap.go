package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/cockroachdb/pebble"
	"github.com/krobus00/matching-engine/internal/config"
	"github.com/krobus00/matching-engine/internal/constant"
	"github.com/krobus00/matching-engine/internal/entity"
	grpcHandler "github.com/krobus00/matching-engine/internal/handler/matching/grpc"
	httpHandler "github.com/krobus00/matching-engine/internal/handler/matching/http"
	wsHandler "github.com/krobus00/matching-engine/internal/handler/matching/ws"
	"github.com/krobus00/matching-engine/internal/infrastructure"
	"github.com/krobus00/matching-engine/internal/repository"
	"github.com/krobus00/matching-engine/internal/service/matching"
	"github.com/krobus00/matching-engine/internal/util"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const matchingEngineDatabase = "matching_engine"

func StartMatchingEngineGateway(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engineCfg := config.Env.Engine

	db, err := infrastructure.NewPostgresConnection(ctx, config.Env.Database[matchingEngineDatabase])
	util.ContinueOrFatal(err)
	infrastructure.StartPostgresHealthCheck(ctx, db, config.Env.Database[matchingEngineDatabase].PingInterval)

	redisClient, err := infrastructure.NewRedisClient(ctx, config.Env.Redis[matchingEngineDatabase].CacheDSN)
	util.ContinueOrFatal(err)

	nc, js, err := infrastructure.NewJetstream()
	util.ContinueOrFatal(err)

	securityRepo := repository.NewSecurityRepository(db)
	brokerRepo := repository.NewBrokerRepository(db)
	shareholderRepo := repository.NewShareholderRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	lockRepo := repository.NewRedisLockRepository(redisClient)

	registry := matching.NewRegistry()
	err = registry.LoadLedger(ctx, brokerRepo, shareholderRepo)
	util.ContinueOrFatal(err)

	securities, err := securityRepo.GetAll(ctx, engineCfg.Instruments)
	util.ContinueOrFatal(err)

	leaseKeeper := matching.NewLeaseKeeper(lockRepo, engineCfg.LeaseTTL, func(isin string) {
		registry.RemoveSecurity(isin)
	})

	isins := make([]string, 0, len(securities))
	for _, sec := range securities {
		isins = append(isins, sec.ISIN)
	}
	held, err := leaseKeeper.Acquire(ctx, isins)
	util.ContinueOrFatal(err)

	heldSet := make(map[string]struct{}, len(held))
	for _, isin := range held {
		heldSet[isin] = struct{}{}
	}
	for _, sec := range securities {
		if _, ok := heldSet[sec.ISIN]; ok {
			registry.AddSecurity(sec)
		}
	}
	logrus.WithFields(logrus.Fields{
		"owner":       leaseKeeper.Owner(),
		"instruments": held,
	}).Info("instruments hosted")

	sinks := matching.FanoutEventSink{matching.NewJetstreamEventSink(js)}

	var kafkaWriter *kafka.Writer
	if config.Env.Kafka.Enabled {
		kafkaWriter, err = infrastructure.NewKafkaWriter(config.Env.Kafka)
		util.ContinueOrFatal(err)
		sinks = append(sinks, matching.NewKafkaEventSink(kafkaWriter))
	}

	var (
		journalDB *pebble.DB
		journal   *repository.EventJournalRepository
		startSeq  uint64
	)
	if config.Env.Journal.Enabled {
		journalDB, err = infrastructure.NewPebbleDB(config.Env.Journal)
		util.ContinueOrFatal(err)
		journal, err = repository.NewEventJournalRepository(journalDB)
		util.ContinueOrFatal(err)
		startSeq = journal.LastSequence()
		sinks = append(sinks, matching.NewJournalEventSink(journal))
	}

	dispatcher := matching.NewDispatcher(engineCfg.Shards)
	matchingService := matching.NewMatchingService(registry, dispatcher, sinks,
		matching.WithRequestMarker(lockRepo, engineCfg.IdempotencyTTL),
		matching.WithJetstream(js),
		matching.WithDepthLevels(engineCfg.DepthLevels),
		matching.WithStartSequence(startSeq),
	)

	depthHub := wsHandler.NewDepthHub()
	matchingService.AddDepthListener(depthHub)

	publishers := make([]entity.Publisher, 0)
	publishers = append(publishers, matchingService)
	for _, v := range publishers {
		err = v.JetstreamEventInit(ctx)
		util.ContinueOrFatal(err)
	}

	subscribers := make([]entity.Subscriber, 0)
	subscribers = append(subscribers, matchingService)
	for _, v := range subscribers {
		err = v.JetstreamEventSubscribe(ctx)
		util.ContinueOrFatal(err)
	}

	go leaseKeeper.Run(ctx)

	ledgerSyncService := matching.NewLedgerSyncService(registry, brokerRepo, shareholderRepo, engineCfg.LedgerSyncInterval)
	ledgerSyncDone := make(chan struct{})
	go func() {
		defer close(ledgerSyncDone)
		ledgerSyncService.Run(ctx)
	}()

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(grpcHandler.UnaryLoggingInterceptor))
	grpcHandler.RegisterMatchingEngineServer(grpcServer, grpcHandler.NewMatchingGRPCServer(matchingService))
	healthServer := health.NewServer()
	healthServer.SetServingStatus(grpcHandler.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	if config.Env.Env == constant.DevelopmentEnvironment {
		reflection.Register(grpcServer)
	}

	grpcPort := fmt.Sprintf(":%s", config.Env.Port["matching_engine_gateway_grpc"])

	lis, err := net.Listen("tcp", grpcPort)
	util.ContinueOrFatal(err)

	go func() {
		_ = grpcServer.Serve(lis)
	}()
	logrus.Info(fmt.Sprintf("grpc server started on %s", grpcPort))

	router := infrastructure.NewRouter()
	httpHandler.NewMatchingHTTPHandler(matchingService, tradeRepo).Register(router)
	depthHub.Register(router)

	httpPort := fmt.Sprintf(":%s", config.Env.Port["matching_engine_gateway_http"])
	httpServer := infrastructure.NewHTTPServerWithConfig(infrastructure.HTTPServerConfig{
		Addr:            httpPort,
		ShutdownTimeout: config.Env.GracefulShutdownTimeout,
	}, router)

	go func() {
		err := httpServer.Start()
		if err != nil {
			logrus.Error(err)
		}
	}()
	logrus.Info(fmt.Sprintf("http server started on %s", httpPort))

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		// stops intake, drains the shards, then flushes the ledger before the stores go away
		"matching engine": func(ctx context.Context) error {
			healthServer.Shutdown()
			var errs []error
			if err := httpServer.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
			grpcServer.GracefulStop()
			depthHub.Close()
			if err := infrastructure.CloseJetstream(nc); err != nil {
				errs = append(errs, err)
			}
			dispatcher.Close()

			cancel()
			<-ledgerSyncDone

			if err := leaseKeeper.ReleaseAll(context.WithoutCancel(ctx)); err != nil {
				errs = append(errs, err)
			}
			if kafkaWriter != nil {
				if err := kafkaWriter.Close(); err != nil {
					errs = append(errs, err)
				}
			}
			if journal != nil {
				if err := journal.Close(); err != nil {
					errs = append(errs, err)
				}
			}
			if err := redisClient.Close(); err != nil {
				errs = append(errs, err)
			}
			if err := db.Close(); err != nil {
				errs = append(errs, err)
			}
			return errors.Join(errs...)
		},
	})

	<-wait
}
