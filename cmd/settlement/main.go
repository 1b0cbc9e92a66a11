package main

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-seller-settlement/internal/config"
	"github.com/ariefcatur/go-seller-settlement/internal/events"
	kafkax "github.com/ariefcatur/go-seller-settlement/internal/kafka"
	"github.com/ariefcatur/go-seller-settlement/internal/ledger"
	"github.com/ariefcatur/go-seller-settlement/internal/logger"
	"github.com/ariefcatur/go-seller-settlement/internal/metrics"
	"github.com/ariefcatur/go-seller-settlement/internal/notify"
	"github.com/ariefcatur/go-seller-settlement/internal/orders"
	"github.com/ariefcatur/go-seller-settlement/internal/postgres"
	"github.com/ariefcatur/go-seller-settlement/internal/redisx"
	"github.com/ariefcatur/go-seller-settlement/internal/settlement"
	"github.com/ariefcatur/go-seller-settlement/internal/store/pgstore"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"os"
	"os/signal"
	"syscall"
)

// The settlement worker credits seller earnings for every fulfilled
// sub-order published by the api.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("settlement worker exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		return err
	}
	defer db.Close()
	st := pgstore.New(db)

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prodCtx, cancelProd := context.WithCancel(context.Background())
	defer cancelProd()
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(prodCtx)
	defer prod.WaitClosed()
	defer prod.Close()
	n := &notify.Kafka{Producer: prod, Log: log}

	m := metrics.New(prometheus.DefaultRegisterer, "settlement")
	producer := cfg.ServiceName + "-settlement"

	w := &settlement.Worker{
		Ledger: ledger.NewService(st, n, log, m, ledger.Config{
			MaxRetries:  cfg.LedgerMaxRetries,
			BaseBackoff: cfg.LedgerBaseBackoff,
			MaxBackoff:  cfg.LedgerMaxBackoff,
			Producer:    producer,
		}),
		Orders: orders.NewService(st, redisx.NewViewCache(rdb), n, log, producer),
		Dedup:  redisx.NewDedup(rdb, cfg.SettlementGroup),
		Log:    log,
	}

	topic := events.TopicFor(events.EventSubOrderFulfilled)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.SettlementGroup, topic, cfg.SettlementWorkers, log)
	log.Info("settlement consumer started",
		zap.String("group", cfg.SettlementGroup),
		zap.String("topic", topic),
		zap.Int("workers", cfg.SettlementWorkers))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := cons.Start(gctx, w.Handle)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		log.Info("settlement sweeper started",
			zap.Duration("interval", cfg.SettlementSweepInterval),
			zap.Duration("grace", cfg.SettlementSweepGrace))
		return w.RunSweeper(gctx, cfg.SettlementSweepInterval, cfg.SettlementSweepGrace)
	})
	err = g.Wait()
	log.Info("shutting down consumer")
	return err
}
