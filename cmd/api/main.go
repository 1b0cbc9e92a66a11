package main

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-seller-settlement/internal/checkout"
	"github.com/ariefcatur/go-seller-settlement/internal/config"
	"github.com/ariefcatur/go-seller-settlement/internal/coupon"
	"github.com/ariefcatur/go-seller-settlement/internal/credit"
	"github.com/ariefcatur/go-seller-settlement/internal/httpx"
	kafkax "github.com/ariefcatur/go-seller-settlement/internal/kafka"
	"github.com/ariefcatur/go-seller-settlement/internal/ledger"
	"github.com/ariefcatur/go-seller-settlement/internal/logger"
	"github.com/ariefcatur/go-seller-settlement/internal/metrics"
	"github.com/ariefcatur/go-seller-settlement/internal/money"
	"github.com/ariefcatur/go-seller-settlement/internal/notify"
	"github.com/ariefcatur/go-seller-settlement/internal/orders"
	"github.com/ariefcatur/go-seller-settlement/internal/postgres"
	"github.com/ariefcatur/go-seller-settlement/internal/redisx"
	"github.com/ariefcatur/go-seller-settlement/internal/sequencer"
	"github.com/ariefcatur/go-seller-settlement/internal/settlement"
	"github.com/ariefcatur/go-seller-settlement/internal/stock"
	"github.com/ariefcatur/go-seller-settlement/internal/store/pgstore"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("api exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}
	st := pgstore.New(db)

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		// idempotency keys and the view cache degrade; checkout keeps working
		log.Warn("redis unreachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	// Kafka producer
	prodCtx, cancelProd := context.WithCancel(context.Background())
	defer cancelProd()
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(prodCtx)
	n := &notify.Kafka{Producer: prod, Log: log}

	m := metrics.New(prometheus.DefaultRegisterer, "api")
	coupons := coupon.NewEngine()

	checkoutSvc := checkout.NewService(st, sequencer.New(st, log, m), coupons, stock.NewLedger(), n, log, m, checkout.Config{
		TaxRateBps:   cfg.TaxRateBps,
		ShippingCost: money.Cents(cfg.ShippingCostCents),
		Timeout:      cfg.SettlementTimeout,
		Producer:     cfg.ServiceName,
	})
	ordersSvc := orders.NewService(st, redisx.NewViewCache(rdb), n, log, cfg.ServiceName)
	ledgerSvc := ledger.NewService(st, n, log, m, ledger.Config{
		MaxRetries:  cfg.LedgerMaxRetries,
		BaseBackoff: cfg.LedgerBaseBackoff,
		MaxBackoff:  cfg.LedgerMaxBackoff,
		Producer:    cfg.ServiceName,
	})
	refunds := &settlement.Worker{Ledger: ledgerSvc, Orders: ordersSvc, Log: log}
	creditSvc := credit.NewService(st, coupons, n, log, cfg.ServiceName)

	router := httpx.NewRouter(httpx.Handlers{
		Orders: &httpx.OrdersHandler{Checkout: checkoutSvc, Orders: ordersSvc, Idem: redisx.NewIdempotency(rdb), Log: log},
		Ledger: &httpx.LedgerHandler{Ledger: ledgerSvc, Refunds: refunds, Log: log},
		Credit: &httpx.CreditHandler{Credit: creditSvc, Log: log},
	}, httpx.NewAuthenticator(cfg.JWTSecret), m, log)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// flush events only after in-flight requests have emitted theirs
		prod.Close()
		cancelProd()
		prod.WaitClosed()
		return err
	})
	return g.Wait()
}
