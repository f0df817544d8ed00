package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/custopay/transfer-relay/internal/api"
	"github.com/custopay/transfer-relay/internal/client"
	"github.com/custopay/transfer-relay/internal/config"
	"github.com/custopay/transfer-relay/internal/handler"
	"github.com/custopay/transfer-relay/internal/ledger"
	"github.com/custopay/transfer-relay/internal/model"
	"github.com/custopay/transfer-relay/internal/notify"
	"github.com/custopay/transfer-relay/internal/store"
	"github.com/custopay/transfer-relay/internal/transfer"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	if err := config.Init(); err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}
	cfg := config.Get()

	assets, err := model.ParseAssetRegistry(cfg.Assets)
	if err != nil {
		logger.Fatal("asset registry parse failed", zap.Error(err))
	}

	feePayer, err := transfer.NewFeePayerAccount(cfg.FeePayerPrivateKey)
	if err != nil {
		logger.Fatal("fee payer key load failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer dbpool.Close()

	if err := store.EnsureSchema(ctx, dbpool); err != nil {
		logger.Fatal("schema bootstrap failed", zap.Error(err))
	}

	// Notification delivery is best-effort: a missing broker degrades to a
	// logging fallback instead of blocking money movement.
	var dispatcher notify.Dispatcher
	if cfg.AMQPURL != "" {
		rabbit, err := notify.NewRabbitDispatcher(cfg.AMQPURL, cfg.NotifyExchange, logger)
		if err != nil {
			logger.Warn("rabbitmq unavailable; using fallback dispatcher", zap.Error(err))
			dispatcher = &notify.NopDispatcher{Logger: logger}
		} else {
			dispatcher = rabbit
		}
	} else {
		dispatcher = &notify.NopDispatcher{Logger: logger}
	}
	defer dispatcher.Close()

	chain := client.New(cfg.SolanaRPCURL, logger)
	repo := store.NewPostgresRepository(dbpool)
	ledgerSvc := ledger.NewService(repo, dispatcher, logger)

	oracle := transfer.NewBalanceOracle(chain, feePayer.PublicKey(), cfg.FeeReserveLamports)
	envelopes := transfer.NewEnvelopeRegistry()
	builder := transfer.NewBuilder(chain, oracle, feePayer, ledgerSvc, envelopes, assets, transfer.BuilderConfig{
		MaxAmount:   cfg.MaxTransferAmount,
		EnvelopeTTL: time.Duration(cfg.EnvelopeTTLSeconds) * time.Second,
	}, logger)

	confirmTimeout := time.Duration(cfg.ConfirmTimeoutSeconds) * time.Second
	tracker := transfer.NewTracker(chain, ledgerSvc, confirmTimeout, logger)
	completion := transfer.NewCompletion(chain, ledgerSvc, envelopes, tracker, logger)

	reconciler := transfer.NewReconciler(repo, ledgerSvc, chain, envelopes,
		time.Duration(cfg.ReconcileIntervalSeconds)*time.Second, confirmTimeout,
		time.Duration(cfg.EnvelopeTTLSeconds)*time.Second, logger)
	go reconciler.Run(ctx)

	h := handler.NewTransferHandler(builder, completion, oracle, ledgerSvc)
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.SetupRouter(h),
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
