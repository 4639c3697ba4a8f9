package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/soko/soko-api/internal/config"
	"github.com/soko/soko-api/internal/domain/escrow"
	"github.com/soko/soko-api/internal/domain/notification"
	"github.com/soko/soko-api/internal/domain/order"
	"github.com/soko/soko-api/internal/domain/wallet"
	"github.com/soko/soko-api/internal/pkg/database"
	"github.com/soko/soko-api/internal/pkg/logger"
	"github.com/soko/soko-api/internal/pkg/push"
	"github.com/soko/soko-api/internal/pkg/storage"
)

const (
	releaseBatchSize   = 100
	tokenPurgeInterval = 24 * time.Hour
	tokenMaxAge        = 90 * 24 * time.Hour
)

func main() {
	cfg := config.Load()
	logger.Setup(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
	})

	log.Info().
		Dur("sweep_interval", cfg.SweepInterval).
		Msg("Starting escrow-worker")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redisClient)

	// Events raised here reach API instances through Redis Pub/Sub. The
	// worker holds no websocket sessions, but the hub loop still has to
	// run so its own subscription stays drained.
	hub := notification.NewHub(redisClient)
	go hub.Run()
	defer hub.Shutdown()

	tokenRepo := notification.NewTokenRepository(db)
	var pushClient *push.FCMClient
	if cfg.FCMServerKey != "" {
		pushClient = push.NewFCMClient(push.FCMConfig{
			ServerKey: cfg.FCMServerKey,
			ProjectID: cfg.FCMProjectID,
		})
	}
	dispatcher := notification.NewDispatcher(hub, pushClient, tokenRepo)

	fileStorage, err := storage.NewLocalStorage(cfg.LocalStoragePath, "/files")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create local storage")
	}

	walletRepo := wallet.NewRepository(db, wallet.Defaults{
		Currency:        cfg.DefaultCurrency,
		WithdrawalLimit: cfg.DefaultWithdrawalLimit,
		DailyTxLimit:    cfg.DailyTxLimit,
		MonthlyTxLimit:  cfg.MonthlyTxLimit,
	})
	orderRepo := order.NewRepository(db)
	escrowRepo := escrow.NewRepository(db)
	escrowService := escrow.NewService(escrowRepo, walletRepo, orderRepo,
		fileStorage, dispatcher, cfg.PlatformFeeBps, cfg.ReleaseTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go purgeStaleTokens(ctx, tokenRepo)

	releaseJob := escrow.NewReleaseJob(escrowService, releaseBatchSize)
	go releaseJob.Start(ctx, cfg.SweepInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info().Msg("Shutting down escrow-worker")
	cancel()
}

func purgeStaleTokens(ctx context.Context, tokens *notification.TokenRepository) {
	ticker := time.NewTicker(tokenPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := tokens.PurgeStale(ctx, tokenMaxAge)
			if err != nil {
				log.Error().Err(err).Msg("Failed to purge stale device tokens")
				continue
			}
			if purged > 0 {
				log.Info().Int64("purged", purged).Msg("Purged stale device tokens")
			}
		}
	}
}
