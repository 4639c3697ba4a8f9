package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/soko/soko-api/internal/config"
	"github.com/soko/soko-api/internal/domain/escrow"
	"github.com/soko/soko-api/internal/domain/notification"
	"github.com/soko/soko-api/internal/domain/order"
	"github.com/soko/soko-api/internal/domain/wallet"
	"github.com/soko/soko-api/internal/middleware"
	"github.com/soko/soko-api/internal/pkg/database"
	"github.com/soko/soko-api/internal/pkg/jwt"
	"github.com/soko/soko-api/internal/pkg/logger"
	"github.com/soko/soko-api/internal/pkg/pin"
	"github.com/soko/soko-api/internal/pkg/push"
	pkgresponse "github.com/soko/soko-api/internal/pkg/response"
	"github.com/soko/soko-api/internal/pkg/storage"
)

func main() {
	cfg := config.Load()
	logger.Setup(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
	})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting Soko API")

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

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	// ---------- Evidence storage ----------
	var fileStorage storage.Storage
	if cfg.R2AccountID != "" {
		fileStorage, err = storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create R2 storage")
		}
	} else {
		fileStorage, err = storage.NewLocalStorage(cfg.LocalStoragePath, "/files")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create local storage")
		}
		log.Warn().Msg("R2 not configured, using local file storage")
	}

	// ---------- Notifications ----------
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

	// ---------- Wallet ----------
	walletRepo := wallet.NewRepository(db, wallet.Defaults{
		Currency:        cfg.DefaultCurrency,
		WithdrawalLimit: cfg.DefaultWithdrawalLimit,
		DailyTxLimit:    cfg.DailyTxLimit,
		MonthlyTxLimit:  cfg.MonthlyTxLimit,
	})
	gateway := &wallet.SimulatedGateway{
		Delay:       cfg.SettlementDelay,
		FailureRate: cfg.SettlementFailureRate,
	}
	settler := wallet.NewSettler(walletRepo, gateway, dispatcher, cfg.SettlementWorkers)
	settler.Start()
	defer settler.Stop()

	pinLimiter := pin.NewAttemptLimiter(redisClient, cfg.PINMaxAttempts, cfg.PINAttemptWindow)
	walletService := wallet.NewService(walletRepo, settler, pinLimiter, dispatcher)

	// ---------- Orders ----------
	orderRepo := order.NewRepository(db)
	orderService := order.NewService(orderRepo)

	// ---------- Escrow ----------
	escrowRepo := escrow.NewRepository(db)
	escrowService := escrow.NewService(escrowRepo, walletRepo, orderRepo,
		fileStorage, dispatcher, cfg.PlatformFeeBps, cfg.ReleaseTimeout)

	// ---------- Handlers ----------
	walletHandler := wallet.NewHandler(walletService)
	orderHandler := order.NewHandler(orderService)
	escrowHandler := escrow.NewHandler(escrowService)
	notificationHandler := notification.NewHandler(hub, tokenRepo, cfg.AllowedOrigins)

	authMiddleware := middleware.Auth(jwtService)
	adminMiddleware := middleware.RequireAdmin()

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	// WebSocket endpoint (before Compress)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		authMiddleware(http.HandlerFunc(notificationHandler.WebSocket)).ServeHTTP(w, r)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Compress(5))

		r.Mount("/wallet", walletHandler.Routes(authMiddleware, adminMiddleware))
		r.Mount("/orders", orderHandler.Routes(authMiddleware))
		r.Mount("/escrows", escrowHandler.Routes(authMiddleware, adminMiddleware))
		r.Mount("/notifications", notificationHandler.Routes(authMiddleware))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}
