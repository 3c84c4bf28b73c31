// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resource-marketplace/internal/config"
	"resource-marketplace/internal/domain/ports/adapter"
	"resource-marketplace/internal/infra/api"
	cat "resource-marketplace/internal/infra/catalog"
	pg "resource-marketplace/internal/infra/db/postgres"
	"resource-marketplace/internal/infra/logging"
	"resource-marketplace/internal/infra/mail"
	"resource-marketplace/internal/infra/metrics"
	pay "resource-marketplace/internal/infra/payment"
	red "resource-marketplace/internal/infra/redis"
	"resource-marketplace/internal/infra/security"
	"resource-marketplace/internal/infra/storage"
	"resource-marketplace/internal/infra/token"
	"resource-marketplace/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed sampling)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	paymentRepo := pg.NewPaymentRepo(pool)
	eventRepo := pg.NewPaymentEventRepo(pool)
	purchaseRepo := pg.NewPurchaseRepo(pool)
	methodRepo := pg.NewPaymentMethodRepo(pool)
	settingsRepo := pg.NewSettingsRepo(pool)
	notifiedRepo := pg.NewNotificationLogRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Outbound adapters ----
	gateway := pay.NewPaylinkGateway(&http.Client{Timeout: cfg.Gateway.Timeout})
	resources := cat.NewResourceClient(cfg.Catalog.BaseURL, cfg.Catalog.APIKey)
	users := cat.NewDirectoryClient(cfg.Catalog.BaseURL, cfg.Catalog.APIKey)
	tokenIssuer := token.NewIssuer(cfg.Security.DownloadTokenSecret)
	keygen := security.NewLicenseKeygen(cfg.Security.LicenseSecret)

	var notifier adapter.Notifier
	if cfg.Mail.Endpoint != "" {
		notifier = mail.NewHTTPMailer(cfg.Mail.Endpoint, cfg.Mail.APIKey, cfg.Mail.From)
	} else {
		logger.Warn().Msg("mail.endpoint not set; entitlement mail disabled")
		notifier = mail.NewNoopNotifier(logger)
	}

	files, err := storage.NewLocalStore(cfg.Storage.Dir)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	// ---- Use cases ----
	callbackURL := cfg.Server.BaseURL + "/api/v1/payments/callback"
	checkoutUC := usecase.NewCheckoutUseCase(
		paymentRepo, eventRepo, purchaseRepo, methodRepo, settingsRepo,
		resources, users, gateway,
		callbackURL, cfg.Gateway.Timeout, logger,
	)
	entitleUC := usecase.NewEntitlementUseCase(
		purchaseRepo, notifiedRepo, users, resources,
		keygen, tokenIssuer, notifier,
		cfg.Server.BaseURL, cfg.Security.DownloadTokenTTL, logger,
	)
	reconcileUC := usecase.NewReconcileUseCase(
		paymentRepo, eventRepo, purchaseRepo, settingsRepo,
		gateway, entitleUC, txManager, locker,
		callbackURL, cfg.Gateway.Timeout, cfg.Gateway.StalePendingAfter, logger,
	)
	downloadUC := usecase.NewDownloadUseCase(purchaseRepo, resources, tokenIssuer, logger)
	methodUC := usecase.NewPaymentMethodUseCase(methodRepo)

	// ---- Metrics ----
	metrics.MustRegister()

	// ---- HTTP server ----
	srv := api.NewServer(checkoutUC, reconcileUC, entitleUC, downloadUC, methodUC, files, settingsRepo, rateLimiter, cfg, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}
