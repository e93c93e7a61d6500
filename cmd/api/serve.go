package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"custodial-wallet/config"
	httpHandler "custodial-wallet/internal/adapter/http/handler"
	"custodial-wallet/internal/adapter/provider/paystack"
	pgStorage "custodial-wallet/internal/adapter/storage/postgres"
	redisStorage "custodial-wallet/internal/adapter/storage/redis"
	"custodial-wallet/internal/core/ports"
	"custodial-wallet/internal/service"
	"custodial-wallet/pkg/logger"

	"github.com/spf13/cobra"
)

const defaultSpecPath = "docs/api/openapi.yaml"

var (
	serveSpecPath = defaultSpecPath
	serveMigrate  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API with graceful shutdown on SIGINT/SIGTERM.

Examples:
  custodial-wallet serve
  custodial-wallet serve --config ./config/config.yaml --migrate`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveSpecPath, "openapi", defaultSpecPath, "OpenAPI document served at /swagger")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply the embedded schema before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Custodial Wallet")

	ctx := context.Background()

	// PostgreSQL
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	if serveMigrate {
		if err := runMigrations(ctx, pool, log); err != nil {
			return err
		}
	}

	// Redis
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Repositories
	userRepo := pgStorage.NewUserRepo(pool)
	walletRepo := pgStorage.NewWalletRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	apiKeyRepo := pgStorage.NewAPIKeyRepo(pool)
	idempotencyRepo := pgStorage.NewIdempotencyRepo(pool)
	webhookEventRepo := pgStorage.NewWebhookEventRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	processedCache := redisStorage.NewProcessedEventCache(rdb)
	eventLock := redisStorage.NewEventLock(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Crypto helpers
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		return fmt.Errorf("failed to initialize encryption service: %w", err)
	}
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Payment provider
	provider := paystack.NewClient(cfg.Paystack, log)

	// Business services
	auditSvc := service.NewAuditService(auditRepo, log)
	ledgerSvc := service.NewLedgerService(walletRepo, txRepo, log)
	authSvc := service.NewAuthService(userRepo, walletRepo, hashSvc, tokenSvc, transactor, log)
	walletSvc := service.NewWalletService(walletRepo, txRepo)
	transferSvc := service.NewTransferService(
		walletRepo,
		ledgerSvc,
		idempotencyRepo,
		idempotencyCache,
		transactor,
		service.AmountLimits{Min: cfg.Ledger.MinTransferAmount, Max: cfg.Ledger.MaxTransferAmount},
		log,
	)
	depositSvc := service.NewDepositService(
		userRepo,
		walletRepo,
		txRepo,
		ledgerSvc,
		provider,
		transactor,
		service.AmountLimits{Min: cfg.Ledger.MinDepositAmount, Max: cfg.Ledger.MaxDepositAmount},
		cfg.Paystack.CallbackURL,
		log,
	)
	webhookSvc := service.NewProviderWebhookService(
		depositSvc,
		sigSvc,
		encSvc,
		webhookEventRepo,
		processedCache,
		eventLock,
		auditSvc,
		service.WebhookPolicy{
			SecretKey:         cfg.Paystack.SecretKey,
			EventLockTTL:      cfg.Webhook.EventLockTTL,
			ProcessedEventTTL: cfg.Webhook.ProcessedEventTTL,
		},
		log,
	)
	credentialSvc := service.NewCredentialService(
		apiKeyRepo,
		userRepo,
		transactor,
		service.KeyPolicy{
			Prefix:      cfg.APIKey.Prefix,
			RandomBytes: cfg.APIKey.Length,
			MaxActive:   cfg.APIKey.MaxActive,
		},
		log,
	)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile(serveSpecPath); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		WalletSvc:      walletSvc,
		TransferSvc:    transferSvc,
		DepositSvc:     depositSvc,
		WebhookSvc:     webhookSvc,
		CredentialSvc:  credentialSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{
			pgStorage.NewHealthCheck(pool),
			redisStorage.NewHealthCheck(rdb),
		},
		AuditSvc: auditSvc,
		Logger:   log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-quit:
	}
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Pending audit writes finish before the pool closes.
	auditSvc.Wait()

	log.Info().Msg("Server exited")
	return nil
}
