package handler

import (
	"custodial-wallet/internal/adapter/http/middleware"
	redisStore "custodial-wallet/internal/adapter/storage/redis"
	"custodial-wallet/internal/core/domain"
	"custodial-wallet/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	WalletSvc      ports.WalletService
	TransferSvc    ports.TransferService
	DepositSvc     ports.DepositService
	WebhookSvc     ports.ProviderWebhookService
	CredentialSvc  ports.CredentialService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20))

	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	gate := func(perm domain.Permission) gin.HandlerFunc {
		return middleware.RequirePermission(deps.TokenSvc, deps.CredentialSvc, perm, deps.Logger)
	}
	sessionOnly := middleware.SessionOnly(deps.TokenSvc)

	v1 := r.Group("/api/v1")

	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl(middleware.GroupAuth), authHandler.Register)
		auth.POST("/login", rl(middleware.GroupAuth), authHandler.Login)
		auth.GET("/me", sessionOnly, rl(middleware.GroupReads), authHandler.Me)
	}

	walletHandler := NewWalletHandler(deps.WalletSvc, deps.TransferSvc)
	depositHandler := NewDepositHandler(deps.DepositSvc)
	webhookHandler := NewWebhookHandler(deps.WebhookSvc)

	wallet := v1.Group("/wallet")
	{
		// Provider callbacks carry no caller credential, only the body signature.
		wallet.POST("/paystack/webhook", rl(middleware.GroupWebhook), webhookHandler.Paystack)

		wallet.POST("/deposit", gate(domain.PermissionDeposit), rl(middleware.GroupDeposits), depositHandler.Initiate)
		wallet.GET("/deposit/:reference/status", gate(domain.PermissionRead), rl(middleware.GroupReads), depositHandler.Status)
		wallet.GET("/balance", gate(domain.PermissionRead), rl(middleware.GroupReads), walletHandler.GetBalance)
		wallet.GET("/transactions", gate(domain.PermissionRead), rl(middleware.GroupReads), walletHandler.ListTransactions)
		wallet.GET("/summary", gate(domain.PermissionRead), rl(middleware.GroupReads), walletHandler.GetSummary)
		wallet.POST("/transfer", gate(domain.PermissionTransfer), rl(middleware.GroupTransfers), walletHandler.Transfer)
	}

	keyHandler := NewKeyHandler(deps.CredentialSvc)
	keys := v1.Group("/keys", middleware.NoStore(), sessionOnly, rl(middleware.GroupKeys))
	{
		keys.GET("", keyHandler.List)
		keys.POST("/create", keyHandler.Create)
		keys.POST("/revoke", keyHandler.Revoke)
		keys.POST("/rollover", keyHandler.Rollover)
	}

	return r
}
