package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"agbado/config"
	"agbado/internal/handler"
	"agbado/internal/middleware"
	"agbado/internal/repository"
	"agbado/internal/service"
	"agbado/pkg/payment"
)

// Setup wires repositories, services, and handlers onto a gin engine. The
// returned services bundle exposes what main needs for background work.
type Services struct {
	Withdrawals *service.WithdrawalService
	Reconciler  *service.Reconciler
}

func Setup(cfg *config.Config, db *gorm.DB, provider payment.TransferProvider, log *zap.Logger) (*gin.Engine, *Services) {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimit(middleware.NewRateLimiter(100, 60*time.Second)))

	// Repositories
	userRepo := repository.NewUserRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	withdrawalRepo := repository.NewWithdrawalRepository(db)
	txnRepo := repository.NewTransactionRepository(db)
	bankRepo := repository.NewBankRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Services
	notifSvc := service.NewNotificationService(notificationRepo, log)
	walletSvc := service.NewWalletService(walletRepo, provider, log)
	authSvc := service.NewAuthService(userRepo, walletSvc, &cfg.JWT, log)
	withdrawalSvc := service.NewWithdrawalService(walletRepo, withdrawalRepo, bankRepo, provider, notifSvc, log)
	reconciler := service.NewReconciler(withdrawalRepo, withdrawalSvc,
		cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, log)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc, log)
	walletHandler := handler.NewWalletHandler(walletSvc, userRepo, txnRepo, log)
	txnHandler := handler.NewTransactionHandler(txnRepo, log)
	withdrawalHandler := handler.NewWithdrawalHandler(withdrawalSvc, withdrawalRepo, log)
	bankHandler := handler.NewBankHandler(bankRepo, log)
	notificationHandler := handler.NewNotificationHandler(notifSvc, log)
	webhookHandler := handler.NewWebhookHandler(provider, withdrawalSvc, walletRepo, notifSvc, log)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
		}

		// Webhooks authenticate by signature, not bearer token.
		v1.POST("/webhooks/payment", webhookHandler.Receive)

		protected := v1.Group("")
		protected.Use(middleware.AuthRequired(&cfg.JWT))
		// Tighter per-user budget on authenticated routes so one account
		// cannot spread load across addresses.
		protected.Use(middleware.RateLimitByUser(middleware.NewRateLimiter(30, 60*time.Second)))
		{
			protected.GET("/wallet", walletHandler.Get)
			protected.GET("/wallet/banks", bankHandler.List)
			protected.GET("/transactions", txnHandler.List)
			protected.GET("/transactions/:id", txnHandler.Detail)
			protected.POST("/withdrawals", withdrawalHandler.Create)
			protected.GET("/withdrawals", withdrawalHandler.List)
			protected.GET("/withdrawals/:id", withdrawalHandler.Detail)
			protected.GET("/notifications", notificationHandler.List)
			protected.POST("/notifications/:id/read", notificationHandler.MarkRead)
		}
	}

	return r, &Services{Withdrawals: withdrawalSvc, Reconciler: reconciler}
}
