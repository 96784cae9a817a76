package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"agbado/config"
	"agbado/internal/database"
	"agbado/internal/router"
	"agbado/pkg/logger"
	"agbado/pkg/payment"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	provider, err := buildProvider(&cfg.Provider, log)
	if err != nil {
		log.Fatal("payment provider setup failed", zap.Error(err))
	}
	database.SeedBanks(db, provider, log)

	engine, services := router.Setup(cfg, db, provider, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go services.Reconciler.Run(ctx)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	log.Info("server stopped")
}

func buildProvider(cfg *config.ProviderConfig, log *zap.Logger) (payment.TransferProvider, error) {
	switch cfg.Name {
	case "paystack":
		if cfg.SecretKey == "" {
			return nil, fmt.Errorf("PAYMENT_SECRET_KEY is required for paystack")
		}
		return payment.NewPaystackProvider(cfg.BaseURL, cfg.SecretKey, cfg.PreferredBank, cfg.Timeout, log), nil
	case "monnify":
		if cfg.APIKey == "" || cfg.SecretKey == "" {
			return nil, fmt.Errorf("PAYMENT_API_KEY and PAYMENT_SECRET_KEY are required for monnify")
		}
		return payment.NewMonnifyProvider(cfg.BaseURL, cfg.APIKey, cfg.SecretKey, cfg.ContractCode, cfg.Timeout, log), nil
	case "stub":
		log.Warn("using stub payment provider; no real money moves")
		return payment.NewStubProvider(), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Name)
	}
}
