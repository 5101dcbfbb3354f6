package main

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/redis/go-redis/v9"

	storefront "github.com/dj-pizzaria/storefront"
	"github.com/dj-pizzaria/storefront/internal/api"
	"github.com/dj-pizzaria/storefront/internal/api/handlers"
	"github.com/dj-pizzaria/storefront/internal/auth"
	"github.com/dj-pizzaria/storefront/internal/config"
	"github.com/dj-pizzaria/storefront/internal/idempotency"
	"github.com/dj-pizzaria/storefront/internal/payment"
	"github.com/dj-pizzaria/storefront/internal/repository"
	"github.com/dj-pizzaria/storefront/internal/service"
	"github.com/dj-pizzaria/storefront/pkg/db"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	conn, err := db.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	migrationsFS, err := fs.Sub(storefront.MigrationsFS, "migrations")
	if err != nil {
		slog.Error("failed to load embedded migrations", "error", err)
		os.Exit(1)
	}
	if err := db.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	// repos & services
	voucherRepo := repository.NewVoucherRepo(conn)
	orderRepo := repository.NewOrderRepo(conn)
	userRepo := repository.NewUserRepo(conn)

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	intents := payment.NewStripeClient(cfg.StripeSecretKey, cfg.StripePublishableKey)
	idem := idempotency.NewRedisStore(redisClient, cfg.IdempotencyTTL)

	voucherService := service.NewVoucherService(voucherRepo, cfg.StoreTimeout)
	orderService := service.NewOrderService(
		orderRepo, voucherService, idem, intents,
		cfg.Currency, cfg.StoreTimeout, cfg.PaymentTimeout,
	)
	authService := service.NewAuthService(userRepo, voucherService, tokens, cfg.StoreTimeout)

	handler := api.NewRouter(api.Deps{
		Tokens:   tokens,
		Auth:     handlers.NewAuthHandler(authService),
		Vouchers: handlers.NewVoucherHandler(voucherService),
		Orders:   handlers.NewOrderHandler(orderService, cfg.StripePublishableKey),
		Payments: handlers.NewPaymentHandler(intents, cfg.StripePublishableKey, cfg.Currency, cfg.PaymentTimeout),
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// graceful shutdown
	idleConnsClosed := make(chan struct{})
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		<-c
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("HTTP server shutdown", "error", err)
		}
		close(idleConnsClosed)
	}()

	slog.Info("starting storefront backend", "addr", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("listen", "error", err)
		os.Exit(1)
	}

	<-idleConnsClosed
	slog.Info("server stopped")
}
