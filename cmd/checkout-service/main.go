package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/config"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/db"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/eventstore"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/handler"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/metrics"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/payment"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/transport"
)

func setupLogger(cfg config.AppConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if !cfg.LogJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", "checkout-service").Logger()
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg.App)

	log.Info().Msg("Checkout service starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pg.Close()

	if err := db.Migrate(pg.Pool, cfg.Postgres.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	var provider payment.Provider
	if cfg.Stripe.Enabled() {
		provider = payment.NewStripeProvider(payment.StripeOptions{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			Timeout:       cfg.Stripe.ProviderTimeout,
		})
		if cfg.Stripe.WebhookSecret == "" {
			log.Warn().Msg("STRIPE_WEBHOOK_SECRET is not set; webhook deliveries will be rejected")
		}
	} else {
		log.Warn().Msg("STRIPE_SECRET_KEY is not set; checkout and webhook endpoints are disabled")
	}

	var events eventstore.Store = eventstore.Noop{}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close redis client")
			}
		}()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis is unreachable; webhook replays fall back to the database check")
		}
		events = eventstore.NewRedisStore(rdb)
	}

	if cfg.Auth.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is not set; all bearer tokens will be rejected")
	}

	srvMetrics := metrics.NewServerMetrics("checkout_service")

	orderRepository := order.NewRepository(pg.Pool)
	pricer := order.NewPricer(catalog.NewRepository(pg.Pool))
	orderSvc := order.NewService(orderRepository, pricer, provider, events, order.Options{
		Currency:    cfg.Stripe.Currency,
		FrontendURL: cfg.Stripe.FrontendURL,
	})
	orderHandler := handler.NewOrderHandler(orderSvc, srvMetrics)

	router := transport.NewRouter(transport.RouterConfig{
		Orders:    orderHandler,
		Metrics:   srvMetrics,
		JWTSecret: cfg.Auth.JWTSecret,
		DB:        pg.Pool,
	})

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Stripe.ProviderTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
