package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lovemage/3c-morty-sub000/internal/barcode"
	"github.com/lovemage/3c-morty-sub000/internal/config"
	"github.com/lovemage/3c-morty-sub000/internal/ecpay"
	"github.com/lovemage/3c-morty-sub000/internal/handler"
	"github.com/lovemage/3c-morty-sub000/internal/handler/admin"
	"github.com/lovemage/3c-morty-sub000/internal/middleware"
	"github.com/lovemage/3c-morty-sub000/internal/service"
	"github.com/lovemage/3c-morty-sub000/internal/store"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.Migrate(migrateURL(cfg.DatabaseURL)); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	st := store.NewPostgres(pool)

	builder := ecpay.NewBuilder(
		cfg.MerchantID, cfg.HashKey, cfg.HashIV,
		cfg.ReturnURL(), cfg.PaymentInfoURL(),
		cfg.TradeNoPrefix, cfg.StoreExpireDays,
	)
	processor := ecpay.NewClient(cfg.CheckoutURL, &http.Client{Timeout: cfg.SubmitTimeout})
	formatter := barcode.NewFormatter(cfg.BarcodeImageURL)
	notifier := service.NewNotifier(cfg.NotifyTimeout)

	orderSvc := service.NewOrderService(st, builder, processor,
		service.AmountBounds{Min: cfg.MinOrderAmount, Max: cfg.MaxOrderAmount},
		cfg.CheckoutURL, cfg.SubmitTimeout)
	webhookSvc := service.NewWebhookService(st, formatter, notifier, cfg.MerchantID, cfg.HashKey, cfg.HashIV)
	apiKeySvc := service.NewAPIKeyService(st, cfg.Environment)
	sweeper := service.NewSweeper(st, cfg.SweepInterval)

	googleAuth, err := middleware.NewGoogleAuth(cfg.GoogleClientID, cfg.GoogleAllowedDomain, cfg.GoogleAllowedEmails)
	if err != nil {
		return fmt.Errorf("init admin auth: %w", err)
	}

	router := buildRouter(cfg, st, orderSvc, webhookSvc, apiKeySvc, sweeper, googleAuth)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go sweeper.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Str("environment", cfg.Environment).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildRouter(
	cfg *config.Config,
	st *store.Postgres,
	orderSvc *service.OrderService,
	webhookSvc *service.WebhookService,
	apiKeySvc *service.APIKeyService,
	sweeper *service.Sweeper,
	googleAuth *middleware.GoogleAuth,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Metrics)

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.APIKeyHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Method(http.MethodGet, "/healthz", handler.NewHealthHandler(st, st, version))
	r.Handle("/metrics", promhttp.Handler())

	// Processor callbacks authenticate by signature, not API key.
	webhooks := handler.NewWebhookHandler(webhookSvc)
	r.Post("/callbacks/return", webhooks.Return)
	r.Post("/callbacks/payment-info", webhooks.PaymentInfo)

	// Gateway surface for client systems.
	apiKeyLimiter := middleware.NewAuthAttemptLimiter(10, 5*time.Minute, 15*time.Minute)
	rateLimiter := middleware.NewRateLimiter()
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.AuditLog(st))
		r.Use(middleware.APIKeyAuth(st, apiKeyLimiter))
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
		r.Use(middleware.RequireJSON)

		r.Method(http.MethodPost, "/orders", handler.NewCreateOrderHandler(orderSvc))
		r.Method(http.MethodGet, "/orders/{externalOrderID}", handler.NewOrderStatusHandler(orderSvc))
	})

	// Operator surface.
	adminLimiter := middleware.NewAuthAttemptLimiter(5, 5*time.Minute, 15*time.Minute)
	r.Route("/admin", func(r chi.Router) {
		r.Use(googleAuth.Middleware(adminLimiter))
		r.Use(middleware.RequireJSON)

		r.Method(http.MethodGet, "/api-keys", admin.NewListAPIKeysHandler(st))
		r.Method(http.MethodPost, "/api-keys", admin.NewCreateAPIKeyHandler(apiKeySvc))
		r.Method(http.MethodGet, "/api-keys/{id}", admin.NewGetAPIKeyHandler(st))
		r.Method(http.MethodPatch, "/api-keys/{id}", admin.NewUpdateAPIKeyHandler(apiKeySvc))
		r.Method(http.MethodPost, "/api-keys/{id}/activate", admin.NewActivateAPIKeyHandler(apiKeySvc))
		r.Method(http.MethodPost, "/api-keys/{id}/deactivate", admin.NewDeactivateAPIKeyHandler(apiKeySvc))
		r.Method(http.MethodPost, "/api-keys/{id}/regenerate", admin.NewRegenerateAPIKeyHandler(apiKeySvc))
		r.Method(http.MethodDelete, "/api-keys/{id}", admin.NewDeleteAPIKeyHandler(apiKeySvc))

		r.Method(http.MethodGet, "/orders", admin.NewListOrdersHandler(st))
		r.Method(http.MethodGet, "/orders/{id}", admin.NewGetOrderHandler(st, st))
		r.Method(http.MethodPost, "/orders/{id}/cancel", admin.NewCancelOrderHandler(st))

		r.Method(http.MethodGet, "/call-logs", admin.NewListCallLogsHandler(st))
		r.Method(http.MethodPost, "/sweep", admin.NewSweepHandler(sweeper))
	})

	return r
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if cfg.Environment != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// migrateURL rewrites the connection scheme for golang-migrate's pgx driver.
func migrateURL(databaseURL string) string {
	if strings.HasPrefix(databaseURL, "postgresql://") {
		return "pgx5://" + strings.TrimPrefix(databaseURL, "postgresql://")
	}
	if strings.HasPrefix(databaseURL, "postgres://") {
		return "pgx5://" + strings.TrimPrefix(databaseURL, "postgres://")
	}
	return databaseURL
}
