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

	"go.uber.org/zap"

	"github.com/clearbrook/storefront/internal/di"
	"github.com/clearbrook/storefront/internal/handlers"
	"github.com/clearbrook/storefront/internal/payments"
	"github.com/clearbrook/storefront/internal/platform/auth"
	"github.com/clearbrook/storefront/internal/platform/config"
	"github.com/clearbrook/storefront/internal/platform/idempotency"
	"github.com/clearbrook/storefront/internal/platform/observability"
	"github.com/clearbrook/storefront/internal/repositories/postgres"
	"github.com/clearbrook/storefront/internal/services"
)

const version = "1.0.0"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	registry, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer func() {
		if err := registry.Close(context.Background()); err != nil {
			logger.Warn("database close error", zap.Error(err))
		}
	}()

	gateway, err := payments.NewPayPalGateway(payments.PayPalConfig{
		ClientID:   cfg.PayPal.ClientID,
		Secret:     cfg.PayPal.Secret,
		BaseURL:    cfg.PayPal.BaseURL,
		WebhookID:  cfg.PayPal.WebhookID,
		HTTPClient: &http.Client{Timeout: cfg.PayPal.Timeout},
		Logger:     payments.GatewayLogger(observability.NewEventLogger(logger.Named("paypal"))),
	})
	if err != nil {
		logger.Fatal("failed to initialise payment gateway", zap.Error(err))
	}

	eventStore := idempotency.NewPostgresStore(registry.DB())

	container, err := di.NewContainer(di.ContainerDeps{
		Config:       cfg,
		Repositories: registry,
		Gateway:      gateway,
		EventStore:   eventStore,
		Logger:       logger,
		Build: services.BuildInfo{
			Version:     version,
			Environment: cfg.Security.Environment,
			StartedAt:   startedAt,
		},
	})
	if err != nil {
		logger.Fatal("failed to assemble services", zap.Error(err))
	}

	authn := newAuthenticator(cfg, logger)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(container.Services.System)),
		handlers.WithProductRoutes(handlers.NewCatalogHandlers(container.Services.Catalog).Routes),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(authn, container.Services.Identity, container.Services.Orders).Routes),
		handlers.WithAdminRoutes(handlers.NewAdminHandlers(authn, container.Services.Identity, container.Services.Catalog, container.Services.Orders).Routes),
		handlers.WithWebhookRoutes(handlers.NewWebhookHandlers(container.Services.Webhooks).Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runEventCleanup(shutdownCtx, logger, container.Services.Webhooks, cfg.Webhooks)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logger.Warn("graceful shutdown failed", zap.Error(err))
		}
	}
}

func newAuthenticator(cfg config.Config, logger *zap.Logger) *auth.Authenticator {
	adapter := observability.NewPrintfAdapter(logger.Named("jwks"))
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(adapter))
	verifier := auth.NewOIDCVerifier(cache, cfg.Security.OIDC.Audience, cfg.Security.OIDC.Issuers)
	return auth.NewAuthenticator(verifier)
}

// runEventCleanup periodically drops webhook event reservations past their
// retention window so the dedup table does not grow without bound.
func runEventCleanup(ctx context.Context, logger *zap.Logger, webhooks services.WebhookService, cfg config.WebhookConfig) {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		return
	}
	batch := cfg.CleanupBatchSize
	if batch <= 0 {
		batch = 200
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := webhooks.CleanupExpired(ctx, batch)
			if err != nil {
				logger.Warn("webhook event cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("webhook events expired", zap.Int("removed", removed))
			}
		}
	}
}
