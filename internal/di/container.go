package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clearbrook/storefront/internal/payments"
	"github.com/clearbrook/storefront/internal/platform/config"
	"github.com/clearbrook/storefront/internal/platform/idempotency"
	"github.com/clearbrook/storefront/internal/platform/observability"
	"github.com/clearbrook/storefront/internal/repositories"
	"github.com/clearbrook/storefront/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Identity services.IdentityService
	Catalog  services.CatalogService
	Orders   services.OrderService
	Webhooks services.WebhookService
	System   services.SystemService
}

// ContainerDeps carries the externally constructed collaborators.
type ContainerDeps struct {
	Config       config.Config
	Repositories repositories.Registry
	Gateway      payments.Gateway
	EventStore   idempotency.Store
	Logger       *zap.Logger
	Clock        func() time.Time
	Build        services.BuildInfo
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Gateway      payments.Gateway
	EventStore   idempotency.Store
	Services     Services
}

// NewContainer assembles the service layer from its dependencies. Tests can
// supply in-memory registries and stub gateways through the same path.
func NewContainer(deps ContainerDeps) (*Container, error) {
	if deps.Repositories == nil {
		return nil, errors.New("di: repositories registry is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("di: payment gateway is required")
	}
	if deps.EventStore == nil {
		return nil, errors.New("di: webhook event store is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	var events observability.EventLogger
	if deps.Logger != nil {
		events = observability.NewEventLogger(deps.Logger)
	}

	svc, err := buildServices(deps, clock, events)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       deps.Config,
		Repositories: deps.Repositories,
		Gateway:      deps.Gateway,
		EventStore:   deps.EventStore,
		Services:     svc,
	}, nil
}

// Close releases repository clients and pooled connections.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(deps ContainerDeps, clock func() time.Time, events observability.EventLogger) (Services, error) {
	var svc Services
	reg := deps.Repositories

	identity, err := services.NewIdentityService(services.IdentityServiceDeps{
		Users: reg.Users(),
		Clock: clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("di: build identity service: %w", err)
	}
	svc.Identity = identity

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Catalog:    reg.Catalog(),
		UnitOfWork: reg,
		Clock:      clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("di: build catalog service: %w", err)
	}
	svc.Catalog = catalog

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:  reg.Orders(),
		Catalog: reg.Catalog(),
		Gateway: deps.Gateway,
		Events:  events,
		Clock:   clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("di: build order service: %w", err)
	}
	svc.Orders = orders

	webhooks, err := services.NewWebhookService(services.WebhookServiceDeps{
		Orders:    reg.Orders(),
		Gateway:   deps.Gateway,
		Events:    deps.EventStore,
		Log:       events,
		Clock:     clock,
		ClockSkew: deps.Config.Webhooks.ClockSkew,
		EventTTL:  deps.Config.Webhooks.EventTTL,
	})
	if err != nil {
		return Services{}, fmt.Errorf("di: build webhook service: %w", err)
	}
	svc.Webhooks = webhooks

	if healthRepo := reg.Health(); healthRepo != nil {
		system, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            deps.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("di: build system service: %w", err)
		}
		svc.System = system
	}

	return svc, nil
}
