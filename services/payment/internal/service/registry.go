package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/JRebertt/shortcart-v3/pkg/logger"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/gateway"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/manager"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/repository"
)

const DefaultRegistryTTL = 5 * time.Minute

// GatewayBuilder is satisfied by *factory.Factory.
type GatewayBuilder interface {
	CreateGateway(provider domain.Provider, cfg *domain.GatewayConfig) (gateway.Gateway, error)
}

// Managers resolves the gateway manager of an organization.
type Managers interface {
	Manager(ctx context.Context, organizationID string) (*manager.Manager, error)
	Reload(ctx context.Context, organizationID string) (*manager.Manager, error)
}

type cachedManager struct {
	m        *manager.Manager
	loadedAt time.Time
}

// Registry builds one Manager per organization from its persisted gateway
// configurations and caches it for ttl. A rebuild produces a fresh Manager
// that replaces the cached one; callers holding the old one finish on it.
type Registry struct {
	configs     repository.GatewayConfigRepository
	builder     GatewayBuilder
	ttl         time.Duration
	now         func() time.Time
	managerOpts []manager.Option
	logger      *slog.Logger

	mu    sync.RWMutex
	cache map[string]cachedManager
	group singleflight.Group
}

var _ Managers = (*Registry)(nil)

type RegistryOption func(*Registry)

func WithTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithManagerOptions(opts ...manager.Option) RegistryOption {
	return func(r *Registry) { r.managerOpts = append(r.managerOpts, opts...) }
}

func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(configs repository.GatewayConfigRepository, builder GatewayBuilder, logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		configs: configs,
		builder: builder,
		ttl:     DefaultRegistryTTL,
		now:     time.Now,
		logger:  logger,
		cache:   make(map[string]cachedManager),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Manager returns the cached manager, building it on first use or after
// the ttl elapsed. Concurrent misses for one organization share a build.
func (r *Registry) Manager(ctx context.Context, organizationID string) (*manager.Manager, error) {
	r.mu.RLock()
	c, ok := r.cache[organizationID]
	r.mu.RUnlock()
	if ok && r.now().Sub(c.loadedAt) < r.ttl {
		return c.m, nil
	}
	return r.Reload(ctx, organizationID)
}

// Reload rebuilds the organization's manager and swaps it in.
func (r *Registry) Reload(ctx context.Context, organizationID string) (*manager.Manager, error) {
	v, err, _ := r.group.Do(organizationID, func() (any, error) {
		m, err := r.build(ctx, organizationID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[organizationID] = cachedManager{m: m, loadedAt: r.now()}
		r.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*manager.Manager), nil
}

// Invalidate drops the cached manager so the next call rebuilds it.
func (r *Registry) Invalidate(organizationID string) {
	r.mu.Lock()
	delete(r.cache, organizationID)
	r.mu.Unlock()
}

func (r *Registry) build(ctx context.Context, organizationID string) (*manager.Manager, error) {
	configs, err := r.configs.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("load gateway configs: %w", err)
	}

	log := logger.WithContext(ctx, r.logger)
	m := manager.New(append([]manager.Option{manager.WithLogger(r.logger)}, r.managerOpts...)...)
	for i := range configs {
		cfg := &configs[i]
		g, err := r.builder.CreateGateway(cfg.Provider, cfg)
		if err != nil {
			log.Warn("skipping gateway without adapter",
				logger.Provider(string(cfg.Provider)),
				slog.String("gateway_config_id", cfg.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !g.ValidateConfig() {
			log.Warn("skipping gateway with incomplete credentials",
				logger.Provider(string(cfg.Provider)),
				slog.String("gateway_config_id", cfg.ID),
			)
			continue
		}
		m.AddGateway(g, cfg)
	}

	log.Info("gateway manager built",
		slog.Int("configured", len(configs)),
		slog.Int("registered", m.Len()),
	)
	return m, nil
}
