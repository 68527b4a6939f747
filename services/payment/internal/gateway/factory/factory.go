// Package factory builds configured gateway adapters by provider.
package factory

import (
	"log/slog"
	"slices"

	"github.com/JRebertt/shortcart-v3/pkg/httpclient"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/gateway"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/gateway/mangofy"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/gateway/mercadopago"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/gateway/stripe"
)

// Constructor builds an unconfigured adapter around a transport.
type Constructor func(doer httpclient.Doer, cfg *domain.GatewayConfig, logger *slog.Logger) gateway.Gateway

// Factory maps providers to adapter constructors. Each provider gets its own
// circuit breaker shared by every adapter the factory builds for it.
type Factory struct {
	constructors map[domain.Provider]Constructor
	doers        map[domain.Provider]httpclient.Doer
	logger       *slog.Logger
}

type Config struct {
	HTTP           httpclient.Config
	CircuitBreaker httpclient.CircuitBreakerConfig
}

func DefaultConfig() Config {
	hc := httpclient.DefaultConfig()
	// Charges are not idempotent everywhere; failover replaces retries.
	hc.MaxRetries = 0
	hc.UserAgent = "shortcart-payment/1.0"
	return Config{HTTP: hc, CircuitBreaker: httpclient.DefaultCircuitBreakerConfig("")}
}

// New registers the built-in adapters.
func New(cfg Config, logger *slog.Logger) *Factory {
	base := httpclient.New(cfg.HTTP)
	f := &Factory{
		constructors: make(map[domain.Provider]Constructor),
		doers:        make(map[domain.Provider]httpclient.Doer),
		logger:       logger,
	}
	for p, ctor := range builtins() {
		cb := cfg.CircuitBreaker
		cb.Name = string(p)
		f.Register(p, httpclient.NewCircuitBreakerClient(base, cb, logger), ctor)
	}
	return f
}

// NewWithDoer builds a factory whose adapters all use doer. Used by tests
// and callers that manage their own transport.
func NewWithDoer(doer httpclient.Doer, logger *slog.Logger) *Factory {
	f := &Factory{
		constructors: make(map[domain.Provider]Constructor),
		doers:        make(map[domain.Provider]httpclient.Doer),
		logger:       logger,
	}
	for p, ctor := range builtins() {
		f.Register(p, doer, ctor)
	}
	return f
}

func builtins() map[domain.Provider]Constructor {
	return map[domain.Provider]Constructor{
		domain.ProviderMangofy: func(d httpclient.Doer, cfg *domain.GatewayConfig, l *slog.Logger) gateway.Gateway {
			opts := []mangofy.Option{mangofy.WithLogger(l)}
			if u := settingURL(cfg); u != "" {
				opts = append(opts, mangofy.WithBaseURL(u))
			}
			return mangofy.New(d, opts...)
		},
		domain.ProviderStripe: func(d httpclient.Doer, cfg *domain.GatewayConfig, l *slog.Logger) gateway.Gateway {
			opts := []stripe.Option{stripe.WithLogger(l)}
			if u := settingURL(cfg); u != "" {
				opts = append(opts, stripe.WithBaseURL(u))
			}
			return stripe.New(d, opts...)
		},
		domain.ProviderMercadoPago: func(d httpclient.Doer, _ *domain.GatewayConfig, l *slog.Logger) gateway.Gateway {
			return mercadopago.New(d, mercadopago.WithLogger(l))
		},
	}
}

// settingURL reads the optional baseUrl override from gateway settings.
func settingURL(cfg *domain.GatewayConfig) string {
	if cfg == nil {
		return ""
	}
	return cfg.SettingString("baseUrl")
}

// Register adds or replaces the constructor for p.
func (f *Factory) Register(p domain.Provider, doer httpclient.Doer, ctor Constructor) {
	f.constructors[p] = ctor
	f.doers[p] = doer
}

// CreateGateway builds the adapter for provider and configures it when cfg
// carries credentials.
func (f *Factory) CreateGateway(provider domain.Provider, cfg *domain.GatewayConfig) (gateway.Gateway, error) {
	ctor, ok := f.constructors[provider]
	if !ok {
		if provider.Valid() {
			return nil, gateway.NotImplemented(provider)
		}
		return nil, gateway.UnsupportedProvider(provider)
	}
	g := ctor(f.doers[provider], cfg, f.logger)
	if cfg != nil && cfg.Credentials != nil {
		g.Configure(*cfg.Credentials)
	}
	return g, nil
}

// SupportedProviders lists providers with a registered adapter, sorted.
func (f *Factory) SupportedProviders() []domain.Provider {
	out := make([]domain.Provider, 0, len(f.constructors))
	for p := range f.constructors {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

func (f *Factory) IsSupported(p domain.Provider) bool {
	_, ok := f.constructors[p]
	return ok
}
