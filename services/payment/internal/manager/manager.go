// Package manager orchestrates an organization's configured gateways:
// priority selection, failover and health probing.
package manager

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/JRebertt/shortcart-v3/pkg/logger"
	"github.com/JRebertt/shortcart-v3/pkg/tracing"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/gateway"
)

const (
	DefaultHealthTimeout  = gateway.HealthTimeout
	DefaultPaymentTimeout = 30 * time.Second
)

type entry struct {
	gw  gateway.Gateway
	cfg *domain.GatewayConfig
}

// Manager holds provider -> (adapter, config) in insertion order. Reads
// vastly outnumber writes; writes happen when an organization's gateways
// are reconfigured.
type Manager struct {
	mu      sync.RWMutex
	entries []entry
	index   map[domain.Provider]int

	logger         *slog.Logger
	tracer         trace.Tracer
	healthTimeout  time.Duration
	paymentTimeout time.Duration
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithTimeouts overrides the per-probe and per-attempt deadlines. Zero
// values keep the defaults.
func WithTimeouts(health, payment time.Duration) Option {
	return func(m *Manager) {
		if health > 0 {
			m.healthTimeout = health
		}
		if payment > 0 {
			m.paymentTimeout = payment
		}
	}
}

func New(opts ...Option) *Manager {
	m := &Manager{
		index:          make(map[domain.Provider]int),
		logger:         slog.Default(),
		tracer:         tracing.Tracer("payment/manager"),
		healthTimeout:  DefaultHealthTimeout,
		paymentTimeout: DefaultPaymentTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddGateway registers g under its provider. A second add for the same
// provider replaces the first and keeps its position.
func (m *Manager) AddGateway(g gateway.Gateway, cfg *domain.GatewayConfig) {
	if cfg == nil {
		cfg = &domain.GatewayConfig{Provider: g.Provider(), Name: g.Name(), IsActive: true}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e := entry{gw: g, cfg: cfg.Clone()}
	e.cfg.Provider = g.Provider()
	if i, ok := m.index[g.Provider()]; ok {
		m.entries[i] = e
		return
	}
	m.index[g.Provider()] = len(m.entries)
	m.entries = append(m.entries, e)
}

func (m *Manager) RemoveGateway(p domain.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.index[p]
	if !ok {
		return
	}
	m.entries = slices.Delete(m.entries, i, i+1)
	delete(m.index, p)
	for j := i; j < len(m.entries); j++ {
		m.index[m.entries[j].gw.Provider()] = j
	}
}

func (m *Manager) Gateway(p domain.Provider) (gateway.Gateway, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[p]
	if !ok {
		return nil, false
	}
	return m.entries[i].gw, true
}

// Config returns a copy of the provider's configuration.
func (m *Manager) Config(p domain.Provider) (*domain.GatewayConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[p]
	if !ok {
		return nil, false
	}
	return m.entries[i].cfg.Clone(), true
}

// UpdateConfig applies fn to a copy of the provider's configuration and
// swaps it in. It reports whether the provider was registered.
func (m *Manager) UpdateConfig(p domain.Provider, fn func(*domain.GatewayConfig)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[p]
	if !ok {
		return false
	}
	cfg := m.entries[i].cfg.Clone()
	fn(cfg)
	cfg.Provider = p
	m.entries[i].cfg = cfg
	return true
}

func (m *Manager) snapshot() []entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.entries)
}

// ActiveGateways returns active adapters in insertion order.
func (m *Manager) ActiveGateways() []gateway.Gateway {
	var out []gateway.Gateway
	for _, e := range m.snapshot() {
		if e.cfg.IsActive {
			out = append(out, e.gw)
		}
	}
	return out
}

func (m *Manager) byPriority() []entry {
	var active []entry
	for _, e := range m.snapshot() {
		if e.cfg.IsActive {
			active = append(active, e)
		}
	}
	slices.SortStableFunc(active, func(a, b entry) int {
		return cmp.Compare(a.cfg.Priority, b.cfg.Priority)
	})
	return active
}

// GatewaysByPriority returns active adapters by ascending priority. Ties
// keep insertion order.
func (m *Manager) GatewaysByPriority() []gateway.Gateway {
	entries := m.byPriority()
	out := make([]gateway.Gateway, len(entries))
	for i, e := range entries {
		out[i] = e.gw
	}
	return out
}

func (e entry) accepts(method domain.PaymentMethod) bool {
	return e.gw.SupportsMethod(method) && e.cfg.AllowsMethod(method)
}

// ProcessPayment charges through the highest-priority active gateway that
// supports the method. A primary that is unhealthy or fails with a
// retryable error hands over to ProcessPaymentWithFallback once, excluding
// the primary.
func (m *Manager) ProcessPayment(ctx context.Context, req *domain.PaymentRequest) (_ *domain.PaymentResponse, err error) {
	ctx, span := m.tracer.Start(ctx, "manager.ProcessPayment", trace.WithAttributes(
		attribute.String("payment.method", string(req.Method)),
		attribute.String("payment.external_id", req.ExternalID),
		attribute.Int64("payment.amount", req.Amount),
	))
	defer func() { tracing.EndSpan(span, err) }()

	entries := m.byPriority()
	if len(entries) == 0 {
		return nil, ErrNoGatewayConfigured
	}
	idx := slices.IndexFunc(entries, func(e entry) bool { return e.accepts(req.Method) })
	if idx < 0 {
		return nil, ErrUnsupportedMethod
	}
	primary := entries[idx]
	provider := primary.gw.Provider()
	span.SetAttributes(attribute.String("payment.primary", string(provider)))

	if !m.healthy(ctx, primary.gw) {
		m.log(ctx).Warn("primary gateway unhealthy, failing over", logger.Provider(string(provider)))
		failovers.Inc()
		return m.failover(ctx, req, m.candidates(req.Method, provider), []domain.Provider{provider}, ErrGatewayUnhealthy)
	}

	resp, err := m.attempt(ctx, primary.gw, req)
	if err == nil {
		return resp, nil
	}
	if !m.canFailover(ctx, err) {
		return nil, err
	}
	failovers.Inc()
	return m.failover(ctx, req, m.candidates(req.Method, provider), []domain.Provider{provider}, err)
}

// ProcessPaymentWithFallback walks the active, method-compatible gateways
// not in exclude by priority. Unhealthy candidates are skipped. The first
// success returns; at most one gateway is charged per call.
func (m *Manager) ProcessPaymentWithFallback(ctx context.Context, req *domain.PaymentRequest, exclude ...domain.Provider) (_ *domain.PaymentResponse, err error) {
	ctx, span := m.tracer.Start(ctx, "manager.ProcessPaymentWithFallback", trace.WithAttributes(
		attribute.String("payment.method", string(req.Method)),
		attribute.String("payment.external_id", req.ExternalID),
	))
	defer func() { tracing.EndSpan(span, err) }()

	return m.failover(ctx, req, m.candidates(req.Method, exclude...), nil, nil)
}

func (m *Manager) candidates(method domain.PaymentMethod, exclude ...domain.Provider) []gateway.Gateway {
	var out []gateway.Gateway
	for _, e := range m.byPriority() {
		if e.accepts(method) && !slices.Contains(exclude, e.gw.Provider()) {
			out = append(out, e.gw)
		}
	}
	return out
}

func (m *Manager) failover(ctx context.Context, req *domain.PaymentRequest, candidates []gateway.Gateway, attempted []domain.Provider, lastErr error) (*domain.PaymentResponse, error) {
	if len(candidates) == 0 && lastErr == nil {
		return nil, &AllGatewaysFailedError{LastErr: errors.New("no gateway available for this payment")}
	}
	for _, g := range candidates {
		p := g.Provider()
		if !m.healthy(ctx, g) {
			m.log(ctx).Warn("skipping unhealthy gateway", logger.Provider(string(p)))
			attempted = append(attempted, p)
			lastErr = fmt.Errorf("%s: %w", p, ErrGatewayUnhealthy)
			continue
		}

		resp, err := m.attempt(ctx, g, req)
		attempted = append(attempted, p)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !m.canFailover(ctx, err) {
			return nil, err
		}
	}
	return nil, &AllGatewaysFailedError{Attempted: attempted, LastErr: lastErr}
}

// canFailover allows another gateway after transport failures only while
// the caller is still waiting. Rejections are definitive.
func (m *Manager) canFailover(ctx context.Context, err error) bool {
	return ctx.Err() == nil && gateway.IsRetryable(err)
}

func (m *Manager) attempt(ctx context.Context, g gateway.Gateway, req *domain.PaymentRequest) (*domain.PaymentResponse, error) {
	p := string(g.Provider())
	actx, cancel := context.WithTimeout(ctx, m.paymentTimeout)
	defer cancel()

	start := time.Now()
	resp, err := g.CreatePayment(actx, req)
	paymentDuration.WithLabelValues(p).Observe(time.Since(start).Seconds())

	if err != nil {
		paymentAttempts.WithLabelValues(p, gateway.KindOf(err).String()).Inc()
		m.log(ctx).Error("payment attempt failed",
			logger.Provider(p),
			slog.String("external_id", req.ExternalID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	paymentAttempts.WithLabelValues(p, "success").Inc()
	if resp.Provider == "" {
		resp.Provider = g.Provider()
	}
	m.log(ctx).Info("payment created",
		logger.Provider(p),
		slog.String("external_id", req.ExternalID),
		slog.String("payment_id", resp.ID),
		slog.String("status", string(resp.Status)),
	)
	return resp, nil
}

func (m *Manager) healthy(ctx context.Context, g gateway.Gateway) bool {
	ctx, cancel := context.WithTimeout(ctx, m.healthTimeout)
	defer cancel()
	ok := probe(ctx, g)
	gatewayHealthy.WithLabelValues(string(g.Provider())).Set(boolToFloat(ok))
	return ok
}

// probe runs IsHealthy so that a panic or a probe ignoring ctx still
// yields false once ctx is done.
func probe(ctx context.Context, g gateway.Gateway) bool {
	done := make(chan bool, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- false
			}
		}()
		done <- g.IsHealthy(ctx)
	}()
	select {
	case ok := <-done:
		return ok && ctx.Err() == nil
	case <-ctx.Done():
		return false
	}
}

// CheckGatewaysHealth probes every registered gateway concurrently, each
// under its own timeout. A slow or panicking probe only affects its own
// entry.
func (m *Manager) CheckGatewaysHealth(ctx context.Context) map[domain.Provider]bool {
	ctx, span := m.tracer.Start(ctx, "manager.CheckGatewaysHealth")
	defer span.End()

	entries := m.snapshot()
	result := make(map[domain.Provider]bool, len(entries))
	var mu sync.Mutex

	var g errgroup.Group
	for _, e := range entries {
		g.Go(func() error {
			ok := m.healthy(ctx, e.gw)
			mu.Lock()
			result[e.gw.Provider()] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return result
}

// GatewayStat describes one registered gateway.
type GatewayStat struct {
	Provider         domain.Provider        `json:"provider"`
	Name             string                 `json:"name"`
	IsActive         bool                   `json:"is_active"`
	Priority         int                    `json:"priority"`
	SupportedMethods []domain.PaymentMethod `json:"supported_methods"`
}

// Stats lists registered gateways in insertion order.
func (m *Manager) Stats() []GatewayStat {
	entries := m.snapshot()
	out := make([]GatewayStat, len(entries))
	for i, e := range entries {
		methods := e.gw.SupportedMethods()
		if len(e.cfg.SupportedMethods) > 0 {
			methods = slices.DeleteFunc(methods, func(pm domain.PaymentMethod) bool { return !e.cfg.AllowsMethod(pm) })
		}
		out[i] = GatewayStat{
			Provider:         e.gw.Provider(),
			Name:             e.gw.Name(),
			IsActive:         e.cfg.IsActive,
			Priority:         e.cfg.Priority,
			SupportedMethods: methods,
		}
	}
	return out
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Manager) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, m.logger)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
