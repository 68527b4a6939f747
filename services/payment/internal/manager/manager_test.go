package manager

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/gateway"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/gateway/mock"
)

// --- Helpers ---

func newTestManager() *Manager {
	l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(WithLogger(l), WithTimeouts(200*time.Millisecond, time.Second))
}

func cfg(p domain.Provider, priority int) *domain.GatewayConfig {
	return &domain.GatewayConfig{Provider: p, Name: string(p), IsActive: true, Priority: priority}
}

func pixRequest() *domain.PaymentRequest {
	return &domain.PaymentRequest{ExternalID: "order-1", Amount: 5990, Currency: "BRL", Method: domain.MethodPIX}
}

func failing(g *mock.Gateway, err error) *mock.Gateway {
	g.OnCreate = func(context.Context, *domain.PaymentRequest) (*domain.PaymentResponse, error) {
		return nil, err
	}
	return g
}

func transportErr(p domain.Provider) error {
	return gateway.Transport(p, errors.New("connection reset"))
}

type slowGateway struct{ *mock.Gateway }

func (s slowGateway) IsHealthy(ctx context.Context) bool {
	<-ctx.Done()
	return true
}

type panickyGateway struct{ *mock.Gateway }

func (panickyGateway) IsHealthy(context.Context) bool { panic("probe exploded") }

// --- Arena ---

func TestGatewaysByPriority_StableOrdering(t *testing.T) {
	m := newTestManager()
	m.AddGateway(mock.New(domain.ProviderStripe), cfg(domain.ProviderStripe, 2))
	m.AddGateway(mock.New(domain.ProviderMangofy), cfg(domain.ProviderMangofy, 1))
	m.AddGateway(mock.New(domain.ProviderMercadoPago), cfg(domain.ProviderMercadoPago, 2))
	m.AddGateway(mock.New(domain.ProviderAsaas), cfg(domain.ProviderAsaas, 1))

	var got []domain.Provider
	for _, g := range m.GatewaysByPriority() {
		got = append(got, g.Provider())
	}
	assert.Equal(t, []domain.Provider{
		domain.ProviderMangofy, domain.ProviderAsaas, domain.ProviderStripe, domain.ProviderMercadoPago,
	}, got)
}

func TestGatewaysByPriority_ExtremeValues(t *testing.T) {
	m := newTestManager()
	m.AddGateway(mock.New(domain.ProviderStripe), cfg(domain.ProviderStripe, 1))
	m.AddGateway(mock.New(domain.ProviderMangofy), cfg(domain.ProviderMangofy, math.MinInt))
	m.AddGateway(mock.New(domain.ProviderMercadoPago), cfg(domain.ProviderMercadoPago, math.MaxInt))

	var got []domain.Provider
	for _, g := range m.GatewaysByPriority() {
		got = append(got, g.Provider())
	}
	assert.Equal(t, []domain.Provider{
		domain.ProviderMangofy, domain.ProviderStripe, domain.ProviderMercadoPago,
	}, got)
}

func TestGatewaysByPriority_SkipsInactive(t *testing.T) {
	m := newTestManager()
	inactive := cfg(domain.ProviderStripe, 0)
	inactive.IsActive = false
	m.AddGateway(mock.New(domain.ProviderStripe), inactive)
	m.AddGateway(mock.New(domain.ProviderMangofy), cfg(domain.ProviderMangofy, 5))

	require.Len(t, m.GatewaysByPriority(), 1)
	assert.Len(t, m.ActiveGateways(), 1)
	assert.Equal(t, 2, m.Len())
}

func TestAddGateway_LastWriteWinsKeepsPosition(t *testing.T) {
	m := newTestManager()
	first := mock.New(domain.ProviderStripe)
	m.AddGateway(first, cfg(domain.ProviderStripe, 1))
	m.AddGateway(mock.New(domain.ProviderMangofy), cfg(domain.ProviderMangofy, 1))
	replacement := mock.New(domain.ProviderStripe)
	m.AddGateway(replacement, cfg(domain.ProviderStripe, 1))

	g, ok := m.Gateway(domain.ProviderStripe)
	require.True(t, ok)
	assert.Same(t, replacement, g)
	assert.Equal(t, domain.ProviderStripe, m.GatewaysByPriority()[0].Provider())
}

func TestRemoveGateway(t *testing.T) {
	m := newTestManager()
	m.AddGateway(mock.New(domain.ProviderStripe), cfg(domain.ProviderStripe, 1))
	m.AddGateway(mock.New(domain.ProviderMangofy), cfg(domain.ProviderMangofy, 2))
	m.AddGateway(mock.New(domain.ProviderMercadoPago), cfg(domain.ProviderMercadoPago, 3))

	m.RemoveGateway(domain.ProviderStripe)
	m.RemoveGateway("unknown")

	_, ok := m.Gateway(domain.ProviderStripe)
	assert.False(t, ok)
	g, ok := m.Gateway(domain.ProviderMercadoPago)
	require.True(t, ok)
	assert.Equal(t, domain.ProviderMercadoPago, g.Provider())
	assert.Equal(t, 2, m.Len())
}

func TestConfigAndUpdateConfig(t *testing.T) {
	m := newTestManager()
	m.AddGateway(mock.New(domain.ProviderStripe), cfg(domain.ProviderStripe, 1))

	c, ok := m.Config(domain.ProviderStripe)
	require.True(t, ok)
	c.Priority = 99
	again, _ := m.Config(domain.ProviderStripe)
	assert.Equal(t, 1, again.Priority, "Config returns a copy")

	assert.True(t, m.UpdateConfig(domain.ProviderStripe, func(c *domain.GatewayConfig) {
		c.IsActive = false
		c.Priority = 7
	}))
	assert.False(t, m.UpdateConfig(domain.ProviderAsaas, func(*domain.GatewayConfig) {}))

	stats := m.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, GatewayStat{
		Provider:         domain.ProviderStripe,
		Name:             "mock stripe",
		IsActive:         false,
		Priority:         7,
		SupportedMethods: domain.PaymentMethods(),
	}, stats[0])
}

func TestStats_AppliesAllowList(t *testing.T) {
	m := newTestManager()
	c := cfg(domain.ProviderStripe, 1)
	c.SupportedMethods = []domain.PaymentMethod{domain.MethodPIX}
	m.AddGateway(mock.New(domain.ProviderStripe), c)

	assert.Equal(t, []domain.PaymentMethod{domain.MethodPIX}, m.Stats()[0].SupportedMethods)
}

// --- ProcessPayment ---

func TestProcessPayment_NoGateways(t *testing.T) {
	_, err := newTestManager().ProcessPayment(context.Background(), pixRequest())
	assert.ErrorIs(t, err, ErrNoGatewayConfigured)
}

func TestProcessPayment_NoGatewaySupportsMethod(t *testing.T) {
	m := newTestManager()
	m.AddGateway(mock.New(domain.ProviderStripe, domain.MethodCreditCard), cfg(domain.ProviderStripe, 1))

	_, err := m.ProcessPayment(context.Background(), pixRequest())
	assert.ErrorIs(t, err, ErrUnsupportedMethod)
	assert.ErrorIs(t, err, gateway.ErrUnsupportedMethod)
}

func TestProcessPayment_PrimarySucceeds(t *testing.T) {
	m := newTestManager()
	primary := mock.New(domain.ProviderMangofy)
	secondary := mock.New(domain.ProviderStripe)
	m.AddGateway(secondary, cfg(domain.ProviderStripe, 2))
	m.AddGateway(primary, cfg(domain.ProviderMangofy, 1))

	resp, err := m.ProcessPayment(context.Background(), pixRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderMangofy, resp.Provider)
	assert.Equal(t, 1, primary.Creates())
	assert.Zero(t, secondary.Creates())
}

func TestProcessPayment_SkipsPrimaryWithoutMethod(t *testing.T) {
	m := newTestManager()
	cardOnly := mock.New(domain.ProviderStripe, domain.MethodCreditCard)
	pix := mock.New(domain.ProviderMangofy, domain.MethodPIX)
	m.AddGateway(cardOnly, cfg(domain.ProviderStripe, 1))
	m.AddGateway(pix, cfg(domain.ProviderMangofy, 2))

	resp, err := m.ProcessPayment(context.Background(), pixRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderMangofy, resp.Provider)
	assert.Zero(t, cardOnly.Creates())
}

func TestProcessPayment_ConfigAllowListRestrictsMethods(t *testing.T) {
	m := newTestManager()
	restricted := cfg(domain.ProviderStripe, 1)
	restricted.SupportedMethods = []domain.PaymentMethod{domain.MethodCreditCard}
	stripe := mock.New(domain.ProviderStripe)
	m.AddGateway(stripe, restricted)
	m.AddGateway(mock.New(domain.ProviderMangofy), cfg(domain.ProviderMangofy, 2))

	resp, err := m.ProcessPayment(context.Background(), pixRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderMangofy, resp.Provider)
	assert.Zero(t, stripe.Creates())
}

func TestProcessPayment_UnhealthyPrimaryNeverCharged(t *testing.T) {
	m := newTestManager()
	primary := mock.New(domain.ProviderMangofy, domain.MethodPIX)
	primary.Healthy.Store(false)
	secondary := mock.New(domain.ProviderStripe, domain.MethodPIX)
	m.AddGateway(primary, cfg(domain.ProviderMangofy, 1))
	m.AddGateway(secondary, cfg(domain.ProviderStripe, 2))

	resp, err := m.ProcessPayment(context.Background(), pixRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderStripe, resp.Provider)
	assert.Zero(t, primary.Creates())
	assert.Equal(t, 1, secondary.Creates())
}

func TestProcessPayment_TransportFailureFailsOverOnce(t *testing.T) {
	m := newTestManager()
	primary := failing(mock.New(domain.ProviderMangofy), transportErr(domain.ProviderMangofy))
	secondary := mock.New(domain.ProviderStripe)
	third := mock.New(domain.ProviderMercadoPago)
	m.AddGateway(primary, cfg(domain.ProviderMangofy, 1))
	m.AddGateway(secondary, cfg(domain.ProviderStripe, 2))
	m.AddGateway(third, cfg(domain.ProviderMercadoPago, 3))

	resp, err := m.ProcessPayment(context.Background(), pixRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderStripe, resp.Provider)
	assert.Equal(t, 1, primary.Creates(), "failed primary is not retried")
	assert.Equal(t, 1, secondary.Creates())
	assert.Zero(t, third.Creates(), "at most one successful charge")
}

func TestProcessPayment_RejectionIsNotFailedOver(t *testing.T) {
	m := newTestManager()
	primary := failing(mock.New(domain.ProviderMangofy), gateway.Rejected(domain.ProviderMangofy, 422, "invalid document"))
	secondary := mock.New(domain.ProviderStripe)
	m.AddGateway(primary, cfg(domain.ProviderMangofy, 1))
	m.AddGateway(secondary, cfg(domain.ProviderStripe, 2))

	_, err := m.ProcessPayment(context.Background(), pixRequest())
	assert.ErrorIs(t, err, gateway.ErrProviderRejected)
	assert.Zero(t, secondary.Creates())
}

func TestProcessPayment_AllFail(t *testing.T) {
	m := newTestManager()
	a := failing(mock.New(domain.ProviderMangofy), transportErr(domain.ProviderMangofy))
	b := failing(mock.New(domain.ProviderStripe), transportErr(domain.ProviderStripe))
	c := failing(mock.New(domain.ProviderMercadoPago), transportErr(domain.ProviderMercadoPago))
	m.AddGateway(a, cfg(domain.ProviderMangofy, 1))
	m.AddGateway(b, cfg(domain.ProviderStripe, 2))
	m.AddGateway(c, cfg(domain.ProviderMercadoPago, 3))

	_, err := m.ProcessPayment(context.Background(), pixRequest())
	var all *AllGatewaysFailedError
	require.ErrorAs(t, err, &all)
	assert.Equal(t, []domain.Provider{domain.ProviderMangofy, domain.ProviderStripe, domain.ProviderMercadoPago}, all.Attempted)
	assert.ErrorIs(t, all.LastErr, gateway.ErrTransport)
	assert.Contains(t, all.LastErr.Error(), "mercado_pago")
	for _, g := range []*mock.Gateway{a, b, c} {
		assert.Equal(t, 1, g.Creates())
	}
}

func TestProcessPayment_SingleFailingGateway(t *testing.T) {
	m := newTestManager()
	only := failing(mock.New(domain.ProviderMangofy), transportErr(domain.ProviderMangofy))
	m.AddGateway(only, cfg(domain.ProviderMangofy, 1))

	_, err := m.ProcessPayment(context.Background(), pixRequest())
	var all *AllGatewaysFailedError
	require.ErrorAs(t, err, &all)
	assert.Equal(t, []domain.Provider{domain.ProviderMangofy}, all.Attempted)
	assert.Equal(t, 1, only.Creates())
}

func TestProcessPayment_CallerCancellationStopsFailover(t *testing.T) {
	m := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	primary := mock.New(domain.ProviderMangofy)
	primary.OnCreate = func(context.Context, *domain.PaymentRequest) (*domain.PaymentResponse, error) {
		cancel()
		return nil, gateway.Transport(domain.ProviderMangofy, context.Canceled)
	}
	secondary := mock.New(domain.ProviderStripe)
	m.AddGateway(primary, cfg(domain.ProviderMangofy, 1))
	m.AddGateway(secondary, cfg(domain.ProviderStripe, 2))

	_, err := m.ProcessPayment(ctx, pixRequest())
	assert.ErrorIs(t, err, gateway.ErrTransport)
	assert.Zero(t, secondary.Creates())
}

// --- ProcessPaymentWithFallback ---

func TestProcessPaymentWithFallback_CallCounts(t *testing.T) {
	m := newTestManager()
	a := failing(mock.New(domain.ProviderMangofy), transportErr(domain.ProviderMangofy))
	b := failing(mock.New(domain.ProviderStripe), transportErr(domain.ProviderStripe))
	c := mock.New(domain.ProviderMercadoPago)
	d := mock.New(domain.ProviderAsaas)
	m.AddGateway(a, cfg(domain.ProviderMangofy, 1))
	m.AddGateway(b, cfg(domain.ProviderStripe, 2))
	m.AddGateway(c, cfg(domain.ProviderMercadoPago, 3))
	m.AddGateway(d, cfg(domain.ProviderAsaas, 4))

	resp, err := m.ProcessPaymentWithFallback(context.Background(), pixRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderMercadoPago, resp.Provider)
	total := a.Creates() + b.Creates() + c.Creates() + d.Creates()
	assert.Equal(t, 3, total, "two failures plus one success")
	assert.Zero(t, d.Creates())
}

func TestProcessPaymentWithFallback_Excludes(t *testing.T) {
	m := newTestManager()
	a := mock.New(domain.ProviderMangofy)
	b := mock.New(domain.ProviderStripe)
	m.AddGateway(a, cfg(domain.ProviderMangofy, 1))
	m.AddGateway(b, cfg(domain.ProviderStripe, 2))

	resp, err := m.ProcessPaymentWithFallback(context.Background(), pixRequest(), domain.ProviderMangofy)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderStripe, resp.Provider)
	assert.Zero(t, a.Creates())
}

func TestProcessPaymentWithFallback_NoCandidates(t *testing.T) {
	m := newTestManager()
	m.AddGateway(mock.New(domain.ProviderMangofy), cfg(domain.ProviderMangofy, 1))

	_, err := m.ProcessPaymentWithFallback(context.Background(), pixRequest(), domain.ProviderMangofy)
	var all *AllGatewaysFailedError
	require.ErrorAs(t, err, &all)
	assert.Empty(t, all.Attempted)
}

func TestProcessPaymentWithFallback_AllUnhealthy(t *testing.T) {
	m := newTestManager()
	a := mock.New(domain.ProviderMangofy)
	a.Healthy.Store(false)
	m.AddGateway(a, cfg(domain.ProviderMangofy, 1))

	_, err := m.ProcessPaymentWithFallback(context.Background(), pixRequest())
	assert.ErrorIs(t, err, ErrGatewayUnhealthy)
	assert.Zero(t, a.Creates())
}

// --- Health ---

func TestCheckGatewaysHealth_IsolatesSlowAndPanickingProbes(t *testing.T) {
	m := newTestManager()
	down := mock.New(domain.ProviderStripe)
	down.Healthy.Store(false)
	m.AddGateway(mock.New(domain.ProviderMangofy), nil)
	m.AddGateway(down, nil)
	m.AddGateway(slowGateway{mock.New(domain.ProviderMercadoPago)}, nil)
	m.AddGateway(panickyGateway{mock.New(domain.ProviderAsaas)}, nil)

	start := time.Now()
	got := m.CheckGatewaysHealth(context.Background())

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, map[domain.Provider]bool{
		domain.ProviderMangofy:     true,
		domain.ProviderStripe:      false,
		domain.ProviderMercadoPago: false,
		domain.ProviderAsaas:       false,
	}, got)
}

func TestAllGatewaysFailedError_Message(t *testing.T) {
	err := &AllGatewaysFailedError{
		Attempted: []domain.Provider{domain.ProviderStripe},
		LastErr:   errors.New("timeout"),
	}
	assert.Equal(t, "all payment gateways failed [stripe]: timeout", err.Error())
	assert.ErrorContains(t, err, "timeout")
}
