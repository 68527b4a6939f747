// Package mock provides an in-memory Gateway for development and tests.
package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/gateway"
)

// Gateway approves every payment unless one of the hooks says otherwise.
type Gateway struct {
	gateway.Base

	// OnCreate replaces the default approving behavior when set.
	OnCreate func(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResponse, error)
	// Healthy is reported by IsHealthy. Defaults to true.
	Healthy atomic.Bool
	// FeeBasisPoints is the percentage fee CalculateFees applies.
	FeeBasisPoints int64

	creates atomic.Int32
	mu      sync.Mutex
	status  map[string]*domain.PaymentResponse
}

var _ gateway.Gateway = (*Gateway)(nil)

// New returns a configured mock for provider supporting methods. With no
// methods every payment method is supported.
func New(provider domain.Provider, methods ...domain.PaymentMethod) *Gateway {
	if len(methods) == 0 {
		methods = domain.PaymentMethods()
	}
	g := &Gateway{
		Base:           gateway.NewBase(provider, "mock "+string(provider), false, methods...),
		FeeBasisPoints: 100,
		status:         make(map[string]*domain.PaymentResponse),
	}
	g.Healthy.Store(true)
	g.Configure(domain.Credentials{APIKey: "mock", Environment: domain.EnvSandbox})
	return g
}

// Creates is the number of CreatePayment calls so far.
func (g *Gateway) Creates() int { return int(g.creates.Load()) }

func (g *Gateway) IsHealthy(context.Context) bool { return g.Healthy.Load() }

func (g *Gateway) CreatePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResponse, error) {
	g.creates.Add(1)
	if err := g.CheckRequest(req); err != nil {
		return nil, err
	}
	if g.OnCreate != nil {
		return g.OnCreate(ctx, req)
	}

	id := "mock_pay_" + uuid.NewString()
	resp := &domain.PaymentResponse{
		ID:               id,
		ExternalID:       req.ExternalID,
		Status:           domain.StatusApproved,
		Amount:           req.Amount,
		Currency:         req.Currency,
		Method:           req.Method,
		Provider:         g.Provider(),
		GatewayPaymentID: id,
		Fees:             domain.NewFees(g.CalculateFees(req.Amount, req.Method), 0),
	}
	g.mu.Lock()
	g.status[id] = resp
	g.mu.Unlock()
	return resp, nil
}

func (g *Gateway) GetPaymentStatus(_ context.Context, id string) (*domain.PaymentResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	resp, ok := g.status[id]
	if !ok {
		return nil, gateway.Rejected(g.Provider(), 404, "payment not found")
	}
	cp := *resp
	return &cp, nil
}

func (g *Gateway) CancelPayment(_ context.Context, id string) bool {
	return g.setStatus(id, domain.StatusCancelled)
}

func (g *Gateway) RefundPayment(_ context.Context, id string, _ int64) bool {
	return g.setStatus(id, domain.StatusRefunded)
}

func (g *Gateway) setStatus(id string, s domain.PaymentStatus) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	resp, ok := g.status[id]
	if !ok || !resp.Status.CanTransitionTo(s) {
		return false
	}
	resp.Status = s
	return true
}

func (g *Gateway) ValidateWebhook(payload []byte, signature, secret string) bool {
	return gateway.VerifyHMAC(payload, signature, secret)
}

// ParseWebhook accepts the normalized WebhookData shape.
func (g *Gateway) ParseWebhook(payload []byte) (*domain.WebhookData, error) {
	return gateway.DecodeWebhookData(g.Provider(), payload)
}

func (g *Gateway) CalculateFees(amount int64, _ domain.PaymentMethod) int64 {
	return gateway.PercentFee(amount, g.FeeBasisPoints)
}

func (g *Gateway) PaymentLimits(domain.PaymentMethod) domain.PaymentLimits {
	return domain.PaymentLimits{Min: 1, Max: 1 << 40}
}
