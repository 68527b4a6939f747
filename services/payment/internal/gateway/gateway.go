// Package gateway defines the contract every payment provider adapter
// implements, the error taxonomy adapters report through, and the helpers
// they share.
package gateway

import (
	"context"
	"time"

	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
)

// HealthTimeout bounds a single IsHealthy probe.
const HealthTimeout = 5 * time.Second

// Gateway is the uniform interface over a payment provider.
//
// Implementations are safe for concurrent use once Configure has returned.
type Gateway interface {
	Provider() domain.Provider
	Name() string

	// Configure stores credentials. It performs no I/O.
	Configure(creds domain.Credentials)
	IsConfigured() bool
	// ValidateConfig reports whether the stored credentials are complete.
	ValidateConfig() bool

	// IsHealthy probes the provider within HealthTimeout. Failures and
	// timeouts are reported as false.
	IsHealthy(ctx context.Context) bool

	SupportedMethods() []domain.PaymentMethod
	SupportsMethod(m domain.PaymentMethod) bool

	CreatePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResponse, error)
	GetPaymentStatus(ctx context.Context, paymentID string) (*domain.PaymentResponse, error)
	// CancelPayment and RefundPayment report provider acceptance. Transport
	// failures are reported as false.
	CancelPayment(ctx context.Context, paymentID string) bool
	// RefundPayment refunds amount minor units, or the full amount when
	// amount is 0.
	RefundPayment(ctx context.Context, paymentID string, amount int64) bool

	ValidateWebhook(payload []byte, signature, secret string) bool
	// ParseWebhook normalizes a verified callback. Adapters whose callbacks
	// do not carry a status also implement WebhookResolver.
	ParseWebhook(payload []byte) (*domain.WebhookData, error)

	CalculateFees(amount int64, m domain.PaymentMethod) int64
	PaymentLimits(m domain.PaymentMethod) domain.PaymentLimits
}

// WebhookResolver parses a callback that only names the payment and looks
// its current state up, so the result always carries a canonical status.
type WebhookResolver interface {
	ResolveWebhook(ctx context.Context, payload []byte) (*domain.WebhookData, error)
}

// Base carries the credential bookkeeping shared by adapters.
type Base struct {
	provider    domain.Provider
	name        string
	methods     []domain.PaymentMethod
	creds       domain.Credentials
	configured  bool
	needsSecret bool
}

func NewBase(provider domain.Provider, name string, needsSecret bool, methods ...domain.PaymentMethod) Base {
	return Base{provider: provider, name: name, methods: methods, needsSecret: needsSecret}
}

func (b *Base) Provider() domain.Provider { return b.provider }
func (b *Base) Name() string              { return b.name }

func (b *Base) Configure(creds domain.Credentials) {
	b.creds = creds
	b.configured = true
}

func (b *Base) IsConfigured() bool { return b.configured }

// Credentials returns the stored credentials.
func (b *Base) Credentials() domain.Credentials { return b.creds }

func (b *Base) ValidateConfig() bool {
	if !b.configured || b.creds.APIKey == "" {
		return false
	}
	return !b.needsSecret || b.creds.SecretKey != ""
}

func (b *Base) SupportedMethods() []domain.PaymentMethod {
	out := make([]domain.PaymentMethod, len(b.methods))
	copy(out, b.methods)
	return out
}

func (b *Base) SupportsMethod(m domain.PaymentMethod) bool {
	for _, s := range b.methods {
		if s == m {
			return true
		}
	}
	return false
}

// CheckRequest runs the checks every CreatePayment performs before any I/O.
func (b *Base) CheckRequest(req *domain.PaymentRequest) error {
	if !b.configured {
		return NotConfigured(b.provider)
	}
	if !b.SupportsMethod(req.Method) {
		return UnsupportedMethod(b.provider, req.Method)
	}
	return nil
}

// PercentFee returns amount*basisPoints/10000 rounded half up.
func PercentFee(amount, basisPoints int64) int64 {
	return (amount*basisPoints + 5000) / 10000
}
