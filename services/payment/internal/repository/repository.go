package repository

import (
	"context"

	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
)

// GatewayConfigRepository reads the gateway configurations owned by the
// admin surface. This service never writes them.
type GatewayConfigRepository interface {
	// ListByOrganization returns every configuration of the organization,
	// active or not, ordered by priority.
	ListByOrganization(ctx context.Context, organizationID string) ([]domain.GatewayConfig, error)

	// GetByProvider returns the organization's configuration of one provider.
	GetByProvider(ctx context.Context, organizationID string, provider domain.Provider) (*domain.GatewayConfig, error)
}

// WebhookEndpointRepository reads the outbound notification subscribers.
type WebhookEndpointRepository interface {
	ListActiveByOrganization(ctx context.Context, organizationID string) ([]domain.WebhookEndpoint, error)
}

// StatusStore remembers the last status announced per provider payment so
// replayed or out-of-order callbacks do not move a payment backwards.
type StatusStore interface {
	Get(ctx context.Context, provider domain.Provider, paymentID string) (domain.PaymentStatus, bool, error)

	// Set records status unconditionally.
	Set(ctx context.Context, provider domain.Provider, paymentID string, status domain.PaymentStatus) error

	// Advance records next if the stored status is absent or may transition
	// to it. It returns the previous status and whether next was applied.
	Advance(ctx context.Context, provider domain.Provider, paymentID string, next domain.PaymentStatus) (domain.PaymentStatus, bool, error)
}
