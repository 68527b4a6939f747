package postgres

import (
	"context"
	"fmt"

	"github.com/JRebertt/shortcart-v3/pkg/database"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
)

// WebhookEndpointRepository implements repository.WebhookEndpointRepository.
type WebhookEndpointRepository struct {
	pool database.DBTX
}

func NewWebhookEndpointRepository(pool database.DBTX) *WebhookEndpointRepository {
	return &WebhookEndpointRepository{pool: pool}
}

func (r *WebhookEndpointRepository) ListActiveByOrganization(ctx context.Context, organizationID string) (_ []domain.WebhookEndpoint, err error) {
	query := `
		SELECT id, organization_id, url, secret, events, is_active
		FROM webhook_endpoints
		WHERE organization_id = $1 AND is_active = true
		ORDER BY created_at ASC`

	ctx, end := database.TraceQuery(ctx, "ListWebhookEndpoints", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list webhook endpoints: %w", err)
	}
	defer rows.Close()

	endpoints := make([]domain.WebhookEndpoint, 0)
	for rows.Next() {
		var (
			ep     domain.WebhookEndpoint
			secret *string
			events []string
		)
		if err := rows.Scan(&ep.ID, &ep.OrganizationID, &ep.URL, &secret, &events, &ep.IsActive); err != nil {
			return nil, fmt.Errorf("scan webhook endpoint: %w", err)
		}
		if secret != nil {
			ep.Secret = *secret
		}
		for _, e := range events {
			ep.Events = append(ep.Events, domain.WebhookEvent(e))
		}
		endpoints = append(endpoints, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook endpoint rows: %w", err)
	}
	return endpoints, nil
}
