// Package postgres reads gateway configurations and webhook endpoints from
// the tables maintained by the admin surface.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JRebertt/shortcart-v3/pkg/database"
	apperrors "github.com/JRebertt/shortcart-v3/pkg/errors"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
)

const gatewayConfigColumns = `id, organization_id, provider, name, is_active, priority,
		       supported_methods, settings, credentials, webhook_secret, updated_at`

// credentialsRow is the JSON shape of the credentials column.
type credentialsRow struct {
	APIKey      string             `json:"api_key"`
	SecretKey   string             `json:"secret_key"`
	PublicKey   string             `json:"public_key"`
	Environment domain.Environment `json:"environment"`
	Extra       map[string]string  `json:"extra"`
}

func (c credentialsRow) toDomain() *domain.Credentials {
	return &domain.Credentials{
		APIKey:      c.APIKey,
		SecretKey:   c.SecretKey,
		PublicKey:   c.PublicKey,
		Environment: c.Environment,
		Extra:       c.Extra,
	}
}

// GatewayConfigRepository implements repository.GatewayConfigRepository.
type GatewayConfigRepository struct {
	pool database.DBTX
}

func NewGatewayConfigRepository(pool database.DBTX) *GatewayConfigRepository {
	return &GatewayConfigRepository{pool: pool}
}

func (r *GatewayConfigRepository) ListByOrganization(ctx context.Context, organizationID string) (_ []domain.GatewayConfig, err error) {
	query := `
		SELECT ` + gatewayConfigColumns + `
		FROM gateway_configs
		WHERE organization_id = $1
		ORDER BY priority ASC, created_at ASC`

	ctx, end := database.TraceQuery(ctx, "ListGatewayConfigs", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list gateway configs: %w", err)
	}
	defer rows.Close()

	configs := make([]domain.GatewayConfig, 0)
	for rows.Next() {
		cfg, err := scanGatewayConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gateway config rows: %w", err)
	}
	return configs, nil
}

func (r *GatewayConfigRepository) GetByProvider(ctx context.Context, organizationID string, provider domain.Provider) (_ *domain.GatewayConfig, err error) {
	query := `
		SELECT ` + gatewayConfigColumns + `
		FROM gateway_configs
		WHERE organization_id = $1 AND provider = $2`

	ctx, end := database.TraceQuery(ctx, "GetGatewayConfig", query)
	defer func() { end(err) }()

	cfg, err := scanGatewayConfig(r.pool.QueryRow(ctx, query, organizationID, string(provider)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("gateway config", organizationID+"/"+string(provider))
		}
		return nil, err
	}
	return cfg, nil
}

func scanGatewayConfig(row pgx.Row) (*domain.GatewayConfig, error) {
	var (
		cfg          domain.GatewayConfig
		provider     string
		methods      []string
		settingsJSON []byte
		credsJSON    []byte
		secret       *string
	)
	if err := row.Scan(
		&cfg.ID,
		&cfg.OrganizationID,
		&provider,
		&cfg.Name,
		&cfg.IsActive,
		&cfg.Priority,
		&methods,
		&settingsJSON,
		&credsJSON,
		&secret,
		&cfg.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan gateway config: %w", err)
	}

	cfg.Provider = domain.Provider(provider)
	for _, m := range methods {
		cfg.SupportedMethods = append(cfg.SupportedMethods, domain.PaymentMethod(m))
	}
	if secret != nil {
		cfg.WebhookSecret = *secret
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &cfg.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings of gateway config %s: %w", cfg.ID, err)
		}
	}
	if len(credsJSON) > 0 {
		var creds credentialsRow
		if err := json.Unmarshal(credsJSON, &creds); err != nil {
			return nil, fmt.Errorf("unmarshal credentials of gateway config %s: %w", cfg.ID, err)
		}
		cfg.Credentials = creds.toDomain()
	}
	return &cfg, nil
}
