package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JRebertt/shortcart-v3/pkg/database"
	apperrors "github.com/JRebertt/shortcart-v3/pkg/errors"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
)

var gatewayConfigCols = []string{
	"id", "organization_id", "provider", "name", "is_active", "priority",
	"supported_methods", "settings", "credentials", "webhook_secret", "updated_at",
}

var endpointCols = []string{"id", "organization_id", "url", "secret", "events", "is_active"}

func strPtr(s string) *string { return &s }

var updatedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func gatewayRow(rows *pgxmock.Rows, id string, provider domain.Provider, priority int, secret *string) *pgxmock.Rows {
	return rows.AddRow(
		id, "org-1", string(provider), "Primary "+string(provider), true, priority,
		[]string{"pix", "credit_card"},
		[]byte(`{"baseUrl":"https://sandbox.example.com","timeout":30}`),
		[]byte(`{"api_key":"sk_test_1234567890","secret_key":"store-9","environment":"sandbox","extra":{"account":"acct_1"}}`),
		secret,
		updatedAt,
	)
}

func TestGatewayConfigRepository_ListByOrganization(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows(gatewayConfigCols)
	gatewayRow(rows, "gw-1", domain.ProviderMangofy, 1, strPtr("whsec"))
	gatewayRow(rows, "gw-2", domain.ProviderStripe, 2, nil)
	mock.ExpectQuery("SELECT .+ FROM gateway_configs").
		WithArgs("org-1").
		WillReturnRows(rows)

	repo := NewGatewayConfigRepository(mock)
	configs, err := repo.ListByOrganization(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, configs, 2)

	first := configs[0]
	assert.Equal(t, "gw-1", first.ID)
	assert.Equal(t, domain.ProviderMangofy, first.Provider)
	assert.True(t, first.IsActive)
	assert.Equal(t, 1, first.Priority)
	assert.Equal(t, []domain.PaymentMethod{domain.MethodPIX, domain.MethodCreditCard}, first.SupportedMethods)
	assert.Equal(t, "https://sandbox.example.com", first.SettingString("baseUrl"))
	assert.Equal(t, "whsec", first.WebhookSecret)
	require.NotNil(t, first.Credentials)
	assert.Equal(t, "sk_test_1234567890", first.Credentials.APIKey)
	assert.Equal(t, "store-9", first.Credentials.SecretKey)
	assert.Equal(t, domain.EnvSandbox, first.Credentials.Environment)
	assert.Equal(t, "acct_1", first.Credentials.Extra["account"])
	assert.Equal(t, updatedAt, first.UpdatedAt)

	assert.Empty(t, configs[1].WebhookSecret)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGatewayConfigRepository_ListByOrganization_Empty(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM gateway_configs").
		WithArgs("org-empty").
		WillReturnRows(pgxmock.NewRows(gatewayConfigCols))

	configs, err := NewGatewayConfigRepository(mock).ListByOrganization(context.Background(), "org-empty")
	require.NoError(t, err)
	assert.NotNil(t, configs)
	assert.Empty(t, configs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGatewayConfigRepository_ListByOrganization_QueryError(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM gateway_configs").
		WithArgs("org-1").
		WillReturnError(errors.New("connection refused"))

	_, err = NewGatewayConfigRepository(mock).ListByOrganization(context.Background(), "org-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list gateway configs")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGatewayConfigRepository_ListByOrganization_BadSettings(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows(gatewayConfigCols).AddRow(
		"gw-1", "org-1", "stripe", "Stripe", true, 1,
		[]string{}, []byte(`{not json`), []byte(`{}`), (*string)(nil), updatedAt,
	)
	mock.ExpectQuery("SELECT .+ FROM gateway_configs").WithArgs("org-1").WillReturnRows(rows)

	_, err = NewGatewayConfigRepository(mock).ListByOrganization(context.Background(), "org-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal settings")
}

func TestGatewayConfigRepository_GetByProvider(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows(gatewayConfigCols)
	gatewayRow(rows, "gw-1", domain.ProviderStripe, 1, strPtr("whsec_stripe"))
	mock.ExpectQuery("SELECT .+ FROM gateway_configs").
		WithArgs("org-1", "stripe").
		WillReturnRows(rows)

	cfg, err := NewGatewayConfigRepository(mock).GetByProvider(context.Background(), "org-1", domain.ProviderStripe)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderStripe, cfg.Provider)
	assert.Equal(t, "whsec_stripe", cfg.WebhookSecret)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGatewayConfigRepository_GetByProvider_NotFound(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM gateway_configs").
		WithArgs("org-1", "asaas").
		WillReturnRows(pgxmock.NewRows(gatewayConfigCols))

	_, err = NewGatewayConfigRepository(mock).GetByProvider(context.Background(), "org-1", domain.ProviderAsaas)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookEndpointRepository_ListActiveByOrganization(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows(endpointCols).
		AddRow("ep-1", "org-1", "https://merchant.example.com/hooks", strPtr("s3cret"), []string{"payment.approved"}, true).
		AddRow("ep-2", "org-1", "https://audit.example.com/hooks", (*string)(nil), []string{}, true)
	mock.ExpectQuery("SELECT .+ FROM webhook_endpoints").
		WithArgs("org-1").
		WillReturnRows(rows)

	endpoints, err := NewWebhookEndpointRepository(mock).ListActiveByOrganization(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, endpoints, 2)

	assert.Equal(t, "s3cret", endpoints[0].Secret)
	assert.True(t, endpoints[0].Subscribes(domain.EventPaymentApproved))
	assert.False(t, endpoints[0].Subscribes(domain.EventPaymentRejected))

	assert.Empty(t, endpoints[1].Secret)
	assert.True(t, endpoints[1].Subscribes(domain.EventPaymentRefunded))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookEndpointRepository_QueryError(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM webhook_endpoints").
		WithArgs("org-1").
		WillReturnError(errors.New("timeout"))

	_, err = NewWebhookEndpointRepository(mock).ListActiveByOrganization(context.Background(), "org-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list webhook endpoints")
}
