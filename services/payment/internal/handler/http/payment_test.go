package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/JRebertt/shortcart-v3/pkg/errors"
	"github.com/JRebertt/shortcart-v3/pkg/health"
	"github.com/JRebertt/shortcart-v3/pkg/httputil"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/manager"
)

const testOrg = "org-1"

// --- Mock Service ---

type mockPaymentService struct {
	mock.Mock
}

func (m *mockPaymentService) ProcessPayment(ctx context.Context, org string, req *domain.PaymentRequest) (*domain.PaymentResponse, error) {
	args := m.Called(ctx, org, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentResponse), args.Error(1)
}

func (m *mockPaymentService) GetPaymentStatus(ctx context.Context, org string, p domain.Provider, id string) (*domain.PaymentResponse, error) {
	args := m.Called(ctx, org, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentResponse), args.Error(1)
}

func (m *mockPaymentService) CancelPayment(ctx context.Context, org string, p domain.Provider, id string) error {
	return m.Called(ctx, org, p, id).Error(0)
}

func (m *mockPaymentService) RefundPayment(ctx context.Context, org string, p domain.Provider, id string, amount int64) error {
	return m.Called(ctx, org, p, id, amount).Error(0)
}

func (m *mockPaymentService) ListGateways(ctx context.Context, org string) ([]manager.GatewayStat, error) {
	args := m.Called(ctx, org)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]manager.GatewayStat), args.Error(1)
}

func (m *mockPaymentService) CheckHealth(ctx context.Context, org string) (map[domain.Provider]bool, error) {
	args := m.Called(ctx, org)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.Provider]bool), args.Error(1)
}

func (m *mockPaymentService) ReloadGateways(ctx context.Context, org string) (int, error) {
	args := m.Called(ctx, org)
	return args.Int(0), args.Error(1)
}

func (m *mockPaymentService) HandleGatewayWebhook(ctx context.Context, org string, p domain.Provider, payload []byte, signature string) (*domain.WebhookData, error) {
	args := m.Called(ctx, org, p, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WebhookData), args.Error(1)
}

// --- Helpers ---

func setupRouter(svc PaymentService) http.Handler {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewRouter(svc, health.NewHandler(), logger)
}

func doRequest(router http.Handler, method, path string, body []byte, org string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if org != "" {
		req.Header.Set("X-Organization-ID", org)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResp(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func validPaymentJSON() []byte {
	body := domain.PaymentRequest{
		ExternalID: "order-42",
		Amount:     10_000,
		Currency:   "brl",
		Method:     domain.MethodPIX,
		Customer:   domain.Customer{Email: "ana@example.com", Name: "Ana"},
		Product:    domain.Product{ID: "p1", Name: "Course"},
	}
	b, _ := json.Marshal(body)
	return b
}

// ============================================================================
// POST /api/v1/payments
// ============================================================================

func TestProcessPayment_Success(t *testing.T) {
	svc := new(mockPaymentService)
	router := setupRouter(svc)

	svc.On("ProcessPayment", mock.Anything, testOrg, mock.MatchedBy(func(r *domain.PaymentRequest) bool {
		return r.ExternalID == "order-42" && r.Method == domain.MethodPIX
	})).Return(&domain.PaymentResponse{
		ID:       "pay-1",
		Status:   domain.StatusPending,
		Provider: domain.ProviderMangofy,
		Amount:   10_000,
		Fees:     domain.NewFees(100, 50),
	}, nil)

	rec := doRequest(router, http.MethodPost, "/api/v1/payments", validPaymentJSON(), testOrg)

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResp(t, rec)
	assert.Nil(t, resp.Error)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "pay-1", data["id"])
	assert.Equal(t, "mangofy", data["provider"])
	svc.AssertExpectations(t)
}

func TestProcessPayment_MissingOrganization(t *testing.T) {
	svc := new(mockPaymentService)
	router := setupRouter(svc)

	rec := doRequest(router, http.MethodPost, "/api/v1/payments", validPaymentJSON(), "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeResp(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
	svc.AssertNotCalled(t, "ProcessPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessPayment_InvalidJSON(t *testing.T) {
	svc := new(mockPaymentService)
	router := setupRouter(svc)

	rec := doRequest(router, http.MethodPost, "/api/v1/payments", []byte(`{invalid json`), testOrg)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResp(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

func TestProcessPayment_ValidationError(t *testing.T) {
	svc := new(mockPaymentService)
	router := setupRouter(svc)

	body := []byte(`{"external_id":"x","amount":100,"currency":"BRL","method":"cash",` +
		`"customer":{"email":"a@b.co","name":"A"},"product":{"id":"p","name":"P"}}`)
	rec := doRequest(router, http.MethodPost, "/api/v1/payments", body, testOrg)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResp(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "method")
}

func TestProcessPayment_ServiceUnavailable(t *testing.T) {
	svc := new(mockPaymentService)
	router := setupRouter(svc)

	svc.On("ProcessPayment", mock.Anything, testOrg, mock.Anything).
		Return(nil, apperrors.ServiceUnavailable("no gateway configured", nil))

	rec := doRequest(router, http.MethodPost, "/api/v1/payments", validPaymentJSON(), testOrg)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProcessPayment_Rejected(t *testing.T) {
	svc := new(mockPaymentService)
	router := setupRouter(svc)

	svc.On("ProcessPayment", mock.Anything, testOrg, mock.Anything).
		Return(nil, apperrors.PaymentFailed("card declined", nil))

	rec := doRequest(router, http.MethodPost, "/api/v1/payments", validPaymentJSON(), testOrg)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestContentTypeJSON_RejectsXML(t *testing.T) {
	svc := new(mockPaymentService)
	router := setupRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader([]byte(`<xml/>`)))
	req.Header.Set("Content-Type", "text/xml")
	req.Header.Set("X-Organization-ID", testOrg)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

// ============================================================================
// Payment lookups and state changes
// ============================================================================

func TestGetPaymentStatus_Success(t *testing.T) {
	svc := new(mockPaymentService)
	router := setupRouter(svc)

	svc.On("GetPaymentStatus", mock.Anything, testOrg, domain.ProviderStripe, "pi_1").
		Return(&domain.PaymentResponse{ID: "pi_1", Status: domain.StatusApproved, Provider: domain.ProviderStripe}, nil)

	rec := doRequest(router, http.MethodGet, "/api/v1/payments/stripe/pi_1", nil, testOrg)

	assert.Equal(t, http.StatusOK, rec.Code)
	data := decodeResp(t, rec).Data.(map[string]any)
	assert.Equal(t, "approved", data["status"])
	svc.AssertExpectations(t)
}

func TestGetPaymentStatus_UnknownProvider(t *testing.T) {
	svc := new(mockPaymentService)
	router := setupRouter(svc)

	rec := doRequest(router, http.MethodGet, "/api/v1/payments/paypal/p1", nil, testOrg)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "GetPaymentStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetPaymentStatus_NotFound(t *testing.T) {
	svc := new(mockPaymentService)
	router := setupRouter(svc)

	svc.On("GetPaymentStatus", mock.Anything, testOrg, domain.ProviderAsaas, "p1").
		Return(nil, apperrors.NotFound("gateway", "asaas"))

	rec := doRequest(router, http.MethodGet, "/api/v1/payments/asaas/p1", nil, testOrg)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelPayment_Success(t *testing.T) {
	svc := new(mockPaymentService)
	router := setupRouter(svc)

	svc.On("CancelPayment", mock.Anything, testOrg, domain.ProviderMangofy, "p1").Return(nil)

	rec := doRequest(router, http.MethodPost, "/api/v1/payments/mangofy/p1/cancel", nil, testOrg)

	assert.Equal(t, http.StatusOK, rec.Code)
	data := decodeResp(t, rec).Data.(map[string]any)
	assert.Equal(t, "cancelled", data["status"])
	svc.AssertExpectations(t)
}

func TestRefundPayment_EmptyBodyRefundsFull(t *testing.T) {
	svc := new(mockPaymentService)
	router := setupRouter(svc)

	svc.On("RefundPayment", mock.Anything, testOrg, domain.ProviderStripe, "pi_1", int64(0)).Return(nil)

	rec := doRequest(router, http.MethodPost, "/api/v1/payments/stripe/pi_1/refund", nil, testOrg)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestRefundPayment_Partial(t *testing.T) {
	svc := new(mockPaymentService)
	router := setupRouter(svc)

	svc.On("RefundPayment", mock.Anything, testOrg, domain.ProviderStripe, "pi_1", int64(2500)).Return(nil)

	rec := doRequest(router, http.MethodPost, "/api/v1/payments/stripe/pi_1/refund", []byte(`{"amount":2500}`), testOrg)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestRefundPayment_NegativeAmount(t *testing.T) {
	svc := new(mockPaymentService)
	router := setupRouter(svc)

	rec := doRequest(router, http.MethodPost, "/api/v1/payments/stripe/pi_1/refund", []byte(`{"amount":-1}`), testOrg)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "RefundPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// ============================================================================
// Gateways
// ============================================================================

func TestListGateways(t *testing.T) {
	svc := new(mockPaymentService)
	router := setupRouter(svc)

	svc.On("ListGateways", mock.Anything, testOrg).Return([]manager.GatewayStat{
		{Provider: domain.ProviderMangofy, Name: "Mangofy", IsActive: true, Priority: 1},
		{Provider: domain.ProviderStripe, Name: "Stripe", IsActive: false, Priority: 2},
	}, nil)

	rec := doRequest(router, http.MethodGet, "/api/v1/gateways", nil, testOrg)

	assert.Equal(t, http.StatusOK, rec.Code)
	data := decodeResp(t, rec).Data.([]any)
	assert.Len(t, data, 2)
}

func TestCheckHealth_AllDownIs503(t *testing.T) {
	svc := new(mockPaymentService)
	router := setupRouter(svc)

	svc.On("CheckHealth", mock.Anything, testOrg).Return(map[domain.Provider]bool{
		domain.ProviderMangofy: false,
		domain.ProviderStripe:  false,
	}, nil)

	rec := doRequest(router, http.MethodGet, "/api/v1/gateways/health", nil, testOrg)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	data := decodeResp(t, rec).Data.(map[string]any)
	assert.Equal(t, false, data["mangofy"])
}

func TestCheckHealth_OneUpIs200(t *testing.T) {
	svc := new(mockPaymentService)
	router := setupRouter(svc)

	svc.On("CheckHealth", mock.Anything, testOrg).Return(map[domain.Provider]bool{
		domain.ProviderMangofy: false,
		domain.ProviderStripe:  true,
	}, nil)

	rec := doRequest(router, http.MethodGet, "/api/v1/gateways/health", nil, testOrg)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReloadGateways(t *testing.T) {
	svc := new(mockPaymentService)
	router := setupRouter(svc)

	svc.On("ReloadGateways", mock.Anything, testOrg).Return(3, nil)

	rec := doRequest(router, http.MethodPost, "/api/v1/gateways/invalidate", nil, testOrg)

	assert.Equal(t, http.StatusOK, rec.Code)
	data := decodeResp(t, rec).Data.(map[string]any)
	assert.Equal(t, float64(3), data["gateways"])
}

func TestHealthEndpoints(t *testing.T) {
	router := setupRouter(new(mockPaymentService))

	rec := doRequest(router, http.MethodGet, "/health/live", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
