package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/JRebertt/shortcart-v3/pkg/errors"
	"github.com/JRebertt/shortcart-v3/pkg/httputil"
	"github.com/JRebertt/shortcart-v3/pkg/logger"
	"github.com/JRebertt/shortcart-v3/pkg/validator"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/manager"
)

// PaymentService is the subset of service.GatewayService the handlers use.
type PaymentService interface {
	ProcessPayment(ctx context.Context, organizationID string, req *domain.PaymentRequest) (*domain.PaymentResponse, error)
	GetPaymentStatus(ctx context.Context, organizationID string, p domain.Provider, paymentID string) (*domain.PaymentResponse, error)
	CancelPayment(ctx context.Context, organizationID string, p domain.Provider, paymentID string) error
	RefundPayment(ctx context.Context, organizationID string, p domain.Provider, paymentID string, amount int64) error
	ListGateways(ctx context.Context, organizationID string) ([]manager.GatewayStat, error)
	CheckHealth(ctx context.Context, organizationID string) (map[domain.Provider]bool, error)
	ReloadGateways(ctx context.Context, organizationID string) (int, error)
	HandleGatewayWebhook(ctx context.Context, organizationID string, p domain.Provider, payload []byte, signature string) (*domain.WebhookData, error)
}

// PaymentHandler handles the tenant-facing payment and gateway endpoints.
type PaymentHandler struct {
	service PaymentService
	logger  *slog.Logger
}

func NewPaymentHandler(svc PaymentService, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{service: svc, logger: logger}
}

// RefundPaymentRequest is the optional body of a refund. A zero amount
// refunds the full payment.
type RefundPaymentRequest struct {
	Amount int64 `json:"amount" validate:"gte=0"`
}

type statusChange struct {
	PaymentID string               `json:"payment_id"`
	Provider  domain.Provider      `json:"provider"`
	Status    domain.PaymentStatus `json:"status"`
}

// ProcessPayment handles POST /api/v1/payments
func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	resp, err := h.service.ProcessPayment(r.Context(), organizationID(r), &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, resp)
}

// GetPaymentStatus handles GET /api/v1/payments/{provider}/{paymentId}
func (h *PaymentHandler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	p, id, err := paymentRef(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	resp, err := h.service.GetPaymentStatus(r.Context(), organizationID(r), p, id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, resp)
}

// CancelPayment handles POST /api/v1/payments/{provider}/{paymentId}/cancel
func (h *PaymentHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	p, id, err := paymentRef(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if err := h.service.CancelPayment(r.Context(), organizationID(r), p, id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, statusChange{PaymentID: id, Provider: p, Status: domain.StatusCancelled})
}

// RefundPayment handles POST /api/v1/payments/{provider}/{paymentId}/refund.
// The body is optional.
func (h *PaymentHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	p, id, err := paymentRef(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	var req RefundPaymentRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteValidationError(w, r, err)
		return
	}

	if err := h.service.RefundPayment(r.Context(), organizationID(r), p, id, req.Amount); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, statusChange{PaymentID: id, Provider: p, Status: domain.StatusRefunded})
}

// ListGateways handles GET /api/v1/gateways
func (h *PaymentHandler) ListGateways(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.ListGateways(r.Context(), organizationID(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, stats)
}

// CheckHealth handles GET /api/v1/gateways/health. It answers 503 when no
// gateway is healthy so load balancers and dashboards can key off the code.
func (h *PaymentHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.CheckHealth(r.Context(), organizationID(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	status := http.StatusServiceUnavailable
	for _, ok := range report {
		if ok {
			status = http.StatusOK
			break
		}
	}
	httputil.WriteData(w, status, report)
}

// ReloadGateways handles POST /api/v1/gateways/invalidate. The cached
// manager is rebuilt from the stored configs.
func (h *PaymentHandler) ReloadGateways(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.ReloadGateways(r.Context(), organizationID(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]int{"gateways": n})
}

func organizationID(r *http.Request) string {
	return logger.OrganizationIDFromContext(r.Context())
}

func paymentRef(r *http.Request) (domain.Provider, string, error) {
	p, err := providerParam(r)
	if err != nil {
		return "", "", err
	}
	id := chi.URLParam(r, "paymentId")
	if id == "" {
		return "", "", apperrors.InvalidInput("payment id is required")
	}
	return p, id, nil
}

func providerParam(r *http.Request) (domain.Provider, error) {
	p := domain.Provider(chi.URLParam(r, "provider"))
	if !p.Valid() {
		return "", apperrors.InvalidInput("unknown provider " + string(p))
	}
	return p, nil
}
