package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/JRebertt/shortcart-v3/pkg/errors"
	"github.com/JRebertt/shortcart-v3/pkg/httputil"
	"github.com/JRebertt/shortcart-v3/pkg/logger"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/webhook"
)

const maxWebhookBytes = 1 << 20

// WebhookHandler receives provider callbacks.
type WebhookHandler struct {
	service PaymentService
	logger  *slog.Logger
}

func NewWebhookHandler(svc PaymentService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{service: svc, logger: logger}
}

type webhookAck struct {
	Received  bool                 `json:"received"`
	Event     domain.WebhookEvent  `json:"event"`
	PaymentID string               `json:"payment_id"`
	Status    domain.PaymentStatus `json:"status,omitempty"`
}

// HandleGatewayWebhook handles POST /webhooks/{organizationId}/{provider}.
// The raw body is passed through untouched since signatures cover its bytes.
func (h *WebhookHandler) HandleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	org := chi.URLParam(r, "organizationId")
	if org == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("organization id is required"), h.logger)
		return
	}
	p, err := providerParam(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "PAYLOAD_TOO_LARGE", Message: "webhook body exceeds 1MB"},
			})
			return
		}
		httputil.WriteError(w, r, apperrors.InvalidInput("unreadable webhook body"), h.logger)
		return
	}

	ctx := logger.WithOrganizationID(r.Context(), org)
	ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(
		slog.String("organization_id", org),
		logger.Provider(string(p)),
	))
	r = r.WithContext(ctx)

	data, err := h.service.HandleGatewayWebhook(ctx, org, p, payload, signatureFor(p, r.Header))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, webhookAck{
		Received:  true,
		Event:     data.Event,
		PaymentID: data.PaymentID,
		Status:    data.Status,
	})
}

// signatureFor extracts the signature header each provider sends. Mercado
// Pago signs x-request-id too, so it is appended for the verifier.
func signatureFor(p domain.Provider, hdr http.Header) string {
	switch p {
	case domain.ProviderStripe:
		return hdr.Get("Stripe-Signature")
	case domain.ProviderMercadoPago:
		sig := hdr.Get("X-Signature")
		if reqID := strings.TrimSpace(hdr.Get("X-Request-Id")); sig != "" && reqID != "" {
			sig += ",request-id=" + reqID
		}
		return sig
	}
	if sig := hdr.Get(webhook.HeaderSignature); sig != "" {
		return sig
	}
	return hdr.Get("X-Signature")
}
