// Package stripe adapts Stripe PaymentIntents to gateway.Gateway.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/JRebertt/shortcart-v3/pkg/httpclient"
	"github.com/JRebertt/shortcart-v3/pkg/logger"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/gateway"
)

// Gateway creates PaymentIntents through stripe-go. The SDK's own network
// retries are disabled; failover belongs to the manager.
type Gateway struct {
	gateway.Base
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	api        *client.API
}

var _ gateway.Gateway = (*Gateway)(nil)

type Option func(*Gateway)

// WithBaseURL points the SDK at another API host, such as a test server.
func WithBaseURL(u string) Option {
	return func(g *Gateway) { g.baseURL = strings.TrimRight(u, "/") }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

func New(doer httpclient.Doer, opts ...Option) *Gateway {
	g := &Gateway{
		Base: gateway.NewBase(domain.ProviderStripe, "Stripe", false,
			domain.MethodCreditCard, domain.MethodDebitCard, domain.MethodPIX),
		httpClient: httpclient.NewSDKClient(doer),
		baseURL:    stripego.APIURL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Configure builds a dedicated SDK client so tenants never share keys.
func (g *Gateway) Configure(creds domain.Credentials) {
	g.Base.Configure(creds)

	cfg := &stripego.BackendConfig{
		HTTPClient:        g.httpClient,
		URL:               stripego.String(g.baseURL),
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     &stripego.LeveledLogger{Level: stripego.LevelNull},
	}
	backend := stripego.GetBackendWithConfig(stripego.APIBackend, cfg)
	api := &client.API{}
	api.Init(creds.APIKey, &stripego.Backends{API: backend, Connect: backend, Uploads: backend})
	g.api = api
}

func (g *Gateway) IsHealthy(ctx context.Context) bool {
	if !g.IsConfigured() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, gateway.HealthTimeout)
	defer cancel()

	params := &stripego.BalanceParams{}
	params.Context = ctx
	_, err := g.api.Balance.Get(params)
	return err == nil
}

func (g *Gateway) CreatePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResponse, error) {
	if err := g.CheckRequest(req); err != nil {
		return nil, err
	}
	params := BuildPaymentIntentParams(req)
	params.Context = ctx

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, g.mapError(err)
	}
	return g.mapPaymentIntent(pi, req), nil
}

func (g *Gateway) GetPaymentStatus(ctx context.Context, id string) (*domain.PaymentResponse, error) {
	if !g.IsConfigured() {
		return nil, gateway.NotConfigured(g.Provider())
	}
	params := &stripego.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, g.mapError(err)
	}
	return g.mapPaymentIntent(pi, nil), nil
}

func (g *Gateway) CancelPayment(ctx context.Context, id string) bool {
	if !g.IsConfigured() {
		return false
	}
	params := &stripego.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := g.api.PaymentIntents.Cancel(id, params); err != nil {
		g.warn(ctx, "stripe cancel failed", id, err)
		return false
	}
	return true
}

func (g *Gateway) RefundPayment(ctx context.Context, id string, amount int64) bool {
	if !g.IsConfigured() {
		return false
	}
	params := &stripego.RefundParams{PaymentIntent: stripego.String(id)}
	if amount > 0 {
		params.Amount = stripego.Int64(amount)
	}
	params.Context = ctx
	if _, err := g.api.Refunds.New(params); err != nil {
		g.warn(ctx, "stripe refund failed", id, err)
		return false
	}
	return true
}

// ValidateWebhook checks a Stripe-Signature header (t=...,v1=...) with the
// SDK's timestamp tolerance.
func (g *Gateway) ValidateWebhook(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return webhook.ValidatePayload(payload, signature, secret) == nil
}

func (g *Gateway) ParseWebhook(payload []byte) (*domain.WebhookData, error) {
	return parseEvent(payload)
}

func (g *Gateway) CalculateFees(amount int64, m domain.PaymentMethod) int64 {
	switch m {
	case domain.MethodDebitCard:
		return gateway.PercentFee(amount, 199)
	case domain.MethodPIX:
		return gateway.PercentFee(amount, 99)
	}
	return gateway.PercentFee(amount, 399)
}

func (g *Gateway) PaymentLimits(domain.PaymentMethod) domain.PaymentLimits {
	return domain.PaymentLimits{Min: 50, Max: 99_999_999}
}

// BuildPaymentIntentParams maps req onto a PaymentIntent creation. The
// external id doubles as the idempotency key.
func BuildPaymentIntentParams(req *domain.PaymentRequest) *stripego.PaymentIntentParams {
	params := &stripego.PaymentIntentParams{
		Amount:             stripego.Int64(req.Amount),
		Currency:           stripego.String(strings.ToLower(req.Currency)),
		PaymentMethodTypes: stripego.StringSlice([]string{methodType(req.Method)}),
		Description:        stripego.String(req.Product.Name),
	}
	if req.Customer.Email != "" {
		params.ReceiptEmail = stripego.String(req.Customer.Email)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddMetadata("external_id", req.ExternalID)
	params.AddMetadata("customer_name", req.Customer.Name)
	params.AddMetadata("product_id", req.Product.ID)
	if req.ExternalID != "" {
		params.SetIdempotencyKey(req.ExternalID)
	}
	return params
}

func (g *Gateway) mapPaymentIntent(pi *stripego.PaymentIntent, req *domain.PaymentRequest) *domain.PaymentResponse {
	resp := &domain.PaymentResponse{
		ID:               pi.ID,
		ExternalID:       pi.Metadata["external_id"],
		Status:           mapStatus(string(pi.Status)),
		Amount:           pi.Amount,
		Currency:         strings.ToUpper(string(pi.Currency)),
		Method:           domain.MethodCreditCard,
		Provider:         domain.ProviderStripe,
		GatewayPaymentID: pi.ID,
	}
	if pi.LastResponse != nil {
		resp.GatewayResponse = gateway.BytesToMap(pi.LastResponse.RawJSON)
	}
	if resp.GatewayResponse == nil {
		resp.GatewayResponse = gateway.ToMap(pi)
	}
	if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
		resp.PaymentURL = pi.NextAction.RedirectToURL.URL
	}
	if qr, ok := pixQRCode(resp.GatewayResponse); ok {
		resp.QRCode = qr
	}
	if req != nil {
		resp.Method = req.Method
		if resp.ExternalID == "" {
			resp.ExternalID = req.ExternalID
		}
	}
	return resp
}

func pixQRCode(raw map[string]any) (string, bool) {
	next, _ := raw["next_action"].(map[string]any)
	pix, _ := next["pix_display_qr_code"].(map[string]any)
	data, ok := pix["data"].(string)
	return data, ok && data != ""
}

// mapError turns 4xx API errors, except 408 and 429, into rejections.
func (g *Gateway) mapError(err error) error {
	var se *stripego.Error
	if errors.As(err, &se) && httpclient.IsClientStatus(se.HTTPStatusCode) {
		msg := se.Msg
		if se.Code != "" {
			msg = string(se.Code) + ": " + msg
		}
		return gateway.Rejected(g.Provider(), se.HTTPStatusCode, msg)
	}
	return gateway.Transport(g.Provider(), err)
}

func (g *Gateway) warn(ctx context.Context, msg, id string, err error) {
	logger.WithContext(ctx, g.logger).Warn(msg,
		logger.Provider(string(g.Provider())),
		slog.String("payment_id", id),
		slog.String("error", err.Error()),
	)
}

func methodType(m domain.PaymentMethod) string {
	switch m {
	case domain.MethodPIX:
		return "pix"
	case domain.MethodBoleto:
		return "boleto"
	}
	return "card"
}

func mapStatus(s string) domain.PaymentStatus {
	switch s {
	case "processing":
		return domain.StatusProcessing
	case "succeeded":
		return domain.StatusApproved
	case "canceled":
		return domain.StatusCancelled
	}
	// requires_payment_method, requires_confirmation, requires_action,
	// requires_capture and anything new.
	return domain.StatusPending
}

type event struct {
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type eventObject struct {
	ID            string `json:"id"`
	Object        string `json:"object"`
	Status        string `json:"status"`
	Amount        *int64 `json:"amount"`
	PaymentIntent string `json:"payment_intent"`
	Refunded      bool   `json:"refunded"`
}

func parseEvent(payload []byte) (*domain.WebhookData, error) {
	var ev event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, gateway.Parse(domain.ProviderStripe, "malformed event", err)
	}
	var obj eventObject
	if len(ev.Data.Object) > 0 {
		if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
			return nil, gateway.Parse(domain.ProviderStripe, "malformed event object", err)
		}
	}

	id, status := obj.ID, mapStatus(obj.Status)
	// Charges and refunds point back at their PaymentIntent.
	if obj.Object != "payment_intent" && obj.PaymentIntent != "" {
		id = obj.PaymentIntent
	}
	if id == "" {
		return nil, gateway.Parse(domain.ProviderStripe, "event has no payment intent", nil)
	}

	// payment_failed leaves the intent at requires_payment_method and the
	// customer may still pay, so its status comes from the object.
	e := eventType(ev.Type)
	switch e {
	case domain.EventPaymentApproved:
		status = domain.StatusApproved
	case domain.EventPaymentCancelled:
		status = domain.StatusCancelled
	case domain.EventPaymentRefunded:
		status = domain.StatusRefunded
	}
	return &domain.WebhookData{
		Event:       e,
		PaymentID:   id,
		Status:      status,
		Amount:      obj.Amount,
		GatewayData: gateway.BytesToMap(payload),
	}, nil
}

func eventType(t string) domain.WebhookEvent {
	switch t {
	case "payment_intent.created":
		return domain.EventPaymentCreated
	case "payment_intent.succeeded":
		return domain.EventPaymentApproved
	case "payment_intent.payment_failed":
		return domain.EventPaymentRejected
	case "payment_intent.canceled":
		return domain.EventPaymentCancelled
	case "charge.refunded":
		return domain.EventPaymentRefunded
	}
	return domain.EventPaymentUpdated
}
