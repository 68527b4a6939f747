// Package mangofy adapts the Mangofy checkout API to gateway.Gateway.
package mangofy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/JRebertt/shortcart-v3/pkg/httpclient"
	"github.com/JRebertt/shortcart-v3/pkg/logger"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/gateway"
)

const DefaultBaseURL = "https://checkout.mangofy.com.br/api/v1"

const maxBody = 1 << 20

// Gateway talks JSON to Mangofy. The api key goes in Authorization and the
// store code (secret key) in Store-Code.
type Gateway struct {
	gateway.Base
	client  httpclient.Doer
	baseURL string
	logger  *slog.Logger
}

var _ gateway.Gateway = (*Gateway)(nil)

type Option func(*Gateway)

func WithBaseURL(u string) Option {
	return func(g *Gateway) { g.baseURL = strings.TrimRight(u, "/") }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

func New(client httpclient.Doer, opts ...Option) *Gateway {
	g := &Gateway{
		Base: gateway.NewBase(domain.ProviderMangofy, "Mangofy", true,
			domain.MethodPIX, domain.MethodCreditCard, domain.MethodDebitCard, domain.MethodBoleto),
		client:  client,
		baseURL: DefaultBaseURL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) IsHealthy(ctx context.Context) bool {
	if !g.IsConfigured() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, gateway.HealthTimeout)
	defer cancel()

	_, err := g.call(ctx, http.MethodGet, "/health", nil)
	return err == nil
}

func (g *Gateway) CreatePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResponse, error) {
	if err := g.CheckRequest(req); err != nil {
		return nil, err
	}
	payload, err := BuildPaymentPayload(req)
	if err != nil {
		return nil, fmt.Errorf("build mangofy payload: %w", err)
	}
	body, err := g.call(ctx, http.MethodPost, "/payment", payload)
	if err != nil {
		return nil, err
	}
	return MapPaymentResponse(body, req)
}

func (g *Gateway) GetPaymentStatus(ctx context.Context, id string) (*domain.PaymentResponse, error) {
	if !g.IsConfigured() {
		return nil, gateway.NotConfigured(g.Provider())
	}
	body, err := g.call(ctx, http.MethodGet, "/payment/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return MapPaymentResponse(body, nil)
}

func (g *Gateway) CancelPayment(ctx context.Context, id string) bool {
	return g.action(ctx, "cancel", id, nil)
}

func (g *Gateway) RefundPayment(ctx context.Context, id string, amount int64) bool {
	body := []byte(`{}`)
	if amount > 0 {
		body, _ = json.Marshal(map[string]int64{"amount": amount})
	}
	return g.action(ctx, "refund", id, body)
}

func (g *Gateway) action(ctx context.Context, name, id string, body []byte) bool {
	if !g.IsConfigured() {
		return false
	}
	if _, err := g.call(ctx, http.MethodPost, "/payment/"+url.PathEscape(id)+"/"+name, body); err != nil {
		logger.WithContext(ctx, g.logger).Warn("mangofy "+name+" failed",
			logger.Provider(string(g.Provider())),
			slog.String("payment_id", id),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

func (g *Gateway) ValidateWebhook(payload []byte, signature, secret string) bool {
	return gateway.VerifyHMAC(payload, signature, secret)
}

func (g *Gateway) ParseWebhook(payload []byte) (*domain.WebhookData, error) {
	return parseWebhook(payload)
}

func (g *Gateway) CalculateFees(amount int64, m domain.PaymentMethod) int64 {
	switch m {
	case domain.MethodPIX, domain.MethodBankTransfer:
		return gateway.PercentFee(amount, 99)
	case domain.MethodCreditCard:
		return gateway.PercentFee(amount, 349)
	case domain.MethodDebitCard:
		return gateway.PercentFee(amount, 199)
	case domain.MethodBoleto:
		return 349
	}
	return 0
}

func (g *Gateway) PaymentLimits(domain.PaymentMethod) domain.PaymentLimits {
	return domain.PaymentLimits{Min: 100, Max: 10_000_000}
}

// call performs one request and returns the 2xx body. Definitive 4xx
// answers become ProviderRejected; everything else is Transport.
func (g *Gateway) call(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, rdr)
	if err != nil {
		return nil, gateway.Transport(g.Provider(), err)
	}
	creds := g.Credentials()
	req.Header.Set("Authorization", creds.APIKey)
	req.Header.Set("Store-Code", creds.SecretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(ctx, req)
	if err != nil {
		return nil, gateway.Transport(g.Provider(), err)
	}
	if resp.StatusCode >= 300 {
		se := httpclient.ReadStatusError(resp)
		if httpclient.IsRetryableStatus(se.StatusCode) {
			return nil, gateway.Transport(g.Provider(), se)
		}
		return nil, gateway.Rejected(g.Provider(), se.StatusCode, errorMessage(se.Body))
	}
	defer func() { _ = resp.Body.Close() }()

	out, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, gateway.Transport(g.Provider(), err)
	}
	return out, nil
}

func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
