// Package mercadopago adapts the Mercado Pago payments API to
// gateway.Gateway using the official SDK.
package mercadopago

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/refund"

	"github.com/JRebertt/shortcart-v3/pkg/httpclient"
	"github.com/JRebertt/shortcart-v3/pkg/logger"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/gateway"
)

// APIURL is fixed by the SDK; the health probe uses the same host.
const APIURL = "https://api.mercadopago.com"

type Gateway struct {
	gateway.Base
	doer   httpclient.Doer
	logger *slog.Logger

	mu       sync.RWMutex
	payments payment.Client
	refunds  refund.Client
}

var (
	_ gateway.Gateway         = (*Gateway)(nil)
	_ gateway.WebhookResolver = (*Gateway)(nil)
)

type Option func(*Gateway)

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

func New(doer httpclient.Doer, opts ...Option) *Gateway {
	g := &Gateway{
		Base: gateway.NewBase(domain.ProviderMercadoPago, "Mercado Pago", false,
			domain.MethodPIX, domain.MethodBoleto, domain.MethodCreditCard, domain.MethodDebitCard),
		doer:   doer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Configure(creds domain.Credentials) {
	g.Base.Configure(creds)

	cfg, err := config.New(creds.APIKey, config.WithHTTPClient(&statusRecorder{doer: g.doer}))
	if err != nil {
		// config.New only fails on options; keep the gateway unusable.
		g.logger.Error("mercado pago config failed", slog.String("error", err.Error()))
		return
	}
	g.mu.Lock()
	g.payments = payment.NewClient(cfg)
	g.refunds = refund.NewClient(cfg)
	g.mu.Unlock()
}

func (g *Gateway) clients() (payment.Client, refund.Client) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.payments, g.refunds
}

func (g *Gateway) IsConfigured() bool {
	p, _ := g.clients()
	return g.Base.IsConfigured() && p != nil
}

// IsHealthy lists payment methods, the cheapest authenticated call.
func (g *Gateway) IsHealthy(ctx context.Context) bool {
	if !g.IsConfigured() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, gateway.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, APIURL+"/v1/payment_methods", http.NoBody)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+g.Credentials().APIKey)
	resp, err := g.doer.Do(ctx, req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < 300
}

func (g *Gateway) CreatePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResponse, error) {
	if err := g.CheckRequest(req); err != nil {
		return nil, err
	}
	body, err := BuildPaymentRequest(req)
	if err != nil {
		return nil, err
	}
	payments, _ := g.clients()

	ctx, probe := withProbe(ctx)
	res, err := payments.Create(ctx, body)
	if err != nil {
		return nil, g.mapError(probe, err)
	}
	return mapPayment(res, req), nil
}

func (g *Gateway) GetPaymentStatus(ctx context.Context, id string) (*domain.PaymentResponse, error) {
	if !g.IsConfigured() {
		return nil, gateway.NotConfigured(g.Provider())
	}
	n, err := paymentID(id)
	if err != nil {
		return nil, err
	}
	payments, _ := g.clients()

	ctx, probe := withProbe(ctx)
	res, err := payments.Get(ctx, n)
	if err != nil {
		return nil, g.mapError(probe, err)
	}
	return mapPayment(res, nil), nil
}

func (g *Gateway) CancelPayment(ctx context.Context, id string) bool {
	if !g.IsConfigured() {
		return false
	}
	n, err := paymentID(id)
	if err != nil {
		return false
	}
	payments, _ := g.clients()
	if _, err := payments.Cancel(ctx, n); err != nil {
		g.warn(ctx, "mercado pago cancel failed", id, err)
		return false
	}
	return true
}

func (g *Gateway) RefundPayment(ctx context.Context, id string, amount int64) bool {
	if !g.IsConfigured() {
		return false
	}
	n, err := paymentID(id)
	if err != nil {
		return false
	}
	_, refunds := g.clients()
	if amount > 0 {
		_, err = refunds.CreatePartialRefund(ctx, n, gateway.MajorUnits(amount))
	} else {
		_, err = refunds.Create(ctx, n)
	}
	if err != nil {
		g.warn(ctx, "mercado pago refund failed", id, err)
		return false
	}
	return true
}

func (g *Gateway) ValidateWebhook(payload []byte, signature, secret string) bool {
	return VerifySignature(payload, signature, secret)
}

// ParseWebhook reads the notification only. Its Status stays empty because
// Mercado Pago does not send one; ResolveWebhook fills it.
func (g *Gateway) ParseWebhook(payload []byte) (*domain.WebhookData, error) {
	return parseNotification(payload)
}

// ResolveWebhook parses the notification and fetches the payment it names.
func (g *Gateway) ResolveWebhook(ctx context.Context, payload []byte) (*domain.WebhookData, error) {
	data, err := parseNotification(payload)
	if err != nil {
		return nil, err
	}
	current, err := g.GetPaymentStatus(ctx, data.PaymentID)
	if err != nil {
		return nil, err
	}
	data.Status = current.Status
	data.Amount = &current.Amount
	data.PaidAt = current.PaidAt
	return data, nil
}

func (g *Gateway) CalculateFees(amount int64, m domain.PaymentMethod) int64 {
	switch m {
	case domain.MethodPIX:
		return gateway.PercentFee(amount, 99)
	case domain.MethodBoleto:
		return 349
	case domain.MethodDebitCard:
		return gateway.PercentFee(amount, 199)
	}
	return gateway.PercentFee(amount, 498)
}

func (g *Gateway) PaymentLimits(m domain.PaymentMethod) domain.PaymentLimits {
	if m == domain.MethodBoleto {
		return domain.PaymentLimits{Min: 500, Max: 5_000_000}
	}
	return domain.PaymentLimits{Min: 100, Max: 10_000_000}
}

// mapError uses the recorded HTTP status: definitive 4xx answers are
// rejections, everything else is transport.
func (g *Gateway) mapError(p *probe, err error) error {
	if code := p.code(); httpclient.IsClientStatus(code) {
		return gateway.Rejected(g.Provider(), code, err.Error())
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

func paymentID(id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil {
		return 0, gateway.Rejected(domain.ProviderMercadoPago, 0, fmt.Sprintf("invalid payment id %q", id))
	}
	return n, nil
}
