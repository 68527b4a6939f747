// Package service implements the payment use cases on top of an
// organization's gateway manager.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/JRebertt/shortcart-v3/pkg/errors"
	"github.com/JRebertt/shortcart-v3/pkg/logger"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/gateway"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/manager"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/notification"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/repository"
)

// GatewayService runs payments and provider callbacks for organizations.
type GatewayService struct {
	managers      Managers
	statuses      repository.StatusStore
	notifier      notification.Notifier
	platformFeeBP int64
	now           func() time.Time
	logger        *slog.Logger
}

type Option func(*GatewayService)

// WithPlatformFee sets the platform fee in basis points of the amount.
func WithPlatformFee(bp int64) Option {
	return func(s *GatewayService) { s.platformFeeBP = bp }
}

func WithClock(now func() time.Time) Option {
	return func(s *GatewayService) { s.now = now }
}

func NewGatewayService(
	managers Managers,
	statuses repository.StatusStore,
	notifier notification.Notifier,
	logger *slog.Logger,
	opts ...Option,
) *GatewayService {
	s := &GatewayService{
		managers: managers,
		statuses: statuses,
		notifier: notifier,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessPayment charges req through the organization's gateways.
func (s *GatewayService) ProcessPayment(ctx context.Context, organizationID string, req *domain.PaymentRequest) (*domain.PaymentResponse, error) {
	if !req.Method.Valid() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid payment method %q", req.Method))
	}
	if req.Amount <= 0 {
		return nil, apperrors.InvalidInput("amount must be greater than zero")
	}
	req.Currency = strings.ToUpper(req.Currency)

	m, err := s.managers.Manager(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("resolve gateways: %w", err)
	}

	resp, err := m.ProcessPayment(ctx, req)
	if err != nil {
		s.log(ctx).Warn("payment failed",
			slog.String("external_id", req.ExternalID),
			slog.String("method", string(req.Method)),
			slog.String("error", err.Error()),
		)
		return nil, toAppError(err)
	}

	if resp.GatewayPaymentID == "" {
		resp.GatewayPaymentID = resp.ID
	}
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	s.applyFees(m, req, resp)

	s.log(ctx).Info("payment processed",
		slog.String("payment_id", resp.ID),
		logger.Provider(string(resp.Provider)),
		slog.String("status", string(resp.Status)),
		slog.Int64("amount", resp.Amount),
	)

	if err := s.statuses.Set(ctx, resp.Provider, resp.GatewayPaymentID, resp.Status); err != nil {
		s.log(ctx).Warn("failed to record payment status",
			slog.String("payment_id", resp.ID),
			slog.String("error", err.Error()),
		)
	}
	s.notify(ctx, domain.PaymentNotification{
		Event:          domain.EventPaymentCreated,
		OrganizationID: organizationID,
		Provider:       resp.Provider,
		PaymentID:      resp.GatewayPaymentID,
		ExternalID:     resp.ExternalID,
		Status:         resp.Status,
		Amount:         &resp.Amount,
		PaidAt:         resp.PaidAt,
		OccurredAt:     s.now().UTC(),
	})
	return resp, nil
}

// applyFees fills the fee breakdown the provider did not report.
func (s *GatewayService) applyFees(m *manager.Manager, req *domain.PaymentRequest, resp *domain.PaymentResponse) {
	gw := resp.Fees.Gateway
	if gw == 0 {
		if g, ok := m.Gateway(resp.Provider); ok {
			gw = g.CalculateFees(req.Amount, req.Method)
		}
	}
	platform := resp.Fees.Platform
	if platform == 0 {
		platform = gateway.PercentFee(req.Amount, s.platformFeeBP)
	}
	resp.Fees = domain.NewFees(gw, platform)
}

func (s *GatewayService) gateway(ctx context.Context, organizationID string, p domain.Provider) (*manager.Manager, gateway.Gateway, error) {
	if !p.Valid() {
		return nil, nil, apperrors.InvalidInput(fmt.Sprintf("unknown provider %q", p))
	}
	m, err := s.managers.Manager(ctx, organizationID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve gateways: %w", err)
	}
	g, ok := m.Gateway(p)
	if !ok {
		return nil, nil, gatewayNotFound(organizationID, p)
	}
	return m, g, nil
}

func (s *GatewayService) GetPaymentStatus(ctx context.Context, organizationID string, p domain.Provider, paymentID string) (*domain.PaymentResponse, error) {
	_, g, err := s.gateway(ctx, organizationID, p)
	if err != nil {
		return nil, err
	}
	resp, err := g.GetPaymentStatus(ctx, paymentID)
	if err != nil {
		return nil, toAppError(err)
	}
	return resp, nil
}

// CancelPayment asks the provider to cancel and announces the change.
func (s *GatewayService) CancelPayment(ctx context.Context, organizationID string, p domain.Provider, paymentID string) error {
	_, g, err := s.gateway(ctx, organizationID, p)
	if err != nil {
		return err
	}
	if !g.CancelPayment(ctx, paymentID) {
		return apperrors.PaymentFailed("cancellation was not accepted by "+string(p), nil)
	}
	s.transition(ctx, organizationID, p, &domain.WebhookData{
		Event:     domain.EventPaymentCancelled,
		PaymentID: paymentID,
		Status:    domain.StatusCancelled,
	})
	return nil
}

// RefundPayment refunds amount minor units, or everything when amount is 0.
func (s *GatewayService) RefundPayment(ctx context.Context, organizationID string, p domain.Provider, paymentID string, amount int64) error {
	if amount < 0 {
		return apperrors.InvalidInput("refund amount must not be negative")
	}
	_, g, err := s.gateway(ctx, organizationID, p)
	if err != nil {
		return err
	}
	if !g.RefundPayment(ctx, paymentID, amount) {
		return apperrors.PaymentFailed("refund was not accepted by "+string(p), nil)
	}
	data := &domain.WebhookData{
		Event:     domain.EventPaymentRefunded,
		PaymentID: paymentID,
		Status:    domain.StatusRefunded,
	}
	if amount > 0 {
		data.Amount = &amount
	}
	s.transition(ctx, organizationID, p, data)
	return nil
}

func (s *GatewayService) ListGateways(ctx context.Context, organizationID string) ([]manager.GatewayStat, error) {
	m, err := s.managers.Manager(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("resolve gateways: %w", err)
	}
	return m.Stats(), nil
}

func (s *GatewayService) CheckHealth(ctx context.Context, organizationID string) (map[domain.Provider]bool, error) {
	m, err := s.managers.Manager(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("resolve gateways: %w", err)
	}
	return m.CheckGatewaysHealth(ctx), nil
}

// ReloadGateways rebuilds the organization's manager from storage and
// returns the number of registered gateways.
func (s *GatewayService) ReloadGateways(ctx context.Context, organizationID string) (int, error) {
	m, err := s.managers.Reload(ctx, organizationID)
	if err != nil {
		return 0, fmt.Errorf("reload gateways: %w", err)
	}
	return m.Len(), nil
}

// HandleGatewayWebhook authenticates and applies a provider callback. A
// callback that does not advance the payment is acknowledged without
// notifying anyone.
func (s *GatewayService) HandleGatewayWebhook(ctx context.Context, organizationID string, p domain.Provider, payload []byte, signature string) (*domain.WebhookData, error) {
	m, g, err := s.gateway(ctx, organizationID, p)
	if err != nil {
		return nil, err
	}
	cfg, _ := m.Config(p)
	if cfg == nil || cfg.WebhookSecret == "" {
		return nil, apperrors.Unauthorized("webhook secret not configured for " + string(p))
	}
	if !g.ValidateWebhook(payload, signature, cfg.WebhookSecret) {
		s.log(ctx).Warn("rejected webhook with invalid signature", logger.Provider(string(p)))
		return nil, toAppError(gateway.InvalidSignature(p))
	}

	data, err := parseWebhook(ctx, g, payload)
	if err != nil {
		return nil, err
	}

	s.transition(ctx, organizationID, p, data)
	return data, nil
}

// parseWebhook returns WebhookData with a payment id and a canonical status,
// resolving the status through the provider when the callback lacks one.
func parseWebhook(ctx context.Context, g gateway.Gateway, payload []byte) (*domain.WebhookData, error) {
	var (
		data *domain.WebhookData
		err  error
	)
	if r, ok := g.(gateway.WebhookResolver); ok {
		data, err = r.ResolveWebhook(ctx, payload)
		if err != nil && gateway.KindOf(err) != gateway.KindParse {
			return nil, toAppError(err)
		}
	} else {
		data, err = g.ParseWebhook(payload)
	}
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	if data.PaymentID == "" {
		return nil, apperrors.InvalidInput("webhook does not reference a payment")
	}
	if !data.Status.Valid() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("webhook status %q is not recognized", data.Status))
	}
	return data, nil
}

// transition records data.Status and notifies when it advanced the
// payment. A status store outage favors delivering a duplicate.
func (s *GatewayService) transition(ctx context.Context, organizationID string, p domain.Provider, data *domain.WebhookData) {
	prev, applied, err := s.statuses.Advance(ctx, p, data.PaymentID, data.Status)
	switch {
	case err != nil:
		s.log(ctx).Warn("status store unavailable, notifying without transition check",
			slog.String("payment_id", data.PaymentID),
			slog.String("error", err.Error()),
		)
	case !applied:
		s.log(ctx).Info("ignoring status that does not advance the payment",
			logger.Provider(string(p)),
			slog.String("payment_id", data.PaymentID),
			slog.String("current", string(prev)),
			slog.String("received", string(data.Status)),
		)
		return
	}

	event := data.Event
	if event == "" || event == domain.EventPaymentUpdated {
		event = domain.EventForStatus(data.Status)
	}
	s.notify(ctx, domain.PaymentNotification{
		Event:          event,
		OrganizationID: organizationID,
		Provider:       p,
		PaymentID:      data.PaymentID,
		Status:         data.Status,
		Amount:         data.Amount,
		PaidAt:         data.PaidAt,
		OccurredAt:     s.now().UTC(),
	})
}

func (s *GatewayService) notify(ctx context.Context, n domain.PaymentNotification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log(ctx).Error("failed to notify payment event",
			slog.String("event", string(n.Event)),
			slog.String("payment_id", n.PaymentID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *GatewayService) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, s.logger)
}
