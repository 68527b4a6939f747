// Package notification fans payment lifecycle events out to the webhook
// endpoints an organization registered.
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JRebertt/shortcart-v3/pkg/logger"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/repository"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/webhook"
)

// Notifier announces a payment lifecycle change.
type Notifier interface {
	Notify(ctx context.Context, n domain.PaymentNotification) error
}

// BatchSender is satisfied by *webhook.RetrySender.
type BatchSender interface {
	SendBatch(ctx context.Context, ds []webhook.Delivery) []webhook.Result
}

// Dispatcher delivers notifications synchronously to every subscribed
// endpoint.
type Dispatcher struct {
	endpoints repository.WebhookEndpointRepository
	sender    BatchSender
	logger    *slog.Logger
}

var _ Notifier = (*Dispatcher)(nil)

func NewDispatcher(endpoints repository.WebhookEndpointRepository, sender BatchSender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{endpoints: endpoints, sender: sender, logger: logger}
}

// Dispatch returns one result per subscribed endpoint, in endpoint order.
// Only the endpoint lookup can fail; delivery failures are in the results.
func (d *Dispatcher) Dispatch(ctx context.Context, n domain.PaymentNotification) ([]webhook.Result, error) {
	endpoints, err := d.endpoints.ListActiveByOrganization(ctx, n.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("load webhook endpoints for %s: %w", n.OrganizationID, err)
	}

	var (
		deliveries []webhook.Delivery
		targets    []string
	)
	for _, ep := range endpoints {
		if !ep.IsActive || !ep.Subscribes(n.Event) {
			continue
		}
		deliveries = append(deliveries, webhook.Delivery{
			URL:     ep.URL,
			Event:   n.Event,
			Payload: n,
			Secret:  ep.Secret,
			Headers: map[string]string{"X-Organization-ID": n.OrganizationID},
		})
		targets = append(targets, ep.ID)
	}
	if len(deliveries) == 0 {
		return nil, nil
	}

	results := d.sender.SendBatch(ctx, deliveries)

	log := logger.WithContext(ctx, d.logger)
	for i, res := range results {
		if res.Success {
			continue
		}
		log.Warn("webhook notification not delivered",
			slog.String("endpoint_id", targets[i]),
			slog.String("event", string(n.Event)),
			slog.String("payment_id", n.PaymentID),
			slog.Int("status_code", res.StatusCode),
			slog.Int("retries", res.RetryCount),
			slog.String("error", res.Error),
		)
	}
	log.Info("payment notification dispatched",
		slog.String("event", string(n.Event)),
		slog.String("payment_id", n.PaymentID),
		slog.Int("endpoints", len(results)),
	)
	return results, nil
}

func (d *Dispatcher) Notify(ctx context.Context, n domain.PaymentNotification) error {
	_, err := d.Dispatch(ctx, n)
	return err
}
