package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/JRebertt/shortcart-v3/pkg/kafka"
	"github.com/JRebertt/shortcart-v3/pkg/logger"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/notification"
)

const ConsumerGroupID = "payment-notifier"

// ConsumerHandler hands consumed notifications to the synchronous notifier.
type ConsumerHandler struct {
	notifier notification.Notifier
	logger   *slog.Logger
}

func NewConsumerHandler(notifier notification.Notifier, logger *slog.Logger) *ConsumerHandler {
	return &ConsumerHandler{notifier: notifier, logger: logger}
}

// Handle decodes the event and dispatches it. An undecodable payload is
// returned as an error so the consumer dead-letters it.
func (h *ConsumerHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	var n domain.PaymentNotification
	if err := event.DecodeData(&n); err != nil {
		return err
	}
	if n.OrganizationID == "" {
		n.OrganizationID = event.OrganizationID
	}
	if n.OrganizationID == "" || n.PaymentID == "" {
		return fmt.Errorf("event %s: missing organization or payment id", event.ID)
	}

	ctx = logger.WithOrganizationID(ctx, n.OrganizationID)
	if event.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, event.CorrelationID)
	}

	h.logger.InfoContext(ctx, "received payment notification",
		slog.String("event_id", event.ID),
		slog.String("event", string(n.Event)),
		slog.String("payment_id", n.PaymentID),
	)
	return h.notifier.Notify(ctx, n)
}

// NewConsumer builds the notification consumer: duplicates are skipped via
// store, and events that keep failing go to dlq.
func NewConsumer(brokers []string, h *ConsumerHandler, store pkgkafka.IdempotencyStore, dlq pkgkafka.DeadLetterPublisher, logger *slog.Logger) *pkgkafka.Consumer {
	cfg := pkgkafka.ConsumerConfig{
		Brokers:  brokers,
		GroupID:  ConsumerGroupID,
		Topic:    TopicPaymentNotification,
		MinBytes: 1,
		MaxBytes: 10e6,
	}
	handler := pkgkafka.IdempotentHandler(store, ConsumerGroupID, h.Handle, logger)
	c := pkgkafka.NewConsumer(cfg, handler, logger)
	if dlq != nil {
		c.WithDeadLetter(dlq)
	}
	return c
}
