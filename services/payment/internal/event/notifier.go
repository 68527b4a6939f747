// Package event moves payment notifications through Kafka so webhook
// fan-out happens outside the request that observed the change.
package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/JRebertt/shortcart-v3/pkg/kafka"
	"github.com/JRebertt/shortcart-v3/pkg/logger"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
)

const SourcePaymentService = "payment-service"

// TopicPaymentNotification carries every domain.PaymentNotification.
var TopicPaymentNotification = pkgkafka.Topic("payment", "notification")

// Publisher is satisfied by *pkgkafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// KafkaNotifier publishes notifications keyed by payment id, so the events
// of one payment are consumed in order.
type KafkaNotifier struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewKafkaNotifier(publisher Publisher, logger *slog.Logger) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher, logger: logger}
}

func (k *KafkaNotifier) Notify(ctx context.Context, n domain.PaymentNotification) error {
	event, err := pkgkafka.NewEvent(string(n.Event), string(n.Provider)+":"+n.PaymentID, SourcePaymentService, n)
	if err != nil {
		return fmt.Errorf("create %s event: %w", n.Event, err)
	}
	event.WithOrganization(n.OrganizationID)
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := k.publisher.Publish(ctx, TopicPaymentNotification, event); err != nil {
		return fmt.Errorf("publish %s event: %w", n.Event, err)
	}

	k.logger.DebugContext(ctx, "published payment notification",
		slog.String("event", string(n.Event)),
		slog.String("payment_id", n.PaymentID),
		slog.String("event_id", event.ID),
	)
	return nil
}
