package domain

import (
	"slices"
	"time"
)

type WebhookEvent string

const (
	EventPaymentCreated        WebhookEvent = "payment.created"
	EventPaymentApproved       WebhookEvent = "payment.approved"
	EventPaymentRejected       WebhookEvent = "payment.rejected"
	EventPaymentCancelled      WebhookEvent = "payment.cancelled"
	EventPaymentRefunded       WebhookEvent = "payment.refunded"
	EventPaymentUpdated        WebhookEvent = "payment.updated"
	EventSubscriptionCreated   WebhookEvent = "subscription.created"
	EventSubscriptionCancelled WebhookEvent = "subscription.cancelled"
	EventCustomerCreated       WebhookEvent = "customer.created"
	EventCustomerUpdated       WebhookEvent = "customer.updated"
)

// EventForStatus picks the lifecycle event announced when a payment enters s.
func EventForStatus(s PaymentStatus) WebhookEvent {
	switch s {
	case StatusApproved:
		return EventPaymentApproved
	case StatusRejected:
		return EventPaymentRejected
	case StatusCancelled:
		return EventPaymentCancelled
	case StatusRefunded:
		return EventPaymentRefunded
	case StatusPending:
		return EventPaymentCreated
	}
	return EventPaymentUpdated
}

// WebhookData is an inbound provider callback after parsing.
type WebhookData struct {
	Event       WebhookEvent   `json:"event"`
	PaymentID   string         `json:"payment_id"`
	Status      PaymentStatus  `json:"status"`
	Amount      *int64         `json:"amount,omitempty"`
	PaidAt      *time.Time     `json:"paid_at,omitempty"`
	GatewayData map[string]any `json:"gateway_data,omitempty"`
}

// WebhookEndpoint is an organization's outbound notification subscriber.
type WebhookEndpoint struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	URL            string         `json:"url"`
	Secret         string         `json:"-"`
	Events         []WebhookEvent `json:"events"`
	IsActive       bool           `json:"is_active"`
}

// Subscribes reports whether the endpoint wants e. No events means all.
func (w *WebhookEndpoint) Subscribes(e WebhookEvent) bool {
	return len(w.Events) == 0 || slices.Contains(w.Events, e)
}

// PaymentNotification is the body delivered to organization endpoints.
type PaymentNotification struct {
	Event          WebhookEvent  `json:"event"`
	OrganizationID string        `json:"organization_id"`
	Provider       Provider      `json:"provider"`
	PaymentID      string        `json:"payment_id"`
	ExternalID     string        `json:"external_id,omitempty"`
	Status         PaymentStatus `json:"status"`
	Amount         *int64        `json:"amount,omitempty"`
	PaidAt         *time.Time    `json:"paid_at,omitempty"`
	OccurredAt     time.Time     `json:"occurred_at"`
}
