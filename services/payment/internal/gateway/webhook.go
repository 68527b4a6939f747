package gateway

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
)

// EventFromString maps a provider event name onto a WebhookEvent.
// Unrecognized names become payment.updated.
func EventFromString(s string) domain.WebhookEvent {
	switch e := domain.WebhookEvent(strings.ToLower(strings.TrimSpace(s))); e {
	case domain.EventPaymentCreated, domain.EventPaymentApproved, domain.EventPaymentRejected,
		domain.EventPaymentCancelled, domain.EventPaymentRefunded, domain.EventPaymentUpdated,
		domain.EventSubscriptionCreated, domain.EventSubscriptionCancelled,
		domain.EventCustomerCreated, domain.EventCustomerUpdated:
		return e
	}
	return domain.EventPaymentUpdated
}

// webhookEnvelope is the normalized inbound shape: an event name, a payment
// id under "payment_id" or "id", a status and optional amount and paid_at.
type webhookEnvelope struct {
	Event     string          `json:"event"`
	PaymentID json.RawMessage `json:"payment_id"`
	ID        json.RawMessage `json:"id"`
	Status    string          `json:"status"`
	Amount    *int64          `json:"amount"`
	PaidAt    *time.Time      `json:"paid_at"`
}

// DecodeWebhookData parses the normalized webhook envelope. The raw JSON
// object is kept as GatewayData.
func DecodeWebhookData(p domain.Provider, payload []byte) (*domain.WebhookData, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, Parse(p, "malformed webhook payload", err)
	}
	id := RawID(env.PaymentID)
	if id == "" {
		id = RawID(env.ID)
	}
	if id == "" {
		return nil, Parse(p, "webhook payload has no payment id", nil)
	}

	var raw map[string]any
	_ = json.Unmarshal(payload, &raw)

	status := domain.PaymentStatus(strings.ToLower(env.Status))
	if !status.Valid() {
		status = domain.StatusPending
	}
	return &domain.WebhookData{
		Event:       EventFromString(env.Event),
		PaymentID:   id,
		Status:      status,
		Amount:      env.Amount,
		PaidAt:      env.PaidAt,
		GatewayData: raw,
	}, nil
}

// RawID accepts an identifier encoded as a JSON string or number.
func RawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// ToMap round-trips v through JSON to keep a raw provider payload.
func ToMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return BytesToMap(b)
}

func BytesToMap(b []byte) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

// MinorUnits converts a decimal major-unit amount to minor units.
func MinorUnits(major float64) int64 {
	if major < 0 {
		return -MinorUnits(-major)
	}
	return int64(major*100 + 0.5)
}

// MajorUnits converts minor units to a decimal major-unit amount.
func MajorUnits(minor int64) float64 {
	return float64(minor) / 100
}
