package domain

import (
	"slices"
	"time"
)

type PaymentMethod string

const (
	MethodPIX          PaymentMethod = "pix"
	MethodCreditCard   PaymentMethod = "credit_card"
	MethodDebitCard    PaymentMethod = "debit_card"
	MethodBoleto       PaymentMethod = "boleto"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

var paymentMethods = []PaymentMethod{MethodPIX, MethodCreditCard, MethodDebitCard, MethodBoleto, MethodBankTransfer}

func PaymentMethods() []PaymentMethod { return slices.Clone(paymentMethods) }

func (m PaymentMethod) Valid() bool { return slices.Contains(paymentMethods, m) }

type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusProcessing PaymentStatus = "processing"
	StatusApproved   PaymentStatus = "approved"
	StatusRejected   PaymentStatus = "rejected"
	StatusCancelled  PaymentStatus = "cancelled"
	StatusRefunded   PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusApproved, StatusRejected, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// transitions lists the lifecycle edges observable through the gateways.
// A provider may report the final state of a pending payment without ever
// exposing the processing step.
var transitions = map[PaymentStatus][]PaymentStatus{
	StatusPending:    {StatusProcessing, StatusApproved, StatusRejected, StatusCancelled},
	StatusProcessing: {StatusApproved, StatusRejected},
	StatusApproved:   {StatusRefunded},
}

// CanTransitionTo reports whether moving from s to next is a valid lifecycle step.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return slices.Contains(transitions[s], next)
}

// Predecessors lists the states from which next may be entered.
func Predecessors(next PaymentStatus) []PaymentStatus {
	var out []PaymentStatus
	for _, from := range []PaymentStatus{StatusPending, StatusProcessing, StatusApproved} {
		if from.CanTransitionTo(next) {
			out = append(out, from)
		}
	}
	return out
}

// Terminal is true for states with no outgoing transition.
func (s PaymentStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

type Customer struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=200"`
	Phone    string `json:"phone,omitempty"`
	Document string `json:"document,omitempty"`
	Address  string `json:"address,omitempty"`
}

type ProductType string

const (
	ProductDigital  ProductType = "digital"
	ProductPhysical ProductType = "physical"
)

type Product struct {
	ID          string      `json:"id" validate:"required"`
	Name        string      `json:"name" validate:"required,max=200"`
	Description string      `json:"description,omitempty"`
	Type        ProductType `json:"type" validate:"omitempty,oneof=digital physical"`
}

// PaymentRequest is the provider-agnostic charge intent. Amount is in minor
// units of Currency.
type PaymentRequest struct {
	ExternalID string            `json:"external_id" validate:"required,max=100"`
	Amount     int64             `json:"amount" validate:"gt=0"`
	Currency   string            `json:"currency" validate:"required,len=3"`
	Method     PaymentMethod     `json:"method" validate:"required,oneof=pix credit_card debit_card boleto bank_transfer"`
	Customer   Customer          `json:"customer"`
	Product    Product           `json:"product"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	SuccessURL string            `json:"success_url,omitempty" validate:"omitempty,url"`
	CancelURL  string            `json:"cancel_url,omitempty" validate:"omitempty,url"`
	WebhookURL string            `json:"webhook_url,omitempty" validate:"omitempty,url"`
}

type Fees struct {
	Gateway  int64 `json:"gateway"`
	Platform int64 `json:"platform"`
	Total    int64 `json:"total"`
}

func NewFees(gateway, platform int64) Fees {
	return Fees{Gateway: gateway, Platform: platform, Total: gateway + platform}
}

// PaymentResponse is the normalized provider answer. GatewayResponse keeps
// the raw provider payload for audit.
type PaymentResponse struct {
	ID               string         `json:"id"`
	ExternalID       string         `json:"external_id"`
	Status           PaymentStatus  `json:"status"`
	Amount           int64          `json:"amount"`
	Currency         string         `json:"currency"`
	Method           PaymentMethod  `json:"method"`
	Provider         Provider       `json:"provider"`
	GatewayPaymentID string         `json:"gateway_payment_id"`
	PaymentURL       string         `json:"payment_url,omitempty"`
	QRCode           string         `json:"qr_code,omitempty"`
	Barcode          string         `json:"barcode,omitempty"`
	ExpiresAt        *time.Time     `json:"expires_at,omitempty"`
	PaidAt           *time.Time     `json:"paid_at,omitempty"`
	GatewayResponse  map[string]any `json:"gateway_response,omitempty"`
	Fees             Fees           `json:"fees"`
}

type PaymentLimits struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Allows reports whether amount fits in the inclusive range.
func (l PaymentLimits) Allows(amount int64) bool {
	return amount >= l.Min && amount <= l.Max
}
