package mangofy

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/gateway"
)

const (
	platformTag    = "shortcart-v3"
	pixExpiresDays = 1
	currency       = "BRL"
)

type paymentPayload struct {
	ExternalCode  string            `json:"external_code"`
	PaymentMethod string            `json:"payment_method"`
	PaymentFormat string            `json:"payment_format"`
	PaymentAmount int64             `json:"payment_amount"`
	Installments  int               `json:"installments"`
	PostbackURL   string            `json:"postback_url,omitempty"`
	Customer      customerPayload   `json:"customer"`
	Items         []itemPayload     `json:"items"`
	Metadata      map[string]string `json:"metadata"`
	PIX           *pixPayload       `json:"pix,omitempty"`
}

type customerPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Document string `json:"document,omitempty"`
	Phone    string `json:"phone,omitempty"`
	IP       string `json:"ip,omitempty"`
}

type itemPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

type pixPayload struct {
	ExpiresInDays int `json:"expires_in_days"`
}

// BuildPaymentPayload renders req as the body of POST /payment.
func BuildPaymentPayload(req *domain.PaymentRequest) ([]byte, error) {
	meta := map[string]string{"platform": platformTag}
	maps.Copy(meta, req.Metadata)

	p := paymentPayload{
		ExternalCode:  req.ExternalID,
		PaymentMethod: methodCode(req.Method),
		PaymentFormat: "regular",
		PaymentAmount: req.Amount,
		Installments:  1,
		PostbackURL:   req.WebhookURL,
		Customer: customerPayload{
			Name:     req.Customer.Name,
			Email:    req.Customer.Email,
			Document: req.Customer.Document,
			Phone:    req.Customer.Phone,
			IP:       req.Metadata["customer_ip"],
		},
		Items: []itemPayload{{
			ID:       req.Product.ID,
			Name:     req.Product.Name,
			Quantity: 1,
			Price:    req.Amount,
		}},
		Metadata: meta,
	}
	if req.Method == domain.MethodPIX {
		p.PIX = &pixPayload{ExpiresInDays: pixExpiresDays}
	}
	return json.Marshal(p)
}

type paymentResult struct {
	PaymentCode   json.RawMessage `json:"payment_code"`
	ID            json.RawMessage `json:"id"`
	ExternalCode  string          `json:"external_code"`
	PaymentStatus string          `json:"payment_status"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"payment_method"`
	PaymentAmount int64           `json:"payment_amount"`
	Amount        int64           `json:"amount"`
	PaymentURL    string          `json:"payment_url"`
	ExpiresAt     string          `json:"expires_at"`
	PaidAt        string          `json:"paid_at"`
	GatewayFee    int64           `json:"gateway_fee"`
	PlatformFee   int64           `json:"platform_fee"`
	PIX           *struct {
		QRCodeText string `json:"pix_qrcode_text"`
	} `json:"pix"`
	Boleto *struct {
		Barcode string `json:"barcode"`
	} `json:"boleto"`
}

func (r *paymentResult) code() string {
	if id := gateway.RawID(r.PaymentCode); id != "" {
		return id
	}
	return gateway.RawID(r.ID)
}

// MapPaymentResponse normalizes a Mangofy payment body. req supplies the
// fields Mangofy does not echo and may be nil for status lookups.
func MapPaymentResponse(body []byte, req *domain.PaymentRequest) (*domain.PaymentResponse, error) {
	var r paymentResult
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, gateway.Parse(domain.ProviderMangofy, "malformed payment response", err)
	}
	code := r.code()
	if code == "" {
		return nil, gateway.Parse(domain.ProviderMangofy, "payment response has no payment code", nil)
	}

	resp := &domain.PaymentResponse{
		ID:               code,
		ExternalID:       r.ExternalCode,
		Status:           mapStatus(firstNonEmpty(r.PaymentStatus, r.Status)),
		Amount:           r.PaymentAmount,
		Currency:         currency,
		Method:           methodFromCode(r.PaymentMethod),
		Provider:         domain.ProviderMangofy,
		GatewayPaymentID: code,
		PaymentURL:       r.PaymentURL,
		ExpiresAt:        parseTime(r.ExpiresAt),
		PaidAt:           parseTime(r.PaidAt),
		GatewayResponse:  gateway.BytesToMap(body),
		Fees:             domain.NewFees(r.GatewayFee, r.PlatformFee),
	}
	if resp.Amount == 0 {
		resp.Amount = r.Amount
	}
	if r.PIX != nil {
		resp.QRCode = r.PIX.QRCodeText
	}
	if r.Boleto != nil {
		resp.Barcode = r.Boleto.Barcode
	}
	if req != nil {
		resp.Method = req.Method
		if resp.ExternalID == "" {
			resp.ExternalID = req.ExternalID
		}
		if req.Currency != "" {
			resp.Currency = req.Currency
		}
	}
	return resp, nil
}

type webhookPayload struct {
	Event         string          `json:"event"`
	PaymentCode   json.RawMessage `json:"payment_code"`
	ID            json.RawMessage `json:"id"`
	PaymentStatus string          `json:"payment_status"`
	Status        string          `json:"status"`
	PaymentAmount *int64          `json:"payment_amount"`
	PaidAt        string          `json:"paid_at"`
}

func parseWebhook(payload []byte) (*domain.WebhookData, error) {
	var w webhookPayload
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, gateway.Parse(domain.ProviderMangofy, "malformed webhook payload", err)
	}
	id := gateway.RawID(w.PaymentCode)
	if id == "" {
		id = gateway.RawID(w.ID)
	}
	if id == "" {
		return nil, gateway.Parse(domain.ProviderMangofy, "webhook payload has no payment code", nil)
	}
	return &domain.WebhookData{
		Event:       gateway.EventFromString(w.Event),
		PaymentID:   id,
		Status:      mapStatus(firstNonEmpty(w.PaymentStatus, w.Status)),
		Amount:      w.PaymentAmount,
		PaidAt:      parseTime(w.PaidAt),
		GatewayData: gateway.BytesToMap(payload),
	}, nil
}

func methodCode(m domain.PaymentMethod) string {
	switch m {
	case domain.MethodPIX:
		return "pix"
	case domain.MethodCreditCard:
		return "credit_card"
	case domain.MethodDebitCard:
		return "debit_card"
	case domain.MethodBoleto:
		return "boleto"
	case domain.MethodBankTransfer:
		return "bank_transfer"
	}
	return "pix"
}

func methodFromCode(code string) domain.PaymentMethod {
	if m := domain.PaymentMethod(code); m.Valid() {
		return m
	}
	return domain.MethodPIX
}

func mapStatus(s string) domain.PaymentStatus {
	switch s {
	case "processing":
		return domain.StatusProcessing
	case "approved", "paid":
		return domain.StatusApproved
	case "rejected":
		return domain.StatusRejected
	case "cancelled", "expired":
		return domain.StatusCancelled
	case "refunded":
		return domain.StatusRefunded
	}
	return domain.StatusPending
}

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
