package mercadopago

import (
	"crypto/hmac"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/mercadopago/sdk-go/pkg/payment"

	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/gateway"
)

// Card payments need a token created client-side; it travels in metadata.
const (
	metaCardToken     = "card_token"
	metaCardBrand     = "payment_method_id"
	metaInstallments  = "installments"
	boletoMethodID    = "bolbradesco"
	defaultCurrencyID = "BRL"
)

// BuildPaymentRequest maps req onto the SDK payment body.
func BuildPaymentRequest(req *domain.PaymentRequest) (payment.Request, error) {
	body := payment.Request{
		TransactionAmount: gateway.MajorUnits(req.Amount),
		Description:       req.Product.Name,
		ExternalReference: req.ExternalID,
		Installments:      1,
		NotificationURL:   req.WebhookURL,
		Payer: &payment.PayerRequest{
			Email:     req.Customer.Email,
			FirstName: req.Customer.Name,
		},
		Metadata: map[string]any{"platform": "shortcart-v3", "product_id": req.Product.ID},
	}
	if req.Customer.Document != "" {
		body.Payer.Identification = &payment.IdentificationRequest{Type: documentType(req.Customer.Document), Number: req.Customer.Document}
	}
	for k, v := range req.Metadata {
		if k == metaCardToken {
			continue
		}
		body.Metadata[k] = v
	}

	switch req.Method {
	case domain.MethodPIX:
		body.PaymentMethodID = "pix"
	case domain.MethodBoleto:
		body.PaymentMethodID = boletoMethodID
	case domain.MethodCreditCard, domain.MethodDebitCard:
		body.Token = req.Metadata[metaCardToken]
		body.PaymentMethodID = req.Metadata[metaCardBrand]
		if body.Token == "" || body.PaymentMethodID == "" {
			return payment.Request{}, gateway.Rejected(domain.ProviderMercadoPago, 0,
				"card payments need card_token and payment_method_id metadata")
		}
		if n, err := strconv.Atoi(req.Metadata[metaInstallments]); err == nil && n > 0 {
			body.Installments = n
		}
	}
	return body, nil
}

func documentType(doc string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, doc)
	if len(digits) == 14 {
		return "CNPJ"
	}
	return "CPF"
}

func mapPayment(res *payment.Response, req *domain.PaymentRequest) *domain.PaymentResponse {
	id := strconv.Itoa(res.ID)
	resp := &domain.PaymentResponse{
		ID:               id,
		ExternalID:       res.ExternalReference,
		Status:           mapStatus(res.Status),
		Amount:           gateway.MinorUnits(res.TransactionAmount),
		Currency:         res.CurrencyID,
		Method:           methodFromID(res.PaymentMethodID),
		Provider:         domain.ProviderMercadoPago,
		GatewayPaymentID: id,
		QRCode:           res.PointOfInteraction.TransactionData.QRCode,
		PaymentURL:       res.PointOfInteraction.TransactionData.TicketURL,
		GatewayResponse:  gateway.ToMap(res),
	}
	if !res.DateApproved.IsZero() {
		t := res.DateApproved
		resp.PaidAt = &t
	}
	if resp.Currency == "" {
		resp.Currency = defaultCurrencyID
	}
	if req != nil {
		resp.Method = req.Method
		if resp.ExternalID == "" {
			resp.ExternalID = req.ExternalID
		}
	}
	return resp
}

func methodFromID(id string) domain.PaymentMethod {
	switch id {
	case "pix":
		return domain.MethodPIX
	case boletoMethodID, "bolbradesco_ticket", "pec":
		return domain.MethodBoleto
	}
	return domain.MethodCreditCard
}

func mapStatus(s string) domain.PaymentStatus {
	switch s {
	case "approved":
		return domain.StatusApproved
	case "authorized", "in_process", "in_mediation":
		return domain.StatusProcessing
	case "rejected":
		return domain.StatusRejected
	case "cancelled":
		return domain.StatusCancelled
	case "refunded", "charged_back":
		return domain.StatusRefunded
	}
	return domain.StatusPending
}

// notification is the v1 webhook body. It names the payment but carries no
// status, so callers look the payment up.
type notification struct {
	Action string `json:"action"`
	Type   string `json:"type"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

func parseNotification(payload []byte) (*domain.WebhookData, error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, gateway.Parse(domain.ProviderMercadoPago, "malformed notification", err)
	}
	id := gateway.RawID(n.Data.ID)
	if id == "" {
		return nil, gateway.Parse(domain.ProviderMercadoPago, "notification has no data.id", nil)
	}
	return &domain.WebhookData{
		Event:       gateway.EventFromString(n.Action),
		PaymentID:   id,
		GatewayData: gateway.BytesToMap(payload),
	}, nil
}

// ParseSignature splits an x-signature header into ts and v1. A
// request-id part is accepted so callers can carry x-request-id along.
func ParseSignature(header string) (ts, v1, requestID string) {
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "ts":
			ts = strings.TrimSpace(v)
		case "v1":
			v1 = strings.TrimSpace(v)
		case "request-id":
			requestID = strings.TrimSpace(v)
		}
	}
	return ts, v1, requestID
}

// Manifest builds the signed template id:<data.id>;request-id:<id>;ts:<ts>;
// skipping absent parts.
func Manifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	if ts != "" {
		b.WriteString("ts:" + ts + ";")
	}
	return b.String()
}

// VerifySignature checks the manifest HMAC for payload's data.id.
func VerifySignature(payload []byte, header, secret string) bool {
	if secret == "" || header == "" {
		return false
	}
	ts, v1, requestID := ParseSignature(header)
	if ts == "" || v1 == "" {
		return false
	}
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return false
	}
	expected := gateway.SignHMAC([]byte(Manifest(gateway.RawID(n.Data.ID), requestID, ts)), secret)
	return hmac.Equal([]byte(strings.ToLower(v1)), []byte(expected))
}
