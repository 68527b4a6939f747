package domain

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- PaymentStatus ---

func TestPaymentStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to PaymentStatus
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusCancelled, true},
		{StatusProcessing, StatusApproved, true},
		{StatusProcessing, StatusRejected, true},
		{StatusApproved, StatusRefunded, true},
		{StatusProcessing, StatusCancelled, false},
		{StatusPending, StatusRefunded, false},
		{StatusRejected, StatusApproved, false},
		{StatusRefunded, StatusApproved, false},
		{StatusApproved, StatusPending, false},
		{StatusCancelled, StatusApproved, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestPaymentStatus_Terminal(t *testing.T) {
	assert.True(t, StatusRejected.Terminal())
	assert.True(t, StatusRefunded.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusApproved.Terminal())
	assert.False(t, StatusPending.Terminal())
}

func TestEnums_Valid(t *testing.T) {
	assert.True(t, MethodBoleto.Valid())
	assert.False(t, PaymentMethod("cash").Valid())
	assert.True(t, StatusRefunded.Valid())
	assert.False(t, PaymentStatus("paid").Valid())
	assert.True(t, ProviderMangofy.Valid())
	assert.False(t, Provider("paypal").Valid())
	assert.Len(t, PaymentMethods(), 5)
}

// --- Credentials ---

func TestCredentials_NeverPrintsSecrets(t *testing.T) {
	c := Credentials{APIKey: "sk_live_abcdefgh123", SecretKey: "store-secret", Environment: EnvProduction}

	assert.NotContains(t, c.String(), "abcdefgh123")
	assert.NotContains(t, fmt.Sprintf("%v", c), "store-secret")

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("configured", slog.Any("credentials", c))
	assert.NotContains(t, buf.String(), "abcdefgh123")
	assert.NotContains(t, buf.String(), "store-secret")
	assert.Contains(t, buf.String(), "sk_l****")
}

func TestCredentials_IsProduction(t *testing.T) {
	assert.False(t, Credentials{Environment: EnvSandbox}.IsProduction())
	assert.True(t, Credentials{}.IsProduction())
}

// --- GatewayConfig ---

func TestGatewayConfig_AllowsMethod(t *testing.T) {
	open := &GatewayConfig{}
	assert.True(t, open.AllowsMethod(MethodBoleto))

	restricted := &GatewayConfig{SupportedMethods: []PaymentMethod{MethodPIX}}
	assert.True(t, restricted.AllowsMethod(MethodPIX))
	assert.False(t, restricted.AllowsMethod(MethodCreditCard))
}

func TestGatewayConfig_CloneIsDeep(t *testing.T) {
	orig := &GatewayConfig{
		Provider:         ProviderStripe,
		SupportedMethods: []PaymentMethod{MethodCreditCard},
		Settings:         map[string]any{"webhookSecret": "whsec"},
		Credentials:      &Credentials{APIKey: "k"},
	}
	cp := orig.Clone()
	cp.SupportedMethods[0] = MethodPIX
	cp.Settings["webhookSecret"] = "other"
	cp.Credentials.APIKey = "changed"

	assert.Equal(t, MethodCreditCard, orig.SupportedMethods[0])
	assert.Equal(t, "whsec", orig.SettingString("webhookSecret"))
	assert.Equal(t, "k", orig.Credentials.APIKey)
}

func TestGatewayConfig_SettingString(t *testing.T) {
	c := &GatewayConfig{Settings: map[string]any{"n": float64(3), "b": true, "s": "x"}}
	assert.Equal(t, "3", c.SettingString("n"))
	assert.Equal(t, "true", c.SettingString("b"))
	assert.Equal(t, "x", c.SettingString("s"))
	assert.Equal(t, "", c.SettingString("missing"))
}

// --- Webhooks ---

func TestEventForStatus(t *testing.T) {
	assert.Equal(t, EventPaymentApproved, EventForStatus(StatusApproved))
	assert.Equal(t, EventPaymentRefunded, EventForStatus(StatusRefunded))
	assert.Equal(t, EventPaymentUpdated, EventForStatus(StatusProcessing))
}

func TestWebhookEndpoint_Subscribes(t *testing.T) {
	all := &WebhookEndpoint{}
	assert.True(t, all.Subscribes(EventPaymentApproved))

	some := &WebhookEndpoint{Events: []WebhookEvent{EventPaymentRefunded}}
	assert.False(t, some.Subscribes(EventPaymentApproved))
	require.True(t, some.Subscribes(EventPaymentRefunded))
}

func TestPaymentLimits_Allows(t *testing.T) {
	l := PaymentLimits{Min: 100, Max: 1000}
	assert.True(t, l.Allows(100))
	assert.True(t, l.Allows(1000))
	assert.False(t, l.Allows(99))
	assert.False(t, l.Allows(1001))
}
