package domain

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"
)

type Provider string

const (
	ProviderStripe      Provider = "stripe"
	ProviderMercadoPago Provider = "mercado_pago"
	ProviderPagarme     Provider = "pagarme"
	ProviderAsaas       Provider = "asaas"
	ProviderMangofy     Provider = "mangofy"
)

var providers = []Provider{ProviderStripe, ProviderMercadoPago, ProviderPagarme, ProviderAsaas, ProviderMangofy}

func (p Provider) Valid() bool { return slices.Contains(providers, p) }

type Environment string

const (
	EnvSandbox    Environment = "sandbox"
	EnvProduction Environment = "production"
)

// Credentials are the secrets an adapter needs. They never reach logs or
// JSON output.
type Credentials struct {
	APIKey      string            `json:"-"`
	SecretKey   string            `json:"-"`
	PublicKey   string            `json:"-"`
	Environment Environment       `json:"environment"`
	Extra       map[string]string `json:"-"`
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{environment=%s, api_key=%s}", c.Environment, redact(c.APIKey))
}

func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("environment", string(c.Environment)),
		slog.String("api_key", redact(c.APIKey)),
		slog.Bool("has_secret_key", c.SecretKey != ""),
	)
}

// IsProduction treats anything but an explicit sandbox as production.
func (c Credentials) IsProduction() bool { return c.Environment != EnvSandbox }

func redact(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}

// GatewayConfig is one organization's configuration of one provider.
// (OrganizationID, Provider) is unique.
type GatewayConfig struct {
	ID               string          `json:"id"`
	OrganizationID   string          `json:"organization_id"`
	Provider         Provider        `json:"provider"`
	Name             string          `json:"name"`
	IsActive         bool            `json:"is_active"`
	Priority         int             `json:"priority"`
	SupportedMethods []PaymentMethod `json:"supported_methods,omitempty"`
	Settings         map[string]any  `json:"settings,omitempty"`
	Credentials      *Credentials    `json:"-"`
	WebhookSecret    string          `json:"-"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// AllowsMethod applies the optional method allow-list. An empty list allows
// everything the adapter supports.
func (c *GatewayConfig) AllowsMethod(m PaymentMethod) bool {
	return len(c.SupportedMethods) == 0 || slices.Contains(c.SupportedMethods, m)
}

// SettingString reads a string setting, tolerating non-string JSON values.
func (c *GatewayConfig) SettingString(key string) string {
	switch v := c.Settings[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func (c *GatewayConfig) Clone() *GatewayConfig {
	cp := *c
	cp.SupportedMethods = slices.Clone(c.SupportedMethods)
	if c.Settings != nil {
		cp.Settings = make(map[string]any, len(c.Settings))
		for k, v := range c.Settings {
			cp.Settings[k] = v
		}
	}
	if c.Credentials != nil {
		creds := *c.Credentials
		cp.Credentials = &creds
	}
	return &cp
}
