package payment

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"checkout-3ds-api/services/threeds"
)

const (
	// Code is the payment code of the card gateway in the checkout config.
	Code = "braintree"
	// CcVaultCode is the payment code of vaulted cards.
	CcVaultCode = "braintree_cc_vault"
)

// TokenGenerator creates client authorization tokens for the browser SDK.
type TokenGenerator interface {
	GenerateClientToken(ctx context.Context, merchantAccountID string) (string, error)
}

// TokenCache keeps the client token for the lifetime of a shopper session.
type TokenCache interface {
	ClientToken() string
	SetClientToken(token string)
}

// ButtonStyle is the PayPal button style on the checkout page.
type ButtonStyle struct {
	Shape string `json:"shape"`
	Size  string `json:"size"`
	Color string `json:"color"`
}

// DisabledFunding lists the PayPal funding sources turned off.
type DisabledFunding struct {
	Card bool `json:"card"`
	Elv  bool `json:"elv"`
}

// GatewaySettings is the card gateway part of the store configuration.
type GatewaySettings struct {
	Active                   bool
	Environment              string
	MerchantID               string
	MerchantAccountID        string
	CcTypesMapper            map[string]string
	CountrySpecificCardTypes map[string][]string
	AvailableCardTypes       []string
	UseCvv                   bool
	ButtonStyle              ButtonStyle
	DisabledFunding          DisabledFunding
}

// ThreeDSSettings is the 3D Secure part of the store configuration.
type ThreeDSSettings struct {
	Enabled            bool
	ChallengeRequested bool
	ThresholdAmount    decimal.Decimal
	SpecificCountries  []string
	UseCvvVault        bool
}

// GatewayBlock is the card gateway section of the checkout config.
type GatewayBlock struct {
	IsActive                 bool                `json:"isActive"`
	ClientToken              string              `json:"clientToken"`
	CcTypesMapper            map[string]string   `json:"ccTypesMapper"`
	CountrySpecificCardTypes map[string][]string `json:"countrySpecificCardTypes"`
	AvailableCardTypes       []string            `json:"availableCardTypes"`
	UseCvv                   bool                `json:"useCvv"`
	Environment              string              `json:"environment"`
	MerchantID               string              `json:"merchantId"`
	CcVaultCode              string              `json:"ccVaultCode"`
	Style                    ButtonStyle         `json:"style"`
	DisabledFunding          DisabledFunding     `json:"disabledFunding"`
	Icons                    map[string]Icon     `json:"icons"`
}

// ThreeDSecureBlock is the 3D Secure section of the checkout config.
type ThreeDSecureBlock struct {
	Enabled            bool     `json:"enabled"`
	ChallengeRequested bool     `json:"challengeRequested"`
	ThresholdAmount    string   `json:"thresholdAmount"`
	SpecificCountries  []string `json:"specificCountries"`
	IPAddress          string   `json:"ipAddress"`
}

// CheckoutConfig is the read-only payment config handed to the checkout page.
type CheckoutConfig struct {
	Payment struct {
		Gateway      GatewayBlock      `json:"braintree"`
		ThreeDSecure ThreeDSecureBlock `json:"three_d_secure"`
	} `json:"payment"`
}

// ConfigProvider builds the checkout payment config from store settings.
type ConfigProvider struct {
	gateway GatewaySettings
	threeDS ThreeDSSettings
	tokens  TokenGenerator
	icons   *IconSource
}

func NewConfigProvider(gateway GatewaySettings, threeDS ThreeDSSettings, tokens TokenGenerator, icons *IconSource) *ConfigProvider {
	if icons == nil {
		icons = NewIconSource("", "", nil)
	}
	return &ConfigProvider{
		gateway: gateway,
		threeDS: threeDS,
		tokens:  tokens,
		icons:   icons,
	}
}

// IsActive reports whether the card gateway is turned on.
func (p *ConfigProvider) IsActive() bool {
	return p.gateway.Active
}

// Load returns the checkout payment config. It returns
// threeds.ErrConfigUnavailable when the gateway is inactive.
func (p *ConfigProvider) Load(ctx context.Context, remoteIP string, tokens TokenCache) (*CheckoutConfig, error) {
	if !p.gateway.Active {
		return nil, threeds.ErrConfigUnavailable
	}

	cfg := &CheckoutConfig{}
	cfg.Payment.Gateway = GatewayBlock{
		IsActive:                 p.gateway.Active,
		ClientToken:              p.ClientToken(ctx, tokens),
		CcTypesMapper:            p.gateway.CcTypesMapper,
		CountrySpecificCardTypes: p.gateway.CountrySpecificCardTypes,
		AvailableCardTypes:       p.gateway.AvailableCardTypes,
		UseCvv:                   p.gateway.UseCvv,
		Environment:              p.gateway.Environment,
		MerchantID:               p.gateway.MerchantID,
		CcVaultCode:              CcVaultCode,
		Style:                    p.gateway.ButtonStyle,
		DisabledFunding:          p.gateway.DisabledFunding,
		Icons:                    p.icons.Icons(),
	}

	countries := p.threeDS.SpecificCountries
	if countries == nil {
		countries = []string{}
	}
	cfg.Payment.ThreeDSecure = ThreeDSecureBlock{
		Enabled:            p.threeDS.Enabled,
		ChallengeRequested: p.threeDS.ChallengeRequested,
		ThresholdAmount:    p.threeDS.ThresholdAmount.StringFixed(2),
		SpecificCountries:  countries,
		IPAddress:          remoteIP,
	}

	return cfg, nil
}

// ClientToken returns the session's client token, generating one only when the
// cache is empty. A failed generation is logged and leaves the cache empty so
// the next page load tries again.
func (p *ConfigProvider) ClientToken(ctx context.Context, cache TokenCache) string {
	if cache != nil {
		if token := cache.ClientToken(); token != "" {
			return token
		}
	}
	if p.tokens == nil {
		return ""
	}

	token, err := p.tokens.GenerateClientToken(ctx, strings.TrimSpace(p.gateway.MerchantAccountID))
	if err != nil {
		log.Printf("Error generating client token: %v", err)
		return ""
	}
	if cache != nil {
		cache.SetClientToken(token)
	}
	return token
}

// VerificationConfig projects the 3D Secure settings for one shopper.
func (p *ConfigProvider) VerificationConfig(remoteIP string) threeds.Config {
	countries := make([]string, len(p.threeDS.SpecificCountries))
	copy(countries, p.threeDS.SpecificCountries)

	return threeds.Config{
		Enabled:            p.threeDS.Enabled,
		ThresholdAmount:    p.threeDS.ThresholdAmount,
		SpecificCountries:  countries,
		ChallengeRequested: p.threeDS.ChallengeRequested,
		IPAddress:          remoteIP,
		UseCvvVault:        p.threeDS.UseCvvVault,
	}
}

// MemoryTokenCache is a TokenCache for callers without a session.
type MemoryTokenCache struct {
	mu    sync.Mutex
	token string
}

func (c *MemoryTokenCache) ClientToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *MemoryTokenCache) SetClientToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}
