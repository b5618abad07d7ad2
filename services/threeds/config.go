package threeds

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Code is the payment code the checkout uses for this verification step.
const Code = "three_d_secure"

// VaultMethodPrefix marks payment methods backed by a vaulted card.
const VaultMethodPrefix = "braintree_cc_vault_"

// Config holds the 3D Secure settings for one checkout session. It is built
// once by the config provider and never changed afterwards.
type Config struct {
	Enabled            bool
	ThresholdAmount    decimal.Decimal
	SpecificCountries  []string
	ChallengeRequested bool
	IPAddress          string
	UseCvvVault        bool
}

// IsAmountAvailable reports whether the amount reaches the 3DS threshold.
func (c Config) IsAmountAvailable(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(c.ThresholdAmount)
}

// IsCountryAvailable reports whether the billing country is eligible. An empty
// allow-list accepts every country.
func (c Config) IsCountryAvailable(countryID string) bool {
	if len(c.SpecificCountries) == 0 {
		return true
	}
	for _, country := range c.SpecificCountries {
		if country == countryID {
			return true
		}
	}
	return false
}

// IsVaultExempt reports whether a vaulted card skips 3DS because CVV
// re-entry is configured for vaulted cards.
func (c Config) IsVaultExempt(method string) bool {
	return c.UseCvvVault && strings.Contains(method, VaultMethodPrefix)
}
