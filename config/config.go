package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"checkout-3ds-api/database"
	"checkout-3ds-api/services/payment"
	"checkout-3ds-api/services/payment/braintree"
)

type Config struct {
	Database  database.DatabaseConfig
	Braintree braintree.ClientConfig
	Gateway   payment.GatewaySettings
	ThreeDS   payment.ThreeDSSettings
	Challenge ChallengeConfig
	Session   SessionConfig
	Icons     IconConfig
	Server    ServerConfig
	Redis     RedisConfig
}

type ChallengeConfig struct {
	Timeout          time.Duration
	VerifyWait       time.Duration
	TokenSecret      string
	TranslationsFile string
}

type SessionConfig struct {
	Name   string
	Secret string
	MaxAge time.Duration
	Secure bool
}

type IconConfig struct {
	Dir     string
	BaseURL string
}

type ServerConfig struct {
	Port               string
	InternalAllowedIPs []string
	InternalSecret     string
	TrustedProxies     []string
}

type RedisConfig struct {
	URL               string
	WorkerConcurrency int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}
	return FromEnv()
}

// FromEnv reads the configuration from the process environment.
func FromEnv() *Config {
	cfg := &Config{
		Database: database.DatabaseConfig{
			Host:     os.Getenv("DB_HOST"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   os.Getenv("DB_NAME"),
		},
		Braintree: braintree.ClientConfig{
			PublicKey:         os.Getenv("BRAINTREE_PUBLIC_KEY"),
			PrivateKey:        os.Getenv("BRAINTREE_PRIVATE_KEY"),
			MerchantID:        os.Getenv("BRAINTREE_MERCHANT_ID"),
			MerchantAccountID: os.Getenv("BRAINTREE_MERCHANT_ACCOUNT_ID"),
			Environment:       getString("BRAINTREE_ENVIRONMENT", "sandbox"),
			Endpoint:          os.Getenv("BRAINTREE_ENDPOINT"),
		},
		Gateway: payment.GatewaySettings{
			Active:                   getBool("BRAINTREE_ACTIVE", false),
			Environment:              getString("BRAINTREE_ENVIRONMENT", "sandbox"),
			MerchantID:               os.Getenv("BRAINTREE_MERCHANT_ID"),
			MerchantAccountID:        os.Getenv("BRAINTREE_MERCHANT_ACCOUNT_ID"),
			CcTypesMapper:            getJSONMap("BRAINTREE_CC_TYPES_MAPPER"),
			CountrySpecificCardTypes: getJSONListMap("BRAINTREE_COUNTRY_CARD_TYPES"),
			AvailableCardTypes:       getList("BRAINTREE_AVAILABLE_CARD_TYPES"),
			UseCvv:                   getBool("BRAINTREE_USE_CVV", true),
			ButtonStyle: payment.ButtonStyle{
				Shape: getString("BRAINTREE_PAYPAL_BUTTON_SHAPE", "rect"),
				Size:  getString("BRAINTREE_PAYPAL_BUTTON_SIZE", "medium"),
				Color: getString("BRAINTREE_PAYPAL_BUTTON_COLOR", "gold"),
			},
			DisabledFunding: payment.DisabledFunding{
				Card: getBool("BRAINTREE_PAYPAL_DISABLE_CARD", false),
				Elv:  getBool("BRAINTREE_PAYPAL_DISABLE_ELV", false),
			},
		},
		ThreeDS: payment.ThreeDSSettings{
			Enabled:            getBool("THREEDS_ENABLED", false),
			ChallengeRequested: getBool("THREEDS_CHALLENGE_REQUESTED", false),
			ThresholdAmount:    getDecimal("THREEDS_THRESHOLD_AMOUNT", decimal.Zero),
			SpecificCountries:  getList("THREEDS_SPECIFIC_COUNTRIES"),
			UseCvvVault:        getBool("BRAINTREE_CVV_FOR_VAULT", false),
		},
		Challenge: ChallengeConfig{
			Timeout:          getDuration("THREEDS_CHALLENGE_TIMEOUT", braintree.DefaultChallengeTimeout),
			VerifyWait:       getDuration("THREEDS_VERIFY_WAIT", 20*time.Second),
			TokenSecret:      os.Getenv("CHALLENGE_TOKEN_SECRET"),
			TranslationsFile: os.Getenv("THREEDS_TRANSLATIONS_FILE"),
		},
		Session: SessionConfig{
			Name:   getString("SESSION_NAME", "checkout_session"),
			Secret: os.Getenv("SESSION_SECRET"),
			MaxAge: getDuration("SESSION_MAX_AGE", 3*time.Hour),
			Secure: getBool("SESSION_SECURE", true),
		},
		Icons: IconConfig{
			Dir:     os.Getenv("ICON_DIR"),
			BaseURL: os.Getenv("ICON_BASE_URL"),
		},
		Server: ServerConfig{
			Port:               getString("SERVER_PORT", "8080"),
			InternalAllowedIPs: getList("INTERNAL_ALLOWED_IPS"),
			InternalSecret:     os.Getenv("INTERNAL_API_SECRET"),
			TrustedProxies:     getList("TRUSTED_PROXIES"),
		},
		Redis: RedisConfig{
			URL:               os.Getenv("REDIS_URL"),
			WorkerConcurrency: getInt("WORKER_CONCURRENCY", 2),
		},
	}

	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
		log.Printf("Warning: REDIS_URL not set, using default: %s", cfg.Redis.URL)
	}

	return cfg
}

// Validate reports every missing setting the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Host == "" || c.Database.DBName == "" {
		errs = append(errs, errors.New("DB_HOST and DB_NAME are required"))
	}
	if c.Gateway.Active && (c.Braintree.PublicKey == "" || c.Braintree.PrivateKey == "") {
		errs = append(errs, errors.New("BRAINTREE_PUBLIC_KEY and BRAINTREE_PRIVATE_KEY are required when the gateway is active"))
	}
	if len(c.Session.Secret) < 32 {
		errs = append(errs, errors.New("SESSION_SECRET must be at least 32 characters"))
	}
	if c.Challenge.TokenSecret == "" {
		errs = append(errs, errors.New("CHALLENGE_TOKEN_SECRET is required"))
	}
	for _, proxy := range c.Server.TrustedProxies {
		if !validProxy(proxy) {
			errs = append(errs, fmt.Errorf("TRUSTED_PROXIES entry %q is not an IP or CIDR", proxy))
		}
	}
	return errors.Join(errs...)
}

func validProxy(entry string) bool {
	if net.ParseIP(entry) != nil {
		return true
	}
	_, _, err := net.ParseCIDR(entry)
	return err == nil
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Warning: invalid boolean for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: invalid integer for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("Warning: invalid duration for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return d
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		log.Printf("Warning: invalid amount for %s: %q, using %s", key, v, fallback.StringFixed(2))
		return fallback
	}
	return d
}

// getList splits a comma separated value, dropping empty items.
func getList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getJSONMap(key string) map[string]string {
	out := map[string]string{}
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return out
	}
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		log.Printf("Warning: invalid JSON object for %s: %v", key, err)
		return map[string]string{}
	}
	return out
}

func getJSONListMap(key string) map[string][]string {
	out := map[string][]string{}
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return out
	}
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		log.Printf("Warning: invalid JSON object for %s: %v", key, err)
		return map[string][]string{}
	}
	return out
}
