package threeds

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Shopper-facing messages. They are keys into the translation catalog.
const (
	MsgTryAnotherPayment = "Please try again with another form of payment."
	msgLineTooLong       = "Billing/Shipping %s must be string and less than 50 characters."
	msgUpdateAddress     = "Please update the address and try again."
)

// Translator turns a message key into the shopper's language.
type Translator interface {
	Translate(msg string) string
}

type nopTranslator struct{}

func (nopTranslator) Translate(msg string) string { return msg }

// Catalog is a flat message -> translation map. Unknown messages pass through.
type Catalog map[string]string

func (c Catalog) Translate(msg string) string {
	if t, ok := c[msg]; ok && t != "" {
		return t
	}
	return msg
}

// LoadCatalog reads message -> translation pairs from a JSON file, or from a
// YAML file when the extension is .yaml or .yml.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read translations: %w", err)
	}

	var c Catalog
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &c)
	default:
		err = json.Unmarshal(data, &c)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse translations %s: %w", path, err)
	}
	if c == nil {
		c = Catalog{}
	}
	return c, nil
}

func lineTooLongMessage(line string) string {
	return fmt.Sprintf(msgLineTooLong, line) + " " + msgUpdateAddress
}
