package threeds

import (
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"checkout-3ds-api/types"
)

// MaxRegionCodeLength is the longest region code the lookup accepts; longer
// values are free-text region names.
const MaxRegionCodeLength = 2

// MaxStreetLineLength is the processor limit on each street line.
const MaxStreetLineLength = 50

// Address is a checkout quote address. An empty RegionCode means no region.
type Address struct {
	FirstName  string   `json:"firstname"`
	LastName   string   `json:"lastname"`
	Street     []string `json:"street"`
	City       string   `json:"city"`
	RegionCode string   `json:"regionCode,omitempty"`
	Postcode   string   `json:"postcode"`
	CountryID  string   `json:"countryId"`
	Telephone  string   `json:"telephone"`
}

// StreetLine returns the n-th street line, or "" when the address has fewer lines.
func (a Address) StreetLine(n int) string {
	if n < 0 || n >= len(a.Street) {
		return ""
	}
	return a.Street[n]
}

// Normalize returns a copy of the address that is safe to send to the lookup.
// Region codes longer than two characters are dropped and the name fields are
// escaped to ASCII. The source address is left untouched.
func Normalize(a Address) Address {
	out := a
	out.Street = append([]string(nil), a.Street...)
	if codeUnits(out.RegionCode) > MaxRegionCodeLength {
		out.RegionCode = ""
	}
	out.FirstName = EscapeNonASCII(a.FirstName)
	out.LastName = EscapeNonASCII(a.LastName)
	return out
}

// EscapeNonASCII replaces every character above U+007F with a \uXXXX escape.
// Characters outside the Basic Multilingual Plane become a surrogate pair.
func EscapeNonASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r <= 0x7F {
			b.WriteRune(r)
			continue
		}
		if r1, r2 := utf16.EncodeRune(r); r1 != utf8.RuneError {
			fmt.Fprintf(&b, "\\u%04x\\u%04x", r1, r2)
			continue
		}
		fmt.Fprintf(&b, "\\u%04x", r)
	}
	return b.String()
}

// codeUnits is the UTF-16 length of s, which is how the browser SDK and the
// processor measure field limits.
func codeUnits(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 && r <= utf8.MaxRune {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// streetLineTooLong reports which line ("line1" or "line2") first exceeds the
// processor limit across billing and shipping. Line 1 is checked on both
// addresses before line 2.
func streetLineTooLong(billing Address, shipping *Address) string {
	for i, name := range []string{"line1", "line2"} {
		if codeUnits(billing.StreetLine(i)) > MaxStreetLineLength {
			return name
		}
		if shipping != nil && codeUnits(shipping.StreetLine(i)) > MaxStreetLineLength {
			return name
		}
	}
	return ""
}

func billingAddress(a Address) types.BillingAddressType {
	return types.BillingAddressType{
		GivenName:         a.FirstName,
		Surname:           a.LastName,
		PhoneNumber:       a.Telephone,
		StreetAddress:     a.StreetLine(0),
		ExtendedAddress:   a.StreetLine(1),
		Locality:          a.City,
		Region:            a.RegionCode,
		PostalCode:        a.Postcode,
		CountryCodeAlpha2: a.CountryID,
	}
}

func shippingInformation(a Address, ipAddress string) types.AdditionalInformationType {
	return types.AdditionalInformationType{
		ShippingGivenName: a.FirstName,
		ShippingSurname:   a.LastName,
		ShippingAddress: &types.ShippingAddressType{
			StreetAddress:     a.StreetLine(0),
			ExtendedAddress:   a.StreetLine(1),
			Locality:          a.City,
			Region:            a.RegionCode,
			PostalCode:        a.Postcode,
			CountryCodeAlpha2: a.CountryID,
		},
		ShippingPhone: a.Telephone,
		IPAddress:     ipAddress,
	}
}
