// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Normalize canonicalizes a raw phone string from a webhook payload.
// All characters except digits and a leading '+' are stripped. A
// '+'-prefixed result is kept as-is. Otherwise leading zeros are removed;
// exactly 10 remaining digits get the default calling code prefixed
// (e.g. "9876543210" -> "+919876543210" with defaultCallingCode "+91");
// any other length stays a bare digit string. Returns "" when nothing
// parseable remains.
func Normalize(raw, defaultCallingCode string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	for i, r := range trimmed {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "+" {
		return ""
	}

	if strings.HasPrefix(cleaned, "+") {
		return cleaned
	}

	cleaned = strings.TrimLeft(cleaned, "0")
	if cleaned == "" {
		return ""
	}
	if len(cleaned) == 10 {
		return defaultCallingCode + cleaned
	}
	return cleaned
}

// Region returns the ISO 3166-1 alpha-2 region derived from the calling-code
// prefix of a normalized international number ("+919876543210" -> "IN").
// Returns "" for absent or non-international numbers.
func Region(normalized string) string {
	if !strings.HasPrefix(normalized, "+") {
		return ""
	}

	number, err := phonenumbers.Parse(normalized, "")
	if err != nil {
		return ""
	}

	region := phonenumbers.GetRegionCodeForNumber(number)
	if region == "" || region == "ZZ" {
		region = phonenumbers.GetRegionCodeForCountryCode(int(number.GetCountryCode()))
	}
	if region == "ZZ" {
		return ""
	}
	return region
}
