// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when the caller does not supply one.
const DefaultRegion = "US"

const channelPrefix = "whatsapp:"

// NormalizeE164 formats a phone number to E.164 using DefaultRegion.
// If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	return NormalizeE164In(input, DefaultRegion)
}

// NormalizeE164In formats a phone number to E.164, resolving national numbers
// against region. If parsing fails, it returns the trimmed input.
func NormalizeE164In(input, region string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}
	if region == "" {
		region = DefaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// StripChannel removes a "whatsapp:" address prefix, case-insensitively.
func StripChannel(address string) string {
	trimmed := strings.TrimSpace(address)
	if len(trimmed) >= len(channelPrefix) && strings.EqualFold(trimmed[:len(channelPrefix)], channelPrefix) {
		return strings.TrimSpace(trimmed[len(channelPrefix):])
	}
	return trimmed
}

// DigitsOnly drops every non-digit rune.
func DigitsOnly(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
