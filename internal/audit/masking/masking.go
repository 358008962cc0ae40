// Package masking redacts payout destination details before they are written
// to the audit trail.
package masking

import "strings"

const maskToken = "****"

// visibleKeys are shown in full; they identify the destination without exposing it.
var visibleKeys = map[string]struct{}{
	"bank_code":    {},
	"bankCode":     {},
	"bank_name":    {},
	"bankName":     {},
	"network":      {},
	"country":      {},
	"account_name": {},
	"accountName":  {},
}

// MaskValue keeps the last four characters of a value.
func MaskValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskDetails returns a copy of payout account details safe for storage.
func MaskDetails(details map[string]string) map[string]any {
	if len(details) == 0 {
		return nil
	}
	out := make(map[string]any, len(details))
	for key, value := range details {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := visibleKeys[key]; ok {
			out[key] = value
			continue
		}
		out[key] = MaskValue(value)
	}
	return out
}
