package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailRegex     = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	vatNumberRegex = regexp.MustCompile(`^[A-Z]{2}[0-9A-Z]{2,12}$`)
	controlChars   = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateVATNumber validates an EU intra-community VAT number
// (country prefix followed by 2 to 12 alphanumerics, spaces ignored)
func ValidateVATNumber(vat string) error {
	normalized := strings.ToUpper(strings.ReplaceAll(vat, " ", ""))
	if !vatNumberRegex.MatchString(normalized) {
		return fmt.Errorf("invalid VAT number: %s", vat)
	}
	// French numbers carry a 2-digit key and the 9-digit SIREN
	if strings.HasPrefix(normalized, "FR") && len(normalized) != 13 {
		return fmt.Errorf("french VAT number must be 13 characters: %s", vat)
	}
	return nil
}

// SanitizeString removes control characters
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}
