package entity

import (
	"regexp"
	"time"
)

var sirenPattern = regexp.MustCompile(`^\d{9}$`)

// User is a registered account able to own invoices
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	SIREN     *string   `json:"siren_number"`
	Phone     *string   `json:"phone"`
	Address   *string   `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// IsValidSIREN checks the French company registry number format
func IsValidSIREN(s string) bool {
	return sirenPattern.MatchString(s)
}
