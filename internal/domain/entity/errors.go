package entity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned when a document cannot be rasterized
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrMissingRequiredFields matches any *MissingRequiredFieldsError
	ErrMissingRequiredFields = errors.New("missing required fields")

	// ErrInvalidDateFormat is returned when a date is not YYYY-MM-DD
	ErrInvalidDateFormat = errors.New("invalid date format, expected YYYY-MM-DD")

	// ErrMalformedAmount is returned when an amount cannot be read as a number
	ErrMalformedAmount = errors.New("malformed amount")

	// ErrMalformedResponse is returned when an oracle answer has an unexpected shape
	ErrMalformedResponse = errors.New("malformed extraction response")

	// ErrOracleUnavailable is returned when the oracle call fails or times out
	ErrOracleUnavailable = errors.New("extraction service unavailable")

	// ErrNotFound is returned when an invoice or user does not exist
	ErrNotFound = errors.New("not found")

	// ErrOwnershipConflict is returned when an invoice already belongs to someone else
	ErrOwnershipConflict = errors.New("invoice already owned by another user")

	// ErrInvalidReference is returned when a user id does not resolve to a user
	ErrInvalidReference = errors.New("referenced user does not exist")

	// ErrInvalidInput is returned for malformed caller input
	ErrInvalidInput = errors.New("invalid input")
)

// MissingRequiredFieldsError lists the required fields absent from an extraction
type MissingRequiredFieldsError struct {
	Fields []string
}

func (e *MissingRequiredFieldsError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

func (e *MissingRequiredFieldsError) Is(target error) bool {
	return target == ErrMissingRequiredFields
}
