package entity

import (
	"fmt"
	"time"

	"github.com/garyjia/invoice-financing/internal/domain/lifecycle"
)

// ChangeSet is a partial update of an invoice. Only present fields are written.
// Fields tagged json:"-" are set by the system, never by request bodies.
type ChangeSet struct {
	UserID Field[string]           `json:"user_id"`
	Status Field[lifecycle.Status] `json:"-"`

	InvoiceNumber Field[string]  `json:"invoice_number"`
	Client        Field[string]  `json:"client"`
	Amount        Field[float64] `json:"amount"`
	DueDate       Field[Date]    `json:"due_date"`
	Description   Field[string]  `json:"description"`

	ClientType       Field[string] `json:"client_type"`
	ClientEmail      Field[string] `json:"client_email"`
	ClientPhone      Field[string] `json:"client_phone"`
	ClientAddress    Field[string] `json:"client_address"`
	ClientPostalCode Field[string] `json:"client_postal_code"`
	ClientCity       Field[string] `json:"client_city"`
	ClientCountry    Field[string] `json:"client_country"`
	ClientVATNumber  Field[string] `json:"client_vat_number"`
	ClientSIREN      Field[string] `json:"client_siren"`
	Currency         Field[string] `json:"currency"`

	Score         Field[float64]   `json:"-"`
	PennylaneID   Field[string]    `json:"-"`
	PandaDocID    Field[string]    `json:"-"`
	Error         Field[string]    `json:"-"`
	FinancingDate Field[time.Time] `json:"-"`
}

// Validate rejects explicit nulls on non-nullable fields and out of range values
func (cs ChangeSet) Validate() error {
	nonNullable := map[string]bool{
		"status":         cs.Status.Null,
		"invoice_number": cs.InvoiceNumber.Null,
		"client":         cs.Client.Null,
		"amount":         cs.Amount.Null,
		"client_type":    cs.ClientType.Null,
		"currency":       cs.Currency.Null,
	}
	for _, name := range sortedKeys(nonNullable) {
		if nonNullable[name] {
			return fmt.Errorf("%w: %s cannot be null", ErrInvalidInput, name)
		}
	}

	if cs.Status.Set && !cs.Status.Value.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, cs.Status.Value)
	}
	if cs.Score.Set && !cs.Score.Null && (cs.Score.Value < 0 || cs.Score.Value > 1) {
		return fmt.Errorf("%w: score %v outside [0,1]", ErrInvalidInput, cs.Score.Value)
	}
	if cs.ClientSIREN.Set && !cs.ClientSIREN.Null && !IsValidSIREN(cs.ClientSIREN.Value) {
		return fmt.Errorf("%w: client_siren must be 9 digits", ErrInvalidInput)
	}
	return nil
}

// Keys returns the names of the present fields, for logging
func (cs ChangeSet) Keys() []string {
	present := map[string]bool{
		"user_id":            cs.UserID.Set,
		"status":             cs.Status.Set,
		"invoice_number":     cs.InvoiceNumber.Set,
		"client":             cs.Client.Set,
		"amount":             cs.Amount.Set,
		"due_date":           cs.DueDate.Set,
		"description":        cs.Description.Set,
		"client_type":        cs.ClientType.Set,
		"client_email":       cs.ClientEmail.Set,
		"client_phone":       cs.ClientPhone.Set,
		"client_address":     cs.ClientAddress.Set,
		"client_postal_code": cs.ClientPostalCode.Set,
		"client_city":        cs.ClientCity.Set,
		"client_country":     cs.ClientCountry.Set,
		"client_vat_number":  cs.ClientVATNumber.Set,
		"client_siren":       cs.ClientSIREN.Set,
		"currency":           cs.Currency.Set,
		"score":              cs.Score.Set,
		"pennylane_id":       cs.PennylaneID.Set,
		"pandadoc_id":        cs.PandaDocID.Set,
		"error":              cs.Error.Set,
		"financing_date":     cs.FinancingDate.Set,
	}

	keys := make([]string, 0, len(present))
	for _, name := range sortedKeys(present) {
		if present[name] {
			keys = append(keys, name)
		}
	}
	return keys
}

// IsEmpty reports whether no field is present
func (cs ChangeSet) IsEmpty() bool {
	return len(cs.Keys()) == 0
}

// WithoutNulls drops explicit nulls, leaving those fields absent
func (cs ChangeSet) WithoutNulls() ChangeSet {
	out := cs
	dropNull(&out.UserID)
	dropNull(&out.InvoiceNumber)
	dropNull(&out.Client)
	dropNull(&out.Amount)
	dropNull(&out.DueDate)
	dropNull(&out.Description)
	dropNull(&out.ClientType)
	dropNull(&out.ClientEmail)
	dropNull(&out.ClientPhone)
	dropNull(&out.ClientAddress)
	dropNull(&out.ClientPostalCode)
	dropNull(&out.ClientCity)
	dropNull(&out.ClientCountry)
	dropNull(&out.ClientVATNumber)
	dropNull(&out.ClientSIREN)
	dropNull(&out.Currency)
	return out
}

func dropNull[T any](f *Field[T]) {
	if f.Null {
		*f = Field[T]{}
	}
}
