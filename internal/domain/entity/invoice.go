package entity

import (
	"time"

	"github.com/garyjia/invoice-financing/internal/domain/lifecycle"
)

// Invoice is the persisted invoice record
type Invoice struct {
	ID     string           `json:"id"`
	UserID *string          `json:"user_id"`
	Status lifecycle.Status `json:"status"`

	InvoiceNumber string  `json:"invoice_number"`
	Client        string  `json:"client"`
	Amount        float64 `json:"amount"`
	DueDate       *Date   `json:"due_date"`
	Description   *string `json:"description"`

	ClientType       string  `json:"client_type"`
	ClientEmail      *string `json:"client_email"`
	ClientPhone      *string `json:"client_phone"`
	ClientAddress    *string `json:"client_address"`
	ClientPostalCode *string `json:"client_postal_code"`
	ClientCity       *string `json:"client_city"`
	ClientCountry    *string `json:"client_country"`
	ClientVATNumber  *string `json:"client_vat_number"`
	ClientSIREN      *string `json:"client_siren"`
	Currency         string  `json:"currency"`

	Score             *float64 `json:"score"`
	PossibleFinancing *float64 `json:"possible_financing"`

	PennylaneID *string `json:"pennylane_id"`
	PandaDocID  *string `json:"pandadoc_id"`

	Error *string `json:"error"`

	FinancingDate *time.Time `json:"financing_date"`
	CreatedAt     time.Time  `json:"created_date"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsOwnedBy reports whether the invoice belongs to userID
func (inv *Invoice) IsOwnedBy(userID string) bool {
	return inv.UserID != nil && *inv.UserID == userID
}

// HasScore reports whether the derived financing fields are populated
func (inv *Invoice) HasScore() bool {
	return inv.Score != nil && inv.PossibleFinancing != nil
}

// Merge writes every present field of cs into the invoice and keeps
// possible_financing consistent with amount and score.
// Ownership and status rules are enforced by the caller.
func (inv *Invoice) Merge(cs ChangeSet) {
	if cs.UserID.Set {
		inv.UserID = cs.UserID.Ptr()
	}
	if cs.Status.Set && !cs.Status.Null {
		inv.Status = cs.Status.Value
	}

	if cs.InvoiceNumber.Set && !cs.InvoiceNumber.Null {
		inv.InvoiceNumber = cs.InvoiceNumber.Value
	}
	if cs.Client.Set && !cs.Client.Null {
		inv.Client = cs.Client.Value
	}
	if cs.Amount.Set && !cs.Amount.Null {
		inv.Amount = cs.Amount.Value
	}
	cs.DueDate.applyTo(&inv.DueDate)
	cs.Description.applyTo(&inv.Description)

	if cs.ClientType.Set && !cs.ClientType.Null {
		inv.ClientType = cs.ClientType.Value
	}
	cs.ClientEmail.applyTo(&inv.ClientEmail)
	cs.ClientPhone.applyTo(&inv.ClientPhone)
	cs.ClientAddress.applyTo(&inv.ClientAddress)
	cs.ClientPostalCode.applyTo(&inv.ClientPostalCode)
	cs.ClientCity.applyTo(&inv.ClientCity)
	cs.ClientCountry.applyTo(&inv.ClientCountry)
	cs.ClientVATNumber.applyTo(&inv.ClientVATNumber)
	cs.ClientSIREN.applyTo(&inv.ClientSIREN)
	if cs.Currency.Set && !cs.Currency.Null {
		inv.Currency = cs.Currency.Value
	}

	cs.Score.applyTo(&inv.Score)
	cs.PennylaneID.applyTo(&inv.PennylaneID)
	cs.PandaDocID.applyTo(&inv.PandaDocID)
	cs.Error.applyTo(&inv.Error)
	cs.FinancingDate.applyTo(&inv.FinancingDate)

	inv.syncFinancing()
}

func (inv *Invoice) syncFinancing() {
	if inv.Score == nil {
		inv.PossibleFinancing = nil
		return
	}
	pf := PossibleFinancing(inv.Amount, *inv.Score)
	inv.PossibleFinancing = &pf
}
