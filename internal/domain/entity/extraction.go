package entity

import (
	"sort"

	"github.com/garyjia/invoice-financing/internal/domain/lifecycle"
)

// ExtractedFields is the validated result of field extraction
type ExtractedFields struct {
	InvoiceNumber string  `json:"invoice_number"`
	Client        string  `json:"client"`
	Amount        float64 `json:"amount"`
	DueDate       Date    `json:"due_date"`

	Description      *string `json:"description,omitempty"`
	ClientEmail      *string `json:"client_email,omitempty"`
	ClientPhone      *string `json:"client_phone,omitempty"`
	ClientAddress    *string `json:"client_address,omitempty"`
	ClientPostalCode *string `json:"client_postal_code,omitempty"`
	ClientCity       *string `json:"client_city,omitempty"`
	ClientCountry    *string `json:"client_country,omitempty"`
	ClientVATNumber  *string `json:"client_vat_number,omitempty"`
	ClientSIREN      *string `json:"client_siren,omitempty"`
}

// ChangeSet converts extracted fields into a merge. Optional fields the
// document did not mention stay absent so they never clear stored values.
func (f ExtractedFields) ChangeSet() ChangeSet {
	cs := ChangeSet{
		InvoiceNumber: Value(f.InvoiceNumber),
		Client:        Value(f.Client),
		Amount:        Value(f.Amount),
		DueDate:       Value(f.DueDate),
	}
	optional := []struct {
		src *string
		dst *Field[string]
	}{
		{f.Description, &cs.Description},
		{f.ClientEmail, &cs.ClientEmail},
		{f.ClientPhone, &cs.ClientPhone},
		{f.ClientAddress, &cs.ClientAddress},
		{f.ClientPostalCode, &cs.ClientPostalCode},
		{f.ClientCity, &cs.ClientCity},
		{f.ClientCountry, &cs.ClientCountry},
		{f.ClientVATNumber, &cs.ClientVATNumber},
		{f.ClientSIREN, &cs.ClientSIREN},
	}
	for _, o := range optional {
		if o.src != nil {
			*o.dst = Value(*o.src)
		}
	}
	return cs
}

// OCROutcome is the terminal result of one OCR run for an invoice
type OCROutcome struct {
	InvoiceID string
	Status    lifecycle.Status // StatusOCRCompleted or StatusOCRFailed
	Fields    *ExtractedFields
	Error     string
}

// Succeeded reports whether the run produced fields
func (o OCROutcome) Succeeded() bool {
	return o.Status == lifecycle.StatusOCRCompleted
}

// ChangeSet converts the outcome into the merge applied by reconciliation.
// A failure only touches status and error.
func (o OCROutcome) ChangeSet() ChangeSet {
	if !o.Succeeded() {
		return ChangeSet{
			Status: Value(lifecycle.StatusOCRFailed),
			Error:  Value(o.Error),
		}
	}
	var cs ChangeSet
	if o.Fields != nil {
		cs = o.Fields.ChangeSet()
	}
	cs.Status = Value(lifecycle.StatusOCRCompleted)
	cs.Error = Null[string]()
	return cs
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
