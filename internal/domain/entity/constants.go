package entity

// Defaults applied to invoices created through the onboarding flow
const (
	DefaultClientType    = "company"
	DefaultClientCountry = "FR"
	DefaultCurrency      = "EUR"
)

// OCR failure messages recorded on the invoice
const (
	ErrorMessageUnreadable      = "document could not be read"
	ErrorMessageNotInvoice      = "document is not an invoice"
	ErrorMessageInternal        = "internal processing error"
	ErrorMessagePendingDeadline = "processing timed out"
)
