package lifecycle

// Status is the persisted lifecycle status of an invoice
type Status string

const (
	StatusDraft        Status = "draft"
	StatusOCRPending   Status = "OCR_PENDING"
	StatusOCRCompleted Status = "OCR_COMPLETED"
	StatusOCRFailed    Status = "OCR_FAILED"
	StatusOngoing      Status = "ongoing"
	StatusSent         Status = "sent"
	StatusSigned       Status = "Signed"
	StatusAccepted     Status = "accepted"
	StatusRefused      Status = "refused"

	// StatusDemo marks ephemeral preview invoices. It is never persisted.
	StatusDemo Status = "demo"
)

var validStatuses = map[Status]bool{
	StatusDraft:        true,
	StatusOCRPending:   true,
	StatusOCRCompleted: true,
	StatusOCRFailed:    true,
	StatusOngoing:      true,
	StatusSent:         true,
	StatusSigned:       true,
	StatusAccepted:     true,
	StatusRefused:      true,
	StatusDemo:         true,
}

var terminalStatuses = map[Status]bool{
	StatusOCRFailed: true,
	StatusSigned:    true,
	StatusAccepted:  true,
	StatusRefused:   true,
	StatusDemo:      true,
}

// IsTerminal returns true if no further transition leaves the status
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// IsPersistable reports whether a store may hold an invoice in this status
func (s Status) IsPersistable() bool {
	return s.IsValid() && s != StatusDemo
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status belongs to the closed enumeration
func (s Status) IsValid() bool {
	return validStatuses[s]
}
