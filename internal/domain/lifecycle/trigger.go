package lifecycle

// Trigger represents an event that moves an invoice between statuses
type Trigger string

const (
	TriggerSubmitOCR   Trigger = "SUBMIT_OCR"
	TriggerCompleteOCR Trigger = "COMPLETE_OCR"
	TriggerFailOCR     Trigger = "FAIL_OCR"
	TriggerScore       Trigger = "SCORE"
	TriggerSend        Trigger = "SEND"
	TriggerSign        Trigger = "SIGN"
	TriggerAccept      Trigger = "ACCEPT"
	TriggerRefuse      Trigger = "REFUSE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
