package lifecycle

import (
	"fmt"
	"sync"
)

// invoiceGraph is built on first use, after the status tables are initialized
var invoiceGraph = sync.OnceValue(newInvoiceBuilder)

func newInvoiceBuilder() Builder {
	b := NewBuilder()

	b.Configure(StatusDraft).
		Permit(TriggerSubmitOCR, StatusOCRPending)

	b.Configure(StatusOCRPending).
		Permit(TriggerCompleteOCR, StatusOCRCompleted).
		Permit(TriggerFailOCR, StatusOCRFailed)

	b.Configure(StatusOCRCompleted).
		Permit(TriggerScore, StatusOngoing)

	b.Configure(StatusOngoing).
		Permit(TriggerSend, StatusSent).
		Permit(TriggerAccept, StatusAccepted).
		Permit(TriggerRefuse, StatusRefused)

	b.Configure(StatusSent).
		Permit(TriggerSign, StatusSigned)

	return b
}

// NewInvoiceMachine returns a machine over the invoice status graph starting at current
func NewInvoiceMachine(current Status) (StateMachine, error) {
	if !current.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, current)
	}
	return invoiceGraph().Build(current), nil
}

// Next returns the status reached by firing trigger from current
func Next(current Status, trigger Trigger) (Status, error) {
	m, err := NewInvoiceMachine(current)
	if err != nil {
		return "", err
	}
	if err := m.Fire(trigger); err != nil {
		return "", err
	}
	return m.Status(), nil
}

// CanTransition reports whether a single step moves from one status to the other
func CanTransition(from, to Status) bool {
	_, err := TriggerFor(from, to)
	return err == nil
}

// TriggerFor returns the trigger that moves from one status to the other in one step
func TriggerFor(from, to Status) (Trigger, error) {
	m, err := NewInvoiceMachine(from)
	if err != nil {
		return "", err
	}
	for _, trigger := range m.PermittedTriggers() {
		if next, _ := Next(from, trigger); next == to {
			return trigger, nil
		}
	}
	return "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Reachable reports whether to can be reached from from in one or more steps
func Reachable(from, to Status) bool {
	seen := map[Status]bool{}
	stack := []Status{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		m, err := NewInvoiceMachine(cur)
		if err != nil {
			return false
		}
		for _, trigger := range m.PermittedTriggers() {
			next, err := Next(cur, trigger)
			if err != nil || seen[next] {
				continue
			}
			if next == to {
				return true
			}
			seen[next] = true
			stack = append(stack, next)
		}
	}
	return false
}
