package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
	"github.com/garyjia/invoice-financing/internal/domain/lifecycle"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Reconciler is the only writer of invoice records after creation.
// Every change goes through one atomic read-check-merge-write per invoice.
type Reconciler interface {
	// Apply merges cs into the invoice. A nil actor is the system itself
	// (OCR completion, webhooks, sweeper) and skips caller ownership checks.
	Apply(ctx context.Context, id string, cs entity.ChangeSet, actor *string, guards ...Guard) (*entity.Invoice, error)
	ApplyOCROutcome(ctx context.Context, outcome entity.OCROutcome) (*entity.Invoice, error)
}

// Guard is an extra precondition checked inside the atomic update
type Guard func(inv *entity.Invoice) error

// RequireOwnerless rejects invoices that were already claimed
func RequireOwnerless(inv *entity.Invoice) error {
	if inv.UserID != nil {
		return fmt.Errorf("invoice %s: %w", inv.ID, entity.ErrOwnershipConflict)
	}
	return nil
}

// RequireStatus rejects invoices outside the given statuses
func RequireStatus(statuses ...lifecycle.Status) Guard {
	return func(inv *entity.Invoice) error {
		for _, s := range statuses {
			if inv.Status == s {
				return nil
			}
		}
		return fmt.Errorf("invoice %s is %s: %w", inv.ID, inv.Status, lifecycle.ErrInvalidTransition)
	}
}

type reconcilerImpl struct {
	invoices port.InvoiceRepository
	users    port.UserRepository
	now      func() time.Time
	logger   Logger
}

// NewReconciler creates a new Reconciler
func NewReconciler(invoices port.InvoiceRepository, users port.UserRepository, logger Logger) Reconciler {
	return &reconcilerImpl{
		invoices: invoices,
		users:    users,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// Apply merges a partial update into the stored invoice
func (r *reconcilerImpl) Apply(ctx context.Context, id string, cs entity.ChangeSet, actor *string, guards ...Guard) (*entity.Invoice, error) {
	if err := cs.Validate(); err != nil {
		return nil, err
	}

	if cs.UserID.Set && !cs.UserID.Null {
		user, err := r.users.Get(ctx, cs.UserID.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("user %s: %w", cs.UserID.Value, entity.ErrInvalidReference)
		}
	}

	updated, err := r.invoices.Update(ctx, id, func(inv *entity.Invoice) error {
		if err := checkOwnership(inv, cs, actor); err != nil {
			return err
		}
		for _, guard := range guards {
			if err := guard(inv); err != nil {
				return err
			}
		}
		if err := checkStatus(inv, cs); err != nil {
			return err
		}

		before := *inv
		inv.Merge(cs)
		if !reflect.DeepEqual(before, *inv) {
			inv.UpdatedAt = r.now()
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, errOutcomeSuperseded) {
			r.logger.Warn("Invoice update rejected", "invoice_id", id, "fields", cs.Keys(), "error", err)
		}
		return nil, err
	}

	r.logger.Info("Invoice updated", "invoice_id", id, "fields", cs.Keys(), "status", updated.Status)
	return updated, nil
}

// ApplyOCROutcome records the terminal result of an OCR run
func (r *reconcilerImpl) ApplyOCROutcome(ctx context.Context, outcome entity.OCROutcome) (*entity.Invoice, error) {
	if outcome.Status != lifecycle.StatusOCRCompleted && outcome.Status != lifecycle.StatusOCRFailed {
		return nil, fmt.Errorf("%w: %q is not an OCR outcome", entity.ErrInvalidInput, outcome.Status)
	}
	if outcome.Status == lifecycle.StatusOCRFailed {
		return r.Apply(ctx, outcome.InvoiceID, outcome.ChangeSet(), nil)
	}

	inv, err := r.Apply(ctx, outcome.InvoiceID, outcome.ChangeSet(), nil, rejectSuperseded)
	if !errors.Is(err, errOutcomeSuperseded) {
		return inv, err
	}

	// A redelivered completion for an invoice that already moved on
	r.logger.Info("OCR completion already applied", "invoice_id", outcome.InvoiceID)
	return r.invoices.Get(ctx, outcome.InvoiceID)
}

var errOutcomeSuperseded = errors.New("ocr outcome superseded")

// rejectSuperseded stops a completion once the invoice is past OCR_COMPLETED
func rejectSuperseded(inv *entity.Invoice) error {
	if lifecycle.Reachable(lifecycle.StatusOCRCompleted, inv.Status) {
		return errOutcomeSuperseded
	}
	return nil
}

// checkOwnership enforces the one-way claim and, for user callers, that
// only the owner of a claimed invoice may change it.
func checkOwnership(inv *entity.Invoice, cs entity.ChangeSet, actor *string) error {
	if actor != nil && inv.UserID != nil && *inv.UserID != *actor {
		return fmt.Errorf("invoice %s: %w", inv.ID, entity.ErrOwnershipConflict)
	}

	if !cs.UserID.Set {
		return nil
	}
	if cs.UserID.Null {
		if inv.UserID != nil {
			return fmt.Errorf("invoice %s cannot be released: %w", inv.ID, entity.ErrOwnershipConflict)
		}
		return nil
	}

	if inv.UserID != nil && *inv.UserID != cs.UserID.Value {
		return fmt.Errorf("invoice %s: %w", inv.ID, entity.ErrOwnershipConflict)
	}
	if actor != nil && *actor != cs.UserID.Value {
		return fmt.Errorf("invoice %s can only be claimed for the caller: %w", inv.ID, entity.ErrOwnershipConflict)
	}
	return nil
}

// checkStatus allows re-applying the current status and single forward steps
func checkStatus(inv *entity.Invoice, cs entity.ChangeSet) error {
	if !cs.Status.Set || cs.Status.Value == inv.Status {
		return nil
	}
	if !lifecycle.CanTransition(inv.Status, cs.Status.Value) {
		return fmt.Errorf("invoice %s: %w: %s -> %s",
			inv.ID, lifecycle.ErrInvalidTransition, inv.Status, cs.Status.Value)
	}
	return nil
}
