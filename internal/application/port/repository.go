package port

import (
	"context"
	"time"

	"github.com/garyjia/invoice-financing/internal/domain/entity"
	"github.com/garyjia/invoice-financing/internal/domain/lifecycle"
)

// InvoiceMutator edits a loaded invoice in place. Returning an error aborts the update.
type InvoiceMutator func(inv *entity.Invoice) error

// InvoiceRepository defines persistence operations for invoices.
// Get and GetByPandaDocID return (nil, nil) when nothing matches.
type InvoiceRepository interface {
	Create(ctx context.Context, inv *entity.Invoice) error
	Get(ctx context.Context, id string) (*entity.Invoice, error)

	// Update loads the invoice, runs mutate and persists the result as one
	// atomic step per id. It returns entity.ErrNotFound for unknown ids.
	Update(ctx context.Context, id string, mutate InvoiceMutator) (*entity.Invoice, error)

	ListByOwner(ctx context.Context, userID string) ([]*entity.Invoice, error)
	GetByPandaDocID(ctx context.Context, pandaDocID string) (*entity.Invoice, error)
	ListByStatusOlderThan(ctx context.Context, status lifecycle.Status, before time.Time, limit int) ([]*entity.Invoice, error)
}

// UserRepository defines persistence operations for users.
// Get returns (nil, nil) when the user does not exist.
type UserRepository interface {
	Get(ctx context.Context, id string) (*entity.User, error)
	Upsert(ctx context.Context, user *entity.User) error
}

// TransactionManager runs fn inside one database transaction carried by ctx
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
