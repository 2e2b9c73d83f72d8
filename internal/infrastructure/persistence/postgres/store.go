package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
	"github.com/garyjia/invoice-financing/internal/domain/lifecycle"
)

const invoiceColumns = `
	id, user_id, status, invoice_number, client, amount, due_date, description,
	client_type, client_email, client_phone, client_address, client_postal_code,
	client_city, client_country, client_vat_number, client_siren, currency,
	score, possible_financing, pennylane_id, pandadoc_id, error,
	financing_date, created_at, updated_at`

// InvoiceStore implements port.InvoiceRepository on postgres
type InvoiceStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewInvoiceStore creates a postgres invoice store
func NewInvoiceStore(pool *pgxpool.Pool, logger *zap.Logger) *InvoiceStore {
	return &InvoiceStore{pool: pool, logger: logger}
}

// Create inserts a new invoice record
func (s *InvoiceStore) Create(ctx context.Context, inv *entity.Invoice) error {
	if !inv.Status.IsPersistable() {
		return fmt.Errorf("%w: status %q cannot be stored", lifecycle.ErrInvalidStatus, inv.Status)
	}

	query := `INSERT INTO invoices (` + invoiceColumns + `) VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		 $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`

	if _, err := s.pool.Exec(ctx, query, invoiceArgs(inv)...); err != nil {
		s.logger.Error("Failed to create invoice", zap.String("id", inv.ID), zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// Get retrieves an invoice by id
func (s *InvoiceStore) Get(ctx context.Context, id string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	inv, err := scanInvoice(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// Update locks the row with SELECT ... FOR UPDATE, runs mutate and writes
// the result before committing.
func (s *InvoiceStore) Update(ctx context.Context, id string, mutate port.InvoiceMutator) (*entity.Invoice, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1 FOR UPDATE`
	inv, err := scanInvoice(tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("invoice %s: %w", id, entity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock invoice: %w", err)
	}

	if err := mutate(inv); err != nil {
		return nil, err
	}
	if inv.ID != id {
		return nil, fmt.Errorf("invoice id is immutable (%s -> %s)", id, inv.ID)
	}
	if !inv.Status.IsPersistable() {
		return nil, fmt.Errorf("%w: status %q cannot be stored", lifecycle.ErrInvalidStatus, inv.Status)
	}

	update := `UPDATE invoices SET
		user_id = $2, status = $3, invoice_number = $4, client = $5, amount = $6,
		due_date = $7, description = $8, client_type = $9, client_email = $10,
		client_phone = $11, client_address = $12, client_postal_code = $13,
		client_city = $14, client_country = $15, client_vat_number = $16,
		client_siren = $17, currency = $18, score = $19, possible_financing = $20,
		pennylane_id = $21, pandadoc_id = $22, error = $23, financing_date = $24,
		updated_at = $25
		WHERE id = $1`

	// created_at is never rewritten
	args := append(invoiceArgs(inv)[:24:24], inv.UpdatedAt.UTC())
	if _, err := tx.Exec(ctx, update, args...); err != nil {
		s.logger.Error("Failed to update invoice", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to update invoice: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice update: %w", err)
	}
	return inv, nil
}

// ListByOwner returns the invoices of a user, newest first
func (s *InvoiceStore) ListByOwner(ctx context.Context, userID string) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE user_id = $1 ORDER BY created_at DESC, id`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return scanInvoices(rows)
}

// GetByPandaDocID finds the invoice sent for signature as pandaDocID
func (s *InvoiceStore) GetByPandaDocID(ctx context.Context, pandaDocID string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE pandadoc_id = $1`
	inv, err := scanInvoice(s.pool.QueryRow(ctx, query, pandaDocID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// ListByStatusOlderThan returns invoices in status last updated before the cutoff
func (s *InvoiceStore) ListByStatusOlderThan(ctx context.Context, status lifecycle.Status, before time.Time, limit int) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3`
	rows, err := s.pool.Query(ctx, query, string(status), before.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices by status: %w", err)
	}
	return scanInvoices(rows)
}

func invoiceArgs(inv *entity.Invoice) []any {
	var dueDate *time.Time
	if inv.DueDate != nil {
		t := inv.DueDate.Time
		dueDate = &t
	}
	return []any{
		inv.ID, inv.UserID, string(inv.Status), inv.InvoiceNumber, inv.Client, inv.Amount,
		dueDate, inv.Description, inv.ClientType, inv.ClientEmail, inv.ClientPhone,
		inv.ClientAddress, inv.ClientPostalCode, inv.ClientCity, inv.ClientCountry,
		inv.ClientVATNumber, inv.ClientSIREN, inv.Currency, inv.Score, inv.PossibleFinancing,
		inv.PennylaneID, inv.PandaDocID, inv.Error, inv.FinancingDate,
		inv.CreatedAt.UTC(), inv.UpdatedAt.UTC(),
	}
}

func scanInvoice(row pgx.Row) (*entity.Invoice, error) {
	var inv entity.Invoice
	var (
		status  string
		dueDate *time.Time
	)

	err := row.Scan(
		&inv.ID, &inv.UserID, &status, &inv.InvoiceNumber, &inv.Client, &inv.Amount,
		&dueDate, &inv.Description, &inv.ClientType, &inv.ClientEmail, &inv.ClientPhone,
		&inv.ClientAddress, &inv.ClientPostalCode, &inv.ClientCity, &inv.ClientCountry,
		&inv.ClientVATNumber, &inv.ClientSIREN, &inv.Currency, &inv.Score, &inv.PossibleFinancing,
		&inv.PennylaneID, &inv.PandaDocID, &inv.Error, &inv.FinancingDate,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.Status = lifecycle.Status(status)
	if dueDate != nil {
		d := entity.NewDate(*dueDate)
		inv.DueDate = &d
	}
	if inv.FinancingDate != nil {
		t := inv.FinancingDate.UTC()
		inv.FinancingDate = &t
	}
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	return &inv, nil
}

func scanInvoices(rows pgx.Rows) ([]*entity.Invoice, error) {
	defer rows.Close()

	invoices := make([]*entity.Invoice, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoices: %w", err)
	}
	return invoices, nil
}

// UserStore implements port.UserRepository on postgres
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a postgres user store
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Get retrieves a user by id
func (s *UserStore) Get(ctx context.Context, id string) (*entity.User, error) {
	var u entity.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, username, siren_number, phone, address, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.Username, &u.SIREN, &u.Phone, &u.Address, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

// Upsert inserts or updates a user, keeping created_at
func (s *UserStore) Upsert(ctx context.Context, u *entity.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, username, siren_number, phone, address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			username = EXCLUDED.username,
			siren_number = EXCLUDED.siren_number,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address`,
		u.ID, u.Email, u.Username, u.SIREN, u.Phone, u.Address, u.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

var (
	_ port.InvoiceRepository = (*InvoiceStore)(nil)
	_ port.UserRepository    = (*UserStore)(nil)
)
