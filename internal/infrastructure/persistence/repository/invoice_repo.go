package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
	"github.com/garyjia/invoice-financing/internal/domain/lifecycle"
	"github.com/garyjia/invoice-financing/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const invoiceColumns = `
	id, user_id, status, invoice_number, client, amount, due_date, description,
	client_type, client_email, client_phone, client_address, client_postal_code,
	client_city, client_country, client_vat_number, client_siren, currency,
	score, possible_financing, pennylane_id, pandadoc_id, error,
	financing_date, created_at, updated_at`

// InvoiceRepository implements port.InvoiceRepository on sqlite
type InvoiceRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new sqlite invoice repository
func NewInvoiceRepository(db *sqlite.DB, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new invoice record
func (r *InvoiceRepository) Create(ctx context.Context, inv *entity.Invoice) error {
	if !inv.Status.IsPersistable() {
		return fmt.Errorf("%w: status %q cannot be stored", lifecycle.ErrInvalidStatus, inv.Status)
	}

	query := `INSERT INTO invoices (` + invoiceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.GetExecutor(ctx).ExecContext(ctx, query, invoiceArgs(inv)...)
	if err != nil {
		r.logger.Error("Failed to create invoice",
			zap.String("id", inv.ID),
			zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// Get retrieves an invoice by id
func (r *InvoiceRepository) Get(ctx context.Context, id string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`

	inv, err := scanInvoice(r.db.GetExecutor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get invoice", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// Update runs mutate inside an immediate transaction so the read, the
// checks in mutate and the write are serialized per database.
func (r *InvoiceRepository) Update(ctx context.Context, id string, mutate port.InvoiceMutator) (*entity.Invoice, error) {
	var updated *entity.Invoice

	err := r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		inv, err := r.Get(txCtx, id)
		if err != nil {
			return err
		}
		if inv == nil {
			return fmt.Errorf("invoice %s: %w", id, entity.ErrNotFound)
		}

		if err := mutate(inv); err != nil {
			return err
		}
		if inv.ID != id {
			return fmt.Errorf("invoice id is immutable (%s -> %s)", id, inv.ID)
		}
		if !inv.Status.IsPersistable() {
			return fmt.Errorf("%w: status %q cannot be stored", lifecycle.ErrInvalidStatus, inv.Status)
		}

		query := `UPDATE invoices SET
			user_id = ?, status = ?, invoice_number = ?, client = ?, amount = ?,
			due_date = ?, description = ?, client_type = ?, client_email = ?,
			client_phone = ?, client_address = ?, client_postal_code = ?, client_city = ?,
			client_country = ?, client_vat_number = ?, client_siren = ?, currency = ?,
			score = ?, possible_financing = ?, pennylane_id = ?, pandadoc_id = ?,
			error = ?, financing_date = ?, updated_at = ?
			WHERE id = ?`

		args := invoiceArgs(inv)
		// drop id and created_at, append id for WHERE
		args = append(args[1:len(args)-2], args[len(args)-1], inv.ID)

		if _, err := r.db.GetExecutor(txCtx).ExecContext(txCtx, query, args...); err != nil {
			r.logger.Error("Failed to update invoice", zap.String("id", id), zap.Error(err))
			return fmt.Errorf("failed to update invoice: %w", err)
		}

		updated = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListByOwner returns the invoices of a user, newest first
func (r *InvoiceRepository) ListByOwner(ctx context.Context, userID string) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE user_id = ? ORDER BY created_at DESC, id`

	rows, err := r.db.GetExecutor(ctx).QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to list invoices", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	return scanInvoices(rows)
}

// GetByPandaDocID finds the invoice sent for signature as pandaDocID
func (r *InvoiceRepository) GetByPandaDocID(ctx context.Context, pandaDocID string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE pandadoc_id = ?`

	inv, err := scanInvoice(r.db.GetExecutor(ctx).QueryRowContext(ctx, query, pandaDocID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get invoice by pandadoc id",
			zap.String("pandadoc_id", pandaDocID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// ListByStatusOlderThan returns invoices in status last updated before the cutoff
func (r *InvoiceRepository) ListByStatusOlderThan(ctx context.Context, status lifecycle.Status, before time.Time, limit int) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE status = ? AND updated_at < ?
		ORDER BY updated_at
		LIMIT ?`

	rows, err := r.db.GetExecutor(ctx).QueryContext(ctx, query, string(status), before.UTC(), limit)
	if err != nil {
		r.logger.Error("Failed to list invoices by status",
			zap.String("status", status.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list invoices by status: %w", err)
	}
	defer rows.Close()

	return scanInvoices(rows)
}

func invoiceArgs(inv *entity.Invoice) []interface{} {
	var dueDate interface{}
	if inv.DueDate != nil {
		dueDate = inv.DueDate.String()
	}
	var financingDate interface{}
	if inv.FinancingDate != nil {
		financingDate = inv.FinancingDate.UTC()
	}

	return []interface{}{
		inv.ID,
		nullString(inv.UserID),
		string(inv.Status),
		inv.InvoiceNumber,
		inv.Client,
		inv.Amount,
		dueDate,
		nullString(inv.Description),
		inv.ClientType,
		nullString(inv.ClientEmail),
		nullString(inv.ClientPhone),
		nullString(inv.ClientAddress),
		nullString(inv.ClientPostalCode),
		nullString(inv.ClientCity),
		nullString(inv.ClientCountry),
		nullString(inv.ClientVATNumber),
		nullString(inv.ClientSIREN),
		inv.Currency,
		nullFloat(inv.Score),
		nullFloat(inv.PossibleFinancing),
		nullString(inv.PennylaneID),
		nullString(inv.PandaDocID),
		nullString(inv.Error),
		financingDate,
		inv.CreatedAt.UTC(),
		inv.UpdatedAt.UTC(),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvoice(row rowScanner) (*entity.Invoice, error) {
	var inv entity.Invoice
	var (
		userID, dueDate, description                           sql.NullString
		email, phone, address, postalCode, city, country       sql.NullString
		vatNumber, siren, pennylaneID, pandaDocID, errorString sql.NullString
		status                                                 string
		score, possibleFinancing                               sql.NullFloat64
		financingDate                                          sql.NullTime
	)

	err := row.Scan(
		&inv.ID, &userID, &status, &inv.InvoiceNumber, &inv.Client, &inv.Amount,
		&dueDate, &description, &inv.ClientType, &email, &phone, &address,
		&postalCode, &city, &country, &vatNumber, &siren, &inv.Currency,
		&score, &possibleFinancing, &pennylaneID, &pandaDocID, &errorString,
		&financingDate, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.Status = lifecycle.Status(status)
	inv.UserID = stringPtr(userID)
	inv.Description = stringPtr(description)
	inv.ClientEmail = stringPtr(email)
	inv.ClientPhone = stringPtr(phone)
	inv.ClientAddress = stringPtr(address)
	inv.ClientPostalCode = stringPtr(postalCode)
	inv.ClientCity = stringPtr(city)
	inv.ClientCountry = stringPtr(country)
	inv.ClientVATNumber = stringPtr(vatNumber)
	inv.ClientSIREN = stringPtr(siren)
	inv.PennylaneID = stringPtr(pennylaneID)
	inv.PandaDocID = stringPtr(pandaDocID)
	inv.Error = stringPtr(errorString)
	inv.Score = floatPtr(score)
	inv.PossibleFinancing = floatPtr(possibleFinancing)

	if dueDate.Valid {
		d, err := entity.ParseDate(dueDate.String)
		if err != nil {
			return nil, fmt.Errorf("stored due_date: %w", err)
		}
		inv.DueDate = &d
	}
	if financingDate.Valid {
		t := financingDate.Time.UTC()
		inv.FinancingDate = &t
	}
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()

	return &inv, nil
}

func scanInvoices(rows *sql.Rows) ([]*entity.Invoice, error) {
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

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

var _ port.InvoiceRepository = (*InvoiceRepository)(nil)
