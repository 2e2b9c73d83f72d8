package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
	"github.com/garyjia/invoice-financing/internal/domain/lifecycle"
	"github.com/garyjia/invoice-financing/pkg/utils"
)

// InvoiceService manages invoices from upload to signature
type InvoiceService interface {
	Create(ctx context.Context, userID string, cs entity.ChangeSet) (*entity.Invoice, error)
	Upload(ctx context.Context, userID string, document []byte) (*entity.Invoice, error)
	OnboardingUpload(ctx context.Context, document []byte) (*entity.Invoice, error)
	Demo(ctx context.Context, document []byte) (*entity.Invoice, error)

	List(ctx context.Context, userID string) ([]*entity.Invoice, error)
	Get(ctx context.Context, userID, id string) (*entity.Invoice, error)
	GetOnboarding(ctx context.Context, id string) (*entity.Invoice, error)
	Export(ctx context.Context, userID string) ([]byte, error)

	Update(ctx context.Context, userID, id string, cs entity.ChangeSet) (*entity.Invoice, error)
	UpdateOnboarding(ctx context.Context, id string, cs entity.ChangeSet) (*entity.Invoice, error)
	Claim(ctx context.Context, userID, id string) (*entity.Invoice, error)

	Score(ctx context.Context, userID, id string) (*entity.Invoice, error)
	Accept(ctx context.Context, userID, id string) (*entity.Invoice, error)
	Refuse(ctx context.Context, userID, id string) (*entity.Invoice, error)
	Send(ctx context.Context, userID, id string) (*entity.Invoice, error)
	MarkSigned(ctx context.Context, pandaDocID string) (*entity.Invoice, error)

	// CompleteOCR records an OCR outcome delivered by a worker or webhook
	CompleteOCR(ctx context.Context, outcome entity.OCROutcome) error
	// ExpirePending fails invoices stuck in OCR_PENDING since before
	ExpirePending(ctx context.Context, before time.Time) (int, error)
}

// InvoiceServiceOptions tunes optional behaviour
type InvoiceServiceOptions struct {
	// AutoScore scores an invoice right after a successful OCR run
	AutoScore bool
	// ExpireBatch bounds how many stuck invoices one sweep fails
	ExpireBatch int
}

// InvoiceServiceDeps groups the collaborators of InvoiceService
type InvoiceServiceDeps struct {
	Invoices   port.InvoiceRepository
	Users      port.UserRepository
	Reconciler Reconciler
	Documents  port.DocumentStorage
	Jobs       port.JobQueue
	OCR        port.OCRRunner
	Scorer     port.Scorer
	Accounting port.AccountingClient
	Signature  port.SignatureClient
	Exporter   port.InvoiceExporter
	Logger     Logger
}

type invoiceServiceImpl struct {
	invoices   port.InvoiceRepository
	users      port.UserRepository
	reconciler Reconciler
	documents  port.DocumentStorage
	jobs       port.JobQueue
	ocr        port.OCRRunner
	scorer     port.Scorer
	accounting port.AccountingClient
	signature  port.SignatureClient
	exporter   port.InvoiceExporter
	opts       InvoiceServiceOptions
	now        func() time.Time
	logger     Logger
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(deps InvoiceServiceDeps, opts InvoiceServiceOptions) InvoiceService {
	if opts.ExpireBatch <= 0 {
		opts.ExpireBatch = 100
	}
	return &invoiceServiceImpl{
		invoices:   deps.Invoices,
		users:      deps.Users,
		reconciler: deps.Reconciler,
		documents:  deps.Documents,
		jobs:       deps.Jobs,
		ocr:        deps.OCR,
		scorer:     deps.Scorer,
		accounting: deps.Accounting,
		signature:  deps.Signature,
		exporter:   deps.Exporter,
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     deps.Logger,
	}
}

// Create stores a manually entered invoice, scored and ready for financing
func (s *invoiceServiceImpl) Create(ctx context.Context, userID string, cs entity.ChangeSet) (*entity.Invoice, error) {
	if err := requireCreateFields(cs); err != nil {
		return nil, err
	}
	cs.UserID = entity.Field[string]{}
	cs.Status = entity.Field[lifecycle.Status]{}
	if err := validateContact(cs); err != nil {
		return nil, err
	}
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	inv := s.newInvoice(&userID, lifecycle.StatusOngoing)
	inv.Merge(cs)

	score, err := s.scorer.Score(ctx, inv)
	if err != nil {
		s.logger.Error("Failed to score invoice", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to score invoice: %w", err)
	}
	inv.Merge(entity.ChangeSet{Score: entity.Value(score)})

	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, err
	}

	s.logger.Info("Invoice created", "invoice_id", inv.ID, "user_id", userID, "score", score)
	return inv, nil
}

// List returns the caller's invoices, newest first
func (s *invoiceServiceImpl) List(ctx context.Context, userID string) ([]*entity.Invoice, error) {
	return s.invoices.ListByOwner(ctx, userID)
}

// Get returns an invoice owned by the caller
func (s *invoiceServiceImpl) Get(ctx context.Context, userID, id string) (*entity.Invoice, error) {
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inv.IsOwnedBy(userID) {
		return nil, fmt.Errorf("invoice %s: %w", id, entity.ErrNotFound)
	}
	return inv, nil
}

// GetOnboarding returns an invoice that nobody has claimed yet
func (s *invoiceServiceImpl) GetOnboarding(ctx context.Context, id string) (*entity.Invoice, error) {
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.UserID != nil {
		return nil, fmt.Errorf("invoice %s: %w", id, entity.ErrNotFound)
	}
	return inv, nil
}

// Export renders the caller's invoices as a spreadsheet
func (s *invoiceServiceImpl) Export(ctx context.Context, userID string) ([]byte, error) {
	invoices, err := s.invoices.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	content, err := s.exporter.Export(ctx, invoices)
	if err != nil {
		s.logger.Error("Failed to export invoices", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to export invoices: %w", err)
	}
	return content, nil
}

// Update applies a partial update on behalf of the caller
func (s *invoiceServiceImpl) Update(ctx context.Context, userID, id string, cs entity.ChangeSet) (*entity.Invoice, error) {
	if err := validateContact(cs); err != nil {
		return nil, err
	}
	return s.reconciler.Apply(ctx, id, cs, &userID)
}

// UpdateOnboarding edits an unclaimed invoice. Explicit nulls are ignored
// and ownership cannot change anonymously.
func (s *invoiceServiceImpl) UpdateOnboarding(ctx context.Context, id string, cs entity.ChangeSet) (*entity.Invoice, error) {
	cs = cs.WithoutNulls()
	if cs.UserID.Set {
		return nil, fmt.Errorf("%w: user_id requires an authenticated claim", entity.ErrInvalidInput)
	}
	if err := validateContact(cs); err != nil {
		return nil, err
	}
	return s.reconciler.Apply(ctx, id, cs, nil, RequireOwnerless)
}

// Claim makes the caller the owner of an unclaimed invoice
func (s *invoiceServiceImpl) Claim(ctx context.Context, userID, id string) (*entity.Invoice, error) {
	return s.reconciler.Apply(ctx, id, entity.ChangeSet{UserID: entity.Value(userID)}, &userID)
}

func (s *invoiceServiceImpl) load(ctx context.Context, id string) (*entity.Invoice, error) {
	inv, err := s.invoices.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("invoice %s: %w", id, entity.ErrNotFound)
	}
	return inv, nil
}

func (s *invoiceServiceImpl) requireUser(ctx context.Context, userID string) error {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user %s: %w", userID, entity.ErrInvalidReference)
	}
	return nil
}

func (s *invoiceServiceImpl) newInvoice(userID *string, status lifecycle.Status) *entity.Invoice {
	now := s.now()
	country := entity.DefaultClientCountry
	return &entity.Invoice{
		ID:            uuid.NewString(),
		UserID:        userID,
		Status:        status,
		ClientType:    entity.DefaultClientType,
		ClientCountry: &country,
		Currency:      entity.DefaultCurrency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func requireCreateFields(cs entity.ChangeSet) error {
	var missing []string
	if !cs.InvoiceNumber.Set || cs.InvoiceNumber.Value == "" {
		missing = append(missing, "invoice_number")
	}
	if !cs.Client.Set || cs.Client.Value == "" {
		missing = append(missing, "client")
	}
	if !cs.Amount.Set || cs.Amount.Null {
		missing = append(missing, "amount")
	}
	if !cs.DueDate.Set || cs.DueDate.Null {
		missing = append(missing, "due_date")
	}
	if len(missing) > 0 {
		return &entity.MissingRequiredFieldsError{Fields: missing}
	}
	if cs.Amount.Value <= 0 {
		return fmt.Errorf("%w: amount must be positive", entity.ErrInvalidInput)
	}
	return nil
}

func validateContact(cs entity.ChangeSet) error {
	if cs.ClientEmail.Set && !cs.ClientEmail.Null {
		if err := utils.ValidateEmail(cs.ClientEmail.Value); err != nil {
			return fmt.Errorf("%w: %v", entity.ErrInvalidInput, err)
		}
	}
	if cs.ClientVATNumber.Set && !cs.ClientVATNumber.Null {
		if err := utils.ValidateVATNumber(cs.ClientVATNumber.Value); err != nil {
			return fmt.Errorf("%w: %v", entity.ErrInvalidInput, err)
		}
	}
	return nil
}
