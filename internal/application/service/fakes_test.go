package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
	"github.com/garyjia/invoice-financing/internal/domain/lifecycle"
	"github.com/garyjia/invoice-financing/internal/infrastructure/persistence/boltstore"
	"github.com/garyjia/invoice-financing/internal/infrastructure/queue"
	"github.com/garyjia/invoice-financing/internal/infrastructure/storage"
)

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

type stubScorer struct {
	score float64
	err   error
	calls int
}

func (s *stubScorer) Score(ctx context.Context, inv *entity.Invoice) (float64, error) {
	s.calls++
	return s.score, s.err
}

type stubOCR struct {
	outcome entity.OCROutcome
}

func (s *stubOCR) Run(ctx context.Context, invoiceID string, document []byte) entity.OCROutcome {
	out := s.outcome
	out.InvoiceID = invoiceID
	return out
}

type stubAccounting struct {
	result *port.EstimateResult
	err    error
	got    *entity.Invoice
}

func (s *stubAccounting) CreateEstimate(ctx context.Context, inv *entity.Invoice) (*port.EstimateResult, error) {
	s.got = inv
	return s.result, s.err
}

type stubSignature struct {
	result *port.SignatureResult
	err    error
	got    port.SignatureRequest
}

func (s *stubSignature) SendForSignature(ctx context.Context, req port.SignatureRequest) (*port.SignatureResult, error) {
	s.got = req
	return s.result, s.err
}

type stubExporter struct {
	rows int
}

func (s *stubExporter) Export(ctx context.Context, invoices []*entity.Invoice) ([]byte, error) {
	s.rows = len(invoices)
	return []byte("xlsx"), nil
}

type failingQueue struct{}

func (failingQueue) Enqueue(ctx context.Context, job port.OCRJob) error { return queue.ErrQueueFull }
func (failingQueue) Dequeue(ctx context.Context) (port.OCRJob, error) {
	return port.OCRJob{}, errors.New("empty")
}
func (failingQueue) Close() error { return nil }

// rejectingReconciler fails every Apply and remembers the invoice it was
// asked to change
type rejectingReconciler struct {
	Reconciler
	err error
	ids []string
}

func (r *rejectingReconciler) Apply(ctx context.Context, id string, cs entity.ChangeSet, actor *string, guards ...Guard) (*entity.Invoice, error) {
	r.ids = append(r.ids, id)
	return nil, r.err
}

type harness struct {
	invoices   *boltstore.InvoiceStore
	users      *boltstore.UserStore
	reconciler Reconciler
	service    InvoiceService
	documents  *storage.DocumentStore
	jobs       *queue.MemoryQueue
	scorer     *stubScorer
	ocr        *stubOCR
	accounting *stubAccounting
	signature  *stubSignature
	exporter   *stubExporter
}

func newHarness(t *testing.T, opts InvoiceServiceOptions) *harness {
	t.Helper()
	logger := zap.NewNop()

	db, err := boltstore.Open(filepath.Join(t.TempDir(), "invoices.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	docs, err := storage.NewDocumentStore(t.TempDir(), logger)
	require.NoError(t, err)

	h := &harness{
		invoices:   boltstore.NewInvoiceStore(db),
		users:      boltstore.NewUserStore(db),
		documents:  docs,
		jobs:       queue.NewMemoryQueue(10),
		scorer:     &stubScorer{score: 0.2},
		ocr:        &stubOCR{},
		accounting: &stubAccounting{result: &port.EstimateResult{ID: "est-1", FileURL: "https://files.example/est-1.pdf"}},
		signature:  &stubSignature{result: &port.SignatureResult{DocumentID: "doc-1", Status: "document.sent"}},
		exporter:   &stubExporter{},
	}
	h.reconciler = NewReconciler(h.invoices, h.users, &mockLogger{})
	h.service = NewInvoiceService(InvoiceServiceDeps{
		Invoices:   h.invoices,
		Users:      h.users,
		Reconciler: h.reconciler,
		Documents:  h.documents,
		Jobs:       h.jobs,
		OCR:        h.ocr,
		Scorer:     h.scorer,
		Accounting: h.accounting,
		Signature:  h.signature,
		Exporter:   h.exporter,
		Logger:     &mockLogger{},
	}, opts)
	return h
}

func (h *harness) addUser(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, h.users.Upsert(context.Background(), &entity.User{ID: id, Email: id + "@example.com"}))
}

// addInvoice stores an invoice directly in the given status
func (h *harness) addInvoice(t *testing.T, id string, status lifecycle.Status, owner *string) *entity.Invoice {
	t.Helper()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	inv := &entity.Invoice{
		ID:         id,
		UserID:     owner,
		Status:     status,
		ClientType: entity.DefaultClientType,
		Currency:   entity.DefaultCurrency,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, h.invoices.Create(context.Background(), inv))
	return inv
}

func (h *harness) get(t *testing.T, id string) *entity.Invoice {
	t.Helper()
	inv, err := h.invoices.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, inv)
	return inv
}

func completedOutcome(id string) entity.OCROutcome {
	due, _ := entity.ParseDate("2025-01-01")
	return entity.OCROutcome{
		InvoiceID: id,
		Status:    lifecycle.StatusOCRCompleted,
		Fields: &entity.ExtractedFields{
			InvoiceNumber: "INV-1",
			Client:        "Acme",
			Amount:        500,
			DueDate:       due,
		},
	}
}

func strPtr(s string) *string { return &s }
