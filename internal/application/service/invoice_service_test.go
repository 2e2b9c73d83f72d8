package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
	"github.com/garyjia/invoice-financing/internal/domain/lifecycle"
)

var samplePDF = []byte("%PDF-1.4 sample")

func manualChangeSet() entity.ChangeSet {
	due, _ := entity.ParseDate("2025-06-30")
	return entity.ChangeSet{
		InvoiceNumber: entity.Value("F-2025-001"),
		Client:        entity.Value("Acme"),
		Amount:        entity.Value(1000.0),
		DueDate:       entity.Value(due),
		ClientEmail:   entity.Value("billing@acme.fr"),
	}
}

func TestInvoiceService_Create(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})
	h.addUser(t, "u1")

	inv, err := h.service.Create(context.Background(), "u1", manualChangeSet())
	require.NoError(t, err)

	assert.Equal(t, lifecycle.StatusOngoing, inv.Status)
	assert.Equal(t, "u1", *inv.UserID)
	require.True(t, inv.HasScore())
	assert.InDelta(t, 800.0, *inv.PossibleFinancing, 1e-9)
	assert.Equal(t, entity.DefaultCurrency, inv.Currency)
	assert.Equal(t, inv, h.get(t, inv.ID))
}

func TestInvoiceService_Create_Validation(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})
	h.addUser(t, "u1")
	ctx := context.Background()

	cs := manualChangeSet()
	cs.Client = entity.Field[string]{}
	cs.DueDate = entity.Null[entity.Date]()
	_, err := h.service.Create(ctx, "u1", cs)
	var missing *entity.MissingRequiredFieldsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"client", "due_date"}, missing.Fields)

	cs = manualChangeSet()
	cs.Amount = entity.Value(-5.0)
	_, err = h.service.Create(ctx, "u1", cs)
	assert.ErrorIs(t, err, entity.ErrInvalidInput)

	cs = manualChangeSet()
	cs.ClientEmail = entity.Value("not-an-email")
	_, err = h.service.Create(ctx, "u1", cs)
	assert.ErrorIs(t, err, entity.ErrInvalidInput)

	_, err = h.service.Create(ctx, "ghost", manualChangeSet())
	assert.ErrorIs(t, err, entity.ErrInvalidReference)
}

func TestInvoiceService_Create_ScoringFailure(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})
	h.addUser(t, "u1")
	h.scorer.err = entity.ErrOracleUnavailable

	_, err := h.service.Create(context.Background(), "u1", manualChangeSet())
	assert.ErrorIs(t, err, entity.ErrOracleUnavailable)

	list, err := h.service.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestInvoiceService_OnboardingUpload(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})
	ctx := context.Background()

	inv, err := h.service.OnboardingUpload(ctx, samplePDF)
	require.NoError(t, err)

	assert.Equal(t, lifecycle.StatusOCRPending, inv.Status)
	assert.Nil(t, inv.UserID)
	assert.Equal(t, "company", inv.ClientType)
	assert.Equal(t, "EUR", inv.Currency)
	require.NotNil(t, inv.ClientCountry)
	assert.Equal(t, "FR", *inv.ClientCountry)

	job, err := h.jobs.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, port.OCRJob{InvoiceID: inv.ID, DocumentKey: port.DocumentKey(inv.ID)}, job)

	stored, err := h.documents.Read(ctx, job.DocumentKey)
	require.NoError(t, err)
	assert.Equal(t, samplePDF, stored)
}

func TestInvoiceService_Upload_RequiresKnownUser(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})

	_, err := h.service.Upload(context.Background(), "ghost", samplePDF)
	assert.ErrorIs(t, err, entity.ErrInvalidReference)
	assert.Equal(t, 0, h.jobs.Len())
}

func TestInvoiceService_Upload_QueueFailureFailsInvoice(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})
	h.addUser(t, "u1")
	h.service.(*invoiceServiceImpl).jobs = failingQueue{}

	inv, err := h.service.Upload(context.Background(), "u1", samplePDF)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusOCRFailed, inv.Status)
	assert.Equal(t, entity.ErrorMessageInternal, *inv.Error)
}

func TestInvoiceService_Upload_PendingFailureRemovesDocument(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})
	rejecting := &rejectingReconciler{Reconciler: h.reconciler, err: errors.New("store unavailable")}
	h.service.(*invoiceServiceImpl).reconciler = rejecting
	ctx := context.Background()

	_, err := h.service.OnboardingUpload(ctx, samplePDF)
	require.Error(t, err)
	assert.Equal(t, 0, h.jobs.Len())

	require.Len(t, rejecting.ids, 1)
	_, err = h.documents.Read(ctx, port.DocumentKey(rejecting.ids[0]))
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestInvoiceService_Upload_EmptyDocument(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})

	_, err := h.service.OnboardingUpload(context.Background(), nil)
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestInvoiceService_CompleteOCR(t *testing.T) {
	tests := []struct {
		name       string
		autoScore  bool
		scoreErr   error
		wantStatus lifecycle.Status
	}{
		{"without auto score", false, nil, lifecycle.StatusOCRCompleted},
		{"with auto score", true, nil, lifecycle.StatusOngoing},
		{"auto score failure keeps completed", true, errors.New("oracle down"), lifecycle.StatusOCRCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, InvoiceServiceOptions{AutoScore: tt.autoScore})
			h.scorer.err = tt.scoreErr
			h.addInvoice(t, "inv-1", lifecycle.StatusOCRPending, nil)

			require.NoError(t, h.service.CompleteOCR(context.Background(), completedOutcome("inv-1")))

			inv := h.get(t, "inv-1")
			assert.Equal(t, tt.wantStatus, inv.Status)
			assert.Equal(t, "Acme", inv.Client)
			assert.Equal(t, tt.wantStatus == lifecycle.StatusOngoing, inv.HasScore())
		})
	}
}

func TestInvoiceService_CompleteOCR_RedeliveredAfterAutoScore(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{AutoScore: true})
	h.addInvoice(t, "inv-1", lifecycle.StatusOCRPending, nil)
	ctx := context.Background()

	require.NoError(t, h.service.CompleteOCR(ctx, completedOutcome("inv-1")))
	scored := h.get(t, "inv-1")
	require.Equal(t, lifecycle.StatusOngoing, scored.Status)

	require.NoError(t, h.service.CompleteOCR(ctx, completedOutcome("inv-1")))
	assert.Equal(t, scored, h.get(t, "inv-1"))
	assert.Equal(t, 1, h.scorer.calls)
}

func TestInvoiceService_CompleteOCR_UnknownInvoice(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})

	err := h.service.CompleteOCR(context.Background(), completedOutcome("missing"))
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestInvoiceService_Demo(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})
	h.ocr.outcome = completedOutcome("")

	inv, err := h.service.Demo(context.Background(), samplePDF)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusDemo, inv.Status)
	assert.Equal(t, "Acme", inv.Client)
	assert.InDelta(t, 400.0, *inv.PossibleFinancing, 1e-9)

	stored, err := h.invoices.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestInvoiceService_Demo_NotInvoice(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})
	h.ocr.outcome = entity.OCROutcome{Status: lifecycle.StatusOCRFailed, Error: entity.ErrorMessageNotInvoice}

	_, err := h.service.Demo(context.Background(), samplePDF)
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
	assert.Contains(t, err.Error(), entity.ErrorMessageNotInvoice)
}

func TestInvoiceService_GetHidesOtherUsersInvoices(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})
	h.addInvoice(t, "inv-1", lifecycle.StatusOngoing, strPtr("u1"))
	h.addInvoice(t, "inv-2", lifecycle.StatusOCRPending, nil)
	ctx := context.Background()

	_, err := h.service.Get(ctx, "u1", "inv-1")
	assert.NoError(t, err)
	_, err = h.service.Get(ctx, "u2", "inv-1")
	assert.ErrorIs(t, err, entity.ErrNotFound)

	_, err = h.service.GetOnboarding(ctx, "inv-2")
	assert.NoError(t, err)
	_, err = h.service.GetOnboarding(ctx, "inv-1")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestInvoiceService_UpdateOnboarding(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})
	h.addUser(t, "u1")
	h.addInvoice(t, "inv-1", lifecycle.StatusOCRPending, nil)
	ctx := context.Background()
	_, err := h.reconciler.ApplyOCROutcome(ctx, func() entity.OCROutcome {
		o := completedOutcome("inv-1")
		o.Fields.ClientCity = strPtr("Paris")
		return o
	}())
	require.NoError(t, err)

	inv, err := h.service.UpdateOnboarding(ctx, "inv-1", entity.ChangeSet{
		Client:     entity.Value("Acme SAS"),
		ClientCity: entity.Null[string](),
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme SAS", inv.Client)
	require.NotNil(t, inv.ClientCity)
	assert.Equal(t, "Paris", *inv.ClientCity)

	_, err = h.service.UpdateOnboarding(ctx, "inv-1", entity.ChangeSet{UserID: entity.Value("u1")})
	assert.ErrorIs(t, err, entity.ErrInvalidInput)

	_, err = h.service.Claim(ctx, "u1", "inv-1")
	require.NoError(t, err)

	_, err = h.service.UpdateOnboarding(ctx, "inv-1", entity.ChangeSet{Client: entity.Value("Hijack")})
	assert.ErrorIs(t, err, entity.ErrOwnershipConflict)
	assert.Equal(t, "Acme SAS", h.get(t, "inv-1").Client)
}

func TestInvoiceService_ClaimTwice(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})
	h.addUser(t, "u1")
	h.addUser(t, "u2")
	h.addInvoice(t, "inv-1", lifecycle.StatusOCRCompleted, nil)
	ctx := context.Background()

	inv, err := h.service.Claim(ctx, "u1", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", *inv.UserID)

	_, err = h.service.Claim(ctx, "u2", "inv-1")
	assert.ErrorIs(t, err, entity.ErrOwnershipConflict)
	assert.Equal(t, "u1", *h.get(t, "inv-1").UserID)

	list, err := h.service.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestInvoiceService_Score(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})
	h.addInvoice(t, "inv-1", lifecycle.StatusOCRPending, strPtr("u1"))
	ctx := context.Background()
	require.NoError(t, h.service.CompleteOCR(ctx, completedOutcome("inv-1")))

	inv, err := h.service.Score(ctx, "u1", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusOngoing, inv.Status)
	assert.InDelta(t, 0.2, *inv.Score, 1e-9)
	assert.InDelta(t, 400.0, *inv.PossibleFinancing, 1e-9)

	_, err = h.service.Score(ctx, "u1", "inv-1")
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
	assert.Equal(t, 1, h.scorer.calls)
}

func TestInvoiceService_AcceptAndRefuse(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})
	h.addInvoice(t, "inv-1", lifecycle.StatusOngoing, strPtr("u1"))
	h.addInvoice(t, "inv-2", lifecycle.StatusOngoing, strPtr("u1"))
	h.addInvoice(t, "inv-3", lifecycle.StatusOCRCompleted, strPtr("u1"))
	ctx := context.Background()

	inv, err := h.service.Accept(ctx, "u1", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusAccepted, inv.Status)
	require.NotNil(t, inv.FinancingDate)
	assert.WithinDuration(t, time.Now(), *inv.FinancingDate, time.Minute)

	inv, err = h.service.Refuse(ctx, "u1", "inv-2")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusRefused, inv.Status)

	_, err = h.service.Accept(ctx, "u1", "inv-3")
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	_, err = h.service.Accept(ctx, "u2", "inv-2")
	assert.ErrorIs(t, err, entity.ErrOwnershipConflict)
}

func TestInvoiceService_SendAndSign(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})
	inv := h.addInvoice(t, "inv-1", lifecycle.StatusOngoing, strPtr("u1"))
	ctx := context.Background()
	_, err := h.reconciler.Apply(ctx, inv.ID, entity.ChangeSet{
		InvoiceNumber: entity.Value("INV-1"),
		Client:        entity.Value("Acme"),
		ClientEmail:   entity.Value("billing@acme.fr"),
	}, nil)
	require.NoError(t, err)

	sent, err := h.service.Send(ctx, "u1", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusSent, sent.Status)
	assert.Equal(t, "est-1", *sent.PennylaneID)
	assert.Equal(t, "doc-1", *sent.PandaDocID)
	assert.Equal(t, port.SignatureRequest{
		Name:           "Invoice INV-1",
		DocumentURL:    "https://files.example/est-1.pdf",
		RecipientEmail: "billing@acme.fr",
		RecipientName:  "Acme",
	}, h.signature.got)

	signed, err := h.service.MarkSigned(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusSigned, signed.Status)

	_, err = h.service.MarkSigned(ctx, "unknown")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestInvoiceService_Send_SignatureFailureKeepsEstimate(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})
	h.addInvoice(t, "inv-1", lifecycle.StatusOngoing, strPtr("u1"))
	ctx := context.Background()
	_, err := h.reconciler.Apply(ctx, "inv-1", entity.ChangeSet{ClientEmail: entity.Value("billing@acme.fr")}, nil)
	require.NoError(t, err)
	h.signature.err = errors.New("pandadoc down")

	_, err = h.service.Send(ctx, "u1", "inv-1")
	require.Error(t, err)

	inv := h.get(t, "inv-1")
	assert.Equal(t, lifecycle.StatusOngoing, inv.Status)
	assert.Equal(t, "est-1", *inv.PennylaneID)
	assert.Nil(t, inv.PandaDocID)
}

func TestInvoiceService_Send_RequiresClientEmail(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})
	h.addInvoice(t, "inv-1", lifecycle.StatusOngoing, strPtr("u1"))

	_, err := h.service.Send(context.Background(), "u1", "inv-1")
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
	assert.Nil(t, h.accounting.got)
}

func TestInvoiceService_ExpirePending(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})
	h.addInvoice(t, "old", lifecycle.StatusOCRPending, nil)
	h.addInvoice(t, "done", lifecycle.StatusOCRCompleted, nil)
	ctx := context.Background()

	n, err := h.service.ExpirePending(ctx, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	inv := h.get(t, "old")
	assert.Equal(t, lifecycle.StatusOCRFailed, inv.Status)
	assert.Equal(t, entity.ErrorMessagePendingDeadline, *inv.Error)
	assert.Equal(t, lifecycle.StatusOCRCompleted, h.get(t, "done").Status)

	n, err = h.service.ExpirePending(ctx, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestInvoiceService_Export(t *testing.T) {
	h := newHarness(t, InvoiceServiceOptions{})
	h.addInvoice(t, "inv-1", lifecycle.StatusOngoing, strPtr("u1"))
	h.addInvoice(t, "inv-2", lifecycle.StatusOngoing, strPtr("u2"))

	content, err := h.service.Export(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []byte("xlsx"), content)
	assert.Equal(t, 1, h.exporter.rows)
}
