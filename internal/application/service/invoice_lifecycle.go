package service

import (
	"context"
	"fmt"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
	"github.com/garyjia/invoice-financing/internal/domain/lifecycle"
)

// Score computes the financing score of an OCR_COMPLETED invoice
func (s *invoiceServiceImpl) Score(ctx context.Context, userID, id string) (*entity.Invoice, error) {
	inv, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.score(ctx, inv, &userID)
}

// score calls the scorer outside the store's critical section, then moves
// the invoice to Ongoing only if it is still OCR_COMPLETED.
func (s *invoiceServiceImpl) score(ctx context.Context, inv *entity.Invoice, actor *string) (*entity.Invoice, error) {
	if inv.Status != lifecycle.StatusOCRCompleted {
		return nil, fmt.Errorf("invoice %s is %s: %w", inv.ID, inv.Status, lifecycle.ErrInvalidTransition)
	}

	score, err := s.scorer.Score(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("failed to score invoice: %w", err)
	}

	cs := entity.ChangeSet{
		Score:  entity.Value(score),
		Status: entity.Value(lifecycle.StatusOngoing),
	}
	return s.reconciler.Apply(ctx, inv.ID, cs, actor, RequireStatus(lifecycle.StatusOCRCompleted))
}

// Accept marks an Ongoing invoice as financed today
func (s *invoiceServiceImpl) Accept(ctx context.Context, userID, id string) (*entity.Invoice, error) {
	cs := entity.ChangeSet{
		Status:        entity.Value(lifecycle.StatusAccepted),
		FinancingDate: entity.Value(s.now()),
	}
	return s.reconciler.Apply(ctx, id, cs, &userID, RequireStatus(lifecycle.StatusOngoing))
}

// Refuse declines the financing offer
func (s *invoiceServiceImpl) Refuse(ctx context.Context, userID, id string) (*entity.Invoice, error) {
	cs := entity.ChangeSet{Status: entity.Value(lifecycle.StatusRefused)}
	return s.reconciler.Apply(ctx, id, cs, &userID, RequireStatus(lifecycle.StatusOngoing))
}

// Send creates the accounting estimate and sends it for e-signature.
// The estimate id is stored first so a signature failure can be retried
// without knowing it was created.
func (s *invoiceServiceImpl) Send(ctx context.Context, userID, id string) (*entity.Invoice, error) {
	inv, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != lifecycle.StatusOngoing {
		return nil, fmt.Errorf("invoice %s is %s: %w", id, inv.Status, lifecycle.ErrInvalidTransition)
	}
	if inv.ClientEmail == nil || *inv.ClientEmail == "" {
		return nil, fmt.Errorf("%w: client_email is required to send an invoice", entity.ErrInvalidInput)
	}

	estimate, err := s.accounting.CreateEstimate(ctx, inv)
	if err != nil {
		s.logger.Error("Failed to create estimate", "invoice_id", id, "error", err)
		return nil, fmt.Errorf("failed to create estimate: %w", err)
	}

	inv, err = s.reconciler.Apply(ctx, id, entity.ChangeSet{PennylaneID: entity.Value(estimate.ID)}, &userID,
		RequireStatus(lifecycle.StatusOngoing))
	if err != nil {
		return nil, err
	}

	signature, err := s.signature.SendForSignature(ctx, port.SignatureRequest{
		Name:           "Invoice " + inv.InvoiceNumber,
		DocumentURL:    estimate.FileURL,
		RecipientEmail: *inv.ClientEmail,
		RecipientName:  inv.Client,
	})
	if err != nil {
		s.logger.Error("Failed to send document for signature", "invoice_id", id, "error", err)
		return nil, fmt.Errorf("failed to send for signature: %w", err)
	}

	cs := entity.ChangeSet{
		PandaDocID: entity.Value(signature.DocumentID),
		Status:     entity.Value(lifecycle.StatusSent),
	}
	return s.reconciler.Apply(ctx, id, cs, &userID)
}

// MarkSigned moves the invoice behind a signed document to Signed
func (s *invoiceServiceImpl) MarkSigned(ctx context.Context, pandaDocID string) (*entity.Invoice, error) {
	inv, err := s.invoices.GetByPandaDocID(ctx, pandaDocID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("document %s: %w", pandaDocID, entity.ErrNotFound)
	}
	return s.reconciler.Apply(ctx, inv.ID, entity.ChangeSet{Status: entity.Value(lifecycle.StatusSigned)}, nil)
}
