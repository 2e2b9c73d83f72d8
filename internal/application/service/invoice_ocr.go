package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
	"github.com/garyjia/invoice-financing/internal/domain/lifecycle"
)

// Upload stores a PDF for the caller and queues it for OCR
func (s *invoiceServiceImpl) Upload(ctx context.Context, userID string, document []byte) (*entity.Invoice, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.ingest(ctx, &userID, document)
}

// OnboardingUpload stores a PDF with no owner and queues it for OCR
func (s *invoiceServiceImpl) OnboardingUpload(ctx context.Context, document []byte) (*entity.Invoice, error) {
	return s.ingest(ctx, nil, document)
}

// ingest creates the placeholder invoice and hands the document to the
// worker pool. The caller gets the OCR_PENDING record back immediately.
func (s *invoiceServiceImpl) ingest(ctx context.Context, userID *string, document []byte) (*entity.Invoice, error) {
	if len(document) == 0 {
		return nil, fmt.Errorf("%w: empty document", entity.ErrInvalidInput)
	}

	inv := s.newInvoice(userID, lifecycle.StatusDraft)
	key := port.DocumentKey(inv.ID)

	if err := s.documents.Save(ctx, key, document); err != nil {
		s.logger.Error("Failed to store document", "invoice_id", inv.ID, "error", err)
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	if err := s.invoices.Create(ctx, inv); err != nil {
		if delErr := s.documents.Delete(ctx, key); delErr != nil {
			s.logger.Warn("Failed to remove orphaned document", "invoice_id", inv.ID, "error", delErr)
		}
		return nil, err
	}

	pending, err := s.reconciler.Apply(ctx, inv.ID, entity.ChangeSet{Status: entity.Value(lifecycle.StatusOCRPending)}, nil)
	if err != nil {
		if delErr := s.documents.Delete(ctx, key); delErr != nil {
			s.logger.Warn("Failed to remove orphaned document", "invoice_id", inv.ID, "error", delErr)
		}
		return nil, err
	}

	job := port.OCRJob{InvoiceID: inv.ID, DocumentKey: key}
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		s.logger.Error("Failed to queue OCR job", "invoice_id", inv.ID, "error", err)
		return s.reconciler.ApplyOCROutcome(ctx, entity.OCROutcome{
			InvoiceID: inv.ID,
			Status:    lifecycle.StatusOCRFailed,
			Error:     entity.ErrorMessageInternal,
		})
	}

	s.logger.Info("Invoice queued for OCR", "invoice_id", inv.ID, "owned", userID != nil)
	return pending, nil
}

// Demo runs OCR and scoring synchronously and returns an unsaved preview
func (s *invoiceServiceImpl) Demo(ctx context.Context, document []byte) (*entity.Invoice, error) {
	if len(document) == 0 {
		return nil, fmt.Errorf("%w: empty document", entity.ErrInvalidInput)
	}

	inv := s.newInvoice(nil, lifecycle.StatusDemo)
	outcome := s.ocr.Run(ctx, inv.ID, document)
	if !outcome.Succeeded() {
		return nil, fmt.Errorf("%w: %s", entity.ErrInvalidInput, outcome.Error)
	}
	inv.Merge(outcome.ChangeSet())
	inv.Status = lifecycle.StatusDemo

	score, err := s.scorer.Score(ctx, inv)
	if err != nil {
		s.logger.Warn("Demo scoring failed", "error", err)
		return inv, nil
	}
	inv.Merge(entity.ChangeSet{Score: entity.Value(score)})
	return inv, nil
}

// CompleteOCR records the outcome and optionally scores the invoice
func (s *invoiceServiceImpl) CompleteOCR(ctx context.Context, outcome entity.OCROutcome) error {
	inv, err := s.reconciler.ApplyOCROutcome(ctx, outcome)
	if err != nil {
		s.logger.Error("Failed to record OCR outcome",
			"invoice_id", outcome.InvoiceID,
			"status", outcome.Status,
			"error", err)
		return err
	}

	s.logger.Info("OCR outcome recorded", "invoice_id", inv.ID, "status", inv.Status)

	if !outcome.Succeeded() || !s.opts.AutoScore || inv.Status != lifecycle.StatusOCRCompleted {
		return nil
	}
	if _, err := s.score(ctx, inv, nil); err != nil {
		s.logger.Warn("Automatic scoring failed", "invoice_id", inv.ID, "error", err)
	}
	return nil
}

// ExpirePending fails OCR_PENDING invoices last touched before the cutoff.
// Invoices completed concurrently are skipped.
func (s *invoiceServiceImpl) ExpirePending(ctx context.Context, before time.Time) (int, error) {
	stuck, err := s.invoices.ListByStatusOlderThan(ctx, lifecycle.StatusOCRPending, before, s.opts.ExpireBatch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, inv := range stuck {
		_, err := s.reconciler.ApplyOCROutcome(ctx, entity.OCROutcome{
			InvoiceID: inv.ID,
			Status:    lifecycle.StatusOCRFailed,
			Error:     entity.ErrorMessagePendingDeadline,
		})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, lifecycle.ErrInvalidTransition):
			continue
		default:
			return expired, err
		}
	}

	if expired > 0 {
		s.logger.Warn("Expired stuck OCR jobs", "count", expired, "before", before)
	}
	return expired, nil
}
