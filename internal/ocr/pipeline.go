package ocr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
	"github.com/garyjia/invoice-financing/internal/domain/lifecycle"
)

// Stage is the internal state of one OCR run
type Stage string

const (
	StagePending              Stage = "PENDING"
	StageClassifying          Stage = "CLASSIFYING"
	StageExtracting           Stage = "EXTRACTING"
	StageCompleted            Stage = "COMPLETED"
	StageNotInvoice           Stage = "NOT_INVOICE"
	StageExtractionFailed     Stage = "EXTRACTION_FAILED"
	StageTextExtractionFailed Stage = "TEXT_EXTRACTION_FAILED"
)

// RetryPolicy re-runs the pipeline when text extraction failed for a reason
// other than an unreadable document (e.g. tesseract crashed). Classification
// and field extraction outcomes are final.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Pipeline runs text extraction, classification and field extraction in order
type Pipeline struct {
	text       TextExtractor
	classifier Classifier
	fields     FieldExtractor
	retry      RetryPolicy
	logger     *zap.Logger
}

// NewPipeline creates a pipeline. A zero RetryPolicy means one attempt.
func NewPipeline(text TextExtractor, classifier Classifier, fields FieldExtractor, retry RetryPolicy, logger *zap.Logger) *Pipeline {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Pipeline{
		text:       text,
		classifier: classifier,
		fields:     fields,
		retry:      retry,
		logger:     logger,
	}
}

// run is the state of a single attempt
type run struct {
	invoiceID string
	stage     Stage
	err       error
}

// Run always returns a terminal outcome, OCR_COMPLETED or OCR_FAILED
func (p *Pipeline) Run(ctx context.Context, invoiceID string, document []byte) entity.OCROutcome {
	var outcome entity.OCROutcome
	for attempt := 1; ; attempt++ {
		r := &run{invoiceID: invoiceID, stage: StagePending}
		outcome = p.attempt(ctx, r, document)

		p.logger.Info("OCR run finished",
			zap.String("invoice_id", invoiceID),
			zap.String("stage", string(r.stage)),
			zap.Int("attempt", attempt),
			zap.NamedError("cause", r.err))

		if !p.retryable(r) || attempt >= p.retry.MaxAttempts {
			return outcome
		}

		select {
		case <-ctx.Done():
			return outcome
		case <-time.After(p.retry.Backoff * time.Duration(attempt)):
		}
	}
}

func (p *Pipeline) retryable(r *run) bool {
	return r.stage == StageTextExtractionFailed &&
		!errors.Is(r.err, entity.ErrUnsupportedFormat) &&
		!errors.Is(r.err, context.Canceled)
}

func (p *Pipeline) attempt(ctx context.Context, r *run, document []byte) (outcome entity.OCROutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("OCR run panicked",
				zap.String("invoice_id", r.invoiceID),
				zap.String("stage", string(r.stage)),
				zap.Any("panic", rec))
			r.err = fmt.Errorf("panic: %v", rec)
			outcome = failed(r.invoiceID, entity.ErrorMessageInternal)
		}
	}()

	text, err := p.text.Extract(ctx, document)
	if err != nil {
		r.stage, r.err = StageTextExtractionFailed, err
		return failed(r.invoiceID, entity.ErrorMessageUnreadable)
	}

	r.stage = StageClassifying
	if !p.classifier.Classify(ctx, text) {
		r.stage = StageNotInvoice
		return failed(r.invoiceID, entity.ErrorMessageNotInvoice)
	}

	r.stage = StageExtracting
	fields, err := p.fields.Extract(ctx, text)
	if err != nil {
		r.stage, r.err = StageExtractionFailed, err
		return failed(r.invoiceID, err.Error())
	}

	r.stage = StageCompleted
	return entity.OCROutcome{
		InvoiceID: r.invoiceID,
		Status:    lifecycle.StatusOCRCompleted,
		Fields:    fields,
	}
}

func failed(invoiceID, message string) entity.OCROutcome {
	return entity.OCROutcome{
		InvoiceID: invoiceID,
		Status:    lifecycle.StatusOCRFailed,
		Error:     message,
	}
}

var _ port.OCRRunner = (*Pipeline)(nil)
