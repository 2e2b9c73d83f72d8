package ocr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/domain/entity"
	"github.com/garyjia/invoice-financing/internal/domain/lifecycle"
)

var pdfBytes = []byte("%PDF-1.4 test")

func acmeFields(t *testing.T) *entity.ExtractedFields {
	t.Helper()
	due, err := entity.ParseDate("2025-01-01")
	require.NoError(t, err)
	return &entity.ExtractedFields{
		InvoiceNumber: "INV-1",
		Client:        "Acme",
		Amount:        500,
		DueDate:       due,
	}
}

func newTestPipeline(text *MockTextExtractor, cls *MockClassifier, fields *MockFieldExtractor, retry RetryPolicy) *Pipeline {
	return NewPipeline(text, cls, fields, retry, zap.NewNop())
}

func TestPipeline_Completed(t *testing.T) {
	text, cls, fields := new(MockTextExtractor), new(MockClassifier), new(MockFieldExtractor)
	text.On("Extract", mock.Anything, pdfBytes).Return("INVOICE INV-1 Acme 500 EUR due 2025-01-01", nil)
	cls.On("Classify", mock.Anything, mock.Anything).Return(true)
	fields.On("Extract", mock.Anything, mock.Anything).Return(acmeFields(t), nil)

	outcome := newTestPipeline(text, cls, fields, RetryPolicy{}).Run(context.Background(), "inv-1", pdfBytes)

	assert.Equal(t, lifecycle.StatusOCRCompleted, outcome.Status)
	assert.True(t, outcome.Succeeded())
	assert.Equal(t, "inv-1", outcome.InvoiceID)
	require.NotNil(t, outcome.Fields)
	assert.Equal(t, "INV-1", outcome.Fields.InvoiceNumber)
	assert.Equal(t, "Acme", outcome.Fields.Client)
	assert.Equal(t, 500.0, outcome.Fields.Amount)
	assert.Equal(t, "2025-01-01", outcome.Fields.DueDate.String())
	assert.Empty(t, outcome.Error)
}

func TestPipeline_DistinctFailureMessages(t *testing.T) {
	t.Run("unreadable document", func(t *testing.T) {
		text, cls, fields := new(MockTextExtractor), new(MockClassifier), new(MockFieldExtractor)
		text.On("Extract", mock.Anything, mock.Anything).
			Return("", fmt.Errorf("%w: not a pdf", entity.ErrUnsupportedFormat))

		outcome := newTestPipeline(text, cls, fields, RetryPolicy{}).Run(context.Background(), "inv-1", pdfBytes)

		assert.Equal(t, lifecycle.StatusOCRFailed, outcome.Status)
		assert.Equal(t, entity.ErrorMessageUnreadable, outcome.Error)
		assert.Nil(t, outcome.Fields)
		cls.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
	})

	t.Run("not an invoice", func(t *testing.T) {
		text, cls, fields := new(MockTextExtractor), new(MockClassifier), new(MockFieldExtractor)
		text.On("Extract", mock.Anything, mock.Anything).Return("Dear diary", nil)
		cls.On("Classify", mock.Anything, "Dear diary").Return(false)

		outcome := newTestPipeline(text, cls, fields, RetryPolicy{}).Run(context.Background(), "inv-1", pdfBytes)

		assert.Equal(t, lifecycle.StatusOCRFailed, outcome.Status)
		assert.Equal(t, "document is not an invoice", outcome.Error)
		fields.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
	})

	t.Run("extraction failed", func(t *testing.T) {
		text, cls, fields := new(MockTextExtractor), new(MockClassifier), new(MockFieldExtractor)
		text.On("Extract", mock.Anything, mock.Anything).Return("INVOICE", nil)
		cls.On("Classify", mock.Anything, mock.Anything).Return(true)
		fields.On("Extract", mock.Anything, mock.Anything).
			Return(nil, &entity.MissingRequiredFieldsError{Fields: []string{"amount", "due_date"}})

		outcome := newTestPipeline(text, cls, fields, RetryPolicy{}).Run(context.Background(), "inv-1", pdfBytes)

		assert.Equal(t, lifecycle.StatusOCRFailed, outcome.Status)
		assert.Equal(t, "missing required fields: amount, due_date", outcome.Error)
		assert.NotEqual(t, entity.ErrorMessageNotInvoice, outcome.Error)
		assert.NotEqual(t, entity.ErrorMessageUnreadable, outcome.Error)
	})
}

func TestPipeline_PanicBecomesFailure(t *testing.T) {
	text, cls, fields := new(MockTextExtractor), new(MockClassifier), new(MockFieldExtractor)
	text.On("Extract", mock.Anything, mock.Anything).Return("INVOICE", nil)
	cls.On("Classify", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("boom")
	}).Return(true)

	outcome := newTestPipeline(text, cls, fields, RetryPolicy{}).Run(context.Background(), "inv-1", pdfBytes)

	assert.Equal(t, lifecycle.StatusOCRFailed, outcome.Status)
	assert.Equal(t, entity.ErrorMessageInternal, outcome.Error)
}

func TestPipeline_RetryPolicy(t *testing.T) {
	t.Run("transient text failure is retried", func(t *testing.T) {
		text, cls, fields := new(MockTextExtractor), new(MockClassifier), new(MockFieldExtractor)
		text.On("Extract", mock.Anything, mock.Anything).Return("", errors.New("tesseract: signal: killed")).Once()
		text.On("Extract", mock.Anything, mock.Anything).Return("INVOICE", nil).Once()
		cls.On("Classify", mock.Anything, mock.Anything).Return(true)
		fields.On("Extract", mock.Anything, mock.Anything).Return(acmeFields(t), nil)

		outcome := newTestPipeline(text, cls, fields, RetryPolicy{MaxAttempts: 3}).Run(context.Background(), "inv-1", pdfBytes)

		assert.Equal(t, lifecycle.StatusOCRCompleted, outcome.Status)
		text.AssertNumberOfCalls(t, "Extract", 2)
	})

	t.Run("unreadable document is not retried", func(t *testing.T) {
		text, cls, fields := new(MockTextExtractor), new(MockClassifier), new(MockFieldExtractor)
		text.On("Extract", mock.Anything, mock.Anything).Return("", entity.ErrUnsupportedFormat)

		outcome := newTestPipeline(text, cls, fields, RetryPolicy{MaxAttempts: 3}).Run(context.Background(), "inv-1", pdfBytes)

		assert.Equal(t, entity.ErrorMessageUnreadable, outcome.Error)
		text.AssertNumberOfCalls(t, "Extract", 1)
	})

	t.Run("not an invoice is not retried", func(t *testing.T) {
		text, cls, fields := new(MockTextExtractor), new(MockClassifier), new(MockFieldExtractor)
		text.On("Extract", mock.Anything, mock.Anything).Return("memo", nil)
		cls.On("Classify", mock.Anything, mock.Anything).Return(false)

		outcome := newTestPipeline(text, cls, fields, RetryPolicy{MaxAttempts: 3}).Run(context.Background(), "inv-1", pdfBytes)

		assert.Equal(t, entity.ErrorMessageNotInvoice, outcome.Error)
		cls.AssertNumberOfCalls(t, "Classify", 1)
	})

	t.Run("default is a single attempt", func(t *testing.T) {
		text, cls, fields := new(MockTextExtractor), new(MockClassifier), new(MockFieldExtractor)
		text.On("Extract", mock.Anything, mock.Anything).Return("", errors.New("tesseract: exit status 1"))

		outcome := newTestPipeline(text, cls, fields, RetryPolicy{}).Run(context.Background(), "inv-1", pdfBytes)

		assert.Equal(t, entity.ErrorMessageUnreadable, outcome.Error)
		text.AssertNumberOfCalls(t, "Extract", 1)
	})
}

func TestPipeline_ConcurrentRunsAreIndependent(t *testing.T) {
	text, cls, fields := new(MockTextExtractor), new(MockClassifier), new(MockFieldExtractor)
	text.On("Extract", mock.Anything, []byte("good")).Return("INVOICE", nil)
	text.On("Extract", mock.Anything, []byte("bad")).Return("", entity.ErrUnsupportedFormat)
	cls.On("Classify", mock.Anything, mock.Anything).Return(true)
	fields.On("Extract", mock.Anything, mock.Anything).Return(acmeFields(t), nil)
	p := newTestPipeline(text, cls, fields, RetryPolicy{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("inv-%d", i)
			doc := []byte("good")
			if i%2 == 1 {
				doc = []byte("bad")
			}
			outcome := p.Run(context.Background(), id, doc)
			assert.Equal(t, id, outcome.InvoiceID)
			if i%2 == 1 {
				assert.Equal(t, lifecycle.StatusOCRFailed, outcome.Status)
			} else {
				assert.Equal(t, lifecycle.StatusOCRCompleted, outcome.Status)
			}
		}(i)
	}
	wg.Wait()
}
