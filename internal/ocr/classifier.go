package ocr

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/application/port"
)

// Classifier judges whether a text blob is plausibly an invoice
type Classifier interface {
	Classify(ctx context.Context, text string) bool
}

// OracleClassifier asks the oracle and fails closed: any error, timeout or
// unexpected answer counts as "not an invoice".
type OracleClassifier struct {
	oracle  port.Oracle
	prompt  port.PromptTemplate
	timeout time.Duration
	logger  *zap.Logger
}

// NewOracleClassifier creates a classifier bounded by timeout
func NewOracleClassifier(oracle port.Oracle, prompt port.PromptTemplate, timeout time.Duration, logger *zap.Logger) *OracleClassifier {
	return &OracleClassifier{
		oracle:  oracle,
		prompt:  prompt,
		timeout: timeout,
		logger:  logger,
	}
}

type documentInput struct {
	Text string
}

type classification struct {
	IsInvoice *bool `json:"is_invoice"`
}

func (c *OracleClassifier) Classify(ctx context.Context, text string) bool {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := c.prompt.Request(documentInput{Text: text}, true)
	if err != nil {
		c.logger.Error("Failed to render classification prompt", zap.Error(err))
		return false
	}

	answer, err := c.oracle.Complete(ctx, req)
	if err != nil {
		c.logger.Warn("Classification failed, treating as not an invoice", zap.Error(err))
		return false
	}

	var result classification
	if err := json.Unmarshal([]byte(answer), &result); err != nil || result.IsInvoice == nil {
		c.logger.Warn("Malformed classification answer, treating as not an invoice",
			zap.String("answer", truncate(answer, 256)))
		return false
	}
	return *result.IsInvoice
}
