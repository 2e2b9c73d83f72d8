package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
)

// Notifier delivers OCR outcomes to the API's result webhook. Standalone
// OCR workers use it in place of calling the service directly.
type Notifier struct {
	url        string
	secret     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewNotifier creates a notifier posting to callbackURL
func NewNotifier(callbackURL, secret string, timeout time.Duration, logger *zap.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Notifier{
		url:        callbackURL,
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// CompleteOCR posts the outcome and fails unless the API answered 2xx
func (n *Notifier) CompleteOCR(ctx context.Context, outcome entity.OCROutcome) error {
	payload := OCRResult{InvoiceID: outcome.InvoiceID, Status: outcome.Status.String()}
	if outcome.Succeeded() {
		results, err := json.Marshal(outcome.Fields)
		if err != nil {
			return fmt.Errorf("failed to encode ocr results: %w", err)
		}
		payload.OCRResults = results
	} else {
		msg := outcome.Error
		if msg == "" {
			msg = entity.ErrorMessageInternal
		}
		payload.Error = &msg
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SecretHeader, n.secret)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver ocr result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		n.logger.Error("OCR result webhook rejected",
			zap.String("invoice_id", outcome.InvoiceID),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)))
		return fmt.Errorf("ocr result webhook returned status %d", resp.StatusCode)
	}

	n.logger.Info("OCR result delivered",
		zap.String("invoice_id", outcome.InvoiceID),
		zap.String("status", payload.Status))
	return nil
}

var _ port.OutcomeHandler = (*Notifier)(nil)
