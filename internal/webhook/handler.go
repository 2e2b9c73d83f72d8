package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
	"github.com/garyjia/invoice-financing/internal/domain/lifecycle"
	"github.com/garyjia/invoice-financing/internal/ocr"
)

// SecretHeader carries the shared secret of OCR callbacks
const SecretHeader = "X-Webhook-Secret"

const maxBodyBytes = 1 << 20

// SignatureMarker moves the invoice behind a completed e-signature to Signed
type SignatureMarker interface {
	MarkSigned(ctx context.Context, pandaDocID string) (*entity.Invoice, error)
}

// Handler handles webhook requests
type Handler struct {
	verifier *Verifier
	outcomes port.OutcomeHandler
	signed   SignatureMarker
	logger   *zap.Logger
}

// NewHandler creates a new webhook handler
func NewHandler(verifier *Verifier, outcomes port.OutcomeHandler, signed SignatureMarker, logger *zap.Logger) *Handler {
	return &Handler{
		verifier: verifier,
		outcomes: outcomes,
		signed:   signed,
		logger:   logger,
	}
}

// Register mounts the webhook routes
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/webhooks/ocr/result", h.HandleOCRResult)
	r.POST("/webhooks/pandadoc", h.HandlePandaDoc)
}

// OCRResult is the body posted by an OCR worker
type OCRResult struct {
	InvoiceID  string          `json:"invoice_id"`
	Status     string          `json:"status,omitempty"`
	OCRResults json.RawMessage `json:"ocr_results,omitempty"`
	Error      *string         `json:"error"`
}

// HandleOCRResult records an OCR outcome: OCR_COMPLETED when error is null,
// OCR_FAILED with the error otherwise.
func (h *Handler) HandleOCRResult(c *gin.Context) {
	if !h.verifier.VerifySecret(c.GetHeader(SecretHeader)) {
		h.logger.Warn("Rejected OCR webhook with invalid secret", zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusForbidden, gin.H{"detail": "Invalid webhook secret"})
		return
	}

	var payload OCRResult
	if err := json.NewDecoder(io.LimitReader(c.Request.Body, maxBodyBytes)).Decode(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid JSON body"})
		return
	}
	if payload.InvoiceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Missing invoice_id"})
		return
	}

	outcome, err := payload.Outcome()
	if err != nil {
		h.logger.Warn("Rejected OCR webhook payload",
			zap.String("invoice_id", payload.InvoiceID),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid ocr_results: " + err.Error()})
		return
	}

	h.logger.Info("Received OCR webhook",
		zap.String("invoice_id", outcome.InvoiceID),
		zap.String("status", outcome.Status.String()))

	if err := h.outcomes.CompleteOCR(c.Request.Context(), outcome); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// Outcome converts the payload into an OCR outcome, validating ocr_results
// the same way oracle extractions are validated
func (p OCRResult) Outcome() (entity.OCROutcome, error) {
	if p.Error != nil {
		return entity.OCROutcome{
			InvoiceID: p.InvoiceID,
			Status:    lifecycle.StatusOCRFailed,
			Error:     *p.Error,
		}, nil
	}

	outcome := entity.OCROutcome{InvoiceID: p.InvoiceID, Status: lifecycle.StatusOCRCompleted}
	raw := bytes.TrimSpace(p.OCRResults)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return outcome, nil
	}
	fields, err := ocr.ParseExtraction(raw)
	if err != nil {
		return entity.OCROutcome{}, err
	}
	outcome.Fields = fields
	return outcome, nil
}

type pandaDocEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

// HandlePandaDoc marks invoices Signed on document_state_changed events
// reporting document.completed. PandaDoc may batch events in an array.
func (h *Handler) HandlePandaDoc(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Failed to read request body"})
		return
	}
	if !h.verifier.VerifySignature(body, c.Query("signature")) {
		h.logger.Warn("Rejected PandaDoc webhook with invalid signature")
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid signature"})
		return
	}

	events, err := decodeEvents(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid JSON body"})
		return
	}

	for _, event := range events {
		if event.Event != "document_state_changed" {
			continue
		}
		h.logger.Info("Received PandaDoc state change",
			zap.String("document_id", event.Data.ID),
			zap.String("status", event.Data.Status))
		if event.Data.Status != "document.completed" {
			continue
		}
		if _, err := h.signed.MarkSigned(c.Request.Context(), event.Data.ID); err != nil {
			h.writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func decodeEvents(body []byte) ([]pandaDocEvent, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var events []pandaDocEvent
		err := json.Unmarshal(body, &events)
		return events, err
	}
	var event pandaDocEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	return []pandaDocEvent{event}, nil
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Invoice not found"})
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"detail": err.Error()})
	case errors.Is(err, entity.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
	default:
		h.logger.Error("Webhook processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
	}
}
