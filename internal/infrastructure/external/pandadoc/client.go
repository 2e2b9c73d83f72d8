package pandadoc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/application/port"
)

// DefaultBaseURL is the PandaDoc public API root
const DefaultBaseURL = "https://api.pandadoc.com/public/v1"

// Document statuses reported by PandaDoc
const (
	StatusUploaded  = "document.uploaded"
	StatusDraft     = "document.draft"
	StatusCompleted = "document.completed"
)

// Config holds PandaDoc client settings
type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	PollAttempts int
	PollInterval time.Duration
}

// Client sends documents for e-signature through PandaDoc
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new PandaDoc client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.PollAttempts <= 0 {
		config.PollAttempts = 10
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

type recipient struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	Role      string `json:"role"`
}

type createRequest struct {
	Name            string      `json:"name"`
	URL             string      `json:"url"`
	Recipients      []recipient `json:"recipients"`
	ParseFormFields bool        `json:"parse_form_fields"`
}

type sendRequest struct {
	Message string `json:"message"`
	Silent  bool   `json:"silent"`
}

type documentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SendForSignature creates the document from a URL, waits for PandaDoc to
// finish processing it, then sends it to the recipient.
func (c *Client) SendForSignature(ctx context.Context, req port.SignatureRequest) (*port.SignatureResult, error) {
	var created documentResponse
	err := c.do(ctx, http.MethodPost, "/documents", createRequest{
		Name: req.Name,
		URL:  req.DocumentURL,
		Recipients: []recipient{{
			Email:     req.RecipientEmail,
			FirstName: req.RecipientName,
			Role:      "signer",
		}},
		ParseFormFields: true,
	}, http.StatusCreated, &created)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	c.logger.Info("PandaDoc document created", zap.String("document_id", created.ID))

	if err := c.waitForDraft(ctx, created.ID); err != nil {
		return nil, err
	}

	var sent documentResponse
	err = c.do(ctx, http.MethodPost, "/documents/"+created.ID+"/send", sendRequest{
		Message: "Please review and sign this document",
		Silent:  false,
	}, http.StatusOK, &sent)
	if err != nil {
		return nil, fmt.Errorf("failed to send document: %w", err)
	}

	c.logger.Info("PandaDoc document sent",
		zap.String("document_id", created.ID),
		zap.String("status", sent.Status))
	return &port.SignatureResult{DocumentID: created.ID, Status: sent.Status}, nil
}

func (c *Client) waitForDraft(ctx context.Context, id string) error {
	for attempt := 0; attempt < c.config.PollAttempts; attempt++ {
		var doc documentResponse
		if err := c.do(ctx, http.MethodGet, "/documents/"+id, nil, http.StatusOK, &doc); err != nil {
			return fmt.Errorf("failed to check document status: %w", err)
		}

		switch doc.Status {
		case StatusDraft:
			return nil
		case StatusUploaded:
		default:
			return fmt.Errorf("unexpected document status: %s", doc.Status)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.config.PollInterval):
		}
	}
	return fmt.Errorf("timeout waiting for document %s to be ready", id)
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}, wantStatus int, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "API-Key "+c.config.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != wantStatus {
		c.logger.Error("PandaDoc API error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)))
		return fmt.Errorf("pandadoc returned status %d", resp.StatusCode)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

var _ port.SignatureClient = (*Client)(nil)
