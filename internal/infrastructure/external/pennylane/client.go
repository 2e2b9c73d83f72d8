package pennylane

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
	"github.com/garyjia/invoice-financing/internal/domain/entity"
)

// DefaultBaseURL is the Pennylane external API root
const DefaultBaseURL = "https://app.pennylane.com/api/external/v1"

// Client creates customer estimates in Pennylane
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
	logger     *zap.Logger
}

// NewClient creates a new Pennylane client
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
		logger:     logger,
	}
}

type estimateRequest struct {
	CreateCustomer bool            `json:"create_customer"`
	UpdateCustomer bool            `json:"update_customer"`
	CreateProducts bool            `json:"create_products"`
	Estimate       estimatePayload `json:"estimate"`
}

type estimatePayload struct {
	Date              string     `json:"date"`
	Deadline          string     `json:"deadline"`
	ExternalID        string     `json:"external_id"`
	PDFInvoiceSubject string     `json:"pdf_invoice_subject"`
	Draft             bool       `json:"draft"`
	Currency          string     `json:"currency"`
	SpecialMention    string     `json:"special_mention"`
	Language          string     `json:"language"`
	Customer          customer   `json:"customer"`
	LineItems         []lineItem `json:"line_items"`
}

type customer struct {
	CustomerType  string `json:"customer_type"`
	Name          string `json:"name"`
	Address       string `json:"address"`
	PostalCode    string `json:"postal_code"`
	City          string `json:"city"`
	CountryAlpha2 string `json:"country_alpha2"`
}

type lineItem struct {
	Label          string  `json:"label"`
	Quantity       int     `json:"quantity"`
	CurrencyAmount float64 `json:"currency_amount"`
	Unit           string  `json:"unit"`
	VATRate        string  `json:"vat_rate"`
}

type estimateResponse struct {
	ID       json.Number `json:"id"`
	FileURL  string      `json:"file_url"`
	Estimate *struct {
		ID      json.Number `json:"id"`
		FileURL string      `json:"file_url"`
	} `json:"estimate"`
}

// CreateEstimate posts a draft quote for the invoice amount
func (c *Client) CreateEstimate(ctx context.Context, inv *entity.Invoice) (*port.EstimateResult, error) {
	body, err := json.Marshal(buildEstimate(inv, c.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal estimate: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/customer_estimates", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Info("Creating Pennylane estimate", zap.String("invoice_id", inv.ID))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pennylane request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read pennylane response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.Error("Pennylane API error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)))
		return nil, fmt.Errorf("pennylane returned status %d", resp.StatusCode)
	}

	var parsed estimateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode pennylane response: %w", err)
	}

	result := &port.EstimateResult{ID: parsed.ID.String(), FileURL: parsed.FileURL}
	if parsed.Estimate != nil {
		result.ID = parsed.Estimate.ID.String()
		result.FileURL = parsed.Estimate.FileURL
	}
	if result.ID == "" {
		return nil, fmt.Errorf("pennylane response has no estimate id")
	}

	c.logger.Info("Pennylane estimate created",
		zap.String("invoice_id", inv.ID),
		zap.String("estimate_id", result.ID))
	return result, nil
}

func buildEstimate(inv *entity.Invoice, now time.Time) estimateRequest {
	description := deref(inv.Description)
	label := description
	if label == "" {
		label = "Professional Services"
	}
	deadline := ""
	if inv.DueDate != nil {
		deadline = inv.DueDate.String()
	}

	return estimateRequest{
		CreateCustomer: true,
		UpdateCustomer: false,
		CreateProducts: true,
		Estimate: estimatePayload{
			Date:              now.Format(entity.DateLayout),
			Deadline:          deadline,
			ExternalID:        inv.ID,
			PDFInvoiceSubject: "Quote " + inv.InvoiceNumber,
			Draft:             true,
			Currency:          "EUR",
			SpecialMention:    description,
			Language:          "fr_FR",
			Customer: customer{
				CustomerType:  "company",
				Name:          inv.Client,
				Address:       deref(inv.ClientAddress),
				PostalCode:    deref(inv.ClientPostalCode),
				City:          deref(inv.ClientCity),
				CountryAlpha2: "FR",
			},
			LineItems: []lineItem{{
				Label:          label,
				Quantity:       1,
				CurrencyAmount: inv.Amount,
				Unit:           "service",
				VATRate:        "FR_200",
			}},
		},
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ port.AccountingClient = (*Client)(nil)
