package port

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/garyjia/invoice-financing/internal/domain/entity"
)

// OracleRequest is one call to the text-reasoning oracle
type OracleRequest struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
	// JSON requests a strict JSON object response
	JSON bool
}

// PromptTemplate is a fixed system instruction plus a text/template for the user message
type PromptTemplate struct {
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	System       string  `yaml:"system"`
	UserTemplate string  `yaml:"user_template"`
}

// Request renders the user template with data
func (p PromptTemplate) Request(data interface{}, jsonMode bool) (OracleRequest, error) {
	tmpl, err := template.New("prompt").Parse(p.UserTemplate)
	if err != nil {
		return OracleRequest{}, fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return OracleRequest{}, fmt.Errorf("failed to execute template: %w", err)
	}

	return OracleRequest{
		System:      p.System,
		Prompt:      buf.String(),
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		JSON:        jsonMode,
	}, nil
}

// Oracle is the black-box text-reasoning service used for classification,
// field extraction and scoring
type Oracle interface {
	Complete(ctx context.Context, req OracleRequest) (string, error)
}

// Scorer returns a financing risk score in [0,1] for invoice fields
type Scorer interface {
	Score(ctx context.Context, inv *entity.Invoice) (float64, error)
}

// OCRRunner runs the OCR pipeline over one document
type OCRRunner interface {
	Run(ctx context.Context, invoiceID string, document []byte) entity.OCROutcome
}

// OCRJob is a queued request to OCR one stored document
type OCRJob struct {
	InvoiceID   string `json:"invoice_id"`
	DocumentKey string `json:"document_key"`
}

// JobQueue hands OCR jobs from the request path to background workers
type JobQueue interface {
	Enqueue(ctx context.Context, job OCRJob) error
	// Dequeue blocks until a job is available or ctx is done
	Dequeue(ctx context.Context) (OCRJob, error)
	Close() error
}

// OutcomeHandler receives the terminal outcome of an OCR job
type OutcomeHandler interface {
	CompleteOCR(ctx context.Context, outcome entity.OCROutcome) error
}

// EstimateResult is returned by the accounting collaborator
type EstimateResult struct {
	ID string
	// FileURL is the public PDF of the generated estimate
	FileURL string
}

// AccountingClient creates customer estimates (Pennylane)
type AccountingClient interface {
	CreateEstimate(ctx context.Context, inv *entity.Invoice) (*EstimateResult, error)
}

// SignatureRequest describes a document to send for e-signature
type SignatureRequest struct {
	Name           string
	DocumentURL    string
	RecipientEmail string
	RecipientName  string
}

// SignatureResult is returned by the e-signature collaborator
type SignatureResult struct {
	DocumentID string
	Status     string
}

// SignatureClient sends documents for signature (PandaDoc)
type SignatureClient interface {
	SendForSignature(ctx context.Context, req SignatureRequest) (*SignatureResult, error)
}

// InvoiceExporter renders invoices into a downloadable spreadsheet
type InvoiceExporter interface {
	Export(ctx context.Context, invoices []*entity.Invoice) ([]byte, error)
}
