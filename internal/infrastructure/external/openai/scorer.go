package openai

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
)

// Scorer asks the oracle for a financing risk score
type Scorer struct {
	oracle port.Oracle
	prompt port.PromptTemplate
	logger *zap.Logger
}

// NewScorer creates a scorer using the scoring prompt
func NewScorer(oracle port.Oracle, prompt port.PromptTemplate, logger *zap.Logger) *Scorer {
	return &Scorer{oracle: oracle, prompt: prompt, logger: logger}
}

type scoringInput struct {
	InvoiceNumber string
	Amount        float64
	Client        string
	DueDate       string
	Description   string
}

// Score returns a risk score in [0,1]. Answers slightly outside the range
// are clamped; answers that are not a number are an error.
func (s *Scorer) Score(ctx context.Context, inv *entity.Invoice) (float64, error) {
	in := scoringInput{
		InvoiceNumber: inv.InvoiceNumber,
		Amount:        inv.Amount,
		Client:        inv.Client,
	}
	if inv.DueDate != nil {
		in.DueDate = inv.DueDate.String()
	}
	if inv.Description != nil {
		in.Description = *inv.Description
	}

	req, err := s.prompt.Request(in, false)
	if err != nil {
		return 0, err
	}

	answer, err := s.oracle.Complete(ctx, req)
	if err != nil {
		return 0, err
	}

	score, err := ParseScore(answer)
	if err != nil {
		s.logger.Warn("Unusable scoring answer",
			zap.String("invoice_id", inv.ID),
			zap.String("answer", answer))
		return 0, err
	}

	s.logger.Info("Invoice scored",
		zap.String("invoice_id", inv.ID),
		zap.Float64("score", score))
	return score, nil
}

// ParseScore reads the first token of answer as a number and clamps it to [0,1]
func ParseScore(answer string) (float64, error) {
	fields := strings.Fields(answer)
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: empty score", entity.ErrMalformedResponse)
	}

	token := strings.TrimRight(strings.Trim(fields[0], "`*\"'"), ".,;:")
	score, err := strconv.ParseFloat(token, 64)
	if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("%w: score %q is not a number", entity.ErrMalformedResponse, answer)
	}
	return math.Min(1, math.Max(0, score)), nil
}

var _ port.Scorer = (*Scorer)(nil)
