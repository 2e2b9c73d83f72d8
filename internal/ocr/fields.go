package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
)

// requiredFields in the order they are reported when missing
var requiredFields = []string{"invoice_number", "client", "amount", "due_date"}

// FieldExtractor turns invoice text into validated fields
type FieldExtractor interface {
	Extract(ctx context.Context, text string) (*entity.ExtractedFields, error)
}

// OracleFieldExtractor asks the oracle for a JSON record and validates it
type OracleFieldExtractor struct {
	oracle  port.Oracle
	prompt  port.PromptTemplate
	timeout time.Duration
	logger  *zap.Logger
}

// NewOracleFieldExtractor creates a field extractor bounded by timeout
func NewOracleFieldExtractor(oracle port.Oracle, prompt port.PromptTemplate, timeout time.Duration, logger *zap.Logger) *OracleFieldExtractor {
	return &OracleFieldExtractor{
		oracle:  oracle,
		prompt:  prompt,
		timeout: timeout,
		logger:  logger,
	}
}

func (e *OracleFieldExtractor) Extract(ctx context.Context, text string) (*entity.ExtractedFields, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req, err := e.prompt.Request(documentInput{Text: text}, true)
	if err != nil {
		return nil, err
	}

	answer, err := e.oracle.Complete(ctx, req)
	if err != nil {
		e.logger.Warn("Field extraction call failed", zap.Error(err))
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", entity.ErrOracleUnavailable, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", entity.ErrOracleUnavailable, err)
	}

	fields, err := ParseExtraction([]byte(answer))
	if err != nil {
		e.logger.Info("Extraction rejected",
			zap.Error(err),
			zap.String("answer", truncate(answer, 512)))
		return nil, err
	}
	return fields, nil
}

// ParseExtraction validates an extraction record: the JSON shape first,
// then required fields, due date and amount.
func ParseExtraction(data []byte) (*entity.ExtractedFields, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrMalformedResponse, err)
	}
	if err := extractionSchema.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrMalformedResponse, err)
	}
	m := v.(map[string]interface{})

	var missing []string
	for _, name := range requiredFields {
		if isBlank(m[name]) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &entity.MissingRequiredFieldsError{Fields: missing}
	}

	dueDate, err := entity.ParseDate(m["due_date"].(string))
	if err != nil {
		return nil, err
	}

	amount, err := ParseAmount(m["amount"])
	if err != nil {
		return nil, err
	}

	return &entity.ExtractedFields{
		InvoiceNumber:    strings.TrimSpace(scalarString(m["invoice_number"])),
		Client:           strings.TrimSpace(m["client"].(string)),
		Amount:           amount,
		DueDate:          dueDate,
		Description:      optionalString(m, "description"),
		ClientEmail:      optionalString(m, "client_email"),
		ClientPhone:      optionalString(m, "client_phone"),
		ClientAddress:    optionalString(m, "client_address"),
		ClientPostalCode: optionalString(m, "client_postal_code"),
		ClientCity:       optionalString(m, "client_city"),
		ClientCountry:    optionalString(m, "client_country"),
		ClientVATNumber:  optionalString(m, "client_vat_number"),
		ClientSIREN:      optionalString(m, "client_siren"),
	}, nil
}

// ParseAmount accepts a JSON number or a string such as "1 234,56 €" or
// "$1,234.56". Non-positive values are returned as they are.
func ParseAmount(v interface{}) (float64, error) {
	var s string
	switch a := v.(type) {
	case json.Number:
		s = a.String()
	case float64:
		return a, nil
	case string:
		s = normalizeAmount(a)
	default:
		return 0, fmt.Errorf("%w: %v", entity.ErrMalformedAmount, v)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", entity.ErrMalformedAmount, v)
	}
	f, _ := d.Float64()
	return f, nil
}

// normalizeAmount drops currency symbols and grouping, leaving a plain
// decimal with '.' as separator. The last of ',' or '.' is taken as the
// decimal mark when both appear; a lone ',' followed by one or two digits is
// a decimal comma.
func normalizeAmount(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	s = b.String()

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}
	return s
}

func isBlank(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	default:
		return false
	}
}

func scalarString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func optionalString(m map[string]interface{}, key string) *string {
	s, ok := m[key].(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
