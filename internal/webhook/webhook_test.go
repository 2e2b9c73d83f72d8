package webhook

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/domain/entity"
	"github.com/garyjia/invoice-financing/internal/domain/lifecycle"
)

const testSecret = "s3cret"

type recordingOutcomes struct {
	mu       sync.Mutex
	outcomes []entity.OCROutcome
	err      error
}

func (r *recordingOutcomes) CompleteOCR(_ context.Context, outcome entity.OCROutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.outcomes = append(r.outcomes, outcome)
	return nil
}

func (r *recordingOutcomes) calls() []entity.OCROutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entity.OCROutcome(nil), r.outcomes...)
}

type recordingMarker struct {
	signed []string
	known  map[string]bool
}

func (m *recordingMarker) MarkSigned(_ context.Context, id string) (*entity.Invoice, error) {
	if !m.known[id] {
		return nil, entity.ErrNotFound
	}
	m.signed = append(m.signed, id)
	return &entity.Invoice{PandaDocID: &id, Status: lifecycle.StatusSigned}, nil
}

func newTestRouter(outcomes *recordingOutcomes, marker *recordingMarker, pandaDocKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(NewVerifier(testSecret, pandaDocKey, zap.NewNop()), outcomes, marker, zap.NewNop())
	h.Register(r)
	return r
}

func post(r http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const validResults = `{"invoice_number":"INV-7","client":"Acme","amount":"1 200,50","due_date":"2025-03-31","client_city":"Lyon"}`

func TestHandleOCRResult_Authentication(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
	}{
		{"missing secret", nil},
		{"wrong secret", map[string]string{SecretHeader: "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcomes := &recordingOutcomes{}
			r := newTestRouter(outcomes, &recordingMarker{}, "")

			w := post(r, "/webhooks/ocr/result", `{"invoice_id":"inv-1","error":null,"ocr_results":`+validResults+`}`, tt.header)
			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.JSONEq(t, `{"detail":"Invalid webhook secret"}`, w.Body.String())
			assert.Empty(t, outcomes.calls())
		})
	}
}

func TestHandleOCRResult_Completed(t *testing.T) {
	outcomes := &recordingOutcomes{}
	r := newTestRouter(outcomes, &recordingMarker{}, "")

	w := post(r, "/webhooks/ocr/result",
		`{"invoice_id":"inv-1","error":null,"ocr_results":`+validResults+`}`,
		map[string]string{SecretHeader: testSecret})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success"}`, w.Body.String())

	calls := outcomes.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "inv-1", calls[0].InvoiceID)
	assert.Equal(t, lifecycle.StatusOCRCompleted, calls[0].Status)
	require.NotNil(t, calls[0].Fields)
	assert.Equal(t, 1200.5, calls[0].Fields.Amount)
	assert.Equal(t, "Lyon", *calls[0].Fields.ClientCity)
}

func TestHandleOCRResult_Failed(t *testing.T) {
	outcomes := &recordingOutcomes{}
	r := newTestRouter(outcomes, &recordingMarker{}, "")

	w := post(r, "/webhooks/ocr/result",
		`{"invoice_id":"inv-1","error":"document is not an invoice"}`,
		map[string]string{SecretHeader: testSecret})
	require.Equal(t, http.StatusOK, w.Code)

	calls := outcomes.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, lifecycle.StatusOCRFailed, calls[0].Status)
	assert.Equal(t, entity.ErrorMessageNotInvoice, calls[0].Error)
	assert.Nil(t, calls[0].Fields)
}

func TestHandleOCRResult_BadRequests(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"missing invoice id", `{"error":null}`, "Missing invoice_id"},
		{"invalid json", `{"invoice_id":`, "Invalid JSON body"},
		{"missing required fields", `{"invoice_id":"inv-1","error":null,"ocr_results":{"client":"Acme"}}`, "Invalid ocr_results"},
		{"bad due date", `{"invoice_id":"inv-1","error":null,"ocr_results":{"invoice_number":"1","client":"A","amount":10,"due_date":"31/03/2025"}}`, "Invalid ocr_results"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcomes := &recordingOutcomes{}
			r := newTestRouter(outcomes, &recordingMarker{}, "")

			w := post(r, "/webhooks/ocr/result", tt.body, map[string]string{SecretHeader: testSecret})
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.detail)
			assert.Empty(t, outcomes.calls())
		})
	}
}

func TestHandleOCRResult_ServiceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"unknown invoice", entity.ErrNotFound, http.StatusNotFound},
		{"stale outcome", fmt.Errorf("apply: %w", lifecycle.ErrInvalidTransition), http.StatusConflict},
		{"storage failure", fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&recordingOutcomes{err: tt.err}, &recordingMarker{}, "")

			w := post(r, "/webhooks/ocr/result", `{"invoice_id":"inv-404","error":"boom"}`,
				map[string]string{SecretHeader: testSecret})
			assert.Equal(t, tt.code, w.Code)
		})
	}

	r := newTestRouter(&recordingOutcomes{err: entity.ErrNotFound}, &recordingMarker{}, "")
	w := post(r, "/webhooks/ocr/result", `{"invoice_id":"inv-404","error":"boom"}`,
		map[string]string{SecretHeader: testSecret})
	assert.JSONEq(t, `{"detail":"Invoice not found"}`, w.Body.String())

	r = newTestRouter(&recordingOutcomes{err: fmt.Errorf("open /var/lib/invoices.db: disk full")}, &recordingMarker{}, "")
	w = post(r, "/webhooks/ocr/result", `{"invoice_id":"inv-1","error":"boom"}`,
		map[string]string{SecretHeader: testSecret})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"detail":"Internal server error"}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "invoices.db")
}

func TestHandlePandaDoc(t *testing.T) {
	t.Run("single completed event", func(t *testing.T) {
		marker := &recordingMarker{known: map[string]bool{"doc-1": true}}
		r := newTestRouter(&recordingOutcomes{}, marker, "")

		w := post(r, "/webhooks/pandadoc",
			`{"event":"document_state_changed","data":{"id":"doc-1","status":"document.completed"}}`, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"doc-1"}, marker.signed)
	})

	t.Run("batched events ignore other states", func(t *testing.T) {
		marker := &recordingMarker{known: map[string]bool{"doc-1": true, "doc-2": true}}
		r := newTestRouter(&recordingOutcomes{}, marker, "")

		w := post(r, "/webhooks/pandadoc", `[
			{"event":"document_state_changed","data":{"id":"doc-1","status":"document.viewed"}},
			{"event":"recipient_completed","data":{"id":"doc-1","status":"document.completed"}},
			{"event":"document_state_changed","data":{"id":"doc-2","status":"document.completed"}}
		]`, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"doc-2"}, marker.signed)
	})

	t.Run("unknown document", func(t *testing.T) {
		r := newTestRouter(&recordingOutcomes{}, &recordingMarker{}, "")

		w := post(r, "/webhooks/pandadoc",
			`{"event":"document_state_changed","data":{"id":"doc-9","status":"document.completed"}}`, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"detail":"Invoice not found"}`, w.Body.String())
	})

	t.Run("signature required when key configured", func(t *testing.T) {
		marker := &recordingMarker{known: map[string]bool{"doc-1": true}}
		r := newTestRouter(&recordingOutcomes{}, marker, "shared")
		body := `{"event":"document_state_changed","data":{"id":"doc-1","status":"document.completed"}}`

		w := post(r, "/webhooks/pandadoc?signature=bad", body, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, marker.signed)

		w = post(r, "/webhooks/pandadoc?signature="+Sign("shared", []byte(body)), body, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"doc-1"}, marker.signed)
	})
}

func TestVerifier(t *testing.T) {
	v := NewVerifier("", "", zap.NewNop())
	assert.False(t, v.VerifySecret(""))
	assert.False(t, v.VerifySecret("anything"))
	assert.True(t, v.VerifySignature([]byte("x"), ""))

	v = NewVerifier(testSecret, "k", zap.NewNop())
	assert.True(t, v.VerifySecret(testSecret))
	assert.False(t, v.VerifySecret(testSecret+"x"))
	assert.True(t, v.VerifySignature([]byte("x"), Sign("k", []byte("x"))))
	assert.False(t, v.VerifySignature([]byte("y"), Sign("k", []byte("x"))))
}

func TestNotifier_RoundTrip(t *testing.T) {
	outcomes := &recordingOutcomes{}
	server := httptest.NewServer(newTestRouter(outcomes, &recordingMarker{}, ""))
	defer server.Close()

	notifier := NewNotifier(server.URL+"/webhooks/ocr/result", testSecret, 5*time.Second, zap.NewNop())
	city := "Lyon"
	due, _ := entity.ParseDate("2025-03-31")

	err := notifier.CompleteOCR(context.Background(), entity.OCROutcome{
		InvoiceID: "inv-1",
		Status:    lifecycle.StatusOCRCompleted,
		Fields: &entity.ExtractedFields{
			InvoiceNumber: "INV-7",
			Client:        "Acme",
			Amount:        99.9,
			DueDate:       due,
			ClientCity:    &city,
		},
	})
	require.NoError(t, err)

	err = notifier.CompleteOCR(context.Background(), entity.OCROutcome{
		InvoiceID: "inv-2",
		Status:    lifecycle.StatusOCRFailed,
		Error:     entity.ErrorMessageUnreadable,
	})
	require.NoError(t, err)

	calls := outcomes.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, lifecycle.StatusOCRCompleted, calls[0].Status)
	assert.Equal(t, 99.9, calls[0].Fields.Amount)
	assert.Equal(t, "2025-03-31", calls[0].Fields.DueDate.String())
	assert.Equal(t, lifecycle.StatusOCRFailed, calls[1].Status)
	assert.Equal(t, entity.ErrorMessageUnreadable, calls[1].Error)
}

func TestNotifier_WrongSecret(t *testing.T) {
	outcomes := &recordingOutcomes{}
	server := httptest.NewServer(newTestRouter(outcomes, &recordingMarker{}, ""))
	defer server.Close()

	notifier := NewNotifier(server.URL+"/webhooks/ocr/result", "wrong", time.Second, zap.NewNop())
	err := notifier.CompleteOCR(context.Background(), entity.OCROutcome{
		InvoiceID: "inv-1",
		Status:    lifecycle.StatusOCRFailed,
		Error:     "x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Empty(t, outcomes.calls())
}
