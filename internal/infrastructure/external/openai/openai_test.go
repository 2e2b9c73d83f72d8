package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":{\"b\":2}}\n```", `{"a":{"b":2}}`},
		{"brace in string", `ok {"a":"}"} trailing`, `{"a":"}"}`},
		{"none", "no json here", ""},
		{"unbalanced", `{"a":1`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.content))
		})
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		answer  string
		want    float64
		wantErr bool
	}{
		{"0.35", 0.35, false},
		{" 0.8\n", 0.8, false},
		{"0.2.", 0.2, false},
		{".5", 0.5, false},
		{"1.7", 1, false},
		{"-0.1", 0, false},
		{"risky", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseScore(tt.answer)
		if tt.wantErr {
			assert.ErrorIs(t, err, entity.ErrMalformedResponse, tt.answer)
			continue
		}
		require.NoError(t, err, tt.answer)
		assert.InDelta(t, tt.want, got, 1e-9, tt.answer)
	}
}

type stubOracle struct {
	answer string
	err    error
	got    port.OracleRequest
}

func (s *stubOracle) Complete(ctx context.Context, req port.OracleRequest) (string, error) {
	s.got = req
	return s.answer, s.err
}

func TestScorer_Score(t *testing.T) {
	oracle := &stubOracle{answer: "0.25"}
	scorer := NewScorer(oracle, DefaultPrompts().Scoring, zap.NewNop())

	due, _ := entity.ParseDate("2025-01-01")
	score, err := scorer.Score(context.Background(), &entity.Invoice{
		ID:            "inv-1",
		InvoiceNumber: "INV-1",
		Client:        "Acme",
		Amount:        500,
		DueDate:       &due,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.25, score)
	assert.Contains(t, oracle.got.Prompt, "Invoice Number: INV-1")
	assert.Contains(t, oracle.got.Prompt, "Due Date: 2025-01-01")
	assert.False(t, oracle.got.JSON)
}

func TestOracle_Complete(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "` + "```json\\n{\\\"is_invoice\\\": true}\\n```" + `"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
		}`))
	}))
	defer srv.Close()

	oracle := NewOracle("test-key", srv.URL+"/v1", "gpt-4o-mini", zap.NewNop())
	answer, err := oracle.Complete(context.Background(), port.OracleRequest{
		System: "sys",
		Prompt: "doc",
		JSON:   true,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"is_invoice": true}`, answer)

	require.NotNil(t, captured)
	assert.Equal(t, "gpt-4o-mini", captured["model"])
	format, ok := captured["response_format"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
}

func TestOracle_CompleteUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	oracle := NewOracle("test-key", srv.URL+"/v1", "gpt-4o-mini", zap.NewNop())
	_, err := oracle.Complete(context.Background(), port.OracleRequest{Prompt: "doc"})
	assert.ErrorIs(t, err, entity.ErrOracleUnavailable)
}

func TestLoadPromptsKeepsDefaults(t *testing.T) {
	path := t.TempDir() + "/prompts.yaml"
	require.NoError(t, os.WriteFile(path, []byte("scoring:\n  system: custom\n"), 0644))

	prompts, err := LoadPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", prompts.Scoring.System)
	assert.NotEmpty(t, prompts.Classification.UserTemplate)
	assert.NotEmpty(t, prompts.Extraction.System)
}
