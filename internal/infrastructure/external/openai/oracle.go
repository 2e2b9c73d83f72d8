package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
)

// Oracle implements port.Oracle with the OpenAI chat completion API
type Oracle struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOracle creates a new OpenAI oracle. baseURL may be empty.
func NewOracle(apiKey, baseURL, model string, logger *zap.Logger) *Oracle {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Oracle{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

// Complete sends one system+user exchange and returns the answer text.
// In JSON mode the answer is trimmed to its outermost JSON object.
func (o *Oracle) Complete(ctx context.Context, req port.OracleRequest) (string, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: req.System,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: req.Prompt,
			},
		},
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		o.logger.Error("OpenAI API call failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", entity.ErrOracleUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", entity.ErrMalformedResponse)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	o.logger.Debug("OpenAI call completed",
		zap.String("model", o.model),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	if req.JSON {
		if jsonStr := ExtractJSON(content); jsonStr != "" {
			return jsonStr, nil
		}
	}
	return content, nil
}

// ExtractJSON returns the first balanced JSON object in content, which
// tolerates answers wrapped in markdown code fences. It returns "" if none.
func ExtractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}

var _ port.Oracle = (*Oracle)(nil)
