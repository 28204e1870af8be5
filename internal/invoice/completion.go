package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"invoice-extractor/internal/logger"
	"invoice-extractor/pkg/models"
)

// FieldExtractor turns invoice text into structured fields.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, text string) (*models.InvoiceFields, error)
}

// CompletionConfig configures the OpenAI-compatible field extractor
type CompletionConfig struct {
	APIKey      string  // OPENAI_API_KEY
	BaseURL     string  // optional, for OpenAI-compatible gateways
	Model       string  // gpt-4, gpt-4o-mini, ...
	Temperature float32 // ChatGPT temperature
	MaxRetries  int     // ChatGPT attempts
	MaxTokens   int     // reply budget
}

// DefaultCompletionConfig returns the settings used when none are given.
func DefaultCompletionConfig() CompletionConfig {
	return CompletionConfig{
		Model:      openai.GPT4,
		MaxRetries: 3,
		MaxTokens:  500,
	}
}

// CompletionService implements FieldExtractor with chat completions.
type CompletionService struct {
	client *openai.Client
	config CompletionConfig
	log    zerolog.Logger
}

// NewCompletionService creates a field extractor talking to the configured endpoint.
func NewCompletionService(config CompletionConfig) (*CompletionService, error) {
	const op = "NewCompletionService"

	if config.APIKey == "" {
		return nil, WrapInvoiceProcessingError(op, ErrMissingAPIKey, "")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}

	return NewCompletionServiceWithClient(openai.NewClientWithConfig(clientConfig), config), nil
}

// NewCompletionServiceWithClient creates a field extractor with an explicit client (for testing).
func NewCompletionServiceWithClient(client *openai.Client, config CompletionConfig) *CompletionService {
	defaults := DefaultCompletionConfig()
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaults.MaxTokens
	}

	return &CompletionService{
		client: client,
		config: config,
		log:    logger.WithComponent("completion"),
	}
}

// ExtractFields asks the model for date, description and tax amount.
// Transport errors and undecodable replies are retried up to MaxRetries times.
func (s *CompletionService) ExtractFields(ctx context.Context, text string) (*models.InvoiceFields, error) {
	const op = "ExtractFields"

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, WrapInvoiceProcessingError(op, ErrEmptyText, "")
	}

	prompt := BuildPrompt(text)

	s.log.Debug().
		Int("prompt_length", len(prompt)).
		Str("model", s.config.Model).
		Float32("temperature", s.config.Temperature).
		Msg("Sending completion request")

	var lastErr error
	for attempt := 1; attempt <= s.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, WrapInvoiceProcessingError(op, err, fmt.Sprintf("canceled before attempt %d", attempt))
		}

		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       s.config.Model,
			Temperature: s.config.Temperature,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens: s.config.MaxTokens,
		})
		if err != nil {
			lastErr = err
			if !retryable(err) || ctx.Err() != nil {
				break
			}
			s.log.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_retries", s.config.MaxRetries).
				Msg("Completion request failed, retrying")
			continue
		}

		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no response choices from model")
			continue
		}

		content := resp.Choices[0].Message.Content
		s.log.Debug().Str("response", content).Msg("Received completion response")

		fields, err := ParseFields(content)
		if err != nil {
			lastErr = err
			s.log.Warn().
				Err(err).
				Str("response", content).
				Int("attempt", attempt).
				Msg("Failed to parse completion response, retrying")
			continue
		}

		s.log.Info().
			Str("date", fields.Date).
			Str("tax_amount", fields.TaxAmount).
			Int("attempt", attempt).
			Msg("Extracted invoice fields")
		return fields, nil
	}

	var respErr *AIResponseError
	if errors.As(lastErr, &respErr) {
		return nil, lastErr
	}
	return nil, WrapInvoiceProcessingError(op, fmt.Errorf("%w: %w", ErrCompletionFailed, lastErr),
		fmt.Sprintf("gave up after %d attempt(s)", s.config.MaxRetries))
}

// retryable reports whether a completion error may succeed on another attempt.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func retryableStatus(code int) bool {
	return code == 0 || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// BuildPrompt returns the fixed extraction prompt for text.
func BuildPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Extract the following from this invoice text:\n")
	b.WriteString("- Date\n- Description\n- Tax Amount\n\n")
	b.WriteString("Reply ONLY in this JSON format:\n")
	b.WriteString("{\n  \"date\": \"...\",\n  \"description\": \"...\",\n  \"tax_amount\": \"...\"\n}\n\n")
	b.WriteString("Text:\n")
	b.WriteString(text)
	return b.String()
}

// ParseFields decodes a model reply. Markdown code fences around the JSON
// are tolerated and numeric values are converted to strings.
func ParseFields(content string) (*models.InvoiceFields, error) {
	raw := stripCodeFence(content)

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, &AIResponseError{Raw: content, Err: err}
	}
	if obj == nil {
		return nil, &AIResponseError{Raw: content, Err: errors.New("reply is not a JSON object")}
	}

	return &models.InvoiceFields{
		Date:        getString(obj, "date"),
		Description: getString(obj, "description"),
		TaxAmount:   getString(obj, "tax_amount", "taxAmount", "tax"),
	}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // language tag
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// getString returns the first key present in m as a string.
func getString(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			return strings.TrimSpace(v)
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}
