package recognition

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/stemsi/exstem-attempt/internal/observability"
)

const (
	ocrSystemPrompt = "You are an OCR system. Extract all text from the image exactly as written. " +
		"Return only the extracted text, no additional commentary."
	ocrUserPrompt = "Extract all handwritten text from this image."
)

// OpenAIConfig defines configuration options for the OpenAI recognizer.
type OpenAIConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
	Logger    zerolog.Logger
}

// OpenAIRecognizer implements Recognizer with a vision-capable chat model.
type OpenAIRecognizer struct {
	client *openai.Client
	cfg    OpenAIConfig
	logger zerolog.Logger
}

// NewOpenAIRecognizer builds a recognizer using the provided configuration.
func NewOpenAIRecognizer(cfg OpenAIConfig) (*OpenAIRecognizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIRecognizer{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "openai_recognizer").Logger(),
	}, nil
}

// Recognize sends the image as a data URL and returns the model's transcription.
func (r *OpenAIRecognizer) Recognize(parent context.Context, encodedJPEG string) (string, error) {
	ctx, cancel := context.WithTimeout(parent, r.cfg.Timeout)
	defer cancel()

	request := openai.ChatCompletionRequest{
		Model:     r.cfg.Model,
		MaxTokens: r.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: ocrSystemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: ocrUserPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    "data:image/jpeg;base64," + encodedJPEG,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	}

	start := time.Now()
	resp, err := r.client.CreateChatCompletion(ctx, request)
	observability.RecognitionDuration().WithLabelValues(r.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.RecognitionFailures().WithLabelValues(r.cfg.Model).Inc()
		return "", fmt.Errorf("openai recognize: %w", err)
	}

	if len(resp.Choices) == 0 {
		observability.RecognitionFailures().WithLabelValues(r.cfg.Model).Inc()
		return "", fmt.Errorf("no choices returned from openai")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	r.logger.Debug().
		Int("chars", len(text)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("Recognition completed")

	return text, nil
}
