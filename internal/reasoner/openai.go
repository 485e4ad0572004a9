package reasoner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/faultlens/faultlens-agent/internal/config"
	"github.com/faultlens/faultlens-agent/internal/metrics"
)

// OpenAIClient implements Client against any OpenAI-compatible completion API.
type OpenAIClient struct {
	client      *openai.Client
	logger      *slog.Logger
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

// NewOpenAIClient constructs a reasoning client from configuration. A custom
// BaseURL points the client at self-hosted or mock endpoints.
func NewOpenAIClient(cfg config.ReasonerConfig, logger *slog.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("reasoner requires an API key or a custom base URL")
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientCfg),
		logger:      logger,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
	}, nil
}

// Complete sends a system+user prompt pair and returns the first choice text.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if c.maxTokens > 0 {
		req.MaxTokens = c.maxTokens
	}

	resp, err := c.client.CreateChatCompletion(callCtx, req)
	if err != nil {
		metrics.ObserveReasonerCall(metrics.OutcomeError)
		c.logger.Error("reasoner call failed", slog.String("model", c.model), slog.Any("error", err))
		return "", fmt.Errorf("%w: %v", ErrService, err)
	}
	if len(resp.Choices) == 0 {
		metrics.ObserveReasonerCall(metrics.OutcomeError)
		return "", fmt.Errorf("%w: empty completion", ErrService)
	}

	metrics.ObserveReasonerCall(metrics.OutcomeSuccess)
	c.logger.Debug("reasoner completion",
		slog.String("model", c.model),
		slog.String("finish_reason", string(resp.Choices[0].FinishReason)))
	return resp.Choices[0].Message.Content, nil
}
