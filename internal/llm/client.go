package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ddq-agent/backend/pkg/circuitbreaker"
	"github.com/ddq-agent/backend/pkg/logger"
	"github.com/ddq-agent/backend/pkg/retry"
)

// Client wraps the OpenAI chat API behind retry and a circuit breaker.
// It satisfies the answering.Composer interface so the engine can swap
// it in for the default passage concatenation.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(apiKey, model string, temperature float32, maxTokens int, timeout time.Duration) *Client {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	logger.Info("LLM client initialized", zap.String("model", model))

	return &Client{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (c *Client) Name() string { return "openai:" + c.model }

// Compose rewrites the retrieved passages into a direct answer. The
// passages are the only source material the model is allowed to use.
func (c *Client) Compose(ctx context.Context, question string, passages []string) (string, error) {
	systemPrompt := `You are a due-diligence questionnaire assistant. Answer the question using ONLY the provided excerpts.
Do not invent facts. If the excerpts do not fully cover the question, answer the covered part and say what is missing.
Be concise and factual.`

	var sb strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, p)
	}

	userPrompt := fmt.Sprintf("Question: %s\n\nExcerpts:\n%s", question, sb.String())

	resp, err := c.complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("failed to compose answer: %w", err)
	}

	return resp, nil
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: userPrompt,
		},
	}

	var content string

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: c.temperature,
					MaxTokens:   c.maxTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			content = resp.Choices[0].Message.Content

			return nil
		})
	})

	if err != nil {
		return "", err
	}

	return content, nil
}
