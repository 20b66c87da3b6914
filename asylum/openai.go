package asylum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const openaiUserRole = openai.ChatMessageRoleUser

// ErrAIUnavailable covers any AI collaborator failure (network, auth,
// timeout, empty response). Callers fall back to the offline
// proofreader and never surface the underlying error text to the user.
var ErrAIUnavailable = errors.New("ai completion unavailable")

// OpenAIClient is the subset of the OpenAI client used by the bot,
// extracted so tests can substitute a fake.
type OpenAIClient interface {
	CreateChatCompletion(
		ctx context.Context,
		request openai.ChatCompletionRequest,
	) (openai.ChatCompletionResponse, error)
}

// OpenAI wraps the chat-completion API behind the bot's single
// Complete operation, adding a request rate limit and a bounded wait.
type OpenAI struct {
	client         OpenAIClient
	config         *OpenAIConfig
	logger         *slog.Logger
	requestLimiter *rate.Limiter
}

// newOpenAI builds the completion collaborator, or returns nil when no
// API key is configured (the provider chain then skips straight to the
// offline path).
func newOpenAI(config *OpenAIConfig, httpClient *http.Client) *OpenAI {
	if config == nil || config.Token == "" {
		return nil
	}

	clientCfg := openai.DefaultConfig(config.Token)
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}

	rps := config.MaxRequestsPerSecond
	if rps <= 0 {
		rps = DefaultOpenAIMaxRequestsPerSecond
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		config: config,
		logger: slog.New(newLogHandler(config.LogLevel)).With(
			loggerNameKey, "openai",
		),
		requestLimiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Complete sends the instruction as a single-user-message chat
// completion and returns the trimmed response content. Any failure is
// wrapped as ErrAIUnavailable.
func (o *OpenAI) Complete(ctx context.Context, instruction string) (string, error) {
	timeout := o.config.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultOpenAIRequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := o.requestLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAIUnavailable, err)
	}

	started := time.Now()
	resp, err := o.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: o.config.Model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: o.config.SystemPrompt,
				},
				{
					Role:    openaiUserRole,
					Content: instruction,
				},
			},
		},
	)
	elapsed := time.Since(started)
	if err != nil {
		o.logger.WarnContext(
			ctx,
			"completion failed",
			"elapsed", elapsed,
			tint.Err(err),
		)
		return "", fmt.Errorf("%w: %w", ErrAIUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		o.logger.WarnContext(ctx, "completion returned no choices", "elapsed", elapsed)
		return "", fmt.Errorf("%w: empty response", ErrAIUnavailable)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty response", ErrAIUnavailable)
	}

	o.logger.DebugContext(
		ctx,
		"completion finished",
		"elapsed", elapsed,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return content, nil
}
