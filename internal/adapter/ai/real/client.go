// Package real implements the AIClient port against the four supported
// provider APIs: OpenAI, DeepSeek and Perplexity through their
// OpenAI-compatible chat completions endpoints, and Anthropic through its
// native messages API.
package real

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"github.com/johnmichaelkuczynski/texteval/internal/adapter/ai/tokencount"
	"github.com/johnmichaelkuczynski/texteval/internal/adapter/observability"
	"github.com/johnmichaelkuczynski/texteval/internal/config"
	"github.com/johnmichaelkuczynski/texteval/internal/domain"
)

// Client implements domain.AIClient and domain.StreamingAIClient.
// Retry policy lives here, not in the orchestrator: transient provider
// failures are retried with exponential backoff, 4xx client errors are not.
type Client struct {
	cfg       config.Config
	compat    map[domain.Provider]*openai.Client
	models    map[domain.Provider]string
	anthropic *anthropicClient
}

// New constructs a client for all configured providers.
func New(cfg config.Config) *Client {
	mk := func(key, baseURL string) *openai.Client {
		c := openai.DefaultConfig(key)
		if baseURL != "" {
			c.BaseURL = baseURL
		}
		c.HTTPClient = &http.Client{Timeout: cfg.ChatTimeout}
		return openai.NewClientWithConfig(c)
	}
	return &Client{
		cfg: cfg,
		compat: map[domain.Provider]*openai.Client{
			domain.ProviderOpenAI:     mk(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL),
			domain.ProviderDeepSeek:   mk(cfg.DeepSeekAPIKey, cfg.DeepSeekBaseURL),
			domain.ProviderPerplexity: mk(cfg.PerplexityAPIKey, cfg.PerplexityBaseURL),
		},
		models: map[domain.Provider]string{
			domain.ProviderOpenAI:     cfg.OpenAIModel,
			domain.ProviderDeepSeek:   cfg.DeepSeekModel,
			domain.ProviderPerplexity: cfg.PerplexityModel,
			domain.ProviderAnthropic:  cfg.AnthropicModel,
		},
		anthropic: newAnthropicClient(cfg),
	}
}

func (c *Client) apiKeyFor(p domain.Provider) string {
	switch p {
	case domain.ProviderOpenAI:
		return c.cfg.OpenAIAPIKey
	case domain.ProviderAnthropic:
		return c.cfg.AnthropicAPIKey
	case domain.ProviderDeepSeek:
		return c.cfg.DeepSeekAPIKey
	case domain.ProviderPerplexity:
		return c.cfg.PerplexityAPIKey
	}
	return ""
}

func (c *Client) newBackoff(ctx context.Context) backoff.BackOffContext {
	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, maxInterval, multiplier := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	return backoff.WithContext(expo, ctx)
}

// CallLLM sends one prompt to the given provider and returns the raw reply.
func (c *Client) CallLLM(ctx context.Context, provider domain.Provider, prompt, systemPrompt string) (string, error) {
	return c.call(ctx, provider, prompt, systemPrompt, nil)
}

// CallLLMStreaming is like CallLLM but forwards incremental output to
// onToken where the provider supports streaming. Anthropic calls fall back
// to a single blocking call whose full text is delivered as one token.
func (c *Client) CallLLMStreaming(ctx context.Context, provider domain.Provider, prompt, systemPrompt string, onToken func(delta string)) (string, error) {
	return c.call(ctx, provider, prompt, systemPrompt, onToken)
}

func (c *Client) call(ctx context.Context, provider domain.Provider, prompt, systemPrompt string, onToken func(string)) (string, error) {
	if !provider.Valid() {
		return "", fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidArgument, provider)
	}
	if c.apiKeyFor(provider) == "" {
		return "", fmt.Errorf("%w: no API key configured for provider %q", domain.ErrInvalidArgument, provider)
	}

	model := c.models[provider]
	observability.AIPromptTokens.WithLabelValues(string(provider)).Add(float64(tokencount.Count(model, systemPrompt+prompt)))

	start := time.Now()
	var out string
	op := func() error {
		var err error
		if provider == domain.ProviderAnthropic {
			out, err = c.anthropic.complete(ctx, prompt, systemPrompt)
			if onToken != nil && err == nil {
				onToken(out)
			}
		} else if onToken != nil {
			out, err = c.streamCompat(ctx, provider, prompt, systemPrompt, onToken)
		} else {
			out, err = c.completeCompat(ctx, provider, prompt, systemPrompt)
		}
		if err != nil {
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			slog.Warn("provider call failed, will retry",
				slog.String("provider", string(provider)), slog.Any("error", err))
			return err
		}
		return nil
	}
	err := backoff.Retry(op, c.newBackoff(ctx))
	observability.AIRequestDuration.WithLabelValues(string(provider)).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.AIRequestsTotal.WithLabelValues(string(provider), "error").Inc()
		return "", fmt.Errorf("%w: %s: %v", domain.ErrProviderCall, provider, err)
	}
	observability.AIRequestsTotal.WithLabelValues(string(provider), "ok").Inc()
	observability.AICompletionTokens.WithLabelValues(string(provider)).Add(float64(tokencount.Count(model, out)))
	return out, nil
}

func (c *Client) completeCompat(ctx context.Context, provider domain.Provider, prompt, systemPrompt string) (string, error) {
	resp, err := c.compat[provider].CreateChatCompletion(ctx, c.compatRequest(provider, prompt, systemPrompt))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) streamCompat(ctx context.Context, provider domain.Provider, prompt, systemPrompt string, onToken func(string)) (string, error) {
	req := c.compatRequest(provider, prompt, systemPrompt)
	req.Stream = true
	stream, err := c.compat[provider].CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	var full []byte
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("stream recv: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full = append(full, delta...)
		onToken(delta)
	}
	return string(full), nil
}

func (c *Client) compatRequest(provider domain.Provider, prompt, systemPrompt string) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
	return openai.ChatCompletionRequest{
		Model:     c.models[provider],
		Messages:  msgs,
		MaxTokens: c.cfg.MaxTokens,
	}
}

// isPermanent reports whether err is a client-side failure that retrying
// cannot fix. 429 stays retryable.
func isPermanent(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 && apiErr.HTTPStatusCode != http.StatusTooManyRequests
	}
	var httpErr *httpStatusError
	if errors.As(err, &httpErr) {
		return httpErr.status >= 400 && httpErr.status < 500 && httpErr.status != http.StatusTooManyRequests
	}
	return false
}
