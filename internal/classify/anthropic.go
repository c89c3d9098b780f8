package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mirzemehdi/ArchGee-All/internal/domain"
)

// anthropicProviderName identifies the provider in audit rows and metrics.
const anthropicProviderName = "anthropic"

// maxCompletionTokens bounds the response size; stage outputs are tiny JSON
// objects.
const maxCompletionTokens = 512

// classifyTemperature keeps provider output deterministic-leaning.
const classifyTemperature = 0.1

// AnthropicProvider classifies stages through the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicProvider creates the primary classification provider.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() string {
	return anthropicProviderName
}

// Classify sends one stage request and returns the raw response text.
func (p *AnthropicProvider) Classify(ctx context.Context, stage domain.Stage, in Snapshot) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       p.model,
		MaxTokens:   maxCompletionTokens,
		Temperature: anthropic.Float(classifyTemperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(stage, in))),
		},
	})
	if err != nil {
		return "", p.wrapError(err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		b.WriteString(block.Text)
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", &domain.MalformedResponseError{Provider: anthropicProviderName, Detail: "empty completion"}
	}

	return text, nil
}

// wrapError maps SDK errors onto the engine's error taxonomy.
func (p *AnthropicProvider) wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return &domain.RateLimitedError{
				Provider:   anthropicProviderName,
				RetryAfter: retryAfterHeader(apiErr.Response),
			}
		}
	}

	return &domain.ProviderError{Provider: anthropicProviderName, Err: fmt.Errorf("messages: %w", err)}
}

// retryAfterHeader parses a Retry-After header carrying seconds.
func retryAfterHeader(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}

	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}

	seconds, convErr := strconv.Atoi(raw)
	if convErr != nil || seconds < 0 {
		return 0
	}

	return time.Duration(seconds) * time.Second
}
