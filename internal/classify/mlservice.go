package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mirzemehdi/ArchGee-All/internal/domain"
)

// mlProviderName identifies the fallback provider in audit rows and metrics.
const mlProviderName = "ml-service"

// mlRequestTimeout bounds a single classification round trip.
const mlRequestTimeout = 30 * time.Second

// maxMLResponseBytes caps how much of a response body is read.
const maxMLResponseBytes = 1 << 20

// MLServiceProvider classifies stages through the self-hosted classification
// HTTP service. It is the configured fallback behind the Anthropic provider.
type MLServiceProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewMLServiceProvider creates a provider against baseURL.
func NewMLServiceProvider(baseURL string) *MLServiceProvider {
	return &MLServiceProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: mlRequestTimeout},
	}
}

// Name returns the provider identifier.
func (p *MLServiceProvider) Name() string {
	return mlProviderName
}

// mlRequest is the request body for POST /classify.
type mlRequest struct {
	Stage domain.Stage `json:"stage"`
	Snapshot
}

// Classify posts the stage request and returns the raw response body. The
// service answers with the stage JSON object directly.
func (p *MLServiceProvider) Classify(ctx context.Context, stage domain.Stage, in Snapshot) (string, error) {
	body, marshalErr := json.Marshal(mlRequest{Stage: stage, Snapshot: in})
	if marshalErr != nil {
		return "", fmt.Errorf("marshal classify request: %w", marshalErr)
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/classify", bytes.NewReader(body))
	if reqErr != nil {
		return "", fmt.Errorf("build classify request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, doErr := p.httpClient.Do(req)
	if doErr != nil {
		return "", &domain.ProviderError{Provider: mlProviderName, Err: doErr}
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxMLResponseBytes))
	if readErr != nil {
		return "", &domain.ProviderError{Provider: mlProviderName, Err: fmt.Errorf("read response: %w", readErr)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &domain.RateLimitedError{
			Provider:   mlProviderName,
			RetryAfter: retryAfterHeader(resp),
		}
	case resp.StatusCode != http.StatusOK:
		return "", &domain.ProviderError{
			Provider: mlProviderName,
			Err:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	return string(raw), nil
}
