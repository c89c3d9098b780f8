package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/mirzemehdi/ArchGee-All/internal/domain"
	"github.com/mirzemehdi/ArchGee-All/internal/logger"
	"github.com/mirzemehdi/ArchGee-All/internal/metrics"
)

// ErrNoProviders is returned when the client has no registered providers.
var ErrNoProviders = errors.New("no classification providers configured")

// Client is the capability interface the orchestrator uses for stage
// classification. Providers are tried in registration order; the chain falls
// through to the next provider on transport or parse failure. A rate-limit
// response stops the chain so the caller can honor the provider's delay.
type Client struct {
	providers []ratedProvider
	maxInput  int
	metrics   *metrics.Metrics
	log       logger.Logger
}

// ratedProvider pairs a provider with its shared token budget. The limiter is
// shared across all workers hitting that provider.
type ratedProvider struct {
	provider Provider
	limiter  *rate.Limiter
}

// NewClient creates a classification client. maxInputChars caps description
// length before submission; the caller enforces this bound, not the provider.
func NewClient(maxInputChars int, m *metrics.Metrics, log logger.Logger) *Client {
	return &Client{
		maxInput: maxInputChars,
		metrics:  m,
		log:      log,
	}
}

// Register appends a provider to the fallback chain with a shared requests
// per second budget. The first registered provider is the primary.
func (c *Client) Register(p Provider, rps float64) {
	if rps <= 0 {
		rps = 1
	}

	c.providers = append(c.providers, ratedProvider{
		provider: p,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
	})
}

// Classify runs one stage against the provider chain and returns a validated
// typed result.
func (c *Client) Classify(ctx context.Context, stage domain.Stage, in Snapshot) (*domain.StageResult, error) {
	if len(c.providers) == 0 {
		return nil, ErrNoProviders
	}

	in.Description = truncate(in.Description, c.maxInput)

	var lastErr error
	for _, rp := range c.providers {
		name := rp.provider.Name()

		if waitErr := rp.limiter.Wait(ctx); waitErr != nil {
			return nil, fmt.Errorf("rate limit wait: %w", waitErr)
		}

		raw, callErr := rp.provider.Classify(ctx, stage, in)
		if callErr != nil {
			var rateErr *domain.RateLimitedError
			if errors.As(callErr, &rateErr) {
				c.countCall(name, metrics.CallRateLimited)
				// The provider asked us to back off; retrying the stage
				// later beats hammering the fallback chain now.
				return nil, callErr
			}

			c.countCall(name, metrics.CallError)
			c.log.Warn("classification provider failed",
				logger.String("provider", name),
				logger.String("stage", string(stage)),
				logger.Error(callErr),
			)
			lastErr = callErr
			continue
		}

		result, parseErr := parseStageResult(name, stage, raw)
		if parseErr != nil {
			c.countCall(name, metrics.CallError)
			c.log.Warn("classification response rejected",
				logger.String("provider", name),
				logger.String("stage", string(stage)),
				logger.Error(parseErr),
			)
			lastErr = parseErr
			continue
		}

		c.countCall(name, metrics.CallOK)
		return result, nil
	}

	return nil, lastErr
}

// countCall increments the provider call counter when metrics are wired.
func (c *Client) countCall(provider, outcome string) {
	if c.metrics == nil {
		return
	}

	c.metrics.ProviderCalls.WithLabelValues(provider, outcome).Inc()
}

// truncate caps s at limit characters without splitting a rune.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}

	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit])
}

// extractJSON isolates the first JSON object in a completion, tolerating
// code fences and prose around it.
func extractJSON(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}

	return raw[start : end+1], true
}

// parseStageResult validates provider output against the stage contract.
// Provider output is untrusted; anything non-conforming is rejected here
// before it can touch a job record.
func parseStageResult(provider string, stage domain.Stage, raw string) (*domain.StageResult, error) {
	payload, ok := extractJSON(raw)
	if !ok {
		return nil, &domain.MalformedResponseError{Provider: provider, Detail: "no JSON object in response"}
	}

	result := &domain.StageResult{Provider: provider, Raw: raw}

	switch stage {
	case domain.StageRelevance:
		parsed, parseErr := parseRelevance(provider, payload)
		if parseErr != nil {
			return nil, parseErr
		}
		result.Relevance = parsed
	case domain.StageSalary:
		parsed, parseErr := parseSalary(provider, payload)
		if parseErr != nil {
			return nil, parseErr
		}
		result.Salary = parsed
	case domain.StageWorkType:
		result.WorkType = parseWorkType(payload)
	case domain.StageSeniority:
		result.Seniority = parseSeniority(payload)
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}

	return result, nil
}

func parseRelevance(provider, payload string) (*domain.RelevanceResult, error) {
	var parsed domain.RelevanceResult
	if unmarshalErr := json.Unmarshal([]byte(payload), &parsed); unmarshalErr != nil {
		return nil, &domain.MalformedResponseError{Provider: provider, Detail: unmarshalErr.Error()}
	}

	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		return nil, &domain.MalformedResponseError{
			Provider: provider,
			Detail:   fmt.Sprintf("confidence %v outside [0,1]", parsed.Confidence),
		}
	}

	if parsed.Relevant && strings.TrimSpace(parsed.Category) == "" {
		return nil, &domain.MalformedResponseError{Provider: provider, Detail: "relevant without category"}
	}

	parsed.Category = strings.TrimSpace(parsed.Category)
	return &parsed, nil
}

// rawSalary mirrors the provider JSON; amounts arrive as floats.
type rawSalary struct {
	Min      *float64 `json:"salary_min"`
	Max      *float64 `json:"salary_max"`
	Currency *string  `json:"currency"`
	Period   *string  `json:"period"`
}

// salaryPeriods are the period values a provider may emit.
var salaryPeriods = map[string]bool{"hourly": true, "monthly": true, "annual": true}

func parseSalary(provider, payload string) (*domain.SalaryResult, error) {
	var parsed rawSalary
	if unmarshalErr := json.Unmarshal([]byte(payload), &parsed); unmarshalErr != nil {
		return nil, &domain.MalformedResponseError{Provider: provider, Detail: unmarshalErr.Error()}
	}

	result := &domain.SalaryResult{}

	if parsed.Min != nil {
		v := int64(*parsed.Min)
		if v < 0 {
			return nil, &domain.MalformedResponseError{Provider: provider, Detail: "negative salary_min"}
		}
		result.Min = &v
	}

	if parsed.Max != nil {
		v := int64(*parsed.Max)
		if v < 0 {
			return nil, &domain.MalformedResponseError{Provider: provider, Detail: "negative salary_max"}
		}
		result.Max = &v
	}

	if result.Min != nil && result.Max != nil && *result.Min > *result.Max {
		return nil, &domain.MalformedResponseError{Provider: provider, Detail: "salary_min above salary_max"}
	}

	if !result.Empty() {
		if parsed.Period == nil || !salaryPeriods[*parsed.Period] {
			return nil, &domain.MalformedResponseError{Provider: provider, Detail: "salary without a valid period"}
		}
		result.Period = parsed.Period

		if parsed.Currency != nil {
			currency := strings.ToUpper(strings.TrimSpace(*parsed.Currency))
			result.Currency = &currency
		}
	}

	return result, nil
}

func parseWorkType(payload string) *domain.WorkTypeResult {
	var parsed domain.WorkTypeResult
	// Ambiguous or unparseable signals default to onsite per the stage
	// contract, so parse failures are not malformed here.
	_ = json.Unmarshal([]byte(payload), &parsed)

	switch parsed.RemoteType {
	case domain.RemoteTypeRemote, domain.RemoteTypeHybrid, domain.RemoteTypeOnsite:
	default:
		parsed.RemoteType = domain.RemoteTypeOnsite
	}

	return &parsed
}

func parseSeniority(payload string) *domain.SeniorityResult {
	var parsed domain.SeniorityResult
	_ = json.Unmarshal([]byte(payload), &parsed)

	for _, level := range domain.SeniorityLevels {
		if parsed.Level == level {
			return &parsed
		}
	}

	// Ambiguous seniority defaults to mid.
	parsed.Level = "mid"
	return &parsed
}
