// Package classify wraps the external text-classification providers behind a
// single client with provider fallback, input truncation and output shape
// validation.
package classify

import (
	"context"

	"github.com/mirzemehdi/ArchGee-All/internal/domain"
)

// Snapshot is the job content submitted to a provider for one stage. The
// description is already truncated by the client before a provider sees it.
type Snapshot struct {
	Title        string `json:"title"`
	CompanyName  string `json:"company"`
	LocationText string `json:"location"`
	Description  string `json:"description"`
	SalaryText   string `json:"salary_text,omitempty"`
}

// Provider sends one stage's classification request to an external service
// and returns the raw response text. Parsing and validation belong to the
// client, which treats provider output as untrusted.
type Provider interface {
	Name() string
	Classify(ctx context.Context, stage domain.Stage, in Snapshot) (string, error)
}
