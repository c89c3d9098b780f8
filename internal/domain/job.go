// Package domain contains the core domain models for the ingestion and
// enrichment engine.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle status of a job record.
type Status string

const (
	// StatusPending indicates a job awaiting enrichment or moderation.
	StatusPending Status = "pending"
	// StatusRejected indicates a job rejected by classification or moderation.
	StatusRejected Status = "rejected"
	// StatusNeedsReview indicates automated enrichment could not complete.
	StatusNeedsReview Status = "needs_review"
	// StatusApproved indicates a job published by a moderator.
	StatusApproved Status = "approved"
	// StatusExpired indicates a published job past its expiry date.
	StatusExpired Status = "expired"
)

// validStatuses maps every recognised Status value to true for O(1) lookup.
var validStatuses = map[Status]bool{
	StatusPending:     true,
	StatusRejected:    true,
	StatusNeedsReview: true,
	StatusApproved:    true,
	StatusExpired:     true,
}

// IsValid reports whether s is a recognised job status.
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal reports whether the enrichment chain must not touch a job in
// status s. Only pending jobs are enriched.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// Stage is one classification step in the enrichment chain.
type Stage string

const (
	// StageRelevance classifies relevance and category.
	StageRelevance Stage = "relevance"
	// StageSalary extracts and normalizes salary information.
	StageSalary Stage = "salary"
	// StageWorkType classifies remote/hybrid/onsite.
	StageWorkType Stage = "worktype"
	// StageSeniority classifies the seniority level.
	StageSeniority Stage = "seniority"
)

// stageCount is the number of enrichment stages (used for pre-allocation).
const stageCount = 4

// AllStages returns the enrichment stages in chain order.
func AllStages() []Stage {
	stages := make([]Stage, 0, stageCount)
	stages = append(stages, StageRelevance, StageSalary, StageWorkType, StageSeniority)
	return stages
}

// validStages maps every recognised Stage value to true.
var validStages = map[Stage]bool{
	StageRelevance: true,
	StageSalary:    true,
	StageWorkType:  true,
	StageSeniority: true,
}

// IsValid reports whether s is a recognised enrichment stage.
func (s Stage) IsValid() bool {
	return validStages[s]
}

// Next returns the stage following s in the chain, or empty when s is the
// final stage.
func (s Stage) Next() Stage {
	switch s {
	case StageRelevance:
		return StageSalary
	case StageSalary:
		return StageWorkType
	case StageWorkType:
		return StageSeniority
	default:
		return ""
	}
}

// Prev returns the stage preceding s in the chain, or empty when s is the
// first stage.
func (s Stage) Prev() Stage {
	switch s {
	case StageSalary:
		return StageRelevance
	case StageWorkType:
		return StageSalary
	case StageSeniority:
		return StageWorkType
	default:
		return ""
	}
}

// FirstStage is the entry point of the enrichment chain.
const FirstStage = StageRelevance

// SourceManual identifies direct public submissions. Every other source tag
// names a registered external adapter (adzuna, careerjet, jooble, ...).
const SourceManual = "manual"

// Remote type values emitted by the work type stage.
const (
	RemoteTypeRemote = "remote"
	RemoteTypeHybrid = "hybrid"
	RemoteTypeOnsite = "onsite"
)

// SeniorityLevels is the fixed ordered ladder emitted by the seniority stage.
var SeniorityLevels = []string{"intern", "junior", "mid", "senior", "lead", "principal", "director"}

// Salary period values after normalization.
const (
	SalaryPeriodAnnual = "annual"
)

// EmploymentTypes is the set of accepted employment type values. Unknown
// values coerce to full_time during normalization.
var EmploymentTypes = map[string]bool{
	"full_time":  true,
	"part_time":  true,
	"contract":   true,
	"freelance":  true,
	"internship": true,
}

// DefaultEmploymentType is used when a source sends an unrecognised value.
const DefaultEmploymentType = "full_time"

// JobRecord is the central entity tracked through ingestion, enrichment and
// moderation. Enrichment fields stay nil until their stage has run.
type JobRecord struct {
	ID             uuid.UUID `json:"id"`
	Source         string    `json:"source"`
	SourceRecordID *string   `json:"source_record_id,omitempty"`
	OriginalURL    string    `json:"original_url,omitempty"`
	ApplyURL       string    `json:"apply_url,omitempty"`
	ApplyEmail     string    `json:"apply_email,omitempty"`

	Title          string `json:"title"`
	Description    string `json:"description"`
	CompanyName    string `json:"company_name"`
	CompanyWebsite string `json:"company_website,omitempty"`
	LocationText   string `json:"location_text"`
	Country        string `json:"country,omitempty"`
	City           string `json:"city,omitempty"`
	EmploymentType string `json:"employment_type,omitempty"`
	SalaryText     string `json:"salary_text,omitempty"`
	Slug           string `json:"slug"`
	Fingerprint    string `json:"fingerprint"`

	Category           *string  `json:"category,omitempty"`
	RelevanceScore     *float64 `json:"relevance_score,omitempty"`
	CategoryConfidence *float64 `json:"category_confidence,omitempty"`
	SalaryMin          *int64   `json:"salary_min,omitempty"`
	SalaryMax          *int64   `json:"salary_max,omitempty"`
	SalaryCurrency     *string  `json:"salary_currency,omitempty"`
	SalaryPeriod       *string  `json:"salary_period,omitempty"`
	RemoteType         *string  `json:"remote_type,omitempty"`
	SeniorityLevel     *string  `json:"seniority_level,omitempty"`

	Status Status `json:"status"`
	// EnrichStage is the last stage that completed for this job; empty when
	// no stage has run. It is the compare-and-set anchor for stage writes.
	EnrichStage Stage `json:"enrich_stage,omitempty"`
	// ReviewFlagged marks a relevant job whose category confidence fell below
	// the review threshold; the chain still continues.
	ReviewFlagged bool `json:"review_flagged"`

	CreatedAt  time.Time  `json:"created_at"`
	PostedAt   *time.Time `json:"posted_at,omitempty"`
	EnrichedAt *time.Time `json:"enriched_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	DeletedAt  *time.Time `json:"-"`
}

// FullyEnriched reports whether every stage has completed for the job.
func (j *JobRecord) FullyEnriched() bool {
	return j.EnrichStage == StageSeniority
}

// RawRecord is the shape every source adapter produces. Optional fields vary
// per source; the normalizer depends only on this common shape.
type RawRecord struct {
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	CompanyName    string     `json:"company"`
	CompanyWebsite string     `json:"company_website,omitempty"`
	LocationText   string     `json:"location"`
	URL            string     `json:"url,omitempty"`
	SourceRecordID string     `json:"source_job_id,omitempty"`
	ApplyURL       string     `json:"apply_url,omitempty"`
	ApplyEmail     string     `json:"apply_email,omitempty"`
	SalaryText     string     `json:"salary_text,omitempty"`
	EmploymentType string     `json:"employment_type,omitempty"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`
}

// EnrichmentAttempt records one provider call for auditability. Rows are
// written only by the enrichment orchestrator.
type EnrichmentAttempt struct {
	ID          int64     `json:"id"`
	JobID       uuid.UUID `json:"job_id"`
	Stage       Stage     `json:"stage"`
	Attempt     int       `json:"attempt"`
	Provider    string    `json:"provider"`
	RawResponse string    `json:"raw_response,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// fingerprintSeparator delimits the normalized parts hashed by Fingerprint.
const fingerprintSeparator = "|"

// Fingerprint returns a stable hash over normalized title, company and
// location, used as the dedup fallback signal for sources without stable
// record identifiers.
func Fingerprint(title, company, location string) string {
	key := strings.Join([]string{
		strings.ToLower(strings.TrimSpace(title)),
		strings.ToLower(strings.TrimSpace(company)),
		strings.ToLower(strings.TrimSpace(location)),
	}, fingerprintSeparator)

	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
