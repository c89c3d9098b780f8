package domain

// RelevanceResult is the output contract of the relevance stage.
type RelevanceResult struct {
	Relevant   bool    `json:"relevant"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// SalaryResult is the output contract of the salary stage. All fields stay
// nil when the posting mentions no salary; that is not an error.
type SalaryResult struct {
	Min      *int64  `json:"salary_min"`
	Max      *int64  `json:"salary_max"`
	Currency *string `json:"currency"`
	Period   *string `json:"period"`
}

// Empty reports whether the posting carried no salary signal.
func (r *SalaryResult) Empty() bool {
	return r.Min == nil && r.Max == nil
}

// WorkTypeResult is the output contract of the work type stage.
type WorkTypeResult struct {
	RemoteType string `json:"remote_type"`
}

// SeniorityResult is the output contract of the seniority stage.
type SeniorityResult struct {
	Level string `json:"seniority_level"`
}

// StageResult carries exactly one stage's typed output plus provenance for
// the audit trail. Which pointer is set depends on the stage classified.
type StageResult struct {
	Relevance *RelevanceResult
	Salary    *SalaryResult
	WorkType  *WorkTypeResult
	Seniority *SeniorityResult

	// Provider is the name of the provider that produced the result.
	Provider string
	// Raw is the unparsed provider response, persisted for auditability.
	Raw string
}
