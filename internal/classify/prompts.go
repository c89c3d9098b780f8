package classify

import (
	"fmt"
	"strings"

	"github.com/mirzemehdi/ArchGee-All/internal/domain"
)

// systemPrompt frames every stage request. Keeping one tight system prompt
// per stage bounds token cost and keeps responses machine-parseable.
const systemPrompt = "You are a job posting classifier for an architecture and built-environment job board. " +
	"Respond with a single JSON object and nothing else."

// Stage instruction blocks. Each names the exact JSON keys the stage contract
// validates.
const (
	relevancePrompt = `Decide whether this posting is a genuine architecture / built-environment job
(architect, interior design, landscape, urban planning, BIM, surveying and related roles).
Software, cloud, data and solutions "architect" roles are NOT relevant.
Respond with: {"relevant": bool, "category": string, "confidence": number between 0 and 1}.`

	salaryPrompt = `Extract the salary range from this posting, if one is stated.
Respond with: {"salary_min": number or null, "salary_max": number or null,
"currency": ISO 4217 code or null, "period": "hourly"|"monthly"|"annual" or null}.
Use null for every field when no salary is mentioned. Never guess.`

	workTypePrompt = `Classify the working arrangement of this posting.
Respond with: {"remote_type": "remote"|"hybrid"|"onsite"}.`

	seniorityPrompt = `Classify the seniority of this posting.
Respond with: {"seniority_level": "intern"|"junior"|"mid"|"senior"|"lead"|"principal"|"director"}.`
)

// stageInstruction returns the instruction block for a stage.
func stageInstruction(stage domain.Stage) string {
	switch stage {
	case domain.StageRelevance:
		return relevancePrompt
	case domain.StageSalary:
		return salaryPrompt
	case domain.StageWorkType:
		return workTypePrompt
	case domain.StageSeniority:
		return seniorityPrompt
	default:
		return ""
	}
}

// buildPrompt renders the user message for a stage request.
func buildPrompt(stage domain.Stage, in Snapshot) string {
	var b strings.Builder

	b.WriteString(stageInstruction(stage))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Title: %s\n", in.Title)
	fmt.Fprintf(&b, "Company: %s\n", in.CompanyName)

	if in.LocationText != "" {
		fmt.Fprintf(&b, "Location: %s\n", in.LocationText)
	}

	if stage == domain.StageSalary && in.SalaryText != "" {
		fmt.Fprintf(&b, "Stated salary: %s\n", in.SalaryText)
	}

	fmt.Fprintf(&b, "\nDescription:\n%s\n", in.Description)

	return b.String()
}
