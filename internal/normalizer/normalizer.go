// Package normalizer converts raw source records to the canonical job record
// shape. Normalization is a pure transformation; nothing is persisted here.
package normalizer

import (
	"strings"
	"unicode/utf8"

	"github.com/mirzemehdi/ArchGee-All/internal/domain"
)

// Field length caps applied to free text coming from arbitrary sources.
const (
	maxTitleLen       = 255
	maxCompanyLen     = 255
	maxLocationLen    = 255
	maxURLLen         = 2048
	maxDescriptionLen = 60000
	maxSlugLen        = 160
)

// locationSeparator splits "City, Country" style location text.
const locationSeparator = ","

// Normalize validates raw and produces the canonical record for source.
// Returns a *domain.ValidationError when required fields are missing.
func Normalize(source string, raw *domain.RawRecord) (*domain.JobRecord, error) {
	title := capText(strings.TrimSpace(raw.Title), maxTitleLen)
	description := capText(strings.TrimSpace(raw.Description), maxDescriptionLen)
	company := capText(strings.TrimSpace(raw.CompanyName), maxCompanyLen)
	location := capText(strings.TrimSpace(raw.LocationText), maxLocationLen)

	if title == "" {
		return nil, &domain.ValidationError{Field: "title", Message: "must not be empty"}
	}

	if description == "" {
		return nil, &domain.ValidationError{Field: "description", Message: "must not be empty"}
	}

	if company == "" {
		return nil, &domain.ValidationError{Field: "company", Message: "must not be empty"}
	}

	applyURL := capText(strings.TrimSpace(raw.ApplyURL), maxURLLen)
	applyEmail := strings.TrimSpace(raw.ApplyEmail)

	// Public submissions have no upstream listing to link back to, so an
	// application channel is mandatory.
	if source == domain.SourceManual && applyURL == "" && applyEmail == "" {
		return nil, &domain.ValidationError{Field: "apply_url", Message: "apply URL or apply email required for public submissions"}
	}

	city, country := splitLocation(location)

	job := &domain.JobRecord{
		Source:         source,
		OriginalURL:    capText(strings.TrimSpace(raw.URL), maxURLLen),
		ApplyURL:       applyURL,
		ApplyEmail:     applyEmail,
		Title:          title,
		Description:    description,
		CompanyName:    company,
		CompanyWebsite: capText(strings.TrimSpace(raw.CompanyWebsite), maxURLLen),
		LocationText:   location,
		City:           city,
		Country:        country,
		EmploymentType: normalizeEmploymentType(raw.EmploymentType),
		SalaryText:     capText(strings.TrimSpace(raw.SalaryText), maxTitleLen),
		Slug:           Slug(title, company, city),
		Fingerprint:    domain.Fingerprint(title, company, location),
		PostedAt:       raw.PostedAt,
	}

	if id := strings.TrimSpace(raw.SourceRecordID); id != "" {
		job.SourceRecordID = &id
	}

	return job, nil
}

// Slug derives a lower-cased URL slug candidate from title, company and city.
func Slug(parts ...string) string {
	var b strings.Builder
	lastDash := true

	for _, part := range parts {
		for _, r := range strings.ToLower(part) {
			switch {
			case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
				b.WriteRune(r)
				lastDash = false
			case !lastDash:
				b.WriteByte('-')
				lastDash = true
			}
		}

		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}

	slug := strings.Trim(b.String(), "-")
	return capText(slug, maxSlugLen)
}

// normalizeEmploymentType coerces unknown employment types to the default,
// matching what sources historically sent.
func normalizeEmploymentType(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}

	if !domain.EmploymentTypes[v] {
		return domain.DefaultEmploymentType
	}

	return v
}

// splitLocation extracts optional city and country from "City, Country"
// location text. Single-part locations map to city only.
func splitLocation(location string) (city, country string) {
	if location == "" {
		return "", ""
	}

	parts := strings.Split(location, locationSeparator)
	city = strings.TrimSpace(parts[0])

	if len(parts) > 1 {
		country = strings.TrimSpace(parts[len(parts)-1])
	}

	return city, country
}

func capText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	// Avoid splitting a multi-byte rune at the cap boundary.
	capped := s[:limit]
	for len(capped) > 0 && !utf8.ValidString(capped) {
		capped = capped[:len(capped)-1]
	}

	return capped
}
