package enrich

import "github.com/mirzemehdi/ArchGee-All/internal/domain"

const (
	// hoursPerYear assumes a standard 40-hour week over 52 weeks.
	hoursPerYear = 2080
	// monthsPerYear converts monthly figures to annual.
	monthsPerYear = 12

	periodHourly  = "hourly"
	periodMonthly = "monthly"
	periodAnnual  = "annual"
)

// annualize normalizes a salary stage result to annual figures. Hourly and
// monthly amounts are scaled; annual amounts and empty results pass through
// unchanged. The input is never mutated.
func annualize(res *domain.SalaryResult) *domain.SalaryResult {
	if res == nil || res.Empty() || res.Period == nil {
		return res
	}

	var factor int64
	switch *res.Period {
	case periodHourly:
		factor = hoursPerYear
	case periodMonthly:
		factor = monthsPerYear
	default:
		return res
	}

	out := &domain.SalaryResult{
		Min:      scale(res.Min, factor),
		Max:      scale(res.Max, factor),
		Currency: res.Currency,
	}
	annual := periodAnnual
	out.Period = &annual

	return out
}

func scale(v *int64, factor int64) *int64 {
	if v == nil {
		return nil
	}

	scaled := *v * factor

	return &scaled
}
