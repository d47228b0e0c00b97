package ledger

import (
	"fmt"
	"time"
)

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Period is a calendar month.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the month containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod reads the YYYY-MM form produced by String.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, Invalidf("period %q must be YYYY-MM", s)
	}
	return PeriodOf(t), nil
}

// String renders the period as YYYY-MM. Bills store it as their competence.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Start is the first day of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the last day of the period.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

// Days is the number of days in the period.
func (p Period) Days() int {
	return p.End().Day()
}

// Add shifts the period by n months.
func (p Period) Add(n int) Period {
	return PeriodOf(p.Start().AddDate(0, n, 0))
}

// MonthsSince counts whole months from other to p.
func (p Period) MonthsSince(other Period) int {
	return (p.Year-other.Year)*12 + int(p.Month) - int(other.Month)
}

// Before reports whether p precedes other.
func (p Period) Before(other Period) bool {
	return p.MonthsSince(other) < 0
}

// DueDate places day in the period, clamped to its last day (31 in February becomes 28 or 29).
func (p Period) DueDate(day int) time.Time {
	if day < 1 {
		day = 1
	}
	if last := p.Days(); day > last {
		day = last
	}
	return time.Date(p.Year, p.Month, day, 0, 0, 0, 0, time.UTC)
}
