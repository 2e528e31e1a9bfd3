package analytics

import "time"

// =============================================================================
// PERIOD - The window an analytics report covers
// =============================================================================

// Period selects the date window of a report. Every window ends now.
type Period string

const (
	PeriodAll         Period = "all"
	PeriodMonth       Period = "month"
	PeriodThreeMonths Period = "3m"
	PeriodSixMonths   Period = "6m"
	PeriodYear        Period = "year"
)

// DefaultPeriod is used for an empty or unknown period.
const DefaultPeriod = PeriodAll

// Periods lists the selectable periods in display order.
var Periods = []Period{PeriodAll, PeriodMonth, PeriodThreeMonths, PeriodSixMonths, PeriodYear}

var labels = map[Period]string{
	PeriodAll:         "All time",
	PeriodMonth:       "This month",
	PeriodThreeMonths: "Last 3 months",
	PeriodSixMonths:   "Last 6 months",
	PeriodYear:        "This year",
}

// ParsePeriod returns the period named s, falling back to DefaultPeriod.
func ParsePeriod(s string) Period {
	if _, ok := labels[Period(s)]; ok {
		return Period(s)
	}
	return DefaultPeriod
}

// Label returns the display name of p.
func (p Period) Label() string {
	if l, ok := labels[p]; ok {
		return l
	}
	return labels[DefaultPeriod]
}

// Window is a closed date range [Start, End]. A nil Start is unbounded.
type Window struct {
	Start *time.Time
	End   time.Time
}

// Range returns the window of p ending at now.
//
//	month: start of the current month
//	3m:    start of the month two months back
//	6m:    start of the month five months back
//	year:  January 1st of the current year
//	all:   unbounded
func (p Period) Range(now time.Time) Window {
	w := Window{End: now}
	var start time.Time
	switch p {
	case PeriodMonth:
		start = startOfMonth(now)
	case PeriodThreeMonths:
		start = startOfMonth(now).AddDate(0, -2, 0)
	case PeriodSixMonths:
		start = startOfMonth(now).AddDate(0, -5, 0)
	case PeriodYear:
		start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	default:
		return w
	}
	w.Start = &start
	return w
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// MonthLabel formats a month bucket key, e.g. "Jan 06".
func MonthLabel(t time.Time) string {
	return t.Format("Jan 06")
}
