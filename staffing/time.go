package staffing

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DAY - Day-granular calendar point (time of day is always normalized away)
// =============================================================================

// DateLayout is the wire and storage format for days.
const DateLayout = "2006-01-02"

// Day is a calendar day in UTC. Orders, adjustments and settlements never
// carry a time of day.
type Day struct {
	Time time.Time
}

// NewDay constructs a day at midnight UTC.
func NewDay(year int, month time.Month, day int) Day {
	return Day{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf truncates t to its calendar day.
func DayOf(t time.Time) Day {
	return NewDay(t.Year(), t.Month(), t.Day())
}

// ParseDay parses a YYYY-MM-DD string. Full RFC3339 timestamps are accepted
// and truncated to their day.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return DayOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DayOf(t), nil
	}
	return Day{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD)", s)
}

// Comparison
func (d Day) Before(other Day) bool        { return d.Time.Before(other.Time) }
func (d Day) After(other Day) bool         { return d.Time.After(other.Time) }
func (d Day) Equal(other Day) bool         { return d.Time.Equal(other.Time) }
func (d Day) BeforeOrEqual(other Day) bool { return !d.After(other) }
func (d Day) AfterOrEqual(other Day) bool  { return !d.Before(other) }

// Arithmetic
func (d Day) AddDays(n int) Day { return Day{Time: d.Time.AddDate(0, 0, n)} }

func (d Day) IsZero() bool   { return d.Time.IsZero() }
func (d Day) String() string { return d.Time.Format(DateLayout) }
func (d Day) Month() Month   { return Month{Year: d.Time.Year(), Month: d.Time.Month()} }

// DaysBetween returns the number of whole days from -> to.
func DaysBetween(from, to Day) int {
	return int(to.Time.Sub(from.Time).Hours() / 24)
}

// MinDay returns the earlier of two days.
func MinDay(a, b Day) Day {
	if a.Before(b) {
		return a
	}
	return b
}

// MaxDay returns the later of two days.
func MaxDay(a, b Day) Day {
	if a.After(b) {
		return a
	}
	return b
}

// =============================================================================
// MONTH - Settlement granularity (YYYY-MM)
// =============================================================================

// MonthLayout is the wire format for settlement months.
const MonthLayout = "2006-01"

type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses a YYYY-MM string.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(MonthLayout, strings.TrimSpace(s))
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q (use YYYY-MM)", s)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

func (m Month) FirstDay() Day { return NewDay(m.Year, m.Month, 1) }

func (m Month) LastDay() Day {
	return DayOf(time.Date(m.Year, m.Month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1))
}

// Period returns [first day, last day] of the month.
func (m Month) Period() Period { return Period{Start: m.FirstDay(), End: m.LastDay()} }

func (m Month) Previous() Month { return MonthOf(m.FirstDay().Time.AddDate(0, -1, 0)) }

func (m Month) IsZero() bool   { return m.Year == 0 }
func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

func (m Month) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Month) UnmarshalText(b []byte) error {
	parsed, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (d Day) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Day) UnmarshalText(b []byte) error {
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
