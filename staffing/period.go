package staffing

// =============================================================================
// PERIOD - Inclusive day range of an order or a settlement month
// =============================================================================

// Period is an inclusive range of days [Start, End].
type Period struct {
	Start Day
	End   Day
}

// NewPeriod parses two YYYY-MM-DD strings into a period.
func NewPeriod(start, end string) (Period, error) {
	s, err := ParseDay(start)
	if err != nil {
		return Period{}, err
	}
	e, err := ParseDay(end)
	if err != nil {
		return Period{}, err
	}
	return Period{Start: s, End: e}, nil
}

// Valid reports whether Start <= End.
func (p Period) Valid() bool {
	return !p.Start.IsZero() && !p.End.IsZero() && p.Start.BeforeOrEqual(p.End)
}

// Contains returns true if the day is within [Start, End].
func (p Period) Contains(d Day) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Overlaps uses the standard interval test:
// a.Start <= b.End AND a.End >= b.Start. It is symmetric.
func (p Period) Overlaps(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && p.End.AfterOrEqual(other.Start)
}

// Clip intersects p with bounds. The result may be invalid (Start after End)
// when the two do not overlap.
func (p Period) Clip(bounds Period) Period {
	return Period{Start: MaxDay(p.Start, bounds.Start), End: MinDay(p.End, bounds.End)}
}

// Days returns the inclusive day count, or 0 for an invalid period.
func (p Period) Days() int {
	if !p.Valid() {
		return 0
	}
	return DaysBetween(p.Start, p.End) + 1
}

// String returns a string representation of the period.
func (p Period) String() string {
	return p.Start.String() + " ~ " + p.End.String()
}
