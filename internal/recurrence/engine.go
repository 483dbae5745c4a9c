package recurrence

import (
	"errors"
	"slices"
	"time"
)

const (
	// DefaultCount bounds a rule that carries neither Until nor Count.
	DefaultCount = 52
	// MaxOccurrences is the hard cap applied to every expansion.
	MaxOccurrences = 365

	maxSteps = 366
)

// ErrInvalidFrequency indicates the recurrence frequency is not supported.
var ErrInvalidFrequency = errors.New("recurrence: invalid frequency")

// ErrInvalidWeekday indicates a weekday outside 0 (Sunday) through 6 (Saturday).
var ErrInvalidWeekday = errors.New("recurrence: weekday out of range")

// ErrInvalidCount indicates a negative occurrence count.
var ErrInvalidCount = errors.New("recurrence: count must not be negative")

// Engine expands recurrence rules into occurrence start instants.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine that performs calendar arithmetic in the provided location.
// If loc is nil, UTC is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

// Location reports the timezone used for calendar arithmetic.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return time.UTC
	}
	return e.location
}

// AlignAnchor shifts start forward to the nearest weekday contained in weekdays,
// keeping the wall clock time. Start is returned unchanged when weekdays is empty
// or already contains its weekday.
func (e *Engine) AlignAnchor(start time.Time, weekdays []time.Weekday) time.Time {
	if len(weekdays) == 0 {
		return start
	}
	local := start.In(e.Location())
	for offset := 0; offset < 7; offset++ {
		candidate := local.AddDate(0, 0, offset)
		if slices.Contains(weekdays, candidate.Weekday()) {
			return candidate
		}
	}
	return start
}

// Expand produces the start instants of every occurrence of rule anchored at anchor.
//
// The result is strictly ascending, never precedes anchor, honors the weekday
// filter and holds at most min(Count, MaxOccurrences) elements. Until is inclusive.
// An empty slice is a valid result; callers decide whether that is acceptable.
func (e *Engine) Expand(anchor time.Time, rule Rule) ([]time.Time, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	loc := e.Location()
	anchor = anchor.In(loc)

	var until time.Time
	if rule.Until != nil {
		until = rule.Until.In(loc)
	}

	limit := rule.Count
	if limit == 0 {
		limit = MaxOccurrences
		if rule.Until == nil {
			limit = DefaultCount
		}
	}
	if limit > MaxOccurrences {
		limit = MaxOccurrences
	}

	x := expansion{anchor: anchor, until: until, limit: limit, weekdays: rule.Weekdays}

	switch rule.Frequency {
	case FrequencyDaily:
		return x.daily(), nil
	case FrequencyWeekly:
		return x.periodic(7), nil
	case FrequencyBiweekly:
		return x.periodic(14), nil
	case FrequencyMonthly:
		return x.monthly(), nil
	default:
		return nil, ErrInvalidFrequency
	}
}

type expansion struct {
	anchor   time.Time
	until    time.Time
	limit    int
	weekdays []time.Weekday
	out      []time.Time
}

func (x *expansion) pastUntil(candidate time.Time) bool {
	return !x.until.IsZero() && candidate.After(x.until)
}

func (x *expansion) allowed(day time.Weekday) bool {
	return len(x.weekdays) == 0 || slices.Contains(x.weekdays, day)
}

func (x *expansion) daily() []time.Time {
	x.out = make([]time.Time, 0, min(x.limit, 64))
	for step := 0; step < maxSteps && len(x.out) < x.limit; step++ {
		candidate := x.anchor.AddDate(0, 0, step)
		if x.pastUntil(candidate) {
			break
		}
		if x.allowed(candidate.Weekday()) {
			x.out = append(x.out, candidate)
		}
	}
	return x.out
}

// periodic emits one occurrence per selected weekday inside consecutive periods
// of periodDays that begin at the anchor.
func (x *expansion) periodic(periodDays int) []time.Time {
	offsets := x.weekdayOffsets()
	x.out = make([]time.Time, 0, min(x.limit, 64))

	for period := 0; period < maxSteps && len(x.out) < x.limit; period++ {
		periodStart := x.anchor.AddDate(0, 0, period*periodDays)
		if x.pastUntil(periodStart) {
			break
		}
		for _, offset := range offsets {
			candidate := periodStart.AddDate(0, 0, offset)
			if x.pastUntil(candidate) || len(x.out) >= x.limit {
				break
			}
			x.out = append(x.out, candidate)
		}
	}
	return x.out
}

// weekdayOffsets returns the ascending day offsets from the anchor weekday to
// every selected weekday. Without a selection only the anchor weekday is used.
func (x *expansion) weekdayOffsets() []int {
	if len(x.weekdays) == 0 {
		return []int{0}
	}
	base := int(x.anchor.Weekday())
	offsets := make([]int, 0, len(x.weekdays))
	for _, day := range x.weekdays {
		offset := (int(day) - base + 7) % 7
		if !slices.Contains(offsets, offset) {
			offsets = append(offsets, offset)
		}
	}
	slices.Sort(offsets)
	return offsets
}

// monthly keeps the anchor's day of month. Months without that day are skipped.
func (x *expansion) monthly() []time.Time {
	x.out = make([]time.Time, 0, min(x.limit, 24))
	year, month, day := x.anchor.Date()
	hour, minute, second := x.anchor.Clock()
	loc := x.anchor.Location()

	for step := 0; step < maxSteps && len(x.out) < x.limit; step++ {
		candidate := time.Date(year, month+time.Month(step), day, hour, minute, second, x.anchor.Nanosecond(), loc)
		if candidate.Day() != day {
			continue
		}
		if x.pastUntil(candidate) {
			break
		}
		if x.allowed(candidate.Weekday()) {
			x.out = append(x.out, candidate)
		}
	}
	return x.out
}
