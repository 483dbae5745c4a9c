// Package attendance derives a student's attendance status from the presence
// intervals recorded for one scheduled session.
package attendance

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// Status is the attendance outcome reported for a student and session.
type Status string

const (
	StatusPresent    Status = "present"
	StatusPartial    Status = "partial"
	StatusLate       Status = "late"
	StatusAbsent     Status = "absent"
	StatusExcused    Status = "excused"
	StatusUpcoming   Status = "upcoming"
	StatusInProgress Status = "in-progress"
)

// ErrInvalidStatus indicates a manual status outside the accepted set.
var ErrInvalidStatus = errors.New("attendance: invalid manual status")

// ParseManualStatus accepts the statuses a manager may set explicitly.
func ParseManualStatus(value string) (Status, error) {
	switch status := Status(strings.ToLower(strings.TrimSpace(value))); status {
	case StatusPresent, StatusPartial, StatusLate, StatusAbsent, StatusExcused:
		return status, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Policy holds the thresholds used to classify automatic attendance.
type Policy struct {
	PresentRatio   float64
	PartialRatio   float64
	PartialMinimum time.Duration
}

// DefaultPolicy returns the stock thresholds: half the session for present,
// a tenth of it or two minutes for partial.
func DefaultPolicy() Policy {
	return Policy{PresentRatio: 0.5, PartialRatio: 0.10, PartialMinimum: 2 * time.Minute}
}

// Interval is one connection of a student to a session. LeftAt is nil while connected.
type Interval struct {
	JoinedAt time.Time
	LeftAt   *time.Time
}

// Mark is a manual status override together with the instant it was recorded.
type Mark struct {
	Status   Status
	MarkedBy string
	MarkedAt time.Time
}

// Input gathers everything needed to classify one student for one session.
type Input struct {
	Start     time.Time
	End       time.Time
	Intervals []Interval
	Marks     []Mark
	Now       time.Time
}

// Result is the classification outcome.
type Result struct {
	Status      Status
	Accumulated time.Duration
	Ratio       float64
	Connected   bool
	Manual      *Mark
}

// Classify applies the policy to in. The most recent manual mark always wins;
// otherwise the status is derived from the time connected inside the session.
func (p Policy) Classify(in Input) Result {
	accumulated, connected := Accumulate(in.Start, in.End, in.Now, in.Intervals)

	result := Result{
		Accumulated: accumulated,
		Connected:   connected,
	}
	if duration := in.End.Sub(in.Start); duration > 0 {
		result.Ratio = float64(accumulated) / float64(duration)
	}

	if mark := LatestMark(in.Marks); mark != nil {
		result.Manual = mark
		result.Status = mark.Status
		return result
	}

	switch {
	case result.Ratio >= p.PresentRatio && accumulated > 0:
		result.Status = StatusPresent
	case result.Ratio >= p.PartialRatio && accumulated > 0:
		result.Status = StatusPartial
	case p.PartialMinimum > 0 && accumulated >= p.PartialMinimum:
		result.Status = StatusPartial
	case in.Now.Before(in.Start) && !connected:
		result.Status = StatusUpcoming
	case !in.Now.Before(in.Start) && !in.Now.After(in.End):
		if connected {
			result.Status = StatusInProgress
		} else {
			result.Status = StatusLate
		}
	case connected && in.Now.Before(in.Start):
		result.Status = StatusInProgress
	default:
		result.Status = StatusAbsent
	}
	return result
}

// Accumulate measures the union of intervals clamped to [start, end]. Open
// intervals are treated as ending at now. The total never exceeds end-start.
func Accumulate(start, end, now time.Time, intervals []Interval) (time.Duration, bool) {
	type span struct{ from, to time.Time }

	connected := false
	spans := make([]span, 0, len(intervals))
	for _, interval := range intervals {
		to := now
		if interval.LeftAt != nil {
			to = *interval.LeftAt
		} else {
			connected = true
		}
		from := interval.JoinedAt
		if from.Before(start) {
			from = start
		}
		if to.After(end) {
			to = end
		}
		if to.After(from) {
			spans = append(spans, span{from: from, to: to})
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].from.Before(spans[j].from) })

	var total time.Duration
	var cursor time.Time
	for _, s := range spans {
		if s.from.Before(cursor) {
			s.from = cursor
		}
		if s.to.After(s.from) {
			total += s.to.Sub(s.from)
			cursor = s.to
		}
	}
	return total, connected
}

// LatestMark returns the mark with the greatest MarkedAt, or nil.
func LatestMark(marks []Mark) *Mark {
	var latest *Mark
	for i := range marks {
		if marks[i].Status == "" {
			continue
		}
		if latest == nil || marks[i].MarkedAt.After(latest.MarkedAt) {
			mark := marks[i]
			latest = &mark
		}
	}
	return latest
}

// Summary counts students per attendance bucket.
type Summary struct {
	Total   int `json:"total"`
	Present int `json:"present"`
	Partial int `json:"partial"`
	Missed  int `json:"missed"`
}

// Summarize buckets statuses: present and excused count as present, partial and
// late as partial, everything else as missed.
func Summarize(statuses []Status) Summary {
	summary := Summary{Total: len(statuses)}
	for _, status := range statuses {
		switch status {
		case StatusPresent, StatusExcused:
			summary.Present++
		case StatusPartial, StatusLate:
			summary.Partial++
		default:
			summary.Missed++
		}
	}
	return summary
}
