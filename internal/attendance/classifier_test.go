package attendance

import (
	"errors"
	"testing"
	"time"
)

var (
	sessionStart = time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC)
	sessionEnd   = sessionStart.Add(time.Hour)
)

func closed(joinOffset, leaveOffset time.Duration) Interval {
	left := sessionStart.Add(leaveOffset)
	return Interval{JoinedAt: sessionStart.Add(joinOffset), LeftAt: &left}
}

func open(joinOffset time.Duration) Interval {
	return Interval{JoinedAt: sessionStart.Add(joinOffset)}
}

func TestPolicy_Classify(t *testing.T) {
	t.Parallel()

	policy := DefaultPolicy()

	cases := []struct {
		name      string
		intervals []Interval
		marks     []Mark
		now       time.Time
		want      Status
	}{
		{
			name:      "joined early and stayed forty minutes",
			intervals: []Interval{closed(-5*time.Minute, 40*time.Minute)},
			now:       sessionEnd.Add(time.Hour),
			want:      StatusPresent,
		},
		{
			name:      "short visit counts as partial",
			intervals: []Interval{closed(0, 7*time.Minute)},
			now:       sessionEnd.Add(time.Hour),
			want:      StatusPartial,
		},
		{
			name:      "two minute floor counts as partial",
			intervals: []Interval{closed(0, 2*time.Minute)},
			now:       sessionEnd.Add(time.Hour),
			want:      StatusPartial,
		},
		{
			name:      "brief visit after the session is absent",
			intervals: []Interval{closed(0, time.Minute)},
			now:       sessionEnd.Add(time.Hour),
			want:      StatusAbsent,
		},
		{
			name: "upcoming before start",
			now:  sessionStart.Add(-time.Hour),
			want: StatusUpcoming,
		},
		{
			name:      "connected before start is in progress",
			intervals: []Interval{open(-5 * time.Minute)},
			now:       sessionStart.Add(-time.Minute),
			want:      StatusInProgress,
		},
		{
			name:      "connected during the session is in progress",
			intervals: []Interval{open(0)},
			now:       sessionStart.Add(time.Minute),
			want:      StatusInProgress,
		},
		{
			name: "not connected during the session is late",
			now:  sessionStart.Add(time.Minute),
			want: StatusLate,
		},
		{
			name: "never joined is absent",
			now:  sessionEnd.Add(time.Minute),
			want: StatusAbsent,
		},
		{
			name:      "manual excuse wins over presence",
			intervals: []Interval{closed(0, time.Hour)},
			marks:     []Mark{{Status: StatusExcused, MarkedAt: sessionEnd}},
			now:       sessionEnd.Add(time.Hour),
			want:      StatusExcused,
		},
		{
			name: "latest manual mark wins",
			marks: []Mark{
				{Status: StatusLate, MarkedAt: sessionEnd.Add(2 * time.Minute)},
				{Status: StatusAbsent, MarkedAt: sessionEnd.Add(time.Minute)},
			},
			now:  sessionEnd.Add(time.Hour),
			want: StatusLate,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := policy.Classify(Input{
				Start:     sessionStart,
				End:       sessionEnd,
				Intervals: tc.intervals,
				Marks:     tc.marks,
				Now:       tc.now,
			})
			if got.Status != tc.want {
				t.Fatalf("status = %q, want %q (result %+v)", got.Status, tc.want, got)
			}
		})
	}
}

func TestPolicy_ClassifyReportsRatio(t *testing.T) {
	t.Parallel()

	got := DefaultPolicy().Classify(Input{
		Start:     sessionStart,
		End:       sessionEnd,
		Intervals: []Interval{closed(-5*time.Minute, 40*time.Minute)},
		Now:       sessionEnd,
	})
	if got.Accumulated != 40*time.Minute {
		t.Fatalf("expected 40m accumulated, got %s", got.Accumulated)
	}
	if got.Ratio < 0.66 || got.Ratio > 0.67 {
		t.Fatalf("expected ratio near 0.667, got %f", got.Ratio)
	}
	if got.Connected || got.Manual != nil {
		t.Fatalf("unexpected flags %+v", got)
	}
}

func TestAccumulate(t *testing.T) {
	t.Parallel()

	t.Run("overlapping intervals are counted once", func(t *testing.T) {
		t.Parallel()
		total, connected := Accumulate(sessionStart, sessionEnd, sessionEnd, []Interval{
			closed(0, 30*time.Minute),
			closed(20*time.Minute, 50*time.Minute),
		})
		if total != 50*time.Minute || connected {
			t.Fatalf("got %s connected=%v", total, connected)
		}
	})

	t.Run("never exceeds the session duration", func(t *testing.T) {
		t.Parallel()
		total, _ := Accumulate(sessionStart, sessionEnd, sessionEnd.Add(time.Hour), []Interval{
			closed(-time.Hour, 2*time.Hour),
			open(-30 * time.Minute),
		})
		if total != time.Hour {
			t.Fatalf("expected total clamped to 1h, got %s", total)
		}
	})

	t.Run("open interval runs until now", func(t *testing.T) {
		t.Parallel()
		total, connected := Accumulate(sessionStart, sessionEnd, sessionStart.Add(15*time.Minute), []Interval{open(5 * time.Minute)})
		if total != 10*time.Minute || !connected {
			t.Fatalf("got %s connected=%v", total, connected)
		}
	})

	t.Run("monotonic in connected time", func(t *testing.T) {
		t.Parallel()
		var previous time.Duration
		for minutes := 0; minutes <= 90; minutes += 5 {
			total, _ := Accumulate(sessionStart, sessionEnd, sessionEnd, []Interval{closed(0, time.Duration(minutes)*time.Minute)})
			if total < previous {
				t.Fatalf("accumulated time decreased at %d minutes", minutes)
			}
			previous = total
		}
	})
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	summary := Summarize([]Status{StatusPresent, StatusExcused, StatusPartial, StatusLate, StatusAbsent, StatusUpcoming})
	want := Summary{Total: 6, Present: 2, Partial: 2, Missed: 2}
	if summary != want {
		t.Fatalf("summary = %+v, want %+v", summary, want)
	}
}

func TestParseManualStatus(t *testing.T) {
	t.Parallel()

	if got, err := ParseManualStatus(" Excused "); err != nil || got != StatusExcused {
		t.Fatalf("expected excused, got %q (%v)", got, err)
	}
	if _, err := ParseManualStatus("in-progress"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}
