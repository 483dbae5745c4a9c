package recurrence

import (
	"errors"
	"testing"
	"time"
)

func at(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
}

func assertOccurrences(t *testing.T, got []time.Time, want ...time.Time) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d occurrences, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("occurrence %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func assertAscendingFrom(t *testing.T, anchor time.Time, got []time.Time) {
	t.Helper()
	for i, occurrence := range got {
		if occurrence.Before(anchor) {
			t.Fatalf("occurrence %d (%s) precedes anchor %s", i, occurrence, anchor)
		}
		if i > 0 && !occurrence.After(got[i-1]) {
			t.Fatalf("occurrences not strictly ascending at %d: %s then %s", i, got[i-1], occurrence)
		}
	}
}

func TestEngine_Expand(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)
	monday := at(2024, time.March, 4, 10)

	t.Run("weekly on monday and wednesday", func(t *testing.T) {
		t.Parallel()
		got, err := engine.Expand(monday, Rule{
			Frequency: FrequencyWeekly,
			Weekdays:  []time.Weekday{time.Monday, time.Wednesday},
			Count:     4,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertOccurrences(t, got,
			at(2024, time.March, 4, 10),
			at(2024, time.March, 6, 10),
			at(2024, time.March, 11, 10),
			at(2024, time.March, 13, 10),
		)
	})

	t.Run("count stops inside a period", func(t *testing.T) {
		t.Parallel()
		got, err := engine.Expand(monday, Rule{
			Frequency: FrequencyWeekly,
			Weekdays:  []time.Weekday{time.Wednesday, time.Monday},
			Count:     3,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertOccurrences(t, got,
			at(2024, time.March, 4, 10),
			at(2024, time.March, 6, 10),
			at(2024, time.March, 11, 10),
		)
	})

	t.Run("weekly never emits before the anchor", func(t *testing.T) {
		t.Parallel()
		tuesday := at(2024, time.March, 5, 10)
		got, err := engine.Expand(tuesday, Rule{
			Frequency: FrequencyWeekly,
			Weekdays:  []time.Weekday{time.Monday},
			Count:     2,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertOccurrences(t, got,
			at(2024, time.March, 11, 10),
			at(2024, time.March, 18, 10),
		)
	})

	t.Run("daily steps one day", func(t *testing.T) {
		t.Parallel()
		got, err := engine.Expand(monday, Rule{Frequency: FrequencyDaily, Count: 3})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertOccurrences(t, got,
			at(2024, time.March, 4, 10),
			at(2024, time.March, 5, 10),
			at(2024, time.March, 6, 10),
		)
	})

	t.Run("daily honors weekday filter", func(t *testing.T) {
		t.Parallel()
		friday := at(2024, time.March, 8, 10)
		got, err := engine.Expand(friday, Rule{
			Frequency: FrequencyDaily,
			Weekdays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
			Count:     6,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertOccurrences(t, got,
			at(2024, time.March, 8, 10),
			at(2024, time.March, 11, 10),
			at(2024, time.March, 12, 10),
			at(2024, time.March, 13, 10),
			at(2024, time.March, 14, 10),
			at(2024, time.March, 15, 10),
		)
	})

	t.Run("biweekly skips alternate weeks", func(t *testing.T) {
		t.Parallel()
		got, err := engine.Expand(monday, Rule{Frequency: FrequencyBiweekly, Count: 3})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertOccurrences(t, got,
			at(2024, time.March, 4, 10),
			at(2024, time.March, 18, 10),
			at(2024, time.April, 1, 10),
		)
	})

	t.Run("monthly skips months without the anchor day", func(t *testing.T) {
		t.Parallel()
		got, err := engine.Expand(at(2024, time.January, 31, 9), Rule{Frequency: FrequencyMonthly, Count: 3})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertOccurrences(t, got,
			at(2024, time.January, 31, 9),
			at(2024, time.March, 31, 9),
			at(2024, time.May, 31, 9),
		)
	})

	t.Run("until is inclusive", func(t *testing.T) {
		t.Parallel()
		until := at(2024, time.March, 18, 10)
		got, err := engine.Expand(monday, Rule{Frequency: FrequencyWeekly, Until: &until})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertOccurrences(t, got,
			at(2024, time.March, 4, 10),
			at(2024, time.March, 11, 10),
			at(2024, time.March, 18, 10),
		)
	})

	t.Run("count wins over a later until", func(t *testing.T) {
		t.Parallel()
		until := at(2025, time.March, 18, 10)
		got, err := engine.Expand(monday, Rule{Frequency: FrequencyWeekly, Until: &until, Count: 2})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 occurrences, got %d", len(got))
		}
	})

	t.Run("unbounded rules default to fifty two", func(t *testing.T) {
		t.Parallel()
		got, err := engine.Expand(monday, Rule{Frequency: FrequencyWeekly})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != DefaultCount {
			t.Fatalf("expected %d occurrences, got %d", DefaultCount, len(got))
		}
		assertAscendingFrom(t, monday, got)
	})

	t.Run("count is capped", func(t *testing.T) {
		t.Parallel()
		got, err := engine.Expand(monday, Rule{Frequency: FrequencyDaily, Count: 1000})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != MaxOccurrences {
			t.Fatalf("expected %d occurrences, got %d", MaxOccurrences, len(got))
		}
		assertAscendingFrom(t, monday, got)
	})

	t.Run("filter can produce an empty expansion", func(t *testing.T) {
		t.Parallel()
		until := at(2024, time.March, 6, 10)
		got, err := engine.Expand(monday, Rule{
			Frequency: FrequencyDaily,
			Weekdays:  []time.Weekday{time.Saturday},
			Until:     &until,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected no occurrences, got %v", got)
		}
	})
}

func TestEngine_ExpandRejectsInvalidRules(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)
	anchor := at(2024, time.March, 4, 10)

	cases := []struct {
		name string
		rule Rule
		want error
	}{
		{name: "unknown frequency", rule: Rule{Frequency: "hourly"}, want: ErrInvalidFrequency},
		{name: "weekday out of range", rule: Rule{Frequency: FrequencyWeekly, Weekdays: []time.Weekday{7}}, want: ErrInvalidWeekday},
		{name: "negative count", rule: Rule{Frequency: FrequencyDaily, Count: -1}, want: ErrInvalidCount},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := engine.Expand(anchor, tc.rule); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestEngine_ExpandKeepsWallClockAcrossDST(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	engine := NewEngine(loc)
	anchor := time.Date(2024, time.March, 9, 9, 0, 0, 0, loc)

	got, err := engine.Expand(anchor, Rule{Frequency: FrequencyDaily, Count: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, occurrence := range got {
		if occurrence.Hour() != 9 {
			t.Fatalf("expected 09:00 local, got %s", occurrence)
		}
	}
	if gap := got[2].Sub(got[1]); gap != 24*time.Hour {
		t.Fatalf("expected 24h gap after the transition, got %s", gap)
	}
	if gap := got[1].Sub(got[0]); gap != 23*time.Hour {
		t.Fatalf("expected 23h gap across the transition, got %s", gap)
	}
}

func TestEngine_AlignAnchor(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)
	tuesday := at(2024, time.March, 5, 10)

	if got := engine.AlignAnchor(tuesday, nil); !got.Equal(tuesday) {
		t.Fatalf("expected anchor unchanged without weekdays, got %s", got)
	}
	if got := engine.AlignAnchor(tuesday, []time.Weekday{time.Tuesday}); !got.Equal(tuesday) {
		t.Fatalf("expected anchor unchanged on an allowed weekday, got %s", got)
	}
	want := at(2024, time.March, 7, 10)
	if got := engine.AlignAnchor(tuesday, []time.Weekday{time.Monday, time.Thursday}); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestRule_EncodeDecode(t *testing.T) {
	t.Parallel()

	until := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.FixedZone("X", 3600))
	rule := Rule{Frequency: FrequencyWeekly, Weekdays: []time.Weekday{time.Monday, time.Wednesday}, Until: &until}

	raw, err := rule.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeRule(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Frequency != FrequencyWeekly || len(decoded.Weekdays) != 2 || decoded.Until == nil || !decoded.Until.Equal(until) {
		t.Fatalf("unexpected decoded rule: %+v", decoded)
	}

	if _, err := DecodeRule(`{"type":"yearly"}`); !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
}
