package scheduler

import (
	"testing"
	"time"
)

func slot(hour, minutes int) (time.Time, time.Time) {
	start := time.Date(2024, time.March, 4, hour, 0, 0, 0, time.UTC)
	return start, start.Add(time.Duration(minutes) * time.Minute)
}

func TestOverlaps(t *testing.T) {
	t.Parallel()

	aStart, aEnd := slot(10, 60)

	cases := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{name: "identical", start: aStart, end: aEnd, want: true},
		{name: "contained", start: aStart.Add(10 * time.Minute), end: aStart.Add(20 * time.Minute), want: true},
		{name: "partial", start: aStart.Add(30 * time.Minute), end: aEnd.Add(30 * time.Minute), want: true},
		{name: "touching after", start: aEnd, end: aEnd.Add(time.Hour), want: false},
		{name: "touching before", start: aStart.Add(-time.Hour), end: aStart, want: false},
		{name: "disjoint", start: aEnd.Add(time.Hour), end: aEnd.Add(2 * time.Hour), want: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Overlaps(aStart, aEnd, tc.start, tc.end); got != tc.want {
				t.Fatalf("Overlaps = %v, want %v", got, tc.want)
			}
			if got := Overlaps(tc.start, tc.end, aStart, aEnd); got != tc.want {
				t.Fatalf("Overlaps is not symmetric: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDetectConflicts(t *testing.T) {
	t.Parallel()

	mathStart, mathEnd := slot(10, 60)
	physicsStart, physicsEnd := slot(10, 90)
	existing := []Entry{
		{ID: "e-physics", ClassID: "physics", ClassName: "Physics 1", TeacherID: "teacher-1", Start: physicsStart, End: physicsEnd},
		{ID: "e-math", ClassID: "math", ClassName: "Math 1", TeacherID: "teacher-2", Start: mathStart, End: mathEnd},
	}

	t.Run("class overlap produces conflict", func(t *testing.T) {
		t.Parallel()
		start, end := slot(10, 30)
		conflicts := DetectConflicts(existing, Candidate{ClassID: "math", TeacherID: "teacher-9", Start: start.Add(30 * time.Minute), End: end.Add(30 * time.Minute)})
		if len(conflicts) != 1 {
			t.Fatalf("expected 1 conflict, got %+v", conflicts)
		}
		if conflicts[0].Type != ConflictTypeClass || conflicts[0].EntryID != "e-math" || conflicts[0].ClassName != "Math 1" {
			t.Fatalf("unexpected conflict %+v", conflicts[0])
		}
	})

	t.Run("teacher overlap produces conflict", func(t *testing.T) {
		t.Parallel()
		start, end := slot(11, 60)
		conflicts := DetectConflicts(existing, Candidate{ClassID: "chemistry", TeacherID: "teacher-1", Start: start, End: end})
		if len(conflicts) != 1 || conflicts[0].Type != ConflictTypeTeacher || conflicts[0].EntryID != "e-physics" {
			t.Fatalf("unexpected conflicts %+v", conflicts)
		}
	})

	t.Run("class conflicts come first", func(t *testing.T) {
		t.Parallel()
		start, end := slot(10, 60)
		conflicts := DetectConflicts(existing, Candidate{ClassID: "math", TeacherID: "teacher-1", Start: start, End: end})
		if len(conflicts) != 2 {
			t.Fatalf("expected 2 conflicts, got %+v", conflicts)
		}
		if conflicts[0].Type != ConflictTypeClass || conflicts[1].Type != ConflictTypeTeacher {
			t.Fatalf("unexpected ordering %+v", conflicts)
		}
	})

	t.Run("touching intervals are allowed", func(t *testing.T) {
		t.Parallel()
		start, end := slot(11, 60)
		if conflicts := DetectConflicts(existing, Candidate{ClassID: "math", TeacherID: "teacher-2", Start: start, End: end}); len(conflicts) != 0 {
			t.Fatalf("expected no conflicts, got %+v", conflicts)
		}
	})

	t.Run("cancelled and excluded entries are ignored", func(t *testing.T) {
		t.Parallel()
		start, end := slot(10, 60)
		entries := []Entry{
			{ID: "cancelled", ClassID: "math", TeacherID: "teacher-2", Start: start, End: end, Cancelled: true},
			{ID: "self", ClassID: "math", TeacherID: "teacher-2", Start: start, End: end},
		}
		conflicts := DetectConflicts(entries, Candidate{
			ClassID:   "math",
			TeacherID: "teacher-2",
			Start:     start,
			End:       end,
			Exclude:   map[string]struct{}{"self": {}},
		})
		if len(conflicts) != 0 {
			t.Fatalf("expected no conflicts, got %+v", conflicts)
		}
	})
}
