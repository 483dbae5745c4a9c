package scheduler

import (
	"sort"
	"time"
)

// Entry is the slice of a schedule entry the conflict validator needs.
type Entry struct {
	ID        string
	ClassID   string
	ClassName string
	TeacherID string
	Start     time.Time
	End       time.Time
	Cancelled bool
}

// Candidate describes a proposed placement for a class session.
type Candidate struct {
	ClassID   string
	TeacherID string
	Start     time.Time
	End       time.Time
	// Exclude lists entry IDs that must not be reported, typically the entries being edited.
	Exclude map[string]struct{}
}

// ConflictType describes the type of conflict detected between schedule entries.
type ConflictType string

const (
	// ConflictTypeClass indicates the same class already meets during the interval.
	ConflictTypeClass ConflictType = "class"
	// ConflictTypeTeacher indicates the class teacher already teaches another class during the interval.
	ConflictTypeTeacher ConflictType = "teacher"
)

// Conflict details an overlapping entry that blocks the candidate.
type Conflict struct {
	Type      ConflictType
	EntryID   string
	ClassID   string
	ClassName string
	Start     time.Time
	End       time.Time
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and [bStart, bEnd) intersect.
// Intervals that only touch never overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// DetectConflicts identifies conflicts for the candidate against existing entries.
//
// Cancelled and excluded entries are ignored. Class conflicts are reported
// before teacher conflicts; each group is ordered by start time.
func DetectConflicts(existing []Entry, candidate Candidate) []Conflict {
	var classConflicts, teacherConflicts []Conflict

	for _, entry := range existing {
		if entry.Cancelled {
			continue
		}
		if _, skip := candidate.Exclude[entry.ID]; skip {
			continue
		}
		if !Overlaps(entry.Start, entry.End, candidate.Start, candidate.End) {
			continue
		}

		switch {
		case entry.ClassID == candidate.ClassID:
			classConflicts = append(classConflicts, newConflict(ConflictTypeClass, entry))
		case candidate.TeacherID != "" && entry.TeacherID == candidate.TeacherID:
			teacherConflicts = append(teacherConflicts, newConflict(ConflictTypeTeacher, entry))
		}
	}

	sortByStart(classConflicts)
	sortByStart(teacherConflicts)

	if len(classConflicts) == 0 && len(teacherConflicts) == 0 {
		return nil
	}
	return append(classConflicts, teacherConflicts...)
}

func newConflict(kind ConflictType, entry Entry) Conflict {
	return Conflict{
		Type:      kind,
		EntryID:   entry.ID,
		ClassID:   entry.ClassID,
		ClassName: entry.ClassName,
		Start:     entry.Start,
		End:       entry.End,
	}
}

func sortByStart(conflicts []Conflict) {
	sort.SliceStable(conflicts, func(i, j int) bool {
		if conflicts[i].Start.Equal(conflicts[j].Start) {
			return conflicts[i].EntryID < conflicts[j].EntryID
		}
		return conflicts[i].Start.Before(conflicts[j].Start)
	})
}
