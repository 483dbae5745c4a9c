// Package access holds the capability predicates shared by every operation and
// the session gate that decides whether an actor may enter a live classroom.
package access

import (
	"strings"
	"time"
)

// Role identifies the kind of actor invoking an operation.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleTutor   Role = "tutor"
	RoleStudent Role = "student"
	// RoleSystem is used by the video subsystem and the elapsed-session sweep.
	RoleSystem Role = "system"
)

// ParseRole normalizes a role claim. Unknown values yield an empty role.
func ParseRole(value string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleTeacher:
		return RoleTeacher
	case RoleTutor:
		return RoleTutor
	case RoleStudent:
		return RoleStudent
	case RoleSystem:
		return RoleSystem
	default:
		return ""
	}
}

// IsElevated reports whether the role hosts sessions rather than attending them.
func (r Role) IsElevated() bool {
	return r == RoleAdmin || r == RoleTeacher || r == RoleTutor
}

// IsStudent reports whether the role attends sessions.
func IsStudent(role Role) bool {
	return role == RoleStudent
}

// CanJoinEarly reports whether the role may enter a room before the join window opens.
func CanJoinEarly(role Role) bool {
	return role.IsElevated()
}

// CanSignalRoom reports whether the role may flip a room's live flag.
func CanSignalRoom(role Role) bool {
	return role.IsElevated() || role == RoleSystem
}

// CanManageClass reports whether the actor may edit a class's schedule and attendance.
// Admins manage every class; teachers and tutors manage the classes they teach.
func CanManageClass(role Role, actorID, classTeacherID string) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleTeacher, RoleTutor:
		return actorID != "" && actorID == classTeacherID
	default:
		return false
	}
}

// JoinWindow bounds how early and how late a student may join a session.
type JoinWindow struct {
	Early time.Duration
	Late  time.Duration
}

// DefaultJoinWindow opens ten minutes before start and closes five minutes after end.
func DefaultJoinWindow() JoinWindow {
	return JoinWindow{Early: 10 * time.Minute, Late: 5 * time.Minute}
}

// Session is the view of a schedule entry the gate evaluates.
type Session struct {
	Start     time.Time
	End       time.Time
	Active    bool
	Completed bool
	Cancelled bool
}

// CanJoinNow decides whether role may enter the session at now.
//
// Cancelled sessions admit nobody. Hosts may always join otherwise. Students
// may join a live session or one inside the join window, unless it has been
// completed.
func CanJoinNow(role Role, session Session, now time.Time, window JoinWindow) bool {
	if session.Cancelled {
		return false
	}
	if CanJoinEarly(role) {
		return true
	}
	if !IsStudent(role) || session.Completed {
		return false
	}
	if session.Active {
		return true
	}
	opens := session.Start.Add(-window.Early)
	closes := session.End.Add(window.Late)
	return !now.Before(opens) && !now.After(closes)
}
