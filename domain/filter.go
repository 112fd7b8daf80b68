package domain

import (
	"strings"
	"time"
)

// StatusFilter narrows tasks by completion state.
type StatusFilter string

const (
	StatusAll       StatusFilter = "all"
	StatusActive    StatusFilter = "active"
	StatusCompleted StatusFilter = "completed"
)

// DueFilter narrows tasks by due-date window. All comparisons are at day
// granularity in the location of the supplied reference time.
type DueFilter string

const (
	DueAll     DueFilter = "all"
	DueToday   DueFilter = "today"
	DueWeek    DueFilter = "week"
	DueOverdue DueFilter = "overdue"
	DueNoDate  DueFilter = "no-date"
)

// Filter is the composed list-view filter. Zero values mean "no filtering"
// for every field. Predicates compose as a logical AND and are independent,
// so the result does not depend on application order.
type Filter struct {
	CategoryID string
	Query      string
	Status     StatusFilter
	Priority   Priority // empty or "all" keeps everything
	Due        DueFilter
}

// Apply returns the tasks matching every predicate, preserving input order.
// now anchors the day-granularity due-date comparisons.
func (f Filter) Apply(tasks []Task, now time.Time) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Matches(t, now) {
			out = append(out, t)
		}
	}
	return out
}

// Matches reports whether a single task passes the filter.
func (f Filter) Matches(t Task, now time.Time) bool {
	return f.matchesCategory(t) &&
		f.matchesQuery(t) &&
		f.matchesStatus(t) &&
		f.matchesPriority(t) &&
		f.matchesDue(t, now)
}

func (f Filter) matchesCategory(t Task) bool {
	return f.CategoryID == "" || t.CategoryID == f.CategoryID
}

func (f Filter) matchesQuery(t Task) bool {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), q) ||
		strings.Contains(strings.ToLower(t.Description), q)
}

func (f Filter) matchesStatus(t Task) bool {
	switch f.Status {
	case StatusActive:
		return !t.Completed
	case StatusCompleted:
		return t.Completed
	}
	return true
}

func (f Filter) matchesPriority(t Task) bool {
	if f.Priority == "" || f.Priority == "all" {
		return true
	}
	return t.Priority == f.Priority
}

func (f Filter) matchesDue(t Task, now time.Time) bool {
	switch f.Due {
	case "", DueAll:
		return true
	case DueNoDate:
		return t.DueDate == nil
	}
	if t.DueDate == nil {
		return false
	}
	due := DayStart(t.DueDate.In(now.Location()))
	today := DayStart(now)
	switch f.Due {
	case DueToday:
		return due.Equal(today)
	case DueWeek:
		end := today.AddDate(0, 0, 7)
		return !due.Before(today) && !due.After(end)
	case DueOverdue:
		return due.Before(today) && !t.Completed
	}
	return true
}

// DayStart truncates t to midnight in its own location.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
