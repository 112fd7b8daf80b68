package domain

import (
	"fmt"
	"sort"
	"time"
)

// Granularity selects the calendar layout.
type Granularity string

const (
	GranularityMonth Granularity = "month"
	GranularityWeek  Granularity = "week"
)

// MonthCellCount is the fixed size of the month grid, 6 rows of 7 days.
const MonthCellCount = 42

// WeekCellCount is the fixed size of the week grid.
const WeekCellCount = 7

// monthViewTaskLimit caps how many tasks a month cell surfaces before the
// remainder collapses into a count.
const monthViewTaskLimit = 3

// Cell is one day of a calendar grid.
type Cell struct {
	Date           time.Time `json:"date"`
	DayNumber      int       `json:"dayNumber"`
	IsCurrentMonth bool      `json:"isCurrentMonth"`
	IsToday        bool      `json:"isToday"`
	HasOverdue     bool      `json:"hasOverdue"`
	Tasks          []Task    `json:"tasks"`
	MoreCount      int       `json:"moreCount,omitempty"`
}

// Grid is a fully derived calendar view: the day cells with their bucketed,
// ordered tasks.
type Grid struct {
	Granularity Granularity `json:"granularity"`
	Title       string      `json:"title"`
	Cells       []Cell      `json:"cells"`
}

// MonthCells produces the 42-cell month grid for the month containing ref,
// starting on the Sunday on or before the 1st. now determines the IsToday
// flag at local day granularity.
func MonthCells(ref, now time.Time) []Cell {
	y, m, _ := ref.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, ref.Location())
	start := first.AddDate(0, 0, -int(first.Weekday()))

	cells := make([]Cell, 0, MonthCellCount)
	for i := 0; i < MonthCellCount; i++ {
		date := start.AddDate(0, 0, i)
		cells = append(cells, Cell{
			Date:           date,
			DayNumber:      date.Day(),
			IsCurrentMonth: date.Month() == m && date.Year() == y,
			IsToday:        SameDay(date, now),
		})
	}
	return cells
}

// WeekCells produces the 7-cell Sunday through Saturday grid for the week
// containing ref.
func WeekCells(ref, now time.Time) []Cell {
	start := DayStart(ref).AddDate(0, 0, -int(ref.Weekday()))

	cells := make([]Cell, 0, WeekCellCount)
	for i := 0; i < WeekCellCount; i++ {
		date := start.AddDate(0, 0, i)
		cells = append(cells, Cell{
			Date:           date,
			DayNumber:      date.Day(),
			IsCurrentMonth: true,
			IsToday:        SameDay(date, now),
		})
	}
	return cells
}

// BuildGrid derives the complete calendar projection: the grid cells for the
// requested granularity with every dated task bucketed into its day cell.
// Tasks without a due date appear in no cell.
func BuildGrid(g Granularity, ref, now time.Time, tasks []Task) Grid {
	var cells []Cell
	if g == GranularityWeek {
		cells = WeekCells(ref, now)
	} else {
		g = GranularityMonth
		cells = MonthCells(ref, now)
	}

	buckets := bucketByDay(tasks, now.Location())
	today := DayStart(now)
	for i := range cells {
		key := dayKey(cells[i].Date)
		day := buckets[key]
		if len(day) == 0 {
			cells[i].Tasks = []Task{}
			continue
		}
		arrangeCellTasks(day)
		for _, t := range day {
			if !t.Completed && DayStart(t.DueDate.In(now.Location())).Before(today) {
				cells[i].HasOverdue = true
				break
			}
		}
		if g == GranularityMonth && len(day) > monthViewTaskLimit {
			cells[i].Tasks = day[:monthViewTaskLimit]
			cells[i].MoreCount = len(day) - monthViewTaskLimit
		} else {
			cells[i].Tasks = day
		}
	}

	return Grid{Granularity: g, Title: GridTitle(g, ref), Cells: cells}
}

// bucketByDay groups dated tasks by their due day in the given location.
func bucketByDay(tasks []Task, loc *time.Location) map[string][]Task {
	buckets := make(map[string][]Task)
	for _, t := range tasks {
		if t.DueDate == nil {
			continue
		}
		key := dayKey(t.DueDate.In(loc))
		buckets[key] = append(buckets[key], t)
	}
	return buckets
}

// arrangeCellTasks sorts a cell's tasks for display: incomplete before
// completed, then priority descending.
func arrangeCellTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Completed != tasks[j].Completed {
			return !tasks[i].Completed
		}
		return tasks[i].Priority.Weight() > tasks[j].Priority.Weight()
	})
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// NoonOf returns noon of the given day in its location. Due dates are pinned
// to noon so a timezone shift of a few hours cannot move them across a day
// boundary.
func NoonOf(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 12, 0, 0, 0, day.Location())
}

// Reschedule returns the patch that moves a task onto the given day, leaving
// every other field untouched.
func Reschedule(day time.Time) TaskPatch {
	due := NoonOf(day)
	return TaskPatch{DueDate: &due}
}

// StepCalendar returns the reference date shifted by delta views: months in
// month granularity, weeks in week granularity.
func StepCalendar(g Granularity, ref time.Time, delta int) time.Time {
	if g == GranularityWeek {
		return ref.AddDate(0, 0, 7*delta)
	}
	return ref.AddDate(0, delta, 0)
}

// GridTitle renders the calendar header: "March 2024" for months, a
// collapsed day range for weeks.
func GridTitle(g Granularity, ref time.Time) string {
	if g != GranularityWeek {
		return ref.Format("January 2006")
	}
	start := DayStart(ref).AddDate(0, 0, -int(ref.Weekday()))
	end := start.AddDate(0, 0, 6)
	if start.Month() == end.Month() {
		return fmt.Sprintf("%s %d-%d, %d", start.Format("January"), start.Day(), end.Day(), start.Year())
	}
	return fmt.Sprintf("%s %d - %s %d, %d", start.Format("January"), start.Day(), end.Format("January"), end.Day(), start.Year())
}
