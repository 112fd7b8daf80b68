package domain

import (
	"testing"
	"time"
)

func TestMonthCellsShape(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.Local)
	cells := MonthCells(time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local), now)

	if len(cells) != MonthCellCount {
		t.Fatalf("expected %d cells, got %d", MonthCellCount, len(cells))
	}
	if cells[0].Date.Weekday() != time.Sunday {
		t.Fatalf("grid must start on Sunday, got %s", cells[0].Date.Weekday())
	}
	// March 2024 starts on a Friday, so the grid leads with Feb 25.
	if cells[0].Date.Day() != 25 || cells[0].Date.Month() != time.February {
		t.Fatalf("unexpected first cell: %s", cells[0].Date)
	}
	if cells[0].IsCurrentMonth {
		t.Fatal("leading padding cell flagged as current month")
	}

	todayCount := 0
	currentMonth := 0
	for _, c := range cells {
		if c.IsToday {
			todayCount++
		}
		if c.IsCurrentMonth {
			currentMonth++
		}
	}
	if todayCount != 1 {
		t.Fatalf("expected exactly one today cell, got %d", todayCount)
	}
	if currentMonth != 31 {
		t.Fatalf("expected 31 current-month cells, got %d", currentMonth)
	}
}

func TestMonthCellsNoTodayOutsideRange(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.Local)
	cells := MonthCells(time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local), now)
	for _, c := range cells {
		if c.IsToday {
			t.Fatalf("cell %s flagged today while now is %s", c.Date, now)
		}
	}
}

func TestWeekCellsShape(t *testing.T) {
	// 2024-03-05 is a Tuesday; the containing week starts Sunday 03-03.
	now := time.Date(2024, 3, 5, 8, 0, 0, 0, time.Local)
	cells := WeekCells(now, now)

	if len(cells) != WeekCellCount {
		t.Fatalf("expected %d cells, got %d", WeekCellCount, len(cells))
	}
	if cells[0].Date.Weekday() != time.Sunday || cells[0].Date.Day() != 3 {
		t.Fatalf("unexpected week start: %s", cells[0].Date)
	}
	if cells[6].Date.Weekday() != time.Saturday || cells[6].Date.Day() != 9 {
		t.Fatalf("unexpected week end: %s", cells[6].Date)
	}
	today := 0
	for _, c := range cells {
		if c.IsToday {
			today++
		}
	}
	if today != 1 {
		t.Fatalf("expected exactly one today cell, got %d", today)
	}
}

func TestBuildGridBucketsAndOrdersTasks(t *testing.T) {
	now := time.Date(2024, 3, 20, 9, 0, 0, 0, time.Local)
	day := time.Date(2024, 3, 12, 0, 0, 0, 0, time.Local)
	at := func(hour int) *time.Time {
		d := day.Add(time.Duration(hour) * time.Hour)
		return &d
	}

	tasks := []Task{
		{ID: "done-high", Completed: true, Priority: PriorityHigh, DueDate: at(9)},
		{ID: "low", Priority: PriorityLow, DueDate: at(12)},
		{ID: "high", Priority: PriorityHigh, DueDate: at(23)},
		{ID: "medium", Priority: PriorityMedium, DueDate: at(1)},
		{ID: "done-low", Completed: true, Priority: PriorityLow, DueDate: at(12)},
		{ID: "dateless"},
	}

	grid := BuildGrid(GranularityMonth, day, now, tasks)
	if len(grid.Cells) != MonthCellCount {
		t.Fatalf("expected %d cells, got %d", MonthCellCount, len(grid.Cells))
	}

	var cell *Cell
	total := 0
	for i := range grid.Cells {
		total += len(grid.Cells[i].Tasks)
		if SameDay(grid.Cells[i].Date, day) {
			cell = &grid.Cells[i]
		}
	}
	if cell == nil {
		t.Fatal("day cell not found")
	}
	// Month view caps the cell at 3 tasks plus a remainder count.
	assertIDs(t, cell.Tasks, "high", "medium", "low")
	if cell.MoreCount != 2 {
		t.Fatalf("expected 2 hidden tasks, got %d", cell.MoreCount)
	}
	// The dateless task lands in no cell.
	if total != 3 {
		t.Fatalf("expected only the capped cell to carry tasks, got %d total", total)
	}

	week := BuildGrid(GranularityWeek, day, now, tasks)
	if len(week.Cells) != WeekCellCount {
		t.Fatalf("expected %d cells, got %d", WeekCellCount, len(week.Cells))
	}
	for _, c := range week.Cells {
		if SameDay(c.Date, day) {
			assertIDs(t, c.Tasks, "high", "medium", "low", "done-high", "done-low")
			if c.MoreCount != 0 {
				t.Fatalf("week view must not cap tasks, got moreCount=%d", c.MoreCount)
			}
		}
	}
}

func TestBuildGridFlagsOverdueCells(t *testing.T) {
	now := time.Date(2024, 3, 20, 9, 0, 0, 0, time.Local)
	past := time.Date(2024, 3, 12, 12, 0, 0, 0, time.Local)
	tasks := []Task{
		{ID: "late", DueDate: &past},
	}

	grid := BuildGrid(GranularityMonth, now, now, tasks)
	for _, c := range grid.Cells {
		if SameDay(c.Date, past) && !c.HasOverdue {
			t.Fatal("cell with an incomplete past-due task must flag overdue")
		}
	}

	tasks[0].Completed = true
	grid = BuildGrid(GranularityMonth, now, now, tasks)
	for _, c := range grid.Cells {
		if c.HasOverdue {
			t.Fatal("completed tasks must not flag a cell overdue")
		}
	}
}

func TestRescheduleSetsNoonOnly(t *testing.T) {
	day := time.Date(2024, 3, 9, 0, 0, 0, 0, time.Local)
	patch := Reschedule(day)

	if patch.DueDate == nil {
		t.Fatal("reschedule must set a due date")
	}
	want := time.Date(2024, 3, 9, 12, 0, 0, 0, time.Local)
	if !patch.DueDate.Equal(want) {
		t.Fatalf("expected %s, got %s", want, patch.DueDate)
	}
	if patch.Title != nil || patch.Priority != nil || patch.CategoryID != nil ||
		patch.Completed != nil || patch.Subtasks != nil || patch.Order != nil {
		t.Fatal("reschedule must touch nothing but the due date")
	}
}

func TestStepCalendar(t *testing.T) {
	ref := time.Date(2024, 3, 15, 0, 0, 0, 0, time.Local)
	if got := StepCalendar(GranularityMonth, ref, 1); got.Month() != time.April {
		t.Fatalf("expected April, got %s", got.Month())
	}
	if got := StepCalendar(GranularityMonth, ref, -1); got.Month() != time.February {
		t.Fatalf("expected February, got %s", got.Month())
	}
	if got := StepCalendar(GranularityWeek, ref, 1); got.Day() != 22 {
		t.Fatalf("expected day 22, got %d", got.Day())
	}
}

func TestGridTitle(t *testing.T) {
	if got := GridTitle(GranularityMonth, time.Date(2024, 3, 15, 0, 0, 0, 0, time.Local)); got != "March 2024" {
		t.Fatalf("unexpected month title: %q", got)
	}
	// Week of 2024-03-05 stays inside March.
	if got := GridTitle(GranularityWeek, time.Date(2024, 3, 5, 0, 0, 0, 0, time.Local)); got != "March 3-9, 2024" {
		t.Fatalf("unexpected week title: %q", got)
	}
	// Week of 2024-03-31 spans March and April.
	if got := GridTitle(GranularityWeek, time.Date(2024, 3, 31, 0, 0, 0, 0, time.Local)); got != "March 31 - April 6, 2024" {
		t.Fatalf("unexpected spanning week title: %q", got)
	}
}
