package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Priority classifies how urgent a task is.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priority levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Weight returns the sort weight of the priority, higher is more urgent.
// Unknown priorities weigh the same as medium.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityLow:
		return 1
	}
	return 2
}

// Subtask is a checklist entry embedded in a task. Subtasks have no order
// field; the slice position is the display order.
type Subtask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Task represents a single user-owned task document.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Completed   bool       `json:"completed"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CategoryID  string     `json:"categoryId,omitempty"`
	Subtasks    []Subtask  `json:"subtasks"`
	Order       int        `json:"order"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt,omitempty"`
}

// TaskPatch carries a partial update. Nil fields are left untouched.
// ClearDueDate removes the due date regardless of the DueDate field.
type TaskPatch struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	Completed    *bool      `json:"completed,omitempty"`
	Priority     *Priority  `json:"priority,omitempty"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	ClearDueDate bool       `json:"clearDueDate,omitempty"`
	CategoryID   *string    `json:"categoryId,omitempty"`
	Subtasks     *[]Subtask `json:"subtasks,omitempty"`
	Order        *int       `json:"order,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p TaskPatch) IsZero() bool {
	return p.Title == nil && p.Description == nil && p.Completed == nil &&
		p.Priority == nil && p.DueDate == nil && !p.ClearDueDate &&
		p.CategoryID == nil && p.Subtasks == nil && p.Order == nil
}

// SortTasks orders tasks the way the list view displays them: order
// ascending, creation time descending on ties.
func SortTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Order != tasks[j].Order {
			return tasks[i].Order < tasks[j].Order
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}

// NewSubtask creates a subtask with a generated id.
func NewSubtask(title string) Subtask {
	return Subtask{ID: uuid.NewString(), Title: title}
}

// AppendSubtask returns a new sequence with a fresh subtask appended.
func AppendSubtask(subtasks []Subtask, title string) []Subtask {
	out := make([]Subtask, 0, len(subtasks)+1)
	out = append(out, subtasks...)
	return append(out, NewSubtask(title))
}

// ToggleSubtask returns a new sequence with the matching subtask's completed
// flag flipped. Positions are preserved; unknown ids leave the sequence
// unchanged.
func ToggleSubtask(subtasks []Subtask, subtaskID string) []Subtask {
	out := make([]Subtask, len(subtasks))
	copy(out, subtasks)
	for i := range out {
		if out[i].ID == subtaskID {
			out[i].Completed = !out[i].Completed
			break
		}
	}
	return out
}

// RemoveSubtask returns a new sequence without the matching subtask.
func RemoveSubtask(subtasks []Subtask, subtaskID string) []Subtask {
	out := make([]Subtask, 0, len(subtasks))
	for _, st := range subtasks {
		if st.ID != subtaskID {
			out = append(out, st)
		}
	}
	return out
}
