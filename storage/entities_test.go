package storage

import (
	"testing"
	"time"

	"taskflow-api/domain"
)

func TestTaskEntityRoundTrip(t *testing.T) {
	due := time.Date(2024, time.March, 8, 12, 0, 0, 0, time.UTC)
	created := time.Date(2024, time.March, 1, 9, 30, 0, 0, time.UTC)
	task := domain.Task{
		ID:          "t1",
		Title:       "Pay rent",
		Description: "transfer before the 5th",
		Completed:   false,
		Priority:    domain.PriorityHigh,
		DueDate:     &due,
		CategoryID:  "c1",
		Subtasks: []domain.Subtask{
			{ID: "s1", Title: "find invoice", Completed: true},
			{ID: "s2", Title: "wire money"},
		},
		Order:     3,
		CreatedAt: created,
		UpdatedAt: created,
	}

	got := newTaskEntity("u1", task).toTask()
	if got.ID != task.ID || got.Title != task.Title || got.Description != task.Description {
		t.Fatalf("identity fields lost: %+v", got)
	}
	if got.Priority != domain.PriorityHigh || got.Order != 3 || got.CategoryID != "c1" {
		t.Fatalf("attribute fields lost: %+v", got)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Fatalf("due date lost: %v", got.DueDate)
	}
	if !got.CreatedAt.Equal(created) || !got.UpdatedAt.Equal(created) {
		t.Fatalf("timestamps lost: %+v", got)
	}
	if len(got.Subtasks) != 2 || got.Subtasks[0].ID != "s1" || !got.Subtasks[0].Completed || got.Subtasks[1].Title != "wire money" {
		t.Fatalf("subtasks lost: %+v", got.Subtasks)
	}
}

func TestTaskEntityDefaults(t *testing.T) {
	ent := taskEntity{Title: "bare row"}
	ent.RowKey = "t1"

	got := ent.toTask()
	if got.Priority != domain.PriorityMedium {
		t.Fatalf("missing priority must default to medium, got %s", got.Priority)
	}
	if got.DueDate != nil {
		t.Fatalf("empty due date column must decode to nil, got %v", got.DueDate)
	}
	if got.Subtasks == nil || len(got.Subtasks) != 0 {
		t.Fatalf("missing subtasks must decode to an empty sequence, got %#v", got.Subtasks)
	}
}

func TestTaskPatchPropsSparse(t *testing.T) {
	title := "renamed"
	completed := true
	props := taskPatchProps("u1", "t1", domain.TaskPatch{Title: &title, Completed: &completed})

	if props["PartitionKey"] != "u1" || props["RowKey"] != "t1" {
		t.Fatalf("keys missing: %v", props)
	}
	if props["Title"] != "renamed" || props["Completed"] != true {
		t.Fatalf("patched fields missing: %v", props)
	}
	if _, ok := props["UpdatedAt"]; !ok {
		t.Fatal("merge must stamp UpdatedAt")
	}
	for _, absent := range []string{"Description", "Priority", "DueDate", "CategoryID", "Subtasks", "Order"} {
		if _, ok := props[absent]; ok {
			t.Fatalf("untouched field %s must stay out of the merge", absent)
		}
	}
}

func TestTaskPatchPropsClearDueDate(t *testing.T) {
	due := time.Date(2024, time.March, 8, 12, 0, 0, 0, time.UTC)
	props := taskPatchProps("u1", "t1", domain.TaskPatch{DueDate: &due, ClearDueDate: true})
	if props["DueDate"] != "" {
		t.Fatalf("clearing must win over a set date, got %v", props["DueDate"])
	}
}

func TestCategoryEntityRoundTrip(t *testing.T) {
	created := time.Date(2024, time.March, 1, 9, 30, 0, 0, time.UTC)
	category := domain.Category{ID: "c1", Name: "Work", Color: "#ef4444", Order: 2, CreatedAt: created}

	got := newCategoryEntity("u1", category).toCategory()
	if got.ID != category.ID || got.Name != category.Name || got.Color != category.Color || got.Order != category.Order {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("created timestamp lost: %v", got.CreatedAt)
	}
}
