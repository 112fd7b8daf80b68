package storage

import (
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"taskflow-api/domain"
)

// taskEntity is the table row shape of a task. Optional timestamps are empty
// strings, the subtask sequence is one JSON property.
type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Completed   bool   `json:"Completed"`
	Priority    string `json:"Priority"`
	DueDate     string `json:"DueDate"`
	CategoryID  string `json:"CategoryID"`
	Subtasks    string `json:"Subtasks"`
	Order       int    `json:"Order"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

func newTaskEntity(userID string, task domain.Task) taskEntity {
	ent := taskEntity{
		Entity:      aztables.Entity{PartitionKey: userID, RowKey: task.ID},
		Title:       task.Title,
		Description: task.Description,
		Completed:   task.Completed,
		Priority:    string(task.Priority),
		CategoryID:  task.CategoryID,
		Order:       task.Order,
		CreatedAt:   formatTime(task.CreatedAt),
		UpdatedAt:   formatTime(task.UpdatedAt),
		Subtasks:    encodeSubtasks(task.Subtasks),
	}
	if task.DueDate != nil {
		ent.DueDate = formatTime(*task.DueDate)
	}
	return ent
}

func (e taskEntity) toTask() domain.Task {
	task := domain.Task{
		ID:          e.RowKey,
		Title:       e.Title,
		Description: e.Description,
		Completed:   e.Completed,
		Priority:    domain.Priority(e.Priority),
		CategoryID:  e.CategoryID,
		Subtasks:    decodeSubtasks(e.Subtasks),
		Order:       e.Order,
		CreatedAt:   parseTime(e.CreatedAt),
		UpdatedAt:   parseTime(e.UpdatedAt),
	}
	if e.Priority == "" {
		task.Priority = domain.PriorityMedium
	}
	if e.DueDate != "" {
		if due, err := time.Parse(time.RFC3339Nano, e.DueDate); err == nil {
			task.DueDate = &due
		}
	}
	return task
}

// taskPatchProps builds the sparse merge-update property map for a patch.
func taskPatchProps(userID, taskID string, patch domain.TaskPatch) map[string]any {
	props := map[string]any{
		"PartitionKey": userID,
		"RowKey":       taskID,
		"UpdatedAt":    formatTime(time.Now()),
	}
	if patch.Title != nil {
		props["Title"] = *patch.Title
	}
	if patch.Description != nil {
		props["Description"] = *patch.Description
	}
	if patch.Completed != nil {
		props["Completed"] = *patch.Completed
	}
	if patch.Priority != nil {
		props["Priority"] = string(*patch.Priority)
	}
	if patch.ClearDueDate {
		props["DueDate"] = ""
	} else if patch.DueDate != nil {
		props["DueDate"] = formatTime(*patch.DueDate)
	}
	if patch.CategoryID != nil {
		props["CategoryID"] = *patch.CategoryID
	}
	if patch.Subtasks != nil {
		props["Subtasks"] = encodeSubtasks(*patch.Subtasks)
	}
	if patch.Order != nil {
		props["Order"] = *patch.Order
	}
	return props
}

type categoryEntity struct {
	aztables.Entity
	Name      string `json:"Name"`
	Color     string `json:"Color"`
	Order     int    `json:"Order"`
	CreatedAt string `json:"CreatedAt"`
}

func newCategoryEntity(userID string, category domain.Category) categoryEntity {
	return categoryEntity{
		Entity:    aztables.Entity{PartitionKey: userID, RowKey: category.ID},
		Name:      category.Name,
		Color:     category.Color,
		Order:     category.Order,
		CreatedAt: formatTime(category.CreatedAt),
	}
}

func (e categoryEntity) toCategory() domain.Category {
	return domain.Category{
		ID:        e.RowKey,
		Name:      e.Name,
		Color:     e.Color,
		Order:     e.Order,
		CreatedAt: parseTime(e.CreatedAt),
	}
}

func encodeSubtasks(subtasks []domain.Subtask) string {
	if len(subtasks) == 0 {
		return "[]"
	}
	data, err := sonic.Marshal(subtasks)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeSubtasks(raw string) []domain.Subtask {
	subtasks := []domain.Subtask{}
	if raw == "" {
		return subtasks
	}
	if err := sonic.UnmarshalString(raw, &subtasks); err != nil {
		return []domain.Subtask{}
	}
	return subtasks
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
