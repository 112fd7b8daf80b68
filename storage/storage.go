package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"taskflow-api/domain"
	"taskflow-api/store"
)

// Storage persists the per-user task and category collections in Azure Table
// Storage. Every user is one partition, every document one row, so the order
// rewrite can ride a single entity-group transaction.
type Storage struct {
	taskTable     *aztables.Client
	categoryTable *aztables.Client
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, categoriesTable string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable:     svc.NewClient(tasksTable),
		categoryTable: svc.NewClient(categoriesTable),
	}, nil
}

// FetchTasks retrieves all tasks for the provided user.
func (s *Storage) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + userID + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, ent.toTask())
		}
	}
	return tasks, nil
}

// InsertTask writes a new task row.
func (s *Storage) InsertTask(ctx context.Context, userID string, task domain.Task) error {
	data, err := json.Marshal(newTaskEntity(userID, task))
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, data, nil)
	return err
}

// MergeTask merges the patch into the stored row and stamps UpdatedAt.
// Returns store.NotFoundError when the row does not exist.
func (s *Storage) MergeTask(ctx context.Context, userID, taskID string, patch domain.TaskPatch) error {
	data, err := json.Marshal(taskPatchProps(userID, taskID, patch))
	if err != nil {
		return err
	}
	_, err = s.taskTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge})
	if isStatus(err, http.StatusNotFound) {
		return store.NotFoundError{Kind: "task", ID: taskID}
	}
	return err
}

// DeleteTask removes the row. Deleting an absent row is not an error.
func (s *Storage) DeleteTask(ctx context.Context, userID, taskID string) error {
	_, err := s.taskTable.DeleteEntity(ctx, userID, taskID, nil)
	if isStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

// ApplyTaskOrders rewrites the order of every listed task in one entity-group
// transaction: either all rows persist the new order or none do.
func (s *Storage) ApplyTaskOrders(ctx context.Context, userID string, orders []store.TaskOrder) error {
	if len(orders) == 0 {
		return nil
	}
	now := time.Now().Format(time.RFC3339Nano)
	actions := make([]aztables.TransactionAction, 0, len(orders))
	for _, o := range orders {
		data, err := json.Marshal(map[string]any{
			"PartitionKey": userID,
			"RowKey":       o.TaskID,
			"Order":        o.Order,
			"UpdatedAt":    now,
		})
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeUpdateMerge,
			Entity:     data,
		})
	}
	_, err := s.taskTable.SubmitTransaction(ctx, actions, nil)
	return err
}

// FetchCategories retrieves all categories for the provided user.
func (s *Storage) FetchCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	filter := "PartitionKey eq '" + userID + "'"
	pager := s.categoryTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	categories := []domain.Category{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent categoryEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			categories = append(categories, ent.toCategory())
		}
	}
	return categories, nil
}

// InsertCategory writes a new category row.
func (s *Storage) InsertCategory(ctx context.Context, userID string, category domain.Category) error {
	data, err := json.Marshal(newCategoryEntity(userID, category))
	if err != nil {
		return err
	}
	_, err = s.categoryTable.AddEntity(ctx, data, nil)
	return err
}

// MergeCategory merges the patch into the stored row.
func (s *Storage) MergeCategory(ctx context.Context, userID, categoryID string, patch domain.CategoryPatch) error {
	props := map[string]any{
		"PartitionKey": userID,
		"RowKey":       categoryID,
	}
	if patch.Name != nil {
		props["Name"] = *patch.Name
	}
	if patch.Color != nil {
		props["Color"] = *patch.Color
	}
	data, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.categoryTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge})
	if isStatus(err, http.StatusNotFound) {
		return store.NotFoundError{Kind: "category", ID: categoryID}
	}
	return err
}

// DeleteCategory removes the row. Tasks referencing the category are left
// untouched; their dangling reference is tolerated by the view layer.
func (s *Storage) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	_, err := s.categoryTable.DeleteEntity(ctx, userID, categoryID, nil)
	if isStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

func isStatus(err error, status int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == status
}
