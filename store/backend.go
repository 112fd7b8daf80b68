package store

import (
	"context"

	"taskflow-api/domain"
)

// TaskOrder is one entry of an atomic order rewrite.
type TaskOrder struct {
	TaskID string
	Order  int
}

// Backend abstracts the per-user document collections. Implementations must
// make ApplyTaskOrders atomic: either every order persists or none does.
// MergeTask and MergeCategory return NotFoundError when the target document
// does not exist; deletes are idempotent.
type Backend interface {
	FetchTasks(ctx context.Context, userID string) ([]domain.Task, error)
	InsertTask(ctx context.Context, userID string, task domain.Task) error
	MergeTask(ctx context.Context, userID, taskID string, patch domain.TaskPatch) error
	DeleteTask(ctx context.Context, userID, taskID string) error
	ApplyTaskOrders(ctx context.Context, userID string, orders []TaskOrder) error

	FetchCategories(ctx context.Context, userID string) ([]domain.Category, error)
	InsertCategory(ctx context.Context, userID string, category domain.Category) error
	MergeCategory(ctx context.Context, userID, categoryID string, patch domain.CategoryPatch) error
	DeleteCategory(ctx context.Context, userID, categoryID string) error
}

// Feed delivers change signals for a user's collections. A signal means "the
// authoritative state may have changed, refetch it"; it carries no payload so
// subscribers always replace rather than patch.
type Feed interface {
	// Subscribe returns a signal channel and a stop function. The channel is
	// closed after stop is called or the context ends.
	Subscribe(ctx context.Context, userID string) (<-chan struct{}, func(), error)
}
