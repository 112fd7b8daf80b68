package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskflow-api/domain"
)

// TaskStore opens live task subscriptions against the document backend.
type TaskStore struct {
	backend Backend
	feed    Feed
	log     *log.Logger
}

// NewTaskStore creates a TaskStore.
func NewTaskStore(backend Backend, feed Feed, logger *log.Logger) *TaskStore {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &TaskStore{backend: backend, feed: feed, log: logger}
}

// TaskInput is the payload for creating a task.
type TaskInput struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Priority    domain.Priority  `json:"priority"`
	DueDate     *time.Time       `json:"dueDate"`
	CategoryID  string           `json:"categoryId"`
	Subtasks    []domain.Subtask `json:"subtasks"`
	Order       *int             `json:"order"`
}

// TaskSubscription is a live view over one user's tasks. The held snapshot is
// authoritative and fully replaced on every feed signal; writes go to the
// backend and become visible only when the feed delivers the change.
type TaskSubscription struct {
	store  *TaskStore
	userID string

	mu     sync.Mutex
	tasks  []domain.Task
	err    error
	closed bool

	updates chan []domain.Task
	stop    func()
	done    chan struct{}
}

// Subscribe opens a live subscription for the given user. An empty userID
// yields an inert subscription: empty snapshot, no updates, every write
// failing with ErrUnauthenticated. The caller must Close the subscription;
// Close is safe to call multiple times.
func (s *TaskStore) Subscribe(ctx context.Context, userID string) *TaskSubscription {
	sub := &TaskSubscription{
		store:   s,
		userID:  userID,
		tasks:   []domain.Task{},
		updates: make(chan []domain.Task, 1),
		done:    make(chan struct{}),
	}
	if userID == "" {
		close(sub.done)
		sub.closed = true
		return sub
	}

	ctx, cancel := context.WithCancel(ctx)
	signals, stopFeed, err := s.feed.Subscribe(ctx, userID)
	if err != nil {
		s.log.WithFields(log.Fields{"user": userID, "error": err}).Error("task feed subscribe failed")
		sub.setError(SyncError{Op: "subscribe", Err: err})
		cancel()
		close(sub.done)
		sub.closed = true
		return sub
	}
	sub.stop = func() {
		stopFeed()
		cancel()
	}

	sub.refresh(ctx)
	go sub.run(ctx, signals)
	return sub
}

func (sub *TaskSubscription) run(ctx context.Context, signals <-chan struct{}) {
	defer close(sub.done)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signals:
			if !ok {
				return
			}
			sub.refresh(ctx)
		}
	}
}

// refresh replaces the in-memory snapshot with the full authoritative state.
func (sub *TaskSubscription) refresh(ctx context.Context) {
	tasks, err := sub.store.backend.FetchTasks(ctx, sub.userID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		sub.store.log.WithFields(log.Fields{"user": sub.userID, "error": err}).Error("fetch tasks failed")
		sub.mu.Lock()
		sub.tasks = []domain.Task{}
		sub.err = SyncError{Op: "fetch tasks", Err: err}
		sub.mu.Unlock()
		sub.publish(nil)
		return
	}
	domain.SortTasks(tasks)

	sub.mu.Lock()
	sub.tasks = tasks
	sub.err = nil
	closed := sub.closed
	sub.mu.Unlock()
	if !closed {
		sub.publish(tasks)
	}
}

// publish hands the latest snapshot to the updates channel, replacing any
// undelivered one so a slow consumer only ever sees the newest state.
func (sub *TaskSubscription) publish(tasks []domain.Task) {
	snapshot := make([]domain.Task, len(tasks))
	copy(snapshot, tasks)
	for {
		select {
		case sub.updates <- snapshot:
			return
		default:
			select {
			case <-sub.updates:
			default:
			}
		}
	}
}

// Updates delivers full snapshots, newest wins.
func (sub *TaskSubscription) Updates() <-chan []domain.Task { return sub.updates }

// Done is closed once the subscription has fully stopped.
func (sub *TaskSubscription) Done() <-chan struct{} { return sub.done }

// Snapshot returns a copy of the current in-memory task list.
func (sub *TaskSubscription) Snapshot() []domain.Task {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	out := make([]domain.Task, len(sub.tasks))
	copy(out, sub.tasks)
	return out
}

// Err returns the store-level error flag: the last subscription or write
// failure, cleared by the next successful refresh.
func (sub *TaskSubscription) Err() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.err
}

// Close tears the subscription down. Safe to call multiple times; writes
// resolving after Close must not panic.
func (sub *TaskSubscription) Close() {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.closed = true
	stop := sub.stop
	sub.mu.Unlock()
	if stop != nil {
		stop()
	}
	<-sub.done
}

func (sub *TaskSubscription) setError(err error) {
	sub.mu.Lock()
	sub.err = err
	sub.mu.Unlock()
}

func (sub *TaskSubscription) writeFailed(err error) error {
	// NotFound is the caller's problem, not a sync failure.
	if !IsNotFound(err) {
		sub.setError(err)
	}
	return err
}

// Add validates and persists a new task, returning it with its generated id.
// The live list reflects it once the feed delivers the change.
func (sub *TaskSubscription) Add(ctx context.Context, input TaskInput) (domain.Task, error) {
	if sub.userID == "" {
		return domain.Task{}, ErrUnauthenticated
	}
	if strings.TrimSpace(input.Title) == "" {
		return domain.Task{}, ValidationError{Field: "title", Reason: "must not be empty"}
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		return domain.Task{}, ValidationError{Field: "priority", Reason: "must be low, medium or high"}
	}

	task := domain.Task{
		ID:          uuid.NewString(),
		Title:       input.Title,
		Description: input.Description,
		Priority:    priority,
		CategoryID:  input.CategoryID,
		Subtasks:    input.Subtasks,
		CreatedAt:   time.Now(),
	}
	if task.Subtasks == nil {
		task.Subtasks = []domain.Subtask{}
	}
	for i := range task.Subtasks {
		if task.Subtasks[i].ID == "" {
			task.Subtasks[i].ID = uuid.NewString()
		}
	}
	if input.DueDate != nil {
		due := domain.NoonOf(*input.DueDate)
		task.DueDate = &due
	}
	if input.Order != nil {
		task.Order = *input.Order
	} else {
		task.Order = len(sub.Snapshot())
	}

	if err := sub.store.backend.InsertTask(ctx, sub.userID, task); err != nil {
		return domain.Task{}, sub.writeFailed(SyncError{Op: "add task", Err: err})
	}
	return task, nil
}

// Update merges the patch into the stored task and stamps updatedAt. Returns
// NotFoundError when the id is absent from the user's collection.
func (sub *TaskSubscription) Update(ctx context.Context, taskID string, patch domain.TaskPatch) error {
	if sub.userID == "" {
		return ErrUnauthenticated
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return ValidationError{Field: "priority", Reason: "must be low, medium or high"}
	}
	if patch.DueDate != nil {
		due := domain.NoonOf(*patch.DueDate)
		patch.DueDate = &due
	}
	if err := sub.store.backend.MergeTask(ctx, sub.userID, taskID, patch); err != nil {
		if IsNotFound(err) {
			return err
		}
		return sub.writeFailed(SyncError{Op: "update task", Err: err})
	}
	return nil
}

// Delete removes the task. Deleting an id that no longer exists is not an
// error.
func (sub *TaskSubscription) Delete(ctx context.Context, taskID string) error {
	if sub.userID == "" {
		return ErrUnauthenticated
	}
	if err := sub.store.backend.DeleteTask(ctx, sub.userID, taskID); err != nil {
		return sub.writeFailed(SyncError{Op: "delete task", Err: err})
	}
	return nil
}

// ToggleComplete flips the completed flag read from the in-memory snapshot.
// Unknown ids are a no-op; the server is never consulted for the current
// value.
func (sub *TaskSubscription) ToggleComplete(ctx context.Context, taskID string) error {
	task, ok := sub.find(taskID)
	if !ok {
		if sub.userID == "" {
			return ErrUnauthenticated
		}
		return nil
	}
	completed := !task.Completed
	return sub.Update(ctx, taskID, domain.TaskPatch{Completed: &completed})
}

// Reorder persists order=i for the task at each position as one atomic
// batch.
func (sub *TaskSubscription) Reorder(ctx context.Context, ordered []domain.Task) error {
	if sub.userID == "" {
		return ErrUnauthenticated
	}
	if len(ordered) == 0 {
		return nil
	}
	orders := make([]TaskOrder, len(ordered))
	for i, t := range ordered {
		orders[i] = TaskOrder{TaskID: t.ID, Order: i}
	}
	if err := sub.store.backend.ApplyTaskOrders(ctx, sub.userID, orders); err != nil {
		return sub.writeFailed(SyncError{Op: "reorder tasks", Err: err})
	}
	return nil
}

// Move applies a drag of visible[source] onto visible[target]: the sequence
// is renumbered 0..N-1 and persisted atomically. Tasks outside the visible
// sequence keep their orders. source == target issues no write.
func (sub *TaskSubscription) Move(ctx context.Context, visible []domain.Task, source, target int) error {
	if sub.userID == "" {
		return ErrUnauthenticated
	}
	moved, ok := domain.MoveTask(visible, source, target)
	if !ok {
		return nil
	}
	return sub.Reorder(ctx, domain.Renumber(moved))
}

// AddSubtask appends a subtask with a fresh id and persists the whole
// sequence. Unknown task ids are a no-op.
func (sub *TaskSubscription) AddSubtask(ctx context.Context, taskID, title string) error {
	task, ok := sub.find(taskID)
	if !ok {
		if sub.userID == "" {
			return ErrUnauthenticated
		}
		return nil
	}
	if strings.TrimSpace(title) == "" {
		return ValidationError{Field: "title", Reason: "must not be empty"}
	}
	subtasks := domain.AppendSubtask(task.Subtasks, title)
	return sub.Update(ctx, taskID, domain.TaskPatch{Subtasks: &subtasks})
}

// ToggleSubtask flips the matching subtask and persists the whole sequence.
func (sub *TaskSubscription) ToggleSubtask(ctx context.Context, taskID, subtaskID string) error {
	task, ok := sub.find(taskID)
	if !ok {
		if sub.userID == "" {
			return ErrUnauthenticated
		}
		return nil
	}
	subtasks := domain.ToggleSubtask(task.Subtasks, subtaskID)
	return sub.Update(ctx, taskID, domain.TaskPatch{Subtasks: &subtasks})
}

// DeleteSubtask removes the matching subtask and persists the whole
// sequence.
func (sub *TaskSubscription) DeleteSubtask(ctx context.Context, taskID, subtaskID string) error {
	task, ok := sub.find(taskID)
	if !ok {
		if sub.userID == "" {
			return ErrUnauthenticated
		}
		return nil
	}
	subtasks := domain.RemoveSubtask(task.Subtasks, subtaskID)
	return sub.Update(ctx, taskID, domain.TaskPatch{Subtasks: &subtasks})
}

func (sub *TaskSubscription) find(taskID string) (domain.Task, bool) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	for _, t := range sub.tasks {
		if t.ID == taskID {
			return t, true
		}
	}
	return domain.Task{}, false
}
