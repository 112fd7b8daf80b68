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

// CategoryStore opens live category subscriptions. Categories mirror the
// task contract at reduced scope: no reorder, append-only ordering, and no
// cascade when a referenced category is deleted.
type CategoryStore struct {
	backend Backend
	feed    Feed
	log     *log.Logger
}

// NewCategoryStore creates a CategoryStore.
func NewCategoryStore(backend Backend, feed Feed, logger *log.Logger) *CategoryStore {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &CategoryStore{backend: backend, feed: feed, log: logger}
}

// CategoryInput is the payload for creating a category.
type CategoryInput struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// CategorySubscription is a live view over one user's categories.
type CategorySubscription struct {
	store  *CategoryStore
	userID string

	mu         sync.Mutex
	categories []domain.Category
	err        error
	closed     bool

	updates chan []domain.Category
	stop    func()
	done    chan struct{}
}

// Subscribe opens a live subscription for the given user; an empty userID
// yields an inert subscription whose writes fail with ErrUnauthenticated.
func (s *CategoryStore) Subscribe(ctx context.Context, userID string) *CategorySubscription {
	sub := &CategorySubscription{
		store:      s,
		userID:     userID,
		categories: []domain.Category{},
		updates:    make(chan []domain.Category, 1),
		done:       make(chan struct{}),
	}
	if userID == "" {
		close(sub.done)
		sub.closed = true
		return sub
	}

	ctx, cancel := context.WithCancel(ctx)
	signals, stopFeed, err := s.feed.Subscribe(ctx, userID)
	if err != nil {
		s.log.WithFields(log.Fields{"user": userID, "error": err}).Error("category feed subscribe failed")
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

func (sub *CategorySubscription) run(ctx context.Context, signals <-chan struct{}) {
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

func (sub *CategorySubscription) refresh(ctx context.Context) {
	categories, err := sub.store.backend.FetchCategories(ctx, sub.userID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		sub.store.log.WithFields(log.Fields{"user": sub.userID, "error": err}).Error("fetch categories failed")
		sub.mu.Lock()
		sub.categories = []domain.Category{}
		sub.err = SyncError{Op: "fetch categories", Err: err}
		sub.mu.Unlock()
		sub.publish(nil)
		return
	}
	domain.SortCategories(categories)

	sub.mu.Lock()
	sub.categories = categories
	sub.err = nil
	sub.mu.Unlock()
	sub.publish(categories)
}

func (sub *CategorySubscription) publish(categories []domain.Category) {
	snapshot := make([]domain.Category, len(categories))
	copy(snapshot, categories)
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
func (sub *CategorySubscription) Updates() <-chan []domain.Category { return sub.updates }

// Done is closed once the subscription has fully stopped.
func (sub *CategorySubscription) Done() <-chan struct{} { return sub.done }

// Snapshot returns a copy of the current in-memory category list.
func (sub *CategorySubscription) Snapshot() []domain.Category {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	out := make([]domain.Category, len(sub.categories))
	copy(out, sub.categories)
	return out
}

// Err returns the store-level error flag.
func (sub *CategorySubscription) Err() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.err
}

// Close tears the subscription down; safe to call multiple times.
func (sub *CategorySubscription) Close() {
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

func (sub *CategorySubscription) setError(err error) {
	sub.mu.Lock()
	sub.err = err
	sub.mu.Unlock()
}

// Add persists a new category. The color defaults to the palette entry for
// the current count and the order appends at the end.
func (sub *CategorySubscription) Add(ctx context.Context, input CategoryInput) (domain.Category, error) {
	if sub.userID == "" {
		return domain.Category{}, ErrUnauthenticated
	}
	if strings.TrimSpace(input.Name) == "" {
		return domain.Category{}, ValidationError{Field: "name", Reason: "must not be empty"}
	}

	count := len(sub.Snapshot())
	category := domain.Category{
		ID:        uuid.NewString(),
		Name:      input.Name,
		Color:     input.Color,
		Order:     count,
		CreatedAt: time.Now(),
	}
	if category.Color == "" {
		category.Color = domain.PaletteColor(count)
	}

	if err := sub.store.backend.InsertCategory(ctx, sub.userID, category); err != nil {
		wrapped := SyncError{Op: "add category", Err: err}
		sub.setError(wrapped)
		return domain.Category{}, wrapped
	}
	return category, nil
}

// Update merges the patch into the stored category.
func (sub *CategorySubscription) Update(ctx context.Context, categoryID string, patch domain.CategoryPatch) error {
	if sub.userID == "" {
		return ErrUnauthenticated
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if err := sub.store.backend.MergeCategory(ctx, sub.userID, categoryID, patch); err != nil {
		if IsNotFound(err) {
			return err
		}
		wrapped := SyncError{Op: "update category", Err: err}
		sub.setError(wrapped)
		return wrapped
	}
	return nil
}

// Delete removes the category. Tasks referencing it keep their dangling
// categoryId and simply render uncategorized.
func (sub *CategorySubscription) Delete(ctx context.Context, categoryID string) error {
	if sub.userID == "" {
		return ErrUnauthenticated
	}
	if err := sub.store.backend.DeleteCategory(ctx, sub.userID, categoryID); err != nil {
		wrapped := SyncError{Op: "delete category", Err: err}
		sub.setError(wrapped)
		return wrapped
	}
	return nil
}
