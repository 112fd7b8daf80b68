package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"taskflow-api/domain"
	"taskflow-api/store"
)

type stubBackend struct {
	fetchTasksFn      func(ctx context.Context, userID string) ([]domain.Task, error)
	insertTaskFn      func(ctx context.Context, userID string, task domain.Task) error
	mergeTaskFn       func(ctx context.Context, userID, taskID string, patch domain.TaskPatch) error
	deleteTaskFn      func(ctx context.Context, userID, taskID string) error
	applyOrdersFn     func(ctx context.Context, userID string, orders []store.TaskOrder) error
	fetchCategoriesFn func(ctx context.Context, userID string) ([]domain.Category, error)
	insertCategoryFn  func(ctx context.Context, userID string, category domain.Category) error
	mergeCategoryFn   func(ctx context.Context, userID, categoryID string, patch domain.CategoryPatch) error
	deleteCategoryFn  func(ctx context.Context, userID, categoryID string) error
}

func (s *stubBackend) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	if s.fetchTasksFn == nil {
		return nil, errors.New("unexpected FetchTasks call")
	}
	return s.fetchTasksFn(ctx, userID)
}

func (s *stubBackend) InsertTask(ctx context.Context, userID string, task domain.Task) error {
	if s.insertTaskFn == nil {
		return errors.New("unexpected InsertTask call")
	}
	return s.insertTaskFn(ctx, userID, task)
}

func (s *stubBackend) MergeTask(ctx context.Context, userID, taskID string, patch domain.TaskPatch) error {
	if s.mergeTaskFn == nil {
		return errors.New("unexpected MergeTask call")
	}
	return s.mergeTaskFn(ctx, userID, taskID, patch)
}

func (s *stubBackend) DeleteTask(ctx context.Context, userID, taskID string) error {
	if s.deleteTaskFn == nil {
		return errors.New("unexpected DeleteTask call")
	}
	return s.deleteTaskFn(ctx, userID, taskID)
}

func (s *stubBackend) ApplyTaskOrders(ctx context.Context, userID string, orders []store.TaskOrder) error {
	if s.applyOrdersFn == nil {
		return errors.New("unexpected ApplyTaskOrders call")
	}
	return s.applyOrdersFn(ctx, userID, orders)
}

func (s *stubBackend) FetchCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	if s.fetchCategoriesFn == nil {
		return nil, errors.New("unexpected FetchCategories call")
	}
	return s.fetchCategoriesFn(ctx, userID)
}

func (s *stubBackend) InsertCategory(ctx context.Context, userID string, category domain.Category) error {
	if s.insertCategoryFn == nil {
		return errors.New("unexpected InsertCategory call")
	}
	return s.insertCategoryFn(ctx, userID, category)
}

func (s *stubBackend) MergeCategory(ctx context.Context, userID, categoryID string, patch domain.CategoryPatch) error {
	if s.mergeCategoryFn == nil {
		return errors.New("unexpected MergeCategory call")
	}
	return s.mergeCategoryFn(ctx, userID, categoryID, patch)
}

func (s *stubBackend) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	if s.deleteCategoryFn == nil {
		return errors.New("unexpected DeleteCategory call")
	}
	return s.deleteCategoryFn(ctx, userID, categoryID)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheFetchTasksMissThenHit(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	userID := "user-1"
	expected := []domain.Task{{ID: "t1", Title: "Write code", Subtasks: []domain.Subtask{}}}

	var calls int
	cache := NewCache(&stubBackend{
		fetchTasksFn: func(ctx context.Context, uid string) ([]domain.Task, error) {
			calls++
			if uid != userID {
				t.Fatalf("unexpected user id: %s", uid)
			}
			return append([]domain.Task(nil), expected...), nil
		},
	}, client, nil, time.Minute)

	tasks, err := cache.FetchTasks(ctx, userID)
	if err != nil {
		t.Fatalf("fetch tasks: %v", err)
	}
	if !reflect.DeepEqual(tasks, expected) {
		t.Fatalf("unexpected tasks: %#v", tasks)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call to backend, got %d", calls)
	}
	if ttl := mr.TTL(tasksCacheKey(userID)); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	// Second fetch is served from the cache.
	tasks, err = cache.FetchTasks(ctx, userID)
	if err != nil {
		t.Fatalf("fetch tasks (cached): %v", err)
	}
	if !reflect.DeepEqual(tasks, expected) {
		t.Fatalf("unexpected cached tasks: %#v", tasks)
	}
	if calls != 1 {
		t.Fatalf("cached fetch must not hit the backend, got %d calls", calls)
	}
}

func TestCacheWriteEvictsAndRepublishes(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	userID := "user-1"

	cache := NewCache(&stubBackend{
		fetchTasksFn: func(ctx context.Context, uid string) ([]domain.Task, error) {
			return []domain.Task{}, nil
		},
		insertTaskFn: func(ctx context.Context, uid string, task domain.Task) error {
			return nil
		},
	}, client, nil, time.Minute)

	if _, err := cache.FetchTasks(ctx, userID); err != nil {
		t.Fatalf("fetch tasks: %v", err)
	}
	if !mr.Exists(tasksCacheKey(userID)) {
		t.Fatal("fetch must populate the cache")
	}

	if err := cache.InsertTask(ctx, userID, domain.Task{ID: "t1", Title: "x"}); err != nil {
		t.Fatalf("insert task: %v", err)
	}
	if mr.Exists(tasksCacheKey(userID)) {
		t.Fatal("a write must evict the cached list")
	}
}

func TestCacheWriteErrorSkipsEviction(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	userID := "user-1"
	boom := errors.New("table unavailable")

	cache := NewCache(&stubBackend{
		fetchCategoriesFn: func(ctx context.Context, uid string) ([]domain.Category, error) {
			return []domain.Category{{ID: "c1", Name: "Work"}}, nil
		},
		deleteCategoryFn: func(ctx context.Context, uid, id string) error {
			return boom
		},
	}, client, nil, time.Minute)

	if _, err := cache.FetchCategories(ctx, userID); err != nil {
		t.Fatalf("fetch categories: %v", err)
	}
	if err := cache.DeleteCategory(ctx, userID, "c1"); !errors.Is(err, boom) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if !mr.Exists(categoriesCacheKey(userID)) {
		t.Fatal("failed write must not evict the cache")
	}
}

func TestChangeFeedDeliversCoalescedSignals(t *testing.T) {
	_, client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewChangeFeed(client, nil)
	signals, stop, err := feed.Subscribe(ctx, "user-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	feed.Publish(ctx, "user-1", EntityTasks)
	select {
	case <-signals:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change signal")
	}

	// Another user's channel stays quiet.
	feed.Publish(ctx, "user-2", EntityTasks)
	select {
	case <-signals:
		t.Fatal("received a signal published for another user")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCacheInsertPublishesChange(t *testing.T) {
	_, client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewChangeFeed(client, nil)
	signals, stop, err := feed.Subscribe(ctx, "user-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	cache := NewCache(&stubBackend{
		insertTaskFn: func(ctx context.Context, uid string, task domain.Task) error {
			return nil
		},
	}, client, feed, time.Minute)

	if err := cache.InsertTask(ctx, "user-1", domain.Task{ID: "t1", Title: "x"}); err != nil {
		t.Fatalf("insert task: %v", err)
	}
	select {
	case <-signals:
	case <-time.After(2 * time.Second):
		t.Fatal("insert must publish a change signal")
	}
}
