package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"taskflow-api/domain"
	"taskflow-api/store"
)

// Entity type labels carried on change signals.
const (
	EntityTasks      = "tasks"
	EntityCategories = "categories"
)

// Cache wraps a backend with Redis-backed caching for the fetch operations
// and publishes a change signal after every successful write. Reads come
// from the cache when fresh; every write evicts the affected key so the
// next refetch hits the tables.
type Cache struct {
	base  store.Backend
	redis *redis.Client
	feed  *ChangeFeed
	ttl   time.Duration
}

// NewCache creates a caching backend wrapper using the provided Redis client
// and TTL. A nil feed disables change publishing.
func NewCache(base store.Backend, client *redis.Client, feed *ChangeFeed, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{
		base:  base,
		redis: client,
		feed:  feed,
		ttl:   ttl,
	}
}

func (c *Cache) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	if tasks, ok := c.loadTasksFromCache(ctx, userID); ok {
		return tasks, nil
	}

	tasks, err := c.base.FetchTasks(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.storeTasks(ctx, userID, tasks)
	return tasks, nil
}

func (c *Cache) FetchCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	if categories, ok := c.loadCategoriesFromCache(ctx, userID); ok {
		return categories, nil
	}

	categories, err := c.base.FetchCategories(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.storeCategories(ctx, userID, categories)
	return categories, nil
}

func (c *Cache) InsertTask(ctx context.Context, userID string, task domain.Task) error {
	if err := c.base.InsertTask(ctx, userID, task); err != nil {
		return err
	}
	c.evictTasks(ctx, userID)
	return nil
}

func (c *Cache) MergeTask(ctx context.Context, userID, taskID string, patch domain.TaskPatch) error {
	if err := c.base.MergeTask(ctx, userID, taskID, patch); err != nil {
		return err
	}
	c.evictTasks(ctx, userID)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, userID, taskID string) error {
	if err := c.base.DeleteTask(ctx, userID, taskID); err != nil {
		return err
	}
	c.evictTasks(ctx, userID)
	return nil
}

func (c *Cache) ApplyTaskOrders(ctx context.Context, userID string, orders []store.TaskOrder) error {
	if err := c.base.ApplyTaskOrders(ctx, userID, orders); err != nil {
		return err
	}
	c.evictTasks(ctx, userID)
	return nil
}

func (c *Cache) InsertCategory(ctx context.Context, userID string, category domain.Category) error {
	if err := c.base.InsertCategory(ctx, userID, category); err != nil {
		return err
	}
	c.evictCategories(ctx, userID)
	return nil
}

func (c *Cache) MergeCategory(ctx context.Context, userID, categoryID string, patch domain.CategoryPatch) error {
	if err := c.base.MergeCategory(ctx, userID, categoryID, patch); err != nil {
		return err
	}
	c.evictCategories(ctx, userID)
	return nil
}

func (c *Cache) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	if err := c.base.DeleteCategory(ctx, userID, categoryID); err != nil {
		return err
	}
	c.evictCategories(ctx, userID)
	return nil
}

func (c *Cache) loadTasksFromCache(ctx context.Context, userID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) loadCategoriesFromCache(ctx context.Context, userID string) ([]domain.Category, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, categoriesCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, categoriesCacheKey(userID)).Err()
		}
		return nil, false
	}
	var categories []domain.Category
	if err := json.Unmarshal(data, &categories); err != nil {
		_ = c.redis.Del(ctx, categoriesCacheKey(userID)).Err()
		return nil, false
	}
	return categories, true
}

func (c *Cache) storeTasks(ctx context.Context, userID string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, tasksCacheKey(userID), data, c.ttl).Err()
}

func (c *Cache) storeCategories(ctx context.Context, userID string, categories []domain.Category) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(categories)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, categoriesCacheKey(userID), data, c.ttl).Err()
}

func (c *Cache) evictTasks(ctx context.Context, userID string) {
	if c.redis != nil {
		_, _ = c.redis.Del(ctx, tasksCacheKey(userID)).Result()
	}
	if c.feed != nil {
		c.feed.Publish(ctx, userID, EntityTasks)
	}
}

func (c *Cache) evictCategories(ctx context.Context, userID string) {
	if c.redis != nil {
		_, _ = c.redis.Del(ctx, categoriesCacheKey(userID)).Result()
	}
	if c.feed != nil {
		c.feed.Publish(ctx, userID, EntityCategories)
	}
}

func tasksCacheKey(userID string) string {
	return "tasks:" + userID
}

func categoriesCacheKey(userID string) string {
	return "categories:" + userID
}
