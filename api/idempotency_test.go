package api

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newDeduperRedis(t *testing.T) *redis.Client {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})
	return client
}

func TestRedisDeduperAddThenDuplicate(t *testing.T) {
	deduper := NewRedisDeduper(newDeduperRedis(t), time.Minute)
	ctx := context.Background()

	added, err := deduper.Add(ctx, "user", "k1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !added {
		t.Fatal("expected key to be newly added")
	}

	added, err = deduper.Add(ctx, "user", "k1")
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if added {
		t.Fatal("expected duplicate key to be rejected")
	}
}

func TestRedisDeduperRemoveAllowsRetry(t *testing.T) {
	deduper := NewRedisDeduper(newDeduperRedis(t), time.Minute)
	ctx := context.Background()

	if _, err := deduper.Add(ctx, "user", "k1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := deduper.Remove(ctx, "user", "k1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	added, err := deduper.Add(ctx, "user", "k1")
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if !added {
		t.Fatal("removed key must be addable again")
	}
}

func TestRedisDeduperNamespacesUsers(t *testing.T) {
	deduper := NewRedisDeduper(newDeduperRedis(t), time.Minute)
	ctx := context.Background()

	if _, err := deduper.Add(ctx, "user-a", "k1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	added, err := deduper.Add(ctx, "user-b", "k1")
	if err != nil {
		t.Fatalf("add other user: %v", err)
	}
	if !added {
		t.Fatal("same key for another user must be independent")
	}
}
