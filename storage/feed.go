package storage

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const changeChannelPrefix = "taskflow:changes:"

// ChangeFeed carries per-user change signals over Redis pub/sub. Writers
// publish after a document write; live subscriptions refetch the full
// collection on every signal.
type ChangeFeed struct {
	redis *redis.Client
	log   *log.Logger
}

// NewChangeFeed creates a feed over the given Redis client.
func NewChangeFeed(client *redis.Client, logger *log.Logger) *ChangeFeed {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &ChangeFeed{redis: client, log: logger}
}

type changeEvent struct {
	EntityType string `json:"entityType"`
}

// Publish signals that one of the user's collections changed. Failures are
// logged and swallowed: the document write already succeeded and the
// subscriber's next signal will carry the same full state.
func (f *ChangeFeed) Publish(ctx context.Context, userID, entityType string) {
	payload, err := json.Marshal(changeEvent{EntityType: entityType})
	if err != nil {
		return
	}
	if err := f.redis.Publish(ctx, changeChannelPrefix+userID, payload).Err(); err != nil {
		f.log.WithFields(log.Fields{"user": userID, "error": err}).Error("publish change failed")
	}
}

// Subscribe implements store.Feed. The returned channel delivers one empty
// signal per published change, coalescing bursts, and closes when the
// subscription stops.
func (f *ChangeFeed) Subscribe(ctx context.Context, userID string) (<-chan struct{}, func(), error) {
	sub := f.redis.Subscribe(ctx, changeChannelPrefix+userID)
	// Force the subscription to establish so a publish racing with Subscribe
	// is not lost silently.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	signals := make(chan struct{}, 1)
	go func() {
		defer close(signals)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case signals <- struct{}{}:
				default:
				}
			}
		}
	}()

	stop := func() { _ = sub.Close() }
	return signals, stop, nil
}
