package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"taskflow-api/domain"
	"taskflow-api/store"
)

type streamClient struct {
	updates chan struct{}
	toasts  chan Toast
}

// streamBroker fans change signals and toasts out to every stream client a
// user has open. Update signals coalesce; toasts are dropped when a client
// cannot keep up.
type streamBroker struct {
	mu      sync.Mutex
	clients map[string]map[*streamClient]struct{}
}

func newStreamBroker() *streamBroker {
	return &streamBroker{clients: make(map[string]map[*streamClient]struct{})}
}

func (b *streamBroker) subscribe(userID string) *streamClient {
	c := &streamClient{
		updates: make(chan struct{}, 1),
		toasts:  make(chan Toast, 8),
	}
	b.mu.Lock()
	if b.clients[userID] == nil {
		b.clients[userID] = make(map[*streamClient]struct{})
	}
	b.clients[userID][c] = struct{}{}
	b.mu.Unlock()
	return c
}

func (b *streamBroker) unsubscribe(userID string, c *streamClient) {
	b.mu.Lock()
	if subs := b.clients[userID]; subs != nil {
		delete(subs, c)
		if len(subs) == 0 {
			delete(b.clients, userID)
		}
	}
	b.mu.Unlock()
}

func (b *streamBroker) notify(userID string) {
	b.mu.Lock()
	for c := range b.clients[userID] {
		select {
		case c.updates <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

func (b *streamBroker) toast(userID string, t Toast) {
	b.mu.Lock()
	for c := range b.clients[userID] {
		select {
		case c.toasts <- t:
		default:
		}
	}
	b.mu.Unlock()
}

// snapshotEvent is the payload of every stream snapshot frame.
type snapshotEvent struct {
	Tasks      []domain.Task     `json:"tasks"`
	Categories []domain.Category `json:"categories"`
	SyncError  bool              `json:"syncError"`
}

// pump forwards a session's store updates into the broker until the session
// subscriptions stop. One pump runs per live session.
func (s *server) pump(userID string, sess *store.Session) {
	for {
		select {
		case <-sess.Tasks.Done():
			s.mu.Lock()
			delete(s.pumps, sess)
			s.mu.Unlock()
			return
		case <-sess.Tasks.Updates():
			s.broker.notify(userID)
		case <-sess.Categories.Updates():
			s.broker.notify(userID)
		}
	}
}

func (s *server) ensurePump(userID string, sess *store.Session) {
	s.mu.Lock()
	if _, running := s.pumps[sess]; !running {
		s.pumps[sess] = struct{}{}
		go s.pump(userID, sess)
	}
	s.mu.Unlock()
}

// streamEvents serves the SSE feed: a snapshot frame on every store change
// and toast frames in between.
func (s *server) streamEvents(c echo.Context) error {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if token := c.QueryParam("token"); authHeader == "" && token != "" {
		authHeader = "Bearer " + token
	}
	userID, err := s.auth.UserIDFromAuthHeader(authHeader)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}

	sess := s.sessions.Session(userID)
	s.ensurePump(userID, sess)
	client := s.broker.subscribe(userID)
	defer s.broker.unsubscribe(userID, client)

	ctx := c.Request().Context()
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		ev := snapshotEvent{
			Tasks:      sess.Tasks.Snapshot(),
			Categories: sess.Categories.Snapshot(),
			SyncError:  sess.Tasks.Err() != nil || sess.Categories.Err() != nil,
		}
		if err := writeSSE(c, flusher, "snapshot", ev); err != nil {
			return nil
		}
	wait:
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-client.updates:
				break wait
			case t := <-client.toasts:
				if err := writeSSE(c, flusher, "toast", t); err != nil {
					return nil
				}
			case <-heartbeat.C:
				if _, err := c.Response().Write([]byte(": keep-alive\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}

func writeSSE(c echo.Context, flusher http.Flusher, event string, payload any) error {
	data, err := sonic.Marshal(payload)
	if err != nil {
		c.Logger().Error(err)
		return err
	}
	if _, err := c.Response().Write([]byte("event: " + event + "\ndata: ")); err != nil {
		return err
	}
	if _, err := c.Response().Write(data); err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
