package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskflow-api/domain"
	"taskflow-api/store"
)

const mutationMaxSize = 64 * 1024 // 64 KiB

const dateLayout = "2006-01-02"

type server struct {
	sessions Sessions
	auth     Authenticator
	deduper  Deduper
	broker   *streamBroker
	notifier *Notifier
	log      *log.Logger

	mu    sync.Mutex
	pumps map[*store.Session]struct{}
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, sessions Sessions, auth Authenticator, deduper Deduper, logger *log.Logger) {
	broker := newStreamBroker()
	s := &server{
		sessions: sessions,
		auth:     auth,
		deduper:  deduper,
		broker:   broker,
		notifier: NewNotifier(broker),
		log:      logger,
		pumps:    make(map[*store.Session]struct{}),
	}

	e.GET("/api/tasks", s.getTasks)
	e.POST("/api/tasks", s.postTask)
	e.PATCH("/api/tasks/:id", s.patchTask)
	e.DELETE("/api/tasks/:id", s.deleteTask)
	e.POST("/api/tasks/:id/toggle", s.toggleTask)
	e.POST("/api/tasks/:id/schedule", s.scheduleTask)
	e.POST("/api/tasks/reorder", s.reorderTasks)
	e.POST("/api/tasks/:id/subtasks", s.postSubtask)
	e.POST("/api/tasks/:id/subtasks/:subtaskId/toggle", s.toggleSubtask)
	e.DELETE("/api/tasks/:id/subtasks/:subtaskId", s.deleteSubtask)

	e.GET("/api/categories", s.getCategories)
	e.POST("/api/categories", s.postCategory)
	e.PATCH("/api/categories/:id", s.patchCategory)
	e.DELETE("/api/categories/:id", s.deleteCategory)

	e.GET("/api/calendar", s.getCalendar)
	e.GET("/api/stream", s.streamEvents)
	e.GET("/healthz", s.healthz)
}

func (s *server) healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// session authenticates the request and returns the user's live session,
// making sure its update pump is running.
func (s *server) session(c echo.Context) (string, *store.Session, error) {
	userID, err := s.auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return "", nil, err
	}
	sess := s.sessions.Session(userID)
	s.ensurePump(userID, sess)
	return userID, sess, nil
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, mutationMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// writeStoreError maps store error kinds onto HTTP statuses.
func writeStoreError(c echo.Context, err error) error {
	var validationErr store.ValidationError
	var syncErr store.SyncError
	switch {
	case errors.Is(err, store.ErrUnauthenticated):
		return c.String(http.StatusUnauthorized, err.Error())
	case store.IsNotFound(err):
		return c.String(http.StatusNotFound, err.Error())
	case errors.As(err, &validationErr):
		return c.String(http.StatusBadRequest, err.Error())
	case errors.As(err, &syncErr):
		c.Logger().Error(err)
		return c.String(http.StatusBadGateway, err.Error())
	default:
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
}

func parseFilter(category, query, status, priority, due string) (domain.Filter, error) {
	f := domain.Filter{
		CategoryID: category,
		Query:      query,
		Status:     domain.StatusFilter(status),
		Priority:   domain.Priority(priority),
		Due:        domain.DueFilter(due),
	}
	switch f.Status {
	case "", domain.StatusAll, domain.StatusActive, domain.StatusCompleted:
	default:
		return domain.Filter{}, errors.New("invalid status filter")
	}
	switch f.Due {
	case "", domain.DueAll, domain.DueToday, domain.DueWeek, domain.DueOverdue, domain.DueNoDate:
	default:
		return domain.Filter{}, errors.New("invalid due filter")
	}
	if priority != "" && priority != "all" && !f.Priority.Valid() {
		return domain.Filter{}, errors.New("invalid priority filter")
	}
	if priority == "all" {
		f.Priority = ""
	}
	return f, nil
}

func filterFromQuery(c echo.Context) (domain.Filter, error) {
	return parseFilter(
		c.QueryParam("category"),
		c.QueryParam("q"),
		strings.ToLower(c.QueryParam("status")),
		strings.ToLower(c.QueryParam("priority")),
		strings.ToLower(c.QueryParam("due")),
	)
}

type tasksResponse struct {
	Tasks     []domain.Task `json:"tasks"`
	SyncError bool          `json:"syncError"`
}

func (s *server) getTasks(c echo.Context) (err error) {
	ctx := c.Request().Context()
	metrics, spanCtx := newRequestMetrics(ctx, s.log, "/api/tasks")
	c.SetRequest(c.Request().WithContext(spanCtx))
	defer func() {
		metrics.Log(c.Response().Status, err)
	}()

	authStart := time.Now()
	_, sess, authErr := s.session(c)
	metrics.ObserveAuth(time.Since(authStart))
	if authErr != nil {
		metrics.SetErrorStage("auth")
		err = c.String(http.StatusUnauthorized, authErr.Error())
		return err
	}

	filter, filterErr := filterFromQuery(c)
	if filterErr != nil {
		metrics.SetErrorStage("invalid_filter")
		err = c.String(http.StatusBadRequest, filterErr.Error())
		return err
	}

	loadStart := time.Now()
	visible := filter.Apply(sess.Tasks.Snapshot(), time.Now())
	metrics.ObserveLoad(time.Since(loadStart))
	metrics.SetTasksReturned(len(visible))

	resp := tasksResponse{Tasks: visible, SyncError: sess.Tasks.Err() != nil}
	encodeStart := time.Now()
	err = c.JSON(http.StatusOK, resp)
	metrics.ObserveEncode(time.Since(encodeStart))
	if err != nil {
		metrics.SetErrorStage("encode_response")
	}
	return err
}

func (s *server) getCalendar(c echo.Context) error {
	_, sess, err := s.session(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}

	granularity := domain.GranularityMonth
	switch view := strings.ToLower(c.QueryParam("view")); view {
	case "", string(domain.GranularityMonth):
	case string(domain.GranularityWeek):
		granularity = domain.GranularityWeek
	default:
		return c.String(http.StatusBadRequest, "invalid view")
	}

	now := time.Now()
	ref := now
	if raw := c.QueryParam("date"); raw != "" {
		parsed, parseErr := time.ParseInLocation(dateLayout, raw, now.Location())
		if parseErr != nil {
			return c.String(http.StatusBadRequest, "invalid date")
		}
		ref = parsed
	}

	tasks := sess.Tasks.Snapshot()
	if category := c.QueryParam("category"); category != "" {
		tasks = domain.Filter{CategoryID: category}.Apply(tasks, now)
	}

	return c.JSON(http.StatusOK, domain.BuildGrid(granularity, ref, now, tasks))
}

// dedupe consumes the Idempotency-Key header. It returns false when the key
// was already seen, meaning the mutation must be suppressed. The returned
// release func forgets the key again so a failed mutation can be retried.
func (s *server) dedupe(c echo.Context, userID string) (fresh bool, release func()) {
	key := strings.TrimSpace(c.Request().Header.Get("Idempotency-Key"))
	if key == "" || s.deduper == nil {
		return true, func() {}
	}
	ctx := c.Request().Context()
	added, err := s.deduper.Add(ctx, userID, key)
	if err != nil {
		// Deduper outages must not block writes.
		s.log.WithFields(log.Fields{"user": userID, "error": err}).Warn("deduper unavailable")
		return true, func() {}
	}
	if !added {
		return false, nil
	}
	return true, func() { _ = s.deduper.Remove(ctx, userID, key) }
}

func (s *server) postTask(c echo.Context) error {
	userID, sess, err := s.session(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}

	var input store.TaskInput
	if err := decodeBody(c, &input); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}

	fresh, release := s.dedupe(c, userID)
	if !fresh {
		return c.NoContent(http.StatusAccepted)
	}

	task, err := sess.Tasks.Add(c.Request().Context(), input)
	if err != nil {
		release()
		return writeStoreError(c, err)
	}
	s.notifier.Push(userID, ToastSuccess, "Task added")
	return c.JSON(http.StatusCreated, task)
}

func (s *server) patchTask(c echo.Context) error {
	_, sess, err := s.session(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}

	var patch domain.TaskPatch
	if err := decodeBody(c, &patch); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}

	if err := sess.Tasks.Update(c.Request().Context(), c.Param("id"), patch); err != nil {
		return writeStoreError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *server) deleteTask(c echo.Context) error {
	userID, sess, err := s.session(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	if err := sess.Tasks.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return writeStoreError(c, err)
	}
	s.notifier.Push(userID, ToastInfo, "Task deleted")
	return c.NoContent(http.StatusNoContent)
}

func (s *server) toggleTask(c echo.Context) error {
	_, sess, err := s.session(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	if err := sess.Tasks.ToggleComplete(c.Request().Context(), c.Param("id")); err != nil {
		return writeStoreError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type scheduleRequest struct {
	Date string `json:"date"`
}

func (s *server) scheduleTask(c echo.Context) error {
	_, sess, err := s.session(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}

	var req scheduleRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}

	var patch domain.TaskPatch
	if req.Date == "" {
		patch.ClearDueDate = true
	} else {
		day, parseErr := time.ParseInLocation(dateLayout, req.Date, time.Now().Location())
		if parseErr != nil {
			return c.String(http.StatusBadRequest, "invalid date")
		}
		patch = domain.Reschedule(day)
	}

	if err := sess.Tasks.Update(c.Request().Context(), c.Param("id"), patch); err != nil {
		return writeStoreError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type reorderRequest struct {
	From     int    `json:"from"`
	To       int    `json:"to"`
	Category string `json:"category,omitempty"`
	Query    string `json:"q,omitempty"`
	Status   string `json:"status,omitempty"`
	Priority string `json:"priority,omitempty"`
	Due      string `json:"due,omitempty"`
}

// reorderTasks moves a task within the currently visible list. The request
// carries the active filter so the indices land on the same list the client
// was dragging in.
func (s *server) reorderTasks(c echo.Context) error {
	_, sess, err := s.session(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}

	var req reorderRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	filter, filterErr := parseFilter(req.Category, req.Query, strings.ToLower(req.Status), strings.ToLower(req.Priority), strings.ToLower(req.Due))
	if filterErr != nil {
		return c.String(http.StatusBadRequest, filterErr.Error())
	}

	visible := filter.Apply(sess.Tasks.Snapshot(), time.Now())
	if err := sess.Tasks.Move(c.Request().Context(), visible, req.From, req.To); err != nil {
		return writeStoreError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type subtaskRequest struct {
	Title string `json:"title"`
}

func (s *server) postSubtask(c echo.Context) error {
	_, sess, err := s.session(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}

	var req subtaskRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.Title) == "" {
		return c.String(http.StatusBadRequest, "subtask title must not be empty")
	}

	if err := sess.Tasks.AddSubtask(c.Request().Context(), c.Param("id"), req.Title); err != nil {
		return writeStoreError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *server) toggleSubtask(c echo.Context) error {
	_, sess, err := s.session(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	if err := sess.Tasks.ToggleSubtask(c.Request().Context(), c.Param("id"), c.Param("subtaskId")); err != nil {
		return writeStoreError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *server) deleteSubtask(c echo.Context) error {
	_, sess, err := s.session(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	if err := sess.Tasks.DeleteSubtask(c.Request().Context(), c.Param("id"), c.Param("subtaskId")); err != nil {
		return writeStoreError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type categoriesResponse struct {
	Categories []domain.Category `json:"categories"`
	SyncError  bool              `json:"syncError"`
}

func (s *server) getCategories(c echo.Context) error {
	_, sess, err := s.session(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	resp := categoriesResponse{
		Categories: sess.Categories.Snapshot(),
		SyncError:  sess.Categories.Err() != nil,
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *server) postCategory(c echo.Context) error {
	userID, sess, err := s.session(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}

	var input store.CategoryInput
	if err := decodeBody(c, &input); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}

	fresh, release := s.dedupe(c, userID)
	if !fresh {
		return c.NoContent(http.StatusAccepted)
	}

	category, err := sess.Categories.Add(c.Request().Context(), input)
	if err != nil {
		release()
		return writeStoreError(c, err)
	}
	return c.JSON(http.StatusCreated, category)
}

func (s *server) patchCategory(c echo.Context) error {
	_, sess, err := s.session(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}

	var patch domain.CategoryPatch
	if err := decodeBody(c, &patch); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}

	if err := sess.Categories.Update(c.Request().Context(), c.Param("id"), patch); err != nil {
		return writeStoreError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *server) deleteCategory(c echo.Context) error {
	userID, sess, err := s.session(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	if err := sess.Categories.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return writeStoreError(c, err)
	}
	s.notifier.Push(userID, ToastInfo, "Category deleted")
	return c.NoContent(http.StatusNoContent)
}
