package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"prism-board/board-api/board"
	"prism-board/domain"
)

const maxBodySize = 64 << 10

// Register wires up all board routes on the provided Echo instance.
func Register(e *echo.Echo, svc BoardService, auth Authenticator, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	h := &handlers{svc: svc, logger: logger}
	e.GET("/healthz", healthz)

	g := e.Group("/api", MetricsMiddleware(logger), DecompressBodies(), RequireAuth(auth))
	g.GET("/projects/:projectId/board", h.getBoard)
	g.GET("/projects/:projectId/tasks", h.getTasks)
	g.POST("/columns", h.postColumn)
	g.PATCH("/columns/move", h.moveColumn)
	g.DELETE("/columns/:id", h.deleteColumn)
	g.POST("/items", h.postItem)
	g.PATCH("/items/move", h.moveItem)
	g.PATCH("/items/:id", h.patchItem)
	g.DELETE("/items/:id", h.deleteItem)
	g.POST("/tasks", h.postTask)
	g.PATCH("/tasks/:id", h.patchTask)
	g.DELETE("/tasks/:id", h.deleteTask)
}

type handlers struct {
	svc    BoardService
	logger *log.Logger
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (h *handlers) getBoard(c echo.Context) error {
	projectID := c.Param("projectId")
	metricsFrom(c).SetProject(projectID)
	start := time.Now()
	b, err := h.svc.Board(c.Request().Context(), projectID)
	metricsFrom(c).ObserveStore(time.Since(start))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *handlers) getTasks(c echo.Context) error {
	projectID := c.Param("projectId")
	metricsFrom(c).SetProject(projectID)
	start := time.Now()
	tasks, err := h.svc.Tasks(c.Request().Context(), projectID)
	metricsFrom(c).ObserveStore(time.Since(start))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, domain.TasksResponse{Tasks: tasks})
}

func (h *handlers) postColumn(c echo.Context) error {
	var req domain.CreateColumnRequest
	if err := decodeBody(c, &req); err != nil {
		return h.badBody(c, err)
	}
	metricsFrom(c).SetProject(req.ProjectID)
	col, err := h.svc.CreateColumn(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, col)
}

func (h *handlers) moveColumn(c echo.Context) error {
	var req domain.MoveColumnRequest
	if err := decodeBody(c, &req); err != nil {
		return h.badBody(c, err)
	}
	cols, err := h.svc.MoveColumn(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, columnsResponse{Columns: cols})
}

func (h *handlers) deleteColumn(c echo.Context) error {
	if err := h.svc.DeleteColumn(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) postItem(c echo.Context) error {
	var req domain.PlaceItemRequest
	if err := decodeBody(c, &req); err != nil {
		return h.badBody(c, err)
	}
	metricsFrom(c).SetProject(req.ProjectID)
	it, err := h.svc.PlaceItem(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, it)
}

func (h *handlers) moveItem(c echo.Context) error {
	var req domain.MoveItemRequest
	if err := decodeBody(c, &req); err != nil {
		return h.badBody(c, err)
	}
	it, err := h.svc.MoveItem(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, it)
}

func (h *handlers) patchItem(c echo.Context) error {
	var req domain.UpdateItemRequest
	if err := decodeBody(c, &req); err != nil {
		return h.badBody(c, err)
	}
	it, err := h.svc.UpdateItem(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, it)
}

func (h *handlers) deleteItem(c echo.Context) error {
	if err := h.svc.DeleteItem(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) postTask(c echo.Context) error {
	var req domain.CreateTaskRequest
	if err := decodeBody(c, &req); err != nil {
		return h.badBody(c, err)
	}
	metricsFrom(c).SetProject(req.ProjectID)
	task, err := h.svc.CreateTask(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, task)
}

func (h *handlers) patchTask(c echo.Context) error {
	var req domain.UpdateTaskRequest
	if err := decodeBody(c, &req); err != nil {
		return h.badBody(c, err)
	}
	task, err := h.svc.UpdateTask(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

func (h *handlers) deleteTask(c echo.Context) error {
	if err := h.svc.DeleteTask(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// decodeBody reads a JSON body of bounded size, rejecting unknown fields.
func decodeBody(c echo.Context, dst any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (h *handlers) badBody(c echo.Context, err error) error {
	metricsFrom(c).SetErrorStage("decode")
	h.logger.WithError(err).WithField("route", c.Path()).Debug("invalid request body")
	return c.String(http.StatusBadRequest, "invalid body")
}

// fail maps service errors onto HTTP statuses.
func (h *handlers) fail(c echo.Context, err error) error {
	m := metricsFrom(c)
	switch {
	case errors.Is(err, domain.ErrInvalid):
		m.SetErrorStage("validation")
		return c.String(http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		m.SetErrorStage("not_found")
		return c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, board.ErrDuplicateIntent):
		m.SetErrorStage("duplicate_intent")
		return c.String(http.StatusConflict, err.Error())
	default:
		m.SetErrorStage("storage")
		h.logger.WithError(err).WithFields(log.Fields{
			"route":  c.Path(),
			"method": c.Request().Method,
		}).Error("board request failed")
		return c.String(http.StatusInternalServerError, "internal error")
	}
}
