package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/tasklist/internal/errs"
	"github.com/and161185/tasklist/internal/model"
	"github.com/and161185/tasklist/internal/wire"
)

// GetProfile returns a single profile row.
func (s *Server) GetProfile(c *gin.Context) {
	uid, _ := UserIDFromCtx(c.Request.Context())
	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, wire.Error{Code: wire.CodeInvalidTextRepr, Message: "bad id"})
		return
	}
	p, err := s.tables.GetProfile(c.Request.Context(), uid, id)
	if err != nil {
		s.tableError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// InsertProfile creates the caller's profile row.
func (s *Server) InsertProfile(c *gin.Context) {
	uid, _ := UserIDFromCtx(c.Request.Context())
	var p model.Profile
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, wire.Error{Code: wire.CodeInvalidTextRepr, Message: "bad request body"})
		return
	}
	out, err := s.tables.InsertProfile(c.Request.Context(), uid, p)
	if err != nil {
		s.tableError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// ListTodos returns the caller's todos, newest first.
func (s *Server) ListTodos(c *gin.Context) {
	uid, _ := UserIDFromCtx(c.Request.Context())
	ts, err := s.tables.ListTodos(c.Request.Context(), uid)
	if err != nil {
		s.tableError(c, err)
		return
	}
	if ts == nil {
		ts = []model.Task{}
	}
	c.JSON(http.StatusOK, ts)
}

// InsertTodo creates a todo.
func (s *Server) InsertTodo(c *gin.Context) {
	uid, _ := UserIDFromCtx(c.Request.Context())
	var nt model.NewTask
	if err := c.ShouldBindJSON(&nt); err != nil {
		c.JSON(http.StatusBadRequest, wire.Error{Code: wire.CodeInvalidTextRepr, Message: "bad request body"})
		return
	}
	t, err := s.tables.InsertTodo(c.Request.Context(), uid, nt)
	if err != nil {
		s.tableError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// UpdateTodo applies a partial update.
func (s *Server) UpdateTodo(c *gin.Context) {
	uid, _ := UserIDFromCtx(c.Request.Context())
	id, ok := todoID(c)
	if !ok {
		return
	}
	var p model.TaskPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, wire.Error{Code: wire.CodeInvalidTextRepr, Message: "bad request body"})
		return
	}
	t, err := s.tables.UpdateTodo(c.Request.Context(), uid, id, p)
	if errors.Is(err, errs.ErrNotFound) {
		c.JSON(http.StatusNotFound, wire.Error{Code: wire.CodeNoRows, Message: "no rows updated"})
		return
	}
	if err != nil {
		s.tableError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// DeleteTodo removes a todo. Deleting a missing row succeeds.
func (s *Server) DeleteTodo(c *gin.Context) {
	uid, _ := UserIDFromCtx(c.Request.Context())
	id, ok := todoID(c)
	if !ok {
		return
	}
	if err := s.tables.DeleteTodo(c.Request.Context(), uid, id); err != nil {
		s.tableError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func todoID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, wire.Error{Code: wire.CodeInvalidTextRepr, Message: "bad id"})
		return 0, false
	}
	return id, true
}

// tableError maps service errors to table API responses.
func (s *Server) tableError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotAcceptable, wire.Error{
			Code:    wire.CodeNoRows,
			Message: "JSON object requested, multiple (or no) rows returned",
			Details: "The result contains 0 rows",
		})
	case errors.Is(err, errs.ErrAlreadyExists):
		c.JSON(http.StatusConflict, wire.Error{Code: wire.CodeUniqueViolation, Message: "duplicate key value violates unique constraint"})
	case errors.Is(err, errs.ErrForbidden):
		c.JSON(http.StatusForbidden, wire.Error{Code: wire.CodeInsufficientPriv, Message: "new row violates row-level security policy"})
	case errors.Is(err, errs.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, wire.Error{Code: wire.CodeCheckViolation, Message: err.Error()})
	case errors.Is(err, errs.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, wire.Error{Code: wire.CodeJWTInvalid, Message: "unauthorized"})
	default:
		s.log.Error("table", zap.String("route", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, wire.Error{Code: wire.CodeInternal, Message: "internal"})
	}
}
