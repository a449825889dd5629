package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/tasklist/internal/errs"
	"github.com/and161185/tasklist/internal/wire"
)

// SignUp creates an account and returns a session.
func (s *Server) SignUp(c *gin.Context) {
	var req wire.Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, wire.Error{Code: wire.CodeValidationFailed, Message: "bad request body"})
		return
	}
	sess, err := s.auth.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.authError(c, err, wire.CodeValidationFailed)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// Token handles the password and refresh_token grants.
func (s *Server) Token(c *gin.Context) {
	switch c.Query("grant_type") {
	case wire.GrantPassword:
		var req wire.Credentials
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, wire.Error{Code: wire.CodeValidationFailed, Message: "bad request body"})
			return
		}
		sess, err := s.auth.SignInWithPassword(c.Request.Context(), req.Email, req.Password, c.ClientIP())
		if err != nil {
			s.authError(c, err, wire.CodeInvalidCredentials)
			return
		}
		c.JSON(http.StatusOK, sess)

	case wire.GrantRefreshToken:
		var req wire.RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, wire.Error{Code: wire.CodeValidationFailed, Message: "bad request body"})
			return
		}
		sess, err := s.auth.Refresh(c.Request.Context(), req.RefreshToken)
		if err != nil {
			s.authError(c, err, wire.CodeRefreshTokenNotFound)
			return
		}
		c.JSON(http.StatusOK, sess)

	default:
		c.JSON(http.StatusBadRequest, wire.Error{Code: wire.CodeUnsupportedGrantType, Message: "unsupported grant_type"})
	}
}

// Logout revokes the caller's refresh tokens.
func (s *Server) Logout(c *gin.Context) {
	uid, _ := UserIDFromCtx(c.Request.Context())
	if err := s.auth.SignOut(c.Request.Context(), uid); err != nil {
		s.authError(c, err, wire.CodeBadJWT)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetUser returns the caller.
func (s *Server) GetUser(c *gin.Context) {
	uid, _ := UserIDFromCtx(c.Request.Context())
	u, err := s.auth.User(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			// token outlived its account
			c.JSON(http.StatusUnauthorized, wire.Error{Code: wire.CodeBadJWT, Message: "user not found"})
			return
		}
		s.authError(c, err, wire.CodeBadJWT)
		return
	}
	c.JSON(http.StatusOK, u)
}

// authError maps service errors to auth API responses; unauthorizedCode names the 4xx for ErrUnauthorized.
func (s *Server) authError(c *gin.Context, err error, unauthorizedCode string) {
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, wire.Error{Code: wire.CodeValidationFailed, Message: err.Error()})
	case errors.Is(err, errs.ErrAlreadyExists):
		c.JSON(http.StatusUnprocessableEntity, wire.Error{Code: wire.CodeUserAlreadyExists, Message: "user already registered"})
	case errors.Is(err, errs.ErrRateLimited):
		s.metrics.rateLimited()
		c.JSON(http.StatusTooManyRequests, wire.Error{Code: wire.CodeOverRequestRateLimit, Message: "too many attempts, try later"})
	case errors.Is(err, errs.ErrUnauthorized):
		status := http.StatusBadRequest
		if unauthorizedCode == wire.CodeBadJWT {
			status = http.StatusUnauthorized
		}
		c.JSON(status, wire.Error{Code: unauthorizedCode, Message: "invalid credentials"})
	default:
		s.log.Error("auth", zap.String("route", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, wire.Error{Code: wire.CodeUnexpectedFailure, Message: "internal"})
	}
}
