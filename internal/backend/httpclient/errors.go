package httpclient

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/and161185/tasklist/internal/backend"
	"github.com/and161185/tasklist/internal/errs"
	"github.com/and161185/tasklist/internal/wire"
)

// StatusError is a table API failure with no matching sentinel.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: %d %s: %s", e.Status, e.Code, e.Message)
}

func envelope(status int, body []byte) wire.Error {
	var we wire.Error
	if err := json.Unmarshal(body, &we); err != nil || (we.Code == "" && we.Message == "") {
		we = wire.Error{Message: http.StatusText(status)}
	}
	return we
}

func authError(status int, body []byte) error {
	we := envelope(status, body)
	ae := &backend.AuthError{Status: status, Code: we.Code, Message: we.Message}
	switch {
	case status == http.StatusUnauthorized,
		we.Code == wire.CodeInvalidCredentials,
		we.Code == wire.CodeRefreshTokenNotFound,
		we.Code == wire.CodeBadJWT:
		ae.Err = errs.ErrUnauthorized
	case we.Code == wire.CodeUserAlreadyExists:
		ae.Err = errs.ErrAlreadyExists
	case status == http.StatusTooManyRequests:
		ae.Err = errs.ErrRateLimited
	case we.Code == wire.CodeValidationFailed:
		ae.Err = errs.ErrInvalidInput
	}
	return ae
}

// tableError translates backend codes into sentinels so callers never branch on code strings.
func tableError(status int, body []byte) error {
	we := envelope(status, body)
	var sentinel error
	switch {
	case we.Code == wire.CodeNoRows:
		sentinel = errs.ErrNotFound
	case we.Code == wire.CodeUniqueViolation:
		sentinel = errs.ErrAlreadyExists
	case status == http.StatusUnauthorized:
		sentinel = errs.ErrUnauthorized
	case status == http.StatusForbidden:
		sentinel = errs.ErrForbidden
	case we.Code == wire.CodeCheckViolation:
		sentinel = errs.ErrInvalidInput
	}
	if sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, we.Message)
	}
	return &StatusError{Status: status, Code: we.Code, Message: we.Message}
}
