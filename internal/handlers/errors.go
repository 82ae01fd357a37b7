package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/scriptdesk/internal/domain"
	"github.com/nfrund/scriptdesk/internal/middleware"
)

var errorStatus = map[error]struct {
	status int
	code   string
}{
	domain.ErrInvalidRequest:   {http.StatusBadRequest, "INVALID_REQUEST"},
	domain.ErrPermissionDenied: {http.StatusForbidden, "PERMISSION_DENIED"},
	domain.ErrNotFound:         {http.StatusNotFound, "NOT_FOUND"},
	domain.ErrConflict:         {http.StatusConflict, "CONFLICT"},
	domain.ErrPersistence:      {http.StatusInternalServerError, "PERSISTENCE"},
	domain.ErrSubmission:       {http.StatusBadGateway, "SUBMISSION_FAILED"},
	domain.ErrRemote:           {http.StatusBadGateway, "REMOTE_ERROR"},
}

// StatusOf returns the HTTP status and error code for err.
func StatusOf(err error) (int, string) {
	if s, ok := errorStatus[domain.KindOf(err)]; ok {
		return s.status, s.code
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, http.StatusText(he.Code)
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// HTTPErrorHandler renders every error as an ErrorResponse.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	ctx := c.Request().Context()
	status, code := StatusOf(err)

	msg := domain.UserMessage(err)
	var he *echo.HTTPError
	if domain.KindOf(err) == nil && errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(he.Code)
		}
	}

	logger := middleware.FromContext(ctx)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "Request failed", "event", "request_failed", "status", status, "error", err)
	} else {
		logger.DebugContext(ctx, "Request rejected", "event", "request_rejected", "status", status, "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, ErrorResponse{Code: code, Message: msg})
	}
	if err != nil {
		logger.ErrorContext(ctx, "Failed to write error response", "event", "error_response_failed", "error", err)
	}
}
