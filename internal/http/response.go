package http

import (
	"errors"
	"net/http"

	"github.com/jmehdipour/sms-relay/internal/apperr"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type errorBody struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

func success(c echo.Context, kv map[string]any) error {
	body := map[string]any{"status": "success"}
	for k, v := range kv {
		body[k] = v
	}
	return c.JSON(http.StatusOK, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorBody{Status: "error", Message: msg})
}

// fail maps the error taxonomy to a status code. Storage details stay in the log.
func (s *Server) fail(c echo.Context, err error) error {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, errorBody{Status: "error", Message: ve.Message, Fields: ve.Fields})
	case errors.Is(err, apperr.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorBody{Status: "error", Message: "not found"})
	default:
		s.log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(err),
		)
		return c.JSON(http.StatusInternalServerError, errorBody{Status: "error", Message: "internal storage error"})
	}
}

// httpErrorHandler renders echo's own errors (404 route, 413 body limit, ...) in the relay envelope.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	} else {
		s.log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, errorBody{Status: "error", Message: msg})
}
