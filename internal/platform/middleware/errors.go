package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorResponse is the JSON body written for errors raised by this package
// and by the HTTP error handler.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(c echo.Context, status int, msg string) error {
	rid, _ := c.Get(RequestIDKey).(string)
	return c.JSON(status, ErrorResponse{Error: msg, RequestID: rid})
}

// ErrorHandler replaces echo's default error handler so every error body has
// the ErrorResponse shape.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he, ok := err.(*echo.HTTPError)
	if !ok {
		he = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	msg, ok := he.Message.(string)
	if !ok {
		msg = "request failed"
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(he.Code)
		return
	}
	_ = writeError(c, he.Code, msg)
}
