package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/robgonnella/hashwatch/internal/exception"
	"github.com/robgonnella/hashwatch/internal/logger"
	"github.com/robgonnella/hashwatch/internal/miner"
)

// Error codes returned in error responses
const (
	ErrBadParameter        = "bad-parameter"
	ErrEntityNotFound      = "not-found"
	ErrConflict            = "conflict"
	ErrDeviceRejected      = "device-rejected"
	ErrDeviceUnavailable   = "device-unavailable"
	ErrInternalServerError = "internal"
)

// Error is the body of every failed request
type Error struct {
	Code    string `json:"code"`
	Class   string `json:"class,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ErrResponse from server
type ErrResponse struct {
	Error *Error `json:"error"`
}

func badParameter(message string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, message)
}

// HTTPErrorHandler maps service errors to status codes and a json body
type HTTPErrorHandler struct {
	log logger.Logger
}

// NewHTTPErrorHandler returns a new HTTPErrorHandler
func NewHTTPErrorHandler() *HTTPErrorHandler {
	return &HTTPErrorHandler{
		log: logger.New().Component("api"),
	}
}

// Handler handles errors returned by echo handlers
func (h *HTTPErrorHandler) Handler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := toResponse(err)

	if status >= http.StatusInternalServerError {
		h.log.Error().
			Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Msg("request failed")
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}

	_ = c.JSON(status, ErrResponse{Error: body})
}

func toResponse(err error) (int, *Error) {
	var he *echo.HTTPError
	var validationErr *miner.ValidationError
	var settingsErr *miner.SettingsError
	var connErr *miner.ConnectError
	var fetchErr *miner.FetchError

	switch {
	case errors.As(err, &he):
		code := ErrInternalServerError

		switch {
		case he.Code == http.StatusNotFound:
			code = ErrEntityNotFound
		case he.Code < http.StatusInternalServerError:
			code = ErrBadParameter
		}

		message, ok := he.Message.(string)

		if !ok {
			message = http.StatusText(he.Code)
		}

		return he.Code, &Error{Code: code, Message: message}
	case errors.As(err, &validationErr):
		status := http.StatusBadRequest
		code := ErrBadParameter

		if errors.Is(validationErr.Code, exception.ErrDuplicateID) {
			status = http.StatusConflict
			code = ErrConflict
		}

		return status, &Error{
			Code:    code,
			Class:   validationErr.Code.Error(),
			Field:   validationErr.Field,
			Message: validationErr.Message,
		}
	case errors.Is(err, exception.ErrRecordNotFound), errors.Is(err, exception.ErrScanNotFound):
		return http.StatusNotFound, &Error{Code: ErrEntityNotFound, Message: err.Error()}
	case errors.As(err, &settingsErr):
		return http.StatusUnprocessableEntity, &Error{
			Code:    ErrDeviceRejected,
			Class:   miner.ErrorClass(err),
			Field:   settingsErr.Param,
			Message: err.Error(),
		}
	case errors.As(err, &connErr), errors.As(err, &fetchErr):
		return http.StatusBadGateway, &Error{
			Code:    ErrDeviceUnavailable,
			Class:   miner.ErrorClass(err),
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, &Error{
			Code:    ErrInternalServerError,
			Message: "an internal server error has occurred",
		}
	}
}
