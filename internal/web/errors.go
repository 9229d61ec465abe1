package web

// errors.go maps service errors to HTTP responses.
//
// Every error is:
//   - logged with the technical detail and request id
//   - mapped through core.MapError to a message, action and support code
//   - written as {error, message, action, code} with a status from statusFor

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/rowstore/internal/core"
	"github.com/JonMunkholm/rowstore/internal/logging"
)

var (
	errRouteNotFound    = errors.New("route not found")
	errMethodNotAllowed = errors.New("method not allowed")
	errRateLimited      = errors.New("rate limit exceeded")
	errInvalidAliasList = errors.New("invalid alias list")
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for a service error.
func statusFor(err error) int {
	var (
		unknownKey    *core.UnknownFilterKeyError
		invalidFilter *core.InvalidFilterError
		conflict      *core.AliasConflictError
		invalidAlias  *core.InvalidAliasError
		locked        *core.DatasetLockedError
		failed        *core.DatasetFailedError
	)

	switch {
	case errors.Is(err, core.ErrDatasetNotFound):
		return http.StatusNotFound
	case errors.As(err, &unknownKey), errors.As(err, &invalidFilter),
		errors.As(err, &conflict), errors.As(err, &invalidAlias),
		errors.Is(err, errInvalidAliasList), errors.Is(err, core.ErrEmptyUpload):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &locked):
		return http.StatusLocked
	case errors.As(err, &failed):
		return http.StatusFailedDependency
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrQueryTimeout), errors.Is(err, core.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// serviceError writes err with the status statusFor derives.
func serviceError(w http.ResponseWriter, r *http.Request, err error) {
	respondError(w, r, err, statusFor(err))
}

// respondError logs err and writes the JSON error body. The technical error
// text is only exposed for errors with a known user message.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		level = slog.LevelError
	}
	logger.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	detail := http.StatusText(status)
	if core.IsUserFacing(err) {
		detail = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   detail,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}); encErr != nil {
		logger.Error("json encode error", "error", encErr)
	}
}
