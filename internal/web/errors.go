package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged server-side with the request ID, mapped through
// core.MapError to a user-facing message, and rendered either as an HTML
// fragment (for the page's fetch calls) or as JSON (for API clients).

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/web/templates"
)

var errRateLimited = errors.New("rate limit exceeded")

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	Detail  string `json:"detail,omitempty"`
}

// respondError logs err and writes a user-friendly error response.
// A zero statusCode derives the status from err.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if statusCode == 0 {
		statusCode = statusFor(err)
	}
	userMsg := core.MapError(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	if wantsHTML(r) {
		renderErrorPartial(w, r, userMsg, err.Error(), statusCode)
		return
	}
	respondErrorJSON(w, userMsg, err.Error(), statusCode)
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrLoadNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTableExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyLoads):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case isInputError(err):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// isInputError reports whether err was caused by the submitted form or file.
func isInputError(err error) bool {
	for _, target := range []error{
		core.ErrNoFile, core.ErrEmptyFile, core.ErrEmptyTableName, core.ErrNoColumns,
		core.ErrUnknownKind, core.ErrUnknownPolicy, core.ErrMissingField, core.ErrInvalidField,
		core.ErrInvalidCSV, core.ErrInvalidSpreadsheet,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, detail string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		Detail:  detail,
	})
}

// renderErrorPartial renders the error alert fragment.
func renderErrorPartial(w http.ResponseWriter, r *http.Request, msg core.UserMessage, detail string, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := templates.ErrorAlert(msg.Message, msg.Action, msg.Code, detail).Render(r.Context(), w); err != nil {
		slog.Error("render error alert", "error", err)
	}
}

// wantsHTML checks if the client asked for an HTML fragment.
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
