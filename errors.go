package routetree

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Error is the request-time error produced by the adapter.
// Data is either a message string or a structured payload such as
// [ValidationPayload]; it is written as the JSON response body.
type Error struct {
	Status int
	Data   any
}

func (e *Error) Error() string {
	if s, ok := e.Data.(string); ok {
		return fmt.Sprintf("%d: %s", e.Status, s)
	}
	if p, ok := e.Data.(*ValidationPayload); ok {
		return fmt.Sprintf("%d: %s (%d issues)", e.Status, p.Type, len(p.Issues))
	}
	return fmt.Sprintf("%d: %v", e.Status, e.Data)
}

// Errorf creates an Error with a formatted message.
// Hooks and controllers can return it to respond with a specific status.
func Errorf(status int, format string, args ...any) *Error {
	return &Error{
		Status: status,
		Data:   fmt.Sprintf(format, args...),
	}
}

// CreateError builds the error surfaced for a request-time failure.
// data is a string message or a structured payload.
type CreateError func(status int, data any) error

// DefaultCreateError returns an *Error carrying status and data.
func DefaultCreateError(status int, data any) error {
	return &Error{
		Status: status,
		Data:   data,
	}
}

// ValidationPayload is the body of a schema validation failure.
// Type is "invalid_request_query", "invalid_request_body" or
// "invalid_request_headers".
type ValidationPayload struct {
	Type   string  `json:"type"`
	Issues []Issue `json:"issues"`
}

// Issue describes a single failed constraint.
type Issue struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// validationIssues converts validator errors into issues.
// It reports false when err did not come from the validator.
func validationIssues(err error) ([]Issue, bool) {
	var valErrs validator.ValidationErrors
	if !errors.As(err, &valErrs) {
		return nil, false
	}
	issues := make([]Issue, 0, len(valErrs))
	for _, ve := range valErrs {
		issues = append(issues, Issue{
			Path:    ve.Namespace(),
			Code:    ve.Tag(),
			Message: formatValidationError(ve),
		})
	}
	return issues, true
}

// formatValidationError converts a validator.FieldError to a human-readable message.
func formatValidationError(ve validator.FieldError) string {
	switch ve.Tag() {
	case "required":
		return "required"
	case "min":
		return fmt.Sprintf("must be at least %s", ve.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", ve.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s long", ve.Param())
	case "eq":
		return fmt.Sprintf("must equal %s", ve.Param())
	case "ne":
		return fmt.Sprintf("must not equal %s", ve.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", ve.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", ve.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", ve.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", ve.Param())
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", ve.Param())
	case "numeric":
		return "must be numeric"
	default:
		if ve.Param() != "" {
			return fmt.Sprintf("failed %s=%s validation", ve.Tag(), ve.Param())
		}
		return fmt.Sprintf("failed %s validation", ve.Tag())
	}
}

// errorBody is the JSON written for string error data.
type errorBody struct {
	Message string `json:"message"`
}

// handleError writes err to w. Errors that are not *Error become 500s and
// are logged; if a response was already started nothing more is written.
func (c *Config) handleError(w *responseWriter, r *http.Request, err error) {
	var reqErr *Error
	if !errors.As(err, &reqErr) {
		c.logger().ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		msg := err.Error()
		if c.maskInternalErrors {
			msg = "internal server error"
		}
		reqErr = &Error{Status: http.StatusInternalServerError, Data: msg}
	}
	if w.written {
		c.logger().WarnContext(r.Context(), "error after response was written",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		return
	}

	var body any = reqErr.Data
	if s, ok := reqErr.Data.(string); ok {
		body = errorBody{Message: s}
	}
	status := reqErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if err := writeJSON(w, status, nil, body); err != nil {
		// Headers already sent, nothing we can do. Log for debugging.
		c.logger().Error("failed to encode error response",
			slog.Int("status", status),
			slog.Any("error", err))
	}
}
