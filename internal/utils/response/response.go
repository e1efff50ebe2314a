// Package response writes the JSON envelope every API endpoint answers with:
// {"success": true, "data": ...} or {"success": false, "error": {...}}.
package response

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/htkfoods/storefront/internal/errors"
)

type APIResponse struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

type ErrorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// Bodies carry session state (cart, rewards, preferences) and must not be
// cached by the browser or a proxy.
func write(w http.ResponseWriter, statusCode int, body APIResponse) {
	w.Header().Set("Cache-Control", "no-store")

	if statusCode == http.StatusNoContent {
		w.WriteHeader(statusCode)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("Failed to write response body", slog.Int("status", statusCode), slog.String("error", err.Error()))
	}
}

func Success(w http.ResponseWriter, statusCode int, data any) {
	write(w, statusCode, APIResponse{Success: true, Data: data})
}

// Error answers with the status and code of an AppError. Anything else is
// reported as an opaque 500.
func Error(w http.ResponseWriter, err error) {
	appErr, ok := errors.IsAppError(err)
	if !ok {
		write(w, http.StatusInternalServerError, APIResponse{Error: &ErrorResponse{
			Code:    errors.ErrCodeInternal,
			Message: "An unexpected error occurred",
		}})
		return
	}

	body := &ErrorResponse{Code: appErr.Code, Message: appErr.Message}
	if appErr.Detail != "" {
		body.Details = []string{appErr.Detail}
	}

	write(w, appErr.StatusCode, APIResponse{Error: body})
}

// ValidationError lists one message per failed field.
func ValidationError(w http.ResponseWriter, errs validator.ValidationErrors) {
	details := make([]string, 0, len(errs))
	for _, fe := range errs {
		details = append(details, fieldMessage(fe))
	}

	write(w, http.StatusBadRequest, APIResponse{Error: &ErrorResponse{
		Code:    errors.ErrCodeValidation,
		Message: "Validation failed",
		Details: details,
	}})
}

var bounds = map[string]string{
	"min": "at least",
	"max": "at most",
	"len": "exactly",
	"gt":  "greater than",
	"gte": "at least",
	"lt":  "less than",
	"lte": "at most",
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()

	switch tag := fe.Tag(); tag {
	case "required":
		return fmt.Sprintf("Field %s is required", field)
	case "email":
		return fmt.Sprintf("Field %s must be a valid email address", field)
	case "oneof":
		return fmt.Sprintf("Field %s must be one of %s", field, strings.Join(strings.Fields(fe.Param()), ", "))
	case "min", "max", "len", "gt", "gte", "lt", "lte":
		// Length rules on text count characters; on numbers they bound the value.
		if fe.Kind() == reflect.String && (tag == "min" || tag == "max" || tag == "len") {
			return fmt.Sprintf("Field %s must be %s %s characters", field, bounds[tag], fe.Param())
		}
		return fmt.Sprintf("Field %s must be %s %s", field, bounds[tag], fe.Param())
	default:
		return fmt.Sprintf("Field %s is invalid: %s=%s", field, fe.Tag(), fe.Param())
	}
}
