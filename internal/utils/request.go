package utils

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	appErrors "github.com/htkfoods/storefront/internal/errors"
	"github.com/htkfoods/storefront/internal/utils/response"
)

func ParseAndValidate(r *http.Request, w http.ResponseWriter, dest any, validate *validator.Validate) bool {

	if err := DecodeJSONBody(r, dest); err != nil {
		slog.Warn("Invalid request", slog.String("error", err.Error()))
		response.Error(w, appErrors.BadRequestError(err.Error()))
		return false
	}

	if err := ValidateStruct(validate, dest); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			response.ValidationError(w, validationErrs)
			return false
		}
		response.Error(w, appErrors.ValidationError("invalid input data").WithError(err))
		return false
	}

	return true

}

// QueryInt64 reads an integer query parameter.
func QueryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, appErrors.AddValidationError(name, "is required")
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, appErrors.AddValidationError(name, "must be an integer").WithError(err)
	}

	return v, nil
}

// QueryFloat reads a finite decimal query parameter.
func QueryFloat(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, appErrors.AddValidationError(name, "is required")
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, appErrors.AddValidationError(name, "must be a number").WithError(err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, appErrors.AddValidationError(name, "must be a finite number")
	}

	return v, nil
}
