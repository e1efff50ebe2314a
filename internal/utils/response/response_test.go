package response_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	appErrors "github.com/htkfoods/storefront/internal/errors"
	"github.com/htkfoods/storefront/internal/utils/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) response.APIResponse {
	t.Helper()

	var resp response.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSuccess(t *testing.T) {
	t.Run("Writes the envelope", func(t *testing.T) {
		rec := httptest.NewRecorder()

		response.Success(rec, http.StatusCreated, map[string]int{"count": 2})

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		assert.JSONEq(t, `{"success":true,"data":{"count":2}}`, rec.Body.String())
	})

	t.Run("No content has no body", func(t *testing.T) {
		rec := httptest.NewRecorder()

		response.Success(rec, http.StatusNoContent, nil)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Body.String())
	})
}

func TestError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
		wantDetails []string
	}{
		{
			name:        "AppError with detail",
			err:         appErrors.NotFoundError("Item not in cart").WithDetail("ghee-500"),
			wantStatus:  http.StatusNotFound,
			wantCode:    appErrors.ErrCodeNotFound,
			wantMessage: "Item not in cart",
			wantDetails: []string{"ghee-500"},
		},
		{
			name:        "Rate limited",
			err:         appErrors.TooManyRequestsError("Too many coupon attempts"),
			wantStatus:  http.StatusTooManyRequests,
			wantCode:    appErrors.ErrCodeTooManyRequests,
			wantMessage: "Too many coupon attempts",
		},
		{
			name:        "Plain error is hidden",
			err:         errors.New("pq: connection refused"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    appErrors.ErrCodeInternal,
			wantMessage: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			response.Error(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decode(t, rec)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantMessage, resp.Error.Message)
			assert.Equal(t, tt.wantDetails, resp.Error.Details)
		})
	}
}

func TestValidationError(t *testing.T) {
	type request struct {
		Code     string `validate:"required,max=8"`
		Currency string `validate:"len=3"`
		Price    int64  `validate:"min=0"`
		Quantity int    `validate:"gt=0"`
		Sort     string `validate:"oneof=price name"`
	}

	err := validator.New().Struct(request{Code: "", Currency: "RUPEE", Price: -1, Sort: "date"})
	var errs validator.ValidationErrors
	require.True(t, errors.As(err, &errs))

	rec := httptest.NewRecorder()
	response.ValidationError(rec, errs)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, appErrors.ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, []string{
		"Field Code is required",
		"Field Currency must be exactly 3 characters",
		"Field Price must be at least 0",
		"Field Quantity must be greater than 0",
		"Field Sort must be one of price, name",
	}, resp.Error.Details)
}
