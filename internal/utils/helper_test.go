package utils_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	appErrors "github.com/htkfoods/storefront/internal/errors"
	"github.com/htkfoods/storefront/internal/utils"
	"github.com/htkfoods/storefront/internal/utils/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"Plain text", "Desi Ghee 500g", "Desi Ghee 500g"},
		{"Tags stripped", "<b>Desi</b> <i>Ghee</i>", "Desi Ghee"},
		{"Script removed", `Ghee<script>alert("x")</script>`, "Ghee"},
		{"Entities decoded", "Salt &amp; Pepper", "Salt & Pepper"},
		{"Trimmed", "  Atta  ", "Atta"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, utils.SanitizeText(tc.in))
		})
	}
}

type itemRequest struct {
	ID  string `json:"id" validate:"required"`
	Qty int    `json:"qty" validate:"gt=0"`
}

func TestParseAndValidate(t *testing.T) {
	validate := validator.New()

	t.Run("Success", func(t *testing.T) {
		// Arrange
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"id":"a","qty":2}`))
		rec := httptest.NewRecorder()

		// Act
		var dest itemRequest
		ok := utils.ParseAndValidate(req, rec, &dest, validate)

		// Assert
		require.True(t, ok)
		assert.Equal(t, itemRequest{ID: "a", Qty: 2}, dest)
	})

	t.Run("Failure - Empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		rec := httptest.NewRecorder()

		var dest itemRequest
		ok := utils.ParseAndValidate(req, rec, &dest, validate)

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp response.APIResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, appErrors.ErrCodeBadRequest, resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "cannot be empty")
	})

	t.Run("Failure - Validation details", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"qty":0}`))
		rec := httptest.NewRecorder()

		var dest itemRequest
		ok := utils.ParseAndValidate(req, rec, &dest, validate)

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp response.APIResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, appErrors.ErrCodeValidation, resp.Error.Code)
		assert.ElementsMatch(t, []string{
			"Field ID is required",
			"Field Qty must be greater than 0",
		}, resp.Error.Details)
	})
}

func TestQueryParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?points=250&amount=12.5&bad=x", nil)

	points, err := utils.QueryInt64(req, "points")
	require.NoError(t, err)
	assert.Equal(t, int64(250), points)

	amount, err := utils.QueryFloat(req, "amount")
	require.NoError(t, err)
	assert.Equal(t, 12.5, amount)

	_, err = utils.QueryInt64(req, "bad")
	appErr, ok := appErrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)

	_, err = utils.QueryFloat(req, "missing")
	assert.ErrorContains(t, err, "is required")
}

func TestQueryFloat_NonFinite(t *testing.T) {
	for _, raw := range []string{"NaN", "nan", "Inf", "+Inf", "-Infinity"} {
		t.Run(raw, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?amount="+url.QueryEscape(raw), nil)

			_, err := utils.QueryFloat(req, "amount")

			appErr, ok := appErrors.IsAppError(err)
			require.True(t, ok)
			assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)
			assert.Equal(t, appErrors.ErrCodeValidation, appErr.Code)
			assert.Equal(t, "Invalid field 'amount': must be a finite number", appErr.Message)
		})
	}
}
