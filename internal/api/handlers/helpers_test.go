package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/htkfoods/storefront/internal/utils/response"
	"github.com/stretchr/testify/require"
)

type envelope[T any] struct {
	Success bool                    `json:"success"`
	Data    T                       `json:"data"`
	Error   *response.ErrorResponse `json:"error"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()

	var resp envelope[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()

	body, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(body)
}

type cartItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type cartDisplay struct {
	Currency string `json:"currency"`
	Total    string `json:"total"`
}

type cartBody struct {
	Mode       string      `json:"mode"`
	Items      []cartItem  `json:"items"`
	Subtotal   int64       `json:"subtotal"`
	Discount   float64     `json:"discount"`
	Total      float64     `json:"total"`
	Count      int         `json:"count"`
	DrawerOpen bool        `json:"drawer_open"`
	Display    cartDisplay `json:"display"`
}
