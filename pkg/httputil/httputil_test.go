package httputil_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	httputil.Error(rec, fmt.Errorf("commit: %w", errors.InsufficientStock(5, 999)))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INSUFFICIENT_STOCK", resp.Error.Code)
	assert.Equal(t, "5", resp.Error.Details["current_stock"])
}

func TestError_Unknown(t *testing.T) {
	rec := httptest.NewRecorder()
	httputil.Error(rec, fmt.Errorf("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestJSONWithMeta(t *testing.T) {
	rec := httptest.NewRecorder()
	httputil.JSONWithMeta(rec, http.StatusOK, []string{"a"}, httputil.NewMeta(2, 10, 21))

	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Meta.TotalPages)
	assert.Equal(t, int64(21), resp.Meta.Total)
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	var v struct {
		Quantity int64 `json:"quantity"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity": 3, "qty": 4}`))
	err := httputil.DecodeJSON(req, &v)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))
}

func TestPagination(t *testing.T) {
	tests := []struct {
		query       string
		wantPage    int
		wantPerPage int
		wantErr     bool
	}{
		{"", 1, 20, false},
		{"page=3&per_page=50", 3, 50, false},
		{"page=0&per_page=0", 1, 20, false},
		{"per_page=1000", 1, 100, false},
		{"page=abc", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			page, perPage, err := httputil.Pagination(req, 20, 100)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantPerPage, perPage)
		})
	}
}

func TestValidate(t *testing.T) {
	type request struct {
		Code     string `json:"code" validate:"required,notblank,max=50"`
		Quantity int64  `json:"quantity" validate:"gt=0"`
		Type     string `json:"type" validate:"oneof=in out"`
	}

	err := httputil.Validate(&request{Code: "  ", Quantity: 0, Type: "sideways"})
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Equal(t, "must not be blank", appErr.Details["code"])
	assert.Equal(t, "must be greater than 0", appErr.Details["quantity"])
	assert.Equal(t, "must be one of: in out", appErr.Details["type"])

	assert.NoError(t, httputil.Validate(&request{Code: "P001", Quantity: 1, Type: "in"}))
}

type window struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func TestRegisterStructValidation(t *testing.T) {
	httputil.RegisterStructValidation(func(sl validator.StructLevel) {
		w := sl.Current().Interface().(window)
		if w.To < w.From {
			sl.ReportError(w.To, "to", "To", "gtefield", "from")
		}
	}, window{})

	err := httputil.Validate(&window{From: 5, To: 2})
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "must be greater than or equal to from", appErr.Details["to"])

	assert.NoError(t, httputil.Validate(&window{From: 2, To: 5}))
}
