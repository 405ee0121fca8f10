package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"order-settlement/internal/apperror"
	"order-settlement/internal/dto"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{
			name:      "wrapped lock timeout",
			err:       fmt.Errorf("apply promotion: %w", apperror.Retry(errors.New("database is locked"), "lock order")),
			status:    http.StatusConflict,
			code:      string(apperror.CodeConflict),
			retryable: true,
		},
		{
			name:   "plain conflict",
			err:    apperror.Conflict("order is paid"),
			status: http.StatusConflict,
			code:   string(apperror.CodeConflict),
		},
		{
			name:   "insufficient points",
			err:    apperror.Insufficient("no points available"),
			status: http.StatusUnprocessableEntity,
			code:   string(apperror.CodeInsufficient),
		},
		{
			name:   "unknown error",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			code:   "internal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.HTTPErrorHandler = ErrorHandler(zaptest.NewLogger(t))
			e.GET("/", func(echo.Context) error { return tt.err })

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.status, rec.Code)
			var body dto.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.retryable, body.Retryable)
		})
	}
}
