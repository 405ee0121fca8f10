package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func adminToken(t *testing.T, secret string, roles ...string) string {
	t.Helper()
	token, err := SignToken(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	}, secret)
	require.NoError(t, err)
	return token
}

func newProtected(secret string) *echo.Echo {
	e := echo.New()
	e.GET("/admin", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get(ContextUserID).(string))
	}, AuthMiddleware(secret), RequireRole(RoleAdmin))
	return e
}

func call(e *echo.Echo, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	e := newProtected(testSecret)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{name: "admin", token: adminToken(t, testSecret, RoleAdmin), status: http.StatusOK},
		{name: "missing token", token: "", status: http.StatusUnauthorized},
		{name: "wrong secret", token: adminToken(t, "other", RoleAdmin), status: http.StatusUnauthorized},
		{name: "no admin role", token: adminToken(t, testSecret, "viewer"), status: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(e, tt.token)
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	rec := call(e, adminToken(t, testSecret, RoleAdmin))
	assert.Equal(t, "ops-1", rec.Body.String())
}

func TestAuthMiddleware_FailsClosedWithoutSecret(t *testing.T) {
	rec := call(newProtected(""), adminToken(t, testSecret, RoleAdmin))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestParseToken_RejectsExpired(t *testing.T) {
	token, err := SignToken(Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	}, testSecret)
	require.NoError(t, err)

	_, err = ParseToken(token, testSecret)
	assert.Error(t, err)
}
