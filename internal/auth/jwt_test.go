package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func testClaims() Claims {
	return Claims{
		TenantID: "tenant-1",
		Role:     "member",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "runforge-auth",
			Audience:  jwt.ClaimStrings{"runforge"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestValidator_ValidateToken(t *testing.T) {
	validator, err := NewValidator(Config{
		Secret:   testSecret,
		Issuer:   "runforge-auth",
		Audience: "runforge",
	})
	require.NoError(t, err)

	t.Run("valid token resolves the actor", func(t *testing.T) {
		actor, err := validator.ValidateToken(signToken(t, testSecret, testClaims()))
		require.NoError(t, err)
		assert.Equal(t, "tenant-1", actor.TenantID)
		assert.Equal(t, "user-1", actor.UserID)
		assert.Equal(t, RoleMember, actor.Role)
		assert.False(t, actor.IsTestRun())
	})

	t.Run("admin role marks runs as test runs", func(t *testing.T) {
		claims := testClaims()
		claims.Role = "admin"
		actor, err := validator.ValidateToken(signToken(t, testSecret, claims))
		require.NoError(t, err)
		assert.Equal(t, RoleAdmin, actor.Role)
		assert.True(t, actor.IsTestRun())
	})

	t.Run("unknown roles fall back to member", func(t *testing.T) {
		claims := testClaims()
		claims.Role = "superuser"
		actor, err := validator.ValidateToken(signToken(t, testSecret, claims))
		require.NoError(t, err)
		assert.Equal(t, RoleMember, actor.Role)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := validator.ValidateToken(signToken(t, "other-secret", testClaims()))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired token", func(t *testing.T) {
		claims := testClaims()
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		_, err := validator.ValidateToken(signToken(t, testSecret, claims))
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := testClaims()
		claims.Issuer = "someone-else"
		_, err := validator.ValidateToken(signToken(t, testSecret, claims))
		assert.ErrorIs(t, err, ErrInvalidIssuer)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := testClaims()
		claims.Audience = jwt.ClaimStrings{"other-service"}
		_, err := validator.ValidateToken(signToken(t, testSecret, claims))
		assert.ErrorIs(t, err, ErrInvalidAudience)
	})

	t.Run("missing tenant claim", func(t *testing.T) {
		claims := testClaims()
		claims.TenantID = ""
		_, err := validator.ValidateToken(signToken(t, testSecret, claims))
		assert.ErrorIs(t, err, ErrMissingTenant)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := validator.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestNewValidator_RequiresSecret(t *testing.T) {
	_, err := NewValidator(Config{})
	assert.Error(t, err)
}

func TestMiddleware_Authenticate(t *testing.T) {
	validator, err := NewValidator(Config{Secret: testSecret})
	require.NoError(t, err)
	mw := NewMiddleware(validator)

	var gotActor Actor
	var called bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor, _ = ActorFromContext(r.Context())
		called = true
	})

	do := func(authorization string) *httptest.ResponseRecorder {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/runs", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		rec := httptest.NewRecorder()
		mw.Authenticate(next).ServeHTTP(rec, req)
		return rec
	}

	t.Run("valid bearer token reaches the handler", func(t *testing.T) {
		rec := do("Bearer " + signToken(t, testSecret, testClaims()))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, called)
		assert.Equal(t, "tenant-1", gotActor.TenantID)
	})

	t.Run("missing header", func(t *testing.T) {
		rec := do("")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
	})

	t.Run("malformed header", func(t *testing.T) {
		rec := do("Token abc")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
	})

	t.Run("invalid token", func(t *testing.T) {
		rec := do("Bearer garbage")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
		assert.Contains(t, rec.Body.String(), "invalid token")
	})
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"bearer", "Bearer abc123", "abc123"},
		{"case insensitive scheme", "bearer abc123", "abc123"},
		{"empty", "", ""},
		{"wrong scheme", "Basic abc123", ""},
		{"scheme only", "Bearer", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, ExtractToken(req))
		})
	}
}
