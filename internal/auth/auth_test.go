package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "octofit-test"}

func TestParseAcceptsSignedToken(t *testing.T) {
	token, err := Sign(testConfig, "alice", []string{ScopeAdmin}, time.Hour)
	require.NoError(t, err)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Subject)
	require.True(t, claims.HasScope(ScopeAdmin))
	require.False(t, claims.HasScope("other"))
	require.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 5*time.Second)
}

func TestParseRejectsBadTokens(t *testing.T) {
	_, err := Parse("  ", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)

	wrongSecret, err := Sign(Config{Secret: "other", Issuer: testConfig.Issuer}, "alice", nil, time.Hour)
	require.NoError(t, err)
	_, err = Parse(wrongSecret, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := Sign(Config{Secret: testConfig.Secret, Issuer: "elsewhere"}, "alice", nil, time.Hour)
	require.NoError(t, err)
	_, err = Parse(wrongIssuer, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := Sign(testConfig, "alice", nil, -time.Minute)
	require.NoError(t, err)
	_, err = Parse(expired, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"iss": testConfig.Issuer}).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)
	_, err = Parse(noSubject, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestScopesAcceptSpaceSeparatedString(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "bob", "iss": testConfig.Issuer, "scopes": "admin  reports",
	}).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.True(t, claims.HasScope(ScopeAdmin))
	require.True(t, claims.HasScope("reports"))
}

func TestMiddleware(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := FromContext(r.Context())
		if ok {
			seen = claims.Subject
		}
		w.WriteHeader(http.StatusNoContent)
	})
	skip := func(r *http.Request) bool { return r.URL.Path == "/healthz" }
	handler := NewMiddleware(testConfig, skip).Wrap(RequireScope(ScopeAdmin)(inner))

	serve := func(path, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusUnauthorized, serve("/x", "").Code)
	require.Equal(t, http.StatusUnauthorized, serve("/x", "Basic abc").Code)

	user, err := Sign(testConfig, "carol", nil, time.Hour)
	require.NoError(t, err)
	rec := serve("/x", "Bearer "+user)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.JSONEq(t, `{"type":"forbidden","detail":"missing scope admin"}`, rec.Body.String())

	admin, err := Sign(testConfig, "dave", []string{ScopeAdmin}, time.Hour)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, serve("/x", "bearer "+admin).Code)
	require.Equal(t, "dave", seen)
}

func TestMiddlewareSkipper(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := NewMiddleware(testConfig, func(r *http.Request) bool { return r.URL.Path == "/healthz" }).Wrap(inner)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
