package session

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	sessions := NewJWTSession("secret", time.Hour)

	token, err := sessions.Issue("u1")
	require.NoError(t, err)

	userID, err := sessions.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestVerifyRejects(t *testing.T) {
	sessions := NewJWTSession("secret", time.Hour)

	otherKey, err := NewJWTSession("other", time.Hour).Issue("u1")
	require.NoError(t, err)
	expired, err := NewJWTSession("secret", -time.Minute).Issue("u1")
	require.NoError(t, err)
	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "elsewhere",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "u1",
		Issuer:  "snapgram",
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := map[string]string{
		"other key":    otherKey,
		"expired":      expired,
		"wrong issuer": wrongIssuer,
		"no expiry":    noExpiry,
		"garbage":      "not.a.token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := sessions.Verify(token)
			assert.Error(t, err)
		})
	}
}

func TestMiddleware(t *testing.T) {
	sessions := NewJWTSession("secret", time.Hour)
	token, err := sessions.Issue("u1")
	require.NoError(t, err)

	handler := sessions.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := CurrentIdentity(r.Context())
		if !ok {
			userID = "anonymous"
		}
		w.Write([]byte(userID))
	}))

	tests := []struct {
		name     string
		request  func() *http.Request
		expected string
	}{
		{"bearer header", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", "Bearer "+token)
			return r
		}, "u1"},
		{"query token", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/ws?access_token="+token, nil)
		}, "u1"},
		{"no token", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/", nil)
		}, "anonymous"},
		{"invalid token", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", "Bearer nope")
			return r
		}, "anonymous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, tt.request())
			assert.Equal(t, tt.expected, recorder.Body.String())
		})
	}
}
