// ABOUTME: Tests for the credential chain.
// ABOUTME: Covers key mode, JWT expiry introspection, login caching, and anonymous mode.

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/cognee-mcp/internal/mcperr"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestChain_StaticKey(t *testing.T) {
	chain := NewChain(Config{Key: "sk-opaque-key"})

	assert.Equal(t, "api_key", chain.Mode())

	creds, err := chain.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Authorization", creds.HeaderName)
	assert.Equal(t, "sk-opaque-key", creds.Token)
}

func TestChain_CustomHeaderAndScheme(t *testing.T) {
	chain := NewChain(Config{Key: "sk-x", KeyHeader: "X-Api-Key", KeyScheme: ""})

	creds, err := chain.Credentials(context.Background())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	creds.Apply(req)
	assert.Equal(t, "sk-x", req.Header.Get("X-Api-Key"))
}

func TestCredentials_BearerScheme(t *testing.T) {
	creds := Credentials{HeaderName: "Authorization", Scheme: "Bearer", Token: "tok"}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	creds.Apply(req)
	assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
}

func TestChain_ExpiredJWTKey(t *testing.T) {
	expired := signedToken(t, time.Now().Add(-time.Hour))
	chain := NewChain(Config{Key: expired})

	_, err := chain.Credentials(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenExpired)

	var pe *mcperr.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, mcperr.CodeAuthenticationError, pe.Code)
}

func TestChain_ValidJWTKey(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	chain := NewChain(Config{Key: token})

	creds, err := chain.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, token, creds.Token)
}

func TestChain_LoginAndCache(t *testing.T) {
	var logins atomic.Int32
	token := signedToken(t, time.Now().Add(time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/auth/login", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "me@example.com", body["email"])

		logins.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": token,
			"token_type":   "bearer",
		})
	}))
	defer srv.Close()

	chain := NewChain(Config{
		BaseURL:  srv.URL,
		Email:    "me@example.com",
		Password: "secret",
	})
	assert.Equal(t, "login", chain.Mode())

	creds, err := chain.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer", creds.Scheme)
	assert.Equal(t, token, creds.Token)

	// Second resolution reuses the cached token.
	_, err = chain.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), logins.Load())
}

func TestChain_LoginFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	chain := NewChain(Config{BaseURL: srv.URL, Email: "a@b.c", Password: "wrong"})

	_, err := chain.Credentials(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoginFailed)
}

func TestChain_ExpiredKeyFallsThroughToLogin(t *testing.T) {
	fresh := signedToken(t, time.Now().Add(time.Hour))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": fresh})
	}))
	defer srv.Close()

	expired := signedToken(t, time.Now().Add(-time.Minute))
	chain := NewChain(Config{
		BaseURL:  srv.URL,
		Key:      expired,
		Email:    "a@b.c",
		Password: "pw",
	})

	creds, err := chain.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fresh, creds.Token)
}

func TestChain_Anonymous(t *testing.T) {
	chain := NewChain(Config{})

	assert.Equal(t, "anonymous", chain.Mode())

	_, err := chain.Credentials(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCredentials)
}
