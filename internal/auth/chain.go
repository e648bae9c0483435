// ABOUTME: Credential chain for upstream API auth with login-token caching.
// ABOUTME: Static keys are introspected as JWTs so expired keys fail early.

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/cognee-mcp/internal/mcperr"
)

// Auth errors.
var (
	ErrNoCredentials = errors.New("no credentials configured")
	ErrTokenExpired  = errors.New("token expired")
	ErrLoginFailed   = errors.New("login failed")
)

// refreshMargin is how close to expiry a cached login token is refreshed.
const refreshMargin = 60 * time.Second

// defaultLoginTTL applies when a login token carries no readable expiry.
const defaultLoginTTL = time.Hour

// Credentials is a resolved header value ready to attach to a request.
type Credentials struct {
	HeaderName string
	Scheme     string
	Token      string
}

// Apply sets the credential header on req. An empty scheme sends the raw
// token, for X-Api-Key style headers.
func (c Credentials) Apply(req *http.Request) {
	if c.Token == "" {
		return
	}
	value := c.Token
	if c.Scheme != "" {
		value = c.Scheme + " " + c.Token
	}
	req.Header.Set(c.HeaderName, value)
}

// CredentialSource produces credentials for upstream requests.
type CredentialSource interface {
	// Credentials resolves the current credentials. Anonymous sources
	// return ErrNoCredentials.
	Credentials(ctx context.Context) (Credentials, error)
	// Mode describes the active auth mode: "api_key", "login", or "anonymous".
	Mode() string
}

// Config holds the settings the chain needs from the api config section.
type Config struct {
	BaseURL    string
	Key        string
	KeyHeader  string
	KeyScheme  string
	Email      string
	Password   string
	HTTPClient *http.Client
}

// Chain is the standard CredentialSource: static key first, then login,
// else anonymous.
type Chain struct {
	cfg  Config
	http *http.Client

	mu          sync.Mutex
	cachedToken string
	cachedExp   time.Time
}

// NewChain creates a credential chain from the given config.
func NewChain(cfg Config) *Chain {
	if cfg.KeyHeader == "" {
		cfg.KeyHeader = "Authorization"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Chain{cfg: cfg, http: httpClient}
}

// Mode reports the active auth mode based on configuration.
func (c *Chain) Mode() string {
	switch {
	case c.cfg.Key != "":
		return "api_key"
	case c.cfg.Email != "" && c.cfg.Password != "":
		return "login"
	default:
		return "anonymous"
	}
}

// Credentials resolves credentials per the chain order.
func (c *Chain) Credentials(ctx context.Context) (Credentials, error) {
	if c.cfg.Key != "" {
		if err := checkKeyExpiry(c.cfg.Key); err != nil {
			// An expired key falls through to login when possible.
			if c.cfg.Email != "" && c.cfg.Password != "" {
				return c.loginCredentials(ctx)
			}
			return Credentials{}, authError(err)
		}
		return Credentials{
			HeaderName: c.cfg.KeyHeader,
			Scheme:     c.cfg.KeyScheme,
			Token:      c.cfg.Key,
		}, nil
	}

	if c.cfg.Email != "" && c.cfg.Password != "" {
		return c.loginCredentials(ctx)
	}

	return Credentials{}, authError(ErrNoCredentials)
}

// loginCredentials returns the cached login token, refreshing it when it is
// missing or within refreshMargin of expiry.
func (c *Chain) loginCredentials(ctx context.Context) (Credentials, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cachedToken != "" && time.Until(c.cachedExp) > refreshMargin {
		return c.bearer(c.cachedToken), nil
	}

	token, exp, err := c.login(ctx)
	if err != nil {
		return Credentials{}, authError(err)
	}

	c.cachedToken = token
	c.cachedExp = exp
	return c.bearer(token), nil
}

func (c *Chain) bearer(token string) Credentials {
	return Credentials{HeaderName: "Authorization", Scheme: "Bearer", Token: token}
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// login performs POST /api/v1/auth/login and extracts a token expiry from
// the token's exp claim when it is a JWT, the expires_in field, or the
// default TTL, in that order.
func (c *Chain) login(ctx context.Context) (string, time.Time, error) {
	payload, err := json.Marshal(map[string]string{
		"email":    c.cfg.Email,
		"password": c.cfg.Password,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("marshaling login request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/v1/auth/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", time.Time{}, fmt.Errorf("%w: status %d: %s", ErrLoginFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: decoding response: %v", ErrLoginFailed, err)
	}
	if lr.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty access_token", ErrLoginFailed)
	}

	exp := time.Now().Add(defaultLoginTTL)
	if t, ok := tokenExpiry(lr.AccessToken); ok {
		exp = t
	} else if lr.ExpiresIn > 0 {
		exp = time.Now().Add(time.Duration(lr.ExpiresIn) * time.Second)
	}

	return lr.AccessToken, exp, nil
}

// checkKeyExpiry rejects a static key whose JWT exp claim has passed.
// Keys that do not parse as JWTs are sent as-is.
func checkKeyExpiry(key string) error {
	exp, ok := tokenExpiry(key)
	if !ok {
		return nil
	}
	if time.Now().After(exp) {
		return ErrTokenExpired
	}
	return nil
}

// tokenExpiry extracts the exp claim from a JWT without verifying the
// signature. The upstream service holds the signing key; this side only
// needs the expiry to avoid sending dead tokens.
func tokenExpiry(token string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	expTime, err := claims.GetExpirationTime()
	if err != nil || expTime == nil {
		return time.Time{}, false
	}
	return expTime.Time, true
}

// authError wraps an auth failure with its protocol code so the dispatcher
// reports AUTHENTICATION_ERROR without inspecting the cause.
func authError(err error) error {
	return fmt.Errorf("%w: %w", mcperr.New(mcperr.CodeAuthenticationError, "authentication failed"), err)
}
