package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/navikt/zseats/internal/config"
	"github.com/navikt/zseats/internal/utils"
	"github.com/rs/zerolog"
)

// UserIDHeader carries the caller identity set by the upstream identity provider
const UserIDHeader = "X-User-ID"

// identityClaims are tried in order when reading the user id from a token
var identityClaims = []string{"sub", "preferred_username", "NAVident", "upn"}

var errInvalidToken = errors.New("invalid token")

type ctxKey string

const ctxKeyUserID ctxKey = "user_id"

// TokenIntrospectionRequest represents the payload sent to the introspection endpoint
type TokenIntrospectionRequest struct {
	IdentityProvider string `json:"identity_provider"`
	Token            string `json:"token"`
}

// TokenIntrospectionResponse represents the response from the introspection endpoint
type TokenIntrospectionResponse struct {
	Active bool           `json:"active"`
	Claims map[string]any `json:"claims,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// IdentityMiddleware resolves the calling user and stores it in the request context
type IdentityMiddleware struct {
	introspectionEndpoint string
	provider              string
	httpClient            *http.Client
	log                   zerolog.Logger
}

// NewIdentityMiddleware creates the middleware. Without an introspection
// endpoint it trusts the X-User-ID header.
func NewIdentityMiddleware(cfg config.IdentityConfig, logger zerolog.Logger) *IdentityMiddleware {
	provider := cfg.Provider
	if provider == "" {
		provider = "azuread"
	}
	return &IdentityMiddleware{
		introspectionEndpoint: cfg.IntrospectionEndpoint,
		provider:              provider,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: utils.Module(logger, "web.identity"),
	}
}

// Handler rejects requests without a caller identity
func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.resolve(r)
		switch {
		case errors.Is(err, errInvalidToken):
			Error(w, http.StatusUnauthorized, CodeUnauthenticated, err.Error())
			return
		case err != nil:
			m.log.Error().Err(err).Msg("token introspection failed")
			Error(w, http.StatusServiceUnavailable, CodeUnavailable, "identity provider unavailable")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func (m *IdentityMiddleware) resolve(r *http.Request) (string, error) {
	if m.introspectionEndpoint == "" {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			return "", fmt.Errorf("%w: %s header required", errInvalidToken, UserIDHeader)
		}
		return userID, nil
	}

	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("%w: bearer token required", errInvalidToken)
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", fmt.Errorf("%w: token cannot be empty", errInvalidToken)
	}

	return m.introspect(r.Context(), token)
}

// introspect validates token and returns the user id from its claims
func (m *IdentityMiddleware) introspect(ctx context.Context, token string) (string, error) {
	body, err := json.Marshal(TokenIntrospectionRequest{
		IdentityProvider: m.provider,
		Token:            token,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.introspectionEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("introspection endpoint returned status %d", resp.StatusCode)
	}

	var result TokenIntrospectionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Error != "" || !result.Active {
		return "", fmt.Errorf("%w: token is not active", errInvalidToken)
	}

	for _, claim := range identityClaims {
		if v, ok := result.Claims[claim].(string); ok && v != "" {
			m.log.Debug().Str("claim", claim).Str("user_id", utils.SanitizeLogString(v)).Msg("caller identified")
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: no user id claim", errInvalidToken)
}

// WithUserID returns a context carrying the caller's user id
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, userID)
}

// UserIDFromContext returns the caller resolved by IdentityMiddleware
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(ctxKeyUserID).(string)
	return userID, ok && userID != ""
}
