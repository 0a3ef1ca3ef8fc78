package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/navikt/zseats/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockIntrospectionServer simulates the token introspection endpoint
type MockIntrospectionServer struct {
	server *httptest.Server

	mu          sync.Mutex
	tokenClaims map[string]map[string]any
	shouldFail  bool
	lastRequest TokenIntrospectionRequest
}

func NewMockIntrospectionServer() *MockIntrospectionServer {
	mock := &MockIntrospectionServer{tokenClaims: make(map[string]map[string]any)}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		defer mock.mu.Unlock()

		if mock.shouldFail {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		var req TokenIntrospectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		mock.lastRequest = req

		claims, valid := mock.tokenClaims[req.Token]
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(TokenIntrospectionResponse{Active: valid, Claims: claims})
	}))

	return mock
}

func (m *MockIntrospectionServer) AddToken(token string, claims map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenClaims[token] = claims
}

func (m *MockIntrospectionServer) SetShouldFail(shouldFail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFail = shouldFail
}

func (m *MockIntrospectionServer) LastRequest() TokenIntrospectionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequest
}

func (m *MockIntrospectionServer) Close() {
	m.server.Close()
}

func (m *MockIntrospectionServer) URL() string {
	return m.server.URL
}

// whoami echoes the resolved caller
var whoami = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte(userID))
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	h.ServeHTTP(recorder, req)
	return recorder
}

func TestIdentityFromHeader(t *testing.T) {
	handler := NewIdentityMiddleware(config.IdentityConfig{}, zerolog.Nop()).Handler(whoami)

	t.Run("trusted header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/rooms/x", nil)
		req.Header.Set(UserIDHeader, " alice ")

		recorder := serve(handler, req)
		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "alice", recorder.Body.String())
	})

	t.Run("missing header", func(t *testing.T) {
		recorder := serve(handler, httptest.NewRequest(http.MethodGet, "/api/rooms/x", nil))
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
		assert.Equal(t, CodeUnauthenticated, body.Code)
	})
}

func TestIdentityFromIntrospection(t *testing.T) {
	mock := NewMockIntrospectionServer()
	defer mock.Close()

	mock.AddToken("sub-token", map[string]any{"sub": "user-sub", "NAVident": "Z999999"})
	mock.AddToken("navident-token", map[string]any{"NAVident": "Z123456"})
	mock.AddToken("numeric-token", map[string]any{"sub": 42})

	middleware := NewIdentityMiddleware(config.IdentityConfig{
		IntrospectionEndpoint: mock.URL(),
		Provider:              "idporten",
	}, zerolog.Nop())
	handler := middleware.Handler(whoami)

	request := func(authorization string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/rooms/x", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		// ignored when introspection is configured
		req.Header.Set(UserIDHeader, "spoofed")
		return req
	}

	tests := []struct {
		name          string
		authorization string
		wantStatus    int
		wantUser      string
	}{
		{name: "sub claim wins", authorization: "Bearer sub-token", wantStatus: http.StatusOK, wantUser: "user-sub"},
		{name: "falls back to NAVident", authorization: "Bearer navident-token", wantStatus: http.StatusOK, wantUser: "Z123456"},
		{name: "non-string claim", authorization: "Bearer numeric-token", wantStatus: http.StatusUnauthorized},
		{name: "unknown token", authorization: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "missing header", authorization: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", authorization: "Basic sub-token", wantStatus: http.StatusUnauthorized},
		{name: "lowercase scheme", authorization: "bearer sub-token", wantStatus: http.StatusUnauthorized},
		{name: "empty token", authorization: "Bearer   ", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := serve(handler, request(tt.authorization))
			assert.Equal(t, tt.wantStatus, recorder.Code)
			if tt.wantUser != "" {
				assert.Equal(t, tt.wantUser, recorder.Body.String())
			}
		})
	}

	assert.Equal(t, "idporten", mock.LastRequest().IdentityProvider)

	t.Run("endpoint failure", func(t *testing.T) {
		mock.SetShouldFail(true)
		defer mock.SetShouldFail(false)

		recorder := serve(handler, request("Bearer sub-token"))
		assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	})
}

func TestUserIDFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := UserIDFromContext(req.Context())
	assert.False(t, ok)

	userID, ok := UserIDFromContext(WithUserID(req.Context(), "bob"))
	assert.True(t, ok)
	assert.Equal(t, "bob", userID)
}
