// Package voice delivers audio enable/disable directives to the voice transport
package voice

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/navikt/zseats/internal/config"
	"github.com/navikt/zseats/internal/utils"
	"github.com/rs/zerolog"
)

// Headers set on signed directive requests
const (
	SignatureHeader = "X-Zseats-Signature"
	TimestampHeader = "X-Zseats-Request-Timestamp"
)

// Transport switches a participant's outbound audio on or off
type Transport interface {
	SetAudioEnabled(ctx context.Context, roomID, userID string, enabled bool) error
}

// DirectiveRequest is the JSON body posted to the voice transport
type DirectiveRequest struct {
	RoomID  string `json:"room_id"`
	UserID  string `json:"user_id"`
	Enabled bool   `json:"enabled"`
}

// HTTPTransport posts directives to an HTTP endpoint on the media side
type HTTPTransport struct {
	url        string
	token      string
	secret     string
	httpClient *http.Client
	now        func() time.Time
}

// NewHTTPTransport creates a transport from configuration
func NewHTTPTransport(cfg config.VoiceConfig) *HTTPTransport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPTransport{
		url:    cfg.URL,
		token:  cfg.Token,
		secret: cfg.Secret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// SetAudioEnabled sends one directive. Any non-2xx response is an error.
func (t *HTTPTransport) SetAudioEnabled(ctx context.Context, roomID, userID string, enabled bool) error {
	body, err := json.Marshal(DirectiveRequest{RoomID: roomID, UserID: userID, Enabled: enabled})
	if err != nil {
		return fmt.Errorf("failed to marshal directive: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	if t.secret != "" {
		timestamp := strconv.FormatInt(t.now().Unix(), 10)
		req.Header.Set(TimestampHeader, timestamp)
		req.Header.Set(SignatureHeader, Sign(t.secret, timestamp, body))
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("voice transport error (status %d): %s", resp.StatusCode, string(msg))
	}

	// Drain so the connection can be reused
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Sign returns the signature of a directive body: "v0=" followed by the
// hex HMAC-SHA256 of "v0:<timestamp>:<body>"
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

// LogTransport only logs directives. It is used when no transport URL is configured.
type LogTransport struct {
	log zerolog.Logger
}

// NewLogTransport creates a transport that logs directives at info level
func NewLogTransport(logger zerolog.Logger) *LogTransport {
	return &LogTransport{log: utils.Module(logger, "voice.log")}
}

// SetAudioEnabled logs the directive
func (t *LogTransport) SetAudioEnabled(ctx context.Context, roomID, userID string, enabled bool) error {
	t.log.Info().
		Str("room_id", roomID).
		Str("user_id", utils.SanitizeLogString(userID)).
		Bool("enabled", enabled).
		Msg("audio directive")
	return nil
}
