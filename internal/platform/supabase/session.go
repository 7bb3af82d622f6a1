package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotSignedIn is returned by operations that need a session.
var ErrNotSignedIn = errors.New("not signed in")

// ErrAuthFailed is returned when the auth endpoint rejects the credentials.
var ErrAuthFailed = errors.New("authentication failed")

// Session holds the worker's signed-in user session.
type Session struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger

	mu        sync.RWMutex
	token     string
	userID    string
	expiresAt time.Time
}

// NewSession creates a signed-out Session for the project at baseURL.
func NewSession(baseURL, apiKey string, client *http.Client, logger *slog.Logger) *Session {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
		logger:  logger.With(slog.String("component", "supabase_session")),
	}
}

// SignIn exchanges email and password for an access token.
func (s *Session) SignIn(ctx context.Context, email, password string) error {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/auth/v1/token?grant_type=password", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build sign-in request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sign-in request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: status %d: %s", ErrAuthFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode sign-in response: %w", err)
	}

	claims, err := parseClaims(out.AccessToken)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.token = out.AccessToken
	s.userID = claims.Subject
	s.expiresAt = time.Time{}
	if claims.ExpiresAt != nil {
		s.expiresAt = claims.ExpiresAt.Time
	}
	s.mu.Unlock()

	s.logger.Info("signed in", slog.String("user_id", claims.Subject))
	return nil
}

// SignOut revokes the session. Signing out when not signed in is a no-op.
func (s *Session) SignOut(ctx context.Context) error {
	token := s.AccessToken()
	if token == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return fmt.Errorf("failed to build sign-out request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sign-out request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	s.mu.Lock()
	s.token, s.userID, s.expiresAt = "", "", time.Time{}
	s.mu.Unlock()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sign-out returned status %d", resp.StatusCode)
	}
	s.logger.Info("signed out")
	return nil
}

// AccessToken returns the current token, or "" when signed out.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// UserID returns the subject of the current token.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// ExpiresAt returns the token expiry, or the zero time when unknown.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// parseClaims reads the registered claims of a token issued by the auth
// server. The signature is not checked; the token is only forwarded.
func parseClaims(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: unreadable access token: %v", ErrAuthFailed, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: access token has no subject", ErrAuthFailed)
	}
	return claims, nil
}
