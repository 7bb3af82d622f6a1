package supabase

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signedToken(t *testing.T, subject string, expires time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func authServer(t *testing.T, token string, loggedOut *atomic.Bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))

		var creds map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds["password"] != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": token})
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+token, r.Header.Get("Authorization"))
		loggedOut.Store(true)
		w.WriteHeader(http.StatusNoContent)
	})
	return httptest.NewServer(mux)
}

func TestSessionSignInAndOut(t *testing.T) {
	expires := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, "user-123", expires)
	var loggedOut atomic.Bool
	ts := authServer(t, token, &loggedOut)
	defer ts.Close()

	s := NewSession(ts.URL, "anon", ts.Client(), testLogger())
	require.NoError(t, s.SignIn(context.Background(), "w@example.com", "secret"))

	assert.Equal(t, token, s.AccessToken())
	assert.Equal(t, "user-123", s.UserID())
	assert.True(t, expires.Equal(s.ExpiresAt()))

	require.NoError(t, s.SignOut(context.Background()))
	assert.True(t, loggedOut.Load())
	assert.Empty(t, s.AccessToken())
	assert.Empty(t, s.UserID())

	// Signing out twice is a no-op.
	assert.NoError(t, s.SignOut(context.Background()))
}

func TestSessionSignInRejected(t *testing.T) {
	var loggedOut atomic.Bool
	ts := authServer(t, "unused", &loggedOut)
	defer ts.Close()

	s := NewSession(ts.URL, "anon", ts.Client(), testLogger())
	err := s.SignIn(context.Background(), "w@example.com", "wrong")
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Empty(t, s.AccessToken())
}

func TestSessionSignInBadToken(t *testing.T) {
	var loggedOut atomic.Bool
	ts := authServer(t, "not-a-jwt", &loggedOut)
	defer ts.Close()

	s := NewSession(ts.URL, "anon", ts.Client(), testLogger())
	err := s.SignIn(context.Background(), "w@example.com", "secret")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func signedInSession(t *testing.T) (*Session, string) {
	t.Helper()
	token := signedToken(t, "user-123", time.Now().Add(time.Hour))
	var loggedOut atomic.Bool
	ts := authServer(t, token, &loggedOut)
	t.Cleanup(ts.Close)

	s := NewSession(ts.URL, "anon", ts.Client(), testLogger())
	require.NoError(t, s.SignIn(context.Background(), "w@example.com", "secret"))
	return s, token
}

func TestFetchDNA(t *testing.T) {
	session, token := signedInSession(t)

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "/functions/v1/geographix", r.URL.Path)
		assert.Equal(t, "Bearer "+token, r.Header.Get("Authorization"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "well", body["asset"])

		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(domain.DNA{
			Select:      "SELECT w.uwi AS w_uwi FROM well w",
			AssetIDKeys: []string{"w_uwi"},
			Prefixes:    map[string]string{"w_": "well"},
		})
	}))
	defer ts.Close()

	fns := NewFunctions(ts.URL, "anon", session, ts.Client(), 3, time.Millisecond, testLogger())
	dna, err := fns.FetchDNA(context.Background(), "GeoGraphix", "well")
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []string{"w_uwi"}, dna.AssetIDKeys)
}

func TestFetchDNAErrors(t *testing.T) {
	session, _ := signedInSession(t)

	t.Run("not found is not retried", func(t *testing.T) {
		var calls atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer ts.Close()

		fns := NewFunctions(ts.URL, "anon", session, ts.Client(), 3, time.Millisecond, testLogger())
		_, err := fns.FetchDNA(context.Background(), "geographix", "nope")
		assert.ErrorIs(t, err, ErrDNANotFound)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("server errors exhaust retries", func(t *testing.T) {
		var calls atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer ts.Close()

		fns := NewFunctions(ts.URL, "anon", session, ts.Client(), 3, time.Millisecond, testLogger())
		_, err := fns.FetchDNA(context.Background(), "geographix", "well")
		assert.Error(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("empty select", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"asset_id_keys":["a"]}`))
		}))
		defer ts.Close()

		fns := NewFunctions(ts.URL, "anon", session, ts.Client(), 1, time.Millisecond, testLogger())
		_, err := fns.FetchDNA(context.Background(), "geographix", "well")
		assert.ErrorIs(t, err, domain.ErrInvalidFormat)
	})

	t.Run("missing asset_id_keys", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"select":"SELECT w.uwi AS w_uwi FROM well w","asset_id_keys":[]}`))
		}))
		defer ts.Close()

		fns := NewFunctions(ts.URL, "anon", session, ts.Client(), 1, time.Millisecond, testLogger())
		_, err := fns.FetchDNA(context.Background(), "geographix", "well")
		assert.ErrorIs(t, err, domain.ErrInvalidFormat)
		assert.Contains(t, err.Error(), "asset_id_keys")
	})

	t.Run("signed out", func(t *testing.T) {
		fns := NewFunctions("http://127.0.0.1:1", "anon", NewSession("http://127.0.0.1:1", "anon", nil, testLogger()), nil, 1, time.Millisecond, testLogger())
		_, err := fns.FetchDNA(context.Background(), "geographix", "well")
		assert.ErrorIs(t, err, ErrNotSignedIn)
	})
}
