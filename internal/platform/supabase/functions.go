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
	"time"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
	"github.com/sethvargo/go-retry"
)

// ErrDNANotFound is returned when the edge function has no DNA for an asset.
var ErrDNANotFound = errors.New("dna not found")

// Functions calls the project's edge functions.
type Functions struct {
	baseURL  string
	apiKey   string
	session  *Session
	client   *http.Client
	attempts uint64
	delay    time.Duration
	logger   *slog.Logger
}

// NewFunctions creates a Functions client authenticated by session.
// Server errors are retried up to attempts times.
func NewFunctions(baseURL, apiKey string, session *Session, client *http.Client, attempts int, delay time.Duration, logger *slog.Logger) *Functions {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if attempts < 1 {
		attempts = 1
	}
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	return &Functions{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		session:  session,
		client:   client,
		attempts: uint64(attempts),
		delay:    delay,
		logger:   logger.With(slog.String("component", "supabase_functions")),
	}
}

// FetchDNA invokes the function named after suite with the asset name and
// decodes its DNA.
func (f *Functions) FetchDNA(ctx context.Context, suite, asset string) (*domain.DNA, error) {
	token := f.session.AccessToken()
	if token == "" {
		return nil, ErrNotSignedIn
	}

	body, err := json.Marshal(map[string]string{"asset": asset})
	if err != nil {
		return nil, err
	}
	url := f.baseURL + "/functions/v1/" + strings.ToLower(suite)

	var dna domain.DNA
	backoff := retry.WithMaxRetries(f.attempts-1, retry.NewConstant(f.delay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("apikey", f.apiKey)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := f.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s/%s", ErrDNANotFound, suite, asset)
		case resp.StatusCode >= 500:
			f.logger.Warn("edge function failed, retrying",
				slog.String("suite", suite),
				slog.String("asset", asset),
				slog.Int("status", resp.StatusCode))
			return retry.RetryableError(fmt.Errorf("edge function returned status %d", resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("edge function returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		}

		if err := json.NewDecoder(resp.Body).Decode(&dna); err != nil {
			return fmt.Errorf("%w: dna for %s/%s: %v", domain.ErrInvalidFormat, suite, asset, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dna for %s/%s: %w", suite, asset, err)
	}
	if strings.TrimSpace(dna.Select) == "" {
		return nil, fmt.Errorf("%w: dna for %s/%s has no select", domain.ErrInvalidFormat, suite, asset)
	}
	if len(dna.AssetIDKeys) == 0 {
		return nil, fmt.Errorf("%w: dna for %s/%s has no asset_id_keys", domain.ErrInvalidFormat, suite, asset)
	}
	return &dna, nil
}
