package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// maxPageBytes bounds how much of a page is read for metadata
const maxPageBytes = 4 << 20

// ErrInvalidURL is returned when the page URL is not absolute http(s)
var ErrInvalidURL = errors.New("page URL must be an absolute http or https URL")

// Config holds configuration for the importer
type Config struct {
	// RateLimit is the maximum requests per second
	RateLimit float64
	// Timeout is the HTTP request timeout
	Timeout time.Duration
	// MaxRetries is the maximum number of retry attempts
	MaxRetries int
	// Backoff is the first retry delay; it doubles on every attempt
	Backoff time.Duration
	// UserAgent is the HTTP User-Agent header
	UserAgent string
}

// DefaultConfig returns default importer configuration
func DefaultConfig() *Config {
	return &Config{
		RateLimit:  1,
		Timeout:    15 * time.Second,
		MaxRetries: 3,
		Backoff:    time.Second,
		UserAgent:  "MovieVerse/1.0",
	}
}

// Draft is movie metadata read from a web page, ready to be registered
type Draft struct {
	Title         string
	Description   string
	VideoLocation string
	PageURL       string
}

// statusError is a non-200 response
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP status %d", e.code)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// Importer fetches pages and extracts movie metadata from them
type Importer struct {
	client  *http.Client
	limiter *rate.Limiter
	config  *Config
	parser  *Parser
}

// New creates a new importer instance
func New(cfg *Config) *Importer {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Importer{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		// Token bucket, one request at a time
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		config:  cfg,
		parser:  NewParser(),
	}
}

// Fetch downloads pageURL and extracts a movie draft from its metadata
func (im *Importer) Fetch(ctx context.Context, pageURL string) (*Draft, error) {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}

	html, err := im.fetchWithRetry(ctx, u.String())
	if err != nil {
		return nil, err
	}

	draft, err := im.parser.ParseDraft(html, u)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page metadata: %w", err)
	}

	log.Info().
		Str("url", draft.PageURL).
		Str("title", draft.Title).
		Str("video", draft.VideoLocation).
		Msg("Imported page metadata")
	return draft, nil
}

// fetchWithRetry fetches a URL with rate limiting and exponential backoff retry
func (im *Importer) fetchWithRetry(ctx context.Context, targetURL string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= im.config.MaxRetries; attempt++ {
		// Wait for rate limiter
		if err := im.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter error: %w", err)
		}

		html, err := im.fetch(ctx, targetURL)
		if err == nil {
			return html, nil
		}
		lastErr = err

		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			break
		}

		if attempt < im.config.MaxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * im.config.Backoff
			log.Warn().Err(err).Int("attempt", attempt+1).Dur("backoff", backoff).Str("url", targetURL).Msg("Fetch failed, retrying")
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return "", fmt.Errorf("failed to fetch %s: %w", targetURL, lastErr)
}

// fetch performs a single HTTP request
func (im *Importer) fetch(ctx context.Context, targetURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request error: %w", err)
	}
	req.Header.Set("User-Agent", im.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := im.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	log.Debug().
		Int("status", resp.StatusCode).
		Str("url", targetURL).
		Msg("HTTP response")

	if resp.StatusCode != http.StatusOK {
		return "", &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read body error: %w", err)
	}
	return string(body), nil
}

// GetLimiter returns the rate limiter for testing purposes
func (im *Importer) GetLimiter() *rate.Limiter {
	return im.limiter
}
