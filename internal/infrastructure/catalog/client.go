package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/tirewatch/backend/internal/domain"
	"golang.org/x/time/rate"
)

const maxAttempts = 3

// Client downloads the reference catalog CSV export
type Client struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	rateLimiter *rate.Limiter
	debug       bool
}

// NewClient creates a new catalog client. baseURL is the full export URL;
// the api key, when set, is sent as the api_key query parameter.
func NewClient(apiKey, baseURL string, requestsPerHour int) *Client {
	if requestsPerHour <= 0 {
		requestsPerHour = 60
	}
	// rate.Limit is requests per second
	limiter := rate.NewLimiter(rate.Limit(float64(requestsPerHour)/3600), 3)

	return &Client{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		apiKey:      apiKey,
		baseURL:     baseURL,
		rateLimiter: limiter,
	}
}

// SetDebug enables or disables debug logging
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

// FetchCatalog downloads the export and returns its active rows
func (c *Client) FetchCatalog(ctx context.Context) ([]domain.CatalogRow, error) {
	reqURL, err := c.exportURL()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCatalogFailure, err)
	}

	// Retry up to 3 times for transient failures
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		body, status, err := c.doRequest(ctx, reqURL)
		switch {
		case err != nil:
			lastErr = err
		case status == http.StatusOK:
			rows, err := ParseCSV(bytes.NewReader(body))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrCatalogFailure, err)
			}
			if c.debug {
				log.WithField("rows", len(rows)).Debug("catalog fetched")
			}
			return rows, nil
		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = fmt.Errorf("%w: status %d", domain.ErrCatalogFailure, status)
		default:
			// other 4xx: retrying will not help
			return nil, fmt.Errorf("%w: status %d", domain.ErrCatalogFailure, status)
		}

		log.WithFields(log.Fields{
			"attempt": attempt,
		}).WithError(lastErr).Warn("catalog request failed")

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(exponentialBackoff(attempt)):
			}
		}
	}

	log.Error("catalog: all retries failed")
	return nil, lastErr
}

// doRequest executes a GET and reads the whole body
func (c *Client) doRequest(ctx context.Context, reqURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "TireWatch/1.0")
	req.Header.Set("Accept", "text/csv")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrCatalogFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading body: %v", domain.ErrCatalogFailure, err)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) exportURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	if c.apiKey != "" {
		q := u.Query()
		q.Set("api_key", c.apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// exponentialBackoff returns the wait before the next attempt: 500ms, 1s, 2s...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<(attempt-1)) * 500 * time.Millisecond
}

// FileClient serves the catalog from a CSV file on disk
type FileClient struct {
	Path string
}

// FetchCatalog reads the file on every call so edits are picked up
func (f *FileClient) FetchCatalog(ctx context.Context) ([]domain.CatalogRow, error) {
	return LoadFile(f.Path)
}

// LoadFile reads a catalog CSV export from disk
func LoadFile(path string) ([]domain.CatalogRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCatalogFailure, err)
	}
	defer file.Close()

	rows, err := ParseCSV(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCatalogFailure, err)
	}
	return rows, nil
}
