package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrUnexpectedStatus is returned when the backend answers with a non-2xx status code.
var ErrUnexpectedStatus = errors.New("unexpected status code")

// APIOptions holds the settings shared by the clients of the inference backend.
type APIOptions struct {
	// BaseURL is the scheme and host of the backend, e.g. "https://api.example.com". A trailing slash is
	// ignored.
	BaseURL string
	// Headers are added to every outbound request.
	Headers map[string]string
	// Timeout bounds a whole request. Zero means no timeout beyond the transport defaults.
	Timeout time.Duration
	// RateLimit caps outbound requests per second for one client. Zero disables limiting.
	RateLimit float64
	// Burst is how many requests may be sent at once before RateLimit applies. It defaults to 1.
	Burst int
}

// apiClient holds what the Q&A and classification clients have in common: the backend location, the extra
// headers and the HTTP client.
type apiClient struct {
	baseURL string
	headers map[string]string

	client  *http.Client
	limiter *rate.Limiter

	logger *slog.Logger
}

// maxErrorBody caps how much of a failed response body ends up in the returned error.
const maxErrorBody = 512

func newAPIClient(opts APIOptions, logger *slog.Logger) apiClient {
	a := apiClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		headers: opts.Headers,
		client:  &http.Client{Timeout: opts.Timeout},
		logger:  logger,
	}
	if opts.RateLimit > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(opts.Burst, 1))
	}
	return a
}

// post sends body to path and returns the response if it has a 2xx status. The caller must close the body.
func (a apiClient) post(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}

	a.logger.Debug("Backend responded",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: %d, body: %s", ErrUnexpectedStatus, resp.StatusCode, string(b))
	}

	return resp, nil
}

// secondsToDuration converts the fractional seconds reported by the backend.
func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
