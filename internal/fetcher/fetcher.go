// Package fetcher retrieves raw feed documents over HTTP with per-source
// isolation: one slow or unreachable feed never blocks the others.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"planet/internal/model"
)

// Feeds larger than this are truncated; no real feed comes close.
const maxBodySize = 10 * 1024 * 1024

const userAgent = "planet-aggregator/1.0"

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result holds the outcome of fetching one feed source. Body is only
// set when Status is StatusOK.
type Result struct {
	Source     model.FeedSource
	Status     model.FetchStatus
	HTTPStatus int
	Body       []byte
	FetchedAt  time.Time
	Err        error
}

// Fetcher downloads raw feed documents.
type Fetcher struct {
	client    HTTPClient
	timeout   time.Duration
	limit     int
	retryBase time.Duration
	log       *slog.Logger
}

// New creates a Fetcher with the given HTTP client, per-fetch timeout,
// and maximum number of in-flight fetches.
func New(client HTTPClient, timeout time.Duration, limit int, log *slog.Logger) *Fetcher {
	if limit < 1 {
		limit = 1
	}
	return &Fetcher{
		client:    client,
		timeout:   timeout,
		limit:     limit,
		retryBase: 500 * time.Millisecond,
		log:       log,
	}
}

// SetRetryBase overrides the default 500ms backoff base (useful for testing).
func (f *Fetcher) SetRetryBase(d time.Duration) {
	f.retryBase = d
}

type httpStatusError struct {
	code int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// Fetch retrieves one feed document and classifies the outcome. Network
// errors and 5xx/429 responses are retried with fibonacci backoff; other
// failures are recorded immediately.
func (f *Fetcher) Fetch(ctx context.Context, src model.FeedSource) *Result {
	res := &Result{Source: src, FetchedAt: time.Now().UTC()}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(f.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("http get: %w", err))
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			statusErr := &httpStatusError{code: resp.StatusCode}
			if resp.StatusCode >= http.StatusInternalServerError ||
				resp.StatusCode == http.StatusTooManyRequests {
				return retry.RetryableError(statusErr)
			}
			return statusErr
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return retry.RetryableError(fmt.Errorf("read body: %w", err))
		}
		res.Body = body
		return nil
	})

	if err == nil {
		res.Status = model.StatusOK
		return res
	}

	res.Err = err
	res.Status = classify(err, &res.HTTPStatus)
	return res
}

func classify(err error, httpStatus *int) model.FetchStatus {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		*httpStatus = statusErr.code
		return model.StatusHTTPError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.StatusTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.StatusTimeout
	}
	return model.StatusNetworkError
}

// FetchAll fetches every source concurrently, bounded by the in-flight
// limit. Results are indexed by source position so completion order is
// irrelevant to callers.
func (f *Fetcher) FetchAll(ctx context.Context, sources []model.FeedSource) []*Result {
	results := make([]*Result, len(sources))

	var g errgroup.Group
	g.SetLimit(f.limit)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			res := f.Fetch(ctx, src)
			if res.Status != model.StatusOK {
				f.log.Warn("fetch failed",
					"url", src.URL, "status", string(res.Status), "error", res.Err)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return results
}
