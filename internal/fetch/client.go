// Package fetch implements the search client: transport fetchers, the
// global request pacer, and bounded retry with backoff.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/serptrend/serptrend/internal/metrics"
	"github.com/serptrend/serptrend/internal/serp"
)

// Fetcher performs one wire request for a query and returns the raw
// response. Implementations return an error only for transport failures;
// HTTP-level failures come back as responses with their status code so the
// client can classify them.
type Fetcher interface {
	Do(ctx context.Context, query string) (serp.RawResponse, error)
}

// Client implements serp.SearchClient. Every attempt, retries included,
// passes through the shared pacer before touching the wire.
type Client struct {
	fetcher Fetcher
	pacer   *Pacer
	retry   *RetryPolicy
	timeout time.Duration
	clock   serp.Clock
	logger  *zap.Logger
}

// NewClient constructs a Client.
func NewClient(
	fetcher Fetcher,
	pacer *Pacer,
	retry *RetryPolicy,
	timeout time.Duration,
	clock serp.Clock,
	logger *zap.Logger,
) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		fetcher: fetcher,
		pacer:   pacer,
		retry:   retry,
		timeout: timeout,
		clock:   clock,
		logger:  logger,
	}
}

// Fetch issues the query, retrying transient failures with backoff and
// failing fast on permanent rejections.
func (c *Client) Fetch(ctx context.Context, text string) (serp.RawResponse, error) {
	if strings.TrimSpace(text) == "" {
		return serp.RawResponse{}, &serp.FetchError{
			Query:     text,
			Permanent: true,
			Attempts:  0,
			Cause:     errors.New("empty query text"),
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := c.pacer.Wait(ctx); err != nil {
			return serp.RawResponse{}, fmt.Errorf("await request slot: %w", err)
		}

		resp, err := c.attempt(ctx, text)
		if err == nil {
			metrics.ObserveFetchAttempt("ok")
			return resp, nil
		}
		if ctx.Err() != nil {
			return serp.RawResponse{}, fmt.Errorf("fetch %q canceled: %w", text, ctx.Err())
		}
		if isPermanent(err) {
			metrics.ObserveFetchAttempt("permanent")
			return serp.RawResponse{}, &serp.FetchError{
				Query:     text,
				Permanent: true,
				Attempts:  attempt + 1,
				Cause:     err,
			}
		}

		metrics.ObserveFetchAttempt("transient")
		lastErr = err
		if !c.retry.ShouldRetry(attempt) {
			return serp.RawResponse{}, &serp.FetchError{
				Query:    text,
				Attempts: attempt + 1,
				Cause:    lastErr,
			}
		}

		delay := c.retry.Backoff(attempt)
		c.logger.Warn("transient fetch failure, backing off",
			zap.String("query", text),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		metrics.ObserveRetry()
		if err := sleepCtx(ctx, delay); err != nil {
			return serp.RawResponse{}, fmt.Errorf("backoff for %q canceled: %w", text, err)
		}
	}
}

// attempt performs a single paced wire request and classifies the outcome.
func (c *Client) attempt(ctx context.Context, text string) (serp.RawResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.fetcher.Do(reqCtx, text)
	if err != nil {
		if reqCtx.Err() != nil && ctx.Err() == nil {
			return serp.RawResponse{}, fmt.Errorf("request timed out after %s: %w", c.timeout, err)
		}
		return serp.RawResponse{}, err
	}
	if err := classifyResponse(resp); err != nil {
		return serp.RawResponse{}, err
	}
	resp.Query = text
	resp.FetchedAt = c.clock.Now()
	return resp, nil
}

// permanentError marks failures that retrying cannot fix.
type permanentError struct {
	cause error
}

func (e *permanentError) Error() string {
	return e.cause.Error()
}

func (e *permanentError) Unwrap() error {
	return e.cause
}

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Block-page markers the provider serves instead of results when it decides
// to stop talking to us. Observed in the wild on throttled accounts.
var blockMarkers = [][]byte{
	[]byte("unusual traffic"),
	[]byte("recaptcha"),
	[]byte("/sorry/"),
}

func classifyResponse(resp serp.RawResponse) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if isBlockPage(resp.Body) {
			return &permanentError{cause: errors.New("provider served a block page")}
		}
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("provider throttled request (status %d)", resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("provider error (status %d)", resp.StatusCode)
	default:
		return &permanentError{
			cause: fmt.Errorf("provider rejected request (status %d)", resp.StatusCode),
		}
	}
}

func isBlockPage(body []byte) bool {
	lower := bytes.ToLower(body)
	for _, marker := range blockMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
