package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/serptrend/serptrend/internal/serp"
)

// HTTPConfig controls the plain-HTTP search fetcher.
type HTTPConfig struct {
	BaseURL   string
	UserAgent string
	Params    map[string]string
	Timeout   time.Duration
}

// HTTPFetcher performs search requests with a Colly collector.
type HTTPFetcher struct {
	cfg  HTTPConfig
	base *colly.Collector
}

// NewHTTPFetcher builds an HTTPFetcher.
func NewHTTPFetcher(cfg HTTPConfig) (*HTTPFetcher, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.google.com/search"
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &HTTPFetcher{cfg: cfg, base: c}, nil
}

// Do executes a single search GET. HTTP-level failures are returned as
// responses with their status code; only transport failures are errors.
func (f *HTTPFetcher) Do(ctx context.Context, query string) (serp.RawResponse, error) {
	searchURL, err := f.buildURL(query)
	if err != nil {
		return serp.RawResponse{}, err
	}

	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		result   serp.RawResponse
		fetchErr error
	)
	start := time.Now()

	collector.OnResponse(func(r *colly.Response) {
		result = responseFromColly(r, searchURL, start)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			result = responseFromColly(r, searchURL, start)
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(searchURL)
	}()

	select {
	case <-ctx.Done():
		return serp.RawResponse{}, fmt.Errorf("search fetch canceled: %w", ctx.Err())
	case visitErr := <-done:
		if result.StatusCode > 0 {
			return result, nil
		}
		if fetchErr != nil {
			return serp.RawResponse{}, fmt.Errorf("search request failed: %w", fetchErr)
		}
		if visitErr != nil {
			return serp.RawResponse{}, fmt.Errorf("search visit failed: %w", visitErr)
		}
		return result, nil
	}
}

func (f *HTTPFetcher) buildURL(query string) (string, error) {
	u, err := url.Parse(f.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	for key, value := range f.cfg.Params {
		q.Set(key, value)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func responseFromColly(r *colly.Response, requestURL string, start time.Time) serp.RawResponse {
	respURL := requestURL
	if r.Request != nil && r.Request.URL != nil {
		respURL = r.Request.URL.String()
	}
	headers := http.Header{}
	if r.Headers != nil {
		headers = r.Headers.Clone()
	}
	return serp.RawResponse{
		URL:        respURL,
		StatusCode: r.StatusCode,
		Headers:    headers,
		Body:       append([]byte(nil), r.Body...),
		Duration:   time.Since(start),
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
