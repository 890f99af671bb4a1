package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/serptrend/serptrend/internal/serp"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

// scriptedFetcher replays a fixed sequence of responses, then repeats the
// final one.
type scriptedFetcher struct {
	responses []serp.RawResponse
	errs      []error
	calls     int
}

func (f *scriptedFetcher) Do(_ context.Context, _ string) (serp.RawResponse, error) {
	i := f.calls
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	f.calls++
	return f.responses[i], f.errs[i]
}

func newTestClient(f Fetcher, maxRetries int) *Client {
	return NewClient(
		f,
		NewPacer(0),
		NewRetryPolicy(maxRetries, time.Millisecond, 5*time.Millisecond),
		time.Second,
		fixedClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)},
		nil,
	)
}

func TestFetchSuccessFirstAttempt(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{
		responses: []serp.RawResponse{{StatusCode: 200, Body: []byte("<html>ok</html>")}},
		errs:      []error{nil},
	}
	c := newTestClient(f, 2)

	resp, err := c.Fetch(context.Background(), "go testing")
	require.NoError(t, err)
	require.Equal(t, 1, f.calls)
	require.Equal(t, "go testing", resp.Query)
	require.False(t, resp.FetchedAt.IsZero())
}

func TestFetchRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{
		responses: []serp.RawResponse{
			{StatusCode: 500},
			{StatusCode: 429},
			{StatusCode: 200, Body: []byte("ok")},
		},
		errs: []error{nil, nil, nil},
	}
	c := newTestClient(f, 2)

	_, err := c.Fetch(context.Background(), "flaky")
	require.NoError(t, err)
	require.Equal(t, 3, f.calls)
}

func TestFetchExhaustsTransientBudget(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{
		responses: []serp.RawResponse{{StatusCode: 503}},
		errs:      []error{nil},
	}
	c := newTestClient(f, 2)

	_, err := c.Fetch(context.Background(), "down")
	var ferr *serp.FetchError
	require.ErrorAs(t, err, &ferr)
	require.False(t, ferr.Permanent)
	require.Equal(t, 3, ferr.Attempts)
	require.Equal(t, 3, f.calls)
	require.False(t, serp.IsPermanentFetch(err))
}

func TestFetchPermanentRejectionFailsFast(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{
		responses: []serp.RawResponse{{StatusCode: 403}},
		errs:      []error{nil},
	}
	c := newTestClient(f, 5)

	_, err := c.Fetch(context.Background(), "blocked")
	var ferr *serp.FetchError
	require.ErrorAs(t, err, &ferr)
	require.True(t, ferr.Permanent)
	require.Equal(t, 1, ferr.Attempts)
	require.Equal(t, 1, f.calls)
	require.True(t, serp.IsPermanentFetch(err))
}

func TestFetchBlockPageIsPermanent(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body>Our systems have detected unusual traffic from your network.</body></html>`)
	f := &scriptedFetcher{
		responses: []serp.RawResponse{{StatusCode: 200, Body: body}},
		errs:      []error{nil},
	}
	c := newTestClient(f, 5)

	_, err := c.Fetch(context.Background(), "throttled")
	require.True(t, serp.IsPermanentFetch(err))
	require.Equal(t, 1, f.calls)
}

func TestFetchEmptyQueryIsPermanent(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{
		responses: []serp.RawResponse{{StatusCode: 200}},
		errs:      []error{nil},
	}
	c := newTestClient(f, 2)

	_, err := c.Fetch(context.Background(), "   ")
	require.True(t, serp.IsPermanentFetch(err))
	require.Zero(t, f.calls)
}

func TestFetchTransportErrorIsTransient(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{
		responses: []serp.RawResponse{{}, {StatusCode: 200, Body: []byte("ok")}},
		errs:      []error{errors.New("connection reset"), nil},
	}
	c := newTestClient(f, 2)

	_, err := c.Fetch(context.Background(), "reset once")
	require.NoError(t, err)
	require.Equal(t, 2, f.calls)
}

func TestFetchStopsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &scriptedFetcher{
		responses: []serp.RawResponse{{StatusCode: 500}},
		errs:      []error{nil},
	}
	c := newTestClient(f, 5)

	_, err := c.Fetch(ctx, "cancelled")
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}
