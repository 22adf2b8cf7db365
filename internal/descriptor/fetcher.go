package descriptor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/muurk/rendercast/internal/logging"
	"github.com/muurk/rendercast/internal/metrics"
	"github.com/muurk/rendercast/internal/version"
)

const (
	// DefaultAttempts is the total number of tries per fetch.
	DefaultAttempts = 3

	// DefaultRetryDelay is the fixed wait between tries.
	DefaultRetryDelay = 1 * time.Second

	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 5 * time.Second

	// maxDescriptionSize caps how much of a response body is read.
	maxDescriptionSize = 1 << 20
)

// Getter retrieves the raw description document at location.
type Getter interface {
	Get(ctx context.Context, location string) ([]byte, error)
}

// HTTPGetter fetches descriptions over plain HTTP.
type HTTPGetter struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPGetter returns a getter with the given per-request timeout.
func NewHTTPGetter(timeout time.Duration) *HTTPGetter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPGetter{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: version.UserAgent(),
	}
}

// Get implements Getter. Non-200 responses return a *FetchError.
func (g *HTTPGetter) Get(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request for %s: %w", location, err)
	}
	if g.UserAgent != "" {
		req.Header.Set("User-Agent", g.UserAgent)
	}

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, ClassifyNetworkError(err, location)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, NewHTTPError(resp.StatusCode, location)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDescriptionSize))
	if err != nil {
		return nil, ClassifyNetworkError(err, location)
	}
	return body, nil
}

// Fetcher retrieves and parses device descriptions with a fixed retry
// budget. Concurrent fetches of the same location share one request.
type Fetcher struct {
	Getter     Getter
	Attempts   int
	RetryDelay time.Duration

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	group singleflight.Group
}

// NewFetcher creates a Fetcher with the default retry policy.
func NewFetcher(getter Getter) *Fetcher {
	if getter == nil {
		getter = NewHTTPGetter(DefaultTimeout)
	}
	return &Fetcher{
		Getter:     getter,
		Attempts:   DefaultAttempts,
		RetryDelay: DefaultRetryDelay,
	}
}

// Fetch returns the parsed description at location. A description without
// a friendly name yields ErrNoDevice.
//
// The underlying request is not cancelled by ctx: a caller that gives up
// returns ctx.Err() while the shared fetch runs to completion for anyone
// else waiting on it.
func (f *Fetcher) Fetch(ctx context.Context, location string) (*Descriptor, error) {
	ch := f.group.DoChan(location, func() (interface{}, error) {
		return f.fetch(context.WithoutCancel(ctx), location)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Descriptor), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Fetcher) fetch(ctx context.Context, location string) (*Descriptor, error) {
	attempts := f.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := f.sleep(ctx, f.RetryDelay); err != nil {
				return nil, err
			}
		}

		desc, err := f.attempt(ctx, location)
		switch {
		case err == nil:
			metrics.FetchAttempts.WithLabelValues(metrics.OutcomeSuccess).Inc()
			return desc, nil
		case errors.Is(err, ErrNoDevice):
			metrics.FetchAttempts.WithLabelValues(metrics.OutcomeNoDevice).Inc()
			return nil, err
		case IsNotFound(err):
			metrics.FetchAttempts.WithLabelValues(metrics.OutcomeNotFound).Inc()
			return nil, err
		}

		metrics.FetchAttempts.WithLabelValues(metrics.OutcomeError).Inc()
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}

		logging.Debug("Description fetch failed",
			zap.String("location", location),
			zap.Int("attempt", attempt),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	}

	return nil, lastErr
}

func (f *Fetcher) attempt(ctx context.Context, location string) (*Descriptor, error) {
	body, err := f.Getter.Get(ctx, location)
	if err != nil {
		return nil, err
	}

	desc, err := Parse(bytes.NewReader(body))
	if err != nil {
		return nil, NewParseError(location, err)
	}
	if desc.FriendlyName == "" {
		return nil, ErrNoDevice
	}
	return desc, nil
}

func (f *Fetcher) sleep(ctx context.Context, d time.Duration) error {
	if f.Sleep != nil {
		return f.Sleep(ctx, d)
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
