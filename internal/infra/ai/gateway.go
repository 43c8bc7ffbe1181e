package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/bryanwahyu/procsec/internal/domain/ai"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	defaultCallTimeout = 60 * time.Second
	connectivityTimeout = 10 * time.Second
)

// Gateway fronts every registered provider with one call contract: per-call
// timeout, exponential backoff on retryable failures, fatal errors surfaced
// on first occurrence. Attempt n waits base*2^(n-1) before retrying.
type Gateway struct {
	mu        sync.RWMutex
	providers map[string]domain.Provider

	maxAttempts int
	baseDelay   time.Duration
	callTimeout time.Duration
}

type Option func(*Gateway)

// WithMaxAttempts caps the retry loop (total attempts, not retries).
func WithMaxAttempts(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the first backoff delay.
func WithBaseDelay(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.baseDelay = d
		}
	}
}

// WithCallTimeout bounds each individual provider call.
func WithCallTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.callTimeout = d
		}
	}
}

func NewGateway(opts ...Option) *Gateway {
	g := &Gateway{
		providers:   make(map[string]domain.Provider),
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register adds a provider under its own id.
func (g *Gateway) Register(p domain.Provider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.providers[p.ID()] = p
}

// Providers lists registered provider ids.
func (g *Gateway) Providers() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.providers))
	for id := range g.providers {
		ids = append(ids, id)
	}
	return ids
}

func (g *Gateway) provider(id string) (domain.Provider, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, id)
	}
	return p, nil
}

// Invoke calls the provider, retrying retryable failures with exponential
// backoff. The final attempt's failure is returned verbatim. Caller
// cancellation aborts the in-flight call and is never retried.
func (g *Gateway) Invoke(ctx context.Context, providerID string, req domain.Request) (domain.Response, error) {
	p, err := g.provider(providerID)
	if err != nil {
		return domain.Response{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		resp, err := g.attempt(ctx, p, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if domain.Cancelled(err) || !domain.Retryable(err) {
			return domain.Response{}, err
		}
		if attempt == g.maxAttempts {
			break
		}

		delay := g.baseDelay * (1 << (attempt - 1))
		select {
		case <-ctx.Done():
			return domain.Response{}, domain.NewCancelled(providerID)
		case <-time.After(delay):
		}
	}
	return domain.Response{}, lastErr
}

// attempt performs one bounded provider call and normalizes timeout and
// cancellation into the provider error taxonomy.
func (g *Gateway) attempt(ctx context.Context, p domain.Provider, req domain.Request) (domain.Response, error) {
	cctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	start := time.Now()
	resp, err := p.Invoke(cctx, req)
	if err == nil {
		resp.Latency = time.Since(start)
		return resp, nil
	}

	// Caller-requested stop wins over whatever the provider reported.
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return domain.Response{}, domain.NewCancelled(p.ID())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return domain.Response{}, domain.NewTimeout(p.ID(), err)
	}
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return domain.Response{}, err
	}
	// Unclassified transport failure: treat as unavailable so it retries.
	return domain.Response{}, domain.NewUnavailable(p.ID(), err)
}

// TestConnectivity performs a single bounded diagnostic round trip,
// independent of the retry policy.
func (g *Gateway) TestConnectivity(ctx context.Context, providerID, model string) (domain.ConnectivityReport, error) {
	p, err := g.provider(providerID)
	if err != nil {
		return domain.ConnectivityReport{}, err
	}
	cctx, cancel := context.WithTimeout(ctx, connectivityTimeout)
	defer cancel()
	return p.TestConnectivity(cctx, model), nil
}
