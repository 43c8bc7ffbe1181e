package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/procsec/internal/domain/ai"
)

// fakeProvider scripts one error per attempt, then succeeds.
type fakeProvider struct {
	id      string
	errs    []error
	calls   int
	content string
	block   chan struct{} // when set, Invoke waits for ctx cancellation
}

func (f *fakeProvider) ID() string { return f.id }

func (f *fakeProvider) Invoke(ctx context.Context, req domain.Request) (domain.Response, error) {
	f.calls++
	if f.block != nil {
		select {
		case <-ctx.Done():
			return domain.Response{}, ctx.Err()
		case <-f.block:
		}
	}
	if f.calls <= len(f.errs) {
		return domain.Response{}, f.errs[f.calls-1]
	}
	return domain.Response{Content: f.content, Model: req.Model}, nil
}

func (f *fakeProvider) TestConnectivity(ctx context.Context, model string) domain.ConnectivityReport {
	return domain.ConnectivityReport{ProviderID: f.id, Model: model, Reachable: true, Latency: 5 * time.Millisecond}
}

func newTestGateway(p domain.Provider) *Gateway {
	g := NewGateway(WithMaxAttempts(3), WithBaseDelay(time.Millisecond), WithCallTimeout(time.Second))
	g.Register(p)
	return g
}

func TestGateway_RetryableFailureEventuallySucceeds(t *testing.T) {
	p := &fakeProvider{
		id:      "openai",
		content: "ok",
		errs: []error{
			domain.NewTimeout("openai", errors.New("deadline")),
			domain.NewUnavailable("openai", errors.New("503")),
		},
	}
	g := newTestGateway(p)

	resp, err := g.Invoke(context.Background(), "openai", domain.Request{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, p.calls)
}

func TestGateway_ExhaustedRetriesSurfaceLastFailure(t *testing.T) {
	last := domain.NewUnavailable("openai", errors.New("last straw"))
	p := &fakeProvider{
		id: "openai",
		errs: []error{
			domain.NewUnavailable("openai", errors.New("first")),
			domain.NewUnavailable("openai", errors.New("second")),
			last,
		},
	}
	g := newTestGateway(p)

	_, err := g.Invoke(context.Background(), "openai", domain.Request{})
	require.Error(t, err)
	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "last straw", pe.Err.Error())
	assert.Equal(t, 3, p.calls)
}

func TestGateway_FatalErrorNotRetried(t *testing.T) {
	p := &fakeProvider{
		id:   "openai",
		errs: []error{domain.NewRejected("openai", errors.New("bad request"))},
	}
	g := newTestGateway(p)

	_, err := g.Invoke(context.Background(), "openai", domain.Request{})
	require.Error(t, err)
	assert.False(t, domain.Retryable(err))
	assert.Equal(t, 1, p.calls)
}

func TestGateway_CancellationAbortsInFlightCall(t *testing.T) {
	p := &fakeProvider{id: "openai", block: make(chan struct{})}
	g := newTestGateway(p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := g.Invoke(ctx, "openai", domain.Request{})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, domain.Cancelled(err))
		assert.False(t, domain.Retryable(err))
	case <-time.After(time.Second):
		t.Fatal("invoke did not observe cancellation")
	}
	assert.Equal(t, 1, p.calls)
}

func TestGateway_UnknownProvider(t *testing.T) {
	g := NewGateway()
	_, err := g.Invoke(context.Background(), "nope", domain.Request{})
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestGateway_BackoffDoubles(t *testing.T) {
	p := &fakeProvider{
		id:      "openai",
		content: "ok",
		errs: []error{
			domain.NewUnavailable("openai", errors.New("one")),
			domain.NewUnavailable("openai", errors.New("two")),
		},
	}
	g := NewGateway(WithMaxAttempts(3), WithBaseDelay(20*time.Millisecond), WithCallTimeout(time.Second))
	g.Register(p)

	start := time.Now()
	_, err := g.Invoke(context.Background(), "openai", domain.Request{})
	require.NoError(t, err)
	// base + base*2 = 60ms floor across both waits
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestGateway_TestConnectivitySingleRoundTrip(t *testing.T) {
	p := &fakeProvider{id: "openai"}
	g := newTestGateway(p)

	report, err := g.TestConnectivity(context.Background(), "openai", "gpt-4o")
	require.NoError(t, err)
	assert.True(t, report.Reachable)
	assert.Equal(t, "openai", report.ProviderID)
}
