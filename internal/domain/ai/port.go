package ai

import (
	"context"
	"time"
)

// Request is a provider-neutral completion request.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	MaxTokens    int
}

// Response from a provider invocation.
type Response struct {
	Content string
	Model   string
	Latency time.Duration
}

// ConnectivityReport from a single diagnostic round trip.
type ConnectivityReport struct {
	ProviderID string        `json:"providerId"`
	Model      string        `json:"model,omitempty"`
	Reachable  bool          `json:"reachable"`
	Latency    time.Duration `json:"latencyMs"`
	Message    string        `json:"message,omitempty"`
}

// Provider is the capability set every AI backend must implement. Provider
// identity is the dispatch key; there is no inheritance between providers.
type Provider interface {
	ID() string
	Invoke(ctx context.Context, req Request) (Response, error)
	TestConnectivity(ctx context.Context, model string) ConnectivityReport
}

// Gateway hides provider heterogeneity and network unreliability behind one
// call contract with timeout, retry/backoff and error classification.
type Gateway interface {
	Invoke(ctx context.Context, providerID string, req Request) (Response, error)
	TestConnectivity(ctx context.Context, providerID, model string) (ConnectivityReport, error)
}
