package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	domain "github.com/bryanwahyu/procsec/internal/domain/ai"
)

const defaultMaxTokens = 2048

// Client adapts the OpenAI API to the Provider capability set.
type Client struct {
	api   *openai.Client
	id    string
	Model string
}

func NewClient(id, apiKey, model string) *Client {
	return &Client{api: openai.NewClient(apiKey), id: id, Model: model}
}

// NewClientWithBaseURL targets a compatible API behind a custom endpoint.
func NewClientWithBaseURL(id, apiKey, baseURL, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Client{api: openai.NewClientWithConfig(cfg), id: id, Model: model}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Invoke(ctx context.Context, req domain.Request) (domain.Response, error) {
	model := req.Model
	if model == "" {
		model = c.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	apiReq := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		apiReq.MaxCompletionTokens = maxTokens
	} else {
		apiReq.MaxTokens = maxTokens
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return domain.Response{}, c.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return domain.Response{}, domain.NewRejected(c.id, errors.New("empty completion response"))
	}
	return domain.Response{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Latency: time.Since(start),
	}, nil
}

// classify maps API failures onto the gateway's retryable/fatal taxonomy.
func (c *Client) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return domain.NewCancelled(c.id)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewTimeout(c.id, err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500:
			return domain.NewUnavailable(c.id, err)
		default:
			return domain.NewRejected(c.id, err)
		}
	}
	// Transport-level failure without an API status.
	return domain.NewUnavailable(c.id, err)
}

// TestConnectivity performs one minimal round trip with a fixed diagnostic
// payload. No retries; consumed by health and configuration checks.
func (c *Client) TestConnectivity(ctx context.Context, model string) domain.ConnectivityReport {
	if model == "" {
		model = c.Model
	}
	start := time.Now()
	_, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: 1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "ping"},
		},
	})
	report := domain.ConnectivityReport{
		ProviderID: c.id,
		Model:      model,
		Latency:    time.Since(start),
		Reachable:  err == nil,
	}
	if err != nil {
		report.Message = err.Error()
	}
	return report
}
