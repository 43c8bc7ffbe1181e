package analysis

import (
	"context"

	domai "github.com/bryanwahyu/procsec/internal/domain/ai"
	"github.com/bryanwahyu/procsec/internal/domain/analysis"
	"github.com/bryanwahyu/procsec/internal/infra/ai/prompt"
)

// AIInsightStage asks the configured provider for insight findings on top of
// whatever the rule scan already reported. The gateway call is the stage's
// only blocking operation and carries the run's cancellation context.
type AIInsightStage struct {
	Gateway         domai.Gateway
	DefaultProvider string
	Model           string
}

func (s *AIInsightStage) Name() string { return StageAIInsight }

func (s *AIInsightStage) Run(ctx context.Context, in StageInput) (StageOutput, error) {
	if err := ctx.Err(); err != nil {
		return StageOutput{}, err
	}

	providerID := in.Run.ProviderID
	if providerID == "" {
		providerID = s.DefaultProvider
	}

	req := domai.Request{
		SystemPrompt: prompt.SystemPrompt(),
		UserPrompt:   prompt.UserPrompt(in.Graph, priorFindings(in)),
		Model:        s.Model,
	}
	resp, err := s.Gateway.Invoke(ctx, providerID, req)
	if err != nil {
		return StageOutput{}, err
	}

	insights, findings, err := prompt.ParseInsightResponse(resp.Content)
	if err != nil {
		return StageOutput{}, err
	}
	return StageOutput{Findings: findings, Insights: insights}, nil
}

func priorFindings(in StageInput) []analysis.Finding {
	if in.Run.Results == nil {
		return nil
	}
	return in.Run.Results.Findings
}
