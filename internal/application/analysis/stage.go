package analysis

import (
	"context"

	"github.com/bryanwahyu/procsec/internal/domain/analysis"
	"github.com/bryanwahyu/procsec/internal/domain/process"
)

// Stage names used as currentStep labels in progress events.
const (
	StageRuleScan   = "rule_scan"
	StageAIInsight  = "ai_insight"
	StageCompliance = "compliance_scoring"
)

// StageInput is the accumulated run state a stage reads. Stages never mutate
// it; the orchestrator performs the single state append after each stage
// returns.
type StageInput struct {
	Run   *analysis.Run
	Graph *process.Graph
}

// StageOutput is the delta a stage contributes to the run.
type StageOutput struct {
	Findings   []analysis.Finding
	Insights   *analysis.AIInsights
	Compliance map[string]analysis.ComplianceResult
}

// Stage is one ordered phase of a run: a pure transformation of accumulated
// state into additional findings or compliance results. Stages must respect
// ctx cancellation between any externally-blocking calls.
type Stage interface {
	Name() string
	Run(ctx context.Context, in StageInput) (StageOutput, error)
}
