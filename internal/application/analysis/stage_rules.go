package analysis

import (
	"context"

	"github.com/bryanwahyu/procsec/internal/domain/rules"
)

// RuleScanStage runs the rule catalogue against the element graph. Always
// the first stage of every run.
type RuleScanStage struct {
	Catalogue rules.Catalogue
}

func (s *RuleScanStage) Name() string { return StageRuleScan }

func (s *RuleScanStage) Run(ctx context.Context, in StageInput) (StageOutput, error) {
	if err := ctx.Err(); err != nil {
		return StageOutput{}, err
	}
	return StageOutput{Findings: s.Catalogue.Scan(in.Graph)}, nil
}
