package analysis

import (
	"context"

	"github.com/bryanwahyu/procsec/internal/domain/analysis"
	"github.com/bryanwahyu/procsec/internal/domain/rules"
)

// ComplianceStage scores the run's finalized findings against every
// requested standard. It always runs last, so rule scan and AI insight
// findings are complete by the time it reads them.
type ComplianceStage struct {
	Mapper rules.ComplianceMapper
}

func (s *ComplianceStage) Name() string { return StageCompliance }

func (s *ComplianceStage) Run(ctx context.Context, in StageInput) (StageOutput, error) {
	results := make(map[string]analysis.ComplianceResult, len(in.Run.Standards))
	for _, std := range in.Run.Standards {
		if err := ctx.Err(); err != nil {
			return StageOutput{}, err
		}
		res, err := s.Mapper.MapToStandard(priorFindings(in), std)
		if err != nil {
			return StageOutput{}, err
		}
		results[std] = res
	}
	return StageOutput{Compliance: results}, nil
}
