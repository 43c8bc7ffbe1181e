package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/bryanwahyu/procsec/internal/application"
	domai "github.com/bryanwahyu/procsec/internal/domain/ai"
	"github.com/bryanwahyu/procsec/internal/domain/analysis"
	"github.com/bryanwahyu/procsec/internal/domain/process"
	"github.com/bryanwahyu/procsec/internal/domain/rules"
)

// Service implements the analysis run orchestrator use-cases. It owns the
// run lifecycle, sequences the stages, updates the run store and broadcasts
// progress. Safe for concurrent use; each run executes on its own goroutine
// while stages within a run stay strictly sequential.
type Service struct {
	Runs      analysis.RunStore
	Loader    process.Loader
	Catalogue rules.Catalogue
	Mapper    rules.ComplianceMapper
	Gateway   domai.Gateway
	Broadcast analysis.Broadcaster
	Archive   analysis.Archive     // optional, best-effort durable record
	Reports   analysis.ReportStore // optional, report artifact upload
	Clock     application.Clock

	DefaultProvider string
	Model           string

	mu      sync.Mutex
	cancels map[analysis.RunID]context.CancelFunc
}

// SubmitCommand carries everything needed to create a run.
type SubmitCommand struct {
	TenantID   string
	ProcessID  string
	Type       analysis.AnalysisType
	Standards  []string
	ProviderID string
}

// Submit validates the request, creates a PENDING run and schedules its
// execution in the background. Returns immediately; callers stream progress
// or poll GetResult.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (analysis.RunID, error) {
	if !analysis.ValidAnalysisType(cmd.Type) {
		return "", fmt.Errorf("%w: unknown analysis type %q", analysis.ErrInvalidRequest, cmd.Type)
	}
	if len(cmd.Standards) > 0 {
		known := make(map[string]bool)
		for _, std := range s.Mapper.Standards() {
			known[std] = true
		}
		for _, std := range cmd.Standards {
			if !known[std] {
				return "", fmt.Errorf("%w: unknown compliance standard %q", analysis.ErrInvalidRequest, std)
			}
		}
	}
	// The definition must already be validated by the loader collaborator.
	if _, err := s.Loader.ElementGraph(ctx, process.DefinitionID(cmd.ProcessID)); err != nil {
		return "", fmt.Errorf("%w: process definition %q: %v", analysis.ErrInvalidRequest, cmd.ProcessID, err)
	}

	now := s.Clock.Now()
	run := &analysis.Run{
		ID:         analysis.RunID(uuid.New().String()),
		TenantID:   cmd.TenantID,
		ProcessID:  cmd.ProcessID,
		Type:       cmd.Type,
		Standards:  append([]string(nil), cmd.Standards...),
		Status:     analysis.StatusPending,
		CreatedAt:  now,
		ProviderID: cmd.ProviderID,
	}
	if err := s.Runs.Create(ctx, run); err != nil {
		return "", err
	}

	// Run until done on a background context so the submitting request's
	// cancellation does not abort the analysis.
	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.cancels == nil {
		s.cancels = make(map[analysis.RunID]context.CancelFunc)
	}
	s.cancels[run.ID] = cancel
	s.mu.Unlock()

	go func() {
		defer s.release(run.ID)
		if err := s.Execute(runCtx, run.ID); err != nil && !errors.Is(err, analysis.ErrInvalidStateTransition) {
			log.Printf("analysis: run %s worker error: %v", run.ID, err)
		}
	}()

	return run.ID, nil
}

func (s *Service) release(id analysis.RunID) {
	s.mu.Lock()
	cancel := s.cancels[id]
	delete(s.cancels, id)
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Execute claims the run and drives it through its stages. Exactly one
// worker per run proceeds past the PENDING->IN_PROGRESS compare-and-set; a
// losing worker gets ErrInvalidStateTransition and must not touch the run.
func (s *Service) Execute(ctx context.Context, id analysis.RunID) error {
	claimed, err := s.Runs.Claim(ctx, id, analysis.StatusPending, analysis.StatusInProgress)
	if err != nil {
		return err
	}
	if !claimed {
		return fmt.Errorf("%w: run %s is not pending", analysis.ErrInvalidStateTransition, id)
	}

	now := s.Clock.Now()
	if err := s.Runs.Update(ctx, id, func(r *analysis.Run) error {
		r.StartedAt = &now
		return nil
	}); err != nil {
		return err
	}

	snapshot, err := s.Runs.Get(ctx, id)
	if err != nil {
		return err
	}
	graph, err := s.Loader.ElementGraph(ctx, process.DefinitionID(snapshot.ProcessID))
	if err != nil {
		s.finalizeFailed(id, analysis.NewStageError(StageRuleScan, err))
		return nil
	}

	stages := s.stagesFor(snapshot)
	total := len(stages)
	for i, st := range stages {
		if ctx.Err() != nil {
			s.finalizeCancelled(id)
			return nil
		}
		progress := i * 100 / total
		s.setProgress(ctx, id, progress, st.Name())
		s.publishProgress(id, progress, st.Name(), snapshot)

		out, err := st.Run(ctx, StageInput{Run: snapshot, Graph: graph})
		if err != nil {
			// Caller-requested stop is CANCELLED, not FAILED, even when
			// the proximate cause surfaced as a provider error.
			if domai.Cancelled(err) || ctx.Err() != nil {
				s.finalizeCancelled(id)
				return nil
			}
			s.finalizeFailed(id, analysis.NewStageError(st.Name(), err))
			return nil
		}

		if err := s.appendOutput(ctx, id, out); err != nil {
			s.finalizeFailed(id, analysis.NewStageError(st.Name(), err))
			return nil
		}
		if snapshot, err = s.Runs.Get(ctx, id); err != nil {
			return err
		}
	}

	s.finalizeCompleted(id)
	return nil
}

// stagesFor builds the fixed-order stage sequence for one run: Rule Scan,
// then AI Insight when the analysis type requests it, then Compliance
// Scoring when standards were given.
func (s *Service) stagesFor(r *analysis.Run) []Stage {
	stages := []Stage{&RuleScanStage{Catalogue: s.Catalogue}}
	if r.Type.IncludesAI() {
		stages = append(stages, &AIInsightStage{
			Gateway:         s.Gateway,
			DefaultProvider: s.DefaultProvider,
			Model:           s.Model,
		})
	}
	if len(r.Standards) > 0 {
		stages = append(stages, &ComplianceStage{Mapper: s.Mapper})
	}
	return stages
}

// Cancel stops a PENDING or IN_PROGRESS run. Terminal runs are reported as
// already terminal with no side effect.
func (s *Service) Cancel(ctx context.Context, id analysis.RunID) error {
	run, err := s.Runs.Get(ctx, id)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return fmt.Errorf("%w: run %s already %s", analysis.ErrInvalidStateTransition, id, run.Status)
	}

	if run.Status == analysis.StatusPending {
		cancelled := false
		now := s.Clock.Now()
		err := s.Runs.Update(ctx, id, func(r *analysis.Run) error {
			if r.Status != analysis.StatusPending {
				return nil
			}
			r.Status = analysis.StatusCancelled
			r.CompletedAt = &now
			r.ErrorMessage = "analysis cancelled before execution"
			cancelled = true
			return nil
		})
		if err != nil {
			return err
		}
		if cancelled {
			s.publishTerminalError(id, analysis.StatusCancelled, &analysis.ErrorDescriptor{
				Code:    analysis.CodeCancelled,
				Message: "analysis cancelled before execution",
			})
			s.archive(id)
			s.release(id)
			return nil
		}
		// A worker claimed the run between Get and Update; fall through to
		// the cooperative path.
	}

	s.mu.Lock()
	cancel := s.cancels[id]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// GetResult returns the current snapshot regardless of status.
func (s *Service) GetResult(ctx context.Context, id analysis.RunID) (*analysis.Run, error) {
	return s.Runs.Get(ctx, id)
}

// GetHistory returns all runs for a process definition, newest first.
func (s *Service) GetHistory(ctx context.Context, processID string) ([]*analysis.Run, error) {
	return s.Runs.History(ctx, processID)
}

//
// ==== internal transitions ====
//

func (s *Service) setProgress(ctx context.Context, id analysis.RunID, progress int, step string) {
	_ = s.Runs.Update(ctx, id, func(r *analysis.Run) error {
		r.Progress = progress
		r.CurrentStep = step
		return nil
	})
}

// appendOutput performs the single state append for a finished stage and
// recomputes the derived score fields.
func (s *Service) appendOutput(ctx context.Context, id analysis.RunID, out StageOutput) error {
	return s.Runs.Update(ctx, id, func(r *analysis.Run) error {
		if r.Results == nil {
			r.Results = &analysis.Results{ComplianceResults: map[string]analysis.ComplianceResult{}}
		}
		r.Results.Findings = append(r.Results.Findings, out.Findings...)
		if out.Insights != nil {
			r.AIInsights = out.Insights
		}
		for std, res := range out.Compliance {
			r.Results.ComplianceResults[std] = res
		}
		counts := analysis.CountSeverities(r.Results.Findings)
		r.Results.TotalFindings = counts.Total
		r.Results.SecurityScore = analysis.SecurityScore(counts)
		r.Results.RiskLevel = analysis.RiskLevelForScore(r.Results.SecurityScore)
		r.Results.Recommendations = deriveRecommendations(r.Results.Findings)
		return nil
	})
}

func (s *Service) finalizeCompleted(id analysis.RunID) {
	ctx := context.Background()
	now := s.Clock.Now()
	// Upload before the terminal transition: terminal runs are immutable,
	// so the artifact URL has to land while the run is still IN_PROGRESS.
	s.uploadReport(id)
	_ = s.Runs.Update(ctx, id, func(r *analysis.Run) error {
		r.Status = analysis.StatusCompleted
		r.Progress = 100
		r.CurrentStep = ""
		r.CompletedAt = &now
		return nil
	})
	s.archive(id)

	run, err := s.Runs.Get(ctx, id)
	if err != nil {
		return
	}
	s.Broadcast.Publish(analysis.ProgressEvent{
		Type:       analysis.EventComplete,
		AnalysisID: id,
		Progress:   100,
		Status:     analysis.StatusCompleted,
		Summary:    run.Summarize(),
		Timestamp:  now,
	})
}

func (s *Service) finalizeFailed(id analysis.RunID, stageErr *analysis.StageError) {
	ctx := context.Background()
	now := s.Clock.Now()
	_ = s.Runs.Update(ctx, id, func(r *analysis.Run) error {
		r.Status = analysis.StatusFailed
		r.CompletedAt = &now
		r.ErrorMessage = stageErr.Error()
		return nil
	})
	s.archive(id)

	code := analysis.CodeStageFailed
	var pe *domai.ProviderError
	if errors.As(stageErr.Err, &pe) {
		code = pe.Code
	}
	s.publishTerminalError(id, analysis.StatusFailed, &analysis.ErrorDescriptor{
		Code:    code,
		Message: stageErr.Error(),
	})
}

// finalizeCancelled preserves whatever findings earlier stages appended.
func (s *Service) finalizeCancelled(id analysis.RunID) {
	ctx := context.Background()
	now := s.Clock.Now()
	_ = s.Runs.Update(ctx, id, func(r *analysis.Run) error {
		r.Status = analysis.StatusCancelled
		r.CompletedAt = &now
		r.ErrorMessage = "analysis cancelled"
		return nil
	})
	s.archive(id)
	s.publishTerminalError(id, analysis.StatusCancelled, &analysis.ErrorDescriptor{
		Code:    analysis.CodeCancelled,
		Message: "analysis cancelled",
	})
}

func (s *Service) publishProgress(id analysis.RunID, progress int, step string, snapshot *analysis.Run) {
	s.Broadcast.Publish(analysis.ProgressEvent{
		Type:        analysis.EventProgress,
		AnalysisID:  id,
		Progress:    progress,
		CurrentStep: step,
		Status:      analysis.StatusInProgress,
		Summary:     snapshot.Summarize(),
		Timestamp:   s.Clock.Now(),
	})
}

func (s *Service) publishTerminalError(id analysis.RunID, status analysis.Status, desc *analysis.ErrorDescriptor) {
	s.Broadcast.Publish(analysis.ProgressEvent{
		Type:       analysis.EventError,
		AnalysisID: id,
		Status:     status,
		Error:      desc,
		Timestamp:  s.Clock.Now(),
	})
}

// archive writes the terminal run to the durable archive, best effort.
func (s *Service) archive(id analysis.RunID) {
	if s.Archive == nil {
		return
	}
	run, err := s.Runs.Get(context.Background(), id)
	if err != nil {
		return
	}
	if err := s.Archive.Save(context.Background(), run); err != nil {
		log.Printf("analysis: archive run %s: %v", id, err)
	}
}

// uploadReport stores the completed result set as an artifact and records
// its URL on the run.
func (s *Service) uploadReport(id analysis.RunID) {
	if s.Reports == nil {
		return
	}
	ctx := context.Background()
	run, err := s.Runs.Get(ctx, id)
	if err != nil {
		return
	}
	url, err := s.Reports.UploadReport(ctx, run)
	if err != nil {
		log.Printf("analysis: upload report for run %s: %v", id, err)
		return
	}
	_ = s.Runs.Update(ctx, id, func(r *analysis.Run) error {
		r.ArtifactURL = url
		return nil
	})
}
