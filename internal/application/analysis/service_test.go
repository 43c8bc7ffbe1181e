package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/procsec/internal/application"
	domai "github.com/bryanwahyu/procsec/internal/domain/ai"
	"github.com/bryanwahyu/procsec/internal/domain/analysis"
	"github.com/bryanwahyu/procsec/internal/domain/process"
	infraai "github.com/bryanwahyu/procsec/internal/infra/ai"
	"github.com/bryanwahyu/procsec/internal/infra/rules"
	"github.com/bryanwahyu/procsec/internal/infra/store/memory"
	"github.com/bryanwahyu/procsec/internal/infra/stream"
)

const insightJSON = `{
  "summary": "The approval process lacks segregation of duties.",
  "keyFindings": ["Single approver controls the full payment path"],
  "findings": [
    {
      "type": "AUTHORIZATION_WEAKNESS",
      "severity": "HIGH",
      "title": "No segregation of duties",
      "description": "The same role approves and executes payments.",
      "elementId": "t1",
      "elementType": "UserTask",
      "likelihood": "HIGH",
      "impact": "MEDIUM",
      "recommendation": "Split approval and execution across roles.",
      "confidence": 0.85
    }
  ]
}`

// fakeLoader serves a fixed graph per definition id.
type fakeLoader struct {
	graphs map[process.DefinitionID]*process.Graph
}

func (l *fakeLoader) Validate(ctx context.Context, raw []byte) (process.DefinitionID, error) {
	return "", process.ErrInvalidDefinition
}

func (l *fakeLoader) ElementGraph(ctx context.Context, id process.DefinitionID) (*process.Graph, error) {
	g, ok := l.graphs[id]
	if !ok {
		return nil, process.ErrDefinitionNotFound
	}
	return g, nil
}

// scriptedProvider fails `failures` times with failErr, then succeeds. When
// blocking it parks every call until the context is cancelled.
type scriptedProvider struct {
	id       string
	failures int32
	failErr  func() error
	calls    atomic.Int32
	started  chan struct{}
	blocking bool
}

func (p *scriptedProvider) ID() string { return p.id }

func (p *scriptedProvider) Invoke(ctx context.Context, req domai.Request) (domai.Response, error) {
	n := p.calls.Add(1)
	if p.started != nil {
		select {
		case p.started <- struct{}{}:
		default:
		}
	}
	if p.blocking {
		<-ctx.Done()
		return domai.Response{}, ctx.Err()
	}
	if n <= atomic.LoadInt32(&p.failures) {
		return domai.Response{}, p.failErr()
	}
	return domai.Response{Content: insightJSON, Model: req.Model}, nil
}

func (p *scriptedProvider) TestConnectivity(ctx context.Context, model string) domai.ConnectivityReport {
	return domai.ConnectivityReport{ProviderID: p.id, Reachable: true}
}

type fixture struct {
	svc      *Service
	store    *memory.RunStore
	hub      *stream.Hub
	provider *scriptedProvider
}

func newFixture(t *testing.T, provider *scriptedProvider) *fixture {
	t.Helper()
	store := memory.NewRunStore()
	hub := stream.NewHub()
	t.Cleanup(hub.Close)

	gw := infraai.NewGateway(
		infraai.WithMaxAttempts(3),
		infraai.WithBaseDelay(time.Millisecond),
		infraai.WithCallTimeout(2*time.Second),
	)
	if provider == nil {
		provider = &scriptedProvider{id: "openai"}
	}
	gw.Register(provider)

	loader := &fakeLoader{graphs: map[process.DefinitionID]*process.Graph{
		"proc-1": {
			DefinitionID: "proc-1",
			Name:         "Payment approval",
			Elements: []process.Element{
				{ID: "t1", Type: "UserTask", Name: "Approve payment"},
				{ID: "d1", Type: "DataObject", Name: "Card details", Properties: map[string]string{"sensitive": "true"}},
			},
		},
	}}

	svc := &Service{
		Runs:            store,
		Loader:          loader,
		Catalogue:       rules.NewCatalogue(),
		Mapper:          rules.NewMapper(),
		Gateway:         gw,
		Broadcast:       hub,
		Clock:           application.SystemClock{},
		DefaultProvider: "openai",
		Model:           "gpt-4o",
	}
	return &fixture{svc: svc, store: store, hub: hub, provider: provider}
}

func waitTerminal(t *testing.T, f *fixture, id analysis.RunID) *analysis.Run {
	t.Helper()
	var run *analysis.Run
	require.Eventually(t, func() bool {
		r, err := f.svc.GetResult(context.Background(), id)
		if err != nil {
			return false
		}
		run = r
		return r.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return run
}

func TestSubmit_RejectsUnknownAnalysisType(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Submit(context.Background(), SubmitCommand{
		ProcessID: "proc-1",
		Type:      "FULL",
	})
	assert.ErrorIs(t, err, analysis.ErrInvalidRequest)
}

func TestSubmit_RejectsUnknownStandard(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Submit(context.Background(), SubmitCommand{
		ProcessID: "proc-1",
		Type:      analysis.TypeCompliance,
		Standards: []string{"ISO-1234"},
	})
	assert.ErrorIs(t, err, analysis.ErrInvalidRequest)
}

func TestSubmit_RejectsUnknownProcess(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Submit(context.Background(), SubmitCommand{
		ProcessID: "missing",
		Type:      analysis.TypeStandard,
	})
	assert.ErrorIs(t, err, analysis.ErrInvalidRequest)
}

func TestStandardRun_RuleScanOnly(t *testing.T) {
	f := newFixture(t, nil)

	id, err := f.svc.Submit(context.Background(), SubmitCommand{
		TenantID:  "acme",
		ProcessID: "proc-1",
		Type:      analysis.TypeStandard,
	})
	require.NoError(t, err)

	run := waitTerminal(t, f, id)
	assert.Equal(t, analysis.StatusCompleted, run.Status)
	assert.Equal(t, 100, run.Progress)
	require.NotNil(t, run.Results)
	assert.Empty(t, run.Results.ComplianceResults)
	assert.Nil(t, run.AIInsights)
	require.NotEmpty(t, run.Results.Findings)
	for _, finding := range run.Results.Findings {
		assert.False(t, finding.AIGenerated)
	}
	assert.Equal(t, int32(0), f.provider.calls.Load())
	assert.NotEmpty(t, run.Results.Recommendations)
	assert.NotNil(t, run.StartedAt)
	assert.NotNil(t, run.CompletedAt)
}

func TestComprehensiveRun_RetriesProviderThenCompletes(t *testing.T) {
	provider := &scriptedProvider{
		id:       "openai",
		failures: 2,
		failErr: func() error {
			return domai.NewTimeout("openai", errors.New("deadline exceeded"))
		},
	}
	f := newFixture(t, provider)

	id, err := f.svc.Submit(context.Background(), SubmitCommand{
		TenantID:  "acme",
		ProcessID: "proc-1",
		Type:      analysis.TypeComprehensive,
		Standards: []string{"GDPR"},
	})
	require.NoError(t, err)

	run := waitTerminal(t, f, id)
	assert.Equal(t, analysis.StatusCompleted, run.Status)
	assert.Equal(t, int32(3), provider.calls.Load())

	require.NotNil(t, run.Results)
	aiFound := false
	for _, finding := range run.Results.Findings {
		if finding.AIGenerated {
			aiFound = true
			assert.InDelta(t, 0.85, finding.Confidence, 0.001)
		}
	}
	assert.True(t, aiFound, "expected at least one AI-generated finding")
	require.NotNil(t, run.AIInsights)
	assert.NotEmpty(t, run.AIInsights.Summary)
	require.Contains(t, run.Results.ComplianceResults, "GDPR")
}

func TestFailedRun_SurfacesFatalProviderError(t *testing.T) {
	provider := &scriptedProvider{
		id:       "openai",
		failures: 99,
		failErr: func() error {
			return domai.NewRejected("openai", errors.New("model does not exist"))
		},
	}
	f := newFixture(t, provider)

	id, err := f.svc.Submit(context.Background(), SubmitCommand{
		ProcessID: "proc-1",
		Type:      analysis.TypeComprehensive,
	})
	require.NoError(t, err)

	run := waitTerminal(t, f, id)
	assert.Equal(t, analysis.StatusFailed, run.Status)
	assert.NotEmpty(t, run.ErrorMessage)
	assert.Contains(t, run.ErrorMessage, StageAIInsight)
	// Fatal errors surface on first occurrence, never retried.
	assert.Equal(t, int32(1), provider.calls.Load())
	// Rule scan findings from the stage before the failure are kept.
	require.NotNil(t, run.Results)
	assert.NotEmpty(t, run.Results.Findings)
}

func TestCancelPendingRun_NeverEntersInProgress(t *testing.T) {
	f := newFixture(t, nil)

	// Create the PENDING record directly so no worker races the cancel.
	run := &analysis.Run{
		ID:        "run-pending",
		ProcessID: "proc-1",
		Type:      analysis.TypeStandard,
		Status:    analysis.StatusPending,
		CreatedAt: time.Now(),
	}
	require.NoError(t, f.store.Create(context.Background(), run))

	require.NoError(t, f.svc.Cancel(context.Background(), run.ID))

	got, err := f.svc.GetResult(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, analysis.StatusCancelled, got.Status)
	assert.Nil(t, got.StartedAt)
	assert.NotEmpty(t, got.ErrorMessage)

	// A worker arriving late cannot claim the cancelled run.
	err = f.svc.Execute(context.Background(), run.ID)
	assert.ErrorIs(t, err, analysis.ErrInvalidStateTransition)
}

func TestCancelDuringAIStage_KeepsRuleScanFindings(t *testing.T) {
	provider := &scriptedProvider{id: "openai", blocking: true, started: make(chan struct{}, 1)}
	f := newFixture(t, provider)

	id, err := f.svc.Submit(context.Background(), SubmitCommand{
		ProcessID: "proc-1",
		Type:      analysis.TypeComprehensive,
		Standards: []string{"GDPR"},
	})
	require.NoError(t, err)

	select {
	case <-provider.started:
	case <-time.After(5 * time.Second):
		t.Fatal("AI stage never reached the provider")
	}
	require.NoError(t, f.svc.Cancel(context.Background(), id))

	run := waitTerminal(t, f, id)
	assert.Equal(t, analysis.StatusCancelled, run.Status)
	require.NotNil(t, run.Results)
	assert.NotEmpty(t, run.Results.Findings, "rule scan findings must be preserved")
	assert.Empty(t, run.Results.ComplianceResults, "compliance stage must not have run")
}

func TestCancelTerminalRun_ReportsAlreadyTerminal(t *testing.T) {
	f := newFixture(t, nil)

	id, err := f.svc.Submit(context.Background(), SubmitCommand{
		ProcessID: "proc-1",
		Type:      analysis.TypeQuick,
	})
	require.NoError(t, err)
	waitTerminal(t, f, id)

	err = f.svc.Cancel(context.Background(), id)
	assert.ErrorIs(t, err, analysis.ErrInvalidStateTransition)
}

func TestProgressEvents_MonotoneAndTerminalLast(t *testing.T) {
	f := newFixture(t, nil)

	id, err := f.svc.Submit(context.Background(), SubmitCommand{
		ProcessID: "proc-1",
		Type:      analysis.TypeComprehensive,
		Standards: []string{"GDPR", "HIPAA"},
	})
	require.NoError(t, err)

	ch, cleanup := f.hub.Subscribe(id, "observer-1")
	defer cleanup()

	var events []analysis.ProgressEvent
	deadline := time.After(5 * time.Second)
loop:
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				break loop
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("stream never terminated")
		}
	}

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.True(t, last.TerminalEvent(), "terminal event must be delivered last")
	assert.Equal(t, analysis.EventComplete, last.Type)
	assert.Equal(t, 100, last.Progress)

	prev := -1
	for _, ev := range events {
		if ev.Type != analysis.EventProgress && ev.Type != analysis.EventComplete {
			continue
		}
		assert.GreaterOrEqual(t, ev.Progress, prev, "progress must be non-decreasing")
		prev = ev.Progress
	}
}

func TestLateSubscriber_GetsExactlyTerminalEvent(t *testing.T) {
	f := newFixture(t, nil)

	id, err := f.svc.Submit(context.Background(), SubmitCommand{
		ProcessID: "proc-1",
		Type:      analysis.TypeStandard,
	})
	require.NoError(t, err)
	waitTerminal(t, f, id)

	// The hub records the terminal event; a late subscriber gets it once.
	require.Eventually(t, func() bool { return f.hub.Terminal(id) }, time.Second, 5*time.Millisecond)

	ch, cleanup := f.hub.Subscribe(id, "latecomer")
	defer cleanup()

	var events []analysis.ProgressEvent
	for ev := range ch {
		events = append(events, ev)
	}
	require.Len(t, events, 1)
	assert.Equal(t, analysis.EventComplete, events[0].Type)
}

func TestGetHistory_NewestFirst(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		run := &analysis.Run{
			ID:        analysis.RunID(fmt.Sprintf("run-%d", i)),
			ProcessID: "proc-1",
			Type:      analysis.TypeQuick,
			Status:    analysis.StatusCompleted,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, f.store.Create(ctx, run))
	}

	history, err := f.svc.GetHistory(ctx, "proc-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, analysis.RunID("run-2"), history[0].ID)
	assert.Equal(t, analysis.RunID("run-0"), history[2].ID)
}

func TestTerminalRun_IsImmutable(t *testing.T) {
	f := newFixture(t, nil)

	id, err := f.svc.Submit(context.Background(), SubmitCommand{
		ProcessID: "proc-1",
		Type:      analysis.TypeQuick,
	})
	require.NoError(t, err)
	first := waitTerminal(t, f, id)

	err = f.store.Update(context.Background(), id, func(r *analysis.Run) error {
		r.ErrorMessage = "tampered"
		return nil
	})
	assert.ErrorIs(t, err, analysis.ErrInvalidStateTransition)

	second, err := f.svc.GetResult(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, first.Results, second.Results)
}
