package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/procsec/internal/domain/analysis"
)

func seedRun(t *testing.T, s *RunStore, id analysis.RunID, status analysis.Status) {
	t.Helper()
	require.NoError(t, s.Create(context.Background(), &analysis.Run{
		ID:        id,
		ProcessID: "proc-1",
		Type:      analysis.TypeStandard,
		Status:    status,
		CreatedAt: time.Now(),
	}))
}

func TestRunStore_GetUnknownRun(t *testing.T) {
	s := NewRunStore()
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, analysis.ErrRunNotFound)
}

func TestRunStore_ClaimHandsRunToExactlyOneWorker(t *testing.T) {
	s := NewRunStore()
	seedRun(t, s, "run-1", analysis.StatusPending)

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Claim(context.Background(), "run-1", analysis.StatusPending, analysis.StatusInProgress)
			require.NoError(t, err)
			if ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count)

	got, err := s.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, analysis.StatusInProgress, got.Status)
}

func TestRunStore_ClaimWrongSourceStatus(t *testing.T) {
	s := NewRunStore()
	seedRun(t, s, "run-1", analysis.StatusCancelled)

	ok, err := s.Claim(context.Background(), "run-1", analysis.StatusPending, analysis.StatusInProgress)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunStore_UpdateRefusesTerminalRuns(t *testing.T) {
	s := NewRunStore()
	seedRun(t, s, "run-1", analysis.StatusCompleted)

	err := s.Update(context.Background(), "run-1", func(r *analysis.Run) error {
		r.ErrorMessage = "tampered"
		return nil
	})
	assert.ErrorIs(t, err, analysis.ErrInvalidStateTransition)

	got, err := s.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Empty(t, got.ErrorMessage)
}

func TestRunStore_GetReturnsIsolatedCopies(t *testing.T) {
	s := NewRunStore()
	seedRun(t, s, "run-1", analysis.StatusInProgress)

	require.NoError(t, s.Update(context.Background(), "run-1", func(r *analysis.Run) error {
		r.Results = &analysis.Results{
			Findings: []analysis.Finding{{ID: "f1", Title: "original"}},
		}
		return nil
	}))

	first, err := s.Get(context.Background(), "run-1")
	require.NoError(t, err)
	first.Results.Findings[0].Title = "mutated by caller"

	second, err := s.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "original", second.Results.Findings[0].Title)
}

func TestRunStore_HistoryNewestFirstPerProcess(t *testing.T) {
	s := NewRunStore()
	ctx := context.Background()
	base := time.Now()

	for i, id := range []analysis.RunID{"a", "b", "c"} {
		require.NoError(t, s.Create(ctx, &analysis.Run{
			ID:        id,
			ProcessID: "proc-1",
			Status:    analysis.StatusCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.Create(ctx, &analysis.Run{
		ID:        "other",
		ProcessID: "proc-2",
		Status:    analysis.StatusCompleted,
		CreatedAt: base,
	}))

	history, err := s.History(ctx, "proc-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, analysis.RunID("c"), history[0].ID)
	assert.Equal(t, analysis.RunID("a"), history[2].ID)
}
