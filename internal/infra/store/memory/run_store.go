package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bryanwahyu/procsec/internal/domain/analysis"
)

// RunStore keeps every run in memory and is the single source of truth while
// a run executes. All mutation goes through the store's lock; Claim is the
// compare-and-set that hands a run to exactly one worker.
type RunStore struct {
	mu   sync.RWMutex
	runs map[analysis.RunID]*analysis.Run
}

func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[analysis.RunID]*analysis.Run)}
}

func (s *RunStore) Create(ctx context.Context, r *analysis.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = r.Clone()
	return nil
}

func (s *RunStore) Get(ctx context.Context, id analysis.RunID) (*analysis.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, analysis.ErrRunNotFound
	}
	return r.Clone(), nil
}

// Claim atomically moves the run from `from` to `to`. Two workers racing on
// the same transition see exactly one true.
func (s *RunStore) Claim(ctx context.Context, id analysis.RunID, from, to analysis.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return false, analysis.ErrRunNotFound
	}
	if r.Status != from {
		return false, nil
	}
	r.Status = to
	return true, nil
}

// Update applies fn to the stored run under the lock. Terminal runs are
// immutable; fn never sees one.
func (s *RunStore) Update(ctx context.Context, id analysis.RunID, fn func(*analysis.Run) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return analysis.ErrRunNotFound
	}
	if r.Status.Terminal() {
		return analysis.ErrInvalidStateTransition
	}
	return fn(r)
}

// History returns runs for a process definition, newest first.
func (s *RunStore) History(ctx context.Context, processID string) ([]*analysis.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*analysis.Run
	for _, r := range s.runs {
		if r.ProcessID == processID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
