package analysis

import "context"

// RunStore port: the single source of truth the orchestrator mutates.
// Implementations must make Claim an atomic compare-and-set so two workers
// racing on the same run cannot both proceed.
type RunStore interface {
	Create(ctx context.Context, r *Run) error
	Get(ctx context.Context, id RunID) (*Run, error)
	// Claim transitions status from->to atomically. Returns false when the
	// run is not currently in `from`.
	Claim(ctx context.Context, id RunID, from, to Status) (bool, error)
	// Update applies fn to the stored run under the store's lock. Appends
	// are only legal while the run is IN_PROGRESS; Update returns
	// ErrInvalidStateTransition when fn is applied to a terminal run.
	Update(ctx context.Context, id RunID, fn func(*Run) error) error
	History(ctx context.Context, processID string) ([]*Run, error)
}

// Archive port: durable record of terminal runs (persistence adapter).
type Archive interface {
	Save(ctx context.Context, r *Run) error
	History(ctx context.Context, tenant, processID string) ([]*Run, error)
	Paginate(ctx context.Context, tenant string, page, pageSize int) ([]*Run, error)
}

// Broadcaster port: per-run multicast channel for progress events.
type Broadcaster interface {
	// Subscribe registers observerID for events of runID. Idempotent per
	// observer/run pair; returns the observer's receive channel and a
	// cleanup func equivalent to Unsubscribe.
	Subscribe(runID RunID, observerID string) (<-chan ProgressEvent, func())
	Unsubscribe(runID RunID, observerID string)
	// Publish delivers to every current subscriber for the event's run id.
	// Never blocks on slow observers.
	Publish(event ProgressEvent)
}

// ReportStore port: where completed run reports land (artifact storage).
type ReportStore interface {
	UploadReport(ctx context.Context, r *Run) (string, error)
}
