package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domain "github.com/bryanwahyu/procsec/internal/domain/analysis"
)

type RunRepository struct{ db *sql.DB }

func NewRunRepository(db *sql.DB) *RunRepository { return &RunRepository{db: db} }

// Save insert/update the archived run record
func (r *RunRepository) Save(ctx context.Context, run *domain.Run) error {
	const q = `
INSERT INTO analysis_runs
(id, tenant_id, process_id, analysis_type, standards, status, progress,
 created_at, started_at, completed_at,
 security_score, risk_level, findings_total,
 results_json, artifact_url, provider_id, error_message)
VALUES ($1,$2,$3,$4,$5,$6,$7,
        $8,$9,$10,
        $11,$12,$13,
        $14,$15,$16,$17)
ON CONFLICT (id) DO UPDATE SET
 status = EXCLUDED.status,
 progress = EXCLUDED.progress,
 started_at = EXCLUDED.started_at,
 completed_at = EXCLUDED.completed_at,
 security_score = EXCLUDED.security_score,
 risk_level = EXCLUDED.risk_level,
 findings_total = EXCLUDED.findings_total,
 results_json = EXCLUDED.results_json,
 artifact_url = EXCLUDED.artifact_url,
 error_message = EXCLUDED.error_message;`

	tenant := stringOrDash(run.TenantID)
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	score, risk, total := 0, "", 0
	if run.Results != nil {
		score = run.Results.SecurityScore
		risk = string(run.Results.RiskLevel)
		total = run.Results.TotalFindings
	}
	results, err := marshalResults(run)
	if err != nil {
		return fmt.Errorf("encoding run results: %w", err)
	}

	_, err = r.db.ExecContext(ctx, q,
		run.ID, tenant, run.ProcessID, run.Type, strings.Join(run.Standards, ","),
		run.Status, run.Progress,
		created, run.StartedAt, run.CompletedAt,
		score, risk, total,
		results, run.ArtifactURL, run.ProviderID, run.ErrorMessage,
	)
	return err
}

// History returns archived runs for one process definition, newest first
func (r *RunRepository) History(ctx context.Context, tenant, processID string) ([]*domain.Run, error) {
	const q = `
SELECT id, tenant_id, process_id, analysis_type, standards, status, progress,
       created_at, started_at, completed_at,
       results_json, artifact_url, provider_id, error_message
FROM analysis_runs
WHERE tenant_id=$1 AND process_id=$2
ORDER BY created_at DESC;`
	rows, err := r.db.QueryContext(ctx, q, stringOrDash(tenant), processID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

// Paginate with offset + limit (classic pagination)
func (r *RunRepository) Paginate(ctx context.Context, tenant string, page, pageSize int) ([]*domain.Run, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT id, tenant_id, process_id, analysis_type, standards, status, progress,
       created_at, started_at, completed_at,
       results_json, artifact_url, provider_id, error_message
FROM analysis_runs
WHERE tenant_id=$1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3;`
	rows, err := r.db.QueryContext(ctx, q, stringOrDash(tenant), pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()
	return collectRuns(rows)
}

// Summary counts terminal runs since N days
func (r *RunRepository) Summary(ctx context.Context, tenant string, sinceDays int) (int, int, int, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	cut := time.Now().AddDate(0, 0, -sinceDays)

	const q = `
SELECT COUNT(*) AS total_runs,
       COALESCE(SUM(CASE WHEN status='COMPLETED' THEN 1 ELSE 0 END),0) AS completed,
       COALESCE(SUM(CASE WHEN status='FAILED' THEN 1 ELSE 0 END),0)    AS failed
FROM analysis_runs
WHERE tenant_id=$1 AND created_at >= $2;`
	var t, c, f int
	if err := r.db.QueryRowContext(ctx, q, stringOrDash(tenant), cut).Scan(&t, &c, &f); err != nil {
		return 0, 0, 0, err
	}
	return t, c, f, nil
}

func collectRuns(rows *sql.Rows) ([]*domain.Run, error) {
	var out []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(rows *sql.Rows) (*domain.Run, error) {
	var run domain.Run
	var standards string
	var started, completed sql.NullTime
	var results []byte
	if err := rows.Scan(
		&run.ID, &run.TenantID, &run.ProcessID, &run.Type, &standards, &run.Status, &run.Progress,
		&run.CreatedAt, &started, &completed,
		&results, &run.ArtifactURL, &run.ProviderID, &run.ErrorMessage,
	); err != nil {
		return nil, err
	}
	if standards != "" {
		run.Standards = strings.Split(standards, ",")
	}
	if started.Valid {
		run.StartedAt = &started.Time
	}
	if completed.Valid {
		run.CompletedAt = &completed.Time
	}
	if err := unmarshalResults(results, &run); err != nil {
		return nil, fmt.Errorf("decoding run results: %w", err)
	}
	return &run, nil
}

type resultsBlob struct {
	Results    *domain.Results    `json:"results,omitempty"`
	AIInsights *domain.AIInsights `json:"aiInsights,omitempty"`
}

func marshalResults(run *domain.Run) ([]byte, error) {
	if run.Results == nil && run.AIInsights == nil {
		return nil, nil
	}
	return json.Marshal(resultsBlob{Results: run.Results, AIInsights: run.AIInsights})
}

func unmarshalResults(data []byte, run *domain.Run) error {
	if len(data) == 0 {
		return nil
	}
	var blob resultsBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return err
	}
	run.Results = blob.Results
	run.AIInsights = blob.AIInsights
	return nil
}
