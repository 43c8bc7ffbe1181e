package analysis

import (
	"time"
)

// RunID identifier type
type RunID string

// AnalysisType enum
type AnalysisType string

const (
	TypeQuick         AnalysisType = "QUICK"
	TypeStandard      AnalysisType = "STANDARD"
	TypeComprehensive AnalysisType = "COMPREHENSIVE"
	TypeCompliance    AnalysisType = "COMPLIANCE"
)

// ValidAnalysisType reports whether t is one of the recognized analysis types.
func ValidAnalysisType(t AnalysisType) bool {
	switch t {
	case TypeQuick, TypeStandard, TypeComprehensive, TypeCompliance:
		return true
	}
	return false
}

// IncludesAI reports whether this analysis type runs the AI insight stage.
func (t AnalysisType) IncludesAI() bool {
	return t == TypeComprehensive || t == TypeCompliance
}

// Status enum
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether s permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// RiskLevel derived from the security score
type RiskLevel string

const (
	RiskCritical RiskLevel = "CRITICAL"
	RiskHigh     RiskLevel = "HIGH"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskLow      RiskLevel = "LOW"
	RiskMinimal  RiskLevel = "MINIMAL"
)

// Results holds everything the stages produced for a run.
type Results struct {
	SecurityScore     int                         `json:"securityScore"`
	RiskLevel         RiskLevel                   `json:"riskLevel"`
	TotalFindings     int                         `json:"totalFindings"`
	Findings          []Finding                   `json:"findings"`
	Recommendations   []Recommendation            `json:"recommendations"`
	ComplianceResults map[string]ComplianceResult `json:"complianceResults"`
}

// AIInsights is the free-form narrative produced by the AI insight stage.
type AIInsights struct {
	Summary         string   `json:"summary"`
	KeyFindings     []string `json:"keyFindings"`
	BusinessContext string   `json:"businessContext,omitempty"`
}

// Aggregate Root: AnalysisRun
type Run struct {
	ID           RunID        `json:"analysisId"`
	TenantID     string       `json:"tenantId"`
	ProcessID    string       `json:"processId"`
	Type         AnalysisType `json:"analysisType"`
	Standards    []string     `json:"complianceStandards,omitempty"`
	Status       Status       `json:"status"`
	Progress     int          `json:"progress"`
	CurrentStep  string       `json:"currentStep,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	StartedAt    *time.Time   `json:"startedAt,omitempty"`
	CompletedAt  *time.Time   `json:"completedAt,omitempty"`
	Results      *Results     `json:"results,omitempty"`
	AIInsights   *AIInsights  `json:"aiInsights,omitempty"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
	ProviderID   string       `json:"providerId,omitempty"`
	ArtifactURL  string       `json:"artifactUrl,omitempty"`
}

// Summary is the compact snapshot carried by progress events.
type Summary struct {
	SecurityScore        *int `json:"securityScore,omitempty"`
	TotalFindings        *int `json:"totalFindings,omitempty"`
	HighSeverityFindings *int `json:"highSeverityFindings,omitempty"`
}

// Summarize builds the event summary from the run's current results.
func (r *Run) Summarize() *Summary {
	if r.Results == nil {
		return nil
	}
	high := 0
	for _, f := range r.Results.Findings {
		if f.Severity == SeverityCritical || f.Severity == SeverityHigh {
			high++
		}
	}
	score := r.Results.SecurityScore
	total := r.Results.TotalFindings
	return &Summary{
		SecurityScore:        &score,
		TotalFindings:        &total,
		HighSeverityFindings: &high,
	}
}

// Clone returns a deep copy so callers can never mutate stored state.
func (r *Run) Clone() *Run {
	cp := *r
	if r.Standards != nil {
		cp.Standards = append([]string(nil), r.Standards...)
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		cp.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	if r.Results != nil {
		res := *r.Results
		res.Findings = append([]Finding(nil), r.Results.Findings...)
		res.Recommendations = append([]Recommendation(nil), r.Results.Recommendations...)
		if r.Results.ComplianceResults != nil {
			res.ComplianceResults = make(map[string]ComplianceResult, len(r.Results.ComplianceResults))
			for k, v := range r.Results.ComplianceResults {
				res.ComplianceResults[k] = v
			}
		}
		cp.Results = &res
	}
	if r.AIInsights != nil {
		ins := *r.AIInsights
		ins.KeyFindings = append([]string(nil), r.AIInsights.KeyFindings...)
		cp.AIInsights = &ins
	}
	return &cp
}
