package rules

import (
	"github.com/bryanwahyu/procsec/internal/domain/analysis"
	"github.com/bryanwahyu/procsec/internal/domain/process"
)

// Catalogue port: the rule-based scan consumed as a pure function
// graph -> findings.
type Catalogue interface {
	Scan(graph *process.Graph) []analysis.Finding
}

// ComplianceMapper port: maps finalized findings onto one compliance
// standard's requirement set.
type ComplianceMapper interface {
	Standards() []string
	MapToStandard(findings []analysis.Finding, standard string) (analysis.ComplianceResult, error)
}
