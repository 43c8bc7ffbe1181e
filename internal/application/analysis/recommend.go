package analysis

import (
	"fmt"

	"github.com/bryanwahyu/procsec/internal/domain/analysis"
)

// recommendationTemplates: one actionable recommendation family per finding
// type.
var recommendationTemplates = map[analysis.FindingType]struct {
	title     string
	body      string
	effort    analysis.Rating
	cost      analysis.Rating
	timeframe string
}{
	analysis.FindingAuthenticationGap: {
		"Enforce task assignment", "Assign every human task to an authenticated role or candidate group.",
		analysis.RatingLow, analysis.RatingLow, "1-2 weeks",
	},
	analysis.FindingAuthorizationWeakness: {
		"Tighten authorization constraints", "Separate claim and complete permissions and restrict tasks to least-privilege groups.",
		analysis.RatingMedium, analysis.RatingLow, "2-4 weeks",
	},
	analysis.FindingSensitiveDataExposure: {
		"Encrypt sensitive data objects", "Encrypt sensitive data at rest and in transit and restrict lane access.",
		analysis.RatingMedium, analysis.RatingMedium, "2-4 weeks",
	},
	analysis.FindingInputValidationMissing: {
		"Validate task inputs", "Validate and type-check process variables before every automated step.",
		analysis.RatingMedium, analysis.RatingLow, "2-4 weeks",
	},
	analysis.FindingErrorHandlingInsufficient: {
		"Add error boundary events", "Route service task failures to explicit recovery paths instead of unhandled incidents.",
		analysis.RatingLow, analysis.RatingLow, "1-2 weeks",
	},
	analysis.FindingComplianceViolation: {
		"Remediate compliance gaps", "Address the specific requirement gaps reported per standard.",
		analysis.RatingHigh, analysis.RatingMedium, "1-3 months",
	},
	analysis.FindingSecurityControlMissing: {
		"Add missing security controls", "Introduce the missing control (sandboxing, audit, monitoring) at the flagged element.",
		analysis.RatingHigh, analysis.RatingMedium, "1-3 months",
	},
}

// deriveRecommendations collapses findings into one prioritized
// recommendation per finding type present.
func deriveRecommendations(findings []analysis.Finding) []analysis.Recommendation {
	maxSeverity := make(map[analysis.FindingType]analysis.Severity)
	order := []analysis.FindingType{}
	for _, f := range findings {
		cur, seen := maxSeverity[f.Type]
		if !seen {
			order = append(order, f.Type)
			maxSeverity[f.Type] = f.Severity
			continue
		}
		if severityRank(f.Severity) > severityRank(cur) {
			maxSeverity[f.Type] = f.Severity
		}
	}

	recs := make([]analysis.Recommendation, 0, len(order))
	for i, t := range order {
		tpl, ok := recommendationTemplates[t]
		if !ok {
			continue
		}
		recs = append(recs, analysis.Recommendation{
			ID:          fmt.Sprintf("rec-%d-%s", i+1, t),
			Type:        string(t),
			Priority:    priorityForSeverity(maxSeverity[t]),
			Title:       tpl.title,
			Description: tpl.body,
			Implementation: analysis.Implementation{
				Effort:    tpl.effort,
				Cost:      tpl.cost,
				Timeframe: tpl.timeframe,
			},
		})
	}
	return recs
}

func severityRank(s analysis.Severity) int {
	switch s {
	case analysis.SeverityCritical:
		return 4
	case analysis.SeverityHigh:
		return 3
	case analysis.SeverityMedium:
		return 2
	case analysis.SeverityLow:
		return 1
	default:
		return 0
	}
}

func priorityForSeverity(s analysis.Severity) analysis.Rating {
	switch s {
	case analysis.SeverityCritical, analysis.SeverityHigh:
		return analysis.RatingHigh
	case analysis.SeverityMedium:
		return analysis.RatingMedium
	default:
		return analysis.RatingLow
	}
}
