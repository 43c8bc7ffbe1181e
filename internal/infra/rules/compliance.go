package rules

import (
	"fmt"

	"github.com/bryanwahyu/procsec/internal/domain/analysis"
)

// requirement is one line item of a standard's built-in requirement set. The
// violatedBy set names finding types whose presence fails the requirement.
type requirement struct {
	name        string
	description string
	violatedBy  []analysis.FindingType
}

// builtinStandards maps each supported standard to its requirement set.
var builtinStandards = map[string][]requirement{
	"GDPR": {
		{"Art. 32 - Security of processing", "Personal data is protected in transit and at rest", []analysis.FindingType{analysis.FindingSensitiveDataExposure}},
		{"Art. 25 - Data protection by design", "Access to personal data is restricted to assigned roles", []analysis.FindingType{analysis.FindingAuthorizationWeakness, analysis.FindingAuthenticationGap}},
		{"Art. 5 - Integrity and confidentiality", "Processing steps validate and handle data safely", []analysis.FindingType{analysis.FindingInputValidationMissing, analysis.FindingErrorHandlingInsufficient}},
	},
	"PCI-DSS": {
		{"Req. 3 - Protect stored cardholder data", "Cardholder data is encrypted wherever stored", []analysis.FindingType{analysis.FindingSensitiveDataExposure}},
		{"Req. 7 - Restrict access by need to know", "Tasks touching cardholder data enforce role restrictions", []analysis.FindingType{analysis.FindingAuthorizationWeakness}},
		{"Req. 8 - Identify and authenticate access", "Every human step is attributable to an authenticated identity", []analysis.FindingType{analysis.FindingAuthenticationGap}},
		{"Req. 6 - Develop secure systems", "Automated steps validate inputs and avoid injectable code", []analysis.FindingType{analysis.FindingInputValidationMissing, analysis.FindingSecurityControlMissing}},
	},
	"SOX": {
		{"Sec. 404 - Internal controls", "Controls exist on every financially-relevant step", []analysis.FindingType{analysis.FindingSecurityControlMissing}},
		{"Sec. 302 - Accountability", "Actions are attributable to assigned individuals", []analysis.FindingType{analysis.FindingAuthenticationGap, analysis.FindingAuthorizationWeakness}},
	},
	"HIPAA": {
		{"164.312(a) - Access control", "PHI access is limited to authorized roles", []analysis.FindingType{analysis.FindingAuthorizationWeakness, analysis.FindingAuthenticationGap}},
		{"164.312(e) - Transmission security", "PHI is encrypted in transit and at rest", []analysis.FindingType{analysis.FindingSensitiveDataExposure}},
		{"164.312(b) - Audit controls", "Failures are recorded and handled", []analysis.FindingType{analysis.FindingErrorHandlingInsufficient}},
	},
}

// Mapper scores finalized findings against a standard's built-in requirement
// set. It assumes the rule scan and AI insight findings are already final.
type Mapper struct{}

func NewMapper() *Mapper { return &Mapper{} }

func (m *Mapper) Standards() []string {
	out := make([]string, 0, len(builtinStandards))
	for s := range builtinStandards {
		out = append(out, s)
	}
	return out
}

// Supported reports whether the standard has a built-in requirement set.
func Supported(standard string) bool {
	_, ok := builtinStandards[standard]
	return ok
}

func (m *Mapper) MapToStandard(findings []analysis.Finding, standard string) (analysis.ComplianceResult, error) {
	reqs, ok := builtinStandards[standard]
	if !ok {
		return analysis.ComplianceResult{}, fmt.Errorf("unsupported compliance standard: %s", standard)
	}

	byType := make(map[analysis.FindingType][]analysis.Finding)
	for _, f := range findings {
		byType[f.Type] = append(byType[f.Type], f)
	}

	result := analysis.ComplianceResult{
		Gaps:         []string{},
		Requirements: make([]analysis.ComplianceRequirement, 0, len(reqs)),
	}
	passed := 0
	for _, req := range reqs {
		var violations []analysis.Finding
		for _, t := range req.violatedBy {
			violations = append(violations, byType[t]...)
		}
		if len(violations) == 0 {
			passed++
			result.Requirements = append(result.Requirements, analysis.ComplianceRequirement{
				Requirement: req.name,
				Status:      analysis.Compliant,
				Description: req.description,
			})
			continue
		}
		result.Requirements = append(result.Requirements, analysis.ComplianceRequirement{
			Requirement: req.name,
			Status:      analysis.NonCompliant,
			Description: fmt.Sprintf("%s (%d violating findings)", req.description, len(violations)),
		})
		for _, v := range violations {
			result.Gaps = append(result.Gaps, fmt.Sprintf("%s: %s", req.name, v.Title))
		}
	}

	result.Score = passed * 100 / len(reqs)
	switch {
	case result.Score == 100:
		result.Status = analysis.Compliant
	case result.Score >= 80:
		result.Status = analysis.MostlyCompliant
	case result.Score >= 50:
		result.Status = analysis.PartiallyCompliant
	default:
		result.Status = analysis.NonCompliant
	}
	return result, nil
}
