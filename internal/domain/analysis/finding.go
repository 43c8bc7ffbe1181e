package analysis

// FindingType enum
type FindingType string

const (
	FindingAuthenticationGap        FindingType = "AUTHENTICATION_GAP"
	FindingAuthorizationWeakness    FindingType = "AUTHORIZATION_WEAKNESS"
	FindingSensitiveDataExposure    FindingType = "SENSITIVE_DATA_EXPOSURE"
	FindingInputValidationMissing   FindingType = "INPUT_VALIDATION_MISSING"
	FindingErrorHandlingInsufficient FindingType = "ERROR_HANDLING_INSUFFICIENT"
	FindingComplianceViolation      FindingType = "COMPLIANCE_VIOLATION"
	FindingSecurityControlMissing   FindingType = "SECURITY_CONTROL_MISSING"
)

// Severity enum
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Rating used for likelihood and impact
type Rating string

const (
	RatingHigh   Rating = "HIGH"
	RatingMedium Rating = "MEDIUM"
	RatingLow    Rating = "LOW"
)

// Location points at the process element the finding applies to.
type Location struct {
	ElementID   string `json:"elementId"`
	ElementType string `json:"elementType"`
	XPath       string `json:"xpath,omitempty"`
}

// Impact value object
type Impact struct {
	Likelihood Rating  `json:"likelihood"`
	Impact     Rating  `json:"impact"`
	RiskScore  float64 `json:"riskScore"`
}

// Finding represents one detected security issue. Append-only once attached
// to a run.
type Finding struct {
	ID             string                      `json:"id"`
	Type           FindingType                 `json:"type"`
	Severity       Severity                    `json:"severity"`
	Title          string                      `json:"title"`
	Description    string                      `json:"description"`
	Location       Location                    `json:"location"`
	Impact         Impact                      `json:"impact"`
	Recommendation string                      `json:"recommendation"`
	Evidence       []string                    `json:"evidence,omitempty"`
	Compliance     map[string]ComplianceResult `json:"compliance,omitempty"`
	AIGenerated    bool                        `json:"aiGenerated"`
	Confidence     float64                     `json:"confidence,omitempty"`
}

// Recommendation derived from findings, append-only.
type Recommendation struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	Priority       Rating            `json:"priority"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Implementation Implementation    `json:"implementation"`
	Compliance     map[string]string `json:"compliance,omitempty"`
}

// Implementation effort estimate for a recommendation
type Implementation struct {
	Effort    Rating `json:"effort"`
	Cost      Rating `json:"cost"`
	Timeframe string `json:"timeframe"`
}

// ComplianceStatus enum
type ComplianceStatus string

const (
	Compliant          ComplianceStatus = "COMPLIANT"
	MostlyCompliant    ComplianceStatus = "MOSTLY_COMPLIANT"
	PartiallyCompliant ComplianceStatus = "PARTIALLY_COMPLIANT"
	NonCompliant       ComplianceStatus = "NON_COMPLIANT"
)

// ComplianceResult per requested standard, immutable after the compliance
// stage writes it.
type ComplianceResult struct {
	Score        int                     `json:"score"`
	Status       ComplianceStatus        `json:"status"`
	Gaps         []string                `json:"gaps"`
	Requirements []ComplianceRequirement `json:"requirements"`
}

// ComplianceRequirement pass/fail line item
type ComplianceRequirement struct {
	Requirement string `json:"requirement"`
	Status      ComplianceStatus `json:"status"`
	Description string `json:"description"`
}

// riskWeights drive RiskScore; likelihood x impact on a 1-3 scale.
var riskWeights = map[Rating]float64{
	RatingLow:    1,
	RatingMedium: 2,
	RatingHigh:   3,
}

// NewImpact computes the derived risk score from a likelihood/impact pair.
// The score lands in [1,9] like a classic risk matrix.
func NewImpact(likelihood, impact Rating) Impact {
	return Impact{
		Likelihood: likelihood,
		Impact:     impact,
		RiskScore:  riskWeights[likelihood] * riskWeights[impact],
	}
}

// SeverityCounts value object
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// CountSeverities tallies findings per severity. INFO findings count toward
// the total only.
func CountSeverities(findings []Finding) SeverityCounts {
	var c SeverityCounts
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			c.Critical++
		case SeverityHigh:
			c.High++
		case SeverityMedium:
			c.Medium++
		case SeverityLow:
			c.Low++
		}
		c.Total++
	}
	return c
}

// SecurityScore turns severity counts into a 0-100 score.
func SecurityScore(c SeverityCounts) int {
	score := 100 - c.Critical*25 - c.High*15 - c.Medium*8 - c.Low*3
	if score < 0 {
		score = 0
	}
	return score
}

// RiskLevelForScore maps a security score to its risk bucket.
func RiskLevelForScore(score int) RiskLevel {
	switch {
	case score < 25:
		return RiskCritical
	case score < 50:
		return RiskHigh
	case score < 70:
		return RiskMedium
	case score < 90:
		return RiskLow
	default:
		return RiskMinimal
	}
}
