package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bryanwahyu/procsec/internal/domain/analysis"
	"github.com/bryanwahyu/procsec/internal/domain/process"
)

// SystemPrompt provides strict directions and schema for JSON output.
func SystemPrompt() string {
	return `You are a senior business-process security analyst. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- Use uppercase severity values: CRITICAL, HIGH, MEDIUM, LOW, INFO.
- Use uppercase finding types: AUTHENTICATION_GAP, AUTHORIZATION_WEAKNESS, SENSITIVE_DATA_EXPOSURE, INPUT_VALIDATION_MISSING, ERROR_HANDLING_INSUFFICIENT, COMPLIANCE_VIOLATION, SECURITY_CONTROL_MISSING.
- confidence is a number in [0,1].
- elementId must reference an element id from the provided process graph.
- Keep findings concise; do not repeat issues the rule scan already reported.

Schema (example with empty values):
{
  "summary": "<string>",
  "keyFindings": ["<string>"],
  "businessContext": "<string>",
  "findings": [
    {
      "type": "<finding type>",
      "severity": "<severity>",
      "title": "<string>",
      "description": "<string>",
      "elementId": "<string>",
      "elementType": "<string>",
      "likelihood": "<LOW|MEDIUM|HIGH>",
      "impact": "<LOW|MEDIUM|HIGH>",
      "recommendation": "<string>",
      "confidence": 0.0
    }
  ]
}`
}

// UserPrompt compacts the element graph and the rule scan's findings into one
// analysis request.
func UserPrompt(graph *process.Graph, prior []analysis.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following business process for security weaknesses and respond with the JSON per schema.\n\nProcess: %s (%s)\nElements:\n", graph.Name, graph.DefinitionID)
	for _, e := range graph.Elements {
		fmt.Fprintf(&b, "- id=%s type=%s name=%q", e.ID, e.Type, e.Name)
		if len(e.Properties) > 0 {
			props, _ := json.Marshal(e.Properties)
			fmt.Fprintf(&b, " properties=%s", props)
		}
		b.WriteString("\n")
	}
	b.WriteString("Flows:\n")
	for _, f := range graph.Flows {
		fmt.Fprintf(&b, "- %s -> %s\n", f.Source, f.Target)
	}
	if len(prior) > 0 {
		b.WriteString("\nIssues already reported by the rule scan (do not repeat):\n")
		for _, f := range prior {
			fmt.Fprintf(&b, "- [%s] %s at %s\n", f.Severity, f.Title, f.Location.ElementID)
		}
	}
	return b.String()
}

// insightPayload mirrors the schema the system prompt demands.
type insightPayload struct {
	Summary         string   `json:"summary"`
	KeyFindings     []string `json:"keyFindings"`
	BusinessContext string   `json:"businessContext"`
	Findings        []struct {
		Type           string  `json:"type"`
		Severity       string  `json:"severity"`
		Title          string  `json:"title"`
		Description    string  `json:"description"`
		ElementID      string  `json:"elementId"`
		ElementType    string  `json:"elementType"`
		Likelihood     string  `json:"likelihood"`
		Impact         string  `json:"impact"`
		Recommendation string  `json:"recommendation"`
		Confidence     float64 `json:"confidence"`
	} `json:"findings"`
}

// ParseInsightResponse decodes the model's JSON into insights plus
// AI-generated findings. Unknown enum values degrade to safe defaults rather
// than failing the stage.
func ParseInsightResponse(content string) (*analysis.AIInsights, []analysis.Finding, error) {
	content = strings.TrimSpace(content)
	// Some models still wrap output in code fences despite instructions.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var payload insightPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, nil, fmt.Errorf("failed to decode insight response: %w", err)
	}

	insights := &analysis.AIInsights{
		Summary:         payload.Summary,
		KeyFindings:     payload.KeyFindings,
		BusinessContext: payload.BusinessContext,
	}

	findings := make([]analysis.Finding, 0, len(payload.Findings))
	for _, pf := range payload.Findings {
		conf := pf.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		findings = append(findings, analysis.Finding{
			ID:             uuid.New().String(),
			Type:           findingType(pf.Type),
			Severity:       severity(pf.Severity),
			Title:          pf.Title,
			Description:    pf.Description,
			Location:       analysis.Location{ElementID: pf.ElementID, ElementType: pf.ElementType},
			Impact:         analysis.NewImpact(rating(pf.Likelihood), rating(pf.Impact)),
			Recommendation: pf.Recommendation,
			AIGenerated:    true,
			Confidence:     conf,
		})
	}
	return insights, findings, nil
}

func findingType(s string) analysis.FindingType {
	t := analysis.FindingType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case analysis.FindingAuthenticationGap, analysis.FindingAuthorizationWeakness,
		analysis.FindingSensitiveDataExposure, analysis.FindingInputValidationMissing,
		analysis.FindingErrorHandlingInsufficient, analysis.FindingComplianceViolation,
		analysis.FindingSecurityControlMissing:
		return t
	}
	return analysis.FindingSecurityControlMissing
}

func severity(s string) analysis.Severity {
	sv := analysis.Severity(strings.ToUpper(strings.TrimSpace(s)))
	switch sv {
	case analysis.SeverityCritical, analysis.SeverityHigh, analysis.SeverityMedium,
		analysis.SeverityLow, analysis.SeverityInfo:
		return sv
	}
	return analysis.SeverityInfo
}

func rating(s string) analysis.Rating {
	r := analysis.Rating(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case analysis.RatingHigh, analysis.RatingMedium, analysis.RatingLow:
		return r
	}
	return analysis.RatingMedium
}
