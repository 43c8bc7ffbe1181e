package rules

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/procsec/internal/domain/analysis"
	"github.com/bryanwahyu/procsec/internal/domain/process"
)

// Catalogue is the built-in rule-based scanner. It walks the element graph
// once per check family and emits findings without mutating its input, so
// scans are idempotent and safe to re-run.
type Catalogue struct{}

func NewCatalogue() *Catalogue { return &Catalogue{} }

func (c *Catalogue) Scan(graph *process.Graph) []analysis.Finding {
	var findings []analysis.Finding
	findings = append(findings, c.checkUserTasks(graph)...)
	findings = append(findings, c.checkServiceTasks(graph)...)
	findings = append(findings, c.checkScriptTasks(graph)...)
	findings = append(findings, c.checkDataObjects(graph)...)
	findings = append(findings, c.checkErrorHandling(graph)...)
	return findings
}

// checkUserTasks flags human tasks with no assignment model: anyone could
// complete them.
func (c *Catalogue) checkUserTasks(graph *process.Graph) []analysis.Finding {
	var out []analysis.Finding
	for _, e := range graph.ElementsOfType("UserTask") {
		if e.Properties["assignee"] == "" && e.Properties["candidateUsers"] == "" && e.Properties["candidateGroups"] == "" {
			out = append(out, finding(
				analysis.FindingAuthenticationGap,
				analysis.SeverityMedium,
				"Missing task assignment",
				fmt.Sprintf("User task %q has no assignee or candidate users; any authenticated user can complete it.", elementLabel(e)),
				e,
				analysis.RatingMedium, analysis.RatingMedium,
				"Assign the task to a role or candidate group and enforce the assignment at the engine level.",
			))
		}
		if e.Properties["authorization"] == "" && e.Properties["candidateGroups"] == "" {
			out = append(out, finding(
				analysis.FindingAuthorizationWeakness,
				analysis.SeverityMedium,
				"No authorization constraint",
				fmt.Sprintf("User task %q carries no authorization constraint separating who may claim it from who may complete it.", elementLabel(e)),
				e,
				analysis.RatingMedium, analysis.RatingMedium,
				"Attach a candidate group or explicit authorization expression to the task.",
			))
		}
	}
	return out
}

// checkServiceTasks flags expression injection and missing input validation
// on automated tasks.
func (c *Catalogue) checkServiceTasks(graph *process.Graph) []analysis.Finding {
	var out []analysis.Finding
	for _, e := range graph.ElementsOfType("ServiceTask") {
		if expr := e.Properties["delegateExpression"]; strings.Contains(expr, "${") {
			out = append(out, finding(
				analysis.FindingInputValidationMissing,
				analysis.SeverityHigh,
				"Expression injection risk",
				fmt.Sprintf("Service task %q resolves a runtime delegate expression; attacker-controlled process variables can change which code runs.", elementLabel(e)),
				e,
				analysis.RatingMedium, analysis.RatingHigh,
				"Bind the delegate statically or validate every variable feeding the expression.",
			))
		}
		if e.Properties["inputValidation"] == "" {
			out = append(out, finding(
				analysis.FindingInputValidationMissing,
				analysis.SeverityLow,
				"No declared input validation",
				fmt.Sprintf("Service task %q declares no input validation for the data it consumes.", elementLabel(e)),
				e,
				analysis.RatingLow, analysis.RatingMedium,
				"Validate and type-check all incoming process variables before the service call.",
			))
		}
	}
	return out
}

// checkScriptTasks flags embedded dynamic code evaluation.
func (c *Catalogue) checkScriptTasks(graph *process.Graph) []analysis.Finding {
	var out []analysis.Finding
	for _, e := range graph.ElementsOfType("ScriptTask") {
		script := e.Properties["script"]
		if strings.Contains(script, "eval") || strings.Contains(script, "exec") {
			out = append(out, finding(
				analysis.FindingSecurityControlMissing,
				analysis.SeverityCritical,
				"Dynamic code evaluation in script task",
				fmt.Sprintf("Script task %q evaluates code at runtime; combined with untrusted variables this is remote code execution.", elementLabel(e)),
				e,
				analysis.RatingMedium, analysis.RatingHigh,
				"Replace dynamic evaluation with a fixed delegate implementation or a sandboxed expression language.",
			))
		}
	}
	return out
}

// checkDataObjects flags sensitive data stores without an encryption marker.
func (c *Catalogue) checkDataObjects(graph *process.Graph) []analysis.Finding {
	var out []analysis.Finding
	for _, e := range graph.Elements {
		if e.Type != "DataObject" && e.Type != "DataStoreReference" {
			continue
		}
		if e.Properties["sensitive"] == "true" && e.Properties["encrypted"] != "true" {
			out = append(out, finding(
				analysis.FindingSensitiveDataExposure,
				analysis.SeverityCritical,
				"Unencrypted sensitive data",
				fmt.Sprintf("Data object %q is marked sensitive but carries no encryption marker.", elementLabel(e)),
				e,
				analysis.RatingHigh, analysis.RatingHigh,
				"Encrypt the data object at rest and restrict which lanes may read it.",
			))
		}
	}
	return out
}

// checkErrorHandling flags service tasks with no attached error boundary
// event: failures propagate as unhandled incidents.
func (c *Catalogue) checkErrorHandling(graph *process.Graph) []analysis.Finding {
	boundaries := make(map[string]bool)
	for _, e := range graph.ElementsOfType("BoundaryEvent") {
		boundaries[e.Properties["attachedTo"]] = true
	}
	var out []analysis.Finding
	for _, e := range graph.ElementsOfType("ServiceTask") {
		if !boundaries[e.ID] {
			out = append(out, finding(
				analysis.FindingErrorHandlingInsufficient,
				analysis.SeverityLow,
				"No error boundary event",
				fmt.Sprintf("Service task %q has no boundary event; failures surface as unhandled incidents with no compensating path.", elementLabel(e)),
				e,
				analysis.RatingMedium, analysis.RatingLow,
				"Attach an error boundary event routing failures to a handled recovery path.",
			))
		}
	}
	return out
}

func elementLabel(e process.Element) string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}

func finding(t analysis.FindingType, sev analysis.Severity, title, desc string, e process.Element, likelihood, impact analysis.Rating, recommendation string) analysis.Finding {
	return analysis.Finding{
		ID:             fmt.Sprintf("%s-%s", strings.ToLower(string(t)), e.ID),
		Type:           t,
		Severity:       sev,
		Title:          title,
		Description:    desc,
		Location:       analysis.Location{ElementID: e.ID, ElementType: e.Type},
		Impact:         analysis.NewImpact(likelihood, impact),
		Recommendation: recommendation,
		Evidence:       []string{fmt.Sprintf("element %s (%s)", e.ID, e.Type)},
	}
}
