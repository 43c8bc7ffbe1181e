package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/procsec/internal/domain/analysis"
	"github.com/bryanwahyu/procsec/internal/domain/process"
)

func testGraph() *process.Graph {
	return &process.Graph{
		DefinitionID: "proc-1",
		Name:         "Payment approval",
		Elements: []process.Element{
			{ID: "t1", Type: "UserTask", Name: "Approve payment"},
			{ID: "t2", Type: "ServiceTask", Name: "Charge card", Properties: map[string]string{
				"delegateExpression": "${chargeService}",
			}},
			{ID: "d1", Type: "DataObject", Name: "Card details", Properties: map[string]string{
				"sensitive": "true",
			}},
			{ID: "s1", Type: "ScriptTask", Name: "Compute fee", Properties: map[string]string{
				"script": "eval(feeExpression)",
			}},
		},
	}
}

func TestCatalogue_ScanFindsExpectedTypes(t *testing.T) {
	findings := NewCatalogue().Scan(testGraph())
	require.NotEmpty(t, findings)

	types := make(map[analysis.FindingType]bool)
	for _, f := range findings {
		types[f.Type] = true
		assert.NotEmpty(t, f.ID)
		assert.NotEmpty(t, f.Location.ElementID)
		assert.False(t, f.AIGenerated)
		assert.Greater(t, f.Impact.RiskScore, 0.0)
	}
	assert.True(t, types[analysis.FindingAuthenticationGap], "unassigned user task")
	assert.True(t, types[analysis.FindingInputValidationMissing], "injectable delegate expression")
	assert.True(t, types[analysis.FindingSensitiveDataExposure], "unencrypted sensitive data object")
	assert.True(t, types[analysis.FindingSecurityControlMissing], "eval in script task")
	assert.True(t, types[analysis.FindingErrorHandlingInsufficient], "service task without boundary event")
}

func TestCatalogue_ScanIsIdempotent(t *testing.T) {
	g := testGraph()
	c := NewCatalogue()
	first := c.Scan(g)
	second := c.Scan(g)
	assert.Equal(t, first, second)
}

func TestCatalogue_CleanProcessHasNoFindings(t *testing.T) {
	g := &process.Graph{
		DefinitionID: "clean",
		Elements: []process.Element{
			{ID: "t1", Type: "UserTask", Properties: map[string]string{
				"assignee": "approver", "candidateGroups": "finance", "authorization": "role:finance",
			}},
			{ID: "t2", Type: "ServiceTask", Properties: map[string]string{
				"inputValidation": "strict",
			}},
			{ID: "b1", Type: "BoundaryEvent", Properties: map[string]string{"attachedTo": "t2"}},
		},
	}
	assert.Empty(t, NewCatalogue().Scan(g))
}

func TestMapper_NonCompliantWhenViolationsPresent(t *testing.T) {
	findings := NewCatalogue().Scan(testGraph())
	res, err := NewMapper().MapToStandard(findings, "GDPR")
	require.NoError(t, err)

	assert.Equal(t, analysis.NonCompliant, res.Status)
	assert.NotEmpty(t, res.Gaps)
	require.Len(t, res.Requirements, len(builtinStandards["GDPR"]))
	for _, r := range res.Requirements {
		assert.Equal(t, analysis.NonCompliant, r.Status)
	}
}

func TestMapper_CompliantWithNoFindings(t *testing.T) {
	res, err := NewMapper().MapToStandard(nil, "HIPAA")
	require.NoError(t, err)
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, analysis.Compliant, res.Status)
	assert.Empty(t, res.Gaps)
}

func TestMapper_UnsupportedStandard(t *testing.T) {
	_, err := NewMapper().MapToStandard(nil, "ISO-1234")
	assert.Error(t, err)
	assert.False(t, Supported("ISO-1234"))
	assert.True(t, Supported("PCI-DSS"))
}
