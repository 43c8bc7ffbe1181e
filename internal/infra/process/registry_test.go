package process

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/procsec/internal/domain/process"
)

const paymentDefinition = `{
  "processId": "payment-approval",
  "name": "Payment approval",
  "elements": [
    {"id": "start", "type": "StartEvent"},
    {"id": "approve", "type": "UserTask", "name": "Approve payment"},
    {"id": "pay", "type": "ServiceTask", "name": "Execute payment"},
    {"id": "end", "type": "EndEvent"}
  ],
  "flows": [
    {"id": "f1", "sourceRef": "start", "targetRef": "approve"},
    {"id": "f2", "sourceRef": "approve", "targetRef": "pay"},
    {"id": "f3", "sourceRef": "pay", "targetRef": "end"}
  ]
}`

func TestRegistry_ValidateAndLoad(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	id, err := r.Validate(ctx, []byte(paymentDefinition))
	require.NoError(t, err)
	assert.Equal(t, process.DefinitionID("payment-approval"), id)

	g, err := r.ElementGraph(ctx, id)
	require.NoError(t, err)
	assert.Len(t, g.Elements, 4)
	assert.Len(t, g.ElementsOfType("UserTask"), 1)
	assert.Len(t, g.Outgoing("approve"), 1)
}

func TestRegistry_RejectsMalformedDefinitions(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	cases := map[string]string{
		"not json":          `{{`,
		"missing processId": `{"elements":[{"id":"a","type":"UserTask"}]}`,
		"no elements":       `{"processId":"p"}`,
		"empty element id":  `{"processId":"p","elements":[{"id":"","type":"UserTask"}]}`,
		"untyped element":   `{"processId":"p","elements":[{"id":"a","type":""}]}`,
		"duplicate ids":     `{"processId":"p","elements":[{"id":"a","type":"UserTask"},{"id":"a","type":"UserTask"}]}`,
		"dangling flow":     `{"processId":"p","elements":[{"id":"a","type":"UserTask"}],"flows":[{"id":"f","sourceRef":"a","targetRef":"ghost"}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Validate(ctx, []byte(raw))
			assert.ErrorIs(t, err, process.ErrInvalidDefinition)
		})
	}
}

func TestRegistry_UnknownDefinition(t *testing.T) {
	r := NewRegistry()
	_, err := r.ElementGraph(context.Background(), "ghost")
	assert.ErrorIs(t, err, process.ErrDefinitionNotFound)
}
