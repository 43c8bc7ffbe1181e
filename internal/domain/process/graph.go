package process

// DefinitionID identifier type for a validated process definition
type DefinitionID string

// Element is one node of the process graph (task, event, gateway, data
// object). Properties carry model attributes the rule catalogue inspects.
type Element struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Name       string            `json:"name,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Flow is a directed edge between two elements.
type Flow struct {
	ID     string `json:"id"`
	Source string `json:"sourceRef"`
	Target string `json:"targetRef"`
}

// Graph is the immutable element graph of a validated process definition.
// It must exist unchanged for the lifetime of any run referencing it.
type Graph struct {
	DefinitionID DefinitionID `json:"processId"`
	Name         string       `json:"name,omitempty"`
	Elements     []Element    `json:"elements"`
	Flows        []Flow       `json:"flows"`
}

// ElementsOfType filters elements by type.
func (g *Graph) ElementsOfType(t string) []Element {
	var out []Element
	for _, e := range g.Elements {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Outgoing returns flows leaving the given element.
func (g *Graph) Outgoing(elementID string) []Flow {
	var out []Flow
	for _, f := range g.Flows {
		if f.Source == elementID {
			out = append(out, f)
		}
	}
	return out
}
