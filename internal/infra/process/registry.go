package process

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/bryanwahyu/procsec/internal/domain/process"
)

// Registry keeps validated process definitions in memory and serves their
// element graphs to analysis runs. Implements process.Loader. Graphs are
// frozen at registration time; a re-registration under the same id replaces
// the graph for future runs only.
type Registry struct {
	mu     sync.RWMutex
	graphs map[process.DefinitionID]*process.Graph
}

func NewRegistry() *Registry {
	return &Registry{graphs: make(map[process.DefinitionID]*process.Graph)}
}

// Validate parses a raw definition document, checks its structural
// integrity and registers the resulting graph.
func (r *Registry) Validate(ctx context.Context, raw []byte) (process.DefinitionID, error) {
	var g process.Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return "", fmt.Errorf("%w: %v", process.ErrInvalidDefinition, err)
	}
	if g.DefinitionID == "" {
		return "", fmt.Errorf("%w: missing processId", process.ErrInvalidDefinition)
	}
	if len(g.Elements) == 0 {
		return "", fmt.Errorf("%w: definition %q has no elements", process.ErrInvalidDefinition, g.DefinitionID)
	}

	seen := make(map[string]bool, len(g.Elements))
	for _, e := range g.Elements {
		if e.ID == "" {
			return "", fmt.Errorf("%w: element with empty id", process.ErrInvalidDefinition)
		}
		if e.Type == "" {
			return "", fmt.Errorf("%w: element %q has no type", process.ErrInvalidDefinition, e.ID)
		}
		if seen[e.ID] {
			return "", fmt.Errorf("%w: duplicate element id %q", process.ErrInvalidDefinition, e.ID)
		}
		seen[e.ID] = true
	}
	for _, f := range g.Flows {
		if !seen[f.Source] || !seen[f.Target] {
			return "", fmt.Errorf("%w: flow %q references unknown element", process.ErrInvalidDefinition, f.ID)
		}
	}

	r.mu.Lock()
	r.graphs[g.DefinitionID] = &g
	r.mu.Unlock()
	return g.DefinitionID, nil
}

// ElementGraph returns the frozen graph for a registered definition.
func (r *Registry) ElementGraph(ctx context.Context, id process.DefinitionID) (*process.Graph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.graphs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", process.ErrDefinitionNotFound, id)
	}
	return g, nil
}

// List returns the ids of every registered definition.
func (r *Registry) List() []process.DefinitionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]process.DefinitionID, 0, len(r.graphs))
	for id := range r.graphs {
		out = append(out, id)
	}
	return out
}
