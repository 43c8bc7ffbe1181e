package process

import (
	"context"
	"errors"
)

// ErrDefinitionNotFound when no validated definition exists for an id.
var ErrDefinitionNotFound = errors.New("process definition not found")

// ErrInvalidDefinition when a raw definition fails validation.
var ErrInvalidDefinition = errors.New("invalid process definition")

// Loader port for the external definition parsing/validation collaborator.
type Loader interface {
	Validate(ctx context.Context, raw []byte) (DefinitionID, error)
	ElementGraph(ctx context.Context, id DefinitionID) (*Graph, error)
}
