// Package uuid provides progress token generation.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates random (v4) UUID strings used as progress tokens.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv4 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid4: %w", err)
	}
	return id.String(), nil
}
