// Package uuid generates run and event identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUID v7 strings, so run IDs sort by start time.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// ShortID returns the first eight hex characters of a fresh UUID7, for log
// lines and object keys where the full ID is noise.
func (g Generator) ShortID() (string, error) {
	id, err := g.NewID()
	if err != nil {
		return "", err
	}
	return id[:8], nil
}
