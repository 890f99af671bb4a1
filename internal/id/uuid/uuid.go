// Package uuid implements serp.IDGenerator with random UUIDs.
package uuid

import (
	"fmt"

	guuid "github.com/google/uuid"
)

// Generator produces random UUID strings.
type Generator struct{}

// New returns a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a random UUIDv4 string.
func (g *Generator) NewID() (string, error) {
	id, err := guuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return id.String(), nil
}
