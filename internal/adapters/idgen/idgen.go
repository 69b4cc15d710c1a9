package idgen

import "github.com/google/uuid"

// Generator creates event identifiers.
type Generator struct{}

// NewID returns a random UUIDv4 string.
func (Generator) NewID() string {
	return uuid.NewString()
}
