// Package ids generates record identifiers.
package ids

import "github.com/google/uuid"

// Generator produces a new unique identifier on each call
type Generator func() string

// New returns a UUIDv7 string. The leading bits are a millisecond timestamp
// and the rest is random, so ids sort by creation time without coordination.
func New() string {
	return uuid.Must(uuid.NewV7()).String()
}

// OrDefault returns g, or New when g is nil
func OrDefault(g Generator) Generator {
	if g == nil {
		return New
	}
	return g
}
