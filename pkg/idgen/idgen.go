// Package idgen provides the injected identifier generator used across the
// engine so tests can substitute deterministic ids.
package idgen

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Entity id prefixes, matching the shapes the rest of the platform expects.
const (
	PrefixTransaction = "txn"
	PrefixGateway     = "gw"
	PrefixRisk        = "risk"
	PrefixWebhook     = "wh"
	PrefixRule        = "rule"
)

// Generator produces unique, prefixed entity identifiers.
type Generator interface {
	// NewID returns a new unique id with the given prefix, e.g. "txn_<uuid>".
	NewID(prefix string) string
}

// UUID is the production Generator backed by random UUIDs.
type UUID struct{}

// NewID implements Generator.
func (UUID) NewID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

// Sequence is a deterministic Generator for tests: prefix_1, prefix_2, ...
type Sequence struct {
	n atomic.Int64
}

// NewID implements Generator.
func (s *Sequence) NewID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, s.n.Add(1))
}
