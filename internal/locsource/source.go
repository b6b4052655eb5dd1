// Package locsource defines the contract between the recording engine and
// the positioning collaborator: fixes are pushed at a negotiated interval and
// minimum movement distance, and the engine may re-register at any time when
// its polling policy changes.
package locsource

import (
	"time"

	"github.com/JGarto/oss-mytracks/internal/track"
)

// Request is the delivery contract the engine asks the source to honor.
type Request struct {
	Interval     time.Duration
	MinDistanceM float64
}

// Handler receives pushed fixes. Implementations must not block.
type Handler func(track.Fix)

// Source delivers positioning fixes. Register replaces any earlier
// registration; Unregister stops delivery.
type Source interface {
	Register(req Request, h Handler) error
	Unregister()
}
