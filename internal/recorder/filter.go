package recorder

import (
	"math"

	"github.com/JGarto/oss-mytracks/internal/track"
)

// Filter decides, for each incoming fix, whether it becomes a track point,
// whether a previously withheld fix must be persisted first, and whether a
// segment boundary has to be written ahead of it.
type Filter struct {
	// MinRecordingDistanceM suppresses jitter: a fix closer than this to the
	// last recorded point is not persisted.
	MinRecordingDistanceM float64
	// MaxRecordingDistanceM detects discontinuities (tunnels, signal loss): a
	// jump beyond it inserts a segment boundary instead of fragmenting the
	// track.
	MaxRecordingDistanceM float64
	// MinRequiredAccuracyM rejects fixes whose reported accuracy radius is
	// worse than this.
	MinRequiredAccuracyM float64
}

// Decision is the filter's verdict for one fix, applied in order:
// previous fix first, then separator, then the incoming fix.
type Decision struct {
	// RecordPrevious persists the withheld last-seen fix before anything
	// else. This is the deliberate one-fix lag that anchors a stop at the
	// point where motion actually ceased.
	RecordPrevious bool
	// InsertSeparator writes a segment boundary before the incoming fix.
	InsertSeparator bool
	// Record persists the incoming fix.
	Record bool
	// Moving is the updated moving/stationary flag.
	Moving bool
	// UpdateLast is false only when the fix was rejected outright; a rejected
	// fix must leave the last-seen fix untouched.
	UpdateLast bool
}

// Decide evaluates one incoming fix. last is the last fix seen by the filter
// regardless of persistence, lastRecorded the last persisted fix (nil if
// none), moving the current moving flag, and trackHasStart whether the track
// already has a persisted starting point.
func (f Filter) Decide(incoming track.Fix, last, lastRecorded *track.Fix, moving, trackHasStart bool) Decision {
	if incoming.AccuracyM > f.MinRequiredAccuracyM {
		return Decision{Moving: moving}
	}

	distToRecorded := math.Inf(1)
	if lastRecorded != nil && lastRecorded.Valid() {
		distToRecorded = incoming.DistanceM(*lastRecorded)
	}
	distToLast := math.Inf(1)
	if last != nil {
		distToLast = incoming.DistanceM(*last)
	}

	if distToLast == 0 {
		if !moving {
			// Third and later identical fixes: already recorded the stop.
			return Decision{Moving: false, UpdateLast: true}
		}
		// First repeat: flip to stationary, and if the stationary position
		// was itself withheld earlier, record it now.
		d := Decision{Moving: false, UpdateLast: true}
		if last != nil && lastRecorded != nil && !last.SamePosition(*lastRecorded) {
			d.RecordPrevious = true
		}
		return d
	}

	if distToRecorded > f.MinRecordingDistanceM {
		d := Decision{Moving: true, Record: true, UpdateLast: true}
		if last != nil && !moving {
			// The last fix was the final stationary position; flush it so
			// the track brackets the stop before movement resumes.
			d.RecordPrevious = true
		}
		d.InsertSeparator = lastRecorded != nil && lastRecorded.Valid() &&
			distToRecorded > f.MaxRecordingDistanceM && trackHasStart
		return d
	}

	// Moved, but not far enough to be worth a point.
	return Decision{Moving: moving, UpdateLast: true}
}
