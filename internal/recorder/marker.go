package recorder

import (
	"context"
	"time"

	"github.com/JGarto/oss-mytracks/internal/track"
)

const statisticsIconURL = "http://maps.google.com/mapfiles/ms/micons/ylw-pushpin.png"

// MarkerManager owns waypoint and statistics-checkpoint markers for the
// recording track. Exactly one checkpoint is open at a time; inserting a new
// one flushes and replaces it. All methods run on the session dispatcher.
type MarkerManager struct {
	store   *track.Store
	trackID string

	builder   *StatsBuilder
	currentID string
}

func NewMarkerManager(store *track.Store) *MarkerManager {
	return &MarkerManager{store: store}
}

// Open starts the first checkpoint of a fresh track.
func (m *MarkerManager) Open(ctx context.Context, trackID string, start time.Time) error {
	m.trackID = trackID
	m.builder = NewStatsBuilder(start)

	id, err := m.store.InsertMarker(ctx, track.Marker{
		TrackID: trackID,
		Type:    track.MarkerTypeStatistics,
		Name:    "Statistics",
		Icon:    statisticsIconURL,
		Stats:   m.builder.Snapshot(),
	})
	if err != nil {
		return err
	}
	m.currentID = id
	return nil
}

// Reopen reattaches to an unfinished checkpoint found during crash recovery.
func (m *MarkerManager) Reopen(trackID string, marker track.Marker) {
	m.trackID = trackID
	m.currentID = marker.ID
	m.builder = NewStatsBuilderFrom(marker.Stats)
}

// Synthesize opens a checkpoint at track start when recovery finds none.
// Not expected in normal operation; a track always gets its first checkpoint
// at startNewTrack.
func (m *MarkerManager) Synthesize(ctx context.Context, trackID string, start time.Time) error {
	return m.Open(ctx, trackID, start)
}

// AddFix folds a valid fix into the open checkpoint's accumulator.
func (m *MarkerManager) AddFix(f track.Fix) {
	if m.builder != nil {
		m.builder.Add(f)
	}
}

// UpdateCurrent refreshes the open checkpoint row with the running snapshot.
func (m *MarkerManager) UpdateCurrent(ctx context.Context, lengthM float64, sinceStart time.Duration) error {
	if m.currentID == "" {
		return nil
	}
	return m.store.UpdateMarkerStats(ctx, m.currentID, lengthM, sinceStart, m.builder.Snapshot())
}

// InsertWaypoint creates a user marker anchored at the given fix.
func (m *MarkerManager) InsertWaypoint(ctx context.Context, marker track.Marker, lengthM float64, sinceStart time.Duration) (string, error) {
	marker.TrackID = m.trackID
	marker.Type = track.MarkerTypeWaypoint
	marker.LengthM = lengthM
	marker.Duration = sinceStart
	return m.store.InsertMarker(ctx, marker)
}

// InsertStatistics closes the open checkpoint and opens the next one. The
// new marker carries the statistics accumulated since the previous
// checkpoint; length and duration are absolute since track start.
func (m *MarkerManager) InsertStatistics(ctx context.Context, anchor track.Fix, now time.Time, lengthM float64, sinceStart time.Duration, lastRecordedID int64) (string, error) {
	m.builder.PauseAt(now)
	snap := m.builder.Snapshot()

	if m.currentID != "" {
		if err := m.store.UpdateMarkerStats(ctx, m.currentID, lengthM, sinceStart, snap); err != nil {
			return "", err
		}
	}

	id, err := m.store.InsertMarker(ctx, track.Marker{
		TrackID:      m.trackID,
		Type:         track.MarkerTypeStatistics,
		Name:         "Statistics",
		Icon:         statisticsIconURL,
		Fix:          anchor,
		LengthM:      lengthM,
		Duration:     sinceStart,
		StartPointID: lastRecordedID,
		Stats:        snap,
	})
	if err != nil {
		return "", err
	}

	m.builder = NewStatsBuilder(now)
	m.currentID = id
	return id, nil
}
