package recorder

import (
	"math"
	"testing"
	"time"

	"github.com/JGarto/oss-mytracks/internal/track"
)

func statsFix(lat, lng, alt, speed float64, at time.Time) track.Fix {
	return track.Fix{Lat: lat, Lng: lng, AltitudeM: alt, SpeedMps: speed, AccuracyM: 10, Time: at}
}

func TestStatsBuilderEmptySnapshot(t *testing.T) {
	start := time.Unix(1700000000, 0)
	b := NewStatsBuilder(start)

	s := b.Snapshot()
	if s.TotalDistanceM != 0 || s.TotalTime != 0 || s.MovingTime != 0 {
		t.Fatalf("empty builder should produce a zero aggregate: %+v", s)
	}
	if s.MinElevationM != 0 || s.MaxElevationM != 0 {
		t.Fatalf("unset elevation extremes should come back zeroed, not infinite")
	}
	if math.IsInf(s.MinLat, 0) || s.MinLat != 0 {
		t.Fatalf("unset bounds should come back zeroed")
	}
}

func TestStatsBuilderAccumulates(t *testing.T) {
	start := time.Unix(1700000000, 0)
	b := NewStatsBuilder(start)

	b.Add(statsFix(0, 0, 100, 2, start))
	b.Add(statsFix(0, 0.001, 110, 3, start.Add(30*time.Second)))
	b.Add(statsFix(0, 0.002, 105, 4, start.Add(60*time.Second)))

	s := b.Snapshot()
	if s.TotalDistanceM < 220 || s.TotalDistanceM > 225 {
		t.Fatalf("expected ~222m travelled, got %v", s.TotalDistanceM)
	}
	if s.MovingTime != time.Minute {
		t.Fatalf("expected 1m moving time, got %v", s.MovingTime)
	}
	if s.MaxSpeedMps != 4 {
		t.Fatalf("expected max speed 4, got %v", s.MaxSpeedMps)
	}
	if s.ElevationGainM != 10 {
		t.Fatalf("expected 10m gain, got %v", s.ElevationGainM)
	}
	if s.MinElevationM != 100 || s.MaxElevationM != 110 {
		t.Fatalf("unexpected elevation extremes: %v..%v", s.MinElevationM, s.MaxElevationM)
	}
	if s.MinLng != 0 || s.MaxLng != 0.002 {
		t.Fatalf("unexpected longitude bounds: %v..%v", s.MinLng, s.MaxLng)
	}
	if s.StopTime != start.Add(60*time.Second) {
		t.Fatalf("stop time should track the last fix")
	}
}

func TestStatsBuilderSlowSamplesNotMoving(t *testing.T) {
	start := time.Unix(1700000000, 0)
	b := NewStatsBuilder(start)

	b.Add(statsFix(0, 0, 0, 0.1, start))
	b.Add(statsFix(0, 0.0000001, 0, 0.1, start.Add(time.Minute)))

	if got := b.Snapshot().MovingTime; got != 0 {
		t.Fatalf("sub-threshold speed must not accrue moving time, got %v", got)
	}
	if got := b.IdleTime(); got != time.Minute {
		t.Fatalf("expected 1m idle, got %v", got)
	}
}

func TestStatsBuilderDerivesSpeedFromDistance(t *testing.T) {
	start := time.Unix(1700000000, 0)
	b := NewStatsBuilder(start)

	// Fixes without a reported speed still accrue moving time when the
	// implied speed clears the threshold.
	b.Add(statsFix(0, 0, 0, 0, start))
	b.Add(statsFix(0, 0.001, 0, 0, start.Add(30*time.Second)))

	if got := b.Snapshot().MovingTime; got != 30*time.Second {
		t.Fatalf("expected 30s moving time, got %v", got)
	}
}

func TestStatsBuilderPauseResume(t *testing.T) {
	start := time.Unix(1700000000, 0)
	b := NewStatsBuilder(start)

	b.Add(statsFix(0, 0, 0, 2, start))
	b.Add(statsFix(0, 0.001, 0, 2, start.Add(time.Minute)))

	b.PauseAt(start.Add(time.Minute))
	b.Add(statsFix(0, 0.01, 0, 2, start.Add(2*time.Minute)))
	if got := b.Snapshot().TotalDistanceM; got > 225 {
		t.Fatalf("fixes during a pause must be ignored, got %vm", got)
	}

	b.ResumeAt(start.Add(10 * time.Minute))
	b.Add(statsFix(0, 0.001, 0, 2, start.Add(10*time.Minute)))
	b.Add(statsFix(0, 0.002, 0, 2, start.Add(11*time.Minute)))

	s := b.Snapshot()
	if s.TotalTime != 2*time.Minute {
		t.Fatalf("the 9 minute gap must not count as trip time, got %v", s.TotalTime)
	}
	if s.TotalDistanceM < 220 || s.TotalDistanceM > 230 {
		t.Fatalf("the jump across the gap must not count as distance, got %vm", s.TotalDistanceM)
	}
}

func TestStatsBuilderFromExistingAggregate(t *testing.T) {
	start := time.Unix(1700000000, 0)
	prior := track.Stats{
		StartTime:      start,
		StopTime:       start.Add(time.Hour),
		TotalDistanceM: 5000,
		TotalTime:      time.Hour,
		MovingTime:     50 * time.Minute,
		MaxSpeedMps:    6,
		MinElevationM:  100,
		MaxElevationM:  150,
		ElevationGainM: 80,
	}

	b := NewStatsBuilderFrom(prior)
	b.Add(statsFix(0, 0, 120, 2, start.Add(time.Hour)))
	b.Add(statsFix(0, 0.001, 120, 2, start.Add(time.Hour+time.Minute)))

	s := b.Snapshot()
	if s.TotalDistanceM < 5110 || s.TotalDistanceM > 5115 {
		t.Fatalf("distance should extend the prior aggregate, got %v", s.TotalDistanceM)
	}
	if s.TotalTime != time.Hour+time.Minute {
		t.Fatalf("total time should extend the prior aggregate, got %v", s.TotalTime)
	}
	if s.MaxSpeedMps != 6 {
		t.Fatalf("prior max speed should survive, got %v", s.MaxSpeedMps)
	}
	if s.MinElevationM != 100 {
		t.Fatalf("prior elevation extremes should survive, got %v", s.MinElevationM)
	}
}

func TestStatsBuilderSetMovingTime(t *testing.T) {
	b := NewStatsBuilder(time.Unix(1700000000, 0))
	b.SetMovingTime(42 * time.Minute)
	if got := b.Snapshot().MovingTime; got != 42*time.Minute {
		t.Fatalf("expected 42m, got %v", got)
	}
}
