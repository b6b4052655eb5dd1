package recorder

import (
	"math"
	"time"

	"github.com/JGarto/oss-mytracks/internal/track"
)

// Speeds below this are treated as standing still when accruing moving time.
const minMovingSpeedMps = 0.224

// StatsBuilder accumulates trip statistics from a stream of valid fixes. It
// supports pausing across recording gaps so total time excludes the downtime
// between a crash and the subsequent auto-resume.
type StatsBuilder struct {
	startTime    time.Time
	segmentStart time.Time
	accrued      time.Duration
	paused       bool

	stopTime     time.Time
	distanceM    float64
	movingTime   time.Duration
	maxSpeed     float64
	minElevation float64
	maxElevation float64
	gain         float64
	minLat       float64
	maxLat       float64
	minLng       float64
	maxLng       float64

	lastFix      track.Fix
	hasLast      bool
	lastMovement time.Time
}

func NewStatsBuilder(start time.Time) *StatsBuilder {
	return &StatsBuilder{
		startTime:    start,
		segmentStart: start,
		stopTime:     start,
		lastMovement: start,
		minElevation: math.Inf(1),
		maxElevation: math.Inf(-1),
		minLat:       90,
		maxLat:       -90,
		minLng:       180,
		maxLng:       -180,
	}
}

// NewStatsBuilderFrom seeds a builder with an existing aggregate, used when
// reopening a checkpoint after a restart.
func NewStatsBuilderFrom(stats track.Stats) *StatsBuilder {
	b := NewStatsBuilder(stats.StartTime)
	b.stopTime = stats.StopTime
	b.distanceM = stats.TotalDistanceM
	b.accrued = stats.TotalTime
	b.segmentStart = stats.StopTime
	b.movingTime = stats.MovingTime
	b.maxSpeed = stats.MaxSpeedMps
	if stats.MinElevationM != 0 || stats.MaxElevationM != 0 {
		b.minElevation = stats.MinElevationM
		b.maxElevation = stats.MaxElevationM
	}
	b.gain = stats.ElevationGainM
	return b
}

// Add folds one valid fix into the aggregate. Invalid fixes must be filtered
// by the caller.
func (b *StatsBuilder) Add(f track.Fix) {
	if b.paused {
		return
	}

	if b.hasLast {
		dt := f.Time.Sub(b.lastFix.Time)
		if dt < 0 {
			dt = 0
		}
		d := f.DistanceM(b.lastFix)
		b.distanceM += d

		speed := f.SpeedMps
		if speed == 0 && dt > 0 {
			speed = d / dt.Seconds()
		}
		if speed > minMovingSpeedMps {
			b.movingTime += dt
			b.lastMovement = f.Time
		}
		if f.SpeedMps > b.maxSpeed {
			b.maxSpeed = f.SpeedMps
		}

		if f.AltitudeM > b.lastFix.AltitudeM {
			b.gain += f.AltitudeM - b.lastFix.AltitudeM
		}
	} else {
		if f.SpeedMps > b.maxSpeed {
			b.maxSpeed = f.SpeedMps
		}
	}

	if f.AltitudeM < b.minElevation {
		b.minElevation = f.AltitudeM
	}
	if f.AltitudeM > b.maxElevation {
		b.maxElevation = f.AltitudeM
	}
	if f.Lat < b.minLat {
		b.minLat = f.Lat
	}
	if f.Lat > b.maxLat {
		b.maxLat = f.Lat
	}
	if f.Lng < b.minLng {
		b.minLng = f.Lng
	}
	if f.Lng > b.maxLng {
		b.maxLng = f.Lng
	}

	b.stopTime = f.Time
	b.lastFix = f
	b.hasLast = true
}

// PauseAt freezes time accrual at t. Used when closing a checkpoint and when
// a restored track's downtime must not count as trip time.
func (b *StatsBuilder) PauseAt(t time.Time) {
	if b.paused {
		return
	}
	if t.After(b.segmentStart) {
		b.accrued += t.Sub(b.segmentStart)
	}
	b.stopTime = t
	b.paused = true
}

// ResumeAt restarts time accrual at t after a pause.
func (b *StatsBuilder) ResumeAt(t time.Time) {
	if !b.paused {
		return
	}
	b.segmentStart = t
	b.lastMovement = t
	b.hasLast = false
	b.paused = false
}

// SetMovingTime overrides the accumulated moving time, used during crash
// recovery when the persisted track carries a more accurate figure than the
// bounded point replay can reconstruct.
func (b *StatsBuilder) SetMovingTime(d time.Duration) {
	b.movingTime = d
}

// IdleTime is the time since the last sample that showed movement. The
// adaptive polling policy backs off as this grows.
func (b *StatsBuilder) IdleTime() time.Duration {
	if !b.hasLast {
		return 0
	}
	idle := b.stopTime.Sub(b.lastMovement)
	if idle < 0 {
		return 0
	}
	return idle
}

// StartTime returns the aggregate's start timestamp.
func (b *StatsBuilder) StartTime() time.Time {
	return b.startTime
}

// Snapshot returns the aggregate as a storable value. Extremes that never
// saw a sample come back zeroed instead of infinite.
func (b *StatsBuilder) Snapshot() track.Stats {
	total := b.accrued
	if !b.paused && b.stopTime.After(b.segmentStart) {
		total += b.stopTime.Sub(b.segmentStart)
	}

	stats := track.Stats{
		StartTime:      b.startTime,
		StopTime:       b.stopTime,
		TotalDistanceM: b.distanceM,
		TotalTime:      total,
		MovingTime:     b.movingTime,
		MaxSpeedMps:    b.maxSpeed,
		ElevationGainM: b.gain,
	}
	if total > 0 {
		stats.AvgSpeedMps = b.distanceM / total.Seconds()
	}
	if !math.IsInf(b.minElevation, 1) {
		stats.MinElevationM = b.minElevation
		stats.MaxElevationM = b.maxElevation
	}
	if b.minLat <= b.maxLat {
		stats.MinLat = b.minLat
		stats.MaxLat = b.maxLat
		stats.MinLng = b.minLng
		stats.MaxLng = b.maxLng
	}
	return stats
}
