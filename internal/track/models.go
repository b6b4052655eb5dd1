package track

import (
	"time"

	"github.com/JGarto/oss-mytracks/internal/shared/geo"
)

// Fix is a single positioning sample as delivered by the location source.
type Fix struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AltitudeM  float64   `json:"altitude_m"`
	AccuracyM  float64   `json:"accuracy_m"`
	SpeedMps   float64   `json:"speed_mps"`
	BearingDeg float64   `json:"bearing_deg"`
	Time       time.Time `json:"time"`
}

// Valid reports whether the fix describes a real position. Latitudes at or
// above 90 are separator encodings, never positions.
func (f Fix) Valid() bool {
	return geo.IsValidCoordinate(f.Lat, f.Lng)
}

// DistanceM returns the distance in meters to another fix.
func (f Fix) DistanceM(other Fix) float64 {
	return geo.DistanceM(f.Lat, f.Lng, other.Lat, other.Lng)
}

// SamePosition reports whether two fixes share bit-identical coordinates.
func (f Fix) SamePosition(other Fix) bool {
	return f.Lat == other.Lat && f.Lng == other.Lng
}

// SeparatorLat marks a segment boundary within a track.
const SeparatorLat = 100.0

// Separator builds the synthetic segment-boundary fix written into the point
// stream when recording resumes after a gap. It carries the timestamp of the
// last recorded point before the gap.
func Separator(at time.Time) Fix {
	return Fix{Lat: SeparatorLat, Lng: 0, Time: at}
}

// Stats is an aggregate snapshot over a stretch of recorded track. It is
// stored on the track row (aggregates since start) and on statistics markers
// (aggregates since the previous marker).
type Stats struct {
	StartTime      time.Time     `json:"start_time"`
	StopTime       time.Time     `json:"stop_time"`
	TotalDistanceM float64       `json:"total_distance_m"`
	TotalTime      time.Duration `json:"total_time"`
	MovingTime     time.Duration `json:"moving_time"`
	AvgSpeedMps    float64       `json:"avg_speed_mps"`
	MaxSpeedMps    float64       `json:"max_speed_mps"`
	MinElevationM  float64       `json:"min_elevation_m"`
	MaxElevationM  float64       `json:"max_elevation_m"`
	ElevationGainM float64       `json:"elevation_gain_m"`
	MinLat         float64       `json:"min_lat"`
	MaxLat         float64       `json:"max_lat"`
	MinLng         float64       `json:"min_lng"`
	MaxLng         float64       `json:"max_lng"`
}

// Track is the persisted record of one recording attempt.
type Track struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// StartID/StopID are point ids bracketing the recorded stream; -1 when no
	// point has been recorded yet.
	StartID   int64 `json:"start_id"`
	StopID    int64 `json:"stop_id"`
	NumPoints int   `json:"num_points"`
	Stats     Stats `json:"stats"`
}

// HasStart reports whether at least one point has been persisted.
func (t Track) HasStart() bool {
	return t.StartID >= 0
}

const (
	MarkerTypeWaypoint   = "waypoint"
	MarkerTypeStatistics = "statistics"
)

// Marker is either a user waypoint or a periodic statistics checkpoint.
// Markers outlive the recording session that created them.
type Marker struct {
	ID          string `json:"id"`
	TrackID     string `json:"track_id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Fix         Fix    `json:"fix"`
	// LengthM and Duration are absolute values since track start, so markers
	// align with the overall track even though Stats covers only the segment
	// since the previous checkpoint.
	LengthM      float64       `json:"length_m"`
	Duration     time.Duration `json:"duration"`
	StartPointID int64         `json:"start_point_id"`
	Stats        Stats         `json:"stats"`
}
