package track

import (
	"context"
	"errors"
	"time"

	"github.com/JGarto/oss-mytracks/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a referenced track or marker does not exist.
var ErrNotFound = errors.New("track: not found")

// Store persists tracks, track points, and markers.
type Store struct {
	db db.Querier
}

func NewStore(db db.Querier) *Store {
	return &Store{db: db}
}

// IsTransient reports whether a storage error is a transient-busy condition
// (lock contention, serialization failure). Callers treat the failed write as
// "did not happen" and continue with the next fix.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40001", "40P01", "53300":
			return true
		}
	}
	return false
}

func (s *Store) InsertTrack(ctx context.Context, t Track) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO tracks (id, name, description, start_id, stop_id, num_points, start_time, stop_time,
		                    total_distance_m, total_time_ms, moving_time_ms, avg_speed_mps, max_speed_mps,
		                    min_elevation_m, max_elevation_m, elevation_gain_m, min_lat, max_lat, min_lng, max_lng)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, t.ID, t.Name, t.Description, t.StartID, t.StopID, t.NumPoints,
		t.Stats.StartTime, t.Stats.StopTime, t.Stats.TotalDistanceM,
		t.Stats.TotalTime.Milliseconds(), t.Stats.MovingTime.Milliseconds(),
		t.Stats.AvgSpeedMps, t.Stats.MaxSpeedMps,
		t.Stats.MinElevationM, t.Stats.MaxElevationM, t.Stats.ElevationGainM,
		t.Stats.MinLat, t.Stats.MaxLat, t.Stats.MinLng, t.Stats.MaxLng)
	return err
}

func (s *Store) UpdateTrack(ctx context.Context, t Track) error {
	_, err := s.db.Exec(ctx, `
		UPDATE tracks SET name=$2, description=$3 WHERE id=$1
	`, t.ID, t.Name, t.Description)
	return err
}

func (s *Store) GetTrack(ctx context.Context, id string) (Track, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, description, start_id, stop_id, num_points, start_time, stop_time,
		       total_distance_m, total_time_ms, moving_time_ms, avg_speed_mps, max_speed_mps,
		       min_elevation_m, max_elevation_m, elevation_gain_m, min_lat, max_lat, min_lng, max_lng
		FROM tracks WHERE id=$1
	`, id)

	var t Track
	var totalMs, movingMs int64
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.StartID, &t.StopID, &t.NumPoints,
		&t.Stats.StartTime, &t.Stats.StopTime, &t.Stats.TotalDistanceM, &totalMs, &movingMs,
		&t.Stats.AvgSpeedMps, &t.Stats.MaxSpeedMps,
		&t.Stats.MinElevationM, &t.Stats.MaxElevationM, &t.Stats.ElevationGainM,
		&t.Stats.MinLat, &t.Stats.MaxLat, &t.Stats.MinLng, &t.Stats.MaxLng)
	if errors.Is(err, pgx.ErrNoRows) {
		return Track{}, ErrNotFound
	}
	if err != nil {
		return Track{}, err
	}
	t.Stats.TotalTime = time.Duration(totalMs) * time.Millisecond
	t.Stats.MovingTime = time.Duration(movingMs) * time.Millisecond
	return t, nil
}

// UpdateOnPoint refreshes a track's envelope after a point was accepted:
// start/stop point ids, count, stop time, and the aggregate columns.
func (s *Store) UpdateOnPoint(ctx context.Context, trackID string, startID, stopID int64, numPoints int, stopTime time.Time, stats Stats) error {
	_, err := s.db.Exec(ctx, `
		UPDATE tracks
		SET start_id=$2, stop_id=$3, num_points=$4, stop_time=$5,
		    total_distance_m=$6, total_time_ms=$7, moving_time_ms=$8,
		    avg_speed_mps=$9, max_speed_mps=$10,
		    min_elevation_m=$11, max_elevation_m=$12, elevation_gain_m=$13,
		    min_lat=$14, max_lat=$15, min_lng=$16, max_lng=$17
		WHERE id=$1
	`, trackID, startID, stopID, numPoints, stopTime,
		stats.TotalDistanceM, stats.TotalTime.Milliseconds(), stats.MovingTime.Milliseconds(),
		stats.AvgSpeedMps, stats.MaxSpeedMps,
		stats.MinElevationM, stats.MaxElevationM, stats.ElevationGainM,
		stats.MinLat, stats.MaxLat, stats.MinLng, stats.MaxLng)
	return err
}

// FinalizeTrack stamps the stop fields when a recording ends.
func (s *Store) FinalizeTrack(ctx context.Context, trackID string, stopID int64, stopTime time.Time, totalTime time.Duration) error {
	_, err := s.db.Exec(ctx, `
		UPDATE tracks SET stop_id=$2, stop_time=$3, total_time_ms=$4 WHERE id=$1
	`, trackID, stopID, stopTime, totalTime.Milliseconds())
	return err
}

func (s *Store) InsertPoint(ctx context.Context, trackID string, f Fix) (int64, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO track_points (track_id, lat, lng, altitude_m, accuracy_m, speed_mps, bearing_deg, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, trackID, f.Lat, f.Lng, f.AltitudeM, f.AccuracyM, f.SpeedMps, f.BearingDeg, f.Time)

	var id int64
	if err := row.Scan(&id); err != nil {
		return -1, err
	}
	return id, nil
}

// LastPoint returns the most recently inserted point of a track. The bool is
// false when the track has no points yet.
func (s *Store) LastPoint(ctx context.Context, trackID string) (Fix, int64, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, lat, lng, altitude_m, accuracy_m, speed_mps, bearing_deg, recorded_at
		FROM track_points WHERE track_id=$1
		ORDER BY id DESC LIMIT 1
	`, trackID)

	var f Fix
	var id int64
	err := row.Scan(&id, &f.Lat, &f.Lng, &f.AltitudeM, &f.AccuracyM, &f.SpeedMps, &f.BearingDeg, &f.Time)
	if errors.Is(err, pgx.ErrNoRows) {
		return Fix{}, -1, false, nil
	}
	if err != nil {
		return Fix{}, -1, false, err
	}
	return f, id, true, nil
}

// PointsNewestFirst returns up to limit points ordered newest first. Crash
// recovery reverses the slice before replaying.
func (s *Store) PointsNewestFirst(ctx context.Context, trackID string, limit int) ([]Fix, error) {
	rows, err := s.db.Query(ctx, `
		SELECT lat, lng, altitude_m, accuracy_m, speed_mps, bearing_deg, recorded_at
		FROM track_points WHERE track_id=$1
		ORDER BY id DESC LIMIT $2
	`, trackID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fixes []Fix
	for rows.Next() {
		var f Fix
		if err := rows.Scan(&f.Lat, &f.Lng, &f.AltitudeM, &f.AccuracyM, &f.SpeedMps, &f.BearingDeg, &f.Time); err != nil {
			return nil, err
		}
		fixes = append(fixes, f)
	}
	return fixes, rows.Err()
}

// Points returns all points of a track in recording order.
func (s *Store) Points(ctx context.Context, trackID string) ([]Fix, error) {
	rows, err := s.db.Query(ctx, `
		SELECT lat, lng, altitude_m, accuracy_m, speed_mps, bearing_deg, recorded_at
		FROM track_points WHERE track_id=$1
		ORDER BY id
	`, trackID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fixes []Fix
	for rows.Next() {
		var f Fix
		if err := rows.Scan(&f.Lat, &f.Lng, &f.AltitudeM, &f.AccuracyM, &f.SpeedMps, &f.BearingDeg, &f.Time); err != nil {
			return nil, err
		}
		fixes = append(fixes, f)
	}
	return fixes, rows.Err()
}

func (s *Store) InsertMarker(ctx context.Context, m Marker) (string, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO markers (id, track_id, type, name, description, icon,
		                     lat, lng, altitude_m, accuracy_m, speed_mps, bearing_deg, recorded_at,
		                     length_m, duration_ms, start_point_id,
		                     stat_start_time, stat_stop_time, stat_total_distance_m, stat_total_time_ms,
		                     stat_moving_time_ms, stat_avg_speed_mps, stat_max_speed_mps,
		                     stat_min_elevation_m, stat_max_elevation_m, stat_elevation_gain_m)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
	`, m.ID, m.TrackID, m.Type, m.Name, m.Description, m.Icon,
		m.Fix.Lat, m.Fix.Lng, m.Fix.AltitudeM, m.Fix.AccuracyM, m.Fix.SpeedMps, m.Fix.BearingDeg, m.Fix.Time,
		m.LengthM, m.Duration.Milliseconds(), m.StartPointID,
		m.Stats.StartTime, m.Stats.StopTime, m.Stats.TotalDistanceM, m.Stats.TotalTime.Milliseconds(),
		m.Stats.MovingTime.Milliseconds(), m.Stats.AvgSpeedMps, m.Stats.MaxSpeedMps,
		m.Stats.MinElevationM, m.Stats.MaxElevationM, m.Stats.ElevationGainM)
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

// UpdateMarkerStats refreshes the open statistics checkpoint as points accrue.
func (s *Store) UpdateMarkerStats(ctx context.Context, markerID string, lengthM float64, duration time.Duration, stats Stats) error {
	_, err := s.db.Exec(ctx, `
		UPDATE markers
		SET length_m=$2, duration_ms=$3,
		    stat_start_time=$4, stat_stop_time=$5, stat_total_distance_m=$6, stat_total_time_ms=$7,
		    stat_moving_time_ms=$8, stat_avg_speed_mps=$9, stat_max_speed_mps=$10,
		    stat_min_elevation_m=$11, stat_max_elevation_m=$12, stat_elevation_gain_m=$13
		WHERE id=$1
	`, markerID, lengthM, duration.Milliseconds(),
		stats.StartTime, stats.StopTime, stats.TotalDistanceM, stats.TotalTime.Milliseconds(),
		stats.MovingTime.Milliseconds(), stats.AvgSpeedMps, stats.MaxSpeedMps,
		stats.MinElevationM, stats.MaxElevationM, stats.ElevationGainM)
	return err
}

// LastStatisticsMarker returns the most recent statistics checkpoint of a
// track. The bool is false when the track has none.
func (s *Store) LastStatisticsMarker(ctx context.Context, trackID string) (Marker, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, track_id, type, name, description, icon,
		       lat, lng, altitude_m, accuracy_m, speed_mps, bearing_deg, recorded_at,
		       length_m, duration_ms, start_point_id,
		       stat_start_time, stat_stop_time, stat_total_distance_m, stat_total_time_ms,
		       stat_moving_time_ms, stat_avg_speed_mps, stat_max_speed_mps,
		       stat_min_elevation_m, stat_max_elevation_m, stat_elevation_gain_m
		FROM markers WHERE track_id=$1 AND type=$2
		ORDER BY recorded_at DESC LIMIT 1
	`, trackID, MarkerTypeStatistics)

	m, err := scanMarker(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Marker{}, false, nil
	}
	if err != nil {
		return Marker{}, false, err
	}
	return m, true, nil
}

// Markers returns all markers of a track in insertion order.
func (s *Store) Markers(ctx context.Context, trackID string) ([]Marker, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, track_id, type, name, description, icon,
		       lat, lng, altitude_m, accuracy_m, speed_mps, bearing_deg, recorded_at,
		       length_m, duration_ms, start_point_id,
		       stat_start_time, stat_stop_time, stat_total_distance_m, stat_total_time_ms,
		       stat_moving_time_ms, stat_avg_speed_mps, stat_max_speed_mps,
		       stat_min_elevation_m, stat_max_elevation_m, stat_elevation_gain_m
		FROM markers WHERE track_id=$1
		ORDER BY recorded_at
	`, trackID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markers []Marker
	for rows.Next() {
		m, err := scanMarker(rows)
		if err != nil {
			return nil, err
		}
		markers = append(markers, m)
	}
	return markers, rows.Err()
}

func scanMarker(row pgx.Row) (Marker, error) {
	var m Marker
	var durationMs, statTotalMs, statMovingMs int64
	err := row.Scan(&m.ID, &m.TrackID, &m.Type, &m.Name, &m.Description, &m.Icon,
		&m.Fix.Lat, &m.Fix.Lng, &m.Fix.AltitudeM, &m.Fix.AccuracyM, &m.Fix.SpeedMps, &m.Fix.BearingDeg, &m.Fix.Time,
		&m.LengthM, &durationMs, &m.StartPointID,
		&m.Stats.StartTime, &m.Stats.StopTime, &m.Stats.TotalDistanceM, &statTotalMs,
		&statMovingMs, &m.Stats.AvgSpeedMps, &m.Stats.MaxSpeedMps,
		&m.Stats.MinElevationM, &m.Stats.MaxElevationM, &m.Stats.ElevationGainM)
	if err != nil {
		return Marker{}, err
	}
	m.Duration = time.Duration(durationMs) * time.Millisecond
	m.Stats.TotalTime = time.Duration(statTotalMs) * time.Millisecond
	m.Stats.MovingTime = time.Duration(statMovingMs) * time.Millisecond
	return m, nil
}
