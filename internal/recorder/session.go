package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/JGarto/oss-mytracks/internal/locsource"
	"github.com/JGarto/oss-mytracks/internal/prefs"
	"github.com/JGarto/oss-mytracks/internal/track"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyRecording is returned by StartNewTrack while a recording is
	// active; concurrent sessions are forbidden by construction.
	ErrAlreadyRecording = errors.New("recorder: a track is already in progress")
	// ErrNotRecording is returned by operations that require an active
	// recording.
	ErrNotRecording = errors.New("recorder: no recording track in progress")
)

// Crash recovery replays at most this many of the most recent points.
const maxLoadedTrackPoints = 10000

const (
	defaultWatchdogInitial = 5 * time.Minute
	defaultWatchdogEvery   = time.Minute
)

// Broadcaster receives every accepted track point for live streaming.
type Broadcaster interface {
	Broadcast(trackID string, payload []byte)
}

// WakeSource is the host resource held while recording (a wake lock on the
// original platform). The default implementation does nothing.
type WakeSource interface {
	Acquire()
	Release()
}

type nopWake struct{}

func (nopWake) Acquire() {}
func (nopWake) Release() {}

// Config carries the recording tunables the session starts with. The
// persisted preference surface can override them at runtime.
type Config struct {
	MinRecordingDistanceM float64
	MaxRecordingDistanceM float64
	MinRequiredAccuracyM  float64
	AutoResumeTimeoutMin  int
	SplitFrequencyKm      float64
	MinPollingInterval    time.Duration
	MaxPollingInterval    time.Duration
}

// Session owns all recording state. A single dispatcher goroutine processes
// every fix and control call serially, so none of the session fields need
// locks; the watchdog and the positioning source only ever post work onto
// the dispatcher.
type Session struct {
	store  *track.Store
	prefs  *prefs.Store
	source locsource.Source
	hub    Broadcaster
	wake   WakeSource
	cfg    Config
	clock  func() time.Time

	watchdogInitial time.Duration
	watchdogEvery   time.Duration

	cmds chan func()
	quit chan struct{}

	// Dispatcher-owned state below. Never touched off the dispatcher.
	filter          Filter
	policy          PollingPolicy
	splitter        Splitter
	markers         *MarkerManager
	stats           *StatsBuilder
	recording       bool
	trk             track.Track
	moving          bool
	lastFix         *track.Fix
	lastValid       *track.Fix
	lastRecorded    *track.Fix
	lastRecordedID  int64
	lengthM         float64
	currentInterval time.Duration
	watchdogStop    chan struct{}
}

// Option customizes a Session at construction.
type Option func(*Session)

// WithClock substitutes the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) { s.clock = clock }
}

// WithWatchdogTiming overrides the watchdog's initial delay and period.
func WithWatchdogTiming(initial, every time.Duration) Option {
	return func(s *Session) {
		s.watchdogInitial = initial
		s.watchdogEvery = every
	}
}

// WithPolicy installs a polling policy other than the adaptive default.
func WithPolicy(p PollingPolicy) Option {
	return func(s *Session) { s.policy = p }
}

// WithWakeSource installs the host wake resource.
func WithWakeSource(w WakeSource) Option {
	return func(s *Session) { s.wake = w }
}

// New builds a Session, starts its dispatcher, and runs startup recovery:
// if a persisted active track is found and the auto-resume guard approves,
// the recording is reattached before the first fix can be processed.
func New(store *track.Store, prefStore *prefs.Store, source locsource.Source, hub Broadcaster, cfg Config, opts ...Option) *Session {
	s := &Session{
		store:           store,
		prefs:           prefStore,
		source:          source,
		hub:             hub,
		wake:            nopWake{},
		cfg:             cfg,
		clock:           time.Now,
		watchdogInitial: defaultWatchdogInitial,
		watchdogEvery:   defaultWatchdogEvery,
		cmds:            make(chan func()),
		quit:            make(chan struct{}),
		markers:         NewMarkerManager(store),
		lastRecordedID:  -1,
	}
	s.filter = Filter{
		MinRecordingDistanceM: cfg.MinRecordingDistanceM,
		MaxRecordingDistanceM: cfg.MaxRecordingDistanceM,
		MinRequiredAccuracyM:  cfg.MinRequiredAccuracyM,
	}
	s.policy = &AdaptivePolicy{
		Min:         cfg.MinPollingInterval,
		Max:         cfg.MaxPollingInterval,
		MinDistance: cfg.MinRecordingDistanceM,
	}
	s.splitter = Splitter{FrequencyKm: cfg.SplitFrequencyKm}
	for _, opt := range opts {
		opt(s)
	}

	go s.loop()
	s.call(func() { s.recoverStartup(context.Background()) })
	return s
}

// Close tears the session down: watchdog and source first, so no fix can be
// delivered mid-teardown, then the wake resource, then the dispatcher.
func (s *Session) Close() {
	s.call(func() {
		s.disarmWatchdog()
		s.source.Unregister()
		s.wake.Release()
	})
	close(s.quit)
}

func (s *Session) loop() {
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case <-s.quit:
			return
		}
	}
}

// call runs fn on the dispatcher and waits for it to finish.
func (s *Session) call(fn func()) {
	done := make(chan struct{})
	select {
	case s.cmds <- func() { fn(); close(done) }:
	case <-s.quit:
		return
	}
	select {
	case <-done:
	case <-s.quit:
	}
}

// post schedules fn on the dispatcher without waiting.
func (s *Session) post(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.quit:
	}
}

/*
 * Control surface. Every method executes on the dispatcher.
 */

// StartNewTrack allocates a fresh track and begins recording into it.
func (s *Session) StartNewTrack(ctx context.Context, name, description string) (string, error) {
	var id string
	var err error
	s.call(func() { id, err = s.startNewTrack(ctx, name, description) })
	return id, err
}

// EndCurrentTrack finalizes the active recording and resets the session.
func (s *Session) EndCurrentTrack(ctx context.Context) error {
	var err error
	s.call(func() { err = s.endCurrentTrack(ctx) })
	return err
}

// IsRecording reports whether a recording is active.
func (s *Session) IsRecording() bool {
	var recording bool
	s.call(func() { recording = s.recording })
	return recording
}

// RecordingTrackID returns the active track id, empty when idle.
func (s *Session) RecordingTrackID() string {
	var id string
	s.call(func() { id = s.trk.ID })
	return id
}

// Stats returns a snapshot of the accumulated trip statistics.
func (s *Session) Stats() (track.Stats, bool) {
	var stats track.Stats
	var ok bool
	s.call(func() {
		if s.recording {
			stats = s.stats.Snapshot()
			ok = true
		}
	})
	return stats, ok
}

// RecordFix feeds one positioning fix through the filter. Transient storage
// failures abandon the fix silently; only unexpected faults surface as an
// error.
func (s *Session) RecordFix(ctx context.Context, f track.Fix) error {
	var err error
	s.call(func() { err = s.handleFix(ctx, f) })
	return err
}

// InsertWaypointMarker creates a user marker anchored at the marker's fix.
func (s *Session) InsertWaypointMarker(ctx context.Context, m track.Marker) (string, error) {
	var id string
	var err error
	s.call(func() {
		if !s.recording {
			err = ErrNotRecording
			return
		}
		if !m.Fix.Valid() {
			err = errors.New("recorder: waypoint marker requires a valid location")
			return
		}
		id, err = s.markers.InsertWaypoint(ctx, m, s.lengthM, m.Fix.Time.Sub(s.stats.StartTime()))
	})
	return id, err
}

// InsertStatisticsMarker closes the open checkpoint at the given anchor fix
// and opens the next one.
func (s *Session) InsertStatisticsMarker(ctx context.Context, anchor track.Fix) (string, error) {
	var id string
	var err error
	s.call(func() {
		if !s.recording {
			err = ErrNotRecording
			return
		}
		id, err = s.insertStatisticsMarker(ctx, anchor)
	})
	return id, err
}

// SetPollingPolicy swaps the polling policy; if recording, the source is
// re-registered at the new policy's interval immediately.
func (s *Session) SetPollingPolicy(p PollingPolicy) {
	s.call(func() {
		s.policy = p
		if s.recording {
			s.registerSource()
		}
	})
}

// Thresholds returns the filter thresholds currently in effect.
func (s *Session) Thresholds() (minDistM, maxDistM, minAccuracyM float64) {
	s.call(func() {
		minDistM = s.filter.MinRecordingDistanceM
		maxDistM = s.filter.MaxRecordingDistanceM
		minAccuracyM = s.filter.MinRequiredAccuracyM
	})
	return minDistM, maxDistM, minAccuracyM
}

// SetThresholds updates the filter thresholds and persists them.
func (s *Session) SetThresholds(ctx context.Context, minDistM, maxDistM, minAccuracyM float64) {
	s.call(func() {
		s.filter.MinRecordingDistanceM = minDistM
		s.filter.MaxRecordingDistanceM = maxDistM
		s.filter.MinRequiredAccuracyM = minAccuracyM
		_ = s.prefs.SetFloat(ctx, prefs.KeyMinRecordingDistance, minDistM)
		_ = s.prefs.SetFloat(ctx, prefs.KeyMaxRecordingDistance, maxDistM)
		_ = s.prefs.SetFloat(ctx, prefs.KeyMinRequiredAccuracy, minAccuracyM)
	})
}

// OnPreferenceChanged re-reads one tunable (or all, when key is empty) from
// the persisted preference surface and, if recording, re-registers polling.
func (s *Session) OnPreferenceChanged(ctx context.Context, key string) {
	s.call(func() {
		s.reloadPreference(ctx, key)
		if s.recording {
			s.registerSource()
		}
	})
}

/*
 * Dispatcher internals.
 */

func (s *Session) startNewTrack(ctx context.Context, name, description string) (string, error) {
	if s.recording || s.trk.ID != "" {
		return "", ErrAlreadyRecording
	}

	now := s.clock()
	t := track.Track{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		StartID:     -1,
		StopID:      -1,
		Stats:       track.Stats{StartTime: now, StopTime: now},
	}
	if t.Name == "" {
		t.Name = "Track " + now.Format("2006-01-02 15:04")
	}
	if err := s.store.InsertTrack(ctx, t); err != nil {
		return "", err
	}

	s.trk = t
	s.recording = true
	s.moving = true
	s.lengthM = 0
	s.lastFix = nil
	s.lastValid = nil
	s.lastRecorded = nil
	s.lastRecordedID = -1
	s.stats = NewStatsBuilder(now)
	s.splitter.Rearm(0)

	if err := s.markers.Open(ctx, t.ID, now); err != nil {
		s.recording = false
		s.trk = track.Track{}
		return "", err
	}

	s.registerSource()
	s.armWatchdog()
	s.wake.Acquire()

	if err := s.prefs.SetInt(ctx, prefs.KeyAutoResumeRetries, 0); err != nil {
		log.Printf("recorder: resetting retry counter: %v", err)
	}
	if err := s.prefs.Set(ctx, prefs.KeyRecordingTrackID, t.ID); err != nil {
		log.Printf("recorder: persisting active track: %v", err)
	}
	return t.ID, nil
}

func (s *Session) endCurrentTrack(ctx context.Context) error {
	if !s.recording || s.trk.ID == "" {
		return ErrNotRecording
	}

	// Teardown order matters: stop the watchdog and unregister before
	// touching anything else, so no fix arrives mid-teardown.
	s.disarmWatchdog()
	s.source.Unregister()
	s.recording = false

	now := s.clock()
	err := s.store.FinalizeTrack(ctx, s.trk.ID, s.trk.StopID, now, now.Sub(s.stats.StartTime()))
	if err != nil {
		if track.IsTransient(err) {
			log.Printf("recorder: transient failure finalizing track %s: %v", s.trk.ID, err)
			err = nil
		} else {
			log.Printf("recorder: finalizing track %s: %v", s.trk.ID, err)
		}
	}

	s.wake.Release()
	if derr := s.prefs.Delete(ctx, prefs.KeyRecordingTrackID); derr != nil {
		log.Printf("recorder: clearing active track: %v", derr)
	}

	s.trk = track.Track{}
	s.moving = false
	s.lastFix = nil
	s.lastValid = nil
	s.lastRecorded = nil
	s.lastRecordedID = -1
	s.lengthM = 0
	return err
}

func (s *Session) handleFix(ctx context.Context, f track.Fix) error {
	if !s.recording {
		log.Printf("recorder: dropping fix, not recording")
		return nil
	}
	if f.AccuracyM > s.filter.MinRequiredAccuracyM {
		log.Printf("recorder: dropping fix, accuracy %.0fm worse than %.0fm", f.AccuracyM, s.filter.MinRequiredAccuracyM)
		return nil
	}
	if s.trk.ID == "" {
		log.Printf("recorder: dropping fix, no track to append to")
		return nil
	}

	if f.Valid() {
		s.stats.Add(f)
		s.markers.AddFix(f)
	}

	s.policy.UpdateIdleTime(s.stats.IdleTime())
	if s.currentInterval != s.policy.DesiredInterval() {
		s.registerSource()
	}

	d := s.filter.Decide(f, s.lastFix, s.lastRecorded, s.moving, s.trk.HasStart())

	// The stationary flip happens before the flush attempt; the moving flip
	// happens only after a successful flush. A transient failure in between
	// leaves the flags exactly where an aborted pass should.
	if !d.Moving {
		s.moving = false
	}
	if d.RecordPrevious && s.lastFix != nil {
		ok, err := s.insertFix(ctx, *s.lastFix)
		if err != nil || !ok {
			return err
		}
	}
	if d.Moving {
		s.moving = true
	}

	if d.InsertSeparator {
		sep := track.Separator(s.lastRecorded.Time)
		if _, err := s.store.InsertPoint(ctx, s.trk.ID, sep); err != nil {
			if track.IsTransient(err) {
				log.Printf("recorder: transient failure inserting separator: %v", err)
				return nil
			}
			return err
		}
		log.Printf("recorder: inserted segment separator on track %s", s.trk.ID)
	}

	if d.Record {
		ok, err := s.insertFix(ctx, f)
		if err != nil || !ok {
			return err
		}
	}

	if d.UpdateLast {
		fc := f
		s.lastFix = &fc
	}
	return nil
}

// insertFix persists one fix and performs the bookkeeping that rides on
// acceptance: length accumulation, track envelope, open checkpoint refresh,
// split evaluation, live broadcast. A transient storage failure returns
// (false, nil): the fix's processing is abandoned, nothing is rolled back.
func (s *Session) insertFix(ctx context.Context, f track.Fix) (bool, error) {
	if f.Valid() {
		if s.lastValid != nil {
			s.lengthM += f.DistanceM(*s.lastValid)
		}
		fc := f
		s.lastValid = &fc
	}

	id, err := s.store.InsertPoint(ctx, s.trk.ID, f)
	if err != nil {
		if track.IsTransient(err) {
			log.Printf("recorder: transient failure inserting point: %v", err)
			return false, nil
		}
		return false, err
	}

	fc := f
	s.lastRecorded = &fc
	s.lastRecordedID = id
	if s.trk.StartID < 0 {
		s.trk.StartID = id
	}
	s.trk.StopID = id
	s.trk.NumPoints++

	snap := s.stats.Snapshot()
	s.trk.Stats = snap
	now := s.clock()
	if err := s.store.UpdateOnPoint(ctx, s.trk.ID, s.trk.StartID, id, s.trk.NumPoints, now, snap); err != nil {
		if track.IsTransient(err) {
			log.Printf("recorder: transient failure updating track envelope: %v", err)
			return false, nil
		}
		return false, err
	}
	if err := s.markers.UpdateCurrent(ctx, s.lengthM, now.Sub(s.stats.StartTime())); err != nil {
		if track.IsTransient(err) {
			log.Printf("recorder: transient failure updating checkpoint: %v", err)
			return false, nil
		}
		return false, err
	}

	if s.splitter.Crossed(s.lengthM) {
		if _, err := s.insertStatisticsMarker(ctx, f); err != nil {
			log.Printf("recorder: auto-split checkpoint: %v", err)
		}
	}

	if s.hub != nil {
		payload, _ := json.Marshal(struct {
			PointID int64 `json:"point_id"`
			track.Fix
		}{id, f})
		s.hub.Broadcast(s.trk.ID, payload)
	}
	return true, nil
}

func (s *Session) insertStatisticsMarker(ctx context.Context, anchor track.Fix) (string, error) {
	now := s.clock()
	return s.markers.InsertStatistics(ctx, anchor, now, s.lengthM, now.Sub(s.stats.StartTime()), s.lastRecordedID)
}

/*
 * Startup recovery.
 */

func (s *Session) recoverStartup(ctx context.Context) {
	trackID, ok := s.prefs.Get(ctx, prefs.KeyRecordingTrackID)
	if !ok || trackID == "" {
		return
	}

	trk, err := s.store.GetTrack(ctx, trackID)
	if errors.Is(err, track.ErrNotFound) {
		// Consistency repair: the preference points at a track that no
		// longer exists.
		log.Printf("recorder: resetting orphaned recording track %s", trackID)
		_ = s.prefs.Delete(ctx, prefs.KeyRecordingTrackID)
		return
	}
	if err != nil {
		log.Printf("recorder: loading active track %s: %v", trackID, err)
		return
	}

	guard := &AutoResumeGuard{
		Prefs:      s.prefs,
		TimeoutMin: s.prefs.GetInt(ctx, prefs.KeyAutoResumeTimeoutMin, s.cfg.AutoResumeTimeoutMin),
		Now:        s.clock,
	}
	if !guard.ShouldResume(ctx, trk.Stats.StopTime) {
		_ = s.prefs.Delete(ctx, prefs.KeyRecordingTrackID)
		return
	}

	log.Printf("recorder: resuming track %s", trk.ID)
	s.restoreStats(ctx, trk)
	s.recording = true
	s.registerSource()
	s.armWatchdog()
	s.wake.Acquire()
}

// restoreStats rebuilds the in-memory accumulator by replaying the most
// recent persisted points, newest-first then reversed. Replaying the same
// points twice produces identical state, which is what makes restart
// idempotent.
func (s *Session) restoreStats(ctx context.Context, trk track.Track) {
	s.trk = trk
	s.moving = true
	s.lengthM = 0
	s.lastFix = nil
	s.lastValid = nil
	s.stats = NewStatsBuilder(trk.Stats.StartTime)

	marker, found, err := s.store.LastStatisticsMarker(ctx, trk.ID)
	if err != nil {
		log.Printf("recorder: loading open checkpoint: %v", err)
	}
	if found {
		s.markers.Reopen(trk.ID, marker)
	} else {
		log.Printf("recorder: no open checkpoint on track %s, synthesizing one", trk.ID)
		if serr := s.markers.Synthesize(ctx, trk.ID, trk.Stats.StartTime); serr != nil {
			log.Printf("recorder: synthesizing checkpoint: %v", serr)
		}
	}

	fixes, err := s.store.PointsNewestFirst(ctx, trk.ID, maxLoadedTrackPoints)
	if err != nil {
		log.Printf("recorder: loading points for restore: %v", err)
	}
	for i := len(fixes) - 1; i >= 0; i-- {
		f := fixes[i]
		if !f.Valid() {
			continue
		}
		s.stats.Add(f)
		if s.lastValid != nil {
			s.lengthM += f.DistanceM(*s.lastValid)
		}
		fc := f
		s.lastValid = &fc
	}
	s.stats.SetMovingTime(trk.Stats.MovingTime)
	s.stats.PauseAt(trk.Stats.StopTime)
	s.stats.ResumeAt(s.clock())

	last, id, found, err := s.store.LastPoint(ctx, trk.ID)
	if err != nil {
		log.Printf("recorder: loading last point for restore: %v", err)
	}
	if found {
		s.lastRecorded = &last
		s.lastRecordedID = id
	} else {
		s.lastRecorded = nil
		s.lastRecordedID = -1
	}

	s.splitter.Rearm(s.lengthM)
}

/*
 * Polling registration and watchdog.
 */

func (s *Session) registerSource() {
	s.source.Unregister()
	req := locsource.Request{
		Interval:     s.policy.DesiredInterval(),
		MinDistanceM: s.policy.MinDistanceM(),
	}
	if err := s.source.Register(req, func(f track.Fix) {
		if err := s.RecordFix(context.Background(), f); err != nil {
			log.Printf("recorder: recording pushed fix: %v", err)
		}
	}); err != nil {
		log.Printf("recorder: registering with location source: %v", err)
		return
	}
	s.currentInterval = req.Interval
}

func (s *Session) reloadPreference(ctx context.Context, key string) {
	all := key == ""
	if all || key == prefs.KeyMinRecordingDistance {
		s.filter.MinRecordingDistanceM = s.prefs.GetFloat(ctx, prefs.KeyMinRecordingDistance, s.cfg.MinRecordingDistanceM)
	}
	if all || key == prefs.KeyMaxRecordingDistance {
		s.filter.MaxRecordingDistanceM = s.prefs.GetFloat(ctx, prefs.KeyMaxRecordingDistance, s.cfg.MaxRecordingDistanceM)
	}
	if all || key == prefs.KeyMinRequiredAccuracy {
		s.filter.MinRequiredAccuracyM = s.prefs.GetFloat(ctx, prefs.KeyMinRequiredAccuracy, s.cfg.MinRequiredAccuracyM)
	}
	if all || key == prefs.KeySplitFrequencyKm {
		s.splitter.FrequencyKm = s.prefs.GetFloat(ctx, prefs.KeySplitFrequencyKm, s.cfg.SplitFrequencyKm)
		s.splitter.Rearm(s.lengthM)
	}
	if all || key == prefs.KeyAutoResumeTimeoutMin {
		s.cfg.AutoResumeTimeoutMin = s.prefs.GetInt(ctx, prefs.KeyAutoResumeTimeoutMin, s.cfg.AutoResumeTimeoutMin)
	}
}

// armWatchdog starts the timer goroutine that periodically verifies the
// location source registration is still alive. It only ever posts work back
// onto the dispatcher.
func (s *Session) armWatchdog() {
	if s.watchdogStop != nil {
		return
	}
	stop := make(chan struct{})
	s.watchdogStop = stop

	go func() {
		timer := time.NewTimer(s.watchdogInitial)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-stop:
			return
		case <-s.quit:
			return
		}
		s.post(s.checkRegistration)

		ticker := time.NewTicker(s.watchdogEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.post(s.checkRegistration)
			case <-stop:
				return
			case <-s.quit:
				return
			}
		}
	}()
}

func (s *Session) disarmWatchdog() {
	if s.watchdogStop != nil {
		close(s.watchdogStop)
		s.watchdogStop = nil
	}
}

func (s *Session) checkRegistration() {
	if !s.recording {
		return
	}
	log.Printf("recorder: watchdog re-registering location source")
	s.registerSource()
}
