package prefs

import (
	"context"
	"log"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Preference keys shared between the recorder and its control surface. These
// survive process restarts; everything else is rebuilt at startup.
const (
	KeyRecordingTrackID     = "recording_track_id"
	KeyAutoResumeRetries    = "auto_resume_retries"
	KeyAutoResumeTimeoutMin = "auto_resume_timeout_min"
	KeyMinRecordingDistance = "min_recording_distance"
	KeyMaxRecordingDistance = "max_recording_distance"
	KeyMinRequiredAccuracy  = "min_required_accuracy"
	KeySplitFrequencyKm     = "split_frequency_km"
)

const keyPrefix = "recorder:prefs:"

// Store is the persisted preference surface. Values live in Redis; when no
// client is configured (local development, tests) they fall back to an
// in-process map, which loses the cross-restart guarantee but keeps the
// engine functional.
type Store struct {
	redis *redis.Client

	mu    sync.Mutex
	local map[string]string
}

func NewStore(client *redis.Client) *Store {
	return &Store{
		redis: client,
		local: map[string]string{},
	}
}

func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	if s.redis != nil {
		val, err := s.redis.Get(ctx, keyPrefix+key).Result()
		if err == redis.Nil {
			return "", false
		}
		if err != nil {
			log.Printf("prefs: get %s: %v", key, err)
			return "", false
		}
		return val, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.local[key]
	return val, ok
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if s.redis != nil {
		return s.redis.Set(ctx, keyPrefix+key, value, 0).Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.local[key] = value
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if s.redis != nil {
		return s.redis.Del(ctx, keyPrefix+key).Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.local, key)
	return nil
}

func (s *Store) GetInt(ctx context.Context, key string, def int) int {
	val, ok := s.Get(ctx, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		log.Printf("prefs: %s holds non-integer %q", key, val)
		return def
	}
	return n
}

func (s *Store) SetInt(ctx context.Context, key string, value int) error {
	return s.Set(ctx, key, strconv.Itoa(value))
}

func (s *Store) GetFloat(ctx context.Context, key string, def float64) float64 {
	val, ok := s.Get(ctx, key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		log.Printf("prefs: %s holds non-numeric %q", key, val)
		return def
	}
	return f
}

func (s *Store) SetFloat(ctx context.Context, key string, value float64) error {
	return s.Set(ctx, key, strconv.FormatFloat(value, 'f', -1, 64))
}
