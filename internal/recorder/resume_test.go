package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/JGarto/oss-mytracks/internal/prefs"
)

func TestShouldResumeDisabled(t *testing.T) {
	g := &AutoResumeGuard{Prefs: prefs.NewStore(nil), TimeoutMin: 0}
	if g.ShouldResume(context.Background(), time.Now()) {
		t.Fatalf("timeout 0 should never resume")
	}
}

func TestShouldResumeForced(t *testing.T) {
	g := &AutoResumeGuard{Prefs: prefs.NewStore(nil), TimeoutMin: -1}
	stale := time.Now().Add(-24 * time.Hour)
	if !g.ShouldResume(context.Background(), stale) {
		t.Fatalf("timeout -1 should resume regardless of age")
	}
}

func TestShouldResumeWithinTimeout(t *testing.T) {
	now := time.Unix(1700000000, 0)
	g := &AutoResumeGuard{
		Prefs:      prefs.NewStore(nil),
		TimeoutMin: 30,
		Now:        func() time.Time { return now },
	}

	if !g.ShouldResume(context.Background(), now.Add(-10*time.Minute)) {
		t.Fatalf("a 10 minute old stop should resume under a 30 minute limit")
	}
}

func TestShouldResumeBeyondTimeout(t *testing.T) {
	now := time.Unix(1700000000, 0)
	g := &AutoResumeGuard{
		Prefs:      prefs.NewStore(nil),
		TimeoutMin: 30,
		Now:        func() time.Time { return now },
	}

	if g.ShouldResume(context.Background(), now.Add(-45*time.Minute)) {
		t.Fatalf("a 45 minute old stop must not resume under a 30 minute limit")
	}
}

func TestShouldResumeNoStopTimestamp(t *testing.T) {
	g := &AutoResumeGuard{Prefs: prefs.NewStore(nil), TimeoutMin: 30}
	if g.ShouldResume(context.Background(), time.Time{}) {
		t.Fatalf("a track without a stop timestamp must not resume")
	}
}

func TestShouldResumeRetryLimit(t *testing.T) {
	ctx := context.Background()
	store := prefs.NewStore(nil)
	g := &AutoResumeGuard{Prefs: store, TimeoutMin: -1}

	for i := 0; i < MaxAutoResumeRetries; i++ {
		if !g.ShouldResume(ctx, time.Time{}) {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if g.ShouldResume(ctx, time.Time{}) {
		t.Fatalf("attempt %d should hit the retry limit", MaxAutoResumeRetries+1)
	}
	if got := store.GetInt(ctx, prefs.KeyAutoResumeRetries, 0); got != MaxAutoResumeRetries {
		t.Fatalf("counter should stop at %d, got %d", MaxAutoResumeRetries, got)
	}
}

func TestShouldResumeCountsFailedAttempts(t *testing.T) {
	ctx := context.Background()
	store := prefs.NewStore(nil)
	g := &AutoResumeGuard{Prefs: store, TimeoutMin: 0}

	// Even a declined resume consumes an attempt: only an explicit new
	// recording resets the counter.
	g.ShouldResume(ctx, time.Time{})
	if got := store.GetInt(ctx, prefs.KeyAutoResumeRetries, 0); got != 1 {
		t.Fatalf("declined attempt should still increment the counter, got %d", got)
	}
}
