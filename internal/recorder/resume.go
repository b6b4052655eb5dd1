package recorder

import (
	"context"
	"log"
	"time"

	"github.com/JGarto/oss-mytracks/internal/prefs"
)

// MaxAutoResumeRetries caps consecutive resume attempts so a recording that
// crashes the process on every resume cannot loop forever.
const MaxAutoResumeRetries = 3

// AutoResumeGuard decides, once per process start, whether an in-progress
// recording should be reattached. TimeoutMin follows the persisted
// auto-resume setting: 0 never resumes, -1 always resumes, N resumes only
// when the last stop is at most N minutes old.
type AutoResumeGuard struct {
	Prefs      *prefs.Store
	TimeoutMin int

	Now func() time.Time
}

// ShouldResume evaluates the retry bound and the timeout against the active
// track's last stop timestamp. Every evaluation below the retry cap counts
// as an attempt; only an explicit new-recording start resets the counter.
func (g *AutoResumeGuard) ShouldResume(ctx context.Context, lastStop time.Time) bool {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}

	retries := g.Prefs.GetInt(ctx, prefs.KeyAutoResumeRetries, 0)
	log.Printf("recorder: auto-resume attempt %d/%d", retries+1, MaxAutoResumeRetries)
	if retries >= MaxAutoResumeRetries {
		log.Printf("recorder: not resuming, retry limit reached")
		return false
	}
	if err := g.Prefs.SetInt(ctx, prefs.KeyAutoResumeRetries, retries+1); err != nil {
		log.Printf("recorder: persisting retry counter: %v", err)
	}

	switch {
	case g.TimeoutMin == 0:
		log.Printf("recorder: auto-resume disabled")
		return false
	case g.TimeoutMin == -1:
		log.Printf("recorder: auto-resume forced")
		return true
	}

	if lastStop.IsZero() {
		log.Printf("recorder: not resuming, track has no stop timestamp")
		return false
	}
	age := now().Sub(lastStop)
	if age > time.Duration(g.TimeoutMin)*time.Minute {
		log.Printf("recorder: not resuming, track is %v old (limit %dm)", age, g.TimeoutMin)
		return false
	}
	return true
}
