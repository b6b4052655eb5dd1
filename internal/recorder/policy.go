package recorder

import "time"

// PollingPolicy picks the fix-delivery interval and minimum movement distance
// to request from the positioning source. UpdateIdleTime is fed the session's
// current idle estimate after every fix; the engine re-registers whenever
// DesiredInterval differs from the interval currently in effect.
type PollingPolicy interface {
	UpdateIdleTime(idle time.Duration)
	DesiredInterval() time.Duration
	MinDistanceM() float64
}

// AbsolutePolicy always requests the same interval and distance.
type AbsolutePolicy struct {
	Interval    time.Duration
	MinDistance float64
}

func (p *AbsolutePolicy) UpdateIdleTime(time.Duration) {}

func (p *AbsolutePolicy) DesiredInterval() time.Duration { return p.Interval }

func (p *AbsolutePolicy) MinDistanceM() float64 { return p.MinDistance }

// AdaptivePolicy widens the polling interval during long idle periods to save
// power and snaps back to the minimum as soon as movement resumes. The
// requested interval is half the observed idle time, clamped to [Min, Max]
// and rounded down to whole seconds so re-registration doesn't thrash.
type AdaptivePolicy struct {
	Min         time.Duration
	Max         time.Duration
	MinDistance float64

	idle time.Duration
}

func (p *AdaptivePolicy) UpdateIdleTime(idle time.Duration) {
	p.idle = idle
}

func (p *AdaptivePolicy) DesiredInterval() time.Duration {
	interval := p.idle / 2
	if interval < p.Min {
		interval = p.Min
	}
	if interval > p.Max {
		interval = p.Max
	}
	return interval.Truncate(time.Second)
}

// MinDistanceM is zero while backed off: when polling slowly we want every
// delivered fix, otherwise a stationary-to-moving transition could go unseen
// for a full interval.
func (p *AdaptivePolicy) MinDistanceM() float64 {
	if p.DesiredInterval() > p.Min {
		return 0
	}
	return p.MinDistance
}
