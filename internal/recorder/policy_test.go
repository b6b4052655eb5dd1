package recorder

import (
	"testing"
	"time"
)

func TestAbsolutePolicy(t *testing.T) {
	p := &AbsolutePolicy{Interval: 30 * time.Second, MinDistance: 5}

	p.UpdateIdleTime(time.Hour)
	if got := p.DesiredInterval(); got != 30*time.Second {
		t.Fatalf("absolute policy must ignore idle time, got %v", got)
	}
	if got := p.MinDistanceM(); got != 5 {
		t.Fatalf("expected min distance 5, got %v", got)
	}
}

func TestAdaptivePolicyClampsToMin(t *testing.T) {
	p := &AdaptivePolicy{Min: time.Second, Max: time.Minute, MinDistance: 5}

	p.UpdateIdleTime(0)
	if got := p.DesiredInterval(); got != time.Second {
		t.Fatalf("no idle time should poll at the minimum, got %v", got)
	}
	if got := p.MinDistanceM(); got != 5 {
		t.Fatalf("at minimum interval the normal distance applies, got %v", got)
	}
}

func TestAdaptivePolicyBacksOff(t *testing.T) {
	p := &AdaptivePolicy{Min: time.Second, Max: time.Minute, MinDistance: 5}

	p.UpdateIdleTime(30 * time.Second)
	if got := p.DesiredInterval(); got != 15*time.Second {
		t.Fatalf("interval should be half the idle time, got %v", got)
	}
	if got := p.MinDistanceM(); got != 0 {
		t.Fatalf("backed-off polling must request every fix, got %v", got)
	}
}

func TestAdaptivePolicyClampsToMax(t *testing.T) {
	p := &AdaptivePolicy{Min: time.Second, Max: time.Minute, MinDistance: 5}

	p.UpdateIdleTime(time.Hour)
	if got := p.DesiredInterval(); got != time.Minute {
		t.Fatalf("interval should clamp to the maximum, got %v", got)
	}
}

func TestAdaptivePolicyTruncatesToSeconds(t *testing.T) {
	p := &AdaptivePolicy{Min: time.Second, Max: time.Minute}

	p.UpdateIdleTime(5*time.Second + 900*time.Millisecond)
	if got := p.DesiredInterval(); got != 2*time.Second {
		t.Fatalf("interval should truncate to whole seconds, got %v", got)
	}
}
