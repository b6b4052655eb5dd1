package locsource

import (
	"testing"
	"time"

	"github.com/JGarto/oss-mytracks/internal/track"
)

func TestSimDeliversToHandler(t *testing.T) {
	sim := NewSim()

	var got []track.Fix
	err := sim.Register(Request{Interval: time.Second, MinDistanceM: 5}, func(f track.Fix) {
		got = append(got, f)
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !sim.Registered() {
		t.Fatalf("expected registration")
	}

	sim.Push(track.Fix{Lat: 1, Lng: 2})
	if len(got) != 1 || got[0].Lat != 1 {
		t.Fatalf("fix not delivered: %+v", got)
	}

	sim.Unregister()
	sim.Push(track.Fix{Lat: 3, Lng: 4})
	if len(got) != 1 {
		t.Fatalf("unregistered source must not deliver")
	}
}

func TestSimRecordsRegistrations(t *testing.T) {
	sim := NewSim()

	_ = sim.Register(Request{Interval: time.Second}, func(track.Fix) {})
	_ = sim.Register(Request{Interval: 30 * time.Second}, func(track.Fix) {})

	reqs := sim.Registrations()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 registrations, got %d", len(reqs))
	}
	if reqs[1].Interval != 30*time.Second {
		t.Fatalf("unexpected interval: %v", reqs[1].Interval)
	}
}
