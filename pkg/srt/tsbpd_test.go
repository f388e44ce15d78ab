package srt

import (
	"testing"
	"time"
)

// TestTsbpdDropsTooLatePacket is scenario 6 from spec section 8:
// playback_delay=120ms; a message timestamped 1s older than the
// established base is scheduled so far in the past that it is already
// more than one playback delay overdue by the time Ready runs, so it
// must be dropped rather than released.
func TestTsbpdDropsTooLatePacket(t *testing.T) {
	tsb := NewTsbpd(120 * time.Millisecond)
	now := time.Now()

	tsb.Push(Message{OriginTimestamp: 10_000_000}, now) // establishes the base
	tsb.Push(Message{OriginTimestamp: 10_000_000 - 1_000_000}, now)

	delivered := tsb.Ready(now)
	if len(delivered) != 0 {
		t.Fatalf("expected no releases yet, got %d", len(delivered))
	}
	if tsb.stats.DroppedLate != 1 {
		t.Errorf("dropped-late count: got %d, want 1", tsb.stats.DroppedLate)
	}
}

func TestTsbpdDeliversOnSchedule(t *testing.T) {
	tsb := NewTsbpd(50 * time.Millisecond)
	now := time.Now()
	tsb.Push(Message{OriginTimestamp: 0, Payload: []byte("x")}, now)

	if delivered := tsb.Ready(now); len(delivered) != 0 {
		t.Fatalf("message scheduled playback_delay ahead must not release immediately, got %d", len(delivered))
	}
	delivered := tsb.Ready(now.Add(60 * time.Millisecond))
	if len(delivered) != 1 {
		t.Fatalf("expected 1 release once playback_delay elapses, got %d", len(delivered))
	}
	if tsb.stats.Delivered != 1 {
		t.Errorf("delivered count: got %d, want 1", tsb.stats.Delivered)
	}
}

func TestTsbpdOrdersByDeliveryTimeNotArrival(t *testing.T) {
	tsb := NewTsbpd(10 * time.Millisecond)
	now := time.Now()
	tsb.Push(Message{OriginTimestamp: 5000, Payload: []byte("second")}, now)
	tsb.Push(Message{OriginTimestamp: 1000, Payload: []byte("first")}, now)

	delivered := tsb.Ready(now.Add(15 * time.Millisecond))
	if len(delivered) != 2 {
		t.Fatalf("expected both messages released, got %d", len(delivered))
	}
	if string(delivered[0].Payload) != "first" || string(delivered[1].Payload) != "second" {
		t.Errorf("delivery order: got [%q %q], want [first second]", delivered[0].Payload, delivered[1].Payload)
	}
}

// TestTsbpdAdjustDriftAppliesPpmAndOffset exercises the ppm/elapsed drift
// model from spec section 4.6 directly:
// drift_correction = elapsed*drift_rate*1e-6 + clock_offset.
func TestTsbpdAdjustDriftAppliesPpmAndOffset(t *testing.T) {
	tsb := NewTsbpd(10 * time.Millisecond)
	tsb.AdjustDrift(10*time.Second, 50, 2*time.Millisecond)

	want := time.Duration(float64(10*time.Second)*50*1e-6) + 2*time.Millisecond
	if tsb.stats.DriftCorrection != want {
		t.Errorf("drift correction stat: got %v, want %v", tsb.stats.DriftCorrection, want)
	}
	if tsb.driftCorrection != want {
		t.Errorf("driftCorrection field: got %v, want %v", tsb.driftCorrection, want)
	}
}

// TestTsbpdPushTracksClockOffsetAutomatically confirms Push itself feeds
// observed arrival timing into the drift estimate (spec section 4.6) on
// every push after the one that establishes the base, without any direct
// caller of AdjustDrift.
func TestTsbpdPushTracksClockOffsetAutomatically(t *testing.T) {
	tsb := NewTsbpd(50 * time.Millisecond)
	now := time.Now()

	tsb.Push(Message{OriginTimestamp: 0}, now) // establishes the base; no drift yet
	if tsb.stats.DriftCorrection != 0 {
		t.Fatalf("base-establishing push must not record drift, got %v", tsb.stats.DriftCorrection)
	}

	// A later packet arriving 20ms of wall-clock after its predicted
	// arrival (10ms of ticks elapsed, but 30ms of wall-clock passed)
	// should pull the clock offset away from zero.
	tsb.Push(Message{OriginTimestamp: 10_000}, now.Add(30*time.Millisecond))
	if tsb.stats.DriftCorrection == 0 {
		t.Error("expected a non-zero drift correction after an offset observation")
	}
}

// TestTsbpdTooEarlyGuardDropsClockError is spec section 4.6's too-early
// guard: a delivery time landing more than ten playback delays in the
// future is treated as a clock error, dropped, and counted rather than
// scheduled.
func TestTsbpdTooEarlyGuardDropsClockError(t *testing.T) {
	tsb := NewTsbpd(10 * time.Millisecond)
	now := time.Now()

	tsb.Push(Message{OriginTimestamp: 0}, now) // establishes the base
	// 200ms of ticks puts delivery at base+200ms+10ms, less the -10ms
	// drift correction this arrival feeds in: base+200ms, well past
	// base+10*10ms=100ms.
	tsb.Push(Message{OriginTimestamp: 200_000}, now)

	if tsb.stats.DroppedEarly != 1 {
		t.Errorf("dropped-early count: got %d, want 1", tsb.stats.DroppedEarly)
	}
	if tsb.Pending() != 1 {
		t.Errorf("pending count: got %d, want 1 (only the base push scheduled)", tsb.Pending())
	}
}
