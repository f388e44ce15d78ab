package srt

import (
	"testing"
	"time"
)

// TestRTOBound checks the RTO-bound invariant from spec section 8: after
// any update, min_rto <= RTO <= max_rto.
func TestRTOBound(t *testing.T) {
	minRTO := 10 * time.Millisecond
	maxRTO := 500 * time.Millisecond
	r := NewRttState(minRTO, maxRTO)

	samples := []time.Duration{
		time.Microsecond, // far below min, exercises the lower clamp
		5 * time.Second,  // far above max, exercises the upper clamp
		50 * time.Millisecond,
		20 * time.Millisecond,
	}
	for _, s := range samples {
		r.Update(s)
		rto := r.RTO()
		if rto < minRTO || rto > maxRTO {
			t.Errorf("after Update(%v): RTO=%v outside [%v, %v]", s, rto, minRTO, maxRTO)
		}
	}
}

func TestRTOBeforeAnySampleIsMinRTO(t *testing.T) {
	r := NewRttState(15*time.Millisecond, time.Second)
	if got := r.RTO(); got != 15*time.Millisecond {
		t.Errorf("RTO with no samples: got %v, want minRTO", got)
	}
}

func TestConditionImprovesWithLowerJitter(t *testing.T) {
	r := NewRttState(time.Millisecond, time.Second)
	// Five equal 5ms samples: RTTVAR = 2.5ms * 0.75^4 ~= 0.79ms, so
	// variability ~= 0.16 -- above excellent's 0.1, below good's 0.2.
	for i := 0; i < 5; i++ {
		r.Update(5 * time.Millisecond)
	}
	if got := r.Condition(); got != conditionGood {
		t.Errorf("stable low-RTT samples: got condition %v, want good", got)
	}
}

func TestStabilityScoreDefaultBeforeTenSamples(t *testing.T) {
	r := NewRttState(time.Millisecond, time.Second)
	for i := 0; i < 9; i++ {
		r.Update(10 * time.Millisecond)
	}
	if got := r.StabilityScore(); got != 50 {
		t.Errorf("stability score before 10 samples: got %v, want 50", got)
	}
}
