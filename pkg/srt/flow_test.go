package srt

import (
	"testing"
	"time"
)

// TestTokenBucketPacing is end-to-end scenario 8 from spec section 8: back
// to back sends of the same size where the bucket starts full with just
// enough capacity for one, so the first admits and the second is
// rate-limited. (128_000 bits/s gives a 16,000 bytes/s fill rate, so
// capacity = fill_rate/8 = 2,000 bytes, spec section 4.9.)
func TestTokenBucketPacing(t *testing.T) {
	now := time.Now()
	f := NewFlowState(1000, 1000, 128_000, now)

	if !f.Admit(now, 2000) {
		t.Fatal("first 2000-byte send must admit: bucket starts full")
	}
	if f.Admit(now, 2000) {
		t.Fatal("second back-to-back 2000-byte send must be refused: bucket just drained")
	}
	if f.stats.RateLimitedCount != 1 {
		t.Errorf("rate-limited count: got %d, want 1", f.stats.RateLimitedCount)
	}
}

func TestTokenBucketRefillsOverTime(t *testing.T) {
	now := time.Now()
	f := NewFlowState(1000, 1000, 128_000, now)
	if !f.Admit(now, 2000) {
		t.Fatal("initial send must admit")
	}
	later := now.Add(200 * time.Millisecond) // at 16,000 B/s this refills 3,200 bytes
	if !f.Admit(later, 2000) {
		t.Error("after enough elapsed time the bucket must have refilled")
	}
}

func TestFlowWindowCapBlocksBeforeRateLimit(t *testing.T) {
	now := time.Now()
	f := NewFlowState(1, 10, 1_000_000_000, now)
	if !f.Admit(now, 10) {
		t.Fatal("first send within window must admit")
	}
	if f.Admit(now, 10) {
		t.Fatal("send_window=1 with one already in flight must refuse")
	}
	if f.stats.WindowFullCount != 1 {
		t.Errorf("window-full count: got %d, want 1", f.stats.WindowFullCount)
	}
}

func TestFlowPeerRecvWindowCapsBelowSendWindow(t *testing.T) {
	now := time.Now()
	f := NewFlowState(100, 100, 1_000_000_000, now)
	f.SetPeerRecvWindow(1)
	if !f.Admit(now, 10) {
		t.Fatal("first send within the tighter peer window must admit")
	}
	if f.Admit(now, 10) {
		t.Fatal("peer_recv_window=1 must cap admission below send_window=100")
	}
}

func TestFlowOnAckedReleasesInFlight(t *testing.T) {
	now := time.Now()
	f := NewFlowState(1, 10, 1_000_000_000, now)
	f.Admit(now, 10)
	if f.InFlight() != 1 {
		t.Fatalf("InFlight: got %d, want 1", f.InFlight())
	}
	f.OnAcked(1)
	if f.InFlight() != 0 {
		t.Errorf("InFlight after ack: got %d, want 0", f.InFlight())
	}
	if !f.Admit(now, 10) {
		t.Error("window slot must be free again after the ack")
	}
}
