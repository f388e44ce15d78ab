package srt

import "time"

// tokenBucket paces bytes at a configured rate, spec section 4.4/4.9.
// Capacity is an eighth of a second of the configured rate, per spec
// section 4.4's pacing rule.
type tokenBucket struct {
	capacity   float64
	fillRate   float64 // bytes/sec
	level      float64
	lastUpdate time.Time
}

func newTokenBucket(fillRateBps float64, now time.Time) *tokenBucket {
	b := &tokenBucket{lastUpdate: now}
	b.setRate(fillRateBps)
	b.level = b.capacity // starts full, spec section 8 scenario 8
	return b
}

func (b *tokenBucket) setRate(fillRateBps float64) {
	b.fillRate = fillRateBps / 8
	b.capacity = b.fillRate / 8
}

func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastUpdate).Seconds()
	if elapsed <= 0 {
		return
	}
	b.level += elapsed * b.fillRate
	if b.level > b.capacity {
		b.level = b.capacity
	}
	b.lastUpdate = now
}

// admit reports whether packetSize bytes may be sent now, consuming
// tokens if so.
func (b *tokenBucket) admit(now time.Time, packetSize int) bool {
	b.refill(now)
	if b.level < float64(packetSize) {
		return false
	}
	b.level -= float64(packetSize)
	return true
}

// FlowStats are the observability counters for C9, spec section 4.9.
type FlowStats struct {
	Sent             uint64
	Dropped          uint64
	Bytes            uint64
	RateLimitedCount uint64
	WindowFullCount  uint64
}

// FlowState is the three-cap admission gate: send window, token-bucket
// rate, and peer-advertised receive window, spec section 4.9.
type FlowState struct {
	sendWindow     int
	peerRecvWindow int
	inFlight       int
	bucket         *tokenBucket
	stats          FlowStats
}

// NewFlowState builds flow control with the configured initial windows
// and an initial pacing rate.
func NewFlowState(sendWindow, peerRecvWindow int, initialRateBps float64, now time.Time) *FlowState {
	return &FlowState{
		sendWindow:     sendWindow,
		peerRecvWindow: peerRecvWindow,
		bucket:         newTokenBucket(initialRateBps, now),
	}
}

// Admit reports whether a packet of packetSize bytes may be sent right
// now: all three caps (send window, token bucket, peer receive window)
// must pass.
func (f *FlowState) Admit(now time.Time, packetSize int) bool {
	windowCap := f.sendWindow
	if f.peerRecvWindow < windowCap {
		windowCap = f.peerRecvWindow
	}
	if f.inFlight >= windowCap {
		f.stats.WindowFullCount++
		return false
	}
	if !f.bucket.admit(now, packetSize) {
		f.stats.RateLimitedCount++
		return false
	}
	f.inFlight++
	f.stats.Sent++
	f.stats.Bytes += uint64(packetSize)
	return true
}

// OnAcked decrements in-flight count for each packet the cumulative ACK
// covers.
func (f *FlowState) OnAcked(count int) {
	f.inFlight -= count
	if f.inFlight < 0 {
		f.inFlight = 0
	}
}

// OnDropped decrements in-flight and counts a drop, for retransmission
// exhaustion.
func (f *FlowState) OnDropped() {
	if f.inFlight > 0 {
		f.inFlight--
	}
	f.stats.Dropped++
}

// SetPeerRecvWindow updates the last-advertised peer receive window.
func (f *FlowState) SetPeerRecvWindow(packets int) { f.peerRecvWindow = packets }

// OnLoss applies the spec section 4.9 rate reduction and re-tunes the
// bucket to the new rate.
func (f *FlowState) OnLoss(now time.Time) {
	f.bucket.setRate(f.bucket.fillRate * 8 * cwndBackoff)
}

// SetRate re-tunes the bucket to a new send rate, e.g. following a
// congestion-control update.
func (f *FlowState) SetRate(bps float64) { f.bucket.setRate(bps) }

// InFlight is the current number of unacknowledged packets.
func (f *FlowState) InFlight() int { return f.inFlight }

// Utilisation is in-flight over the effective window cap.
func (f *FlowState) Utilisation() float64 {
	windowCap := f.sendWindow
	if f.peerRecvWindow < windowCap {
		windowCap = f.peerRecvWindow
	}
	if windowCap == 0 {
		return 0
	}
	return float64(f.inFlight) / float64(windowCap)
}

// Stats returns a snapshot of flow-control counters.
func (f *FlowState) Stats() FlowStats { return f.stats }
