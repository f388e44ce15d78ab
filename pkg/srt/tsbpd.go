package srt

import (
	"container/heap"
	"time"
)

// TsbpdStats are the C6 observability counters, spec section 6.
type TsbpdStats struct {
	Delivered       uint64
	DroppedLate     uint64
	DroppedEarly    uint64
	TotalDelay      time.Duration
	MaxDelay        time.Duration
	DriftCorrection time.Duration
}

// tsbpdEntry is one message waiting for its scheduled delivery time.
type tsbpdEntry struct {
	deliveryTime time.Time
	msg          Message
}

// tsbpdHeap is a min-heap over deliveryTime, implementing container/heap.
type tsbpdHeap []tsbpdEntry

func (h tsbpdHeap) Len() int            { return len(h) }
func (h tsbpdHeap) Less(i, j int) bool  { return h[i].deliveryTime.Before(h[j].deliveryTime) }
func (h tsbpdHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *tsbpdHeap) Push(x any)         { *h = append(*h, x.(tsbpdEntry)) }
func (h *tsbpdHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Tsbpd is C6: the time-stamp-based packet delivery scheduler, spec
// section 4.6. Establishes a base (wall-clock, packet-timestamp) pair on
// the first message, then schedules every later message at
// base_wall + (t_pkt - base_timestamp) + drift_correction + playback_delay,
// dropping what arrives too late to be useful and rejecting origin
// timestamps that would schedule impossibly far in the future.
//
// There is no direct teacher analogue for time-stamped playback pacing
// (the teacher streams RTMP/RTSP frames as fast as they arrive); this is
// grounded on spec section 4.6 directly, shaped in the teacher's style of
// a plain struct with pure methods the reactor drives, matching every
// other Cn component in this package.
type Tsbpd struct {
	playbackDelay time.Duration

	haveBase        bool
	baseWall        time.Time
	baseTimestamp   uint32
	driftCorrection time.Duration
	clockOffset     time.Duration
	driftRatePpm    float64

	pending tsbpdHeap

	stats TsbpdStats
}

// NewTsbpd builds a TSBPD scheduler with the negotiated playback delay.
func NewTsbpd(playbackDelay time.Duration) *Tsbpd {
	t := &Tsbpd{playbackDelay: playbackDelay}
	heap.Init(&t.pending)
	return t
}

// ResetBaseTimestamp re-anchors the (wall, packet-timestamp) reference
// point, spec section 4.6. Push calls it for the first message; it does
// not clear messages already scheduled.
func (t *Tsbpd) ResetBaseTimestamp(wall time.Time, pktTimestamp uint32) {
	t.haveBase = true
	t.baseWall = wall
	t.baseTimestamp = pktTimestamp
	t.driftCorrection = 0
	t.clockOffset = 0
	t.driftRatePpm = 0
}

// deliveryTime computes when pktTimestamp is due for playback.
func (t *Tsbpd) deliveryTime(pktTimestamp uint32) time.Time {
	elapsedTicks := int32(pktTimestamp - t.baseTimestamp)
	elapsed := time.Duration(elapsedTicks) * time.Microsecond
	return t.baseWall.Add(elapsed).Add(t.driftCorrection).Add(t.playbackDelay)
}

// Push schedules a reassembled message for delivery, spec section 4.6.
// The first message pushed establishes the base if none exists yet; every
// later push feeds the observed arrival timing into the drift estimate
// before computing its delivery time. A delivery time more than ten
// playback delays in the future is treated as a clock error (a corrupt or
// wildly out-of-range origin timestamp) rather than scheduled, spec
// section 4.6.
func (t *Tsbpd) Push(msg Message, now time.Time) {
	if !t.haveBase {
		t.ResetBaseTimestamp(now, msg.OriginTimestamp)
	} else {
		t.recordDrift(now, msg.OriginTimestamp)
	}

	delivery := t.deliveryTime(msg.OriginTimestamp)
	if delivery.After(now.Add(10 * t.playbackDelay)) {
		t.stats.DroppedEarly++
		return
	}
	heap.Push(&t.pending, tsbpdEntry{deliveryTime: delivery, msg: msg})
}

// recordDrift updates the smoothed clock-offset and drift-rate estimate
// from one packet's actual arrival versus its drift-free predicted
// arrival, then feeds both into AdjustDrift, spec section 4.6.
func (t *Tsbpd) recordDrift(now time.Time, pktTimestamp uint32) {
	elapsedTicks := int32(pktTimestamp - t.baseTimestamp)
	predicted := t.baseWall.Add(time.Duration(elapsedTicks) * time.Microsecond)
	instantOffset := now.Sub(predicted)

	const smoothing = 0.05
	prevOffset := t.clockOffset
	t.clockOffset += time.Duration(smoothing * float64(instantOffset-t.clockOffset))

	elapsedSinceBase := now.Sub(t.baseWall)
	if elapsedSinceBase > 0 {
		t.driftRatePpm = float64(t.clockOffset-prevOffset) / float64(elapsedSinceBase) * 1e6
	}
	t.AdjustDrift(elapsedSinceBase, t.driftRatePpm, t.clockOffset)
}

// AdjustDrift applies spec section 4.6's clock-drift model,
// drift_correction = elapsed*drift_rate*1e-6 + clock_offset, where
// driftRatePpm is the estimated drift rate in parts per million and
// elapsed is the time since the TSBPD base was established.
func (t *Tsbpd) AdjustDrift(elapsed time.Duration, driftRatePpm float64, clockOffset time.Duration) {
	t.driftCorrection = time.Duration(float64(elapsed)*driftRatePpm*1e-6) + clockOffset
	t.stats.DriftCorrection = t.driftCorrection
}

// Ready pops and returns every message whose delivery time has arrived,
// in delivery order, dropping anything so stale it's no longer useful
// (more than one playback delay past due), spec section 4.6.
func (t *Tsbpd) Ready(now time.Time) []Message {
	var out []Message
	for t.pending.Len() > 0 {
		next := t.pending[0]
		if next.deliveryTime.After(now) {
			break
		}
		heap.Pop(&t.pending)

		lateness := now.Sub(next.deliveryTime)
		if lateness > t.playbackDelay {
			t.stats.DroppedLate++
			continue
		}

		delay := now.Sub(next.deliveryTime) + t.playbackDelay
		t.stats.Delivered++
		t.stats.TotalDelay += delay
		if delay > t.stats.MaxDelay {
			t.stats.MaxDelay = delay
		}
		out = append(out, next.msg)
	}
	return out
}

// TimeUntilNext reports how long until the earliest pending message is
// due, and false if nothing is pending.
func (t *Tsbpd) TimeUntilNext(now time.Time) (time.Duration, bool) {
	if t.pending.Len() == 0 {
		return 0, false
	}
	return t.pending[0].deliveryTime.Sub(now), true
}

// Pending is the number of messages currently scheduled.
func (t *Tsbpd) Pending() int { return t.pending.Len() }

// AverageDelay is the mean end-to-end delay across delivered messages.
func (t *Tsbpd) AverageDelay() time.Duration {
	if t.stats.Delivered == 0 {
		return 0
	}
	return t.stats.TotalDelay / time.Duration(t.stats.Delivered)
}

// Stats returns a snapshot of TSBPD counters.
func (t *Tsbpd) Stats() TsbpdStats { return t.stats }
