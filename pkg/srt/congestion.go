package srt

import "time"

// lossCondition labels loss rate alone, for observability; the window's
// primary adaptive input is the RTT estimator (C7), spec section 4.8.
type lossCondition int

const (
	lossExcellent lossCondition = iota
	lossGood
	lossFair
	lossPoor
)

func (l lossCondition) String() string {
	switch l {
	case lossExcellent:
		return "excellent"
	case lossGood:
		return "good"
	case lossFair:
		return "fair"
	default:
		return "poor"
	}
}

// CongestionState is the AIMD-with-slow-start window, spec section 3/4.8.
type CongestionState struct {
	cwnd         float64
	ssthresh     float64
	inSlowStart  bool
	sent         uint64
	lost         uint64
	sendingRate  float64
	lastLossTime time.Time
}

// NewCongestionState builds a fresh AIMD state with the spec defaults.
func NewCongestionState() *CongestionState {
	return &CongestionState{
		cwnd:        initialCwnd,
		ssthresh:    initialSsthresh,
		inSlowStart: true,
	}
}

// Cwnd returns the current congestion window in packets.
func (c *CongestionState) Cwnd() float64 { return c.cwnd }

// InSlowStart reports whether the window is still in the slow-start phase.
func (c *CongestionState) InSlowStart() bool { return c.inSlowStart }

// OnAck folds in one acknowledged packet, spec section 4.8.
func (c *CongestionState) OnAck() {
	if c.inSlowStart {
		c.cwnd += 1
		if c.cwnd >= c.ssthresh {
			c.inSlowStart = false
		}
	} else {
		c.cwnd += 1 / c.cwnd
	}
}

// OnLoss reacts to a NAK entry or a retransmission timeout: spec section
// 4.8 rejects the more aggressive halving in favor of an 0.875
// multiplicative decrease.
func (c *CongestionState) OnLoss(now time.Time, lostPackets uint64) {
	c.inSlowStart = false
	c.ssthresh = c.cwnd / 2
	c.cwnd = c.cwnd * cwndBackoff
	if c.cwnd < 1 {
		c.cwnd = 1
	}
	c.lost += lostPackets
	c.lastLossTime = now
}

// RecordSent tracks packets sent, used for the loss-rate condition label.
func (c *CongestionState) RecordSent(n uint64) { c.sent += n }

// SendingRateBps derives the sending rate from cwnd/RTT, clamped to
// [minSendRateBps, maxSendRateBps], spec section 4.8.
func (c *CongestionState) SendingRateBps(srtt time.Duration) float64 {
	srttUs := float64(srtt / time.Microsecond)
	if srttUs < 1000 {
		srttUs = 1000
	}
	rate := (c.cwnd * defaultMSS * 8 * 1_000_000) / srttUs
	if rate < minSendRateBps {
		rate = minSendRateBps
	}
	if rate > maxSendRateBps {
		rate = maxSendRateBps
	}
	c.sendingRate = rate
	return rate
}

// LossRate is lost/sent, or 0 if nothing has been sent yet.
func (c *CongestionState) LossRate() float64 {
	if c.sent == 0 {
		return 0
	}
	return float64(c.lost) / float64(c.sent)
}

// LossCondition labels loss rate against the spec section 4.8 thresholds.
func (c *CongestionState) LossCondition() lossCondition {
	rate := c.LossRate()
	switch {
	case rate < 0.01:
		return lossExcellent
	case rate < 0.05:
		return lossGood
	case rate < 0.10:
		return lossFair
	default:
		return lossPoor
	}
}

// CongestionSnapshot is the observability surface, spec section 6.
type CongestionSnapshot struct {
	Cwnd        float64
	Ssthresh    float64
	InSlowStart bool
	Sent        uint64
	Lost        uint64
	LossRate    float64
	Condition   string
	SendingRate float64
}

func (c *CongestionState) Snapshot() CongestionSnapshot {
	return CongestionSnapshot{
		Cwnd:        c.cwnd,
		Ssthresh:    c.ssthresh,
		InSlowStart: c.inSlowStart,
		Sent:        c.sent,
		Lost:        c.lost,
		LossRate:    c.LossRate(),
		Condition:   c.LossCondition().String(),
		SendingRate: c.sendingRate,
	}
}
