package srt

import "time"

const (
	rttAlpha = 0.125
	rttBeta  = 0.25

	maxRTTHistory = 100
)

// networkCondition labels the link quality derived from RTT/jitter/
// variability, spec section 4.7.
type networkCondition int

const (
	conditionUnknown networkCondition = iota
	conditionExcellent
	conditionGood
	conditionFair
	conditionPoor
	conditionTerrible
)

func (c networkCondition) String() string {
	switch c {
	case conditionExcellent:
		return "excellent"
	case conditionGood:
		return "good"
	case conditionFair:
		return "fair"
	case conditionPoor:
		return "poor"
	case conditionTerrible:
		return "terrible"
	default:
		return "unknown"
	}
}

// conditionWindowFactor is the k(cond) multiplier in the suggested-window
// formula, spec section 4.7.
var conditionWindowFactor = map[networkCondition]float64{
	conditionExcellent: 1.5,
	conditionGood:       1.2,
	conditionFair:       1.0,
	conditionPoor:       0.8,
	conditionTerrible:   0.5,
}

// RttState is the RFC 6298 estimator state, spec section 4.7/3.
type RttState struct {
	hasSample bool
	current   time.Duration
	smoothed  time.Duration // SRTT
	variation time.Duration // RTTVAR
	min       time.Duration
	max       time.Duration
	history   []time.Duration

	minRTO time.Duration
	maxRTO time.Duration
}

// NewRttState builds an estimator with the given RTO bounds.
func NewRttState(minRTO, maxRTO time.Duration) *RttState {
	return &RttState{minRTO: minRTO, maxRTO: maxRTO}
}

// Update folds in a new RTT sample using the RFC 6298 recursion.
func (r *RttState) Update(sample time.Duration) {
	if !r.hasSample {
		r.smoothed = sample
		r.variation = sample / 2
		r.min = sample
		r.max = sample
		r.hasSample = true
	} else {
		diff := r.smoothed - sample
		if diff < 0 {
			diff = -diff
		}
		r.variation = time.Duration((1-rttBeta)*float64(r.variation) + rttBeta*float64(diff))
		r.smoothed = time.Duration((1-rttAlpha)*float64(r.smoothed) + rttAlpha*float64(sample))
		if sample < r.min {
			r.min = sample
		}
		if sample > r.max {
			r.max = sample
		}
	}
	r.current = sample

	r.history = append(r.history, sample)
	if len(r.history) > maxRTTHistory {
		r.history = r.history[len(r.history)-maxRTTHistory:]
	}
}

// RTO returns the current retransmission timeout, clamped to [minRTO, maxRTO].
func (r *RttState) RTO() time.Duration {
	if !r.hasSample {
		return r.minRTO
	}
	backoff := 4 * r.variation
	if backoff < time.Millisecond {
		backoff = time.Millisecond
	}
	rto := r.smoothed + backoff
	if rto < r.minRTO {
		return r.minRTO
	}
	if rto > r.maxRTO {
		return r.maxRTO
	}
	return rto
}

// Jitter is the mean absolute difference of successive RTT samples over
// the bounded history.
func (r *RttState) Jitter() time.Duration {
	if len(r.history) < 2 {
		return 0
	}
	var sum time.Duration
	for i := 1; i < len(r.history); i++ {
		d := r.history[i] - r.history[i-1]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / time.Duration(len(r.history)-1)
}

// variability is RTTVAR/SRTT, used by the condition-label thresholds.
func (r *RttState) variability() float64 {
	if r.smoothed == 0 {
		return 0
	}
	return float64(r.variation) / float64(r.smoothed)
}

// Condition labels the link quality from (SRTT, jitter, RTTVAR/SRTT)
// against the thresholds in spec section 4.7.
func (r *RttState) Condition() networkCondition {
	if !r.hasSample {
		return conditionUnknown
	}
	srttMs := float64(r.smoothed) / float64(time.Millisecond)
	jitterMs := float64(r.Jitter()) / float64(time.Millisecond)
	v := r.variability()

	switch {
	case srttMs < 20 && jitterMs < 2 && v < 0.1:
		return conditionExcellent
	case srttMs < 50 && jitterMs < 5 && v < 0.2:
		return conditionGood
	case srttMs < 100 && jitterMs < 10 && v < 0.3:
		return conditionFair
	case srttMs < 200 && jitterMs < 20 && v < 0.5:
		return conditionPoor
	default:
		return conditionTerrible
	}
}

// StabilityScore averages two penalized-from-100 measures of jitter and
// variability; spec section 4.7 default is 50 before 10 samples.
func (r *RttState) StabilityScore() float64 {
	if len(r.history) < 10 {
		return 50
	}
	jitterMs := float64(r.Jitter()) / float64(time.Millisecond)
	jitterScore := 100 - jitterMs*10
	if jitterScore < 0 {
		jitterScore = 0
	}
	varScore := 100 - r.variability()*200
	if varScore < 0 {
		varScore = 0
	}
	return (jitterScore + varScore) / 2
}

// SuggestedWindow computes BDP_packets * k(condition), clamped to
// [1, 65536], spec section 4.7.
func (r *RttState) SuggestedWindow(bandwidthBps float64) int {
	cond := r.Condition()
	k, ok := conditionWindowFactor[cond]
	if !ok {
		k = 1.0
	}
	srttSec := float64(r.smoothed) / float64(time.Second)
	bdpPackets := bandwidthBps * srttSec / (8 * float64(defaultMSS))
	w := bdpPackets * k
	if w < 1 {
		w = 1
	}
	if w > 65536 {
		w = 65536
	}
	return int(w)
}

// Snapshot returns a copy of the estimator's current values for
// observability, spec section 6.
type RttSnapshot struct {
	Current   time.Duration
	Smoothed  time.Duration
	Variation time.Duration
	Min       time.Duration
	Max       time.Duration
	RTO       time.Duration
	Jitter    time.Duration
	Condition string
	Stability float64
}

func (r *RttState) Snapshot() RttSnapshot {
	return RttSnapshot{
		Current:   r.current,
		Smoothed:  r.smoothed,
		Variation: r.variation,
		Min:       r.min,
		Max:       r.max,
		RTO:       r.RTO(),
		Jitter:    r.Jitter(),
		Condition: r.Condition().String(),
		Stability: r.StabilityScore(),
	}
}
