package srt

import "time"

// timerKind names what a scheduled timer is for, spec section 3/9. The
// timer wheel itself carries no callback function pointers — only this
// tag plus opaque user data — so that firing a timer produces a value the
// orchestrator dispatches, keeping state ownership with the reactor
// rather than scattering closures through component state.
type timerKind int

const (
	timerRetx timerKind = iota
	timerKeepalive
	timerAck
	timerNak
	timerHandshake
)

// timerEntry is one scheduled timer.
type timerEntry struct {
	id        string
	kind      timerKind
	expiresAt time.Time
	data      any
}

// TimerWheel is a named, typed one-shot timer collection, spec section
// 4.10. Exactly-once firing and idempotent cancellation: ticking removes
// an entry from the set at the same moment it's returned, so a repeated
// tick never re-fires it, and cancelling an already-fired or unknown id
// is a no-op.
type TimerWheel struct {
	entries map[string]*timerEntry
}

// NewTimerWheel builds an empty timer wheel.
func NewTimerWheel() *TimerWheel {
	return &TimerWheel{entries: map[string]*timerEntry{}}
}

// Schedule arms (or re-arms) a timer under id, replacing any existing
// timer with the same id.
func (w *TimerWheel) Schedule(kind timerKind, id string, timeout time.Duration, now time.Time, data any) {
	w.entries[id] = &timerEntry{id: id, kind: kind, expiresAt: now.Add(timeout), data: data}
}

// Cancel removes a timer by id. Idempotent: cancelling an unknown id is a
// no-op.
func (w *TimerWheel) Cancel(id string) {
	delete(w.entries, id)
}

// Tick removes and returns every entry whose deadline has passed, ordered
// by deadline.
func (w *TimerWheel) Tick(now time.Time) []timerEntry {
	var fired []timerEntry
	for id, e := range w.entries {
		if !e.expiresAt.After(now) {
			fired = append(fired, *e)
			delete(w.entries, id)
		}
	}
	for i := 1; i < len(fired); i++ {
		for j := i; j > 0 && fired[j-1].expiresAt.After(fired[j].expiresAt); j-- {
			fired[j-1], fired[j] = fired[j], fired[j-1]
		}
	}
	return fired
}

// TimeUntilNext returns the minimum remaining time across all armed
// timers, and false if none are armed.
func (w *TimerWheel) TimeUntilNext(now time.Time) (time.Duration, bool) {
	var min time.Duration
	found := false
	for _, e := range w.entries {
		remaining := e.expiresAt.Sub(now)
		if !found || remaining < min {
			min = remaining
			found = true
		}
	}
	return min, found
}

// Len reports how many timers are currently armed.
func (w *TimerWheel) Len() int { return len(w.entries) }
