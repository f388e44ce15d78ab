package srt

import "testing"

func TestSeqNumberWrapComparison(t *testing.T) {
	near := newSeqNumber(seqNumberMask - 2)
	wrapped := newSeqNumber(1)

	if !near.Lt(wrapped) {
		t.Errorf("expected %d to be less than %d across the wrap boundary", near.Val(), wrapped.Val())
	}
	if wrapped.Lt(near) {
		t.Errorf("wrap-aware order must not treat the larger raw value as smaller")
	}
}

func TestSeqNumberAddWraps(t *testing.T) {
	s := newSeqNumber(seqNumberMask)
	got := s.Add(1)
	if got.Val() != 0 {
		t.Errorf("Add across the 31-bit boundary: got %d, want 0", got.Val())
	}
}

func TestSeqNumberDistance(t *testing.T) {
	a := newSeqNumber(10)
	b := newSeqNumber(15)
	if d := a.Distance(b); d != 5 {
		t.Errorf("Distance(10, 15): got %d, want 5", d)
	}
	if d := b.Distance(a); d != -5 {
		t.Errorf("Distance(15, 10): got %d, want -5", d)
	}
}

func TestSeqNumberLteGte(t *testing.T) {
	a := newSeqNumber(100)
	if !a.Lte(a) {
		t.Error("Lte must be reflexive")
	}
	if !a.Gte(a) {
		t.Error("Gte must be reflexive")
	}
	b := a.Add(1)
	if !a.Lt(b) || !b.Gt(a) {
		t.Error("a < a+1 and a+1 > a must both hold")
	}
}

func TestMsgNumberWraps(t *testing.T) {
	m := newMsgNumber(msgNumberMask)
	got := m.Add(1)
	if got.Val() != 0 {
		t.Errorf("msgNumber Add across the 26-bit boundary: got %d, want 0", got.Val())
	}
}
