package srt

// seqNumber and msgNumber are wrap-aware counters over SRT's 31-bit packet
// sequence space and 26-bit message number space. Comparisons use modular
// (circular) arithmetic rather than raw integer comparison: a long-running
// session wraps both spaces many times over, and spec section 9 calls out
// that a naive implementation comparing raw values breaks at the wrap
// boundary. Grounded on the gosrt `circular.Number` approach of carrying a
// bit width alongside the value and doing all comparisons through a signed
// wrap-aware distance.

type seqNumber uint32

const (
	seqNumberBits = 31
	seqNumberMod  = uint32(1) << seqNumberBits // 2^31
	seqNumberMask = seqNumberMod - 1           // 0x7FFFFFFF
	seqNumberHalf = seqNumberMod / 2
)

func newSeqNumber(v uint32) seqNumber { return seqNumber(v & seqNumberMask) }

func (s seqNumber) Val() uint32 { return uint32(s) }

// Distance returns the signed wrap-aware displacement from s to other, in
// the range [-2^30, 2^30).
func (s seqNumber) Distance(other seqNumber) int32 {
	d := (uint32(other) - uint32(s)) & seqNumberMask
	if d >= seqNumberHalf {
		d -= seqNumberMod
	}
	return int32(d)
}

func (s seqNumber) Lt(other seqNumber) bool  { return s.Distance(other) > 0 }
func (s seqNumber) Lte(other seqNumber) bool { return s == other || s.Lt(other) }
func (s seqNumber) Gt(other seqNumber) bool  { return other.Lt(s) }
func (s seqNumber) Gte(other seqNumber) bool { return other.Lte(s) }

func (s seqNumber) Add(delta int32) seqNumber {
	return newSeqNumber(uint32(int64(uint32(s)) + int64(delta) + int64(seqNumberMod)))
}

type msgNumber uint32

const (
	msgNumberBits = 26
	msgNumberMod  = uint32(1) << msgNumberBits
	msgNumberMask = msgNumberMod - 1
)

func newMsgNumber(v uint32) msgNumber { return msgNumber(v & msgNumberMask) }

func (m msgNumber) Val() uint32 { return uint32(m) }

func (m msgNumber) Add(delta int32) msgNumber {
	return newMsgNumber(uint32(int64(uint32(m)) + int64(delta) + int64(msgNumberMod)))
}
