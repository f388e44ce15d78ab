package srt

import (
	"fmt"
	"time"
)

// UnackedEntry tracks one sent-but-not-yet-acknowledged data packet, spec
// section 3. Exactly one exists per in-flight sequence number until it is
// acknowledged or its retransmission budget is exhausted.
type UnackedEntry struct {
	Seq               seqNumber
	MsgNum            msgNumber
	Position          packetPosition
	Ordered           bool
	Payload           []byte
	FirstSendTime     time.Time
	RetransmitCount   int
	NextRetransmitDue time.Time
}

// pendingPacket is a fragment waiting for flow/congestion admission
// before its first transmission.
type pendingPacket struct {
	seq      seqNumber
	msgNum   msgNumber
	position packetPosition
	ordered  bool
	payload  []byte
}

// SendStats are the C4 observability counters, spec section 6.
type SendStats struct {
	Sent           uint64
	Retransmitted  uint64
	Acked          uint64
	DroppedOnLoss  uint64 // retransmit budget exhausted
	WouldBlock     uint64
}

// SendEngine is C4: fragmentation, pacing admission, unacked bookkeeping,
// and ACK/NAK-driven retransmission. Grounded on the teacher's
// SRTReliability send-side half (pkg/srt/reliability.go): sendBuffer +
// retransmitQueue become, generalized to the spec's fragmentation and
// wrap-aware sequencing rules, the queue/unacked map below. The teacher's
// goroutine-driven queues are replaced with plain methods the single
// reactor calls, per spec section 5 (no component may block or run its
// own goroutine).
type SendEngine struct {
	cfg            Config
	destSocketID   uint32
	maxRetransmits int

	nextSeq    seqNumber
	nextMsgNum msgNumber

	queue   []pendingPacket
	unacked map[uint32]*UnackedEntry

	stats SendStats
}

// NewSendEngine builds a send engine starting at initialSeq, the ISN
// negotiated during the handshake.
func NewSendEngine(cfg Config, initialSeq seqNumber, destSocketID uint32) *SendEngine {
	return &SendEngine{
		cfg:            cfg,
		destSocketID:   destSocketID,
		maxRetransmits: cfg.MaxRetransmits,
		nextSeq:        initialSeq,
		unacked:        map[uint32]*UnackedEntry{},
	}
}

// queuedBacklog counts queued plus unacked packets. Enqueue refuses new
// messages once it reaches twice send_window, so a stalled peer can't grow
// the pending-fragment queue unboundedly.
func (s *SendEngine) queuedBacklog() int { return len(s.queue) + len(s.unacked) }

// Enqueue fragments message into sequenced packets and appends them to
// the pending queue, spec section 4.4. Returns ErrWouldBlock without
// enqueueing anything if the combined queue/unacked backlog is already at
// its bound.
func (s *SendEngine) Enqueue(message []byte, ordered bool) error {
	if len(message) == 0 {
		return nil
	}
	if s.queuedBacklog() >= 2*s.cfg.InitialSendWindow {
		s.stats.WouldBlock++
		return ErrWouldBlock
	}

	maxPayload := s.cfg.maxPayload()
	if maxPayload <= 0 {
		return fmt.Errorf("srt: mss too small for any payload")
	}
	n := (len(message) + maxPayload - 1) / maxPayload

	msgNum := s.nextMsgNum
	s.nextMsgNum = s.nextMsgNum.Add(1)

	for i := 0; i < n; i++ {
		start := i * maxPayload
		end := start + maxPayload
		if end > len(message) {
			end = len(message)
		}
		var pos packetPosition
		switch {
		case n == 1:
			pos = ppOnly
		case i == 0:
			pos = ppFirst
		case i == n-1:
			pos = ppLast
		default:
			pos = ppMiddle
		}
		seq := s.nextSeq
		s.nextSeq = s.nextSeq.Add(1)
		s.queue = append(s.queue, pendingPacket{
			seq:      seq,
			msgNum:   msgNum,
			position: pos,
			ordered:  ordered,
			payload:  append([]byte(nil), message[start:end]...),
		})
	}
	return nil
}

// encryptFunc encrypts a payload for transmission under seq, returning
// the ciphertext and the KK parity to stamp on the header.
type encryptFunc func(payload []byte, seq seqNumber) ([]byte, keyEncryption, error)

// Flush admits as many queued packets as flow and congestion control
// allow, in strict FIFO order (sequence numbers must increase
// monotonically per transmission attempt, spec section 4.4), and returns
// their wire bytes for the orchestrator to hand to the transport.
func (s *SendEngine) Flush(now time.Time, flow *FlowState, cong *CongestionState, encrypt encryptFunc, timers *TimerWheel, rto time.Duration, originTimestamp func(time.Time) uint32) ([][]byte, error) {
	var out [][]byte
	for len(s.queue) > 0 {
		pkt := s.queue[0]
		// Congestion first, so a denial leaves no flow-control reservation
		// (window slot, tokens, Sent/Bytes counters) behind.
		if cong != nil && !s.inFlightBelowCwnd(cong) {
			break
		}
		if !flow.Admit(now, headerSize+len(pkt.payload)) {
			break
		}
		s.queue = s.queue[1:]

		cipherText, kk, err := encrypt(pkt.payload, pkt.seq)
		if err != nil {
			return out, err
		}

		hdr := dataHeader{
			Seq:          pkt.seq,
			Position:     pkt.position,
			Ordered:      pkt.ordered,
			Key:          kk,
			MsgNum:       pkt.msgNum,
			Timestamp:    originTimestamp(now),
			DestSocketID: s.destSocketID,
		}
		raw, err := EncodeDataPacket(DataPacket{Header: hdr, Payload: cipherText})
		if err != nil {
			return out, err
		}
		out = append(out, raw)

		s.unacked[pkt.seq.Val()] = &UnackedEntry{
			Seq:               pkt.seq,
			MsgNum:            pkt.msgNum,
			Position:          pkt.position,
			Ordered:           pkt.ordered,
			Payload:           pkt.payload,
			FirstSendTime:     now,
			NextRetransmitDue: now.Add(rto),
		}
		timers.Schedule(timerRetx, retxTimerID(pkt.seq), rto, now, pkt.seq)

		s.stats.Sent++
		if cong != nil {
			cong.RecordSent(1)
		}
	}
	return out, nil
}

func (s *SendEngine) inFlightBelowCwnd(cong *CongestionState) bool {
	return float64(len(s.unacked)) < cong.Cwnd()
}

func retxTimerID(seq seqNumber) string {
	return fmt.Sprintf("retx:%d", seq.Val())
}

// OnAck removes every UnackedEntry covered by a cumulative ACK and
// cancels its retransmit timer, spec section 4.4. Returns how many
// entries were acknowledged, for the caller to feed congestion control
// and flow control.
func (s *SendEngine) OnAck(ackSeq seqNumber, timers *TimerWheel) int {
	acked := 0
	for key, e := range s.unacked {
		if e.Seq.Lte(ackSeq) {
			timers.Cancel(retxTimerID(e.Seq))
			delete(s.unacked, key)
			acked++
		}
	}
	s.stats.Acked += uint64(acked)
	return acked
}

// OnNak retransmits every listed sequence whose UnackedEntry still exists
// and hasn't exceeded the retransmit budget, spec section 4.4. Entries
// past the budget are dropped from the window and surfaced as send loss.
// Returns the wire bytes to retransmit and the count of freshly-dropped
// entries (for the caller to release their flow-control slot).
func (s *SendEngine) OnNak(lost []seqNumber, now time.Time, timers *TimerWheel, rto time.Duration, encrypt encryptFunc, originTimestamp func(time.Time) uint32) (retransmits [][]byte, dropped int, err error) {
	for _, seq := range lost {
		e, ok := s.unacked[seq.Val()]
		if !ok {
			continue
		}
		if e.RetransmitCount >= s.maxRetransmits {
			delete(s.unacked, seq.Val())
			timers.Cancel(retxTimerID(seq))
			s.stats.DroppedOnLoss++
			dropped++
			continue
		}

		raw, encErr := s.retransmitPacket(e, now, encrypt, originTimestamp)
		if encErr != nil {
			err = encErr
			return
		}
		retransmits = append(retransmits, raw)

		e.RetransmitCount++
		backoff := time.Duration(float64(rto) * pow1_5(e.RetransmitCount))
		if backoff > defaultMaxRTO {
			backoff = defaultMaxRTO
		}
		e.NextRetransmitDue = now.Add(backoff)
		timers.Schedule(timerRetx, retxTimerID(seq), backoff, now, seq)
		s.stats.Retransmitted++
	}
	return
}

// OnRetransmitTimeout handles a single fired retransmit timer the same
// way a NAK entry is handled, spec section 4.4, treating the timeout as a
// loss event for the caller's congestion-control update.
func (s *SendEngine) OnRetransmitTimeout(seq seqNumber, now time.Time, timers *TimerWheel, rto time.Duration, encrypt encryptFunc, originTimestamp func(time.Time) uint32) (raw []byte, dropped bool, err error) {
	e, ok := s.unacked[seq.Val()]
	if !ok {
		return nil, false, nil
	}
	if e.RetransmitCount >= s.maxRetransmits {
		delete(s.unacked, seq.Val())
		s.stats.DroppedOnLoss++
		return nil, true, nil
	}

	raw, err = s.retransmitPacket(e, now, encrypt, originTimestamp)
	if err != nil {
		return nil, false, err
	}
	e.RetransmitCount++
	backoff := time.Duration(float64(rto) * pow1_5(e.RetransmitCount))
	if backoff > defaultMaxRTO {
		backoff = defaultMaxRTO
	}
	e.NextRetransmitDue = now.Add(backoff)
	timers.Schedule(timerRetx, retxTimerID(seq), backoff, now, seq)
	s.stats.Retransmitted++
	return raw, false, nil
}

func (s *SendEngine) retransmitPacket(e *UnackedEntry, now time.Time, encrypt encryptFunc, originTimestamp func(time.Time) uint32) ([]byte, error) {
	cipherText, kk, err := encrypt(e.Payload, e.Seq)
	if err != nil {
		return nil, err
	}
	hdr := dataHeader{
		Seq:           e.Seq,
		Position:      e.Position,
		Ordered:       e.Ordered,
		Key:           kk,
		Retransmitted: true,
		MsgNum:        e.MsgNum,
		Timestamp:     originTimestamp(now),
		DestSocketID:  s.destSocketID,
	}
	return EncodeDataPacket(DataPacket{Header: hdr, Payload: cipherText})
}

// pow1_5 computes 1.5^n via repeated multiplication, used for the NAK/
// timeout exponential backoff factor, spec section 4.4.
func pow1_5(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 1.5
	}
	return v
}

// UnackedCount is the current number of in-flight unacknowledged packets.
func (s *SendEngine) UnackedCount() int { return len(s.unacked) }

// QueuedCount is the current number of fragments waiting for admission.
func (s *SendEngine) QueuedCount() int { return len(s.queue) }

// Stats returns a snapshot of send-engine counters.
func (s *SendEngine) Stats() SendStats { return s.stats }
