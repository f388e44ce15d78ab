package srt

import (
	"testing"
	"time"
)

func identityEncrypt(payload []byte, seq seqNumber) ([]byte, keyEncryption, error) {
	return payload, keyNone, nil
}

func originTsMicro(t time.Time) uint32 { return uint32(t.UnixMicro()) }

func TestSendEngineFragmentsByMaxPayload(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MSSBytes = 16 + 10 // max_payload = 10 bytes
	se := NewSendEngine(cfg, newSeqNumber(0), 1)

	if err := se.Enqueue(make([]byte, 25), true); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if got := se.QueuedCount(); got != 3 {
		t.Fatalf("fragment count for 25 bytes at max_payload=10: got %d, want 3", got)
	}
	if se.queue[0].position != ppFirst || se.queue[1].position != ppMiddle || se.queue[2].position != ppLast {
		t.Errorf("fragment PP sequence: got [%v %v %v], want [first middle last]",
			se.queue[0].position, se.queue[1].position, se.queue[2].position)
	}
	if se.queue[0].msgNum != se.queue[2].msgNum {
		t.Error("all fragments of one message must share a message number")
	}
}

func TestSendEngineWouldBlockAtBacklogBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialSendWindow = 1
	se := NewSendEngine(cfg, newSeqNumber(0), 1)
	if err := se.Enqueue([]byte("a"), true); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if err := se.Enqueue([]byte("b"), true); err != nil {
		t.Fatalf("second Enqueue: %v", err)
	}
	if err := se.Enqueue([]byte("c"), true); err != ErrWouldBlock {
		t.Errorf("expected ErrWouldBlock once backlog reaches 2*send_window, got %v", err)
	}
}

func TestSendEngineOnAckRemovesUnackedAndCancelsTimer(t *testing.T) {
	cfg := DefaultConfig()
	se := NewSendEngine(cfg, newSeqNumber(0), 1)
	se.Enqueue([]byte("hello"), true)
	now := time.Now()
	flow := NewFlowState(100, 100, 1_000_000_000, now)
	cong := NewCongestionState()
	timers := NewTimerWheel()

	if _, err := se.Flush(now, flow, cong, identityEncrypt, timers, time.Second, originTsMicro); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if se.UnackedCount() != 1 {
		t.Fatalf("UnackedCount after Flush: got %d, want 1", se.UnackedCount())
	}
	if timers.Len() != 1 {
		t.Fatalf("armed retx timers after Flush: got %d, want 1", timers.Len())
	}

	acked := se.OnAck(newSeqNumber(0), timers)
	if acked != 1 {
		t.Errorf("OnAck acked count: got %d, want 1", acked)
	}
	if se.UnackedCount() != 0 {
		t.Errorf("UnackedCount after ACK: got %d, want 0", se.UnackedCount())
	}
	if timers.Len() != 0 {
		t.Errorf("retx timer must be cancelled on ACK, %d still armed", timers.Len())
	}
}

func TestSendEngineOnNakRetransmitsWithFlagSet(t *testing.T) {
	cfg := DefaultConfig()
	se := NewSendEngine(cfg, newSeqNumber(0), 1)
	se.Enqueue([]byte("payload"), true)
	now := time.Now()
	flow := NewFlowState(100, 100, 1_000_000_000, now)
	cong := NewCongestionState()
	timers := NewTimerWheel()
	se.Flush(now, flow, cong, identityEncrypt, timers, time.Second, originTsMicro)

	retransmits, dropped, err := se.OnNak([]seqNumber{newSeqNumber(0)}, now, timers, time.Second, identityEncrypt, originTsMicro)
	if err != nil {
		t.Fatalf("OnNak: %v", err)
	}
	if dropped != 0 || len(retransmits) != 1 {
		t.Fatalf("OnNak: dropped=%d retransmits=%d, want 0/1", dropped, len(retransmits))
	}
	hdr, err := decodeDataHeader(retransmits[0])
	if err != nil {
		t.Fatalf("decodeDataHeader: %v", err)
	}
	if !hdr.Retransmitted {
		t.Error("retransmitted packet must carry the retransmit flag")
	}
	if hdr.Seq.Val() != 0 {
		t.Errorf("retransmitted packet must reuse the original sequence: got %d", hdr.Seq.Val())
	}
}

func TestSendEngineDropsAfterMaxRetransmits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetransmits = 1
	se := NewSendEngine(cfg, newSeqNumber(0), 1)
	se.Enqueue([]byte("payload"), true)
	now := time.Now()
	flow := NewFlowState(100, 100, 1_000_000_000, now)
	cong := NewCongestionState()
	timers := NewTimerWheel()
	se.Flush(now, flow, cong, identityEncrypt, timers, time.Second, originTsMicro)

	se.OnNak([]seqNumber{newSeqNumber(0)}, now, timers, time.Second, identityEncrypt, originTsMicro)
	_, dropped, err := se.OnNak([]seqNumber{newSeqNumber(0)}, now, timers, time.Second, identityEncrypt, originTsMicro)
	if err != nil {
		t.Fatalf("OnNak: %v", err)
	}
	if dropped != 1 {
		t.Errorf("expected the entry dropped once max_retransmits is exceeded, got dropped=%d", dropped)
	}
	if se.stats.DroppedOnLoss != 1 {
		t.Errorf("DroppedOnLoss stat: got %d, want 1", se.stats.DroppedOnLoss)
	}
}
