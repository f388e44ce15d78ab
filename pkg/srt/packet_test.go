package srt

import (
	"bytes"
	"testing"
)

func TestDataPacketRoundTrip(t *testing.T) {
	p := DataPacket{
		Header: dataHeader{
			Seq:          newSeqNumber(42),
			Position:     ppFirst,
			MsgNum:       newMsgNumber(1),
			Timestamp:    500,
			DestSocketID: 7,
		},
		Payload: []byte("hello srt"),
	}
	raw, err := EncodeDataPacket(p)
	if err != nil {
		t.Fatalf("EncodeDataPacket: %v", err)
	}
	if len(raw) != p.TotalSize() {
		t.Fatalf("TotalSize mismatch: got %d want %d", len(raw), p.TotalSize())
	}
	got, err := DecodeDataPacket(raw)
	if err != nil {
		t.Fatalf("DecodeDataPacket: %v", err)
	}
	if got.Header != p.Header || !bytes.Equal(got.Payload, p.Payload) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestAckBodyRoundTrip(t *testing.T) {
	p := ControlPacket{
		Header: controlHeader{Type: ctrlAck, TypeSpecificInfo: newSeqNumber(99).Val(), DestSocketID: 1},
		ACK:    &AckBody{AckSeq: newSeqNumber(99), EchoTimestamp: 4242},
	}
	raw, err := EncodeControlPacket(p)
	if err != nil {
		t.Fatalf("EncodeControlPacket: %v", err)
	}
	got, err := DecodeControlPacket(raw)
	if err != nil {
		t.Fatalf("DecodeControlPacket: %v", err)
	}
	if got.ACK == nil {
		t.Fatal("decoded ACK body is nil")
	}
	if got.ACK.AckSeq != p.ACK.AckSeq || got.ACK.EchoTimestamp != p.ACK.EchoTimestamp {
		t.Errorf("ACK round trip mismatch: got %+v, want %+v", got.ACK, p.ACK)
	}
}

func TestNakBodyRoundTripSinglesAndRanges(t *testing.T) {
	p := ControlPacket{
		Header: controlHeader{Type: ctrlNak, DestSocketID: 1},
		NAK: &NakBody{
			Singles: []seqNumber{newSeqNumber(4), newSeqNumber(7)},
			Ranges:  []seqRange{{Lo: newSeqNumber(20), Hi: newSeqNumber(25)}},
		},
	}
	raw, err := EncodeControlPacket(p)
	if err != nil {
		t.Fatalf("EncodeControlPacket: %v", err)
	}
	got, err := DecodeControlPacket(raw)
	if err != nil {
		t.Fatalf("DecodeControlPacket: %v", err)
	}
	if got.NAK == nil || len(got.NAK.Singles) != 2 || len(got.NAK.Ranges) != 1 {
		t.Fatalf("NAK round trip shape mismatch: got %+v", got.NAK)
	}
	if got.NAK.Ranges[0].Lo.Val() != 20 || got.NAK.Ranges[0].Hi.Val() != 25 {
		t.Errorf("NAK range mismatch: got %+v", got.NAK.Ranges[0])
	}
}

func TestHandshakeBodyRoundTripWithExtensions(t *testing.T) {
	h := &HandshakeBody{
		Version:       minVersion,
		Encryption:    encryptionAES256,
		Extension:     srtExtensionMagic,
		InitialSeq:    newSeqNumber(77),
		MTU:           1500,
		MaxFlowWindow: 8192,
		HandshakeType: handshakeConclusion,
		SocketID:      555,
		Extensions: map[uint16][]byte{
			extSRTVersion: encodeU32(minVersion),
			extStreamID:   []byte("m=publish,r=live/foo"),
		},
	}
	p := ControlPacket{
		Header:    controlHeader{Type: ctrlHandshake, DestSocketID: 0},
		Handshake: h,
	}
	raw, err := EncodeControlPacket(p)
	if err != nil {
		t.Fatalf("EncodeControlPacket: %v", err)
	}
	got, err := DecodeControlPacket(raw)
	if err != nil {
		t.Fatalf("DecodeControlPacket: %v", err)
	}
	if got.Handshake == nil {
		t.Fatal("decoded Handshake body is nil")
	}
	if got.Handshake.InitialSeq != h.InitialSeq || got.Handshake.SocketID != h.SocketID {
		t.Errorf("fixed-field mismatch: got %+v", got.Handshake)
	}
	if !bytes.Equal(got.Handshake.Extensions[extStreamID], h.Extensions[extStreamID]) {
		t.Errorf("StreamID extension mismatch: got %q, want %q",
			got.Handshake.Extensions[extStreamID], h.Extensions[extStreamID])
	}
}
