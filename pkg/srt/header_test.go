package srt

import "testing"

// TestDataHeaderRoundTrip is end-to-end scenario 1 from spec section 8.
func TestDataHeaderRoundTrip(t *testing.T) {
	h := dataHeader{
		Seq:          newSeqNumber(1234),
		Position:     ppOnly,
		Ordered:      true,
		Key:          keyEven,
		MsgNum:       newMsgNumber(5678),
		Timestamp:    1000,
		DestSocketID: 999,
	}

	buf, err := encodeDataHeader(h)
	if err != nil {
		t.Fatalf("encodeDataHeader: %v", err)
	}
	if len(buf) != headerSize {
		t.Fatalf("encoded header length: got %d, want %d", len(buf), headerSize)
	}

	got, err := decodeDataHeader(buf)
	if err != nil {
		t.Fatalf("decodeDataHeader: %v", err)
	}
	if got != h {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

// TestControlHeaderRoundTrip is end-to-end scenario 2 from spec section 8.
func TestControlHeaderRoundTrip(t *testing.T) {
	h := controlHeader{
		Type:             ctrlAck,
		Subtype:          0,
		TypeSpecificInfo: 12345,
		Timestamp:        2000,
		DestSocketID:     888,
	}

	buf, err := encodeControlHeader(h)
	if err != nil {
		t.Fatalf("encodeControlHeader: %v", err)
	}
	if !isControlPacket(buf) {
		t.Fatal("F bit must be set on an encoded control header")
	}

	got, err := decodeControlHeader(buf)
	if err != nil {
		t.Fatalf("decodeControlHeader: %v", err)
	}
	if got != h {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestDecodeDataHeaderRejectsShortBuffer(t *testing.T) {
	if _, err := decodeDataHeader(make([]byte, headerSize-1)); err != ErrHeaderTooShort {
		t.Errorf("expected ErrHeaderTooShort, got %v", err)
	}
}

func TestDecodeDataHeaderRejectsControlFBit(t *testing.T) {
	buf := make([]byte, headerSize)
	buf[0] = 0x80
	if _, err := decodeDataHeader(buf); err != ErrWrongFBit {
		t.Errorf("expected ErrWrongFBit, got %v", err)
	}
}

func TestDecodeControlHeaderRejectsInvalidType(t *testing.T) {
	h := controlHeader{Type: controlType(99)}
	if _, err := encodeControlHeader(h); err != ErrInvalidControlType {
		t.Errorf("expected ErrInvalidControlType, got %v", err)
	}
}
