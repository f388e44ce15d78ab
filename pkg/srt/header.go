package srt

import "encoding/binary"

// headerSize is the fixed 16-byte SRT header, shared by data and control
// packets, spec section 3.
const headerSize = 16

// packetPosition is the two-bit PP field of a data header.
type packetPosition uint8

const (
	ppMiddle packetPosition = 0b00
	ppLast   packetPosition = 0b01
	ppFirst  packetPosition = 0b10
	ppOnly   packetPosition = 0b11
)

// keyEncryption is the two-bit KK field identifying which session key (or
// neither/both) encrypted a packet.
type keyEncryption uint8

const (
	keyNone keyEncryption = 0b00
	keyEven keyEncryption = 0b01
	keyOdd  keyEncryption = 0b10
	keyBoth keyEncryption = 0b11
)

// controlType is the 15-bit control-type field of a control header.
type controlType uint16

const (
	ctrlHandshake         controlType = 0
	ctrlKeepAlive         controlType = 1
	ctrlAck               controlType = 2
	ctrlNak               controlType = 3
	ctrlCongestionWarning controlType = 4
	ctrlShutdown          controlType = 5
	ctrlAckAck            controlType = 6
	ctrlDropRequest       controlType = 7
	ctrlPeerError         controlType = 8
)

func validControlType(t controlType) bool {
	return t <= ctrlPeerError
}

// dataHeader is the decoded form of a data packet's 16-byte header.
type dataHeader struct {
	Seq           seqNumber
	Position      packetPosition
	Ordered       bool
	Key           keyEncryption
	Retransmitted bool
	MsgNum        msgNumber
	Timestamp     uint32
	DestSocketID  uint32
}

// controlHeader is the decoded form of a control packet's 16-byte header.
type controlHeader struct {
	Type             controlType
	Subtype          uint16
	TypeSpecificInfo uint32
	Timestamp        uint32
	DestSocketID     uint32
}

// encodeDataHeader packs a data header into 16 bytes. Returns
// ErrFieldOutOfRange if any field does not fit its bit width.
func encodeDataHeader(h dataHeader) ([]byte, error) {
	if h.Seq.Val() > seqNumberMask {
		return nil, ErrFieldOutOfRange
	}
	if h.MsgNum.Val() > msgNumberMask {
		return nil, ErrFieldOutOfRange
	}

	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Seq.Val()&seqNumberMask) // F=0 implicit

	word1 := uint32(h.Position&0b11) << 30
	if h.Ordered {
		word1 |= 1 << 29
	}
	word1 |= uint32(h.Key&0b11) << 27
	if h.Retransmitted {
		word1 |= 1 << 26
	}
	word1 |= h.MsgNum.Val() & msgNumberMask
	binary.BigEndian.PutUint32(buf[4:8], word1)

	binary.BigEndian.PutUint32(buf[8:12], h.Timestamp)
	binary.BigEndian.PutUint32(buf[12:16], h.DestSocketID)
	return buf, nil
}

// decodeDataHeader parses a data header. It rejects short input and input
// whose F bit marks it as a control packet.
func decodeDataHeader(buf []byte) (dataHeader, error) {
	if len(buf) < headerSize {
		return dataHeader{}, ErrHeaderTooShort
	}
	word0 := binary.BigEndian.Uint32(buf[0:4])
	if word0&0x8000_0000 != 0 {
		return dataHeader{}, ErrWrongFBit
	}
	word1 := binary.BigEndian.Uint32(buf[4:8])

	return dataHeader{
		Seq:           newSeqNumber(word0 & seqNumberMask),
		Position:      packetPosition((word1 >> 30) & 0b11),
		Ordered:       word1&(1<<29) != 0,
		Key:           keyEncryption((word1 >> 27) & 0b11),
		Retransmitted: word1&(1<<26) != 0,
		MsgNum:        newMsgNumber(word1 & msgNumberMask),
		Timestamp:     binary.BigEndian.Uint32(buf[8:12]),
		DestSocketID:  binary.BigEndian.Uint32(buf[12:16]),
	}, nil
}

// encodeControlHeader packs a control header into 16 bytes.
func encodeControlHeader(h controlHeader) ([]byte, error) {
	if !validControlType(h.Type) {
		return nil, ErrInvalidControlType
	}

	buf := make([]byte, headerSize)
	word0 := uint32(0x8000_0000) | (uint32(h.Type)&0x7FFF)<<16 | uint32(h.Subtype)
	binary.BigEndian.PutUint32(buf[0:4], word0)
	binary.BigEndian.PutUint32(buf[4:8], h.TypeSpecificInfo)
	binary.BigEndian.PutUint32(buf[8:12], h.Timestamp)
	binary.BigEndian.PutUint32(buf[12:16], h.DestSocketID)
	return buf, nil
}

// decodeControlHeader parses a control header. It rejects short input,
// input whose F bit marks it as a data packet, and invalid control types.
func decodeControlHeader(buf []byte) (controlHeader, error) {
	if len(buf) < headerSize {
		return controlHeader{}, ErrHeaderTooShort
	}
	word0 := binary.BigEndian.Uint32(buf[0:4])
	if word0&0x8000_0000 == 0 {
		return controlHeader{}, ErrWrongFBit
	}
	t := controlType((word0 >> 16) & 0x7FFF)
	if !validControlType(t) {
		return controlHeader{}, ErrInvalidControlType
	}

	return controlHeader{
		Type:             t,
		Subtype:          uint16(word0 & 0xFFFF),
		TypeSpecificInfo: binary.BigEndian.Uint32(buf[4:8]),
		Timestamp:        binary.BigEndian.Uint32(buf[8:12]),
		DestSocketID:     binary.BigEndian.Uint32(buf[12:16]),
	}, nil
}

// isControlPacket reports whether the raw datagram's F bit marks it as a
// control packet. Used by the orchestrator to route before fully decoding.
func isControlPacket(buf []byte) bool {
	return len(buf) > 0 && buf[0]&0x80 != 0
}
