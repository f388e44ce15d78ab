package srt

import (
	"encoding/binary"
	"net"
)

// DataPacket is a fully decoded data packet: header plus payload. Treated
// as an immutable value once constructed — spec section 9 notes the
// source's partial setSequenceNumber/setPayload mutators were dropped
// rather than carried forward.
type DataPacket struct {
	Header  dataHeader
	Payload []byte
}

// TotalSize is the on-wire size of the packet.
func (p DataPacket) TotalSize() int { return headerSize + len(p.Payload) }

// EncodeDataPacket serializes a data packet. payload must not exceed
// maxPayload (MSS-16) for the configured MSS; the caller (the send engine) is
// responsible for fragmentation, so this only checks the header fields.
func EncodeDataPacket(p DataPacket) ([]byte, error) {
	hdr, err := encodeDataHeader(p.Header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(hdr)+len(p.Payload))
	out = append(out, hdr...)
	out = append(out, p.Payload...)
	return out, nil
}

// DecodeDataPacket parses a raw datagram into a data packet.
func DecodeDataPacket(buf []byte) (DataPacket, error) {
	hdr, err := decodeDataHeader(buf)
	if err != nil {
		return DataPacket{}, err
	}
	var payload []byte
	if len(buf) > headerSize {
		payload = append([]byte(nil), buf[headerSize:]...)
	}
	return DataPacket{Header: hdr, Payload: payload}, nil
}

// ControlPacket is a fully decoded control packet: header plus its
// typed body. Exactly one of the body fields is meaningful, selected by
// Header.Type.
type ControlPacket struct {
	Header controlHeader

	Handshake *HandshakeBody
	ACK       *AckBody
	NAK       *NakBody
}

// EncodeControlPacket serializes a control packet, dispatching to the
// body-specific encoder named by Header.Type.
func EncodeControlPacket(p ControlPacket) ([]byte, error) {
	var body []byte
	var err error
	switch p.Header.Type {
	case ctrlHandshake:
		body, err = encodeHandshakeBody(p.Handshake)
	case ctrlAck:
		body, err = encodeAckBody(p.ACK)
	case ctrlNak:
		body, err = encodeNakBody(p.NAK)
	default:
		// KeepAlive, Shutdown, AckAck, CongestionWarning, DropRequest,
		// PeerError carry no body beyond the header in this engine.
	}
	if err != nil {
		return nil, err
	}

	hdr, err := encodeControlHeader(p.Header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(hdr)+len(body))
	out = append(out, hdr...)
	out = append(out, body...)
	return out, nil
}

// DecodeControlPacket parses a raw datagram into a control packet,
// dispatching to the body-specific decoder named by the header's type.
func DecodeControlPacket(buf []byte) (ControlPacket, error) {
	hdr, err := decodeControlHeader(buf)
	if err != nil {
		return ControlPacket{}, err
	}
	body := buf[headerSize:]

	out := ControlPacket{Header: hdr}
	switch hdr.Type {
	case ctrlHandshake:
		hs, err := decodeHandshakeBody(body)
		if err != nil {
			return ControlPacket{}, err
		}
		out.Handshake = hs
	case ctrlAck:
		ack, err := decodeAckBody(hdr, body)
		if err != nil {
			return ControlPacket{}, err
		}
		out.ACK = ack
	case ctrlNak:
		nak, err := decodeNakBody(body)
		if err != nil {
			return ControlPacket{}, err
		}
		out.NAK = nak
	}
	return out, nil
}

// AckBody is the ACK control packet body, spec section 4.1. The minimal
// ACK this engine sends carries only the cumulative acknowledged-through
// sequence (in the control header's TypeSpecificInfo) plus an echoed
// origin timestamp used for sender-side RTT sampling (spec section 9's
// open question: this engine carries the echo explicitly rather than
// keeping a parallel send-time-by-seq map).
type AckBody struct {
	AckSeq        seqNumber
	EchoTimestamp uint32
}

func encodeAckBody(a *AckBody) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, a.EchoTimestamp)
	return buf, nil
}

func decodeAckBody(hdr controlHeader, body []byte) (*AckBody, error) {
	a := &AckBody{AckSeq: newSeqNumber(hdr.TypeSpecificInfo)}
	if len(body) >= 4 {
		a.EchoTimestamp = binary.BigEndian.Uint32(body[0:4])
	}
	return a, nil
}

// NakBody is the NAK control packet body: a concatenation of lost
// sequence entries, each either a singleton (MSB=0) or a range (lo with
// MSB=1, hi with MSB=0), spec section 4.1.
type NakBody struct {
	Singles []seqNumber
	Ranges  []seqRange
}

type seqRange struct {
	Lo, Hi seqNumber
}

func encodeNakBody(n *NakBody) ([]byte, error) {
	if n == nil {
		return nil, nil
	}
	buf := make([]byte, 0, 4*(len(n.Singles)+2*len(n.Ranges)))
	for _, s := range n.Singles {
		if s.Val() > seqNumberMask {
			return nil, ErrFieldOutOfRange
		}
		word := make([]byte, 4)
		binary.BigEndian.PutUint32(word, s.Val()&seqNumberMask)
		buf = append(buf, word...)
	}
	for _, r := range n.Ranges {
		lo := make([]byte, 4)
		binary.BigEndian.PutUint32(lo, (r.Lo.Val()&seqNumberMask)|0x8000_0000)
		hi := make([]byte, 4)
		binary.BigEndian.PutUint32(hi, r.Hi.Val()&seqNumberMask)
		buf = append(buf, lo...)
		buf = append(buf, hi...)
	}
	return buf, nil
}

func decodeNakBody(body []byte) (*NakBody, error) {
	n := &NakBody{}
	for i := 0; i+4 <= len(body); {
		word := binary.BigEndian.Uint32(body[i:])
		i += 4
		if word&0x8000_0000 != 0 {
			if i+4 > len(body) {
				return nil, ErrFieldOutOfRange
			}
			hi := binary.BigEndian.Uint32(body[i:])
			i += 4
			n.Ranges = append(n.Ranges, seqRange{
				Lo: newSeqNumber(word & seqNumberMask),
				Hi: newSeqNumber(hi & seqNumberMask),
			})
		} else {
			n.Singles = append(n.Singles, newSeqNumber(word&seqNumberMask))
		}
	}
	return n, nil
}

// HandshakeBody is the handshake control packet body, spec section 3/4.2.
type HandshakeBody struct {
	Version        uint32
	Encryption     uint16
	Extension      uint16 // srtExtensionMagic once SRT extensions are present
	InitialSeq     seqNumber
	MTU            uint32
	MaxFlowWindow  uint32
	HandshakeType  handshakeType
	SocketID       uint32
	PeerIP         [16]byte
	Extensions     map[uint16][]byte
}

// fixedHandshakeBodySize is the portion before the extension records.
const fixedHandshakeBodySize = 4 + 2 + 2 + 4 + 4 + 4 + 4 + 4 + 16

func encodeHandshakeBody(h *HandshakeBody) ([]byte, error) {
	if h == nil {
		return nil, nil
	}
	if h.InitialSeq.Val() > seqNumberMask {
		return nil, ErrFieldOutOfRange
	}

	buf := make([]byte, fixedHandshakeBodySize)
	off := 0
	binary.BigEndian.PutUint32(buf[off:], h.Version)
	off += 4
	binary.BigEndian.PutUint16(buf[off:], h.Encryption)
	off += 2
	binary.BigEndian.PutUint16(buf[off:], h.Extension)
	off += 2
	binary.BigEndian.PutUint32(buf[off:], h.InitialSeq.Val())
	off += 4
	binary.BigEndian.PutUint32(buf[off:], h.MTU)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], h.MaxFlowWindow)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], uint32(h.HandshakeType))
	off += 4
	binary.BigEndian.PutUint32(buf[off:], h.SocketID)
	off += 4
	copy(buf[off:off+16], h.PeerIP[:])

	for _, t := range sortedExtensionKeys(h.Extensions) {
		v := h.Extensions[t]
		padded := padTo4(v)
		rec := make([]byte, 4+len(padded))
		binary.BigEndian.PutUint16(rec[0:2], t)
		binary.BigEndian.PutUint16(rec[2:4], uint16(len(v)))
		copy(rec[4:], padded)
		buf = append(buf, rec...)
	}
	return buf, nil
}

func decodeHandshakeBody(body []byte) (*HandshakeBody, error) {
	if len(body) < fixedHandshakeBodySize {
		return nil, ErrHeaderTooShort
	}
	h := &HandshakeBody{Extensions: map[uint16][]byte{}}
	off := 0
	h.Version = binary.BigEndian.Uint32(body[off:])
	off += 4
	h.Encryption = binary.BigEndian.Uint16(body[off:])
	off += 2
	h.Extension = binary.BigEndian.Uint16(body[off:])
	off += 2
	h.InitialSeq = newSeqNumber(binary.BigEndian.Uint32(body[off:]))
	off += 4
	h.MTU = binary.BigEndian.Uint32(body[off:])
	off += 4
	h.MaxFlowWindow = binary.BigEndian.Uint32(body[off:])
	off += 4
	h.HandshakeType = handshakeType(binary.BigEndian.Uint32(body[off:]))
	off += 4
	h.SocketID = binary.BigEndian.Uint32(body[off:])
	off += 4
	copy(h.PeerIP[:], body[off:off+16])
	off += 16

	for off+4 <= len(body) {
		typ := binary.BigEndian.Uint16(body[off:])
		length := binary.BigEndian.Uint16(body[off+2:])
		off += 4
		padded := int(length)
		if padded%4 != 0 {
			padded += 4 - padded%4
		}
		if off+padded > len(body) {
			return nil, ErrFieldOutOfRange
		}
		h.Extensions[typ] = append([]byte(nil), body[off:off+int(length)]...)
		off += padded
	}
	return h, nil
}

func padTo4(v []byte) []byte {
	if len(v)%4 == 0 {
		return v
	}
	out := make([]byte, len(v)+(4-len(v)%4))
	copy(out, v)
	return out
}

func sortedExtensionKeys(m map[uint16][]byte) []uint16 {
	keys := make([]uint16, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// extractClientIP packs a net.Addr into the 16-byte peer-ip field used by
// the handshake body: an IPv4 address goes in the last four bytes, with
// the first twelve left zero.
// IPv6-specific encoding is out of scope per spec section 1's non-goals;
// IPv6 addresses are carried as-is in the 16-byte field but not specially
// interpreted.
func extractClientIP(addr *net.UDPAddr) [16]byte {
	var out [16]byte
	if addr == nil {
		return out
	}
	if ip4 := addr.IP.To4(); ip4 != nil {
		copy(out[12:], ip4)
		return out
	}
	if ip6 := addr.IP.To16(); ip6 != nil {
		copy(out[:], ip6)
	}
	return out
}
