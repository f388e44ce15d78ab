package srt

import (
	"fmt"
	"math/rand"
	"net"
	"time"
)

// Role distinguishes which side of the handshake a connection plays, spec
// section 3.
type Role int

const (
	RoleCaller Role = iota
	RoleListener
)

// ConnState is the connection lifecycle, spec section 3. Transitions
// monotonically: Init -> Induction -> Conclusion -> Established, or to
// Shutdown from any state.
type ConnState int

const (
	StateInit ConnState = iota
	StateInduction
	StateConclusion
	StateEstablished
	StateShutdown
)

// Handshake drives the two-phase Caller/Listener negotiation, spec
// section 4.2. Grounded on the teacher's handleHandshake/
// handleHandshakeRequest/handleHandshakeResponse split
// (pkg/srt/session.go), generalized from the teacher's single-phase UDT
// handshake to SRT's Induction/Conclusion pair with extension
// negotiation.
//
// Per spec section 9's note on handshake completeness: the Listener side
// explicitly marks itself done after validating Conclusion; the Caller
// side has no distinct "done" signal in the wire protocol, so Established
// here means "a valid Response was received with the expected
// extensions" — documented rather than invented.
type Handshake struct {
	role     Role
	cfg      Config
	localID  uint32
	peerID   uint32
	state    ConnState
	remote   *net.UDPAddr

	initialSendSeq seqNumber
	initialRecvSeq seqNumber

	negotiatedLatency time.Duration
	encryptionEnabled bool
	salt              [16]byte

	sessionOrigin time.Time

	firstAttempt time.Time
	lastAttempt  time.Time
}

// NewCallerHandshake starts a Caller-side handshake toward a Listener.
func NewCallerHandshake(cfg Config, localSocketID uint32, remote *net.UDPAddr, now time.Time) *Handshake {
	return &Handshake{
		role:           RoleCaller,
		cfg:            cfg,
		localID:        localSocketID,
		remote:         remote,
		state:          StateInit,
		initialSendSeq: newSeqNumber(rand.Uint32() & seqNumberMask),
		sessionOrigin:  now,
		firstAttempt:   now,
		lastAttempt:    now,
	}
}

// NewListenerHandshake builds a Listener-side handshake that will respond
// to an inbound Induction.
func NewListenerHandshake(cfg Config, localSocketID uint32, now time.Time) *Handshake {
	return &Handshake{
		role:          RoleListener,
		cfg:           cfg,
		localID:       localSocketID,
		state:         StateInit,
		sessionOrigin: now,
	}
}

// State returns the current handshake/connection state.
func (h *Handshake) State() ConnState { return h.state }

// Established reports whether the handshake completed successfully.
func (h *Handshake) Established() bool { return h.state == StateEstablished }

// BuildInduction constructs the Caller's Induction packet, spec section
// 4.2.
func (h *Handshake) BuildInduction() ControlPacket {
	h.state = StateInduction
	body := &HandshakeBody{
		Version:       minVersion,
		Encryption:    encryptionOff,
		Extension:     0,
		InitialSeq:    h.initialSendSeq,
		MTU:           uint32(h.cfg.MSSBytes),
		MaxFlowWindow: uint32(h.cfg.InitialRecvWindow),
		HandshakeType: handshakeInduction,
		SocketID:      h.localID,
	}
	return ControlPacket{
		Header:    controlHeader{Type: ctrlHandshake, DestSocketID: 0},
		Handshake: body,
	}
}

// OnInduction is the Listener's response to an inbound Induction: it
// echoes the peer address and replies with Response, spec section 4.2.
func (h *Handshake) OnInduction(req *HandshakeBody, remote *net.UDPAddr, now time.Time) (ControlPacket, error) {
	if req.HandshakeType != handshakeInduction {
		return ControlPacket{}, fmt.Errorf("%w: expected Induction", ErrHandshakeUnexpected)
	}
	h.peerID = req.SocketID
	h.remote = remote
	h.state = StateInduction
	h.initialSendSeq = newSeqNumber(rand.Uint32() & seqNumberMask)

	body := &HandshakeBody{
		Version:       minVersion,
		Encryption:    encryptionOff,
		Extension:     0,
		InitialSeq:    h.initialSendSeq,
		MTU:           req.MTU,
		MaxFlowWindow: uint32(h.cfg.InitialRecvWindow),
		HandshakeType: handshakeResponse,
		SocketID:      h.localID,
		PeerIP:        extractClientIP(remote),
	}
	return ControlPacket{
		Header:    controlHeader{Type: ctrlHandshake, DestSocketID: req.SocketID},
		Handshake: body,
	}, nil
}

// OnInductionResponse is the Caller's reaction to the Listener's Response
// to Induction: it builds Conclusion, spec section 4.2.
func (h *Handshake) OnInductionResponse(resp *HandshakeBody, now time.Time) (ControlPacket, error) {
	if resp.HandshakeType != handshakeResponse {
		return ControlPacket{}, fmt.Errorf("%w: expected Response to Induction", ErrHandshakeUnexpected)
	}
	h.peerID = resp.SocketID
	h.state = StateConclusion

	encType := h.cfg.Encryption
	encrypting := encType != EncryptionOff
	if encrypting {
		if len(h.cfg.Passphrase) < minPassphraseLen || len(h.cfg.Passphrase) > maxPassphraseLen {
			return ControlPacket{}, ErrHandshakePassphrase
		}
	}

	ext := map[uint16][]byte{
		extSRTVersion:  encodeU32(minVersion),
		extTSBPDDelay:  encodeU16(uint16(h.cfg.PlaybackDelayMs)),
		extPeerLatency: encodeU16(uint16(h.cfg.PlaybackDelayMs)),
	}
	var flags uint32
	if encrypting {
		flags |= srtFlagEncryption
		salt, err := randomSalt()
		if err != nil {
			return ControlPacket{}, err
		}
		h.salt = salt
		ext[extEncryption] = salt[:]
	}
	ext[extSRTFlags] = encodeU32(flags)
	if h.cfg.StreamID != "" {
		ext[extStreamID] = []byte(h.cfg.StreamID)
	}

	encField := encryptionOff
	if encrypting {
		encField = encryptionAES256
	}

	body := &HandshakeBody{
		Version:       minVersion,
		Encryption:    encField,
		Extension:     srtExtensionMagic,
		InitialSeq:    h.initialSendSeq,
		MTU:           uint32(h.cfg.MSSBytes),
		MaxFlowWindow: uint32(h.cfg.InitialRecvWindow),
		HandshakeType: handshakeConclusion,
		SocketID:      h.localID,
		Extensions:    ext,
	}
	return ControlPacket{
		Header:    controlHeader{Type: ctrlHandshake, DestSocketID: h.peerID},
		Handshake: body,
	}, nil
}

// OnConclusion is the Listener's validation of the Caller's Conclusion,
// spec section 4.2. Rejections (version, encryption mismatch, latency,
// passphrase) leave no partial state: state stays unchanged on error.
func (h *Handshake) OnConclusion(req *HandshakeBody, now time.Time) (ControlPacket, error) {
	if req.HandshakeType != handshakeConclusion {
		return ControlPacket{}, fmt.Errorf("%w: expected Conclusion", ErrHandshakeUnexpected)
	}
	if req.Version < minVersion {
		return h.rejectionPacket(req, rejVersion), ErrHandshakeVersion
	}

	peerEncrypting := req.Encryption != encryptionOff
	localEncrypting := h.cfg.Encryption != EncryptionOff
	if peerEncrypting != localEncrypting {
		return h.rejectionPacket(req, rejUnsecure), ErrHandshakeEncryption
	}
	if localEncrypting {
		if len(h.cfg.Passphrase) < minPassphraseLen || len(h.cfg.Passphrase) > maxPassphraseLen {
			return h.rejectionPacket(req, rejBadSecret), ErrHandshakePassphrase
		}
		if salt, ok := req.Extensions[extEncryption]; ok && len(salt) == 16 {
			copy(h.salt[:], salt)
		} else {
			salt, err := randomSalt()
			if err != nil {
				return ControlPacket{}, err
			}
			h.salt = salt
		}
	}

	peerLatencyMs := 0
	if v, ok := req.Extensions[extTSBPDDelay]; ok && len(v) >= 2 {
		peerLatencyMs = int(decodeU16(v))
	}
	negotiatedMs := peerLatencyMs
	if h.cfg.PlaybackDelayMs > negotiatedMs {
		negotiatedMs = h.cfg.PlaybackDelayMs
	}
	if negotiatedMs < minPlaybackDelayMs || negotiatedMs > maxPlaybackDelayMs {
		return h.rejectionPacket(req, rejCongestion), ErrHandshakeLatency
	}

	h.peerID = req.SocketID
	h.initialRecvSeq = req.InitialSeq
	h.negotiatedLatency = time.Duration(negotiatedMs) * time.Millisecond
	h.encryptionEnabled = localEncrypting

	ext := map[uint16][]byte{
		extSRTVersion:  encodeU32(minVersion),
		extTSBPDDelay:  encodeU16(uint16(negotiatedMs)),
		extPeerLatency: encodeU16(uint16(negotiatedMs)),
	}
	var flags uint32
	if localEncrypting {
		flags |= srtFlagEncryption
		ext[extEncryption] = h.salt[:]
	}
	ext[extSRTFlags] = encodeU32(flags)

	encField := encryptionOff
	if localEncrypting {
		encField = encryptionAES256
	}

	body := &HandshakeBody{
		Version:       minVersion,
		Encryption:    encField,
		Extension:     srtExtensionMagic,
		InitialSeq:    h.initialSendSeq,
		MTU:           uint32(h.cfg.MSSBytes),
		MaxFlowWindow: uint32(h.cfg.InitialRecvWindow),
		HandshakeType: handshakeResponse,
		SocketID:      h.localID,
		Extensions:    ext,
	}
	h.state = StateEstablished // Listener marks itself done here, spec section 9.
	return ControlPacket{
		Header:    controlHeader{Type: ctrlHandshake, DestSocketID: h.peerID},
		Handshake: body,
	}, nil
}

// OnResponse is the Caller's validation of the Listener's Response to
// Conclusion. Established means "Response received with valid
// extensions", per spec section 9.
func (h *Handshake) OnResponse(resp *HandshakeBody, now time.Time) error {
	if resp.HandshakeType < 0 {
		return fmt.Errorf("%w: peer rejected handshake, reason %d", ErrHandshakeUnexpected, -int32(resp.HandshakeType))
	}
	if resp.HandshakeType != handshakeResponse {
		return fmt.Errorf("%w: expected Response to Conclusion", ErrHandshakeUnexpected)
	}
	if resp.Version < minVersion {
		return ErrHandshakeVersion
	}
	peerEncrypting := resp.Encryption != encryptionOff
	localEncrypting := h.cfg.Encryption != EncryptionOff
	if peerEncrypting != localEncrypting {
		return ErrHandshakeEncryption
	}

	peerLatencyMs := 0
	if v, ok := resp.Extensions[extTSBPDDelay]; ok && len(v) >= 2 {
		peerLatencyMs = int(decodeU16(v))
	}
	if peerLatencyMs < minPlaybackDelayMs || peerLatencyMs > maxPlaybackDelayMs {
		return ErrHandshakeLatency
	}

	h.initialRecvSeq = resp.InitialSeq
	h.negotiatedLatency = time.Duration(peerLatencyMs) * time.Millisecond
	h.encryptionEnabled = localEncrypting
	h.state = StateEstablished
	return nil
}

// rejectionPacket builds a Response carrying a negative handshake type
// that names the rejection reason, spec section 4.2/9, instead of a
// single generic rejected signal.
func (h *Handshake) rejectionPacket(req *HandshakeBody, reason rejectReason) ControlPacket {
	body := &HandshakeBody{
		Version:       minVersion,
		HandshakeType: rejectHandshakeType(reason),
		SocketID:      h.localID,
	}
	return ControlPacket{
		Header:    controlHeader{Type: ctrlHandshake, DestSocketID: req.SocketID},
		Handshake: body,
	}
}

// TimedOut reports whether the handshake has exceeded its 5-second retry
// bound, spec section 4.2.
func (h *Handshake) TimedOut(now time.Time) bool {
	return !h.Established() && now.Sub(h.firstAttempt) > handshakeTimeoutBound
}

func encodeU32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
func encodeU16(v uint16) []byte {
	return []byte{byte(v >> 8), byte(v)}
}
func decodeU16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}
