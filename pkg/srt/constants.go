package srt

import "time"

// Protocol-level defaults. Mirrors the numeric ranges and defaults named in
// spec section 6 ("Configuration").
const (
	defaultMSS = 1500

	minPlaybackDelayMs     = 20
	maxPlaybackDelayMs     = 8000
	defaultPlaybackDelayMs = 120

	minPassphraseLen = 10
	maxPassphraseLen = 79

	defaultMaxBandwidthBps = 1_000_000

	defaultSendWindowPackets = 8192
	defaultRecvWindowPackets = 8192

	defaultKeyRefreshPackets = 1_000_000

	defaultAckFrequencyPackets = 10
	maxNakEntries              = 100

	defaultMaxRetransmits = 5

	minVersion = 0x010300 // 1.3.0

	srtExtensionMagic = 0x4A17
)

// RTO bounds (RFC 6298 naming), spec section 4.7/6.
const (
	defaultMinRTO = time.Millisecond
	defaultMaxRTO = 60 * time.Second
)

// Handshake retry cadence, spec section 4.2.
const (
	handshakeRetryInterval = 250 * time.Millisecond
	handshakeTimeoutBound  = 5 * time.Second
)

// AIMD congestion control defaults, spec section 4.8.
const (
	initialCwnd     = 2.0
	initialSsthresh = 65536.0 / defaultMSS
	cwndBackoff     = 0.875
)

// Sending rate clamps, spec section 4.8.
const (
	minSendRateBps = 80_000
	maxSendRateBps = 800_000_000
)

// Handshake type codes, spec section 3/4.2. Negative values are error codes.
type handshakeType int32

const (
	handshakeInduction  handshakeType = 1
	handshakeConclusion handshakeType = -1
	handshakeResponse   handshakeType = 0
)

// Rejection reason codes, spec section 4.2/9. Carried as a negative
// handshake type (-reason) on a rejection response, following the real
// protocol's convention of surfacing a distinct reason rather than a
// single generic rejected/not-rejected signal.
type rejectReason int32

const (
	rejVersion    rejectReason = 1008
	rejBadSecret  rejectReason = 1010
	rejUnsecure   rejectReason = 1011
	rejCongestion rejectReason = 1013
)

func rejectHandshakeType(reason rejectReason) handshakeType {
	return handshakeType(-int32(reason))
}

// Extension type codes, spec section 6.
const (
	extSRTVersion   uint16 = 1
	extSRTFlags     uint16 = 2
	extTSBPDDelay   uint16 = 3
	extPeerLatency  uint16 = 4
	extEncryption   uint16 = 5
	extStreamID     uint16 = 6 // opaque pass-through, not interpreted by the protocol engine
)

// SRT flag bits carried in extSRTFlags, spec section 4.2.
const (
	srtFlagEncryption uint32 = 1 << 0
)

// Encryption field values carried in the handshake body, spec section 3.
const (
	encryptionOff    uint16 = 0
	encryptionAES256 uint16 = 2
)
