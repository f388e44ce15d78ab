package srt

import "errors"

// Wire codec errors (C1). Distinguished per spec section 4.1.
var (
	ErrHeaderTooShort     = errors.New("srt: packet shorter than the 16-byte header")
	ErrWrongFBit          = errors.New("srt: F bit does not match the expected packet kind")
	ErrInvalidControlType = errors.New("srt: unrecognized control type")
	ErrFieldOutOfRange    = errors.New("srt: field value exceeds its bit width")
)

// Crypto errors (C3), spec section 4.3. Per-packet; never torn down the
// connection on their own.
var (
	ErrUnsupportedCipher = errors.New("srt: unsupported encryption key size")
	ErrCryptoFailure     = errors.New("srt: crypto primitive failure")
)

// Handshake errors (C2), spec section 4.2. Fatal: the connection never
// reaches Established.
var (
	ErrHandshakeVersion     = errors.New("srt: peer version older than the minimum supported")
	ErrHandshakeEncryption  = errors.New("srt: encryption requirement mismatch between peers")
	ErrHandshakeLatency     = errors.New("srt: negotiated latency outside [20ms, 8000ms]")
	ErrHandshakePassphrase  = errors.New("srt: passphrase length outside [10, 79]")
	ErrHandshakeTimeout     = errors.New("srt: handshake did not complete within the retry bound")
	ErrHandshakeUnexpected  = errors.New("srt: handshake packet unexpected in current state")
)

// Connection / application-facing errors, spec section 7.
var (
	ErrClosed              = errors.New("srt: connection is closed")
	ErrWouldBlock           = errors.New("srt: send would block on flow or congestion control")
	ErrRetransmitExhausted  = errors.New("srt: retransmission attempts exhausted for message")
	ErrTransport            = errors.New("srt: transport send/receive failure")
)
