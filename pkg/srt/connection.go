package srt

import (
	"log/slog"
	"math/rand"
	"net"
	"time"
)

const ackTimerID = "ack"
const nakTimerID = "nak"
const keepaliveTimerID = "keepalive"

const keepaliveInterval = time.Second
const ackTimerInterval = 10 * time.Millisecond
const pollFallback = 20 * time.Millisecond

func newSocketID() uint32 { return rand.Uint32() }

// Connection is C11: the single-threaded reactor that owns one
// established session and drives every other component (C1-C10) from a
// single poll loop, spec section 4.11/5. There is no internal locking
// because there is no internal concurrency: Send and Receive run the
// step loop on the caller's goroutine. Independent connections
// (e.g. a Listener's accepted sessions) may run on independent
// goroutines, each with its own Connection, per spec section 5.
//
// Grounded on the teacher's session.go event loop shape (one goroutine
// per connection reading its net.Conn and dispatching by message type),
// generalized from RTMP/RTSP chunk dispatch to SRT control/data dispatch
// and rebuilt without the teacher's per-session mutex, since this
// engine's single-goroutine-per-connection model needs none.
type Connection struct {
	cfg  Config
	role Role
	log  *slog.Logger

	socket  Socket
	remote  *net.UDPAddr
	localID uint32
	peerID  uint32

	send   *SendEngine
	recv   *ReceiveEngine
	tsbpd  *Tsbpd
	crypto *Crypto
	rtt    *RttState
	cong   *CongestionState
	flow   *FlowState
	timers *TimerWheel

	streamID StreamID
	origin   time.Time

	inbox   [][]byte
	closed  bool
	closing bool
}

// Dial performs the Caller side of the handshake against a Listener at
// remote and returns an established Connection, spec section 4.2. Blocks
// (from the application's point of view) until the handshake completes
// or times out at handshakeTimeoutBound.
func Dial(cfg Config, socket Socket, remote *net.UDPAddr) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	now := time.Now()
	localID := newSocketID()
	hs := NewCallerHandshake(cfg, localID, remote, now)
	log := slog.Default().With("role", "caller", "socketID", localID)

	resp, err := negotiateInduction(hs, socket, remote, log)
	if err != nil {
		return nil, err
	}

	conclusion, err := hs.OnInductionResponse(resp, time.Now())
	if err != nil {
		return nil, err
	}
	final, err := negotiateConclusion(hs, socket, remote, conclusion, log)
	if err != nil {
		return nil, err
	}
	if err := hs.OnResponse(final, time.Now()); err != nil {
		return nil, err
	}

	log.Info("handshake established", "peerID", hs.peerID, "latencyMs", hs.negotiatedLatency.Milliseconds())
	return newConnection(cfg, hs, socket, remote, log)
}

func negotiateInduction(hs *Handshake, socket Socket, remote *net.UDPAddr, log *slog.Logger) (*HandshakeBody, error) {
	induction := hs.BuildInduction()
	raw, err := EncodeControlPacket(induction)
	if err != nil {
		return nil, err
	}
	for {
		if hs.TimedOut(time.Now()) {
			return nil, ErrHandshakeTimeout
		}
		if err := socket.SendTo(raw, remote); err != nil && err != ErrWouldBlock {
			return nil, err
		}
		buf, _, err := socket.RecvFrom(time.Now().Add(handshakeRetryInterval))
		if err != nil {
			if err == ErrWouldBlock {
				continue
			}
			return nil, err
		}
		if !isControlPacket(buf) {
			continue
		}
		pkt, err := DecodeControlPacket(buf)
		if err != nil || pkt.Header.Type != ctrlHandshake || pkt.Handshake == nil {
			continue
		}
		if pkt.Handshake.HandshakeType != handshakeResponse {
			continue
		}
		return pkt.Handshake, nil
	}
}

func negotiateConclusion(hs *Handshake, socket Socket, remote *net.UDPAddr, conclusion ControlPacket, log *slog.Logger) (*HandshakeBody, error) {
	raw, err := EncodeControlPacket(conclusion)
	if err != nil {
		return nil, err
	}
	for {
		if hs.TimedOut(time.Now()) {
			return nil, ErrHandshakeTimeout
		}
		if err := socket.SendTo(raw, remote); err != nil && err != ErrWouldBlock {
			return nil, err
		}
		buf, _, err := socket.RecvFrom(time.Now().Add(handshakeRetryInterval))
		if err != nil {
			if err == ErrWouldBlock {
				continue
			}
			return nil, err
		}
		if !isControlPacket(buf) {
			continue
		}
		pkt, err := DecodeControlPacket(buf)
		if err != nil || pkt.Header.Type != ctrlHandshake || pkt.Handshake == nil {
			continue
		}
		return pkt.Handshake, nil
	}
}

// Listener accepts inbound Caller handshakes, spec section 4.2.
type Listener struct {
	cfg    Config
	socket Socket
	log    *slog.Logger

	pending map[string]*Handshake
}

// Listen builds a Listener bound to socket.
func Listen(cfg Config, socket Socket) *Listener {
	return &Listener{
		cfg:     cfg,
		socket:  socket,
		log:     slog.Default().With("role", "listener"),
		pending: map[string]*Handshake{},
	}
}

// Accept blocks until a Caller completes the two-phase handshake,
// returning an established Connection, spec section 4.2.
func (l *Listener) Accept() (*Connection, error) {
	for {
		buf, from, err := l.socket.RecvFrom(time.Now().Add(l.cfg.Timeout))
		if err != nil {
			if err == ErrWouldBlock {
				continue
			}
			return nil, err
		}
		if !isControlPacket(buf) {
			continue // stray data before a session exists; ignore
		}
		pkt, err := DecodeControlPacket(buf)
		if err != nil || pkt.Header.Type != ctrlHandshake || pkt.Handshake == nil {
			continue
		}

		key := from.String()
		switch pkt.Handshake.HandshakeType {
		case handshakeInduction:
			hs := NewListenerHandshake(l.cfg, newSocketID(), time.Now())
			resp, err := hs.OnInduction(pkt.Handshake, from, time.Now())
			if err != nil {
				l.log.Warn("rejecting induction", "from", key, "err", err)
				continue
			}
			l.pending[key] = hs
			raw, err := EncodeControlPacket(resp)
			if err != nil {
				continue
			}
			_ = l.socket.SendTo(raw, from)

		case handshakeConclusion:
			hs, ok := l.pending[key]
			if !ok {
				continue // no induction on file for this peer; ignore
			}
			resp, err := hs.OnConclusion(pkt.Handshake, time.Now())
			if raw, encErr := EncodeControlPacket(resp); encErr == nil {
				_ = l.socket.SendTo(raw, from)
			}
			if err != nil {
				l.log.Warn("rejecting conclusion", "from", key, "err", err)
				delete(l.pending, key)
				continue
			}
			delete(l.pending, key)

			conn, err := newConnection(l.cfg, hs, l.socket, from, l.log)
			if err != nil {
				return nil, err
			}
			if sid, ok := pkt.Handshake.Extensions[extStreamID]; ok {
				conn.streamID = StreamID(sid)
			}
			l.log.Info("accepted connection", "from", key, "peerID", hs.peerID)
			return conn, nil
		}
	}
}

// Close closes the listener's socket. Connections returned from Accept
// send and receive on that same socket, so they stop working too.
func (l *Listener) Close() error { return l.socket.Close() }

func newConnection(cfg Config, hs *Handshake, socket Socket, remote *net.UDPAddr, log *slog.Logger) (*Connection, error) {
	crypto, err := NewCrypto(cfg.Encryption.keyBits(), cfg.Passphrase, hs.salt, cfg.KeyRefreshPackets)
	if err != nil {
		return nil, err
	}
	minRTO := time.Duration(cfg.RetransmitTimeoutMinUs) * time.Microsecond
	maxRTO := time.Duration(cfg.RetransmitTimeoutMaxUs) * time.Microsecond

	now := time.Now()
	c := &Connection{
		cfg:      cfg,
		role:     hs.role,
		log:      log,
		socket:   socket,
		remote:   remote,
		localID:  hs.localID,
		peerID:   hs.peerID,
		send:     NewSendEngine(cfg, hs.initialSendSeq, hs.peerID),
		recv:     NewReceiveEngine(cfg, hs.initialRecvSeq),
		tsbpd:    NewTsbpd(hs.negotiatedLatency),
		crypto:   crypto,
		rtt:      NewRttState(minRTO, maxRTO),
		cong:     NewCongestionState(),
		flow:     NewFlowState(cfg.InitialSendWindow, cfg.InitialRecvWindow, float64(cfg.MaxBandwidthBps), now),
		timers:   NewTimerWheel(),
		streamID: StreamID(cfg.StreamID),
		origin:   now,
	}
	c.timers.Schedule(timerAck, ackTimerID, ackTimerInterval, now, nil)
	c.timers.Schedule(timerKeepalive, keepaliveTimerID, keepaliveInterval, now, nil)
	return c, nil
}

// StreamID returns the opaque StreamID carried through the handshake.
func (c *Connection) StreamID() StreamID { return c.streamID }

// originTimestamp converts a wall-clock instant into the microsecond
// tick used on the wire, relative to this connection's session origin.
func (c *Connection) originTimestamp(t time.Time) uint32 {
	return uint32(t.Sub(c.origin) / time.Microsecond)
}

func (c *Connection) encryptFn(payload []byte, seq seqNumber) ([]byte, keyEncryption, error) {
	return c.crypto.Encrypt(payload, seq)
}

// Send enqueues data for reliable delivery, spec section 4.4. Returns
// ErrWouldBlock if the send backlog is already at its bound.
func (c *Connection) Send(data []byte) error {
	if c.closed {
		return ErrClosed
	}
	if err := c.send.Enqueue(data, true); err != nil {
		return err
	}
	return c.step(time.Now())
}

// Receive blocks until a message is available for delivery (its TSBPD
// deadline has arrived) or the connection closes, spec section 4.6.
func (c *Connection) Receive() ([]byte, error) {
	for {
		if len(c.inbox) > 0 {
			msg := c.inbox[0]
			c.inbox = c.inbox[1:]
			return msg, nil
		}
		if c.closed {
			return nil, ErrClosed
		}
		if err := c.step(c.nextDeadline()); err != nil {
			return nil, err
		}
		for _, m := range c.tsbpd.Ready(time.Now()) {
			c.inbox = append(c.inbox, m.Payload)
		}
	}
}

// Close sends a Shutdown control packet and releases local state, spec
// section 5. Best-effort: it does not block waiting for the peer's own
// Shutdown.
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	raw, err := EncodeControlPacket(ControlPacket{
		Header: controlHeader{Type: ctrlShutdown, DestSocketID: c.peerID},
	})
	if err == nil {
		_ = c.socket.SendTo(raw, c.remote)
	}
	c.closed = true
	c.closing = true
	return nil
}

// nextDeadline computes when the reactor should next wake even with
// nothing to receive: the earlier of the next armed timer and the next
// TSBPD delivery, bounded by pollFallback so periodic housekeeping (ACK
// cadence, keepalive) still runs on an idle link.
func (c *Connection) nextDeadline() time.Time {
	now := time.Now()
	deadline := now.Add(pollFallback)
	if d, ok := c.timers.TimeUntilNext(now); ok && now.Add(d).Before(deadline) {
		deadline = now.Add(d)
	}
	if d, ok := c.tsbpd.TimeUntilNext(now); ok && now.Add(d).Before(deadline) {
		deadline = now.Add(d)
	}
	return deadline
}

// step is one reactor iteration, spec section 4.11: poll the transport
// until deadline, dispatch whatever arrived, then run the fixed
// housekeeping sequence (fired timers, send admission, ACK/NAK
// emission) regardless of whether anything arrived.
func (c *Connection) step(deadline time.Time) error {
	buf, _, err := c.socket.RecvFrom(deadline)
	now := time.Now()
	if err != nil && err != ErrWouldBlock {
		return err
	}
	if err == nil {
		c.handlePacket(buf, now)
	}
	c.driveTimers(now)
	if err := c.flushSend(now); err != nil {
		return err
	}
	c.maybeAck(now)
	return nil
}

func (c *Connection) handlePacket(buf []byte, now time.Time) {
	if isControlPacket(buf) {
		c.handleControl(buf, now)
		return
	}
	pkt, err := DecodeDataPacket(buf)
	if err != nil {
		c.log.Debug("dropping malformed data packet", "err", err)
		return
	}
	plaintext, err := c.crypto.Decrypt(pkt.Payload, pkt.Header.Seq, pkt.Header.Key)
	if err != nil {
		c.log.Warn("dropping packet, decrypt failed", "seq", pkt.Header.Seq.Val(), "err", err)
		return
	}
	pkt.Payload = plaintext

	messages := c.recv.Dispatch(pkt, now)
	for _, m := range messages {
		c.tsbpd.Push(m, now)
	}
}

func (c *Connection) handleControl(buf []byte, now time.Time) {
	pkt, err := DecodeControlPacket(buf)
	if err != nil {
		c.log.Debug("dropping malformed control packet", "err", err)
		return
	}
	switch pkt.Header.Type {
	case ctrlAck:
		if pkt.ACK == nil {
			return
		}
		acked := c.send.OnAck(pkt.ACK.AckSeq, c.timers)
		c.flow.OnAcked(acked)
		for i := 0; i < acked; i++ {
			c.cong.OnAck()
		}
		if pkt.ACK.EchoTimestamp != 0 {
			// EchoTimestamp is our own originTimestamp from when we sent the
			// data packet the peer is echoing, so this is a same-clock-domain
			// elapsed time: send time -> peer's ACK build time, our receipt.
			sample := time.Duration(c.originTimestamp(now)-pkt.ACK.EchoTimestamp) * time.Microsecond
			if sample > 0 {
				c.rtt.Update(sample)
			}
		}
	case ctrlNak:
		if pkt.NAK == nil {
			return
		}
		lost := flattenNak(pkt.NAK)
		retransmits, dropped, err := c.send.OnNak(lost, now, c.timers, c.rtt.RTO(), c.encryptFn, c.originTimestamp)
		if err != nil {
			c.log.Warn("retransmit encode failed", "err", err)
		}
		for _, raw := range retransmits {
			_ = c.socket.SendTo(raw, c.remote)
		}
		if len(lost) > 0 {
			c.cong.OnLoss(now, uint64(len(lost)))
			c.flow.OnLoss(now)
		}
		for i := 0; i < dropped; i++ {
			c.flow.OnDropped()
		}
	case ctrlShutdown:
		c.log.Info("peer sent shutdown")
		c.closing = true
		c.closed = true
	case ctrlKeepAlive:
		// nothing to do; receipt alone resets the peer's idle timer.
	}
}

func flattenNak(n *NakBody) []seqNumber {
	out := append([]seqNumber(nil), n.Singles...)
	for _, r := range n.Ranges {
		for s := r.Lo; ; s = s.Add(1) {
			out = append(out, s)
			if s == r.Hi {
				break
			}
		}
	}
	return out
}

func (c *Connection) driveTimers(now time.Time) {
	for _, fired := range c.timers.Tick(now) {
		switch fired.kind {
		case timerRetx:
			seq, ok := fired.data.(seqNumber)
			if !ok {
				continue
			}
			raw, dropped, err := c.send.OnRetransmitTimeout(seq, now, c.timers, c.rtt.RTO(), c.encryptFn, c.originTimestamp)
			if err != nil {
				c.log.Warn("retransmit-timeout encode failed", "err", err)
				continue
			}
			if raw != nil {
				_ = c.socket.SendTo(raw, c.remote)
				c.cong.OnLoss(now, 1)
				c.flow.OnLoss(now)
			}
			if dropped {
				c.flow.OnDropped()
			}
		case timerKeepalive:
			raw, err := EncodeControlPacket(ControlPacket{
				Header: controlHeader{Type: ctrlKeepAlive, DestSocketID: c.peerID},
			})
			if err == nil {
				_ = c.socket.SendTo(raw, c.remote)
			}
			c.timers.Schedule(timerKeepalive, keepaliveTimerID, keepaliveInterval, now, nil)
		case timerAck:
			if ack := c.recv.BuildAck(c.peerID, now); ack != nil {
				if raw, err := EncodeControlPacket(*ack); err == nil {
					_ = c.socket.SendTo(raw, c.remote)
				}
			}
			c.timers.Schedule(timerAck, ackTimerID, ackTimerInterval, now, nil)
		}
	}
}

func (c *Connection) flushSend(now time.Time) error {
	raw, err := c.send.Flush(now, c.flow, c.cong, c.encryptFn, c.timers, c.rtt.RTO(), c.originTimestamp)
	if err != nil {
		return err
	}
	for _, b := range raw {
		if err := c.socket.SendTo(b, c.remote); err != nil && err != ErrWouldBlock {
			return err
		}
	}
	return nil
}

func (c *Connection) maybeAck(now time.Time) {
	if c.recv.ShouldAck() {
		if ack := c.recv.BuildAck(c.peerID, now); ack != nil {
			if raw, err := EncodeControlPacket(*ack); err == nil {
				_ = c.socket.SendTo(raw, c.remote)
			}
		}
	}
	for _, nak := range c.recv.BuildNaks(c.peerID, now) {
		if raw, err := EncodeControlPacket(nak); err == nil {
			_ = c.socket.SendTo(raw, c.remote)
		}
	}
}

// Stats is the aggregate observability snapshot across every component,
// spec section 6/9. Flattening to map[string]uint64 (spec section 9's
// "flat maps" note) is left to the caller: this struct is the typed,
// compile-time-safe primary API each component's own Snapshot()/Stats()
// already establishes.
type Stats struct {
	Send       SendStats
	Receive    ReceiveStats
	Tsbpd      TsbpdStats
	Crypto     CryptoStats
	Rtt        RttSnapshot
	Congestion CongestionSnapshot
	Flow       FlowStats
}

// Stats returns a point-in-time snapshot across every component.
func (c *Connection) Stats() Stats {
	return Stats{
		Send:       c.send.Stats(),
		Receive:    c.recv.Stats(),
		Tsbpd:      c.tsbpd.Stats(),
		Crypto:     c.crypto.Stats(),
		Rtt:        c.rtt.Snapshot(),
		Congestion: c.cong.Snapshot(),
		Flow:       c.flow.Stats(),
	}
}
