package peer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"syscall"
	"time"

	"synapseguard/application"
	"synapseguard/domain/vpn"
	"synapseguard/infrastructure/cryptography/chacha20"
	"synapseguard/infrastructure/cryptography/noise"
	"synapseguard/infrastructure/cryptography/primitives"
	"synapseguard/infrastructure/network/ip"
	"synapseguard/infrastructure/settings"
	"synapseguard/infrastructure/telemetry/trafficstats"
	"synapseguard/infrastructure/timing"
)

// Timer slot names on the wheel. Re-arming is idempotent per name.
const (
	timerRekeyTimeout = "rekey-timeout"
	timerKeepalive    = "keepalive"
	timerRejectAfter  = "reject-after-time"
	timerCookieExpiry = "cookie-expiry"
	timerRekeyCheck   = "rekey-check"
)

// rekeyCheckInterval paces the proactive session-age policy scan.
const rekeyCheckInterval = time.Second

// stagedQueueCap bounds packets parked while a handshake is in flight.
// When full, the oldest packet is dropped so fresh traffic wins.
const stagedQueueCap = 128

// Peer owns the tunnel's sessions and the in-flight handshake and arbitrates
// which session is current. It is the single synchronization domain: the tun
// task, the udp task and the timer task all enter through its mutex.
type Peer struct {
	mu sync.Mutex

	engine  *noise.Engine
	cfg     settings.Runtime
	allowed ip.AllowedIPs

	transport io.Writer
	wheel     *timing.Wheel
	clock     timing.Clock
	stats     *trafficstats.Collector
	logger    application.Logger
	onState   func(vpn.StateEvent)

	handshake         *noise.Handshake
	handshakeAttempts int
	handshakeStarted  time.Time

	current  *chacha20.Session
	previous *chacha20.Session
	next     *chacha20.Session

	staged [][]byte

	lastSentAt time.Time
	lastRecvAt time.Time

	state                vpn.State
	stopped              bool
	surfacedPeerRejected bool
	surfacedUnreachable  bool

	decryptFailures uint64
	lastDecryptLog  time.Time

	// jitter spreads handshake retries; tests pin it to zero.
	jitter func() time.Duration
}

// NewPeer wires the peer against an already-validated runtime config. The
// transport writer is the UDP send path; onState receives every state
// transition and surfaced error and must not call back into the peer.
func NewPeer(
	cfg settings.Runtime,
	transport io.Writer,
	wheel *timing.Wheel,
	clock timing.Clock,
	stats *trafficstats.Collector,
	logger application.Logger,
	onState func(vpn.StateEvent),
) (*Peer, error) {
	engine, err := noise.NewEngine(cfg.Identity, cfg.RemotePublic, cfg.PresharedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vpn.ErrCryptoFailure, err)
	}
	if clock == nil {
		clock = timing.SystemClock{}
	}
	p := &Peer{
		engine:    engine,
		cfg:       cfg,
		allowed:   ip.NewAllowedIPs(cfg.AllowedIPs),
		transport: transport,
		wheel:     wheel,
		clock:     clock,
		stats:     stats,
		logger:    logger,
		onState:   onState,
		state:     vpn.StateIdle,
	}
	p.jitter = defaultJitter
	return p, nil
}

func defaultJitter() time.Duration {
	var b [4]byte
	if err := primitives.RandomBytes(b[:]); err != nil {
		return 0
	}
	max := uint32(settings.RekeyTimeoutJitterMax / time.Millisecond)
	return time.Duration(binary.LittleEndian.Uint32(b[:])%max) * time.Millisecond
}

// State returns the current user-visible state.
func (p *Peer) State() vpn.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Connect starts the first handshake eagerly and arms the periodic policy
// scan. Idempotent while a handshake or session exists.
func (p *Peer) Connect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	now := p.clock.Now()
	p.armRekeyCheckLocked()
	p.armKeepaliveLocked()
	if p.current == nil && p.handshake == nil {
		p.beginHandshakeLocked(now)
	}
}

// SendIP encrypts one outbound IP packet and writes it to the UDP transport.
// With no usable session the packet is staged and a handshake begins;
// transport-level failures are counted, never surfaced.
func (p *Peer) SendIP(packet []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return vpn.ErrRetired
	}
	now := p.clock.Now()

	// with no usable current session, an unconfirmed next keypair is
	// promoted by this first outbound use
	p.maybePromoteNextLocked(now)

	sess := p.current
	if sess == nil || !sess.Usable(now) {
		p.stagePacketLocked(packet)
		p.beginHandshakeLocked(now)
		return nil
	}

	if sess.ShouldRekey(now) && p.handshake == nil && p.next == nil {
		p.beginHandshakeLocked(now)
	}

	if err := p.sealAndSendLocked(sess, packet, now); err != nil {
		// counter exhausted or session aged out mid-flight: force a rekey
		// and retry once under whatever became current
		p.beginHandshakeLocked(now)
		p.maybePromoteNextLocked(now)
		if p.current != nil && p.current != sess && p.current.Usable(now) {
			if err := p.sealAndSendLocked(p.current, packet, now); err == nil {
				return nil
			}
		}
		p.stats.DropTX()
	}
	return nil
}

// ReceiveDatagram dispatches one inbound UDP datagram by its type byte and
// returns the decrypted inner IP packet for transport messages that carry
// one. All rejections are silent drops.
func (p *Peer) ReceiveDatagram(data []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil, vpn.ErrRetired
	}
	now := p.clock.Now()

	switch noise.MessageTypeOf(data) {
	case noise.MessageInitiationType:
		p.consumeInitiationLocked(data, now)
	case noise.MessageResponseType:
		p.consumeResponseLocked(data, now)
	case noise.MessageCookieReplyType:
		p.consumeCookieLocked(data, now)
	case noise.MessageTransportType:
		return p.consumeTransportLocked(data, now)
	default:
		p.stats.DropRX()
	}
	return nil, nil
}

// Stop retires the peer: the handshake is abandoned, every session and the
// engine's long-lived secrets are zeroized, and the state returns to Idle.
// Idempotent.
func (p *Peer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	for _, name := range []string{timerRekeyTimeout, timerKeepalive, timerRejectAfter, timerCookieExpiry, timerRekeyCheck} {
		p.wheel.Cancel(name)
	}
	if p.handshake != nil {
		p.handshake.Zero()
		p.handshake = nil
	}
	for _, s := range []*chacha20.Session{p.current, p.previous, p.next} {
		if s != nil {
			s.Zeroize()
		}
	}
	p.current, p.previous, p.next = nil, nil, nil
	p.staged = nil
	p.engine.Zeroize()
	p.cfg.Zeroize()
	p.setStateLocked(vpn.StateIdle, nil)
}

/* handshake driving */

func (p *Peer) beginHandshakeLocked(now time.Time) {
	if p.stopped || p.handshake != nil {
		return
	}
	if p.handshakeAttempts == 0 {
		p.handshakeStarted = now
	}
	p.sendInitiationLocked(now)
}

func (p *Peer) sendInitiationLocked(now time.Time) {
	idx, err := p.allocateIndexLocked()
	if err != nil {
		p.failHandshakeLocked(fmt.Errorf("%w: %v", vpn.ErrCryptoFailure, err))
		return
	}
	hs, msg, err := p.engine.CreateInitiation(idx)
	if err != nil {
		p.failHandshakeLocked(fmt.Errorf("%w: %v", vpn.ErrCryptoFailure, err))
		return
	}
	p.handshake = hs
	p.writeDatagramLocked(msg)
	// a rekey with a live session stays Connected; only a cold start shows
	// Handshaking to the user
	if p.current == nil {
		p.setStateLocked(vpn.StateHandshaking, nil)
	}
	p.wheel.Arm(timerRekeyTimeout, now.Add(settings.RekeyTimeout+p.jitter()), p.onRekeyTimeout)
}

func (p *Peer) onRekeyTimeout(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.handshake == nil {
		return
	}
	p.handshakeAttempts++
	if p.handshakeAttempts >= settings.MaxTimerHandshakes ||
		now.Sub(p.handshakeStarted) >= settings.RekeyAttemptTime {
		p.failHandshakeLocked(vpn.ErrHandshakeTimeout)
		return
	}
	if p.logger != nil {
		p.logger.Printf("handshake attempt %d timed out, retrying", p.handshakeAttempts)
	}
	p.handshake.Zero()
	p.handshake = nil
	p.sendInitiationLocked(now)
}

func (p *Peer) failHandshakeLocked(kind error) {
	if p.handshake != nil {
		p.handshake.Zero()
		p.handshake = nil
	}
	p.handshakeAttempts = 0
	p.wheel.Cancel(timerRekeyTimeout)
	for range p.staged {
		p.stats.DropTX()
	}
	p.staged = nil
	if p.logger != nil {
		p.logger.Printf("handshake failed: %v", kind)
	}
	now := p.clock.Now()
	if p.current != nil && p.current.Usable(now) {
		// the old session still carries traffic; surface the error once
		// without tearing the tunnel down
		p.emitEventLocked(kind)
		return
	}
	p.setStateLocked(vpn.StateError, kind)
}

func (p *Peer) consumeInitiationLocked(data []byte, now time.Time) {
	hs, err := p.engine.ConsumeInitiation(data)
	if err != nil {
		p.dropHandshakeMessageLocked("initiation", err, now)
		return
	}
	idx, err := p.allocateIndexLocked()
	if err != nil {
		p.dropHandshakeMessageLocked("initiation", err, now)
		return
	}
	resp, err := p.engine.CreateResponse(hs, idx)
	if err != nil {
		p.dropHandshakeMessageLocked("initiation", err, now)
		return
	}
	sendKey, recvKey, isInitiator, err := p.engine.DeriveTransportKeys(hs)
	if err != nil {
		p.dropHandshakeMessageLocked("initiation", err, now)
		return
	}
	sess, err := chacha20.NewSession(&sendKey, &recvKey, hs.LocalIndex(), hs.RemoteIndex(), isInitiator, now)
	if err != nil {
		p.dropHandshakeMessageLocked("initiation", err, now)
		return
	}

	// Our own initiator exchange, if any, stays in flight: responding to an
	// initiation is stateless, and whichever exchange completes first wins.

	// the responder's keypair waits in next until the initiator confirms it
	// by sending transport data under it
	if p.next != nil {
		p.next.Zeroize()
	}
	p.next = sess
	p.writeDatagramLocked(resp)
	p.stats.SetLastHandshake(now)
}

func (p *Peer) consumeResponseLocked(data []byte, now time.Time) {
	if p.handshake == nil {
		p.stats.DropRX()
		return
	}
	if err := p.engine.ConsumeResponse(p.handshake, data); err != nil {
		p.dropHandshakeMessageLocked("response", err, now)
		return
	}
	sendKey, recvKey, isInitiator, err := p.engine.DeriveTransportKeys(p.handshake)
	if err != nil {
		p.dropHandshakeMessageLocked("response", err, now)
		return
	}
	sess, err := chacha20.NewSession(&sendKey, &recvKey, p.handshake.LocalIndex(), p.handshake.RemoteIndex(), isInitiator, now)
	if err != nil {
		p.dropHandshakeMessageLocked("response", err, now)
		return
	}
	p.handshake = nil
	p.handshakeAttempts = 0
	p.surfacedPeerRejected = false
	p.wheel.Cancel(timerRekeyTimeout)

	// The consumed response proves the responder holds the new keys, so the
	// initiator switches to them right away. An unconfirmed responder
	// keypair in next demotes to previous: it may still decrypt traffic
	// already in flight from a crossed handshake.
	if p.previous != nil {
		p.previous.Zeroize()
	}
	if p.next != nil {
		p.previous = p.next
		p.next = nil
		if p.current != nil {
			p.current.Zeroize()
		}
	} else {
		p.previous = p.current
	}
	p.current = sess
	p.stats.SetLastHandshake(now)
	p.stats.SetRekeyDeadline(sess.CreatedAt().Add(settings.RekeyAfterTime))
	p.stats.SetSendCounter(sess.SendCounter())
	p.armRejectAfterLocked(now)

	p.setStateLocked(vpn.StateConnected, nil)
	p.flushStagedLocked(now)
	p.armKeepaliveLocked()
}

func (p *Peer) consumeCookieLocked(data []byte, now time.Time) {
	if p.handshake == nil {
		p.stats.DropRX()
		return
	}
	if err := p.engine.ConsumeCookieReply(data, p.handshake.LocalIndex()); err != nil {
		p.dropHandshakeMessageLocked("cookie reply", err, now)
		return
	}
	if exp, ok := p.engine.CookieExpiry(); ok {
		p.wheel.Arm(timerCookieExpiry, exp, p.onCookieExpiry)
	}
	if !p.surfacedPeerRejected {
		p.surfacedPeerRejected = true
		p.emitEventLocked(vpn.ErrPeerRejected)
	}
	if p.logger != nil {
		p.logger.Printf("peer is under load, retrying with cookie")
	}
	// the pending rekey-timeout will resend the initiation mac2-stamped
}

func (p *Peer) onCookieExpiry(time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine.ExpireCookie()
}

func (p *Peer) consumeTransportLocked(data []byte, now time.Time) ([]byte, error) {
	if len(data) < noise.MessageTransportSize {
		p.stats.DropRX()
		return nil, nil
	}
	receiver := binary.LittleEndian.Uint32(data[4:])
	sess := p.sessionByIndexLocked(receiver)
	if sess == nil {
		p.stats.DropRX()
		return nil, nil
	}
	inner, err := sess.Open(data, now)
	if err != nil {
		p.stats.DropRX()
		p.logDecryptFailureLocked(err, now)
		return nil, nil
	}

	// data under next proves the remote switched keys: promote it
	if sess == p.next {
		p.promoteNextLocked(now)
		p.setStateLocked(vpn.StateConnected, nil)
	}

	p.lastRecvAt = now
	p.stats.RecordRX(len(data))
	p.armKeepaliveLocked()

	if len(inner) == 0 {
		return nil, nil // keepalive
	}
	length, err := ip.PacketLength(inner)
	if err != nil {
		p.stats.DropRX()
		return nil, nil
	}
	packet := inner[:length]
	src, err := ip.SourceAddress(packet)
	if err != nil || !p.allowed.Contains(src) {
		p.stats.DropRX()
		return nil, nil
	}
	return packet, nil
}

/* session bookkeeping */

// maybePromoteNextLocked promotes an unconfirmed next keypair only when
// nothing else can carry traffic; a healthy current keeps sending until the
// remote confirms the new keys by using them.
func (p *Peer) maybePromoteNextLocked(now time.Time) {
	if p.next == nil {
		return
	}
	if p.current != nil && p.current.Usable(now) {
		return
	}
	p.promoteNextLocked(now)
}

func (p *Peer) promoteNextLocked(now time.Time) {
	if p.next == nil {
		return
	}
	if p.previous != nil {
		p.previous.Zeroize()
	}
	p.previous = p.current
	p.current = p.next
	p.next = nil

	if p.current.IsInitiator() {
		p.stats.SetRekeyDeadline(p.current.CreatedAt().Add(settings.RekeyAfterTime))
	} else {
		p.stats.SetRekeyDeadline(time.Time{})
	}
	p.stats.SetSendCounter(p.current.SendCounter())
	p.armRejectAfterLocked(now)
}

func (p *Peer) sessionByIndexLocked(idx uint32) *chacha20.Session {
	for _, s := range []*chacha20.Session{p.current, p.previous, p.next} {
		if s != nil && s.LocalIndex() == idx {
			return s
		}
	}
	return nil
}

func (p *Peer) allocateIndexLocked() (uint32, error) {
	for {
		idx, err := p.engine.NewIndex()
		if err != nil {
			return 0, err
		}
		if idx == 0 || p.sessionByIndexLocked(idx) != nil {
			continue
		}
		if p.handshake != nil && p.handshake.LocalIndex() == idx {
			continue
		}
		return idx, nil
	}
}

func (p *Peer) stagePacketLocked(packet []byte) {
	if len(p.staged) >= stagedQueueCap {
		p.staged = p.staged[1:]
		p.stats.DropTX()
	}
	p.staged = append(p.staged, append([]byte(nil), packet...))
}

func (p *Peer) flushStagedLocked(now time.Time) {
	staged := p.staged
	p.staged = nil
	if p.current == nil {
		for range staged {
			p.stats.DropTX()
		}
		return
	}
	for _, packet := range staged {
		if err := p.sealAndSendLocked(p.current, packet, now); err != nil {
			p.stats.DropTX()
		}
	}
}

func (p *Peer) sealAndSendLocked(sess *chacha20.Session, packet []byte, now time.Time) error {
	datagram, err := sess.Seal(packet, now)
	if err != nil {
		return err
	}
	p.writeDatagramLocked(datagram)
	p.lastSentAt = now
	p.stats.RecordTX(len(datagram))
	p.stats.SetSendCounter(sess.SendCounter())
	p.armKeepaliveLocked()
	return nil
}

func (p *Peer) writeDatagramLocked(datagram []byte) {
	if _, err := p.transport.Write(datagram); err != nil {
		if errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) {
			if !p.surfacedUnreachable {
				p.surfacedUnreachable = true
				p.emitEventLocked(fmt.Errorf("%w: %v", vpn.ErrNetworkUnreachable, err))
			}
		}
		if p.logger != nil {
			p.logger.Printf("udp send failed: %v", err)
		}
		return
	}
	p.surfacedUnreachable = false
}

/* timers */

func (p *Peer) armKeepaliveLocked() {
	if p.cfg.Keepalive == 0 {
		return
	}
	interval := time.Duration(p.cfg.Keepalive) * time.Second
	p.wheel.ArmAfter(timerKeepalive, interval, p.onKeepalive)
}

func (p *Peer) onKeepalive(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.cfg.Keepalive == 0 {
		return
	}
	interval := time.Duration(p.cfg.Keepalive) * time.Second
	if p.current == nil || !p.current.Usable(now) {
		p.beginHandshakeLocked(now)
		p.armKeepaliveLocked()
		return
	}
	if now.Sub(p.lastSentAt) >= interval {
		if err := p.sealAndSendLocked(p.current, nil, now); err != nil {
			p.stats.DropTX()
		}
	}
	p.armKeepaliveLocked()
}

func (p *Peer) armRekeyCheckLocked() {
	p.wheel.ArmAfter(timerRekeyCheck, rekeyCheckInterval, p.onRekeyCheck)
}

func (p *Peer) onRekeyCheck(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	if p.current != nil && p.current.ShouldRekey(now) && p.handshake == nil && p.next == nil {
		p.beginHandshakeLocked(now)
	}
	p.armRekeyCheckLocked()
}

func (p *Peer) armRejectAfterLocked(now time.Time) {
	var earliest time.Time
	for _, s := range []*chacha20.Session{p.current, p.previous} {
		if s == nil {
			continue
		}
		deadline := s.CreatedAt().Add(settings.RejectAfterTime)
		if earliest.IsZero() || deadline.Before(earliest) {
			earliest = deadline
		}
	}
	if earliest.IsZero() {
		p.wheel.Cancel(timerRejectAfter)
		return
	}
	p.wheel.Arm(timerRejectAfter, earliest, p.onRejectAfter)
}

func (p *Peer) onRejectAfter(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	if p.previous != nil && p.previous.Expired(now) {
		p.previous.Zeroize()
		p.previous = nil
	}
	if p.current != nil && p.current.Expired(now) {
		p.current.Zeroize()
		p.current = nil
		p.stats.SetRekeyDeadline(time.Time{})
	}
	p.armRejectAfterLocked(now)
}

/* state + logging */

func (p *Peer) setStateLocked(s vpn.State, err error) {
	if p.state == s && err == nil {
		return
	}
	p.state = s
	if p.onState != nil {
		p.onState(vpn.StateEvent{State: s, Err: err})
	}
}

func (p *Peer) emitEventLocked(err error) {
	if p.onState != nil {
		p.onState(vpn.StateEvent{State: p.state, Err: err})
	}
}

func (p *Peer) dropHandshakeMessageLocked(kind string, err error, now time.Time) {
	p.stats.DropRX()
	if p.logger != nil {
		p.logger.Printf("dropped %s: %v", kind, err)
	}
}

// logDecryptFailureLocked rate-limits the normal background noise of the
// internet: bad tags, replays and stale indices arrive constantly.
func (p *Peer) logDecryptFailureLocked(err error, now time.Time) {
	p.decryptFailures++
	if p.logger == nil {
		return
	}
	if now.Sub(p.lastDecryptLog) < time.Second {
		return
	}
	p.logger.Printf("dropped %d undecryptable transport packets (last: %v)", p.decryptFailures, err)
	p.decryptFailures = 0
	p.lastDecryptLog = now
}
