package noise

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.zx2c4.com/wireguard/tai64n"

	"synapseguard/infrastructure/cryptography/mem"
	"synapseguard/infrastructure/cryptography/primitives"
	"synapseguard/infrastructure/settings"
)

type handshakeState int

const (
	handshakeZeroed = handshakeState(iota)
	handshakeInitiationCreated
	handshakeInitiationConsumed
	handshakeResponseCreated
	handshakeResponseConsumed
)

var (
	initialChainKey [blake2s.Size]byte
	initialHash     [blake2s.Size]byte
	zeroNonce       [chacha20poly1305.NonceSize]byte
)

func init() {
	initialChainKey = blake2s.Sum256([]byte(Construction))
	mixHash(&initialHash, &initialChainKey, []byte(Identifier))
}

// Handshake is the state of one in-progress Noise IKpsk2 exchange. It is a
// move-only value: once transport keys are derived (or the exchange is
// abandoned) Zero wipes it.
type Handshake struct {
	state           handshakeState
	hash            [blake2s.Size]byte
	chainKey        [blake2s.Size]byte
	localEphemeral  [32]byte
	remoteEphemeral [32]byte
	localIndex      uint32
	remoteIndex     uint32
	startedAt       time.Time
}

// LocalIndex is the random 32-bit session index this side chose.
func (hs *Handshake) LocalIndex() uint32 { return hs.localIndex }

// RemoteIndex is the session index the remote side announced.
func (hs *Handshake) RemoteIndex() uint32 { return hs.remoteIndex }

// StartedAt is when the exchange began.
func (hs *Handshake) StartedAt() time.Time { return hs.startedAt }

// Zero wipes all secret handshake state. The session indices survive so the
// caller can still address the keypair derived from this exchange.
func (hs *Handshake) Zero() {
	mem.Zero32(&hs.chainKey)
	mem.Zero32(&hs.hash)
	mem.Zero32(&hs.localEphemeral)
	mem.Zero32(&hs.remoteEphemeral)
	hs.state = handshakeZeroed
}

// Engine drives the Noise IKpsk2 handshake against the single configured
// remote peer. All methods are pure state transitions over Handshake values;
// the engine performs no I/O. It is not safe for concurrent use; the owning
// peer serializes calls.
type Engine struct {
	localStaticPriv         [32]byte
	localStaticPub          [32]byte
	remoteStatic            [32]byte
	presharedKey            [32]byte
	precomputedStaticStatic [32]byte

	gen     *CookieGenerator
	checker *CookieChecker

	// Highest TAI64N timestamp accepted from the remote static key; an
	// initiation must carry a strictly newer one. This is the protocol's
	// replay and rate defense for initiations.
	lastTimestamp tai64n.Timestamp

	rand      io.Reader
	now       func() time.Time
	timestamp func() tai64n.Timestamp
}

// NewEngine precomputes the static-static shared secret and the mac keys.
// A remote static key of low order is rejected here, before any traffic.
func NewEngine(identity primitives.StaticIdentity, remoteStatic, presharedKey [32]byte) (*Engine, error) {
	ss, err := primitives.SharedSecret(identity.PrivateKey, remoteStatic)
	if err != nil {
		return nil, fmt.Errorf("noise: static-static: %w", err)
	}
	e := &Engine{
		localStaticPriv:         identity.PrivateKey,
		localStaticPub:          identity.PublicKey,
		remoteStatic:            remoteStatic,
		presharedKey:            presharedKey,
		precomputedStaticStatic: ss,
		checker:                 NewCookieChecker(identity.PublicKey),
		rand:                    rand.Reader,
		now:                     time.Now,
		timestamp:               tai64n.Now,
	}
	e.gen = NewCookieGenerator(remoteStatic, func() time.Time { return e.now() })
	return e, nil
}

// NewIndex draws a random local session index.
func (e *Engine) NewIndex() (uint32, error) {
	return primitives.RandomUint32(e.rand)
}

// CookieExpiry reports when the held cookie stops being usable for mac2.
func (e *Engine) CookieExpiry() (time.Time, bool) {
	if !e.gen.HasFreshCookie() {
		return time.Time{}, false
	}
	return e.gen.cookieSet.Add(settings.CookieRefreshTime), true
}

// ExpireCookie drops the held cookie so mac2 stamping stops once it ages out.
func (e *Engine) ExpireCookie() {
	e.gen.ExpireCookie()
}

// CreateInitiation starts a fresh exchange as initiator and returns the new
// handshake state together with the marshalled 148-byte message, macs
// included.
func (e *Engine) CreateInitiation(localIndex uint32) (*Handshake, []byte, error) {
	hs := &Handshake{
		hash:       initialHash,
		chainKey:   initialChainKey,
		localIndex: localIndex,
		startedAt:  e.now(),
	}
	mixHash(&hs.hash, &hs.hash, e.remoteStatic[:])

	ephPriv, err := primitives.NewPrivateKey(e.rand)
	if err != nil {
		return nil, nil, fmt.Errorf("noise: ephemeral: %w", err)
	}
	ephPub, err := primitives.PublicKey(ephPriv)
	if err != nil {
		return nil, nil, fmt.Errorf("noise: ephemeral public: %w", err)
	}
	hs.localEphemeral = ephPriv

	msg := MessageInitiation{
		Type:      MessageInitiationType,
		Sender:    localIndex,
		Ephemeral: ephPub,
	}
	mixKey(&hs.chainKey, &hs.chainKey, msg.Ephemeral[:])
	mixHash(&hs.hash, &hs.hash, msg.Ephemeral[:])

	ss, err := primitives.SharedSecret(ephPriv, e.remoteStatic)
	if err != nil {
		hs.Zero()
		return nil, nil, fmt.Errorf("noise: ephemeral-static: %w", err)
	}
	var key [chacha20poly1305.KeySize]byte
	KDF2(&hs.chainKey, &key, hs.chainKey[:], ss[:])
	mem.Zero32(&ss)

	aead, _ := chacha20poly1305.New(key[:])
	aead.Seal(msg.Static[:0], zeroNonce[:], e.localStaticPub[:], hs.hash[:])
	mixHash(&hs.hash, &hs.hash, msg.Static[:])

	KDF2(&hs.chainKey, &key, hs.chainKey[:], e.precomputedStaticStatic[:])
	ts := e.timestamp()
	aead, _ = chacha20poly1305.New(key[:])
	aead.Seal(msg.Timestamp[:0], zeroNonce[:], ts[:], hs.hash[:])
	mixHash(&hs.hash, &hs.hash, msg.Timestamp[:])
	mem.Zero32(&key)

	hs.state = handshakeInitiationCreated

	buf := make([]byte, MessageInitiationSize)
	_ = msg.Marshal(buf)
	e.gen.AddMacs(buf)
	return hs, buf, nil
}

// ConsumeInitiation validates an inbound 148-byte initiation as responder
// and, if acceptable, returns handshake state ready for CreateResponse.
// Every rejection leaves the replay ledger untouched.
func (e *Engine) ConsumeInitiation(raw []byte) (*Handshake, error) {
	if len(raw) != MessageInitiationSize {
		return nil, ErrMessageLength
	}
	if MessageTypeOf(raw) != MessageInitiationType {
		return nil, ErrMessageType
	}
	if !e.checker.CheckMAC1(raw) {
		return nil, ErrInvalidMAC1
	}

	var msg MessageInitiation
	_ = msg.Unmarshal(raw)

	var (
		hash     [blake2s.Size]byte
		chainKey [blake2s.Size]byte
		key      [chacha20poly1305.KeySize]byte
	)
	mixHash(&hash, &initialHash, e.localStaticPub[:])
	mixHash(&hash, &hash, msg.Ephemeral[:])
	mixKey(&chainKey, &initialChainKey, msg.Ephemeral[:])

	ss, err := primitives.SharedSecret(e.localStaticPriv, msg.Ephemeral)
	if err != nil {
		return nil, fmt.Errorf("noise: static-ephemeral: %w", err)
	}
	KDF2(&chainKey, &key, chainKey[:], ss[:])
	mem.Zero32(&ss)

	var peerPK [32]byte
	aead, _ := chacha20poly1305.New(key[:])
	if _, err := aead.Open(peerPK[:0], zeroNonce[:], msg.Static[:], hash[:]); err != nil {
		return nil, ErrDecrypt
	}
	mixHash(&hash, &hash, msg.Static[:])

	if peerPK != e.remoteStatic {
		return nil, ErrUnknownPeer
	}

	KDF2(&chainKey, &key, chainKey[:], e.precomputedStaticStatic[:])
	var ts tai64n.Timestamp
	aead, _ = chacha20poly1305.New(key[:])
	if _, err := aead.Open(ts[:0], zeroNonce[:], msg.Timestamp[:], hash[:]); err != nil {
		return nil, ErrDecrypt
	}
	mixHash(&hash, &hash, msg.Timestamp[:])
	mem.Zero32(&key)

	if !ts.After(e.lastTimestamp) {
		return nil, ErrReplayedTimestamp
	}
	e.lastTimestamp = ts

	return &Handshake{
		state:           handshakeInitiationConsumed,
		hash:            hash,
		chainKey:        chainKey,
		remoteIndex:     msg.Sender,
		remoteEphemeral: msg.Ephemeral,
		startedAt:       e.now(),
	}, nil
}

// CreateResponse completes the exchange as responder: it mixes the ephemeral
// DHs and the preshared key and returns the marshalled 92-byte response.
func (e *Engine) CreateResponse(hs *Handshake, localIndex uint32) ([]byte, error) {
	if hs.state != handshakeInitiationConsumed {
		return nil, ErrInvalidState
	}
	hs.localIndex = localIndex

	ephPriv, err := primitives.NewPrivateKey(e.rand)
	if err != nil {
		return nil, fmt.Errorf("noise: ephemeral: %w", err)
	}
	ephPub, err := primitives.PublicKey(ephPriv)
	if err != nil {
		return nil, fmt.Errorf("noise: ephemeral public: %w", err)
	}
	hs.localEphemeral = ephPriv

	msg := MessageResponse{
		Type:      MessageResponseType,
		Sender:    localIndex,
		Receiver:  hs.remoteIndex,
		Ephemeral: ephPub,
	}
	mixHash(&hs.hash, &hs.hash, msg.Ephemeral[:])
	mixKey(&hs.chainKey, &hs.chainKey, msg.Ephemeral[:])

	ss, err := primitives.SharedSecret(ephPriv, hs.remoteEphemeral)
	if err != nil {
		hs.Zero()
		return nil, fmt.Errorf("noise: ephemeral-ephemeral: %w", err)
	}
	mixKey(&hs.chainKey, &hs.chainKey, ss[:])
	mem.Zero32(&ss)

	ss, err = primitives.SharedSecret(ephPriv, e.remoteStatic)
	if err != nil {
		hs.Zero()
		return nil, fmt.Errorf("noise: ephemeral-static: %w", err)
	}
	mixKey(&hs.chainKey, &hs.chainKey, ss[:])
	mem.Zero32(&ss)

	var (
		tau [blake2s.Size]byte
		key [chacha20poly1305.KeySize]byte
	)
	KDF3(&hs.chainKey, &tau, &key, hs.chainKey[:], e.presharedKey[:])
	mixHash(&hs.hash, &hs.hash, tau[:])
	mem.Zero32(&tau)

	aead, _ := chacha20poly1305.New(key[:])
	aead.Seal(msg.Empty[:0], zeroNonce[:], nil, hs.hash[:])
	mixHash(&hs.hash, &hs.hash, msg.Empty[:])
	mem.Zero32(&key)

	hs.state = handshakeResponseCreated

	buf := make([]byte, MessageResponseSize)
	_ = msg.Marshal(buf)
	e.gen.AddMacs(buf)
	return buf, nil
}

// ConsumeResponse validates an inbound 92-byte response against the in-flight
// initiator handshake. On success the handshake is ready for key derivation.
func (e *Engine) ConsumeResponse(hs *Handshake, raw []byte) error {
	if len(raw) != MessageResponseSize {
		return ErrMessageLength
	}
	if MessageTypeOf(raw) != MessageResponseType {
		return ErrMessageType
	}
	if hs.state != handshakeInitiationCreated {
		return ErrInvalidState
	}
	if !e.checker.CheckMAC1(raw) {
		return ErrInvalidMAC1
	}

	var msg MessageResponse
	_ = msg.Unmarshal(raw)
	if msg.Receiver != hs.localIndex {
		return ErrIndexMismatch
	}

	var (
		hash     [blake2s.Size]byte
		chainKey [blake2s.Size]byte
	)
	mixHash(&hash, &hs.hash, msg.Ephemeral[:])
	mixKey(&chainKey, &hs.chainKey, msg.Ephemeral[:])

	ss, err := primitives.SharedSecret(hs.localEphemeral, msg.Ephemeral)
	if err != nil {
		return fmt.Errorf("noise: ephemeral-ephemeral: %w", err)
	}
	mixKey(&chainKey, &chainKey, ss[:])
	mem.Zero32(&ss)

	ss, err = primitives.SharedSecret(e.localStaticPriv, msg.Ephemeral)
	if err != nil {
		return fmt.Errorf("noise: static-ephemeral: %w", err)
	}
	mixKey(&chainKey, &chainKey, ss[:])
	mem.Zero32(&ss)

	var (
		tau [blake2s.Size]byte
		key [chacha20poly1305.KeySize]byte
	)
	KDF3(&chainKey, &tau, &key, chainKey[:], e.presharedKey[:])
	mixHash(&hash, &hash, tau[:])
	mem.Zero32(&tau)

	aead, _ := chacha20poly1305.New(key[:])
	if _, err := aead.Open(nil, zeroNonce[:], msg.Empty[:], hash[:]); err != nil {
		mem.Zero32(&key)
		return ErrDecrypt
	}
	mixHash(&hash, &hash, msg.Empty[:])
	mem.Zero32(&key)

	hs.hash = hash
	hs.chainKey = chainKey
	hs.remoteIndex = msg.Sender
	hs.state = handshakeResponseConsumed
	mem.Zero32(&hash)
	mem.Zero32(&chainKey)
	return nil
}

// ConsumeCookieReply decrypts a 64-byte cookie reply addressed to the
// in-flight handshake and stores the cookie for the next retry.
func (e *Engine) ConsumeCookieReply(raw []byte, expectedReceiver uint32) error {
	if len(raw) != MessageCookieReplySize {
		return ErrMessageLength
	}
	if MessageTypeOf(raw) != MessageCookieReplyType {
		return ErrMessageType
	}
	var msg MessageCookieReply
	_ = msg.Unmarshal(raw)
	if msg.Receiver != expectedReceiver {
		return ErrIndexMismatch
	}
	return e.gen.ConsumeReply(&msg)
}

// DeriveTransportKeys finishes the exchange: it splits the chaining key into
// the send/recv transport keys (swapped for the responder) and wipes the
// handshake. isInitiator tells the caller which rotation policy applies.
func (e *Engine) DeriveTransportKeys(hs *Handshake) (sendKey, recvKey [32]byte, isInitiator bool, err error) {
	switch hs.state {
	case handshakeResponseConsumed:
		KDF2(&sendKey, &recvKey, hs.chainKey[:], nil)
		isInitiator = true
	case handshakeResponseCreated:
		KDF2(&recvKey, &sendKey, hs.chainKey[:], nil)
		isInitiator = false
	default:
		err = ErrInvalidState
		return
	}
	hs.Zero()
	return
}

// Zeroize wipes the engine's long-lived secrets.
func (e *Engine) Zeroize() {
	mem.Zero32(&e.localStaticPriv)
	mem.Zero32(&e.presharedKey)
	mem.Zero32(&e.precomputedStaticStatic)
	e.gen.Zeroize()
}
