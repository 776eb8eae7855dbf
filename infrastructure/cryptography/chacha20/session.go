package chacha20

import (
	"crypto/cipher"
	"encoding/binary"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"synapseguard/infrastructure/cryptography/mem"
	"synapseguard/infrastructure/settings"
)

/* Due to limitations in Go and x/crypto there is no way to erase the key
 * schedule inside a cipher.AEAD. Zeroize drops the references and relies on
 * the inputs having been wiped by the caller; this weakens forward secrecy
 * only until the GC reclaims the AEAD state.
 */

const (
	transportHeaderSize = settings.TransportHeaderSize
	transportMinSize    = transportHeaderSize + chacha20poly1305.Overhead
)

// Session is one established transport keypair. Seal and Open are serialized
// by the owning peer; only the send counter and the retired flag are touched
// concurrently (by the stats snapshot), hence the atomics.
type Session struct {
	send        cipher.AEAD
	recv        cipher.AEAD
	localIndex  uint32
	remoteIndex uint32
	sendCounter atomic.Uint64
	window      *ReplayWindow
	created     time.Time
	isInitiator bool
	retired     atomic.Bool
}

// NewSession builds a session from freshly derived transport keys and wipes
// the key arguments. The receive window starts clean.
func NewSession(sendKey, recvKey *[32]byte, localIndex, remoteIndex uint32, isInitiator bool, now time.Time) (*Session, error) {
	send, err := chacha20poly1305.New(sendKey[:])
	if err != nil {
		return nil, err
	}
	recv, err := chacha20poly1305.New(recvKey[:])
	if err != nil {
		return nil, err
	}
	mem.Zero32(sendKey)
	mem.Zero32(recvKey)

	s := &Session{
		send:        send,
		recv:        recv,
		localIndex:  localIndex,
		remoteIndex: remoteIndex,
		window:      NewReplayWindow(settings.ReplayWindowSize),
		created:     now,
		isInitiator: isInitiator,
	}
	s.window.Reset()
	return s, nil
}

func (s *Session) LocalIndex() uint32   { return s.localIndex }
func (s *Session) RemoteIndex() uint32  { return s.remoteIndex }
func (s *Session) CreatedAt() time.Time { return s.created }
func (s *Session) IsInitiator() bool    { return s.isInitiator }

// SendCounter is the next counter Seal would use.
func (s *Session) SendCounter() uint64 { return s.sendCounter.Load() }

// PreloadSendCounter fast-forwards the counter; used when installing a
// session whose predecessor is being drained, and by tests.
func (s *Session) PreloadSendCounter(c uint64) { s.sendCounter.Store(c) }

// Usable reports whether the session may still seal packets.
func (s *Session) Usable(now time.Time) bool {
	return !s.retired.Load() &&
		s.sendCounter.Load() < settings.RejectAfterMessages &&
		now.Sub(s.created) < settings.RejectAfterTime
}

// ShouldRekey reports whether this side must start a fresh handshake.
// Only the initiator rekeys proactively; the responder rekeys by receiving.
func (s *Session) ShouldRekey(now time.Time) bool {
	if !s.isInitiator {
		return false
	}
	return s.sendCounter.Load() >= settings.RekeyAfterMessages ||
		now.Sub(s.created) >= settings.RekeyAfterTime
}

// Expired reports whether the session may no longer open packets either.
func (s *Session) Expired(now time.Time) bool {
	return now.Sub(s.created) >= settings.RejectAfterTime
}

// Seal encrypts one IP packet into a full transport datagram:
// 16-byte header, plaintext zero-padded to a 16-byte multiple, 16-byte tag.
// The counter is claimed atomically and never reused.
func (s *Session) Seal(packet []byte, now time.Time) ([]byte, error) {
	if s.retired.Load() {
		return nil, ErrSessionRetired
	}
	if now.Sub(s.created) >= settings.RejectAfterTime {
		return nil, ErrSessionExpired
	}

	counter := s.sendCounter.Add(1) - 1
	if counter >= settings.RejectAfterMessages {
		s.sendCounter.Store(settings.RejectAfterMessages)
		return nil, ErrCounterExhausted
	}

	paddedLen := len(packet)
	if rem := paddedLen % settings.PaddingMultiple; rem != 0 {
		paddedLen += settings.PaddingMultiple - rem
	}

	out := make([]byte, transportHeaderSize+paddedLen+chacha20poly1305.Overhead)
	binary.LittleEndian.PutUint32(out, noiseTransportType)
	binary.LittleEndian.PutUint32(out[4:], s.remoteIndex)
	binary.LittleEndian.PutUint64(out[8:], counter)

	var nonce [chacha20poly1305.NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[4:], counter)

	plaintext := out[transportHeaderSize : transportHeaderSize+paddedLen]
	copy(plaintext, packet)
	s.send.Seal(plaintext[:0], nonce[:], plaintext, nil)
	return out, nil
}

// Open authenticates and decrypts one transport datagram addressed to this
// session. The returned plaintext still carries the zero padding; the inner
// IP header's length field is the sole truth for the real payload length.
func (s *Session) Open(datagram []byte, now time.Time) ([]byte, error) {
	if len(datagram) < transportMinSize {
		return nil, ErrPacketTooShort
	}
	if s.retired.Load() {
		return nil, ErrSessionRetired
	}
	if s.Expired(now) {
		return nil, ErrSessionExpired
	}
	if binary.LittleEndian.Uint32(datagram[4:]) != s.localIndex {
		return nil, ErrReceiverMismatch
	}
	counter := binary.LittleEndian.Uint64(datagram[8:])

	// the window is one-based; wire counter 0 is slot 1
	if err := s.window.Check(counter + 1); err != nil {
		return nil, err
	}

	var nonce [chacha20poly1305.NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[4:], counter)

	ciphertext := datagram[transportHeaderSize:]
	plaintext, err := s.recv.Open(ciphertext[:0], nonce[:], ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	s.window.Accept(counter + 1)
	return plaintext, nil
}

// ResetWindow clears the receive window; called on promotion from handshake.
func (s *Session) ResetWindow() { s.window.Reset() }

// Zeroize retires the session. Further Seal/Open calls fail, the AEAD
// references are dropped and the window is cleared.
func (s *Session) Zeroize() {
	s.retired.Store(true)
	s.send = nil
	s.recv = nil
	s.window.Reset()
}

// noiseTransportType mirrors noise.MessageTransportType without importing the
// handshake package from the data plane.
const noiseTransportType = 4
