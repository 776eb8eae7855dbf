package noise

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/poly1305"
	"golang.zx2c4.com/wireguard/tai64n"
)

// Wire constants fixed by the protocol. The construction and identifier seed
// the chaining key and transcript hash; the labels key the mac and cookie
// derivations.
const (
	Construction = "Noise_IKpsk2_25519_ChaChaPoly_BLAKE2s"
	Identifier   = "WireGuard v1 zx2c4 Jason@zx2c4.com"
	LabelMAC1    = "mac1----"
	LabelCookie  = "cookie--"
)

const (
	MessageInitiationType  = 1
	MessageResponseType    = 2
	MessageCookieReplyType = 3
	MessageTransportType   = 4
)

const (
	MessageInitiationSize      = 148
	MessageResponseSize        = 92
	MessageCookieReplySize     = 64
	MessageTransportHeaderSize = 16
	MessageTransportSize       = MessageTransportHeaderSize + poly1305.TagSize
	MessageKeepaliveSize       = MessageTransportSize
)

// Messages are marshalled little-endian; the single type byte plus three
// reserved zero bytes are treated as one 32-bit type word.

type MessageInitiation struct {
	Type      uint32
	Sender    uint32
	Ephemeral [32]byte
	Static    [32 + poly1305.TagSize]byte
	Timestamp [tai64n.TimestampSize + poly1305.TagSize]byte
	MAC1      [blake2s.Size128]byte
	MAC2      [blake2s.Size128]byte
}

type MessageResponse struct {
	Type      uint32
	Sender    uint32
	Receiver  uint32
	Ephemeral [32]byte
	Empty     [poly1305.TagSize]byte
	MAC1      [blake2s.Size128]byte
	MAC2      [blake2s.Size128]byte
}

type MessageCookieReply struct {
	Type     uint32
	Receiver uint32
	Nonce    [chacha20poly1305.NonceSizeX]byte
	Cookie   [blake2s.Size128 + poly1305.TagSize]byte
}

// MessageTypeOf reports the type word of a datagram, or 0 when it is too
// short or carries non-zero reserved bytes.
func MessageTypeOf(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	t := binary.LittleEndian.Uint32(b)
	if t > MessageTransportType {
		return 0
	}
	return t
}

func (msg *MessageInitiation) Marshal(b []byte) error {
	if len(b) != MessageInitiationSize {
		return ErrMessageLength
	}
	binary.LittleEndian.PutUint32(b, msg.Type)
	binary.LittleEndian.PutUint32(b[4:], msg.Sender)
	copy(b[8:], msg.Ephemeral[:])
	copy(b[40:], msg.Static[:])
	copy(b[88:], msg.Timestamp[:])
	copy(b[116:], msg.MAC1[:])
	copy(b[132:], msg.MAC2[:])
	return nil
}

func (msg *MessageInitiation) Unmarshal(b []byte) error {
	if len(b) != MessageInitiationSize {
		return ErrMessageLength
	}
	msg.Type = binary.LittleEndian.Uint32(b)
	msg.Sender = binary.LittleEndian.Uint32(b[4:])
	copy(msg.Ephemeral[:], b[8:])
	copy(msg.Static[:], b[40:])
	copy(msg.Timestamp[:], b[88:])
	copy(msg.MAC1[:], b[116:])
	copy(msg.MAC2[:], b[132:])
	return nil
}

func (msg *MessageResponse) Marshal(b []byte) error {
	if len(b) != MessageResponseSize {
		return ErrMessageLength
	}
	binary.LittleEndian.PutUint32(b, msg.Type)
	binary.LittleEndian.PutUint32(b[4:], msg.Sender)
	binary.LittleEndian.PutUint32(b[8:], msg.Receiver)
	copy(b[12:], msg.Ephemeral[:])
	copy(b[44:], msg.Empty[:])
	copy(b[60:], msg.MAC1[:])
	copy(b[76:], msg.MAC2[:])
	return nil
}

func (msg *MessageResponse) Unmarshal(b []byte) error {
	if len(b) != MessageResponseSize {
		return ErrMessageLength
	}
	msg.Type = binary.LittleEndian.Uint32(b)
	msg.Sender = binary.LittleEndian.Uint32(b[4:])
	msg.Receiver = binary.LittleEndian.Uint32(b[8:])
	copy(msg.Ephemeral[:], b[12:])
	copy(msg.Empty[:], b[44:])
	copy(msg.MAC1[:], b[60:])
	copy(msg.MAC2[:], b[76:])
	return nil
}

func (msg *MessageCookieReply) Marshal(b []byte) error {
	if len(b) != MessageCookieReplySize {
		return ErrMessageLength
	}
	binary.LittleEndian.PutUint32(b, msg.Type)
	binary.LittleEndian.PutUint32(b[4:], msg.Receiver)
	copy(b[8:], msg.Nonce[:])
	copy(b[32:], msg.Cookie[:])
	return nil
}

func (msg *MessageCookieReply) Unmarshal(b []byte) error {
	if len(b) != MessageCookieReplySize {
		return ErrMessageLength
	}
	msg.Type = binary.LittleEndian.Uint32(b)
	msg.Receiver = binary.LittleEndian.Uint32(b[4:])
	copy(msg.Nonce[:], b[8:])
	copy(msg.Cookie[:], b[32:])
	return nil
}
