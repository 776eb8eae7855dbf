package primitives

import (
	"crypto/rand"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/curve25519"

	"synapseguard/infrastructure/cryptography/mem"
)

// Curve25519 key handling shared by the handshake and control-plane code
// paths. All private keys are clamped before use; an all-zero shared secret
// (produced by a low-order public key) is rejected so the handshake aborts.

// ClampPrivateKey applies the Curve25519 clamping rules in place:
// the three low bits of byte 0 are cleared, bit 254 is set, bit 255 cleared.
func ClampPrivateKey(k *[32]byte) {
	k[0] &= 248
	k[31] = (k[31] & 127) | 64
}

// NewPrivateKey draws a fresh clamped private key from r (crypto/rand.Reader
// in production; a seeded reader in deterministic tests).
func NewPrivateKey(r io.Reader) ([32]byte, error) {
	var k [32]byte
	if _, err := io.ReadFull(r, k[:]); err != nil {
		return k, err
	}
	ClampPrivateKey(&k)
	return k, nil
}

// PublicKey computes the Curve25519 public key for a private key.
func PublicKey(priv [32]byte) ([32]byte, error) {
	var pub [32]byte
	out, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return pub, err
	}
	copy(pub[:], out)
	return pub, nil
}

// SharedSecret computes the Curve25519 shared secret between a private and a
// remote public key. curve25519.X25519 refuses an all-zero result, which is
// exactly the low-order-point rejection the protocol requires.
func SharedSecret(priv, pub [32]byte) ([32]byte, error) {
	var ss [32]byte
	out, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return ss, err
	}
	copy(ss[:], out)
	return ss, nil
}

// RandomUint32 draws a session index from r (crypto/rand.Reader in
// production; a seeded reader in deterministic tests).
func RandomUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// RandomBytes fills buf from the OS CSPRNG.
func RandomBytes(buf []byte) error {
	_, err := io.ReadFull(rand.Reader, buf)
	return err
}

// StaticIdentity is the long-lived local Curve25519 identity. It is created
// at tunnel bring-up and zeroized at tear-down.
type StaticIdentity struct {
	PrivateKey [32]byte
	PublicKey  [32]byte
}

// NewStaticIdentity clamps priv and derives the matching public key.
func NewStaticIdentity(priv [32]byte) (StaticIdentity, error) {
	ClampPrivateKey(&priv)
	pub, err := PublicKey(priv)
	if err != nil {
		return StaticIdentity{}, err
	}
	return StaticIdentity{PrivateKey: priv, PublicKey: pub}, nil
}

// Zeroize overwrites the identity's key material.
func (id *StaticIdentity) Zeroize() {
	mem.Zero32(&id.PrivateKey)
	mem.Zero32(&id.PublicKey)
}
