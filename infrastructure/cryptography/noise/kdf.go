package noise

import (
	"crypto/hmac"
	"hash"

	"golang.org/x/crypto/blake2s"

	"synapseguard/infrastructure/cryptography/mem"
)

// The handshake key schedule runs on HKDF specialized to BLAKE2s:
// prk = HMAC(key, input); t1 = HMAC(prk, 0x01); t(i) = HMAC(prk, t(i-1) || i).

func newBlake2s() hash.Hash {
	h, _ := blake2s.New256(nil)
	return h
}

func hmacBlake2s(sum *[blake2s.Size]byte, key []byte, data ...[]byte) {
	mac := hmac.New(newBlake2s, key)
	for _, d := range data {
		mac.Write(d)
	}
	mac.Sum(sum[:0])
}

// KDF1 derives one 32-byte output from the chaining key and input.
func KDF1(t0 *[blake2s.Size]byte, key, input []byte) {
	var prk [blake2s.Size]byte
	hmacBlake2s(&prk, key, input)
	hmacBlake2s(t0, prk[:], []byte{0x1})
	mem.Zero32(&prk)
}

// KDF2 derives two 32-byte outputs.
func KDF2(t0, t1 *[blake2s.Size]byte, key, input []byte) {
	var prk [blake2s.Size]byte
	hmacBlake2s(&prk, key, input)
	hmacBlake2s(t0, prk[:], []byte{0x1})
	hmacBlake2s(t1, prk[:], t0[:], []byte{0x2})
	mem.Zero32(&prk)
}

// KDF3 derives three 32-byte outputs.
func KDF3(t0, t1, t2 *[blake2s.Size]byte, key, input []byte) {
	var prk [blake2s.Size]byte
	hmacBlake2s(&prk, key, input)
	hmacBlake2s(t0, prk[:], []byte{0x1})
	hmacBlake2s(t1, prk[:], t0[:], []byte{0x2})
	hmacBlake2s(t2, prk[:], t1[:], []byte{0x3})
	mem.Zero32(&prk)
}

func mixKey(dst, chainKey *[blake2s.Size]byte, data []byte) {
	KDF1(dst, chainKey[:], data)
}

func mixHash(dst, h *[blake2s.Size]byte, data []byte) {
	hash := newBlake2s()
	hash.Write(h[:])
	hash.Write(data)
	hash.Sum(dst[:0])
}
