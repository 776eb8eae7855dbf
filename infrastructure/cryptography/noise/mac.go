package noise

import (
	"crypto/hmac"
	"time"

	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/chacha20poly1305"

	"synapseguard/infrastructure/cryptography/mem"
	"synapseguard/infrastructure/settings"
)

// CookieGenerator stamps mac1/mac2 onto outbound handshake messages and
// consumes cookie replies. mac1 is always present; mac2 is zeros unless a
// cookie fresher than CookieRefreshTime is held.
type CookieGenerator struct {
	mac1Key       [blake2s.Size]byte
	encryptionKey [chacha20poly1305.KeySize]byte

	cookie      [blake2s.Size128]byte
	cookieSet   time.Time
	hasLastMAC1 bool
	lastMAC1    [blake2s.Size128]byte

	now func() time.Time
}

// NewCookieGenerator derives the mac1 and cookie-decryption keys from the
// remote peer's static public key.
func NewCookieGenerator(remoteStatic [32]byte, now func() time.Time) *CookieGenerator {
	if now == nil {
		now = time.Now
	}
	g := &CookieGenerator{now: now}

	hash := newBlake2s()
	hash.Write([]byte(LabelMAC1))
	hash.Write(remoteStatic[:])
	hash.Sum(g.mac1Key[:0])

	hash = newBlake2s()
	hash.Write([]byte(LabelCookie))
	hash.Write(remoteStatic[:])
	hash.Sum(g.encryptionKey[:0])

	return g
}

// AddMacs fills the trailing two 16-byte mac fields of a marshalled
// initiation or response in place and remembers mac1 for cookie binding.
func (g *CookieGenerator) AddMacs(msg []byte) {
	smac2 := len(msg) - blake2s.Size128
	smac1 := smac2 - blake2s.Size128

	mac1 := msg[smac1:smac2]
	mac2 := msg[smac2:]

	mac, _ := blake2s.New128(g.mac1Key[:])
	mac.Write(msg[:smac1])
	mac.Sum(mac1[:0])

	copy(g.lastMAC1[:], mac1)
	g.hasLastMAC1 = true

	if g.now().Sub(g.cookieSet) > settings.CookieRefreshTime {
		for i := range mac2 {
			mac2[i] = 0
		}
		return
	}

	mac, _ = blake2s.New128(g.cookie[:])
	mac.Write(msg[:smac2])
	mac.Sum(mac2[:0])
}

// ConsumeReply decrypts a cookie reply bound to the last sent mac1 and stores
// the cookie for subsequent retries.
func (g *CookieGenerator) ConsumeReply(msg *MessageCookieReply) error {
	if !g.hasLastMAC1 {
		return ErrNoLastMAC1
	}
	var cookie [blake2s.Size128]byte
	aead, _ := chacha20poly1305.NewX(g.encryptionKey[:])
	if _, err := aead.Open(cookie[:0], msg.Nonce[:], msg.Cookie[:], g.lastMAC1[:]); err != nil {
		return ErrInvalidCookie
	}
	g.cookie = cookie
	g.cookieSet = g.now()
	return nil
}

// HasFreshCookie reports whether a mac2-capable cookie is currently held.
func (g *CookieGenerator) HasFreshCookie() bool {
	return !g.cookieSet.IsZero() && g.now().Sub(g.cookieSet) <= settings.CookieRefreshTime
}

// ExpireCookie drops the stored cookie.
func (g *CookieGenerator) ExpireCookie() {
	g.cookie = [blake2s.Size128]byte{}
	g.cookieSet = time.Time{}
}

// Zeroize clears derived keys and the stored cookie.
func (g *CookieGenerator) Zeroize() {
	mem.Zero32(&g.mac1Key)
	mem.Zero32(&g.encryptionKey)
	g.ExpireCookie()
	g.hasLastMAC1 = false
	mem.ZeroBytes(g.lastMAC1[:])
}

// CookieChecker verifies mac1 on inbound handshake messages. It is keyed by
// our own static public key, which is what the remote peer macs with.
type CookieChecker struct {
	mac1Key [blake2s.Size]byte
}

// NewCookieChecker derives the mac1 verification key from the local static
// public key.
func NewCookieChecker(localStatic [32]byte) *CookieChecker {
	c := &CookieChecker{}
	hash := newBlake2s()
	hash.Write([]byte(LabelMAC1))
	hash.Write(localStatic[:])
	hash.Sum(c.mac1Key[:0])
	return c
}

// CheckMAC1 verifies the mac1 field of a marshalled initiation or response.
// Stateless and cheap; it runs before any DH work.
func (c *CookieChecker) CheckMAC1(msg []byte) bool {
	smac2 := len(msg) - blake2s.Size128
	smac1 := smac2 - blake2s.Size128
	if smac1 < 0 {
		return false
	}

	var mac1 [blake2s.Size128]byte
	mac, _ := blake2s.New128(c.mac1Key[:])
	mac.Write(msg[:smac1])
	mac.Sum(mac1[:0])

	return hmac.Equal(mac1[:], msg[smac1:smac2])
}
