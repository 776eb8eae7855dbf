package chacha20

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"synapseguard/infrastructure/settings"
)

// sessionPair builds two sessions wired back to back: what a seals, b opens.
func sessionPair(t *testing.T, now time.Time) (a, b *Session) {
	t.Helper()
	var k1, k2 [32]byte
	if _, err := rand.Read(k1[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	if _, err := rand.Read(k2[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}

	k1a, k2a := k1, k2
	a, err := NewSession(&k1a, &k2a, 100, 200, true, now)
	if err != nil {
		t.Fatalf("session a: %v", err)
	}
	k1b, k2b := k1, k2
	b, err = NewSession(&k2b, &k1b, 200, 100, false, now)
	if err != nil {
		t.Fatalf("session b: %v", err)
	}
	return a, b
}

func testPacket(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i)
	}
	return p
}

func TestSealOpenRoundTrip(t *testing.T) {
	now := time.Unix(1000, 0)
	a, b := sessionPair(t, now)

	for _, n := range []int{1, 15, 16, 17, 60, 1420} {
		packet := testPacket(n)
		datagram, err := a.Seal(packet, now)
		if err != nil {
			t.Fatalf("Seal(%d): %v", n, err)
		}
		plaintext, err := b.Open(datagram, now)
		if err != nil {
			t.Fatalf("Open(%d): %v", n, err)
		}
		if !bytes.Equal(plaintext[:n], packet) {
			t.Fatalf("round trip mismatch for %d bytes", n)
		}
		if len(plaintext)%settings.PaddingMultiple != 0 {
			t.Fatalf("plaintext length %d not padded to %d", len(plaintext), settings.PaddingMultiple)
		}
		for _, pad := range plaintext[n:] {
			if pad != 0 {
				t.Fatal("padding is not zero bytes")
			}
		}
	}
}

func TestSealCountersAreSequential(t *testing.T) {
	now := time.Unix(1000, 0)
	a, _ := sessionPair(t, now)
	for want := uint64(0); want < 32; want++ {
		datagram, err := a.Seal([]byte{0xAB}, now)
		if err != nil {
			t.Fatalf("Seal: %v", err)
		}
		got := binary.LittleEndian.Uint64(datagram[8:])
		if got != want {
			t.Fatalf("counter %d, want %d", got, want)
		}
	}
}

func TestSealHeaderLayout(t *testing.T) {
	now := time.Unix(1000, 0)
	a, _ := sessionPair(t, now)
	datagram, err := a.Seal(testPacket(3), now)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if binary.LittleEndian.Uint32(datagram) != 4 {
		t.Fatalf("type word %x, want 4", datagram[:4])
	}
	if binary.LittleEndian.Uint32(datagram[4:]) != 200 {
		t.Fatal("receiver index is not the remote index")
	}
	// 3 bytes pad to 16; total = 16 header + 16 payload + 16 tag
	if len(datagram) != 48 {
		t.Fatalf("datagram length %d, want 48", len(datagram))
	}
}

func TestSealEmptyKeepalive(t *testing.T) {
	now := time.Unix(1000, 0)
	a, b := sessionPair(t, now)
	datagram, err := a.Seal(nil, now)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(datagram) != transportMinSize {
		t.Fatalf("keepalive length %d, want %d", len(datagram), transportMinSize)
	}
	plaintext, err := b.Open(datagram, now)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(plaintext) != 0 {
		t.Fatalf("keepalive carried %d bytes", len(plaintext))
	}
}

func TestOpenRejectsReplay(t *testing.T) {
	now := time.Unix(1000, 0)
	a, b := sessionPair(t, now)
	datagram, err := a.Seal(testPacket(20), now)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	keep := append([]byte(nil), datagram...)
	if _, err := b.Open(datagram, now); err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := b.Open(keep, now); !errors.Is(err, ErrNonUniqueCounter) {
		t.Fatalf("expected replay rejection, got %v", err)
	}
}

func TestOpenAcceptsOutOfOrderWithinWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	a, b := sessionPair(t, now)

	var datagrams [][]byte
	for i := 0; i < 6; i++ {
		d, err := a.Seal(testPacket(10), now)
		if err != nil {
			t.Fatalf("Seal: %v", err)
		}
		datagrams = append(datagrams, d)
	}
	for _, i := range []int{3, 0, 2, 5, 1, 4} {
		if _, err := b.Open(datagrams[i], now); err != nil {
			t.Fatalf("out-of-order Open(%d): %v", i, err)
		}
	}
}

func TestOpenDetectsTampering(t *testing.T) {
	now := time.Unix(1000, 0)
	a, b := sessionPair(t, now)
	datagram, err := a.Seal(testPacket(40), now)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	// flip one bit in every region of the ciphertext+tag
	for _, offset := range []int{transportHeaderSize, len(datagram) / 2, len(datagram) - 1} {
		tampered := append([]byte(nil), datagram...)
		tampered[offset] ^= 0x40
		if _, err := b.Open(tampered, now); !errors.Is(err, ErrDecryptFailed) {
			t.Fatalf("offset %d: expected ErrDecryptFailed, got %v", offset, err)
		}
	}
	// the untampered original must still open: nothing was committed
	if _, err := b.Open(datagram, now); err != nil {
		t.Fatalf("original after tamper attempts: %v", err)
	}
}

func TestOpenRejectsWrongReceiver(t *testing.T) {
	now := time.Unix(1000, 0)
	a, b := sessionPair(t, now)
	datagram, err := a.Seal(testPacket(10), now)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	binary.LittleEndian.PutUint32(datagram[4:], 9999)
	if _, err := b.Open(datagram, now); !errors.Is(err, ErrReceiverMismatch) {
		t.Fatalf("expected ErrReceiverMismatch, got %v", err)
	}
}

func TestSealRefusesExhaustedCounter(t *testing.T) {
	now := time.Unix(1000, 0)
	a, _ := sessionPair(t, now)
	a.PreloadSendCounter(settings.RejectAfterMessages)
	if _, err := a.Seal(testPacket(10), now); !errors.Is(err, ErrCounterExhausted) {
		t.Fatalf("expected ErrCounterExhausted, got %v", err)
	}
}

func TestSealRefusesExpiredSession(t *testing.T) {
	created := time.Unix(1000, 0)
	a, _ := sessionPair(t, created)
	later := created.Add(settings.RejectAfterTime)
	if _, err := a.Seal(testPacket(10), later); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestShouldRekeyByCounter(t *testing.T) {
	now := time.Unix(1000, 0)
	a, b := sessionPair(t, now)
	if a.ShouldRekey(now) {
		t.Fatal("fresh session wants rekey")
	}
	a.PreloadSendCounter(settings.RekeyAfterMessages)
	if !a.ShouldRekey(now) {
		t.Fatal("initiator past RekeyAfterMessages must want rekey")
	}
	b.PreloadSendCounter(settings.RekeyAfterMessages)
	if b.ShouldRekey(now) {
		t.Fatal("responder must never rekey proactively")
	}
}

func TestShouldRekeyByTime(t *testing.T) {
	created := time.Unix(1000, 0)
	a, _ := sessionPair(t, created)
	if a.ShouldRekey(created.Add(settings.RekeyAfterTime - time.Second)) {
		t.Fatal("rekey wanted before RekeyAfterTime")
	}
	if !a.ShouldRekey(created.Add(settings.RekeyAfterTime)) {
		t.Fatal("rekey not wanted at RekeyAfterTime")
	}
}

func TestZeroizeRetiresSession(t *testing.T) {
	now := time.Unix(1000, 0)
	a, b := sessionPair(t, now)
	datagram, err := a.Seal(testPacket(10), now)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	b.Zeroize()
	if _, err := b.Open(datagram, now); !errors.Is(err, ErrSessionRetired) {
		t.Fatalf("expected ErrSessionRetired, got %v", err)
	}
	a.Zeroize()
	if _, err := a.Seal(testPacket(10), now); !errors.Is(err, ErrSessionRetired) {
		t.Fatalf("expected ErrSessionRetired on seal, got %v", err)
	}
	if a.Usable(now) {
		t.Fatal("retired session reports usable")
	}
}
