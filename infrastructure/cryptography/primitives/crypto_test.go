package primitives

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestClampPrivateKey(t *testing.T) {
	var k [32]byte
	for i := range k {
		k[i] = 0xFF
	}
	ClampPrivateKey(&k)
	if k[0]&7 != 0 {
		t.Fatalf("low bits not cleared: %08b", k[0])
	}
	if k[31]&64 == 0 {
		t.Fatalf("bit 254 not set: %08b", k[31])
	}
	if k[31]&128 != 0 {
		t.Fatalf("bit 255 not cleared: %08b", k[31])
	}
}

func TestNewPrivateKeyIsClamped(t *testing.T) {
	k, err := NewPrivateKey(rand.Reader)
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	if k[0]&7 != 0 || k[31]&64 == 0 || k[31]&128 != 0 {
		t.Fatal("generated key is not clamped")
	}
}

func TestSharedSecretAgreement(t *testing.T) {
	aPriv, err := NewPrivateKey(rand.Reader)
	if err != nil {
		t.Fatalf("a priv: %v", err)
	}
	bPriv, err := NewPrivateKey(rand.Reader)
	if err != nil {
		t.Fatalf("b priv: %v", err)
	}
	aPub, _ := PublicKey(aPriv)
	bPub, _ := PublicKey(bPriv)

	ab, err := SharedSecret(aPriv, bPub)
	if err != nil {
		t.Fatalf("a-b shared: %v", err)
	}
	ba, err := SharedSecret(bPriv, aPub)
	if err != nil {
		t.Fatalf("b-a shared: %v", err)
	}
	if !bytes.Equal(ab[:], ba[:]) {
		t.Fatal("shared secrets disagree")
	}
}

func TestSharedSecretRejectsLowOrderPoint(t *testing.T) {
	priv, err := NewPrivateKey(rand.Reader)
	if err != nil {
		t.Fatalf("priv: %v", err)
	}
	var zeroPoint [32]byte // order-1 point; X25519 output is all zeros
	if _, err := SharedSecret(priv, zeroPoint); err == nil {
		t.Fatal("expected low-order point rejection")
	}
}

func TestStaticIdentityZeroize(t *testing.T) {
	priv, err := NewPrivateKey(rand.Reader)
	if err != nil {
		t.Fatalf("priv: %v", err)
	}
	id, err := NewStaticIdentity(priv)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if id.PublicKey == ([32]byte{}) {
		t.Fatal("expected non-zero public key")
	}
	id.Zeroize()
	if id.PrivateKey != ([32]byte{}) || id.PublicKey != ([32]byte{}) {
		t.Fatal("identity not zeroized")
	}
}
