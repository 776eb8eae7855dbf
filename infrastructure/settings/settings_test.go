package settings

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/netip"
	"testing"

	"synapseguard/domain/vpn"
)

func randomKeyB64(t *testing.T) string {
	t.Helper()
	var k [32]byte
	if _, err := rand.Read(k[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return base64.StdEncoding.EncodeToString(k[:])
}

func validConfig(t *testing.T) TunnelConfig {
	t.Helper()
	return TunnelConfig{
		PrivateKey:      randomKeyB64(t),
		PeerPublicKey:   randomKeyB64(t),
		Endpoint:        "203.0.113.1:51820",
		TunnelAddresses: []netip.Prefix{netip.MustParsePrefix("10.8.0.2/32")},
		AllowedIPs:      []netip.Prefix{netip.MustParsePrefix("0.0.0.0/0")},
	}
}

func TestParseValidConfig(t *testing.T) {
	rt, err := validConfig(t).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rt.Identity.PublicKey == ([32]byte{}) {
		t.Fatal("expected derived public key")
	}
	if rt.MTU != DefaultMTUIPv4 {
		t.Fatalf("expected IPv4 default MTU %d, got %d", DefaultMTUIPv4, rt.MTU)
	}
}

func TestParseIPv6EndpointMTUDefault(t *testing.T) {
	cfg := validConfig(t)
	cfg.Endpoint = "[2001:db8::1]:51820"
	rt, err := cfg.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rt.MTU != DefaultMTUIPv6 {
		t.Fatalf("expected IPv6 default MTU %d, got %d", DefaultMTUIPv6, rt.MTU)
	}
}

func TestParseExplicitMTUWins(t *testing.T) {
	cfg := validConfig(t)
	cfg.MTU = 1280
	rt, err := cfg.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rt.MTU != 1280 {
		t.Fatalf("expected MTU 1280, got %d", rt.MTU)
	}
}

func TestParseRejectsBadKeys(t *testing.T) {
	cases := map[string]func(*TunnelConfig){
		"not base64":        func(c *TunnelConfig) { c.PrivateKey = "%%%" },
		"short key":         func(c *TunnelConfig) { c.PrivateKey = base64.StdEncoding.EncodeToString([]byte("short")) },
		"zero peer key":     func(c *TunnelConfig) { c.PeerPublicKey = base64.StdEncoding.EncodeToString(make([]byte, 32)) },
		"missing endpoint":  func(c *TunnelConfig) { c.Endpoint = "" },
		"zero port":         func(c *TunnelConfig) { c.Endpoint = "203.0.113.1:0" },
		"no tunnel address": func(c *TunnelConfig) { c.TunnelAddresses = nil },
		"no allowed ips":    func(c *TunnelConfig) { c.AllowedIPs = nil },
	}
	for name, mutate := range cases {
		cfg := validConfig(t)
		mutate(&cfg)
		if _, err := cfg.Parse(); !errors.Is(err, vpn.ErrConfigInvalid) {
			t.Fatalf("%s: expected ErrConfigInvalid, got %v", name, err)
		}
	}
}

func TestRuntimeZeroize(t *testing.T) {
	cfg := validConfig(t)
	cfg.PresharedKey = randomKeyB64(t)
	rt, err := cfg.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rt.Zeroize()
	if rt.Identity.PrivateKey != ([32]byte{}) || rt.PresharedKey != ([32]byte{}) {
		t.Fatal("key material not zeroized")
	}
}

func TestResolveMTU(t *testing.T) {
	v4 := netip.MustParseAddr("192.0.2.1")
	v6 := netip.MustParseAddr("2001:db8::1")
	if got := ResolveMTU(0, v4); got != DefaultMTUIPv4 {
		t.Fatalf("v4 default: got %d", got)
	}
	if got := ResolveMTU(0, v6); got != DefaultMTUIPv6 {
		t.Fatalf("v6 default: got %d", got)
	}
	if got := ResolveMTU(9000, v4); got != 9000 {
		t.Fatalf("explicit: got %d", got)
	}
}
