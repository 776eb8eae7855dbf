package settings

import (
	"encoding/base64"
	"fmt"
	"net/netip"

	"synapseguard/domain/vpn"
	"synapseguard/infrastructure/cryptography/primitives"
)

// TunnelConfig is the host-facing tunnel description. Keys arrive base64
// encoded; how the struct was loaded (file, UI, RPC) is irrelevant here.
type TunnelConfig struct {
	PrivateKey                 string         `json:"PrivateKey"`
	PeerPublicKey              string         `json:"PeerPublicKey"`
	PresharedKey               string         `json:"PresharedKey,omitempty"`
	Endpoint                   string         `json:"Endpoint"`
	TunnelAddresses            []netip.Prefix `json:"TunnelAddresses"`
	DNS                        []netip.Addr   `json:"DNS,omitempty"`
	AllowedIPs                 []netip.Prefix `json:"AllowedIPs"`
	PersistentKeepaliveSeconds uint16         `json:"PersistentKeepaliveSeconds,omitempty"`
	MTU                        int            `json:"MTU,omitempty"`
	KillSwitch                 bool           `json:"KillSwitch,omitempty"`

	// ExcludedApps is opaque to the core; it is carried through for the
	// platform split-tunnel layer.
	ExcludedApps []string `json:"ExcludedApps,omitempty"`
}

// Runtime is the validated, decoded form the core operates on.
type Runtime struct {
	Identity        primitives.StaticIdentity
	RemotePublic    [32]byte
	PresharedKey    [32]byte
	Endpoint        netip.AddrPort
	TunnelAddresses []netip.Prefix
	DNS             []netip.Addr
	AllowedIPs      []netip.Prefix
	Keepalive       uint16
	MTU             int
	KillSwitch      bool
}

// Parse validates the configuration and decodes its key material. All
// failures wrap vpn.ErrConfigInvalid and abort tunnel bring-up synchronously.
func (c TunnelConfig) Parse() (Runtime, error) {
	var rt Runtime

	priv, err := decodeKey(c.PrivateKey, "PrivateKey")
	if err != nil {
		return rt, err
	}
	rt.Identity, err = primitives.NewStaticIdentity(priv)
	if err != nil {
		return rt, fmt.Errorf("%w: PrivateKey: %v", vpn.ErrConfigInvalid, err)
	}

	rt.RemotePublic, err = decodeKey(c.PeerPublicKey, "PeerPublicKey")
	if err != nil {
		return rt, err
	}
	if rt.RemotePublic == ([32]byte{}) {
		return rt, fmt.Errorf("%w: PeerPublicKey is all zeros", vpn.ErrConfigInvalid)
	}

	if c.PresharedKey != "" {
		rt.PresharedKey, err = decodeKey(c.PresharedKey, "PresharedKey")
		if err != nil {
			return rt, err
		}
	}

	rt.Endpoint, err = netip.ParseAddrPort(c.Endpoint)
	if err != nil {
		return rt, fmt.Errorf("%w: Endpoint %q: %v", vpn.ErrConfigInvalid, c.Endpoint, err)
	}
	if rt.Endpoint.Port() == 0 {
		return rt, fmt.Errorf("%w: Endpoint port is required", vpn.ErrConfigInvalid)
	}

	if len(c.TunnelAddresses) == 0 {
		return rt, fmt.Errorf("%w: at least one tunnel address is required", vpn.ErrConfigInvalid)
	}
	rt.TunnelAddresses = c.TunnelAddresses

	if len(c.AllowedIPs) == 0 {
		return rt, fmt.Errorf("%w: at least one allowed-ips prefix is required", vpn.ErrConfigInvalid)
	}
	for _, p := range c.AllowedIPs {
		if !p.IsValid() {
			return rt, fmt.Errorf("%w: invalid allowed-ips prefix", vpn.ErrConfigInvalid)
		}
	}
	rt.AllowedIPs = c.AllowedIPs

	rt.DNS = c.DNS
	rt.Keepalive = c.PersistentKeepaliveSeconds
	rt.MTU = ResolveMTU(c.MTU, rt.Endpoint.Addr())
	rt.KillSwitch = c.KillSwitch
	return rt, nil
}

// Zeroize clears the runtime key material.
func (rt *Runtime) Zeroize() {
	rt.Identity.Zeroize()
	for i := range rt.PresharedKey {
		rt.PresharedKey[i] = 0
	}
}

func decodeKey(s, field string) ([32]byte, error) {
	var k [32]byte
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("%w: %s is not valid base64: %v", vpn.ErrConfigInvalid, field, err)
	}
	if len(raw) != 32 {
		return k, fmt.Errorf("%w: %s must decode to 32 bytes, got %d", vpn.ErrConfigInvalid, field, len(raw))
	}
	copy(k[:], raw)
	return k, nil
}
