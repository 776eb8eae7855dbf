package settings

import (
	"net/netip"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// TransportHeaderSize is type+reserved+receiver+counter of a data message.
	TransportHeaderSize = 16

	// TransportOverhead is the per-packet cost of the tunnel on the wire:
	// transport header plus AEAD tag.
	TransportOverhead = TransportHeaderSize + chacha20poly1305.Overhead

	// DefaultMTUIPv4 and DefaultMTUIPv6 fit a 1500-byte path MTU with room
	// to spare: 1500 minus the outer IP+UDP headers and TransportOverhead
	// leaves 1440 bytes over IPv4 and 1420 over IPv6.
	DefaultMTUIPv4 = 1420
	DefaultMTUIPv6 = 1400

	// MaxPacketLengthBytes bounds a single IP packet read from the tun
	// device, headroom included.
	MaxPacketLengthBytes = 65535
)

// ResolveMTU picks the interface MTU: an explicit positive value wins,
// otherwise the default for the endpoint's address family.
func ResolveMTU(mtu int, endpoint netip.Addr) int {
	if mtu > 0 {
		return mtu
	}
	if endpoint.Is4() || endpoint.Is4In6() {
		return DefaultMTUIPv4
	}
	return DefaultMTUIPv6
}

// UDPBufferSize returns the receive-buffer size needed for one sealed packet:
// the MTU rounded up to PaddingMultiple, plus TransportOverhead.
func UDPBufferSize(mtu int) int {
	if rem := mtu % PaddingMultiple; rem != 0 {
		mtu += PaddingMultiple - rem
	}
	return mtu + TransportOverhead
}
