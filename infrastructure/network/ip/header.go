package ip

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Raw IPv4/IPv6 header access for packets crossing the tunnel. Transport
// plaintexts are zero-padded to a 16-byte multiple, so the header's length
// field is the only truth for where a packet really ends.

// PacketLength returns the real length of the IP packet at the head of b:
// the IPv4 total-length field, or the IPv6 payload length plus the fixed
// 40-byte header. It fails when the claimed length does not fit in b.
func PacketLength(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("invalid packet: empty")
	}
	switch b[0] >> 4 {
	case 4:
		if len(b) < ipv4.HeaderLen {
			return 0, fmt.Errorf("invalid IPv4 header: too small (%d bytes)", len(b))
		}
		total := int(binary.BigEndian.Uint16(b[2:4]))
		if total < ipv4.HeaderLen || total > len(b) {
			return 0, fmt.Errorf("invalid IPv4 total length %d (buffer %d)", total, len(b))
		}
		return total, nil
	case 6:
		if len(b) < ipv6.HeaderLen {
			return 0, fmt.Errorf("invalid IPv6 header: too small (%d bytes)", len(b))
		}
		total := ipv6.HeaderLen + int(binary.BigEndian.Uint16(b[4:6]))
		if total > len(b) {
			return 0, fmt.Errorf("invalid IPv6 total length %d (buffer %d)", total, len(b))
		}
		return total, nil
	default:
		return 0, fmt.Errorf("invalid IP version: %d", b[0]>>4)
	}
}

// SourceAddress extracts the source address from an IPv4/IPv6 header.
func SourceAddress(b []byte) (netip.Addr, error) {
	if len(b) == 0 {
		return netip.Addr{}, fmt.Errorf("invalid packet: empty")
	}
	switch b[0] >> 4 {
	case 4:
		if len(b) < ipv4.HeaderLen {
			return netip.Addr{}, fmt.Errorf("invalid IPv4 header: too small (%d bytes)", len(b))
		}
		return netip.AddrFrom4([4]byte{b[12], b[13], b[14], b[15]}), nil
	case 6:
		if len(b) < ipv6.HeaderLen {
			return netip.Addr{}, fmt.Errorf("invalid IPv6 header: too small (%d bytes)", len(b))
		}
		var a16 [16]byte
		copy(a16[:], b[8:24])
		return netip.AddrFrom16(a16), nil
	default:
		return netip.Addr{}, fmt.Errorf("invalid IP version: %d", b[0]>>4)
	}
}

// DestinationAddress extracts the destination address from an IPv4/IPv6
// header. IPv4: bytes 16..20. IPv6: bytes 24..40.
func DestinationAddress(b []byte) (netip.Addr, error) {
	if len(b) == 0 {
		return netip.Addr{}, fmt.Errorf("invalid packet: empty")
	}
	switch b[0] >> 4 {
	case 4:
		if len(b) < ipv4.HeaderLen {
			return netip.Addr{}, fmt.Errorf("invalid IPv4 header: too small (%d bytes)", len(b))
		}
		return netip.AddrFrom4([4]byte{b[16], b[17], b[18], b[19]}), nil
	case 6:
		if len(b) < ipv6.HeaderLen {
			return netip.Addr{}, fmt.Errorf("invalid IPv6 header: too small (%d bytes)", len(b))
		}
		var a16 [16]byte
		copy(a16[:], b[24:40])
		return netip.AddrFrom16(a16), nil
	default:
		return netip.Addr{}, fmt.Errorf("invalid IP version: %d", b[0]>>4)
	}
}
