package udp_listener

import (
	"fmt"
	"net"
	"net/netip"
)

// Dialer opens the tunnel's UDP socket towards the peer endpoint.
type Dialer interface {
	Establish() (*net.UDPConn, error)
}

type UdpDialer struct {
	endpoint netip.AddrPort
}

func NewUdpDialer(endpoint netip.AddrPort) Dialer {
	return &UdpDialer{endpoint: endpoint}
}

// Establish connects the socket so reads and writes are bound to the peer;
// datagrams from other sources never reach the tunnel.
func (u *UdpDialer) Establish() (*net.UDPConn, error) {
	conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(u.endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to dial udp endpoint %s: %w", u.endpoint, err)
	}
	return conn, nil
}
