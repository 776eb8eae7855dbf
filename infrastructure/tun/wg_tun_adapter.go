package tun

import (
	"errors"

	wgtun "golang.zx2c4.com/wireguard/tun"

	apptun "synapseguard/application/network/tun"
	"synapseguard/infrastructure/settings"
)

// headerOffset is the per-packet headroom wireguard/tun drivers expect in
// front of the IP payload (utun protocol family header on darwin, virtio
// space on linux).
const headerOffset = 4

// WgTunAdapter wraps a wireguard/tun Device and is allocation-free in the
// steady state: all buffers and slice headers are created once and reused.
type WgTunAdapter struct {
	device wgtun.Device

	readBuffer  []byte
	writeBuffer []byte

	// Pre-built slice headers reused on every Read/Write call.
	readVec  [][]byte
	writeVec [][]byte
	sizes    []int
}

// NewWgTunAdapter allocates the buffers once and prepares reusable slice
// headers.
func NewWgTunAdapter(dev wgtun.Device) apptun.Device {
	rb := make([]byte, settings.MaxPacketLengthBytes+headerOffset)
	wb := make([]byte, settings.MaxPacketLengthBytes+headerOffset)
	return &WgTunAdapter{
		device:      dev,
		readBuffer:  rb,
		writeBuffer: wb,
		readVec:     [][]byte{rb},
		writeVec:    [][]byte{wb}, // resliced per packet
		sizes:       []int{0},
	}
}

// Read copies one clean IP packet (without the driver header) into p.
func (a *WgTunAdapter) Read(p []byte) (int, error) {
	a.sizes[0] = 0

	if _, err := a.device.Read(a.readVec, a.sizes, headerOffset); err != nil {
		return 0, err
	}
	n := a.sizes[0]
	if n > len(p) {
		return 0, errors.New("destination slice too small")
	}
	copy(p, a.readBuffer[headerOffset:headerOffset+n])
	return n, nil
}

// Write prepends the driver header and transmits p without allocations.
func (a *WgTunAdapter) Write(p []byte) (int, error) {
	if len(p)+headerOffset > len(a.writeBuffer) {
		return 0, errors.New("packet too large")
	}
	copy(a.writeBuffer[headerOffset:], p)
	a.writeVec[0] = a.writeBuffer[:headerOffset+len(p)]
	if _, err := a.device.Write(a.writeVec, headerOffset); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (a *WgTunAdapter) Close() error {
	return a.device.Close()
}
