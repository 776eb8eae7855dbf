//go:build !linux

package tun

import (
	wgtun "golang.zx2c4.com/wireguard/tun"

	apptun "synapseguard/application/network/tun"
	"synapseguard/infrastructure/settings"
)

// OpenDevice creates a tun interface through the wireguard/tun driver and
// wraps it in the allocation-free adapter.
func OpenDevice(name string, mtu int) (apptun.Device, error) {
	if mtu <= 0 {
		mtu = settings.DefaultMTUIPv4
	}
	dev, err := wgtun.CreateTUN(name, mtu)
	if err != nil {
		return nil, err
	}
	return NewWgTunAdapter(dev), nil
}
