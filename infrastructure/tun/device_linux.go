//go:build linux

package tun

import apptun "synapseguard/application/network/tun"

// OpenDevice attaches to the named tun interface via the raw /dev/net/tun
// path; the mtu is configured by the platform layer, not here.
func OpenDevice(name string, _ int) (apptun.Device, error) {
	return OpenLinuxTun(name)
}
