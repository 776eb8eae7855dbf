//go:build linux

package tun

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	apptun "synapseguard/application/network/tun"
)

const (
	ifNameSize = 16         // max interface name size, bytes
	tunSetIff  = 0x400454ca // ioctl to attach a tun/tap interface
	iffTun     = 0x0001
	iffNoPI    = 0x1000 // no packet information prefix
)

type ifreq struct {
	Name  [ifNameSize]byte
	Flags uint16
	_     [24]byte
}

// LinuxTunDevice is a raw /dev/net/tun file descriptor delivering one IP
// packet per read.
type LinuxTunDevice struct {
	file *os.File
}

// OpenLinuxTun attaches to (or creates) the named tun interface. The caller
// is responsible for addressing and link state; the core only moves packets.
func OpenLinuxTun(ifName string) (apptun.Device, error) {
	if len(ifName) >= ifNameSize {
		return nil, fmt.Errorf("interface name %q too long", ifName)
	}
	file, err := os.OpenFile("/dev/net/tun", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open /dev/net/tun: %w", err)
	}

	var req ifreq
	copy(req.Name[:], ifName)
	req.Flags = iffTun | iffNoPI

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, file.Fd(), uintptr(tunSetIff), uintptr(unsafe.Pointer(&req)))
	if errno != 0 {
		_ = file.Close()
		return nil, fmt.Errorf("ioctl TUNSETIFF failed: %v", errno)
	}

	return &LinuxTunDevice{file: file}, nil
}

func (d *LinuxTunDevice) Read(p []byte) (int, error)  { return d.file.Read(p) }
func (d *LinuxTunDevice) Write(p []byte) (int, error) { return d.file.Write(p) }
func (d *LinuxTunDevice) Close() error                { return d.file.Close() }
