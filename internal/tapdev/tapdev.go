// Package tapdev implements the tunnel's TAP framing (C4): attaching to a
// pre-existing TAP interface and performing non-blocking reads and
// blocking writes of raw Ethernet frames.
//
// Grounded on the teacher's infrastructure/tun_device/linux.go and
// network/ip/tun.go (both open /dev/net/tun and ioctl(TUNSETIFF)), adapted
// from IFF_TUN to IFF_TAP|IFF_NO_PI per the original tappet.c's tap_attach,
// and without the teacher's route/address configuration: this spec's TAP
// interface pre-exists and is administrator-configured (spec §6).
package tapdev

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	ifNameSize = unix.IFNAMSIZ
	tunDevice  = "/dev/net/tun"
)

// ifReq mirrors struct ifreq's name+flags prefix, the portion TUNSETIFF
// reads and writes.
type ifReq struct {
	Name  [ifNameSize]byte
	Flags uint16
	_     [22]byte // pad the trailing union to sizeof(struct ifreq) (40 bytes on 64-bit Linux)
}

// Device is an attached TAP interface.
type Device struct {
	f *os.File
}

// Attach opens /dev/net/tun and binds it to the named TAP interface, which
// must already exist (spec §6: "the interface must pre-exist and be
// configured by an administrator"). IFF_NO_PI disables the 4-byte
// packet-information header, so reads/writes carry raw Ethernet frames.
func Attach(name string) (*Device, error) {
	f, err := os.OpenFile(tunDevice, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("couldn't open %s: %w", tunDevice, err)
	}

	var req ifReq
	copy(req.Name[:], name)
	req.Flags = unix.IFF_TAP | unix.IFF_NO_PI

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(unix.TUNSETIFF), uintptr(unsafe.Pointer(&req))); errno != 0 {
		_ = f.Close()
		return nil, fmt.Errorf("couldn't attach to %s: %w", name, errno)
	}

	if err := unix.SetNonblock(int(f.Fd()), true); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("couldn't set %s non-blocking: %w", name, err)
	}

	return &Device{f: f}, nil
}

// Fd returns the attached descriptor, for use in the tunnel loop's single
// readiness wait.
func (d *Device) Fd() int {
	return int(d.f.Fd())
}

// Close detaches the device.
func (d *Device) Close() error {
	return d.f.Close()
}

// Status classifies the outcome of a Read call.
type Status int

const (
	ReadOK Status = iota
	ReadWouldBlock
)

// Read drains one pending Ethernet frame into buf without blocking (spec
// §4.4: "reads must drain to avoid backpressure in the kernel ring"). The
// descriptor is already non-blocking from Attach; a read returning EAGAIN
// means the kernel ring is empty for now.
func (d *Device) Read(buf []byte) (int, Status, error) {
	n, err := unix.Read(int(d.f.Fd()), buf)
	if err == nil {
		return n, ReadOK, nil
	}
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return 0, ReadWouldBlock, nil
	}
	return 0, ReadOK, fmt.Errorf("tap read failed: %w", err)
}

// Write puts the descriptor into blocking mode and writes frame in full, so
// no frame is ever dropped for lack of kernel buffer space (spec §4.4:
// "writes must not drop frames").
func (d *Device) Write(frame []byte) error {
	if err := unix.SetNonblock(int(d.f.Fd()), false); err != nil {
		return fmt.Errorf("couldn't set %s blocking for write: %w", d.f.Name(), err)
	}
	defer func() {
		_ = unix.SetNonblock(int(d.f.Fd()), true)
	}()

	if _, err := unix.Write(int(d.f.Fd()), frame); err != nil {
		return fmt.Errorf("tap write failed: %w", err)
	}
	return nil
}
