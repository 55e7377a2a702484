// Package devtun opens and drives a Linux TUN device: a layer-3 virtual
// network device that delivers and accepts raw IP datagrams with no
// link-layer framing. Unlike a TAP device it never sees Ethernet headers,
// which is what lets the tcp package treat every read as one IPv4 datagram.
package devtun

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/quadstack/tcpstack/internal"
)

// maxOpenAttempts bounds how many times Open retries TUNSETIFF against a
// transiently busy device name (e.g. a previous process's fd still closing).
const maxOpenAttempts = 5

// Device is an open TUN interface in IFF_TUN|IFF_NO_PI mode: reads and
// writes exchange bare IPv4 datagrams, no packet-info prefix.
type Device struct {
	fd   int
	name string
}

// Open creates or attaches to the named TUN device (e.g. "tun0") and
// optionally assigns it addr, bringing the link up. Requires CAP_NET_ADMIN.
func Open(name string, addr netip.Prefix) (*Device, error) {
	if len(name) >= unix.IFNAMSIZ {
		return nil, fmt.Errorf("devtun: name %q too long", name)
	}
	fd, err := unix.Open("/dev/net/tun", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("devtun: open /dev/net/tun: %w", err)
	}

	var ifr unix.Ifreq
	ifr.SetName(name)
	ifr.SetUint16(unix.IFF_TUN | unix.IFF_NO_PI)
	bo := internal.NewBackoff(internal.BackoffTCPConn)
	var ioctlErr error
	for attempt := 0; attempt < maxOpenAttempts; attempt++ {
		ioctlErr = unix.IoctlIfreq(fd, unix.TUNSETIFF, &ifr)
		if ioctlErr == nil || !errors.Is(ioctlErr, unix.EBUSY) {
			break
		}
		bo.Miss() // device name still torn down by a previous owner; back off and retry.
	}
	if ioctlErr != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("devtun: TUNSETIFF: %w", ioctlErr)
	}

	dev := &Device{fd: fd, name: ifr.Name()}
	if addr.IsValid() {
		if err := dev.configureAddr(addr); err != nil {
			dev.Close()
			return nil, err
		}
	}
	return dev, nil
}

// configureAddr shells out to the ip(8) tool, mirroring how the rest of the
// ecosystem's TUN/TAP helpers bring an interface up: there is no portable
// netlink wrapper in this module's dependency set, and ip(8) is always
// present alongside CAP_NET_ADMIN.
func (d *Device) configureAddr(addr netip.Prefix) error {
	if err := exec.Command("ip", "link", "set", "dev", d.name, "up").Run(); err != nil {
		return fmt.Errorf("devtun: ip link set up: %w", err)
	}
	if err := exec.Command("ip", "addr", "add", addr.String(), "dev", d.name).Run(); err != nil {
		return fmt.Errorf("devtun: ip addr add: %w", err)
	}
	return nil
}

// Name returns the interface name the kernel assigned (may differ from the
// requested name if it ended in '%d').
func (d *Device) Name() string { return d.name }

// Read blocks until one IPv4 datagram is available and copies it into buf.
func (d *Device) Read(buf []byte) (int, error) { return unix.Read(d.fd, buf) }

// Write transmits exactly one IPv4 datagram.
func (d *Device) Write(buf []byte) (int, error) { return unix.Write(d.fd, buf) }

// Close releases the device's file descriptor.
func (d *Device) Close() error { return unix.Close(d.fd) }
