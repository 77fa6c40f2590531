//go:build linux

package netio

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/gopacket"
	"golang.org/x/sys/unix"
)

// ErrSocketClosed indicates an operation on a closed socket.
var ErrSocketClosed = errors.New("socket closed")

// PacketSocket implements Sender over a Linux AF_PACKET SOCK_RAW
// socket bound to a single interface, the replay engine's concrete
// realization of component C3's output side (spec.md section 6
// "Sender"). Socket setup follows the same open-then-configure shape
// as rawsock_linux.go/sender.go, generalized from a UDP destination
// bind to a link-layer interface bind.
//
// greplay targets Ethernet-framed interfaces, the overwhelming common
// case for AF_PACKET replay tooling; GetLinkType always reports
// Ethernet, and a capture file recorded against a different
// link-layer type is caught by the DLT-mismatch check
// (dispatch.ValidateDLT, called from runctl.Run) rather than by
// inspecting the interface itself.
type PacketSocket struct {
	mu      sync.Mutex
	fd      int
	ifIndex int
	ifName  string
	closed  bool
}

// NewPacketSocket opens an AF_PACKET raw socket bound to ifName, ready
// to transmit raw link-layer frames captured from a file whose
// link-layer type matches GetLinkType.
func NewPacketSocket(ifName string) (*PacketSocket, error) {
	iface, err := net.InterfaceByName(ifName)
	if err != nil {
		return nil, fmt.Errorf("resolve interface %s: %w", ifName, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, htons(unix.ETH_P_ALL))
	if err != nil {
		return nil, fmt.Errorf("open AF_PACKET socket for %s: %w", ifName, err)
	}

	sa := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind AF_PACKET socket to %s: %w", ifName, err)
	}

	return &PacketSocket{
		fd:      fd,
		ifIndex: iface.Index,
		ifName:  ifName,
	}, nil
}

// htons converts a 16-bit value to network byte order, matching the
// kernel's expectation for sockaddr_ll.sll_protocol.
func htons(v int) int {
	return int(uint16(v)<<8 | uint16(v)>>8) //nolint:gosec // G115: v is always a 16-bit protocol number
}

// Send transmits buf as a single raw link-layer frame.
func (p *PacketSocket) Send(buf []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("send on %s: %w", p.ifName, ErrSocketClosed)
	}
	p.mu.Unlock()

	sa := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  p.ifIndex,
	}
	if err := unix.Sendto(p.fd, buf, 0, sa); err != nil {
		return fmt.Errorf("send frame on %s: %w", p.ifName, err)
	}
	return nil
}

// GetLinkType reports the link-layer type this socket transmits as.
func (p *PacketSocket) GetLinkType() gopacket.LinkType {
	return gopacket.LinkTypeEthernet
}

// Abort shuts down the socket for reading and writing, causing a
// concurrently blocked Send's Sendto syscall to return an error
// instead of waiting on a full interface TX queue indefinitely
// (spec.md section 4.6 "requests the sender handles to unblock any
// in-progress syscall"). Unlike Close, the file descriptor itself
// stays open and valid for GetLinkType/Close to use afterward.
func (p *PacketSocket) Abort() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	if err := unix.Shutdown(p.fd, unix.SHUT_RDWR); err != nil {
		return fmt.Errorf("abort socket %s: %w", p.ifName, err)
	}
	return nil
}

// Close releases the underlying socket.
func (p *PacketSocket) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := unix.Close(p.fd); err != nil {
		return fmt.Errorf("close AF_PACKET socket %s: %w", p.ifName, err)
	}
	return nil
}
