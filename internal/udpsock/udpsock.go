// Package udpsock implements the tunnel's UDP framing (C3): datagrams
// carrying [nonce‖ciphertext] with no length prefix, path-MTU discovery
// pinned to "do" so oversize sends fail locally instead of fragmenting, and
// a tagged result type in place of the original's int-overloaded return
// codes (spec Design Note).
//
// Grounded on the teacher's infrastructure/network/server_udp_adapter.go
// (a reused fixed-size read buffer plus ReadMsgUDPAddrPort/
// WriteToUDPAddrPort) and on util.c's udp_socket(server, role), which binds
// for the listener role and connects for the initiator role from one
// constructor.
package udpsock

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// MaxDatagram bounds the fixed read buffer (spec §3: "fixed-size ... buffers
// (≥2048 bytes)"); it comfortably covers any Ethernet frame plus AEAD
// overhead and nonce.
const MaxDatagram = 65536

// SendStatus classifies the outcome of a Send call.
type SendStatus int

const (
	SendOK SendStatus = iota
	SendPMTUExceeded
	SendNetUnreachable
)

// RecvStatus classifies the outcome of a Recv call.
type RecvStatus int

const (
	RecvOK RecvStatus = iota
	RecvWouldBlock
	RecvTransient
)

// Socket wraps a UDP connection configured for this tunnel's wire format.
type Socket struct {
	conn  *net.UDPConn
	rawFD int
	buf   [MaxDatagram]byte
	oob   [64]byte
}

// Fd returns the underlying socket's file descriptor, for use in the
// tunnel loop's single readiness wait (spec §5: "exactly one suspension
// point").
func (s *Socket) Fd() int {
	return s.rawFD
}

// NewSocket creates a UDP socket for one of the two roles. The listener
// role binds to local (remote is ignored) and leaves the peer to be
// discovered from the first authenticated datagram; the initiator role
// ignores local, and connects to remote from an ephemeral local port so
// that the kernel filters stray traffic from other sources.
func NewSocket(local netip.AddrPort, remote netip.AddrPort, isListener bool) (*Socket, error) {
	var conn *net.UDPConn
	var err error

	if isListener {
		conn, err = net.ListenUDP(udpNetwork(local), net.UDPAddrFromAddrPort(local))
	} else {
		conn, err = net.DialUDP(udpNetwork(remote), nil, net.UDPAddrFromAddrPort(remote))
	}
	if err != nil {
		return nil, fmt.Errorf("can't create UDP socket: %w", err)
	}

	if err := setPMTUDiscoverDo(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("can't set path-MTU discovery mode: %w", err)
	}

	fd, err := rawFd(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("can't obtain socket descriptor: %w", err)
	}

	return &Socket{conn: conn, rawFD: fd}, nil
}

func rawFd(conn *net.UDPConn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	ctrlErr := raw.Control(func(v uintptr) { fd = int(v) })
	if ctrlErr != nil {
		return 0, ctrlErr
	}
	return fd, nil
}

func udpNetwork(addr netip.AddrPort) string {
	if addr.Addr().Is4() {
		return "udp4"
	}
	return "udp6"
}

// setPMTUDiscoverDo sets IP_MTU_DISCOVER to IP_PMTUDISC_DO, so oversize
// outbound datagrams return EMSGSIZE locally rather than being fragmented
// or silently dropped on path (spec §4.3).
func setPMTUDiscoverDo(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, unix.IP_PMTUDISC_DO)
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sockErr
}

// Close closes the underlying socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// Send writes [nonce‖ciphertext] as a single datagram to peer. On a
// connected (initiator) socket the datagram goes to the connected address.
func (s *Socket) Send(nonce [24]byte, ciphertext []byte, peer netip.AddrPort) (SendStatus, error) {
	frame := s.buf[:0]
	frame = append(frame, nonce[:]...)
	frame = append(frame, ciphertext...)

	var err error
	if peer.IsValid() && s.conn.RemoteAddr() == nil {
		_, err = s.conn.WriteToUDPAddrPort(frame, peer)
	} else {
		_, err = s.conn.Write(frame)
	}
	if err == nil {
		return SendOK, nil
	}

	switch {
	case errors.Is(err, unix.EMSGSIZE):
		return SendPMTUExceeded, nil
	case errors.Is(err, unix.ENETUNREACH), errors.Is(err, unix.EHOSTUNREACH):
		return SendNetUnreachable, nil
	default:
		return SendOK, fmt.Errorf("udp send failed: %w", err)
	}
}

// Recv reads one pending datagram into separate nonce and ciphertext
// buffers without blocking, along with the sender's address. n is the
// number of ciphertext bytes read (excluding the nonce).
//
// net.UDPConn only returns early when a deadline is set — without one,
// ReadMsgUDPAddrPort parks the calling goroutine until a datagram arrives
// instead of surfacing EAGAIN, so an already-expired deadline is armed
// before every read to make this call genuinely non-blocking (spec §4.3).
func (s *Socket) Recv(nonceOut *[24]byte, ciphertextOut []byte) (n int, status RecvStatus, from netip.AddrPort, err error) {
	if err := s.conn.SetReadDeadline(time.Now()); err != nil {
		return 0, RecvTransient, netip.AddrPort{}, fmt.Errorf("couldn't arm read deadline: %w", err)
	}

	total, _, flags, addr, readErr := s.conn.ReadMsgUDPAddrPort(s.buf[:], s.oob[:])
	if readErr != nil {
		if errors.Is(readErr, unix.EAGAIN) || errors.Is(readErr, unix.EWOULDBLOCK) {
			return 0, RecvWouldBlock, netip.AddrPort{}, nil
		}
		var opErr *net.OpError
		if errors.As(readErr, &opErr) && opErr.Timeout() {
			return 0, RecvWouldBlock, netip.AddrPort{}, nil
		}
		return 0, RecvTransient, netip.AddrPort{}, fmt.Errorf("udp recv failed: %w", readErr)
	}

	if flags&syscall.MSG_TRUNC != 0 {
		return 0, RecvTransient, netip.AddrPort{}, nil
	}
	if total == 0 {
		return 0, RecvTransient, netip.AddrPort{}, nil
	}
	if total < 24 {
		return 0, RecvTransient, netip.AddrPort{}, nil
	}
	if len(ciphertextOut) < total-24 {
		return 0, RecvTransient, netip.AddrPort{}, nil
	}

	copy(nonceOut[:], s.buf[:24])
	copy(ciphertextOut, s.buf[24:total])

	return total - 24, RecvOK, addr, nil
}
