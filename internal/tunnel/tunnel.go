// Package tunnel implements the tunnel loop (C5): the conductor that
// couples a TAP device to a UDP socket through the encrypt/decrypt/nonce
// pipeline, including peer-address learning, replay defence, and
// keepalive/MTU feedback.
//
// Grounded on the teacher's application.TunWorker (HandleTun/HandleTransport
// direction split) and network/keepalive/keepalive.go (ticker-driven
// liveness), collapsed per spec §5 into one single-threaded, readiness-driven
// loop with exactly one suspension point (golang.org/x/sys/unix.Poll over
// the UDP socket and, once the peer is known, the TAP descriptor), per the
// spec's deliberate simplification of the teacher's two-epoll-instance,
// multi-goroutine design.
package tunnel

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"

	"github.com/amenonsen/tappet/internal/crypto"
	"github.com/amenonsen/tappet/internal/logging"
	"github.com/amenonsen/tappet/internal/nonce"
	"github.com/amenonsen/tappet/internal/tapdev"
	"github.com/amenonsen/tappet/internal/udpsock"
)

const (
	// frameBufSize bounds the reused plaintext/ciphertext buffers (spec §3:
	// "fixed-size plaintext and ciphertext buffers (≥2048 bytes)").
	frameBufSize = 2048

	// ethernetMinFrame is the boundary below which a decrypted plaintext is
	// a control message rather than an Ethernet frame (spec §4.5.1).
	ethernetMinFrame = 64

	// controlTag marks a keepalive/MTU-report control message.
	controlTag = 0xFE

	// defaultWaitMillis is the readiness-wait timeout (spec §4.5: "10-second
	// timeout").
	defaultWaitMillis = 10_000
)

// udpConn and tapConn are the narrow interfaces the loop depends on, so
// tests can substitute fakes without touching real sockets or TAP devices.
type udpConn interface {
	Fd() int
	Send(nonce [24]byte, ciphertext []byte, peer netip.AddrPort) (udpsock.SendStatus, error)
	Recv(nonceOut *[24]byte, ciphertextOut []byte) (n int, status udpsock.RecvStatus, from netip.AddrPort, err error)
	Close() error
}

type tapConn interface {
	Fd() int
	Read(buf []byte) (int, tapdev.Status, error)
	Write(frame []byte) error
	Close() error
}

// Config wires a Loop's collaborators.
type Config struct {
	IsListener bool
	// ServerAddr is the CLI-supplied address: the local bind address for a
	// listener, or the remote address to connect to for an initiator.
	ServerAddr netip.AddrPort

	Logger logging.Logger

	// WaitMillis overrides the readiness-wait timeout; zero selects the
	// spec's 10-second default. Tests use a short value.
	WaitMillis int
}

// Loop is the single-threaded tunnel conductor. All fields are owned
// exclusively by the goroutine that calls Run (spec §5: "no shared mutable
// state to synchronise").
type Loop struct {
	udp udpConn
	tap tapConn

	crypto *crypto.Context
	nonces *nonce.Manager
	logger logging.Logger

	waitMillis int

	ournonce   [24]byte
	theirnonce [24]byte
	peer       netip.AddrPort

	biggestTried uint16
	biggestSent  uint16
	biggestRcvd  uint16

	plaintextBuf  [frameBufSize]byte
	ciphertextBuf [frameBufSize]byte
	tapReadBuf    [frameBufSize]byte
}

// New constructs a Loop. ournonce is generated here (spec §4.5 Startup:
// "Acquire prefix, construct ournonce, precompute K"); prefix acquisition
// and context construction happen in the caller (cmd/tappet), which
// acquires the prefix before any device is opened, since that step can
// fail and abort startup.
func New(cfg Config, udp udpConn, tap tapConn, cryptoCtx *crypto.Context, nonces *nonce.Manager) (*Loop, error) {
	l := &Loop{
		udp:        udp,
		tap:        tap,
		crypto:     cryptoCtx,
		nonces:     nonces,
		logger:     cfg.Logger,
		waitMillis: cfg.WaitMillis,
	}
	if l.waitMillis <= 0 {
		l.waitMillis = defaultWaitMillis
	}
	if l.logger == nil {
		l.logger = logging.NewStdLogger()
	}

	ournonce, err := nonces.Generate()
	if err != nil {
		return nil, fmt.Errorf("couldn't generate initial nonce: %w", err)
	}
	l.ournonce = ournonce

	if !cfg.IsListener {
		l.peer = cfg.ServerAddr
	}

	return l, nil
}

// Run drives the loop until ctx is cancelled or a fatal error occurs. A nil
// return means ctx was cancelled; any other return is fatal (spec §7).
func (l *Loop) Run(ctx context.Context) error {
	if l.peer.IsValid() {
		if err := l.sendKeepalive(); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		fds := l.pollFds()
		n, err := unix.Poll(fds, l.waitMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("readiness wait failed: %w", err)
		}

		if n == 0 {
			if l.peer.IsValid() {
				if err := l.sendKeepalive(); err != nil {
					return err
				}
			}
			continue
		}

		if fds[0].Revents&unix.POLLIN != 0 {
			if err := l.drainUDP(); err != nil {
				return err
			}
		}
		if len(fds) > 1 && fds[1].Revents&unix.POLLIN != 0 {
			if err := l.drainTAP(); err != nil {
				return err
			}
		}
	}
}

// pollFds builds the wait set: the UDP socket is always included; the TAP
// descriptor only once a peer is known (spec §4.5: "the listener does not
// forward outbound frames until a peer has authenticated itself").
func (l *Loop) pollFds() []unix.PollFd {
	fds := []unix.PollFd{{Fd: int32(l.udp.Fd()), Events: unix.POLLIN}}
	if l.peer.IsValid() {
		fds = append(fds, unix.PollFd{Fd: int32(l.tap.Fd()), Events: unix.POLLIN})
	}
	return fds
}

// drainUDP services the UDP-readable branch (spec §4.5.1): drain
// non-blockingly, checking replay and authentication before committing any
// state.
func (l *Loop) drainUDP() error {
	for {
		var newNonce [24]byte
		n, status, from, err := l.udp.Recv(&newNonce, l.ciphertextBuf[:])
		if err != nil {
			return fmt.Errorf("udp recv failed: %w", err)
		}

		switch status {
		case udpsock.RecvWouldBlock:
			return nil
		case udpsock.RecvTransient:
			// Undersized/zero-length/truncated datagrams are silent drops
			// (spec §7): no log, no state change, resume draining.
			continue
		}

		ciphertext := l.ciphertextBuf[:n]

		if !nonce.Greater(newNonce, l.theirnonce) {
			// Replay defence (spec invariant 3): drop before attempting to
			// decrypt, silently.
			continue
		}

		plaintext, ok := l.crypto.Open(l.plaintextBuf[:0], ciphertext, &newNonce)
		if !ok {
			// Authentication failure: silent drop, deliberately no log
			// (spec §7: "deny an attacker an oracle").
			continue
		}

		l.theirnonce = newNonce
		l.peer = from

		total := 24 + n
		if total > int(l.biggestRcvd) {
			l.biggestRcvd = uint16(total)
		}

		if len(plaintext) < ethernetMinFrame {
			l.handleControl(plaintext)
			continue
		}

		if err := l.tap.Write(plaintext); err != nil {
			return fmt.Errorf("tap write failed: %w", err)
		}
	}
}

// handleControl interprets a decrypted plaintext shorter than an Ethernet
// frame as a control message (spec §4.5.1 step 6).
func (l *Loop) handleControl(plaintext []byte) {
	if len(plaintext) == 3 && plaintext[0] == controlTag {
		l.biggestSent = binary.BigEndian.Uint16(plaintext[1:3])
		return
	}
	// Any other short payload is a silent keepalive: no action.
}

// drainTAP services the TAP-readable branch (spec §4.5.2).
func (l *Loop) drainTAP() error {
	for {
		n, status, err := l.tap.Read(l.tapReadBuf[:])
		if err != nil {
			return fmt.Errorf("tap read failed: %w", err)
		}
		if status == tapdev.ReadWouldBlock {
			return nil
		}

		frame := l.tapReadBuf[:n]

		if err := l.nonces.Advance(&l.ournonce); err != nil {
			return fmt.Errorf("couldn't advance nonce: %w", err)
		}

		ciphertext := l.crypto.Seal(l.ciphertextBuf[:0], frame, &l.ournonce)

		if total := 24 + len(ciphertext); total > int(l.biggestTried) {
			l.biggestTried = uint16(total)
		}

		if err := l.send(ciphertext); err != nil {
			return err
		}
	}
}

// sendKeepalive advances the nonce and sends a 3-byte control message
// carrying our biggest_rcvd (spec §4.5.3), used both for periodic liveness
// and the initiator's startup greeting (spec S1).
func (l *Loop) sendKeepalive() error {
	if err := l.nonces.Advance(&l.ournonce); err != nil {
		return fmt.Errorf("couldn't advance nonce: %w", err)
	}

	payload := [3]byte{controlTag, byte(l.biggestRcvd >> 8), byte(l.biggestRcvd)}
	ciphertext := l.crypto.Seal(l.ciphertextBuf[:0], payload[:], &l.ournonce)

	if total := 24 + len(ciphertext); total > int(l.biggestTried) {
		l.biggestTried = uint16(total)
	}

	return l.send(ciphertext)
}

// send writes ciphertext to the current peer, logging (not failing) on the
// two soft send outcomes (spec §4.5.2: "logged and the frame is dropped —
// no retry, no fragmentation").
func (l *Loop) send(ciphertext []byte) error {
	status, err := l.udp.Send(l.ournonce, ciphertext, l.peer)
	if err != nil {
		return fmt.Errorf("udp send failed: %w", err)
	}

	switch status {
	case udpsock.SendPMTUExceeded:
		l.logger.Printf("tappet: dropped %d-byte packet: path MTU exceeded", 24+len(ciphertext))
	case udpsock.SendNetUnreachable:
		l.logger.Printf("tappet: dropped %d-byte packet: network unreachable", 24+len(ciphertext))
	}
	return nil
}

// Peer returns the currently known peer address, or an invalid AddrPort if
// unknown (spec §3: "Peer address").
func (l *Loop) Peer() netip.AddrPort {
	return l.peer
}

// MTUState returns the three MTU feedback counters (spec §3).
func (l *Loop) MTUState() (tried, sent, rcvd uint16) {
	return l.biggestTried, l.biggestSent, l.biggestRcvd
}
