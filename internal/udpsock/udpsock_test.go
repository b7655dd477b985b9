package udpsock

import (
	"net/netip"
	"testing"
)

func loopbackPair(t *testing.T) (*Socket, *Socket) {
	t.Helper()

	listener, err := NewSocket(netip.MustParseAddrPort("127.0.0.1:0"), netip.AddrPort{}, true)
	if err != nil {
		t.Fatalf("NewSocket (listener): %v", err)
	}
	t.Cleanup(func() { _ = listener.Close() })

	addrPort, err := netip.ParseAddrPort(listener.conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("ParseAddrPort: %v", err)
	}

	initiator, err := NewSocket(netip.MustParseAddrPort("127.0.0.1:0"), addrPort, false)
	if err != nil {
		t.Fatalf("NewSocket (initiator): %v", err)
	}
	t.Cleanup(func() { _ = initiator.Close() })

	return listener, initiator
}

func TestSendRecvRoundTrip(t *testing.T) {
	listener, initiator := loopbackPair(t)

	var nonce [24]byte
	nonce[23] = 42
	ct := []byte("ciphertext-bytes")

	status, err := initiator.Send(nonce, ct, netip.AddrPort{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if status != SendOK {
		t.Fatalf("status = %v, want SendOK", status)
	}

	var gotNonce [24]byte
	buf := make([]byte, MaxDatagram)
	n, rstatus, from, rerr := listener.Recv(&gotNonce, buf)
	if rerr != nil {
		t.Fatalf("Recv: %v", rerr)
	}
	if rstatus != RecvOK {
		t.Fatalf("status = %v, want RecvOK", rstatus)
	}
	if string(buf[:n]) != string(ct) {
		t.Fatalf("got %q, want %q", buf[:n], ct)
	}
	if gotNonce != nonce {
		t.Fatalf("got nonce %x, want %x", gotNonce, nonce)
	}
	if !from.IsValid() {
		t.Fatal("expected a valid sender address")
	}
}

func TestRecvUndersizedIsTransient(t *testing.T) {
	listener, initiator := loopbackPair(t)

	// A datagram shorter than the nonce length only.
	_, err := initiator.conn.Write([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	var gotNonce [24]byte
	buf := make([]byte, MaxDatagram)
	_, status, _, err := listener.Recv(&gotNonce, buf)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if status != RecvTransient {
		t.Fatalf("status = %v, want RecvTransient", status)
	}
}

// TestRecvWouldBlockWhenIdle exercises the real *udpsock.Socket (not a fake)
// to confirm Recv returns RecvWouldBlock immediately when nothing is
// pending, rather than parking the caller — this is what lets
// internal/tunnel's single goroutine keep servicing TAP reads and the
// 10-second keepalive timeout while draining an empty UDP socket.
func TestRecvWouldBlockWhenIdle(t *testing.T) {
	listener, _ := loopbackPair(t)

	var gotNonce [24]byte
	buf := make([]byte, MaxDatagram)
	_, status, _, err := listener.Recv(&gotNonce, buf)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if status != RecvWouldBlock {
		t.Fatalf("status = %v, want RecvWouldBlock", status)
	}
}
