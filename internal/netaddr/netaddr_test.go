package netaddr

import "testing"

func TestParseIPv4(t *testing.T) {
	ap, err := Parse("127.0.0.1", "5555")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ap.Port() != 5555 || !ap.Addr().Is4() {
		t.Fatalf("unexpected addrport: %v", ap)
	}
}

func TestParseIPv6(t *testing.T) {
	ap, err := Parse("::1", "5555")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !ap.Addr().Is6() {
		t.Fatalf("expected IPv6 address, got %v", ap)
	}
}

func TestParseRejectsBadPort(t *testing.T) {
	cases := []string{"0", "65536", "not-a-port", "-1"}
	for _, p := range cases {
		if _, err := Parse("127.0.0.1", p); err == nil {
			t.Errorf("expected error for port %q", p)
		}
	}
}

func TestParseAcceptsMaxPort(t *testing.T) {
	ap, err := Parse("127.0.0.1", "65535")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ap.Port() != 65535 {
		t.Fatalf("port = %d, want 65535", ap.Port())
	}
}

func TestParseRejectsBadAddress(t *testing.T) {
	if _, err := Parse("not-an-address", "5555"); err == nil {
		t.Fatal("expected error for invalid address")
	}
}

func TestDescribeUnknown(t *testing.T) {
	if got := Describe(UnknownAddr()); got != "unknown" {
		t.Fatalf("got %q, want %q", got, "unknown")
	}
}
