// Package netaddr parses the IP-literal/port CLI arguments and renders
// canonical "host:port" descriptions of socket addresses.
//
// Grounded on util.c's get_sockaddr (IPv4/IPv6 literal + port parsing) and
// on the Design Note calling out describe_sockaddr's pointer-to-pointer
// bug: this implementation takes and returns value types only.
package netaddr

import (
	"fmt"
	"net/netip"
	"strconv"
)

// Parse parses an IP literal and a port string into an AddrPort. Both IPv4
// and IPv6 literals are accepted. Ports must be in (0, 65535].
func Parse(address, port string) (netip.AddrPort, error) {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("couldn't parse %q as an IP address: %w", address, err)
	}

	p, err := parsePort(port)
	if err != nil {
		return netip.AddrPort{}, err
	}

	return netip.AddrPortFrom(addr, p), nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("couldn't parse %q as a port number: %w", s, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("port %q out of range", s)
	}
	return uint16(n), nil
}

// UnknownAddr is the sentinel "family = 0" peer address: the zero value of
// netip.AddrPort, which IsValid reports as false.
func UnknownAddr() netip.AddrPort {
	return netip.AddrPort{}
}

// Describe renders addr as a canonical "host:port" string, bracketing IPv6
// hosts. Unlike the original describe_sockaddr, this takes addr by value.
func Describe(addr netip.AddrPort) string {
	if !addr.IsValid() {
		return "unknown"
	}
	return addr.String()
}
