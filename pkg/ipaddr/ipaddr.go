// Package ipaddr validates and classifies textual IP addresses.
package ipaddr

import (
	"net/netip"
	"strings"
)

// Unknown is the sentinel used when no client address could be determined.
// It never passes IsValid and never matches a trusted record.
const Unknown = "unknown"

// IsValid reports whether s is a dotted-quad IPv4 address or an IPv6
// address in any standard textual form. Zone suffixes, CIDR notation,
// ports and leading zeros in IPv4 octets are rejected.
func IsValid(s string) bool {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}
	if addr.Zone() != "" {
		return false
	}
	return addr.Is4() || addr.Is6()
}

// IsIPv4 reports whether s is a valid dotted-quad IPv4 address.
func IsIPv4(s string) bool {
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Is4()
}

// Octets returns the four octets of a dotted-quad IPv4 address.
func Octets(s string) ([4]byte, bool) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return [4]byte{}, false
	}
	return addr.As4(), true
}

// IsPrivate reports whether s is a loopback, link-local or private-range
// address (RFC 1918 for IPv4, fc00::/7 for IPv6).
func IsPrivate(s string) bool {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast()
}

// StripPort removes a trailing port from "a.b.c.d:port" and "[v6]:port"
// forms. Bare IPv6 addresses are returned unchanged.
func StripPort(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		if end := strings.Index(s, "]"); end > 0 {
			return s[1:end]
		}
		return s
	}
	if strings.Count(s, ":") == 1 {
		return s[:strings.Index(s, ":")]
	}
	return s
}
