package http

import (
	"net"
	"net/http"
	"strings"

	"github.com/dinarexchange/dinar-auth/pkg/ipaddr"
)

// IPConfig holds configuration for IP extraction and validation
type IPConfig struct {
	// TrustedProxies restricts header inspection to peers inside these CIDR
	// ranges. When empty, forwarding headers are honored from any peer.
	TrustedProxies []string
}

// clientIPHeaders is the lookup order for forwarded client addresses.
var clientIPHeaders = []string{
	"Cf-Connecting-Ip",
	"X-Real-Ip",
	"X-Forwarded-For",
	"X-Client-Ip",
	"X-Cluster-Client-Ip",
	"X-Forwarded",
	"Forwarded-For",
	"Forwarded",
}

// ExtractClientIP determines the originating client IP address.
//
// Flow:
// 1. If the peer may supply forwarding headers, walk clientIPHeaders in order
// 2. Take the first header whose normalized value is a valid address
// 3. Fall back to RemoteAddr, then to ipaddr.Unknown
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if headersTrusted(remoteIP, config) {
		for _, name := range clientIPHeaders {
			value := r.Header.Get(name)
			if value == "" {
				continue
			}
			if ip := headerIP(name, value); ipaddr.IsValid(ip) {
				return ip
			}
		}
	}

	if ipaddr.IsValid(remoteIP) {
		return remoteIP
	}
	return ipaddr.Unknown
}

// headerIP reduces a raw header value to a single candidate address.
func headerIP(name, value string) string {
	// Multi-hop headers list the originating client first
	candidate := strings.TrimSpace(strings.Split(value, ",")[0])

	if name == "Forwarded" || name == "X-Forwarded" {
		candidate = forwardedFor(candidate)
	}

	return ipaddr.StripPort(strings.Trim(candidate, `"`))
}

// forwardedFor extracts the for= parameter of an RFC 7239 element.
// Values without parameters are returned unchanged.
func forwardedFor(element string) string {
	if !strings.Contains(element, "=") {
		return element
	}
	for _, pair := range strings.Split(element, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && strings.EqualFold(k, "for") {
			return strings.Trim(v, `"`)
		}
	}
	return ""
}

func headersTrusted(remoteIP string, config *IPConfig) bool {
	if config == nil || len(config.TrustedProxies) == 0 {
		return true
	}
	return isTrustedProxy(remoteIP, config.TrustedProxies)
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr != "" {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		return r.RemoteAddr
	}
	return ipaddr.Unknown
}

// isTrustedProxy checks if an IP address is within any of the trusted proxy CIDR ranges
func isTrustedProxy(ip string, trustedProxies []string) bool {
	clientIP := net.ParseIP(ip)
	if clientIP == nil {
		return false
	}

	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue // Skip invalid CIDR ranges
		}
		if ipNet.Contains(clientIP) {
			return true
		}
	}

	return false
}
