package transport

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateHostURL implements the SSRF guard from spec section 4.8: reject
// non-http(s) schemes, reject loopback/link-local/private IPs unless
// allowPrivate is set (the "escape hatch" the remote collector wires to
// SUPPRESS_LOCALHOST_WARNING plus an explicit opt-in, never silently),
// reject paths containing "..", and return the normalized URL.
func ValidateHostURL(raw string, allowPrivate bool) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid host URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("host URL %q: scheme must be http or https", raw)
	}
	if strings.Contains(u.Path, "..") {
		return "", fmt.Errorf("host URL %q: path traversal not permitted", raw)
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("host URL %q: missing host", raw)
	}

	if !allowPrivate {
		if ip := net.ParseIP(host); ip != nil {
			if isDisallowedIP(ip) {
				return "", fmt.Errorf("host URL %q: loopback/link-local/private addresses are rejected (set an explicit allow to override)", raw)
			}
		} else if strings.EqualFold(host, "localhost") {
			return "", fmt.Errorf("host URL %q: localhost is rejected (set an explicit allow to override)", raw)
		}
	}

	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}

func isDisallowedIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if ip.IsPrivate() {
		return true
	}
	// Cloud metadata endpoints (AWS/GCP/Azure all use 169.254.169.254).
	if ip.Equal(net.IPv4(169, 254, 169, 254)) {
		return true
	}
	return false
}
