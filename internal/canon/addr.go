package canon

import (
	"net/netip"
	"regexp"
	"strings"
)

var dottedQuad = regexp.MustCompile(
	`^(?:(?:25[0-5]|2[0-4]\d|1?\d{1,2})\.){3}(?:25[0-5]|2[0-4]\d|1?\d{1,2})$`)

// SanitizeAddr validates and normalizes a source address literal. Loopback
// and placeholder values become empty; valid addresses come back in
// canonical form (IPv4 dotted quad, IPv6 fully exploded, v4-mapped v6
// unmapped). Input that fails strict parsing but still looks like a dotted
// quad is accepted verbatim. Never returns an error.
func SanitizeAddr(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || value == "-" {
		return ""
	}
	addr, err := netip.ParseAddr(value)
	if err != nil {
		if dottedQuad.MatchString(value) {
			return value
		}
		return ""
	}
	addr = addr.Unmap()
	if addr.IsLoopback() {
		return ""
	}
	if addr.Is4() {
		return addr.String()
	}
	return addr.StringExpanded()
}
