package protocol

import (
	"strconv"
	"strings"

	"github.com/google/gopacket/layers"
)

// Normalize maps the record-file transport names onto the short names the
// classifier emits. Unknown names pass through untouched.
func Normalize(name string) string {
	switch name {
	case "icmp_ip":
		return "icmp"
	case "tcp_ip":
		return "tcp"
	case "udp_ip":
		return "udp"
	default:
		return name
	}
}

// Parse turns a protocol field from a prediction row into the name used in
// canonical keys. It accepts names in any case ("TCP", "tcp_ip") and IANA
// protocol numbers ("6"), which are resolved through gopacket's protocol
// table.
func Parse(field string) string {
	name := strings.TrimSpace(field)
	if n, err := strconv.Atoi(name); err == nil && n >= 0 && n <= 255 {
		if resolved := layers.IPProtocol(n).String(); resolved != "UnknownIPProtocol" {
			name = resolved
		}
	}

	name = strings.ToLower(name)
	if name == "icmpv4" {
		return "icmp"
	}
	return Normalize(name)
}
