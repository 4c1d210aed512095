package protocol

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"icmp_ip": "icmp",
		"tcp_ip":  "tcp",
		"udp_ip":  "udp",
		"igmp":    "igmp",
		"TCP_IP":  "TCP_IP",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParse(t *testing.T) {
	cases := map[string]string{
		"tcp":    "tcp",
		" TCP ":  "tcp",
		"udp_ip": "udp",
		"6":      "tcp",
		"17":     "udp",
		"1":      "icmp",
		"ICMPv4": "icmp",
		"2":      "igmp",
		"253":    "253",
		"sctp":   "sctp",
		"Tcp_Ip": "tcp",
	}
	for in, want := range cases {
		if got := Parse(in); got != want {
			t.Errorf("Parse(%q) = %q, want %q", in, got, want)
		}
	}
}
