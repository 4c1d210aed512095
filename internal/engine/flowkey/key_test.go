package flowkey

import (
	"Go2FlowEval/internal/model"
	"math/rand"
	"strconv"
	"testing"
)

func TestCanonical_Format(t *testing.T) {
	tests := []struct {
		name string
		ft   model.FiveTuple
		want string
	}{
		{
			name: "already canonical",
			ft:   model.FiveTuple{SrcAddr: "10.0.0.1", DstAddr: "10.0.0.2", Protocol: "tcp", SrcPort: 80, DstPort: 4000},
			want: "10.0.0.1 10.0.0.2 tcp 80 4000",
		},
		{
			name: "reversed addresses",
			ft:   model.FiveTuple{SrcAddr: "10.0.0.2", DstAddr: "10.0.0.1", Protocol: "tcp", SrcPort: 4000, DstPort: 80},
			want: "10.0.0.1 10.0.0.2 tcp 80 4000",
		},
		{
			name: "lexicographic not numeric ordering",
			ft:   model.FiveTuple{SrcAddr: "192.168.5.122", DstAddr: "10.0.0.9", Protocol: "udp", SrcPort: 53, DstPort: 5353},
			want: "10.0.0.9 192.168.5.122 udp 5353 53",
		},
		{
			name: "equal addresses ordered by port",
			ft:   model.FiveTuple{SrcAddr: "127.0.0.1", DstAddr: "127.0.0.1", Protocol: "tcp", SrcPort: 8080, DstPort: 22},
			want: "127.0.0.1 127.0.0.1 tcp 22 8080",
		},
		{
			name: "icmp with zero ports",
			ft:   model.FiveTuple{SrcAddr: "10.0.0.5", DstAddr: "10.0.0.4", Protocol: "icmp"},
			want: "10.0.0.4 10.0.0.5 icmp 0 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Of(tt.ft); got != tt.want {
				t.Errorf("Of(%+v) = %q, want %q", tt.ft, got, tt.want)
			}
		})
	}
}

func TestCanonical_Symmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	addr := func() string {
		return "192.168." + strconv.Itoa(rng.Intn(4)) + "." + strconv.Itoa(rng.Intn(4))
	}

	for i := 0; i < 5000; i++ {
		a, b := addr(), addr()
		pa, pb := rng.Intn(65536), rng.Intn(65536)
		forward := Canonical(a, b, "tcp", pa, pb)
		reverse := Canonical(b, a, "tcp", pb, pa)
		if forward != reverse {
			t.Fatalf("key not symmetric for %s:%d <-> %s:%d: %q vs %q", a, pa, b, pb, forward, reverse)
		}
		if again := Canonical(a, b, "tcp", pa, pb); again != forward {
			t.Fatalf("key not deterministic: %q vs %q", forward, again)
		}
	}
}

func TestCanonical_ProtocolDistinguishes(t *testing.T) {
	tcp := Canonical("10.0.0.1", "10.0.0.2", "tcp", 53, 53)
	udp := Canonical("10.0.0.1", "10.0.0.2", "udp", 53, 53)
	if tcp == udp {
		t.Errorf("tcp and udp conversations share a key: %q", tcp)
	}
}
