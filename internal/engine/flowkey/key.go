package flowkey

import (
	"Go2FlowEval/internal/model"
	"strconv"
	"strings"
)

// Canonical builds a direction-independent key for a 5-tuple. Both
// directions of a conversation produce the same string:
//
//	Canonical(a, b, p, pa, pb) == Canonical(b, a, p, pb, pa)
//
// The direction whose source address sorts first is canonical; when the
// addresses are equal the direction with the lower source port wins. The
// key is "<addrLow> <addrHigh> <proto> <portLow> <portHigh>".
//
// Empty addresses and negative ports are not checked.
func Canonical(srcAddr, dstAddr, proto string, srcPort, dstPort int) string {
	if srcAddr > dstAddr || (srcAddr == dstAddr && srcPort > dstPort) {
		srcAddr, dstAddr = dstAddr, srcAddr
		srcPort, dstPort = dstPort, srcPort
	}

	var b strings.Builder
	b.Grow(len(srcAddr) + len(dstAddr) + len(proto) + 14)
	b.WriteString(srcAddr)
	b.WriteByte(' ')
	b.WriteString(dstAddr)
	b.WriteByte(' ')
	b.WriteString(proto)
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(srcPort))
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(dstPort))
	return b.String()
}

// Of returns the canonical key of a tuple.
func Of(ft model.FiveTuple) string {
	return Canonical(ft.SrcAddr, ft.DstAddr, ft.Protocol, ft.SrcPort, ft.DstPort)
}
