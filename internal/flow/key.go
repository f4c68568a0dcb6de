// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"fmt"
	"net/netip"

	"grimm.is/flowcore/internal/packet"
)

// Key identifies a connection independently of packet direction. The lower
// address (then port) is always stored first. Keys are owned by the flow
// table; records only keep a pointer to them.
type Key struct {
	IPLow     netip.Addr
	IPHigh    netip.Addr
	PortLow   uint16
	PortHigh  uint16
	Proto     uint8
	PktType   packet.Type
	VLAN      uint16
	MPLS      uint32
	AddrSpace uint16
}

// KeyFromPacket builds the normalized key for p.
func KeyFromPacket(p *packet.Packet) Key {
	k := Key{
		Proto:   p.Proto,
		PktType: p.Type,
		VLAN:    p.VLAN,
		MPLS:    mplsLabel(p.MPLS),
	}

	srcFirst := p.SrcIP.Less(p.DstIP) || (p.SrcIP == p.DstIP && p.SrcPort <= p.DstPort)
	if srcFirst {
		k.IPLow, k.PortLow = p.SrcIP, p.SrcPort
		k.IPHigh, k.PortHigh = p.DstIP, p.DstPort
	} else {
		k.IPLow, k.PortLow = p.DstIP, p.DstPort
		k.IPHigh, k.PortHigh = p.SrcIP, p.SrcPort
	}
	return k
}

func mplsLabel(l packet.Layer) uint32 {
	if l.Len() < 3 {
		return 0
	}
	return uint32(l.Data[0])<<12 | uint32(l.Data[1])<<4 | uint32(l.Data[2])>>4
}

// String returns a string representation of the key.
func (k *Key) String() string {
	return fmt.Sprintf("%s:%d<->%s:%d proto=%d",
		k.IPLow, k.PortLow, k.IPHigh, k.PortHigh, k.Proto)
}
