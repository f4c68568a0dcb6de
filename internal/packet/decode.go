// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package packet

import (
	"net"
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"grimm.is/flowcore/internal/errors"
)

// Decode extracts flow metadata from a gopacket packet.
// Frames without an IP header are rejected with KindValidation.
func Decode(raw gopacket.Packet) (*Packet, error) {
	if raw == nil {
		return nil, errors.New(errors.KindValidation, "nil packet")
	}

	p := &Packet{Raw: raw}
	if md := raw.Metadata(); md != nil {
		p.Timestamp = md.Timestamp
		p.Length = md.Length
	}
	if p.Length == 0 {
		p.Length = len(raw.Data())
	}

	ipLayers := 0
	for _, l := range raw.Layers() {
		switch v := l.(type) {
		case *layers.Dot1Q:
			if p.VLAN == 0 {
				p.VLAN = v.VLANIdentifier
			}
		case *layers.MPLS:
			// Keep the outermost label only.
			if p.MPLS.Len() == 0 {
				p.MPLS = Layer{Type: layers.LayerTypeMPLS, Data: v.Contents}.Clone()
			}
		case *layers.IPv4:
			ipLayers++
			p.setIP(v.SrcIP, v.DstIP, uint8(v.Protocol), v.TTL, ipLayers)
		case *layers.IPv6:
			ipLayers++
			p.setIP(v.SrcIP, v.DstIP, uint8(v.NextHeader), v.HopLimit, ipLayers)
		case *layers.TCP:
			p.Type = TypeTCP
			p.SrcPort = uint16(v.SrcPort)
			p.DstPort = uint16(v.DstPort)
			p.Seq = v.Seq
			p.TCPFlags = tcpFlags(v)
			p.Payload = v.LayerPayload()
		case *layers.UDP:
			p.Type = TypeUDP
			p.SrcPort = uint16(v.SrcPort)
			p.DstPort = uint16(v.DstPort)
			p.Payload = v.LayerPayload()
		case *layers.ICMPv4, *layers.ICMPv6:
			p.Type = TypeICMP
		}
	}

	if ipLayers == 0 {
		return nil, errors.New(errors.KindValidation, "packet has no IP layer")
	}
	if !p.Tunneled {
		p.OuterTTL = 0
	}
	if p.Type == TypeNone {
		p.Type = TypeIP
	}
	// Transport payloads are taken as-is: gopacket parses well-known ports
	// (DNS on 53) into application layers whose Payload is empty.
	if p.Type != TypeTCP && p.Type != TypeUDP {
		if app := raw.ApplicationLayer(); app != nil {
			p.Payload = app.Payload()
		}
	}

	return p, nil
}

// setIP records addresses from the innermost header seen so far. The first
// header's TTL becomes the outer TTL once a second header shows up.
func (p *Packet) setIP(src, dst net.IP, proto, ttl uint8, depth int) {
	if depth == 1 {
		p.OuterTTL = ttl
	} else {
		p.Tunneled = true
	}
	p.SrcIP = toAddr(src)
	p.DstIP = toAddr(dst)
	p.Proto = proto
	p.TTL = ttl
}

func toAddr(ip net.IP) netip.Addr {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return addr.Unmap()
}

func tcpFlags(t *layers.TCP) uint8 {
	var f uint8
	if t.FIN {
		f |= TCPFin
	}
	if t.SYN {
		f |= TCPSyn
	}
	if t.RST {
		f |= TCPRst
	}
	if t.PSH {
		f |= TCPPsh
	}
	if t.ACK {
		f |= TCPAck
	}
	return f
}
