// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package packet holds the per-packet metadata the flow core consumes:
// timestamps, endpoints, encapsulation snapshots and direction hints.
package packet

import (
	"net/netip"
	"time"

	"github.com/gopacket/gopacket"
)

// Type classifies a packet by the protocol family that owns its session.
// Values are bits so capability masks can be tested with a single AND.
type Type uint8

const (
	TypeNone Type = 0x00
	TypeIP   Type = 0x01
	TypeTCP  Type = 0x02
	TypeUDP  Type = 0x04
	TypeICMP Type = 0x08
	TypePDU  Type = 0x10
	TypeFile Type = 0x20

	// TypeStream covers every type carried by an ordered byte stream.
	TypeStream = TypeTCP | TypePDU | TypeFile
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeIP:
		return "ip"
	case TypeTCP:
		return "tcp"
	case TypeUDP:
		return "udp"
	case TypeICMP:
		return "icmp"
	case TypePDU:
		return "pdu"
	case TypeFile:
		return "file"
	default:
		return "mixed"
	}
}

// Flags are per-packet markers set by decoding and by the flow record.
type Flags uint32

const (
	FlagFromClient Flags = 1 << iota
	FlagFromServer
	FlagStreamEst
	FlagStreamUnestUni
	FlagRetransmit
	FlagRebuilt
)

// TCP control bits copied from the transport header.
const (
	TCPFin uint8 = 0x01
	TCPSyn uint8 = 0x02
	TCPRst uint8 = 0x04
	TCPPsh uint8 = 0x08
	TCPAck uint8 = 0x10
)

// Layer is a detached copy of one encapsulation header.
type Layer struct {
	Type gopacket.LayerType
	Data []byte
}

// Len reports the header length; zero means no layer was captured.
func (l Layer) Len() int { return len(l.Data) }

// Clone returns a copy that does not alias the source buffer.
func (l Layer) Clone() Layer {
	if len(l.Data) == 0 {
		return Layer{}
	}
	return Layer{Type: l.Type, Data: append([]byte(nil), l.Data...)}
}

// Packet is the decoded view of one captured frame.
type Packet struct {
	Timestamp time.Time
	Type      Type
	Flags     Flags

	SrcIP   netip.Addr
	DstIP   netip.Addr
	SrcPort uint16
	DstPort uint16
	Proto   uint8

	// TTL is taken from the innermost IP header; OuterTTL from the outermost
	// one when the packet is tunneled.
	TTL      uint8
	OuterTTL uint8
	Tunneled bool

	MPLS Layer
	VLAN uint16

	TCPFlags uint8
	Seq      uint32

	Length  int
	Payload []byte

	// Raw is the source packet, when the metadata came from gopacket.
	Raw gopacket.Packet
}

// FromClient reports whether the flow marked this packet client-originated.
func (p *Packet) FromClient() bool { return p.Flags&FlagFromClient != 0 }

// FromServer reports whether the flow marked this packet server-originated.
func (p *Packet) FromServer() bool { return p.Flags&FlagFromServer != 0 }

// HasTCPFlags reports whether all bits in mask are set.
func (p *Packet) HasTCPFlags(mask uint8) bool { return p.TCPFlags&mask == mask }
