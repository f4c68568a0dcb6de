// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package testutil builds wire-format packets for tests.
package testutil

import (
	"net"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// Endpoint is one side of a test conversation.
type Endpoint struct {
	IP   string
	Port uint16
}

// TCPOptions selects header fields for BuildTCP.
type TCPOptions struct {
	SYN, ACK, FIN, RST, PSH bool
	Seq                     uint32
	TTL                     uint8
	MPLSLabel               uint32 // non-zero wraps the IP header in one MPLS label
	Payload                 []byte
	Timestamp               time.Time
}

// BuildTCP serializes an Ethernet/IPv4/TCP frame and decodes it back into a
// gopacket.Packet with the requested capture timestamp.
func BuildTCP(t *testing.T, src, dst Endpoint, opts TCPOptions) gopacket.Packet {
	t.Helper()

	ttl := opts.TTL
	if ttl == 0 {
		ttl = 64
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      ttl,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP(src.IP).To4(),
		DstIP:    net.ParseIP(dst.IP).To4(),
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(src.Port),
		DstPort: layers.TCPPort(dst.Port),
		Seq:     opts.Seq,
		SYN:     opts.SYN,
		ACK:     opts.ACK,
		FIN:     opts.FIN,
		RST:     opts.RST,
		PSH:     opts.PSH,
		Window:  65535,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("checksum layer: %v", err)
	}

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}

	stack := []gopacket.SerializableLayer{eth}
	if opts.MPLSLabel != 0 {
		eth.EthernetType = layers.EthernetTypeMPLSUnicast
		stack = append(stack, &layers.MPLS{Label: opts.MPLSLabel, StackBottom: true, TTL: 64})
	}
	stack = append(stack, ip, tcp, gopacket.Payload(opts.Payload))

	return serialize(t, opts.Timestamp, stack...)
}

// BuildUDP serializes an Ethernet/IPv4/UDP frame.
func BuildUDP(t *testing.T, src, dst Endpoint, payload []byte, ts time.Time) gopacket.Packet {
	t.Helper()

	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(src.IP).To4(),
		DstIP:    net.ParseIP(dst.IP).To4(),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port),
		DstPort: layers.UDPPort(dst.Port),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("checksum layer: %v", err)
	}
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	return serialize(t, ts, eth, ip, udp, gopacket.Payload(payload))
}

// BuildIPIP serializes an IPv4-in-IPv4 frame carrying UDP so inner and outer
// TTLs differ.
func BuildIPIP(t *testing.T, outerTTL, innerTTL uint8, ts time.Time) gopacket.Packet {
	t.Helper()

	outer := &layers.IPv4{
		Version:  4,
		TTL:      outerTTL,
		Protocol: layers.IPProtocolIPv4,
		SrcIP:    net.IPv4(192, 0, 2, 1).To4(),
		DstIP:    net.IPv4(192, 0, 2, 2).To4(),
	}
	inner := &layers.IPv4{
		Version:  4,
		TTL:      innerTTL,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 1).To4(),
		DstIP:    net.IPv4(10, 0, 0, 2).To4(),
	}
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}
	if err := udp.SetNetworkLayerForChecksum(inner); err != nil {
		t.Fatalf("checksum layer: %v", err)
	}
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	return serialize(t, ts, eth, outer, inner, udp, gopacket.Payload([]byte("q")))
}

func serialize(t *testing.T, ts time.Time, stack ...gopacket.SerializableLayer) gopacket.Packet {
	t.Helper()

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, stack...); err != nil {
		t.Fatalf("serialize: %v", err)
	}

	pkt := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
	if ts.IsZero() {
		ts = time.Unix(1700000000, 0)
	}
	pkt.Metadata().Timestamp = ts
	pkt.Metadata().CaptureLength = len(buf.Bytes())
	pkt.Metadata().Length = len(buf.Bytes())
	return pkt
}
