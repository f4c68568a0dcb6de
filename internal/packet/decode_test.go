// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package packet

import (
	"net/netip"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/flowcore/internal/errors"
	"grimm.is/flowcore/internal/testutil"
)

var (
	client = testutil.Endpoint{IP: "10.0.0.1", Port: 40000}
	server = testutil.Endpoint{IP: "10.0.0.2", Port: 443}
)

func TestDecode_TCP(t *testing.T) {
	ts := time.Unix(1700000100, 0)
	raw := testutil.BuildTCP(t, client, server, testutil.TCPOptions{
		SYN:       true,
		Seq:       1000,
		TTL:       57,
		Payload:   []byte("hello"),
		Timestamp: ts,
	})

	p, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, TypeTCP, p.Type)
	assert.Equal(t, ts, p.Timestamp)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), p.SrcIP)
	assert.Equal(t, netip.MustParseAddr("10.0.0.2"), p.DstIP)
	assert.Equal(t, uint16(40000), p.SrcPort)
	assert.Equal(t, uint16(443), p.DstPort)
	assert.Equal(t, uint8(6), p.Proto)
	assert.Equal(t, uint8(57), p.TTL)
	assert.Equal(t, uint8(0), p.OuterTTL)
	assert.False(t, p.Tunneled)
	assert.Equal(t, uint32(1000), p.Seq)
	assert.True(t, p.HasTCPFlags(TCPSyn))
	assert.False(t, p.HasTCPFlags(TCPAck))
	assert.Equal(t, []byte("hello"), p.Payload)
	assert.Same(t, raw, p.Raw)
}

func TestDecode_UDP(t *testing.T) {
	raw := testutil.BuildUDP(t, client, testutil.Endpoint{IP: "10.0.0.53", Port: 53}, []byte("q"), time.Time{})

	p, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeUDP, p.Type)
	assert.Equal(t, uint16(53), p.DstPort)
	assert.Equal(t, uint8(17), p.Proto)
	assert.Equal(t, []byte("q"), p.Payload)
}

func dnsQuery(t *testing.T) []byte {
	t.Helper()
	q := new(dns.Msg)
	q.SetQuestion("example.com.", dns.TypeA)
	wire, err := q.Pack()
	require.NoError(t, err)
	return wire
}

func TestDecode_DNSOverUDPKeepsPayload(t *testing.T) {
	wire := dnsQuery(t)
	raw := testutil.BuildUDP(t, client, testutil.Endpoint{IP: "10.0.0.53", Port: 53}, wire, time.Time{})
	require.NotNil(t, raw.Layer(layers.LayerTypeDNS))

	p, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeUDP, p.Type)
	assert.Equal(t, wire, p.Payload)

	var m dns.Msg
	require.NoError(t, m.Unpack(p.Payload))
	require.Len(t, m.Question, 1)
	assert.Equal(t, "example.com.", m.Question[0].Name)
}

func TestDecode_DNSOverTCPKeepsPayload(t *testing.T) {
	wire := dnsQuery(t)
	framed := append([]byte{byte(len(wire) >> 8), byte(len(wire))}, wire...)
	raw := testutil.BuildTCP(t, client, testutil.Endpoint{IP: "10.0.0.53", Port: 53}, testutil.TCPOptions{
		ACK:     true,
		PSH:     true,
		Payload: framed,
	})

	p, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeTCP, p.Type)
	assert.Equal(t, framed, p.Payload)
}

func TestDecode_MPLS(t *testing.T) {
	raw := testutil.BuildTCP(t, client, server, testutil.TCPOptions{ACK: true, MPLSLabel: 100})

	p, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeTCP, p.Type)
	assert.Equal(t, layers.LayerTypeMPLS, p.MPLS.Type)
	assert.Equal(t, 4, p.MPLS.Len())
}

func TestDecode_Tunneled(t *testing.T) {
	raw := testutil.BuildIPIP(t, 200, 30, time.Time{})

	p, err := Decode(raw)
	require.NoError(t, err)
	assert.True(t, p.Tunneled)
	assert.Equal(t, uint8(30), p.TTL)
	assert.Equal(t, uint8(200), p.OuterTTL)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), p.SrcIP)
	assert.Equal(t, TypeUDP, p.Type)
}

func TestDecode_NoIP(t *testing.T) {
	buf := gopacket.NewSerializeBuffer()
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte{2, 0, 0, 0, 0, 1},
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	eth := &layers.Ethernet{
		SrcMAC:       []byte{2, 0, 0, 0, 0, 1},
		DstMAC:       []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, arp))
	raw := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)

	_, err := Decode(raw)
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))

	_, err = Decode(nil)
	assert.Error(t, err)
}

func TestType(t *testing.T) {
	assert.NotZero(t, TypeTCP&TypeStream)
	assert.Zero(t, TypeUDP&TypeStream)
	assert.Equal(t, "tcp", TypeTCP.String())
	assert.Equal(t, "mixed", (TypeTCP | TypeUDP).String())
}

func TestLayerClone(t *testing.T) {
	src := []byte{1, 2, 3, 4}
	l := Layer{Type: layers.LayerTypeMPLS, Data: src}
	c := l.Clone()
	src[0] = 9
	assert.Equal(t, byte(1), c.Data[0])
	assert.Equal(t, 0, Layer{}.Clone().Len())
}
