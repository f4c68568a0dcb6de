// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package inspectors

import (
	"bytes"
	"crypto/tls"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/stretchr/testify/require"

	"grimm.is/flowcore/internal/flow"
	"grimm.is/flowcore/internal/logging"
	"grimm.is/flowcore/internal/packet"
)

type nopSession struct{}

func (nopSession) Cleanup() {}
func (nopSession) Clear()   {}

func testLogger(buf *bytes.Buffer) *logging.Logger {
	cfg := logging.DefaultConfig()
	cfg.Output = buf
	cfg.Level = logging.LevelDebug
	return logging.New(cfg)
}

// newFlow starts a flow whose client is the source of first.
func newFlow(t *testing.T, first *packet.Packet) *flow.Flow {
	t.Helper()
	reg := flow.NewSessionRegistry()
	for _, typ := range []packet.Type{packet.TypeTCP, packet.TypeUDP} {
		reg.Register(typ, func(*flow.Flow) (flow.Session, error) { return nopSession{}, nil })
	}
	f := flow.New(reg)
	k := flow.KeyFromPacket(first)
	f.SetKey(&k)
	require.NoError(t, f.Init(first.Type))
	f.SetEndpoints(first)
	f.SetDirection(first)
	return f
}

func decode(t *testing.T, raw gopacket.Packet) *packet.Packet {
	t.Helper()
	p, err := packet.Decode(raw)
	require.NoError(t, err)
	return p
}

// clientHello captures the first TLS record a crypto/tls client sends.
func clientHello(t *testing.T, serverName string) []byte {
	t.Helper()

	c, s := net.Pipe()
	defer s.Close()
	require.NoError(t, s.SetDeadline(time.Now().Add(5*time.Second)))

	go func() {
		conn := tls.Client(c, &tls.Config{
			ServerName:         serverName,
			InsecureSkipVerify: true,
			CurvePreferences:   []tls.CurveID{tls.X25519},
		})
		_ = conn.Handshake()
		_ = c.Close()
	}()

	hdr := make([]byte, 5)
	_, err := io.ReadFull(s, hdr)
	require.NoError(t, err)
	body := make([]byte, binary.BigEndian.Uint16(hdr[3:5]))
	_, err = io.ReadFull(s, body)
	require.NoError(t, err)
	return append(hdr, body...)
}
