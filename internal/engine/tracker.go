// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"grimm.is/flowcore/internal/flow"
	"grimm.is/flowcore/internal/logging"
	"grimm.is/flowcore/internal/packet"
)

// Counters are per-direction packet and byte totals.
type Counters struct {
	Packets uint64
	Bytes   uint64
}

type segment struct {
	seq   uint32
	len   int
	valid bool
}

// Tracker is the protocol session the engine gives every flow. It counts
// traffic per direction and, for TCP, follows the handshake and teardown
// and spots retransmitted segments.
type Tracker struct {
	flow   *flow.Flow
	logger *logging.Logger

	Client Counters
	Server Counters

	last      [2]segment
	finClient bool
	finServer bool
	rst       bool
}

// NewSessionFactory registers a Tracker for every packet type the decoder
// produces.
func NewSessionFactory(logger *logging.Logger) *flow.SessionRegistry {
	if logger == nil {
		logger = logging.WithComponent("session")
	}
	ctor := func(f *flow.Flow) (flow.Session, error) {
		return &Tracker{flow: f, logger: logger}, nil
	}
	reg := flow.NewSessionRegistry()
	for _, t := range []packet.Type{packet.TypeIP, packet.TypeTCP, packet.TypeUDP, packet.TypeICMP} {
		reg.Register(t, ctor)
	}
	return reg
}

// Update accounts p and reports whether it repeats the previous segment in
// its direction.
func (t *Tracker) Update(p *packet.Packet) (retransmit bool) {
	f := t.flow
	dir := 0
	c := &t.Client
	if !p.FromClient() {
		dir = 1
		c = &t.Server
	}
	c.Packets++
	c.Bytes += uint64(p.Length)

	if p.Type != packet.TypeTCP {
		return false
	}

	ss := f.StreamState()
	switch {
	case p.HasTCPFlags(packet.TCPSyn | packet.TCPAck):
		f.SetStreamState(flow.StreamSynAck)
	case p.HasTCPFlags(packet.TCPSyn):
		f.SetStreamState(flow.StreamSyn)
	case p.HasTCPFlags(packet.TCPAck):
		if ss&flow.StreamSynAck != 0 && ss&flow.StreamEstablished == 0 {
			f.SetStreamState(flow.StreamAck | flow.StreamEstablished)
			f.SetSessionFlags(flow.FlagEstablished)
		} else if ss&(flow.StreamSyn|flow.StreamSynAck|flow.StreamMidstream) == 0 {
			f.SetStreamState(flow.StreamMidstream)
			f.SetSessionFlags(flow.FlagMidstream)
		}
	}

	if p.HasTCPFlags(packet.TCPRst) {
		t.rst = true
		f.SetSessionFlags(flow.FlagReset)
	}
	if p.HasTCPFlags(packet.TCPFin) {
		if dir == 0 {
			t.finClient = true
			f.SetSessionFlags(flow.FlagServerFin)
		} else {
			t.finServer = true
			f.SetSessionFlags(flow.FlagClientFin)
		}
	}

	if n := len(p.Payload); n > 0 {
		last := t.last[dir]
		if last.valid && last.seq == p.Seq && last.len == n {
			return true
		}
		t.last[dir] = segment{seq: p.Seq, len: n, valid: true}
	}
	return false
}

// Done reports a TCP connection that has been reset or closed both ways.
func (t *Tracker) Done() bool {
	return t.rst || (t.finClient && t.finServer)
}

// Cleanup logs the final counters and rewinds.
func (t *Tracker) Cleanup() {
	t.logger.Debug("Session finished",
		"client_packets", t.Client.Packets,
		"client_bytes", t.Client.Bytes,
		"server_packets", t.Server.Packets,
		"server_bytes", t.Server.Bytes,
		"reset", t.rst)
	t.Clear()
}

// Clear rewinds without reporting.
func (t *Tracker) Clear() {
	t.Client, t.Server = Counters{}, Counters{}
	t.last = [2]segment{}
	t.finClient, t.finServer, t.rst = false, false, false
}
