// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"net/netip"
	"time"

	"grimm.is/flowcore/internal/packet"
)

// SetEndpoints records p's source as the client side of the flow.
func (f *Flow) SetEndpoints(p *packet.Packet) {
	f.clientIP, f.clientPort = p.SrcIP, p.SrcPort
	f.serverIP, f.serverPort = p.DstIP, p.DstPort
}

// Endpoints returns the client and server address/port pairs.
func (f *Flow) Endpoints() (client, server netip.AddrPort) {
	return netip.AddrPortFrom(f.clientIP, f.clientPort), netip.AddrPortFrom(f.serverIP, f.serverPort)
}

// SetDirection marks p as client- or server-originated relative to the
// recorded client endpoint. Only p is changed.
func (f *Flow) SetDirection(p *packet.Packet) {
	p.Flags &^= packet.FlagFromClient | packet.FlagFromServer

	switch {
	case p.SrcIP == f.clientIP:
		if p.SrcPort == f.clientPort {
			p.Flags |= packet.FlagFromClient
		} else {
			p.Flags |= packet.FlagFromServer
		}
	case p.DstIP == f.clientIP:
		if p.DstPort == f.clientPort {
			p.Flags |= packet.FlagFromServer
		} else {
			p.Flags |= packet.FlagFromClient
		}
	}
}

// MarkupPacketFlags tags p with the flow's establishment state.
func (f *Flow) MarkupPacketFlags(p *packet.Packet) {
	if !f.ssnState.Flags.Has(FlagEstablished) {
		if !f.ssnState.Flags.Has(FlagSeenBoth) {
			p.Flags |= packet.FlagStreamUnestUni
		}
		return
	}
	p.Flags |= packet.FlagStreamEst
	p.Flags &^= packet.FlagStreamUnestUni
}

// SetTTL caches p's inner and outer TTL for the given direction.
func (f *Flow) SetTTL(p *packet.Packet, client bool) {
	inner, outer := p.TTL, uint8(0)
	if p.Tunneled {
		outer = p.OuterTTL
	}
	if client {
		f.innerClientTTL, f.outerClientTTL = inner, outer
	} else {
		f.innerServerTTL, f.outerServerTTL = inner, outer
	}
}

// TTL returns the cached inner and outer TTL for a direction.
func (f *Flow) TTL(client bool) (inner, outer uint8) {
	if client {
		return f.innerClientTTL, f.outerClientTTL
	}
	return f.innerServerTTL, f.outerServerTTL
}

// SetMPLSLayerPerDir keeps the first MPLS header seen in p's direction.
// p must already carry a direction from SetDirection.
func (f *Flow) SetMPLSLayerPerDir(p *packet.Packet) {
	if p.MPLS.Len() == 0 {
		return
	}
	if p.FromClient() {
		if f.mplsClient.Len() == 0 {
			f.mplsClient = p.MPLS.Clone()
		}
	} else if f.mplsServer.Len() == 0 {
		f.mplsServer = p.MPLS.Clone()
	}
}

// MPLSLayerPerDir returns the cached MPLS header for a direction.
func (f *Flow) MPLSLayerPerDir(client bool) packet.Layer {
	if client {
		return f.mplsClient
	}
	return f.mplsServer
}

// SetExpire arms expiry at p's timestamp plus timeout.
func (f *Flow) SetExpire(p *packet.Packet, timeout time.Duration) {
	f.expireTime = p.Timestamp.Add(timeout)
}

// ExpireTime returns the armed expiry, or the zero time.
func (f *Flow) ExpireTime() time.Time { return f.expireTime }

// Expired reports whether p is at or past the armed expiry. A record whose
// expiry was never armed does not expire.
func (f *Flow) Expired(p *packet.Packet) bool {
	return f.ExpiredAt(p.Timestamp)
}

// ExpiredAt is Expired for a bare timestamp.
func (f *Flow) ExpiredAt(ts time.Time) bool {
	if f.expireTime.IsZero() {
		return false
	}
	return !ts.Before(f.expireTime)
}

// TouchData records the time of the last packet carrying payload.
func (f *Flow) TouchData(ts time.Time) { f.lastDataSeen = ts }

func (f *Flow) LastDataSeen() time.Time { return f.lastDataSeen }
