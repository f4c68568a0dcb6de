// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package flow implements the per-connection record of the inspection
// engine: protocol identity, verdict state, session flags, the owned
// protocol session, the chain of inspector data blocks and the shared
// inspector bindings.
//
// A Flow is leased to one worker at a time by the flow table and has no
// internal locking. Records are recycled: Clear and Reset rewind them for
// the next connection instead of freeing them.
package flow

import (
	"net/netip"
	"time"

	"grimm.is/flowcore/internal/errors"
	"grimm.is/flowcore/internal/packet"
)

// Flow is the state of one tracked connection.
type Flow struct {
	// identity, set by the table and Init
	key     *Key
	ipProto uint8
	pktType packet.Type

	factory SessionFactory
	session Session

	data     DataChain
	bindings Binding

	ssnState     SessionState
	prevSsnState SessionState
	streamState  StreamState
	state        State

	clientIP   netip.Addr
	serverIP   netip.Addr
	clientPort uint16
	serverPort uint16
	ifaceIn    int32
	ifaceOut   int32

	appIDs    [AppProtoMax]AppID
	service   string
	policyID  uint32
	ssnPolicy uint16

	expireTime   time.Time
	lastDataSeen time.Time

	innerClientTTL, innerServerTTL uint8
	outerClientTTL, outerServerTTL uint8
	mplsClient, mplsServer         packet.Layer

	responseCount  uint8
	disableInspect bool
}

// New returns an empty record whose sessions come from factory.
func New(factory SessionFactory) *Flow {
	return &Flow{factory: factory}
}

// SetKey points the record at the table-owned key for its current
// occupancy.
func (f *Flow) SetKey(k *Key) {
	f.key = k
	if k != nil {
		f.ipProto = k.Proto
	}
}

func (f *Flow) Key() *Key            { return f.key }
func (f *Flow) IPProto() uint8       { return f.ipProto }
func (f *Flow) PktType() packet.Type { return f.pktType }
func (f *Flow) Session() Session     { return f.session }

// Init binds the packet type and creates the protocol session. A session
// left over from a previous occupancy is destroyed first. On factory
// failure the record has no session and must not be inspected until Init
// succeeds.
func (f *Flow) Init(t packet.Type) error {
	f.Term()

	f.pktType = t
	f.prevSsnState = f.ssnState
	f.mplsClient, f.mplsServer = packet.Layer{}, packet.Layer{}
	f.innerClientTTL, f.innerServerTTL = 0, 0
	f.outerClientTTL, f.outerServerTTL = 0, 0

	if f.factory == nil {
		return errors.New(errors.KindUnavailable, "flow has no session factory")
	}
	s, err := f.factory.Create(t, f)
	if err != nil {
		return errors.Attr(errors.Wrap(err, errors.KindUnavailable, "create session"), "pkt_type", t.String())
	}
	f.session = s
	return nil
}

// Term destroys the protocol session, if any.
func (f *Flow) Term() {
	if f.session == nil {
		return
	}
	s := f.session
	f.session = nil
	if f.factory != nil {
		f.factory.Destroy(s)
	}
}

// Close tears the record down: the session is destroyed, every data block
// is destroyed and every inspector binding released. It is safe to call
// more than once.
func (f *Flow) Close() {
	f.Term()
	f.data.Clear()
	f.bindings.ReleaseAll()
}

// Clear rewinds every mutable field for reuse. The key, packet type and
// session survive. With dumpFlowData every data block first gets its
// end-of-flow callback and is then destroyed. All bindings are released.
func (f *Flow) Clear(dumpFlowData bool) {
	if dumpFlowData {
		f.data.Each(func(d Data) { d.HandleEOF(nil) })
		f.data.Clear()
	}
	f.bindings.ReleaseAll()

	f.ssnState = SessionState{}
	f.prevSsnState = SessionState{}
	f.streamState = StreamNone
	f.state = StateSetup

	f.clientIP, f.serverIP = netip.Addr{}, netip.Addr{}
	f.clientPort, f.serverPort = 0, 0
	f.ifaceIn, f.ifaceOut = 0, 0

	f.appIDs = [AppProtoMax]AppID{}
	f.service = ""
	f.policyID = 0
	f.ssnPolicy = 0

	f.expireTime = time.Time{}
	f.lastDataSeen = time.Time{}

	f.innerClientTTL, f.innerServerTTL = 0, 0
	f.outerClientTTL, f.outerServerTTL = 0, 0
	f.mplsClient, f.mplsServer = packet.Layer{}, packet.Layer{}

	f.responseCount = 0
	f.disableInspect = false
}

// Reset prepares the record for a different connection on the same slot.
// With doCleanup the session flushes and data blocks are dumped; without it
// the session is cleared and data blocks are kept.
func (f *Flow) Reset(doCleanup bool) {
	if f.session != nil {
		if doCleanup {
			f.session.Cleanup()
		} else {
			f.session.Clear()
		}
	}
	f.Clear(doCleanup)
}

// Restart rewinds the session flags for mid-stream resynchronization. The
// previous session state snapshot is not refreshed, so it still reports the
// state from before the restart.
func (f *Flow) Restart(dumpFlowData bool) {
	if dumpFlowData {
		f.data.Clear()
	}
	f.ssnState.IgnoreDirection = 0
	f.ssnState.Flags = FlagNone
	f.streamState = StreamNone
	f.expireTime = time.Time{}
}

// SetFlowData attaches d. If an entry with d's id exists the call fails,
// nothing changes and the caller keeps ownership of d.
func (f *Flow) SetFlowData(d Data) error {
	return f.data.Insert(d)
}

// GetFlowData returns the entry attached under id, or nil.
func (f *Flow) GetFlowData(id uint32) Data {
	return f.data.Get(id)
}

// FreeFlowData detaches and destroys the entry for id, if any.
func (f *Flow) FreeFlowData(id uint32) {
	f.data.Remove(id)
}

// FreeFlowDataEntry detaches and destroys d, if it is attached.
func (f *Flow) FreeFlowDataEntry(d Data) {
	f.data.RemoveData(d)
}

// FreeAllFlowData destroys every entry in insertion order.
func (f *Flow) FreeAllFlowData() {
	f.data.Clear()
}

// FlowDataCount returns the number of attached data blocks.
func (f *Flow) FlowDataCount() int {
	return f.data.Len()
}

// CallHandlers runs the ev callback of every attached data block in
// insertion order. Callbacks may free entries, their own or others'.
func (f *Flow) CallHandlers(p *packet.Packet, ev HandlerEvent) {
	f.data.Each(func(d Data) {
		switch ev {
		case EventExpected:
			d.HandleExpected(p)
		case EventRetransmit:
			d.HandleRetransmit(p)
		case EventEOF:
			d.HandleEOF(p)
		}
	})
}

// UpdateSessionFlags replaces the flag word.
func (f *Flow) UpdateSessionFlags(flags SessionFlags) SessionFlags {
	f.ssnState.Flags = flags
	return f.ssnState.Flags
}

// SetSessionFlags ORs flags in.
func (f *Flow) SetSessionFlags(flags SessionFlags) SessionFlags {
	f.ssnState.Flags |= flags
	return f.ssnState.Flags
}

// ClearSessionFlags clears flags.
func (f *Flow) ClearSessionFlags(flags SessionFlags) SessionFlags {
	f.ssnState.Flags &^= flags
	return f.ssnState.Flags
}

func (f *Flow) SessionFlags() SessionFlags { return f.ssnState.Flags }

// SessionState returns a copy of the current bit store.
func (f *Flow) SessionState() SessionState { return f.ssnState }

// PreviousSessionState returns the snapshot taken at Init.
func (f *Flow) PreviousSessionState() SessionState { return f.prevSsnState }

func (f *Flow) SetIPProtocol(p int16)  { f.ssnState.IPProtocol = p }
func (f *Flow) SetAppProtocol(p int16) { f.ssnState.AppProtocol = p }

func (f *Flow) IgnoreDirection() int8 { return f.ssnState.IgnoreDirection }

// SetIgnoreDirection stores dir and returns the resulting value.
func (f *Flow) SetIgnoreDirection(dir int8) int8 {
	if f.ssnState.IgnoreDirection != dir {
		f.ssnState.IgnoreDirection = dir
	}
	return f.ssnState.IgnoreDirection
}

func (f *Flow) StreamState() StreamState { return f.streamState }

func (f *Flow) SetStreamState(s StreamState) StreamState {
	f.streamState |= s
	return f.streamState
}

func (f *Flow) ClearStreamState(s StreamState) StreamState {
	f.streamState &^= s
	return f.streamState
}

// SetApplicationIDs stores the four application ids verbatim.
func (f *Flow) SetApplicationIDs(service, client, payload, misc AppID) {
	f.appIDs[AppProtoService] = service
	f.appIDs[AppProtoClient] = client
	f.appIDs[AppProtoPayload] = payload
	f.appIDs[AppProtoMisc] = misc
}

// ApplicationIDs returns the ids stored by SetApplicationIDs.
func (f *Flow) ApplicationIDs() (service, client, payload, misc AppID) {
	return f.appIDs[AppProtoService], f.appIDs[AppProtoClient],
		f.appIDs[AppProtoPayload], f.appIDs[AppProtoMisc]
}

func (f *Flow) Service() string        { return f.service }
func (f *Flow) SetService(name string) { f.service = name }

func (f *Flow) PolicyID() uint32          { return f.policyID }
func (f *Flow) SetPolicyID(id uint32)     { f.policyID = id }
func (f *Flow) SessionPolicy() uint16     { return f.ssnPolicy }
func (f *Flow) SetSessionPolicy(p uint16) { f.ssnPolicy = p }

// SetInterfaces records ingress and egress interface indexes.
func (f *Flow) SetInterfaces(in, out int32) { f.ifaceIn, f.ifaceOut = in, out }

func (f *Flow) Interfaces() (in, out int32) { return f.ifaceIn, f.ifaceOut }

func (f *Flow) ResponseCount() uint8 { return f.responseCount }

// IncResponseCount counts server responses, saturating at 255.
func (f *Flow) IncResponseCount() uint8 {
	if f.responseCount < ^uint8(0) {
		f.responseCount++
	}
	return f.responseCount
}

// TwoWayTraffic reports whether both directions have been seen.
func (f *Flow) TwoWayTraffic() bool { return f.ssnState.Flags.Has(FlagSeenBoth) }

func (f *Flow) SetProxied()     { f.ssnState.Flags |= FlagProxied }
func (f *Flow) IsProxied() bool { return f.ssnState.Flags&FlagProxied != 0 }

// IsStream reports whether the packet type is stream-capable.
func (f *Flow) IsStream() bool { return f.pktType&packet.TypeStream != 0 }

// Block marks both directions for dropping.
func (f *Flow) Block() { f.ssnState.Flags |= FlagBlock }

// WasBlocked reads the drop markers only; the verdict state is ignored.
func (f *Flow) WasBlocked() bool { return f.ssnState.Flags&FlagBlock != 0 }

func (f *Flow) State() State     { return f.state }
func (f *Flow) SetState(s State) { f.state = s }

// FullInspection reports whether capabilities should still run.
func (f *Flow) FullInspection() bool { return f.state <= StateInspect }

func (f *Flow) DisableInspection()         { f.disableInspect = true }
func (f *Flow) IsInspectionDisabled() bool { return f.disableInspect }

func (f *Flow) SetClient(ins Inspector) { f.bindings.Set(SlotClient, ins) }
func (f *Flow) ClearClient()            { f.bindings.Clear(SlotClient) }
func (f *Flow) Client() Inspector       { return f.bindings.Get(SlotClient) }

func (f *Flow) SetServer(ins Inspector) { f.bindings.Set(SlotServer, ins) }
func (f *Flow) ClearServer()            { f.bindings.Clear(SlotServer) }
func (f *Flow) Server() Inspector       { return f.bindings.Get(SlotServer) }

func (f *Flow) SetServiceIdentifier(ins Inspector) { f.bindings.Set(SlotServiceID, ins) }
func (f *Flow) ClearServiceIdentifier()            { f.bindings.Clear(SlotServiceID) }
func (f *Flow) ServiceIdentifier() Inspector       { return f.bindings.Get(SlotServiceID) }

func (f *Flow) SetHandler(ins Inspector) { f.bindings.Set(SlotHandler, ins) }
func (f *Flow) ClearHandler()            { f.bindings.Clear(SlotHandler) }
func (f *Flow) Handler() Inspector       { return f.bindings.Get(SlotHandler) }

func (f *Flow) SetDataInspector(ins Inspector) { f.bindings.Set(SlotData, ins) }
func (f *Flow) ClearDataInspector()            { f.bindings.Clear(SlotData) }
func (f *Flow) DataInspector() Inspector       { return f.bindings.Get(SlotData) }

// Inspectors returns the bound inspectors in slot order.
func (f *Flow) Inspectors() []Inspector { return f.bindings.Bound() }
