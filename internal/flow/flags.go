// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

// SessionFlags is the flat per-flow bit set. Bit positions are read by
// statistics and logging consumers and must never be renumbered.
type SessionFlags uint32

const (
	FlagNone       SessionFlags = 0x00000000
	FlagSeenClient SessionFlags = 0x00000001
	FlagSeenServer SessionFlags = 0x00000002

	FlagEstablished SessionFlags = 0x00000004
	FlagMidstream   SessionFlags = 0x00000008 // picked up midstream

	FlagECNClientQuery SessionFlags = 0x00000010
	FlagECNServerReply SessionFlags = 0x00000020
	FlagClientFin      SessionFlags = 0x00000040 // server sent fin
	FlagServerFin      SessionFlags = 0x00000080 // client sent fin

	FlagCountedInitialize SessionFlags = 0x00000100
	FlagCountedEstablish  SessionFlags = 0x00000200
	FlagCountedClosing    SessionFlags = 0x00000400

	FlagTimedOut SessionFlags = 0x00001000
	FlagPruned   SessionFlags = 0x00002000
	FlagReset    SessionFlags = 0x00004000

	FlagDropClient SessionFlags = 0x00010000
	FlagDropServer SessionFlags = 0x00020000
	FlagForceBlock SessionFlags = 0x00040000

	FlagStreamOrderBad SessionFlags = 0x00100000
	FlagClientSwap     SessionFlags = 0x00200000
	FlagClientSwapped  SessionFlags = 0x00400000

	FlagProxied SessionFlags = 0x01000000

	FlagSeenBoth = FlagSeenClient | FlagSeenServer
	FlagBlock    = FlagDropClient | FlagDropServer
)

// Aliases used by connectionless protocols.
const (
	FlagSeenSender    = FlagSeenClient
	FlagSeenResponder = FlagSeenServer
)

// Has reports whether every bit in mask is set.
func (f SessionFlags) Has(mask SessionFlags) bool { return f&mask == mask }

// StreamState tracks the connection handshake as seen by the session layer.
type StreamState uint16

const (
	StreamNone         StreamState = 0x0000
	StreamSyn          StreamState = 0x0001
	StreamSynAck       StreamState = 0x0002
	StreamAck          StreamState = 0x0004
	StreamEstablished  StreamState = 0x0008
	StreamDropClient   StreamState = 0x0010
	StreamDropServer   StreamState = 0x0020
	StreamMidstream    StreamState = 0x0040
	StreamTimedOut     StreamState = 0x0080
	StreamUnreach      StreamState = 0x0100
	StreamClosed       StreamState = 0x0800
	StreamIgnore       StreamState = 0x1000
	StreamNoPickup     StreamState = 0x2000
	StreamBlockPending StreamState = 0x4000
)

// SessionState is the value-type bit store copied wholesale for snapshots.
type SessionState struct {
	Flags           SessionFlags
	IPProtocol      int16
	AppProtocol     int16
	Direction       int8
	IgnoreDirection int8
}

// AppID identifies an application detected on the flow.
type AppID int32

const AppIDNone AppID = 0

// Indexes into the application identifier set.
const (
	AppProtoService = iota
	AppProtoClient
	AppProtoPayload
	AppProtoMisc
	AppProtoMax
)
