// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/flowcore/internal/errors"
	"grimm.is/flowcore/internal/packet"
)

func TestScenarioA_SeenBothDirections(t *testing.T) {
	f, _ := newInitedFlow(packet.TypeTCP)

	f.SetSessionFlags(FlagSeenClient)
	assert.False(t, f.TwoWayTraffic())
	f.SetSessionFlags(FlagSeenServer)

	assert.Equal(t, FlagSeenClient|FlagSeenServer, f.SessionFlags())
	assert.True(t, f.TwoWayTraffic())
}

func TestTwoWayTraffic_OrderIndependent(t *testing.T) {
	f, _ := newInitedFlow(packet.TypeUDP)
	f.SetSessionFlags(FlagSeenServer)
	assert.False(t, f.TwoWayTraffic())
	f.SetSessionFlags(FlagSeenClient)
	assert.True(t, f.TwoWayTraffic())
}

func TestScenarioB_DuplicateDataRejected(t *testing.T) {
	f, _ := newInitedFlow(packet.TypeTCP)
	a := newTestData(5, "A", nil)
	b := newTestData(5, "B", nil)

	require.NoError(t, f.SetFlowData(a))
	err := f.SetFlowData(b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateData))
	assert.Equal(t, errors.KindConflict, errors.GetKind(err))
	assert.Equal(t, uint32(5), errors.GetAttributes(err)["data_id"])

	assert.Equal(t, 1, f.FlowDataCount())
	assert.Same(t, a, f.GetFlowData(5))
	// Rejected block is still the caller's; nothing touched it.
	assert.Zero(t, b.destroyed)
	assert.Zero(t, a.destroyed)
}

func TestScenarioC_StateDoesNotDriveBlocked(t *testing.T) {
	f, _ := newInitedFlow(packet.TypeTCP)

	f.SetState(StateBlock)
	assert.False(t, f.FullInspection())
	assert.False(t, f.WasBlocked())

	f.Block()
	assert.True(t, f.WasBlocked())
	assert.Equal(t, FlagBlock, f.SessionFlags()&FlagBlock)
}

func TestScenarioD_CloseReleasesBinding(t *testing.T) {
	ins := newTestInspector("client")
	f, _ := newInitedFlow(packet.TypeTCP)

	f.SetClient(ins)
	assert.Equal(t, int32(1), ins.Refs())

	f.Close()
	assert.Equal(t, int32(0), ins.Refs())
	assert.Equal(t, ins.acquires, ins.releases)

	// A second Close must not release again.
	f.Close()
	assert.Equal(t, 1, ins.releases)
}

func TestInit(t *testing.T) {
	t.Run("creates session", func(t *testing.T) {
		f, fa := newInitedFlow(packet.TypeTCP)
		require.Len(t, fa.created, 1)
		assert.Same(t, fa.created[0], f.Session())
		assert.Equal(t, packet.TypeTCP, f.PktType())
		assert.True(t, f.IsStream())
	})

	t.Run("factory failure leaves no session", func(t *testing.T) {
		fa := &testFactory{fail: true}
		f := New(fa)
		err := f.Init(packet.TypeUDP)
		require.Error(t, err)
		assert.Equal(t, errors.KindUnavailable, errors.GetKind(err))
		assert.Equal(t, "udp", errors.GetAttributes(err)["pkt_type"])
		assert.Nil(t, f.Session())
		assert.False(t, f.IsStream())
	})

	t.Run("no factory", func(t *testing.T) {
		f := New(nil)
		assert.Error(t, f.Init(packet.TypeTCP))
	})

	t.Run("re-init destroys previous session", func(t *testing.T) {
		f, fa := newInitedFlow(packet.TypeTCP)
		first := fa.created[0]
		require.NoError(t, f.Init(packet.TypeTCP))
		assert.True(t, first.closed)
		assert.Equal(t, 1, fa.destroyed)
		assert.Len(t, fa.created, 2)
	})

	t.Run("snapshots session state and clears caches", func(t *testing.T) {
		f, _ := newInitedFlow(packet.TypeTCP)
		f.SetSessionFlags(FlagMidstream)
		f.SetTTL(&packet.Packet{TTL: 9}, true)
		require.NoError(t, f.Init(packet.TypeTCP))

		assert.Equal(t, FlagMidstream, f.PreviousSessionState().Flags)
		inner, _ := f.TTL(true)
		assert.Zero(t, inner)
	})
}

func TestTerm_Idempotent(t *testing.T) {
	f, fa := newInitedFlow(packet.TypeTCP)
	f.Term()
	f.Term()
	assert.Equal(t, 1, fa.destroyed)
	assert.Nil(t, f.Session())

	New(nil).Term()
}

func TestSetKey(t *testing.T) {
	f := New(&testFactory{})
	k := &Key{Proto: 17}
	f.SetKey(k)
	assert.Same(t, k, f.Key())
	assert.Equal(t, uint8(17), f.IPProto())
}

func TestClear(t *testing.T) {
	var log []string
	ins := newTestInspector("svc")
	f, _ := newInitedFlow(packet.TypeTCP)
	f.SetKey(&Key{Proto: 6})

	d1 := newTestData(1, "one", &log)
	d2 := newTestData(2, "two", &log)
	require.NoError(t, f.SetFlowData(d1))
	require.NoError(t, f.SetFlowData(d2))
	f.SetServiceIdentifier(ins)
	f.SetHandler(ins)
	f.SetSessionFlags(FlagSeenBoth | FlagEstablished)
	f.SetState(StateAllow)
	f.SetApplicationIDs(1, 2, 3, 4)
	f.SetService("https")
	f.SetPolicyID(7)
	f.SetExpire(&packet.Packet{Timestamp: time.Unix(100, 0)}, time.Minute)
	f.DisableInspection()
	f.SetEndpoints(&packet.Packet{SrcIP: netip.MustParseAddr("10.0.0.1"), SrcPort: 1})
	session := f.Session()

	f.Clear(true)

	assert.Equal(t, []string{"eof:one", "eof:two"}, log)
	assert.Equal(t, 1, d1.destroyed)
	assert.Equal(t, 1, d2.destroyed)
	assert.Zero(t, f.FlowDataCount())
	assert.Nil(t, f.GetFlowData(1))
	assert.Nil(t, f.GetFlowData(2))

	assert.Equal(t, int32(0), ins.Refs())
	assert.Nil(t, f.ServiceIdentifier())
	assert.Nil(t, f.Handler())

	assert.Equal(t, FlagNone, f.SessionFlags())
	assert.Equal(t, StateSetup, f.State())
	assert.True(t, f.FullInspection())
	s, c, p, m := f.ApplicationIDs()
	assert.Equal(t, []AppID{0, 0, 0, 0}, []AppID{s, c, p, m})
	assert.Empty(t, f.Service())
	assert.Zero(t, f.PolicyID())
	assert.True(t, f.ExpireTime().IsZero())
	assert.False(t, f.IsInspectionDisabled())
	client, _ := f.Endpoints()
	assert.False(t, client.Addr().IsValid())

	// Identity survives.
	assert.Equal(t, packet.TypeTCP, f.PktType())
	assert.Equal(t, uint8(6), f.IPProto())
	assert.Same(t, session, f.Session())
}

func TestClear_KeepsDataWithoutDump(t *testing.T) {
	f, _ := newInitedFlow(packet.TypeTCP)
	d := newTestData(1, "one", nil)
	require.NoError(t, f.SetFlowData(d))

	f.Clear(false)
	assert.Same(t, d, f.GetFlowData(1))
	assert.Zero(t, d.destroyed)
}

func TestReset(t *testing.T) {
	t.Run("with cleanup", func(t *testing.T) {
		f, fa := newInitedFlow(packet.TypeTCP)
		require.NoError(t, f.SetFlowData(newTestData(3, "x", nil)))
		f.SetSessionFlags(FlagSeenClient)

		f.Reset(true)

		assert.Equal(t, 1, fa.created[0].cleanups)
		assert.Zero(t, f.FlowDataCount())
		assert.Nil(t, f.GetFlowData(3))
		assert.Equal(t, FlagNone, f.SessionFlags())
	})

	t.Run("without cleanup", func(t *testing.T) {
		f, fa := newInitedFlow(packet.TypeTCP)
		require.NoError(t, f.SetFlowData(newTestData(3, "x", nil)))

		f.Reset(false)

		assert.Equal(t, 1, fa.created[0].clears)
		assert.Equal(t, 1, f.FlowDataCount())
	})

	t.Run("no session", func(t *testing.T) {
		f := New(&testFactory{fail: true})
		_ = f.Init(packet.TypeTCP)
		f.SetSessionFlags(FlagSeenClient)
		f.Reset(true)
		assert.Equal(t, FlagNone, f.SessionFlags())
	})
}

func TestRestart(t *testing.T) {
	f, _ := newInitedFlow(packet.TypeTCP)
	f.SetSessionFlags(FlagSeenBoth)
	f.SetIgnoreDirection(1)
	require.NoError(t, f.Init(packet.TypeTCP)) // snapshot
	f.SetSessionFlags(FlagReset)
	f.SetStreamState(StreamEstablished)
	f.SetExpire(&packet.Packet{Timestamp: time.Unix(10, 0)}, time.Second)
	d := newTestData(1, "kept", nil)
	require.NoError(t, f.SetFlowData(d))
	f.SetState(StateInspect)

	f.Restart(false)

	assert.Equal(t, FlagNone, f.SessionFlags())
	assert.Zero(t, f.IgnoreDirection())
	assert.Equal(t, StreamNone, f.StreamState())
	assert.True(t, f.ExpireTime().IsZero())
	assert.Equal(t, FlagSeenBoth, f.PreviousSessionState().Flags)
	assert.Equal(t, int8(1), f.PreviousSessionState().IgnoreDirection)
	assert.Same(t, d, f.GetFlowData(1))
	assert.Equal(t, StateInspect, f.State())

	f.Restart(true)
	assert.Zero(t, f.FlowDataCount())
	assert.Equal(t, 1, d.destroyed)
}

func TestSessionFlagAccessors(t *testing.T) {
	f, _ := newInitedFlow(packet.TypeTCP)

	assert.Equal(t, FlagSeenClient|FlagMidstream, f.SetSessionFlags(FlagSeenClient|FlagMidstream))
	assert.Equal(t, FlagSeenClient, f.ClearSessionFlags(FlagMidstream))
	assert.Equal(t, FlagProxied, f.UpdateSessionFlags(FlagProxied))
	assert.True(t, f.IsProxied())

	// No combination is rejected.
	all := SessionFlags(0xffffffff)
	assert.Equal(t, all, f.UpdateSessionFlags(all))
	assert.Equal(t, all, f.SessionFlags())
}

func TestSetProxied(t *testing.T) {
	f, _ := newInitedFlow(packet.TypeUDP)
	assert.False(t, f.IsProxied())
	f.SetProxied()
	assert.True(t, f.IsProxied())
}

func TestSetIgnoreDirection(t *testing.T) {
	f, _ := newInitedFlow(packet.TypeTCP)
	assert.Equal(t, int8(2), f.SetIgnoreDirection(2))
	assert.Equal(t, int8(2), f.SetIgnoreDirection(2))
	assert.Equal(t, int8(0), f.SetIgnoreDirection(0))
	assert.Equal(t, int8(0), f.IgnoreDirection())
}

func TestApplicationIDs(t *testing.T) {
	f, _ := newInitedFlow(packet.TypeTCP)
	f.SetApplicationIDs(676, -1, 0, 1122)
	s, c, p, m := f.ApplicationIDs()
	assert.Equal(t, AppID(676), s)
	assert.Equal(t, AppID(-1), c)
	assert.Equal(t, AppID(0), p)
	assert.Equal(t, AppID(1122), m)
}

func TestMiscAccessors(t *testing.T) {
	f, _ := newInitedFlow(packet.TypeTCP)

	f.SetInterfaces(2, 3)
	in, out := f.Interfaces()
	assert.Equal(t, int32(2), in)
	assert.Equal(t, int32(3), out)

	f.SetSessionPolicy(4)
	assert.Equal(t, uint16(4), f.SessionPolicy())

	for i := 0; i < 300; i++ {
		f.IncResponseCount()
	}
	assert.Equal(t, uint8(255), f.ResponseCount())

	f.SetIPProtocol(6)
	f.SetAppProtocol(80)
	st := f.SessionState()
	assert.Equal(t, int16(6), st.IPProtocol)
	assert.Equal(t, int16(80), st.AppProtocol)

	assert.Equal(t, StreamSyn|StreamAck, f.SetStreamState(StreamSyn|StreamAck))
	assert.Equal(t, StreamAck, f.ClearStreamState(StreamSyn))

	ts := time.Unix(50, 0)
	f.TouchData(ts)
	assert.Equal(t, ts, f.LastDataSeen())
}

func TestBindingNetZeroAcrossReuse(t *testing.T) {
	client := newTestInspector("client")
	server := newTestInspector("server")
	svc := newTestInspector("svc")
	f, _ := newInitedFlow(packet.TypeTCP)

	for i := 0; i < 1000; i++ {
		f.SetClient(client)
		f.SetServer(server)
		f.SetServiceIdentifier(svc)
		if i%2 == 0 {
			f.ClearServiceIdentifier()
			f.SetHandler(svc)
		}
		f.Reset(true)
		require.NoError(t, f.Init(packet.TypeTCP))
	}
	f.SetDataInspector(svc)
	f.Close()

	for _, ins := range []*testInspector{client, server, svc} {
		assert.Equal(t, ins.acquires, ins.releases, ins.Name())
		assert.Equal(t, int32(0), ins.Refs(), ins.Name())
	}
}
