// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package inspectors

import (
	"encoding/hex"
	"strings"

	"github.com/dreadl0ck/ja3"
	"github.com/dreadl0ck/tlsx"

	"grimm.is/flowcore/internal/config"
	"grimm.is/flowcore/internal/errors"
	"grimm.is/flowcore/internal/flow"
	"grimm.is/flowcore/internal/logging"
	"grimm.is/flowcore/internal/packet"
)

// TLSData is the fingerprint of a flow's client hello.
type TLSData struct {
	flow.DataBase
	JA3         string
	SNI         string
	Retransmits int

	logger *logging.Logger
}

// HandleRetransmit counts retransmitted segments seen after the hello.
func (d *TLSData) HandleRetransmit(*packet.Packet) { d.Retransmits++ }

// HandleEOF logs the fingerprint once the flow ends.
func (d *TLSData) HandleEOF(*packet.Packet) {
	d.logger.Info("TLS flow ended", "ja3", d.JA3, "sni", d.SNI, "retransmits", d.Retransmits)
}

// TLSFingerprinter computes JA3 digests and extracts SNI from client
// hellos, and blocks flows that match the configured deny lists.
type TLSFingerprinter struct {
	flow.InspectorBase
	dataID     uint32
	blockedJA3 map[string]struct{}
	blockedSNI []string
	logger     *logging.Logger
}

// NewTLSFingerprinter creates the inspector. cfg may be nil.
func NewTLSFingerprinter(cfg *config.TLSConfig, logger *logging.Logger) *TLSFingerprinter {
	if logger == nil {
		logger = logging.WithComponent("tls")
	}
	t := &TLSFingerprinter{
		InspectorBase: flow.NewInspectorBase("tls"),
		dataID:        flow.NextDataID(),
		blockedJA3:    make(map[string]struct{}),
		logger:        logger,
	}
	if cfg != nil {
		for _, h := range cfg.BlockedJA3 {
			t.blockedJA3[strings.ToLower(h)] = struct{}{}
		}
		for _, n := range cfg.BlockedSNI {
			t.blockedSNI = append(t.blockedSNI, strings.ToLower(n))
		}
	}
	return t
}

func (t *TLSFingerprinter) Slot() flow.Slot { return flow.SlotData }

// DataID is the id of the TLSData blocks this inspector attaches.
func (t *TLSFingerprinter) DataID() uint32 { return t.dataID }

// Inspect fingerprints the first client hello of a TCP flow.
func (t *TLSFingerprinter) Inspect(f *flow.Flow, p *packet.Packet) error {
	if p.Proto != ipProtoTCP || p.Raw == nil || !p.FromClient() || !isClientHello(p.Payload) {
		return nil
	}
	if f.GetFlowData(t.dataID) != nil {
		return nil
	}

	var hello tlsx.ClientHelloBasic
	if err := hello.Unmarshal(p.Payload); err != nil {
		// Hellos split across segments are not reassembled.
		t.logger.Debug("Unparseable client hello", "flow", f.Key().String(), "error", err)
		return nil
	}

	digest := ja3.DigestPacket(p.Raw)
	d := &TLSData{
		DataBase: flow.NewDataBase(t.dataID, t),
		JA3:      hex.EncodeToString(digest[:]),
		SNI:      strings.ToLower(hello.SNI),
		logger:   t.logger.With("flow", f.Key().String()),
	}
	if err := f.SetFlowData(d); err != nil {
		return errors.Attr(err, "inspector", t.Name())
	}

	if t.blocked(d) {
		t.logger.Warn("Blocking TLS flow", "flow", f.Key().String(), "ja3", d.JA3, "sni", d.SNI)
		f.Block()
		f.SetState(flow.StateBlock)
	}
	return nil
}

func (t *TLSFingerprinter) blocked(d *TLSData) bool {
	if _, ok := t.blockedJA3[d.JA3]; ok {
		return true
	}
	if d.SNI == "" {
		return false
	}
	for _, pattern := range t.blockedSNI {
		if matchHost(pattern, d.SNI) {
			return true
		}
	}
	return false
}

// matchHost matches host against an exact name or a "*." suffix pattern.
func matchHost(pattern, host string) bool {
	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return strings.HasSuffix(host, "."+suffix)
	}
	return pattern == host
}

// isClientHello checks the TLS record and handshake type bytes.
func isClientHello(payload []byte) bool {
	return len(payload) >= 6 && payload[0] == 0x16 && payload[5] == 0x01
}
