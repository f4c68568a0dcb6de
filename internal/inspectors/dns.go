// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package inspectors

import (
	"github.com/miekg/dns"

	"grimm.is/flowcore/internal/errors"
	"grimm.is/flowcore/internal/flow"
	"grimm.is/flowcore/internal/logging"
	"grimm.is/flowcore/internal/packet"
)

// DNSData accumulates the queries and answers of one DNS flow.
type DNSData struct {
	flow.DataBase
	Queries   []string
	Answers   int
	LastRcode string

	logger *logging.Logger
}

// HandleEOF logs a summary of the exchange.
func (d *DNSData) HandleEOF(*packet.Packet) {
	d.logger.Info("DNS flow ended", "queries", d.Queries, "answers", d.Answers, "rcode", d.LastRcode)
}

// DNSInspector decodes DNS messages on port 53.
type DNSInspector struct {
	flow.InspectorBase
	dataID uint32
	logger *logging.Logger
}

// NewDNSInspector creates the inspector.
func NewDNSInspector(logger *logging.Logger) *DNSInspector {
	if logger == nil {
		logger = logging.WithComponent("dns")
	}
	return &DNSInspector{
		InspectorBase: flow.NewInspectorBase("dns"),
		dataID:        flow.NextDataID(),
		logger:        logger,
	}
}

func (i *DNSInspector) Slot() flow.Slot { return flow.SlotHandler }

// DataID is the id of the DNSData blocks this inspector attaches.
func (i *DNSInspector) DataID() uint32 { return i.dataID }

// Inspect records questions from queries and answer counts from responses.
// Malformed messages are ignored.
func (i *DNSInspector) Inspect(f *flow.Flow, p *packet.Packet) error {
	if p.Proto != ipProtoUDP || (p.SrcPort != 53 && p.DstPort != 53) || len(p.Payload) == 0 {
		return nil
	}

	msg := new(dns.Msg)
	if err := msg.Unpack(p.Payload); err != nil {
		i.logger.Debug("Malformed DNS message", "flow", f.Key().String(), "error", err)
		return nil
	}

	d, _ := f.GetFlowData(i.dataID).(*DNSData)
	if d == nil {
		d = &DNSData{
			DataBase: flow.NewDataBase(i.dataID, i),
			logger:   i.logger.With("flow", f.Key().String()),
		}
		if err := f.SetFlowData(d); err != nil {
			return errors.Attr(err, "inspector", i.Name())
		}
	}

	if !msg.Response {
		for _, q := range msg.Question {
			d.Queries = append(d.Queries, q.Name)
		}
		return nil
	}

	d.Answers += len(msg.Answer)
	d.LastRcode = dns.RcodeToString[msg.Rcode]
	f.IncResponseCount()
	return nil
}
