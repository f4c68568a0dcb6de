// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package engine drives decoded packets through the flow table, the
// protocol sessions and the bound inspectors, and produces a verdict per
// packet.
package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gopacket/gopacket"

	"grimm.is/flowcore/internal/config"
	"grimm.is/flowcore/internal/errors"
	"grimm.is/flowcore/internal/flow"
	"grimm.is/flowcore/internal/flowtable"
	"grimm.is/flowcore/internal/inspectors"
	"grimm.is/flowcore/internal/logging"
	"grimm.is/flowcore/internal/metrics"
	"grimm.is/flowcore/internal/packet"
)

// Options wires an Engine.
type Options struct {
	Table      *flowtable.Table
	Inspectors []inspectors.Inspector
	Config     *config.EngineConfig
	// PruneInterval is how often, in packet time, idle flows are pruned.
	// Zero disables pruning from Process.
	PruneInterval time.Duration
	Logger        *logging.Logger
	Metrics       *metrics.Metrics
}

// Result is the outcome of one packet.
type Result struct {
	FlowID  uuid.UUID
	State   flow.State
	Service string
	New     bool
	Closed  bool
}

// Engine processes packets. Process may be called from several goroutines;
// packets of the same flow must not be processed concurrently.
type Engine struct {
	table      *flowtable.Table
	inspectors []inspectors.Inspector
	timeouts   map[packet.Type]time.Duration
	defTimeout time.Duration
	pruneEvery time.Duration
	logger     *logging.Logger
	metrics    *metrics.Metrics

	pruneMu   sync.Mutex
	lastPrune time.Time
}

// New validates opts and builds the engine. Two inspectors may not share a
// binding slot.
func New(opts Options) (*Engine, error) {
	if opts.Table == nil {
		return nil, errors.New(errors.KindValidation, "engine requires a flow table")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default().Engine
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("engine")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewMetrics()
	}

	var used [5]string
	for _, ins := range opts.Inspectors {
		s := ins.Slot()
		if int(s) >= len(used) {
			return nil, errors.Attr(errors.Errorf(errors.KindValidation, "inspector %s has invalid slot", ins.Name()), "slot", int(s))
		}
		if used[s] != "" {
			return nil, errors.Attr(errors.Errorf(errors.KindValidation,
				"inspectors %s and %s both bind the %s slot", used[s], ins.Name(), s), "slot", s.String())
		}
		used[s] = ins.Name()
	}

	return &Engine{
		table:      opts.Table,
		inspectors: opts.Inspectors,
		timeouts: map[packet.Type]time.Duration{
			packet.TypeTCP: cfg.TCPTimeoutDuration(),
			packet.TypeUDP: cfg.UDPTimeoutDuration(),
		},
		defTimeout: cfg.IPTimeoutDuration(),
		pruneEvery: opts.PruneInterval,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}, nil
}

// Process decodes raw and runs it through its flow.
func (e *Engine) Process(raw gopacket.Packet) (Result, error) {
	e.metrics.PacketsProcessed.Inc()

	p, err := packet.Decode(raw)
	if err != nil {
		e.metrics.DecodeErrors.Inc()
		return Result{}, err
	}
	e.maybePrune(p.Timestamp)

	f, isNew, err := e.table.Checkout(p)
	if err != nil {
		return Result{}, err
	}

	res := Result{FlowID: e.table.ID(f), New: isNew}
	if isNew {
		e.setup(f, p)
	}

	e.track(f, p)

	tracker, _ := f.Session().(*Tracker)
	if tracker != nil && tracker.Update(p) {
		p.Flags |= packet.FlagRetransmit
		e.metrics.HandlerEvents.WithLabelValues("retransmit").Inc()
		f.CallHandlers(p, flow.EventRetransmit)
	}

	if f.FullInspection() && !f.IsInspectionDisabled() {
		e.inspect(f, p)
	}

	if f.WasBlocked() && !f.State().Terminal() {
		f.SetState(flow.StateBlock)
	}
	res.State = f.State()
	res.Service = f.Service()
	e.metrics.Verdicts.WithLabelValues(res.State.String()).Inc()

	if tracker != nil && tracker.Done() {
		f.SetStreamState(flow.StreamClosed)
		e.metrics.HandlerEvents.WithLabelValues("eof").Add(float64(f.FlowDataCount()))
		e.table.Close(f)
		res.Closed = true
		return res, nil
	}
	e.table.Return(f)
	return res, nil
}

// setup prepares a fresh occupancy: the first packet's source is the
// client and every inspector is bound.
func (e *Engine) setup(f *flow.Flow, p *packet.Packet) {
	f.SetEndpoints(p)
	f.SetIPProtocol(int16(p.Proto))
	for _, ins := range e.inspectors {
		bind(f, ins)
	}
	f.SetState(flow.StateInspect)

	e.logger.Debug("New flow", "flow", f.Key().String(), "inspectors", len(e.inspectors))
}

// track refreshes the per-packet caches of f.
func (e *Engine) track(f *flow.Flow, p *packet.Packet) {
	f.SetDirection(p)
	f.MarkupPacketFlags(p)

	client := p.FromClient()
	if client {
		f.SetSessionFlags(flow.FlagSeenClient)
	} else {
		f.SetSessionFlags(flow.FlagSeenServer)
	}
	f.SetTTL(p, client)
	f.SetMPLSLayerPerDir(p)

	timeout, ok := e.timeouts[f.PktType()]
	if !ok {
		timeout = e.defTimeout
	}
	f.SetExpire(p, timeout)
	if len(p.Payload) > 0 {
		f.TouchData(p.Timestamp)
	}
}

// inspect runs the bound inspectors in slot order until one ends full
// inspection.
func (e *Engine) inspect(f *flow.Flow, p *packet.Packet) {
	for _, bound := range f.Inspectors() {
		ins, ok := bound.(inspectors.Inspector)
		if !ok {
			continue
		}
		if err := ins.Inspect(f, p); err != nil {
			if errors.Is(err, flow.ErrDuplicateData) {
				e.metrics.DataRejects.WithLabelValues(ins.Name()).Inc()
			}
			e.logger.WithError(err).Warn("Inspector failed", "inspector", ins.Name(), "flow", f.Key().String())
		}
		if !f.FullInspection() {
			return
		}
	}
}

func (e *Engine) maybePrune(now time.Time) {
	if e.pruneEvery <= 0 || now.IsZero() {
		return
	}
	e.pruneMu.Lock()
	if e.lastPrune.IsZero() {
		e.lastPrune = now
	}
	due := now.Sub(e.lastPrune) >= e.pruneEvery
	if due {
		e.lastPrune = now
	}
	e.pruneMu.Unlock()

	if !due {
		return
	}
	if n := e.table.Prune(now); n > 0 {
		e.logger.Debug("Pruned idle flows", "count", n)
	}
}

func bind(f *flow.Flow, ins inspectors.Inspector) {
	switch ins.Slot() {
	case flow.SlotClient:
		f.SetClient(ins)
	case flow.SlotServer:
		f.SetServer(ins)
	case flow.SlotServiceID:
		f.SetServiceIdentifier(ins)
	case flow.SlotHandler:
		f.SetHandler(ins)
	case flow.SlotData:
		f.SetDataInspector(ins)
	}
}
