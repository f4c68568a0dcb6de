// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package flowtable owns flow keys and leases flow records to packet
// workers. Records are recycled through a bounded pool instead of being
// freed when a connection ends.
package flowtable

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"grimm.is/flowcore/internal/config"
	"grimm.is/flowcore/internal/errors"
	"grimm.is/flowcore/internal/flow"
	"grimm.is/flowcore/internal/logging"
	"grimm.is/flowcore/internal/metrics"
	"grimm.is/flowcore/internal/packet"
)

// Config for the flow table
type Config struct {
	MaxFlows        int           `json:"max_flows"`
	PoolSize        int           `json:"pool_size"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

// DefaultConfig returns default flow table configuration
func DefaultConfig() *Config {
	return &Config{
		MaxFlows:        100000,
		PoolSize:        1024,
		CleanupInterval: 1 * time.Minute,
	}
}

// ConfigFrom converts the HCL table block.
func ConfigFrom(c *config.TableConfig) *Config {
	if c == nil {
		return DefaultConfig()
	}
	return &Config{
		MaxFlows:        c.MaxFlows,
		PoolSize:        c.PoolSize,
		CleanupInterval: c.CleanupIntervalDuration(),
	}
}

type entry struct {
	key    *flow.Key
	flow   *flow.Flow
	id     uuid.UUID
	leased bool
}

// Table maps keys to flow records.
type Table struct {
	config  *Config
	factory flow.SessionFactory
	logger  *logging.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	entries map[flow.Key]*entry
	byFlow  map[*flow.Flow]*entry
	pool    []*flow.Flow

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a flow table. Nil config, logger or metrics fall back to
// defaults.
func New(factory flow.SessionFactory, config *Config, logger *logging.Logger, m *metrics.Metrics) *Table {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logging.WithComponent("flowtable")
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	return &Table{
		config:  config,
		factory: factory,
		logger:  logger,
		metrics: m,
		entries: make(map[flow.Key]*entry),
		byFlow:  make(map[*flow.Flow]*entry),
	}
}

// Checkout leases the record for p's connection, creating the occupancy if
// the key is new. isNew reports a fresh occupancy whose record has just been
// initialized. A record stays leased until Return or Close.
func (t *Table) Checkout(p *packet.Packet) (f *flow.Flow, isNew bool, err error) {
	key := flow.KeyFromPacket(p)

	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[key]; ok {
		if e.leased {
			t.metrics.CheckoutConflicts.Inc()
			return nil, false, errors.Attr(errors.New(errors.KindConflict, "flow already leased"), "flow", key.String())
		}
		e.leased = true
		return e.flow, false, nil
	}

	if len(t.entries) >= t.config.MaxFlows {
		t.metrics.TableFull.Inc()
		return nil, false, errors.Attr(errors.Errorf(errors.KindUnavailable,
			"maximum number of flows reached (%d)", t.config.MaxFlows), "flow", key.String())
	}

	f = t.getRecord()
	e := &entry{key: &key, flow: f, id: uuid.New(), leased: true}
	f.SetKey(e.key)
	if err := f.Init(p.Type); err != nil {
		f.SetKey(nil)
		t.putRecord(f)
		t.metrics.InitFailures.WithLabelValues(p.Type.String()).Inc()
		return nil, false, err
	}

	t.entries[key] = e
	t.byFlow[f] = e
	t.metrics.ActiveFlows.Set(float64(len(t.entries)))

	t.logger.Debug("Created flow", "flow", key.String(), "flow_id", e.id, "pkt_type", p.Type.String())
	return f, true, nil
}

// Return ends the lease on f without ending the occupancy.
func (t *Table) Return(f *flow.Flow) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.byFlow[f]; ok {
		e.leased = false
	}
}

// Close ends f's occupancy. Every data block gets its end-of-flow callback,
// the bindings are released and the record goes back to the pool.
func (t *Table) Close(f *flow.Flow) {
	t.mu.Lock()
	e, ok := t.byFlow[f]
	if ok {
		t.remove(e)
	}
	t.mu.Unlock()

	if !ok {
		return
	}
	t.recycle(e)
	t.metrics.FlowsClosed.Inc()
}

// ID returns the occupancy id of f, or uuid.Nil if f is not in the table.
func (t *Table) ID(f *flow.Flow) uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.byFlow[f]; ok {
		return e.id
	}
	return uuid.Nil
}

// Prune closes every idle record that has expired at now and returns how
// many were closed. Leased records are skipped.
func (t *Table) Prune(now time.Time) int {
	t.mu.Lock()
	var expired []*entry
	for _, e := range t.entries {
		if !e.leased && e.flow.ExpiredAt(now) {
			expired = append(expired, e)
		}
	}
	for _, e := range expired {
		t.remove(e)
	}
	t.mu.Unlock()

	for _, e := range expired {
		t.recycle(e)
	}
	if len(expired) > 0 {
		t.metrics.FlowsPruned.Add(float64(len(expired)))
		t.logger.Debug("Pruned expired flows", "count", len(expired))
	}
	return len(expired)
}

// Flush closes every idle record regardless of expiry.
func (t *Table) Flush() int {
	t.mu.Lock()
	var idle []*entry
	for _, e := range t.entries {
		if !e.leased {
			idle = append(idle, e)
		}
	}
	for _, e := range idle {
		t.remove(e)
	}
	t.mu.Unlock()

	for _, e := range idle {
		t.recycle(e)
	}
	t.metrics.FlowsClosed.Add(float64(len(idle)))
	return len(idle)
}

// Len returns the number of occupied keys.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// PoolLen returns the number of idle records waiting for reuse.
func (t *Table) PoolLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pool)
}

// Start runs periodic pruning against the wall clock until ctx is done or
// Stop is called.
func (t *Table) Start(ctx context.Context) {
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})

	go t.cleanupRoutine(ctx, t.stopCh, t.doneCh)

	t.logger.Info("Flow table started",
		"cleanup_interval", t.config.CleanupInterval,
		"max_flows", t.config.MaxFlows,
		"pool_size", t.config.PoolSize)
}

// Stop stops the cleanup routine and waits for it to exit.
func (t *Table) Stop() {
	if t.stopCh == nil {
		return
	}
	select {
	case <-t.stopCh:
	default:
		close(t.stopCh)
	}
	<-t.doneCh
	t.logger.Info("Flow table stopped")
}

func (t *Table) cleanupRoutine(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(t.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			t.Prune(now)
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// remove drops e from the maps. Caller holds t.mu.
func (t *Table) remove(e *entry) {
	delete(t.entries, *e.key)
	delete(t.byFlow, e.flow)
	t.metrics.ActiveFlows.Set(float64(len(t.entries)))
}

// recycle rewinds a removed record and pools it. Runs without t.mu held
// since end-of-flow callbacks run arbitrary inspector code.
func (t *Table) recycle(e *entry) {
	f := e.flow
	f.Reset(true)
	f.Term()
	f.SetKey(nil)

	t.logger.Debug("Closed flow", "flow", e.key.String(), "flow_id", e.id)

	t.mu.Lock()
	t.putRecord(f)
	t.mu.Unlock()
}

// getRecord pops a pooled record or allocates one. Caller holds t.mu.
func (t *Table) getRecord() *flow.Flow {
	if n := len(t.pool); n > 0 {
		f := t.pool[n-1]
		t.pool[n-1] = nil
		t.pool = t.pool[:n-1]
		t.metrics.FlowsRecycled.Inc()
		t.metrics.PooledFlows.Set(float64(len(t.pool)))
		return f
	}
	t.metrics.FlowsCreated.Inc()
	return flow.New(t.factory)
}

// putRecord pools f, or destroys it when the pool is full. Caller holds t.mu.
func (t *Table) putRecord(f *flow.Flow) {
	if len(t.pool) >= t.config.PoolSize {
		f.Close()
		return
	}
	t.pool = append(t.pool, f)
	t.metrics.PooledFlows.Set(float64(len(t.pool)))
}
