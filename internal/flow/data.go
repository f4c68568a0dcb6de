// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"sync/atomic"

	"grimm.is/flowcore/internal/errors"
	"grimm.is/flowcore/internal/packet"
)

// ErrDuplicateData is returned when a data block with the same id is already
// attached. The rejected block stays owned by the caller.
var ErrDuplicateData = errors.New(errors.KindConflict, "flow data id already attached")

var lastDataID atomic.Uint32

// NextDataID allocates a process-wide FlowData id. Inspectors call it once
// at construction and reuse the id for every flow they attach to.
func NextDataID() uint32 {
	return lastDataID.Add(1)
}

// Data is per-inspector state attached to a flow. Implementations are
// expected to be pointer types; entries are matched by identity.
type Data interface {
	// ID is the attaching capability's id; at most one entry per id.
	ID() uint32
	// Inspector is the creator, for attribution only. The flow holds no
	// reference on it.
	Inspector() Inspector

	HandleExpected(p *packet.Packet)
	HandleRetransmit(p *packet.Packet)
	// HandleEOF is called at end of flow. p is nil when the flow ends
	// without a packet (timeout, table eviction, clear).
	HandleEOF(p *packet.Packet)
}

// Destroyer is implemented by Data that holds resources. Destroy runs once,
// after the entry has been detached.
type Destroyer interface {
	Destroy()
}

// DataBase supplies the id, attribution and no-op handlers. Embed it and
// override the handlers you need.
type DataBase struct {
	id        uint32
	inspector Inspector
}

// NewDataBase returns a DataBase for id created by ins (which may be nil).
func NewDataBase(id uint32, ins Inspector) DataBase {
	return DataBase{id: id, inspector: ins}
}

func (d *DataBase) ID() uint32                      { return d.id }
func (d *DataBase) Inspector() Inspector            { return d.inspector }
func (d *DataBase) HandleExpected(*packet.Packet)   {}
func (d *DataBase) HandleRetransmit(*packet.Packet) {}
func (d *DataBase) HandleEOF(*packet.Packet)        {}

// HandlerEvent selects the callback CallHandlers dispatches.
type HandlerEvent uint8

const (
	EventExpected HandlerEvent = iota
	EventRetransmit
	EventEOF
)

type dataEntry struct {
	data     Data
	detached bool
}

// DataChain is the insertion-ordered set of data blocks owned by one flow.
// Chains stay short, so lookups are linear.
type DataChain struct {
	entries []*dataEntry
}

// Len returns the number of attached entries.
func (c *DataChain) Len() int { return len(c.entries) }

// Insert appends d. It fails without mutation if d's id is present.
func (c *DataChain) Insert(d Data) error {
	if c.index(d.ID()) >= 0 {
		return errors.Attr(errors.Wrap(ErrDuplicateData, errors.KindConflict, "set flow data"), "data_id", d.ID())
	}
	c.entries = append(c.entries, &dataEntry{data: d})
	return nil
}

// Get returns the entry for id, or nil.
func (c *DataChain) Get(id uint32) Data {
	if i := c.index(id); i >= 0 {
		return c.entries[i].data
	}
	return nil
}

// Remove detaches and destroys the entry for id. Absent ids are ignored.
func (c *DataChain) Remove(id uint32) {
	if i := c.index(id); i >= 0 {
		c.removeAt(i)
	}
}

// RemoveData detaches and destroys d if it is the attached entry for its id.
func (c *DataChain) RemoveData(d Data) {
	if d == nil {
		return
	}
	for i, e := range c.entries {
		if e.data == d {
			c.removeAt(i)
			return
		}
	}
}

// Clear destroys every entry in insertion order.
func (c *DataChain) Clear() {
	for len(c.entries) > 0 {
		c.removeAt(0)
	}
}

// Each calls fn for every entry attached when Each starts, in insertion
// order. fn may detach any entry, including the current one; detached
// entries are skipped. Entries attached during the walk are not visited.
func (c *DataChain) Each(fn func(Data)) {
	if len(c.entries) == 0 {
		return
	}
	snapshot := make([]*dataEntry, len(c.entries))
	copy(snapshot, c.entries)

	for _, e := range snapshot {
		if e.detached {
			continue
		}
		fn(e.data)
	}
}

func (c *DataChain) index(id uint32) int {
	for i, e := range c.entries {
		if e.data.ID() == id {
			return i
		}
	}
	return -1
}

func (c *DataChain) removeAt(i int) {
	e := c.entries[i]
	last := len(c.entries) - 1
	copy(c.entries[i:], c.entries[i+1:])
	c.entries[last] = nil
	c.entries = c.entries[:last]
	e.detached = true
	if d, ok := e.data.(Destroyer); ok {
		d.Destroy()
	}
}
