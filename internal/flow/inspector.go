// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"sync/atomic"

	"grimm.is/flowcore/internal/errors"
)

// Inspector is a pluggable capability that flows hold shared references to.
// Many flows (and the inspector registry) may own the same Inspector; each
// binding takes one reference with Acquire and drops it with Release.
type Inspector interface {
	Name() string
	Acquire()
	Release()
}

// InspectorBase is an embeddable reference count. Release below zero is a
// contract violation and panics with a KindContract error.
type InspectorBase struct {
	name string
	refs int32
}

// NewInspectorBase returns a base with zero references.
func NewInspectorBase(name string) InspectorBase {
	return InspectorBase{name: name}
}

func (b *InspectorBase) Name() string { return b.name }

// Acquire takes one reference.
func (b *InspectorBase) Acquire() {
	atomic.AddInt32(&b.refs, 1)
}

// Release drops one reference.
func (b *InspectorBase) Release() {
	if n := atomic.AddInt32(&b.refs, -1); n < 0 {
		atomic.AddInt32(&b.refs, 1)
		panic(errors.Contract("inspector %q released without a matching acquire", b.name))
	}
}

// Refs returns the current reference count.
func (b *InspectorBase) Refs() int32 {
	return atomic.LoadInt32(&b.refs)
}

// Slot names one of the five inspector bindings of a flow.
type Slot uint8

const (
	SlotClient Slot = iota
	SlotServer
	SlotServiceID // service identifier
	SlotHandler   // protocol handler for the identified service
	SlotData      // generic data inspector
	slotCount
)

func (s Slot) String() string {
	switch s {
	case SlotClient:
		return "client"
	case SlotServer:
		return "server"
	case SlotServiceID:
		return "service_id"
	case SlotHandler:
		return "handler"
	case SlotData:
		return "data"
	default:
		return "invalid"
	}
}

// Binding holds one acquired reference per occupied slot.
type Binding struct {
	slots [slotCount]Inspector
}

// Set acquires ins and stores it in s. A previous occupant is released first.
func (b *Binding) Set(s Slot, ins Inspector) {
	if ins == nil {
		panic(errors.Contract("nil inspector bound to %s slot", s))
	}
	ins.Acquire()
	if old := b.slots[s]; old != nil {
		old.Release()
	}
	b.slots[s] = ins
}

// Clear releases the reference held in s. Clearing an empty slot is a
// double release and panics.
func (b *Binding) Clear(s Slot) {
	ins := b.slots[s]
	if ins == nil {
		panic(errors.Contract("clear of empty %s inspector slot", s))
	}
	b.slots[s] = nil
	ins.Release()
}

// Get returns the inspector bound to s, or nil.
func (b *Binding) Get(s Slot) Inspector {
	return b.slots[s]
}

// ReleaseAll releases every occupied slot exactly once.
func (b *Binding) ReleaseAll() {
	for s := range b.slots {
		if ins := b.slots[s]; ins != nil {
			b.slots[s] = nil
			ins.Release()
		}
	}
}

// Bound returns the occupied slots' inspectors in slot order.
func (b *Binding) Bound() []Inspector {
	var out []Inspector
	for _, ins := range b.slots {
		if ins != nil {
			out = append(out, ins)
		}
	}
	return out
}
