// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package inspectors holds the packet inspectors bundled with flowcore.
// Each inspector is shared by every flow it is bound to and keeps its
// per-flow state in flow data blocks.
package inspectors

import (
	"grimm.is/flowcore/internal/flow"
	"grimm.is/flowcore/internal/packet"
)

// Inspector is a flow.Inspector that examines packets. Slot names the
// binding slot the engine places it in.
type Inspector interface {
	flow.Inspector
	Slot() flow.Slot
	// Inspect is called for every packet of a flow under full inspection.
	// A returned error is reported but does not stop the pipeline.
	Inspect(f *flow.Flow, p *packet.Packet) error
}

const (
	ipProtoTCP = 6
	ipProtoUDP = 17
)
