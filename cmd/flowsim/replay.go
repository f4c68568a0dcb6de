// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"

	"grimm.is/flowcore/internal/engine"
	"grimm.is/flowcore/internal/errors"
	"grimm.is/flowcore/internal/flow"
	"grimm.is/flowcore/internal/logging"
)

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// Summary counts the outcomes of one replay.
type Summary struct {
	Packets      int
	DecodeErrors int
	FlowErrors   int
	NewFlows     int
	Closed       int
	Blocked      int
	Services     map[string]int
	Duration     time.Duration
}

// Print writes a human-readable report.
func (s *Summary) Print(w io.Writer, name string) {
	fmt.Fprintf(w, "%s: %d packets in %v\n", name, s.Packets, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  flows: %d new, %d closed, %d blocked\n", s.NewFlows, s.Closed, s.Blocked)
	fmt.Fprintf(w, "  errors: %d decode, %d flow\n", s.DecodeErrors, s.FlowErrors)
	for svc, n := range s.Services {
		fmt.Fprintf(w, "  service %s: %d flows\n", svc, n)
	}
}

// packetReader is satisfied by both pcapgo readers.
type packetReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

func openCapture(r io.Reader) (packetReader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "read capture header")
	}
	if bytes.Equal(magic, pcapngMagic) {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

// Replay feeds every packet of the capture at path through e.
func Replay(ctx context.Context, e *engine.Engine, path string, logger *logging.Logger) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindNotFound, "open capture %s", path)
	}
	defer f.Close()

	src, err := openCapture(f)
	if err != nil {
		return nil, errors.Attr(errors.Wrap(err, errors.KindValidation, "failed to open capture"), "path", path)
	}

	logger.Info("Starting replay", "path", path, "link_type", src.LinkType().String())

	sum := &Summary{Services: make(map[string]int)}
	blocked := make(map[uuid.UUID]struct{})
	start := time.Now()
	ps := gopacket.NewPacketSource(src, src.LinkType())
	for pkt := range ps.Packets() {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Packets++

		res, err := e.Process(pkt)
		if err != nil {
			if errors.GetKind(err) == errors.KindValidation {
				sum.DecodeErrors++
			} else {
				sum.FlowErrors++
				logger.Warn("Packet dropped", "error", err, "packet", sum.Packets)
			}
			continue
		}
		if res.New {
			sum.NewFlows++
			if res.Service != "" {
				sum.Services[res.Service]++
			}
		}
		if res.Closed {
			sum.Closed++
		}
		if res.State == flow.StateBlock {
			if _, seen := blocked[res.FlowID]; !seen {
				blocked[res.FlowID] = struct{}{}
				sum.Blocked++
			}
		}
	}
	sum.Duration = time.Since(start)
	logger.Info("Replay finished", "path", path, "packets", sum.Packets, "duration", sum.Duration)
	return sum, nil
}
