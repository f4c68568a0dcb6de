// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"errors"

	"grimm.is/flowcore/internal/packet"
)

type testInspector struct {
	InspectorBase
	acquires int
	releases int
}

func newTestInspector(name string) *testInspector {
	return &testInspector{InspectorBase: NewInspectorBase(name)}
}

func (i *testInspector) Acquire() {
	i.acquires++
	i.InspectorBase.Acquire()
}

func (i *testInspector) Release() {
	i.releases++
	i.InspectorBase.Release()
}

type testSession struct {
	cleanups, clears int
	closed           bool
}

func (s *testSession) Cleanup() { s.cleanups++ }
func (s *testSession) Clear()   { s.clears++ }
func (s *testSession) Close() error {
	s.closed = true
	return nil
}

type testFactory struct {
	fail      bool
	created   []*testSession
	destroyed int
}

func (fa *testFactory) Create(t packet.Type, f *Flow) (Session, error) {
	if fa.fail {
		return nil, errors.New("out of sessions")
	}
	s := &testSession{}
	fa.created = append(fa.created, s)
	return s, nil
}

func (fa *testFactory) Destroy(s Session) {
	fa.destroyed++
	s.(*testSession).closed = true
}

// testData records handler calls into a shared log.
type testData struct {
	DataBase
	value     string
	log       *[]string
	destroyed int
	onEOF     func()
	onRetrans func()
}

func newTestData(id uint32, value string, log *[]string) *testData {
	return &testData{DataBase: NewDataBase(id, nil), value: value, log: log}
}

func (d *testData) record(ev string) {
	if d.log != nil {
		*d.log = append(*d.log, ev+":"+d.value)
	}
}

func (d *testData) HandleExpected(*packet.Packet) { d.record("expected") }

func (d *testData) HandleRetransmit(*packet.Packet) {
	d.record("retransmit")
	if d.onRetrans != nil {
		d.onRetrans()
	}
}

func (d *testData) HandleEOF(*packet.Packet) {
	d.record("eof")
	if d.onEOF != nil {
		d.onEOF()
	}
}

func (d *testData) Destroy() { d.destroyed++ }

func newInitedFlow(t packet.Type) (*Flow, *testFactory) {
	fa := &testFactory{}
	f := New(fa)
	if err := f.Init(t); err != nil {
		panic(err)
	}
	return f, fa
}
