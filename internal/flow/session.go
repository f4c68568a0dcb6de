// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"grimm.is/flowcore/internal/errors"
	"grimm.is/flowcore/internal/packet"
)

// Session is the protocol-specific state owned by a flow (stream
// reassembly, datagram tracking). The core only manages its lifetime.
type Session interface {
	// Cleanup flushes pending state before the flow is reused.
	Cleanup()
	// Clear drops pending state without flushing.
	Clear()
}

// SessionFactory creates and destroys sessions by packet type.
type SessionFactory interface {
	Create(t packet.Type, f *Flow) (Session, error)
	Destroy(s Session)
}

// SessionCtor builds the session for one packet type.
type SessionCtor func(f *Flow) (Session, error)

// SessionRegistry is a SessionFactory keyed by packet type.
type SessionRegistry struct {
	ctors map[packet.Type]SessionCtor
}

// NewSessionRegistry returns an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{ctors: make(map[packet.Type]SessionCtor)}
}

// Register installs ctor for t, replacing any previous constructor.
func (r *SessionRegistry) Register(t packet.Type, ctor SessionCtor) {
	r.ctors[t] = ctor
}

// Create implements SessionFactory.
func (r *SessionRegistry) Create(t packet.Type, f *Flow) (Session, error) {
	ctor, ok := r.ctors[t]
	if !ok {
		return nil, errors.Errorf(errors.KindNotFound, "no session type registered for %s", t)
	}
	s, err := ctor(f)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.Errorf(errors.KindInternal, "%s session constructor returned nil", t)
	}
	return s, nil
}

// Destroy implements SessionFactory. Sessions that implement io.Closer-like
// Close are closed; errors are not reported since the flow is being torn down.
func (r *SessionRegistry) Destroy(s Session) {
	if c, ok := s.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}
