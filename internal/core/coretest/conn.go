// Package coretest provides an in-memory SignalConnection for tests.
package coretest

import (
	"sync"

	"github.com/dkeye/RandomVoice/internal/core"
)

type Conn struct {
	id core.ConnID

	mu     sync.Mutex
	frames []core.Frame
	closed bool
	full   bool
}

func NewConn(id string) *Conn {
	return &Conn{id: core.ConnID(id)}
}

func (c *Conn) ID() core.ConnID { return c.id }

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, append(core.Frame(nil), f...))
	return nil
}

func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// SetFull makes every following TrySend report backpressure.
func (c *Conn) SetFull(full bool) {
	c.mu.Lock()
	c.full = full
	c.mu.Unlock()
}

// Frames returns a copy of everything sent so far.
func (c *Conn) Frames() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Frame(nil), c.frames...)
}

// Take returns and clears everything sent so far.
func (c *Conn) Take() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.frames
	c.frames = nil
	return out
}
