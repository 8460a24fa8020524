package core

import (
	"errors"

	"github.com/dkeye/RandomVoice/internal/domain"
	"github.com/google/uuid"
)

// Frame is one encoded text message.
type Frame []byte

// ConnID names a transport connection in logs and limiter keys.
type ConnID string

func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

// SignalConnection abstracts for a system messaging transport.
// Owned by the adapter; the adapter must Close() it. Users only reference it.
type SignalConnection interface {
	ID() ConnID
	// TrySend queues f without blocking the caller.
	TrySend(f Frame) error
	IsOpen() bool
	Close()
}

// RoomInfo is a read-only view for APIs (no transport fields).
type RoomInfo struct {
	ID           domain.RoomID   `json:"id"`
	Capacity     int             `json:"capacity"`
	Participants []domain.UserID `json:"participants"`
}

var (
	// ErrBackpressure reports a full send buffer.
	ErrBackpressure = errors.New("backpressure")
	// ErrConnectionClosed reports a send after Close.
	ErrConnectionClosed = errors.New("connection closed")
)
