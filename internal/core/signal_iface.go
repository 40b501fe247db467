package core

import "errors"

// Frame is an encoded text frame ready for the wire.
type Frame []byte

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues f without blocking. A full queue is reported as
	// ErrBackpressure, a closed connection as ErrConnectionClosed.
	TrySend(Frame) error
	// CloseWithReason terminates the connection with a machine readable
	// close code and a human readable reason.
	CloseWithReason(code int, reason string)
	Close()
}
