// Package canbus provides the CAN transport the protocol engine
// drives: send a frame, receive a frame with a deadline filtered to
// the IDs the protocol cares about, and drain buffered traffic. This
// file declares the contract and the generic drain loop shared by
// every concrete adapter; concrete adapters live in fake.go
// (in-memory, for tests) and slcan.go (the real serial-line
// transport).
package canbus

import (
	"time"

	"github.com/john-titor/mrsflash/internal/canproto"
)

// Bus is the capability contract a session controller drives. Recv
// returns ok=false (with a nil error) when the deadline elapses without
// a filtered frame arriving; it never returns frames outside
// canproto.ReceiveFilter.
type Bus interface {
	Send(f canproto.Frame) error
	Recv(deadline time.Time) (f canproto.Frame, ok bool, err error)
	Drain()
}

// DrainQuiet and DrainCap bound Bus.Drain: stop after a quiet window
// with no frames, or after a hard cap on frame count, whichever comes
// first.
const (
	DrainQuiet = 250 * time.Millisecond
	DrainCap   = 100
)

// drainFrom runs the generic drain loop against a single-frame receive
// function, so every concrete Bus can share the quiet-window/cap policy
// instead of reimplementing it.
func drainFrom(recv func(deadline time.Time) (canproto.Frame, bool, error)) {
	for i := 0; i < DrainCap; i++ {
		_, ok, err := recv(time.Now().Add(DrainQuiet))
		if err != nil || !ok {
			return
		}
	}
}
