package canbus

import (
	"time"

	"github.com/john-titor/mrsflash/internal/canproto"
)

// Fake is an in-memory Bus used to script exact wire sequences in
// session/module controller tests: a hand-written double with no real
// hardware behind it, just enough state to assert against.
type Fake struct {
	// Inbox holds frames waiting to be returned by Recv, in order.
	// Tests preload it to script a module's replies.
	Inbox []canproto.Frame

	// Sent accumulates every frame handed to Send, for assertions.
	Sent []canproto.Frame

	// RecvErr, if set, is returned by the next Recv call instead of
	// consuming Inbox.
	RecvErr error
}

// NewFake returns an empty Fake bus.
func NewFake() *Fake {
	return &Fake{}
}

// Push appends frames to the Inbox for a later Recv to return.
func (f *Fake) Push(frames ...canproto.Frame) {
	f.Inbox = append(f.Inbox, frames...)
}

func (f *Fake) Send(frame canproto.Frame) error {
	f.Sent = append(f.Sent, frame)
	return nil
}

func (f *Fake) Recv(_ time.Time) (canproto.Frame, bool, error) {
	if f.RecvErr != nil {
		err := f.RecvErr
		f.RecvErr = nil
		return canproto.Frame{}, false, err
	}
	for len(f.Inbox) > 0 {
		frame := f.Inbox[0]
		f.Inbox = f.Inbox[1:]
		if canproto.IsFiltered(frame.ID) {
			return frame, true, nil
		}
	}
	return canproto.Frame{}, false, nil
}

func (f *Fake) Drain() {
	drainFrom(f.Recv)
}
