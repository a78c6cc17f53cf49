// Package session implements the host side of a programming session:
// detecting a module fresh out of power-on, broadcasting a scan for
// whatever modules are present, and reading console output. The
// controller owns the bus adapter and power agent for the duration of
// a session; nothing else touches either while it runs.
package session

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/john-titor/mrsflash/internal/canbus"
	"github.com/john-titor/mrsflash/internal/canproto"
	"github.com/john-titor/mrsflash/internal/power"
)

// ModuleError reports a module-level protocol violation: a timeout, a
// response with the wrong module ID, or an unexpected message where
// the protocol permits only one kind.
type ModuleError struct {
	msg string
	err error
}

func (e *ModuleError) Error() string { return e.msg }
func (e *ModuleError) Unwrap() error { return e.err }

func moduleErrorf(format string, args ...any) error {
	return &ModuleError{msg: fmt.Sprintf(format, args...)}
}

func wrapModuleError(context string, err error) error {
	return &ModuleError{msg: fmt.Sprintf("%s: %s", context, err), err: err}
}

// NewModuleError builds a ModuleError, for use by internal/module which
// shares this error kind but lives in a separate package.
func NewModuleError(format string, args ...any) error {
	return moduleErrorf(format, args...)
}

// WrapModuleError promotes err (typically a canproto.MessageError) to a
// ModuleError with added context.
func WrapModuleError(context string, err error) error {
	return wrapModuleError(context, err)
}

// ScanResult is one entry in the result of Scan: a module's last-known
// ACK status and reported software version.
type ScanResult struct {
	ReasonCode byte
	StatusCode byte
	SWVersion  uint16
}

// Controller drives one programming session. The protocol is strictly
// send-then-receive with no overlap, so the controller is meant for use
// from a single goroutine.
type Controller struct {
	Bus    canbus.Bus
	Power  power.Agent
	Logger *log.Logger

	// Timeouts, overridable for test determinism.
	DetectTimeout time.Duration
	SelectTimeout time.Duration
	ScanWindow    time.Duration
	ScanInterval  time.Duration
}

// New builds a Controller with the production timeouts.
func New(bus canbus.Bus, agent power.Agent, logger *log.Logger) *Controller {
	return &Controller{
		Bus:           bus,
		Power:         agent,
		Logger:        logger,
		DetectTimeout: 5 * time.Second,
		SelectTimeout: 1 * time.Second,
		ScanWindow:    1 * time.Second,
		ScanInterval:  50 * time.Millisecond,
	}
}

// Send transmits a frame, logging it at debug level.
func (c *Controller) Send(f canproto.Frame) error {
	c.Logger.Debug("tx", "id", f.ID, "data", fmt.Sprintf("% x", f.Data))
	return c.Bus.Send(f)
}

// Recv waits up to timeout for the next filtered frame.
func (c *Controller) Recv(timeout time.Duration) (canproto.Frame, bool, error) {
	f, ok, err := c.Bus.Recv(time.Now().Add(timeout))
	if ok {
		c.Logger.Debug("rx", "id", f.ID, "data", fmt.Sprintf("% x", f.Data))
	}
	return f, ok, err
}

// Detect captures a module in its bootloader: power off, settle, drain
// stale traffic, apply T30, wait for the power-on ACK, select the
// reported module, and return its ID. It must be called exactly once
// per programming session before any module.Controller operation.
func (c *Controller) Detect() (uint32, error) {
	if err := c.Power.Off(); err != nil {
		return 0, fmt.Errorf("session: powering off: %w", err)
	}
	time.Sleep(250 * time.Millisecond)
	c.Bus.Drain()

	if err := c.Power.T30(); err != nil {
		return 0, fmt.Errorf("session: applying T30: %w", err)
	}

	frame, ok, err := c.Recv(c.DetectTimeout)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, moduleErrorf("session: timed out waiting for power-on ACK")
	}
	ack, err := canproto.ParseAck(frame)
	if err != nil {
		return 0, wrapModuleError("session: parsing power-on ACK", err)
	}

	if err := c.Send(canproto.PackSelect(ack.ModuleID)); err != nil {
		return 0, fmt.Errorf("session: sending select: %w", err)
	}
	reply, ok, err := c.Recv(c.SelectTimeout)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, moduleErrorf("session: timed out waiting for select response")
	}
	selected, err := canproto.ParseSelected(reply)
	if err != nil {
		return 0, wrapModuleError("session: parsing select response", err)
	}
	if selected.ModuleID != ack.ModuleID {
		return 0, moduleErrorf("session: select echoed module %#x, expected %#x", selected.ModuleID, ack.ModuleID)
	}

	c.Logger.Info("detected module", "module_id", fmt.Sprintf("%#x", ack.ModuleID))
	return ack.ModuleID, nil
}

// Scan broadcasts ping repeatedly for about a second, accumulating
// de-duplicated ACK replies keyed by module ID. Any non-ACK frame
// observed during the scan window is fatal; it means some other host
// is programming on this bus.
func (c *Controller) Scan() (map[uint32]ScanResult, error) {
	results := make(map[uint32]ScanResult)
	deadline := time.Now().Add(c.ScanWindow)

	for time.Now().Before(deadline) {
		if err := c.Send(canproto.PackPing()); err != nil {
			return nil, fmt.Errorf("session: broadcasting ping: %w", err)
		}

		tickDeadline := time.Now().Add(c.ScanInterval)
		for time.Now().Before(tickDeadline) {
			frame, ok, err := c.Recv(c.ScanInterval)
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			ack, err := canproto.ParseAck(frame)
			if err != nil {
				return nil, wrapModuleError("session: unexpected traffic during scan", err)
			}
			results[ack.ModuleID] = ScanResult{ReasonCode: ack.ReasonCode, StatusCode: ack.StatusCode, SWVersion: ack.SWVersion}
		}
	}

	return results, nil
}

// GetConsoleData blocks, discarding ACK frames (logging resets) until
// a CONSOLE frame arrives, and returns its payload.
func (c *Controller) GetConsoleData() ([]byte, error) {
	for {
		frame, ok, err := c.Recv(24 * time.Hour)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, moduleErrorf("session: console read timed out")
		}
		if frame.ID == canproto.IDAck {
			ack, err := canproto.ParseAck(frame)
			if err != nil {
				return nil, wrapModuleError("session: parsing ACK during console read", err)
			}
			c.Logger.Warn("module reset while reading console", "module_id", fmt.Sprintf("%#x", ack.ModuleID), "reason", ack.ReasonCode)
			continue
		}
		if frame.ID != canproto.IDConsole {
			return nil, moduleErrorf("session: unexpected frame %s while reading console", frame.ID)
		}
		return frame.Data, nil
	}
}
