// Package module implements per-module bootloader operations, built as
// sequences of "send request, receive expected response". Frame packing
// is delegated to internal/canproto and transport to the session
// controller.
package module

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/john-titor/mrsflash/internal/canproto"
	"github.com/john-titor/mrsflash/internal/params"
	"github.com/john-titor/mrsflash/internal/session"
	"github.com/john-titor/mrsflash/internal/srecord"
)

// ProgressFunc receives high-level progress notifications: erase
// progress (cur, max) and S-record upload progress (records sent,
// total records). Upload progress is per record, never per fragment.
type ProgressFunc func(cur, max int)

// Controller addresses exactly one module, selected before every
// addressed operation.
type Controller struct {
	Session  *session.Controller
	ModuleID uint32
	Logger   *log.Logger

	EraseFrameTimeout time.Duration
	RebootWaitTimeout time.Duration
	CommandTimeout    time.Duration
}

// New builds a Controller addressing moduleID, with the production
// timeouts.
func New(sess *session.Controller, moduleID uint32, logger *log.Logger) *Controller {
	return &Controller{
		Session:           sess,
		ModuleID:          moduleID,
		Logger:            logger,
		EraseFrameTimeout: 2 * time.Second,
		RebootWaitTimeout: 2 * time.Second,
		CommandTimeout:    1 * time.Second,
	}
}

func (c *Controller) moduleErrorf(format string, args ...any) error {
	return session.NewModuleError("module %#x: "+format, append([]any{c.ModuleID}, args...)...)
}

// select_ sends select(module_id) and validates that the echoed
// module ID matches.
func (c *Controller) select_() error {
	if err := c.Session.Send(canproto.PackSelect(c.ModuleID)); err != nil {
		return err
	}
	frame, ok, err := c.Session.Recv(c.CommandTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return c.moduleErrorf("timed out waiting for select response")
	}
	selected, err := canproto.ParseSelected(frame)
	if err != nil {
		return c.moduleErrorf("select response: %s", err)
	}
	if selected.ModuleID != c.ModuleID {
		return c.moduleErrorf("select echoed module %#x", selected.ModuleID)
	}
	return nil
}

// Select addresses the module as a standalone operation. EEPROM and
// flash-mode operations re-select internally before their own
// sequences; the bootloader forgets the selection on every reboot.
func (c *Controller) Select() error {
	return c.select_()
}

// ReadEEPROM selects the module, then reads length bytes starting at
// address in chunks of at most 8 (the CAN DLC limit).
func (c *Controller) ReadEEPROM(address uint16, length int) ([]byte, error) {
	if err := c.select_(); err != nil {
		return nil, err
	}

	result := make([]byte, 0, length)
	for remaining := length; remaining > 0; {
		count := remaining
		if count > 8 {
			count = 8
		}
		if err := c.Session.Send(canproto.PackReadEEPROM(address, uint8(count))); err != nil {
			return nil, err
		}
		frame, ok, err := c.Session.Recv(c.CommandTimeout)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, c.moduleErrorf("timed out waiting for EEPROM data")
		}
		data, err := canproto.ParseData(frame)
		if err != nil {
			return nil, c.moduleErrorf("EEPROM read reply: %s", err)
		}
		result = append(result, data...)
		address += uint16(count)
		remaining -= count
	}
	return result, nil
}

// WriteEEPROM selects the module, unlocks the EEPROM, writes data in
// 6-byte chunks, and closes it again. A failure partway through leaves
// the EEPROM in an undefined state; the caller retries the whole
// write.
func (c *Controller) WriteEEPROM(address uint16, data []byte) error {
	if err := c.select_(); err != nil {
		return err
	}

	if err := c.Session.Send(canproto.PackEnableEEPROMWrite()); err != nil {
		return err
	}
	frame, ok, err := c.Session.Recv(c.CommandTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return c.moduleErrorf("timed out waiting for EEPROM open")
	}
	if err := canproto.ParseEEPROMOpen(frame); err != nil {
		return c.moduleErrorf("EEPROM open rejected: %s", err)
	}

	for offset := 0; offset < len(data); offset += 6 {
		end := offset + 6
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		// Every chunk carries the same start address; the bootloader
		// advances its own write pointer between chunks.
		if err := c.Session.Send(canproto.PackWriteEEPROMData(address, chunk)); err != nil {
			return err
		}
		reply, ok, err := c.Session.Recv(c.CommandTimeout)
		if err != nil {
			return err
		}
		if !ok {
			return c.moduleErrorf("timed out waiting for EEPROM write ack")
		}
		if err := canproto.ParseEEPROMWriteOK(reply); err != nil {
			return c.moduleErrorf("EEPROM write rejected: %s", err)
		}
	}

	if err := c.Session.Send(canproto.PackCloseEEPROM()); err != nil {
		return err
	}
	closedFrame, ok, err := c.Session.Recv(c.CommandTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return c.moduleErrorf("timed out waiting for EEPROM close")
	}
	if err := canproto.ParseEEPROMClosed(closedFrame); err != nil {
		return c.moduleErrorf("EEPROM close rejected: %s", err)
	}
	return nil
}

// EnterFlashMode selects the module and sends the program command,
// handling both answers: program_ack means the bootloader is already
// running; program_nak means the application was running and will now
// reboot, so wait for the reboot ACK, re-select, and re-send program.
func (c *Controller) EnterFlashMode() error {
	if err := c.select_(); err != nil {
		return err
	}
	if err := c.Session.Send(canproto.PackEnterProgram()); err != nil {
		return err
	}
	frame, ok, err := c.Session.Recv(c.CommandTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return c.moduleErrorf("timed out waiting for program response")
	}

	if _, err := canproto.ParseProgramAck(frame); err == nil {
		return nil
	}

	nak, err := canproto.ParseProgramNak(frame)
	if err != nil {
		return c.moduleErrorf("program response: %s", err)
	}
	if nak.ModuleID != c.ModuleID {
		return c.moduleErrorf("program_nak for module %#x, expected self", nak.ModuleID)
	}

	if err := c.waitForReboot(); err != nil {
		return err
	}

	if err := c.select_(); err != nil {
		return err
	}
	if err := c.Session.Send(canproto.PackEnterProgram()); err != nil {
		return err
	}
	ackFrame, ok, err := c.Session.Recv(c.CommandTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return c.moduleErrorf("timed out waiting for program_ack after reboot")
	}
	if _, err := canproto.ParseProgramAck(ackFrame); err != nil {
		return c.moduleErrorf("expected program_ack after reboot: %s", err)
	}
	return nil
}

// waitForReboot waits up to RebootWaitTimeout for an ACK matching this
// module's ID whose reason is the commanded-reboot marker. Any other
// ACK content, or a mismatched module ID, is ignored and waiting
// continues.
func (c *Controller) waitForReboot() error {
	deadline := time.Now().Add(c.RebootWaitTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return c.moduleErrorf("timed out waiting for reboot ACK")
		}
		frame, ok, err := c.Session.Recv(remaining)
		if err != nil {
			return err
		}
		if !ok {
			return c.moduleErrorf("timed out waiting for reboot ACK")
		}
		ack, err := canproto.ParseAck(frame)
		if err != nil {
			continue
		}
		if ack.ModuleID == c.ModuleID && ack.IsReboot() {
			return nil
		}
	}
}

// Upload flashes the module with a new firmware image: enter flash
// mode, erase, then stream the S-records. A failure after the erase
// leaves the module without a program; it stays in the bootloader on
// the next power-on, so the fix is simply to retry the upload.
func (c *Controller) Upload(source srecord.Source, onErase, onUpload ProgressFunc) error {
	if err := c.EnterFlashMode(); err != nil {
		return err
	}
	if err := c.Erase(onErase); err != nil {
		return err
	}
	return c.Program(source, onUpload)
}

// EraseOnly enters flash mode and erases the module without uploading
// a replacement image.
func (c *Controller) EraseOnly(onProgress ProgressFunc) error {
	if err := c.EnterFlashMode(); err != nil {
		return err
	}
	return c.Erase(onProgress)
}

// Erase sends the erase command, then reads a stream of progress
// frames terminated by erase_done. There is no overall time bound, but
// each frame must arrive within EraseFrameTimeout of the previous one.
// The module must already be in flash mode.
func (c *Controller) Erase(onProgress ProgressFunc) error {
	if err := c.Session.Send(canproto.PackErase()); err != nil {
		return err
	}

	for {
		frame, ok, err := c.Session.Recv(c.EraseFrameTimeout)
		if err != nil {
			return err
		}
		if !ok {
			return c.moduleErrorf("erase: timed out waiting for progress/done")
		}

		if err := canproto.ParseEraseDone(frame); err == nil {
			return nil
		}

		progress, err := canproto.ParseProgress(frame)
		if err != nil {
			return c.moduleErrorf("erase: unexpected reply: %s", err)
		}
		if onProgress != nil {
			onProgress(int(progress.Cur), int(progress.Max))
		}
	}
}

// Program streams every memory S-record as fragmented SREC frames,
// then sends the terminal record and checks for acceptance. onProgress,
// if non-nil, is called once per memory record (not per fragment).
// After acceptance the module jumps or resets into the new application
// on its own; there is no further acknowledgement to wait for.
func (c *Controller) Program(source srecord.Source, onProgress ProgressFunc) error {
	records, terminal, err := source.UploadRecords()
	if err != nil {
		return fmt.Errorf("module: reading S-records: %w", err)
	}

	for i, record := range records {
		if err := c.sendMemoryRecord(record); err != nil {
			return err
		}
		if onProgress != nil {
			onProgress(i+1, len(records))
		}
	}

	if err := c.Session.Send(canproto.PackSRecordFragment(terminal)); err != nil {
		return err
	}
	frame, ok, err := c.Session.Recv(c.CommandTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return c.moduleErrorf("timed out waiting for terminal S-record response")
	}
	if err := canproto.ParseSRecordsDone(frame); err == nil {
		return nil
	}
	if err := canproto.ParseNoProgram(frame); err == nil {
		return c.moduleErrorf("unexpected response to terminal S-record: ROM rejected the image")
	}
	return c.moduleErrorf("unexpected response to terminal S-record")
}

// sendMemoryRecord fragments one memory record: a start fragment
// (first 8 bytes) if the record is longer than 8 bytes, zero or more
// 8-byte middle fragments, then exactly one end fragment. Each
// fragment kind gets its own distinct acknowledgement.
func (c *Controller) sendMemoryRecord(record []byte) error {
	if len(record) > 8 {
		if err := c.sendFragment(record[:8], canproto.ParseSRecStartOK, "start"); err != nil {
			return err
		}
		rest := record[8:]
		for len(rest) > 8 {
			if err := c.sendFragment(rest[:8], canproto.ParseSRecContOK, "middle"); err != nil {
				return err
			}
			rest = rest[8:]
		}
		return c.sendFragment(rest, canproto.ParseSRecEndOK, "end")
	}
	return c.sendFragment(record, canproto.ParseSRecEndOK, "end")
}

func (c *Controller) sendFragment(data []byte, parse func(canproto.Frame) error, kind string) error {
	if err := c.Session.Send(canproto.PackSRecordFragment(data)); err != nil {
		return err
	}
	frame, ok, err := c.Session.Recv(c.CommandTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return c.moduleErrorf("timed out waiting for %s-fragment ack", kind)
	}
	if err := parse(frame); err != nil {
		return c.moduleErrorf("%s-fragment: %s", kind, err)
	}
	return nil
}

// Parameter looks up name in the parameter map, reads its EEPROM
// range, and decodes it.
func (c *Controller) Parameter(name string) (string, error) {
	p, err := params.Lookup(name)
	if err != nil {
		return "", err
	}
	raw, err := c.ReadEEPROM(uint16(p.Offset), p.Width)
	if err != nil {
		return "", err
	}
	return params.Decode(p, raw)
}

// SetParameter rejects non-writable names, encodes the value for the
// named parameter, and writes it.
func (c *Controller) SetParameter(name, value string) error {
	p, err := params.Lookup(name)
	if err != nil {
		return err
	}
	if !p.Writable {
		return c.moduleErrorf("parameter %s is not writable", name)
	}

	var encoded []byte
	if name == "BaudrateBootloader1" {
		kbps, err := parseKbps(value)
		if err != nil {
			return err
		}
		encoded, err = params.EncodeBaudrate(kbps)
		if err != nil {
			return err
		}
	} else {
		encoded, err = params.EncodeString(value, p.Width)
		if err != nil {
			return err
		}
	}

	return c.WriteEEPROM(uint16(p.Offset), encoded)
}

// ParameterNames returns the visible parameter names.
func (c *Controller) ParameterNames() []string {
	return params.Names()
}

func parseKbps(value string) (int, error) {
	var kbps int
	if _, err := fmt.Sscanf(value, "%d", &kbps); err != nil {
		return 0, fmt.Errorf("module: %q is not a valid baudrate", value)
	}
	return kbps, nil
}
