package canproto

import (
	"encoding/binary"
	"fmt"
)

// Response opcodes, first two bytes of every RSP payload.
const (
	rspSelected      = 0x2110
	rspEEPROMOpen    = 0x2111
	rspEEPROMWriteOK = 0x20E8
	rspEEPROMClosed  = 0x20F0
	rspProgramNak    = 0x2FFF
	rspProgramAck    = 0x2100
	rspEraseDone     = 0x0000
)

// ACK reason codes.
const (
	ReasonPowerOn       = 0x00
	ReasonReset         = 0x01 // used as the "reboot" marker
	ReasonLowVoltage    = 0x11
	ReasonClockLoss     = 0x21
	ReasonAddressError  = 0x31
	ReasonIllegalOpcode = 0x41
	ReasonWatchdog      = 0x51
)

// ACK status codes.
const (
	StatusOK        = 0x00
	StatusNoProgram = 0x04
)

// Ack is the broadcast a module sends on power-up, reset, or crash.
type Ack struct {
	ReasonCode byte
	ModuleID   uint32
	StatusCode byte
	SWVersion  uint16
}

// IsReboot reports whether this Ack's reason code marks a commanded
// reboot (as opposed to a genuine power-on or fault).
func (a Ack) IsReboot() bool {
	return a.ReasonCode == ReasonReset
}

// ParseAck decodes a frame on the ACK arbitration ID. There are no
// constant filter fields for this message; only ID and length apply.
func ParseAck(f Frame) (Ack, error) {
	if err := checkID(f, IDAck); err != nil {
		return Ack{}, err
	}
	if err := checkLength(f, 8); err != nil {
		return Ack{}, err
	}
	return Ack{
		ReasonCode: f.Data[0],
		ModuleID:   binary.BigEndian.Uint32(f.Data[1:5]),
		StatusCode: f.Data[5],
		SWVersion:  binary.BigEndian.Uint16(f.Data[6:8]),
	}, nil
}

// Selected responds to Select, confirming module addressing.
type Selected struct {
	ModuleID  uint32
	SWVersion uint16 // zero when the application is running
}

func ParseSelected(f Frame) (Selected, error) {
	if err := checkID(f, IDRsp); err != nil {
		return Selected{}, err
	}
	if err := checkLength(f, 8); err != nil {
		return Selected{}, err
	}
	if err := checkFilterBytes(f, "opcode", 0, be16(rspSelected)); err != nil {
		return Selected{}, err
	}
	return Selected{
		ModuleID:  binary.BigEndian.Uint32(f.Data[2:6]),
		SWVersion: binary.BigEndian.Uint16(f.Data[6:8]),
	}, nil
}

func parseTailOnly(f Frame, opcode uint16, tail []byte) error {
	if err := checkID(f, IDRsp); err != nil {
		return err
	}
	if err := checkLength(f, 2+len(tail)); err != nil {
		return err
	}
	if err := checkFilterBytes(f, "opcode", 0, be16(opcode)); err != nil {
		return err
	}
	return checkFilterBytes(f, "tail", 2, tail)
}

// ParseEEPROMOpen validates the response to EnableEEPROMWrite.
func ParseEEPROMOpen(f Frame) error {
	return parseTailOnly(f, rspEEPROMOpen, []byte{0x01, 0x00, 0x00})
}

// ParseEEPROMWriteOK validates the response to one WriteEEPROMData chunk.
func ParseEEPROMWriteOK(f Frame) error {
	return parseTailOnly(f, rspEEPROMWriteOK, []byte{0x00, 0x00, 0x00})
}

// ParseEEPROMClosed validates the response to CloseEEPROM.
func ParseEEPROMClosed(f Frame) error {
	return parseTailOnly(f, rspEEPROMClosed, []byte{0x02, 0x00, 0x00})
}

// ProgramNak is returned when the application was running and is about
// to reboot into the bootloader.
type ProgramNak struct {
	ModuleID uint32
}

func ParseProgramNak(f Frame) (ProgramNak, error) {
	if err := checkID(f, IDRsp); err != nil {
		return ProgramNak{}, err
	}
	if err := checkLength(f, 8); err != nil {
		return ProgramNak{}, err
	}
	if err := checkFilterBytes(f, "opcode", 0, be16(rspProgramNak)); err != nil {
		return ProgramNak{}, err
	}
	return ProgramNak{ModuleID: binary.BigEndian.Uint32(f.Data[2:6])}, nil
}

// ProgramAck is returned when the bootloader is already running.
type ProgramAck struct {
	ModuleID uint32
}

func ParseProgramAck(f Frame) (ProgramAck, error) {
	if err := checkID(f, IDRsp); err != nil {
		return ProgramAck{}, err
	}
	if err := checkLength(f, 8); err != nil {
		return ProgramAck{}, err
	}
	if err := checkFilterBytes(f, "opcode", 0, be16(rspProgramAck)); err != nil {
		return ProgramAck{}, err
	}
	return ProgramAck{ModuleID: binary.BigEndian.Uint32(f.Data[2:6])}, nil
}

// Progress is one frame of the erase progress stream: a counter
// advancing from 0 toward max-1.
type Progress struct {
	Cur byte
	Max byte
}

func ParseProgress(f Frame) (Progress, error) {
	if err := checkID(f, IDRsp); err != nil {
		return Progress{}, err
	}
	if err := checkLength(f, 4); err != nil {
		return Progress{}, err
	}
	if err := checkFilterBytes(f, "leading", 0, []byte{0x00}); err != nil {
		return Progress{}, err
	}
	if err := checkFilterBytes(f, "trailing", 3, []byte{0x00}); err != nil {
		return Progress{}, err
	}
	return Progress{Cur: f.Data[1], Max: f.Data[2]}, nil
}

// ParseEraseDone validates the terminal erase message. Per the protocol
// the final byte is a fixed 0x01; the byte before it must be either 0x00
// or 0xFF (the two status values the bootloader is known to emit), which
// is a value-set check rather than a fixed-constant filter and so is
// performed here rather than by checkFilterBytes.
func ParseEraseDone(f Frame) error {
	if err := checkID(f, IDRsp); err != nil {
		return err
	}
	if err := checkLength(f, 4); err != nil {
		return err
	}
	if err := checkFilterBytes(f, "opcode", 0, be16(rspEraseDone)); err != nil {
		return err
	}
	if err := checkFilterBytes(f, "final byte", 3, []byte{0x01}); err != nil {
		return err
	}
	status := f.Data[2]
	if status != 0x00 && status != 0xFF {
		return &MessageError{
			Kind:  CheckFilterField,
			Frame: f,
			msg:   fmt.Sprintf("canproto: erase-done status byte is %#02x, expected 0x00 or 0xff", status),
		}
	}
	return nil
}

func parseFixedConstant(f Frame, id ID, want []byte) error {
	if err := checkID(f, id); err != nil {
		return err
	}
	if err := checkLength(f, len(want)); err != nil {
		return err
	}
	return checkFilterBytes(f, "payload", 0, want)
}

// ParseSRecStartOK validates the response to the first fragment of a
// multi-fragment S-record.
func ParseSRecStartOK(f Frame) error {
	return parseFixedConstant(f, IDRsp, []byte{0x00, 0x01, 0x01, 0x01, 0x01})
}

// ParseSRecContOK validates the response to a middle fragment.
func ParseSRecContOK(f Frame) error {
	return parseFixedConstant(f, IDRsp, []byte{0x00, 0x01})
}

// ParseSRecEndOK validates the response to the final fragment of a record.
func ParseSRecEndOK(f Frame) error {
	return parseFixedConstant(f, IDRsp, []byte{0x00, 0x00, 0x01})
}

// ParseSRecordsDone validates the response to the terminal S-record.
func ParseSRecordsDone(f Frame) error {
	return parseFixedConstant(f, IDRsp, []byte{0x00, 0x12, 0x34})
}

// ParseNoProgram validates the "ROM rejected the image" response to the
// terminal S-record.
func ParseNoProgram(f Frame) error {
	return parseFixedConstant(f, IDRsp, []byte{0x00, 0x02, 0x02, 0x02, 0x02})
}

// ParseData validates an EEPROM-read reply: its only fixed property is
// the arbitration ID, since its length varies with the requested count.
func ParseData(f Frame) ([]byte, error) {
	if err := checkID(f, IDData); err != nil {
		return nil, err
	}
	if len(f.Data) > 8 {
		return nil, lengthError(f, 8)
	}
	return f.Data, nil
}
