package canproto

import "encoding/binary"

// Command opcodes, first two bytes of every CMD payload.
const (
	opPing              = 0x0000
	opSelect            = 0x2010
	opReadEEPROM        = 0x2003
	opEnableEEPROMWrite = 0x2011
	opCloseEEPROM       = 0x2002
	opEnterProgram      = 0x2000
	opErase             = 0x0202
)

// eepromUnlock is the fixed three-byte sequence that must follow the
// EEPROM-write-enable opcode.
var eepromUnlock = [3]byte{0xF3, 0x33, 0xAF}

func be16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func be32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// PackPing builds the all-call command that solicits an Ack from
// every module on the bus.
func PackPing() Frame {
	return Frame{ID: IDCmd, Data: be16(opPing)}
}

// PackSelect builds the command addressing module id for subsequent
// commands.
func PackSelect(moduleID uint32) Frame {
	data := append(be16(opSelect), be32(moduleID)...)
	return Frame{ID: IDCmd, Data: data}
}

// PackReadEEPROM builds a request for count bytes of EEPROM starting
// at address. count must be at most 8 (the CAN DLC limit).
func PackReadEEPROM(address uint16, count uint8) Frame {
	data := append(be16(opReadEEPROM), be16(address)...)
	data = append(data, count)
	return Frame{ID: IDCmd, Data: data}
}

// PackEnableEEPROMWrite builds the command unlocking the EEPROM for
// writing.
func PackEnableEEPROMWrite() Frame {
	data := append(be16(opEnableEEPROMWrite), eepromUnlock[:]...)
	return Frame{ID: IDCmd, Data: data}
}

// PackWriteEEPROMData builds a write of up to 6 bytes of data at
// address. The caller is responsible for chunking larger payloads
// into 6-byte pieces.
func PackWriteEEPROMData(address uint16, data []byte) Frame {
	payload := append(be16(address), data...)
	return Frame{ID: IDEeprom, Data: payload}
}

// PackCloseEEPROM builds the command disabling EEPROM write mode.
func PackCloseEEPROM() Frame {
	return Frame{ID: IDCmd, Data: be16(opCloseEEPROM)}
}

// PackEnterProgram builds the command moving the selected module into
// programming mode.
func PackEnterProgram() Frame {
	return Frame{ID: IDCmd, Data: be16(opEnterProgram)}
}

// PackErase builds the command erasing the selected module's flash.
func PackErase() Frame {
	return Frame{ID: IDCmd, Data: be16(opErase)}
}

// PackSRecordFragment builds a frame carrying up to 8 raw bytes of an
// S-record on the SREC arbitration ID. Fragmentation is the caller's responsibility.
func PackSRecordFragment(data []byte) Frame {
	return Frame{ID: IDSrec, Data: data}
}
