// Package canproto implements the CAN wire format of the MRS Microplex
// and CC16 bootloader protocol as a closed set of typed message kinds,
// each with a dedicated pack or parse function. The shared receive-side
// checks (arbitration ID, payload length, constant filter fields) live
// once in this file and are reused by every parser.
package canproto

import "fmt"

// ID is a 29-bit extended CAN arbitration ID used by this protocol.
type ID uint32

const (
	IDAck     ID = 0x1FFFFFF0 // RX: module power-on/reset/crash broadcast
	IDCmd     ID = 0x1FFFFFF1 // TX: host to module commands
	IDRsp     ID = 0x1FFFFFF2 // RX: module to host responses
	IDSrec    ID = 0x1FFFFFF3 // TX: S-record byte stream
	IDData    ID = 0x1FFFFFF4 // RX: EEPROM read response, variable length
	IDEeprom  ID = 0x1FFFFFF5 // TX: EEPROM write payload
	IDConsole ID = 0x1FFFFFFE // RX: application console output
)

func (id ID) String() string {
	switch id {
	case IDAck:
		return "ACK"
	case IDCmd:
		return "CMD"
	case IDRsp:
		return "RSP"
	case IDSrec:
		return "SREC"
	case IDData:
		return "DATA"
	case IDEeprom:
		return "EEPROM"
	case IDConsole:
		return "CONSOLE"
	default:
		return fmt.Sprintf("ID(%#x)", uint32(id))
	}
}

// ReceiveFilter lists the arbitration IDs the bus adapter should ever
// surface to the protocol engine; every other ID is noise on the bus
// (or traffic belonging to some other device) and is dropped by the
// transport before the engine sees it.
var ReceiveFilter = []ID{IDAck, IDRsp, IDData, IDConsole}

// IsFiltered reports whether id is one the bus adapter should deliver.
func IsFiltered(id ID) bool {
	for _, want := range ReceiveFilter {
		if want == id {
			return true
		}
	}
	return false
}

// Frame is one CAN frame: a 29-bit arbitration ID plus up to 8 payload
// bytes. It is the unit exchanged with the bus adapter.
type Frame struct {
	ID   ID
	Data []byte
}

func checkID(f Frame, want ID) error {
	if f.ID != want {
		return idError(f, want)
	}
	return nil
}

func checkLength(f Frame, want int) error {
	if len(f.Data) != want {
		return lengthError(f, want)
	}
	return nil
}

func checkFilterBytes(f Frame, field string, offset int, want []byte) error {
	got := f.Data[offset : offset+len(want)]
	for i, b := range want {
		if got[i] != b {
			return filterError(f, field, want, got)
		}
	}
	return nil
}
