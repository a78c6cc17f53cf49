// Package params holds the static EEPROM parameter map shared by all
// MRS bootloader modules: an ordered table of (width, name, encoding,
// writable) records whose offsets are the running sum of the preceding
// widths, starting at EEPROM offset 0.
package params

import "fmt"

// Encoding says how a field's raw EEPROM bytes are interpreted: every
// field is either a fixed-width unsigned big-endian integer or a
// fixed-width ASCII byte string.
type Encoding int

const (
	EncodingUint Encoding = iota
	EncodingString
)

// Param describes one record in the EEPROM parameter table.
type Param struct {
	Name     string
	Offset   int
	Width    int
	Encoding Encoding
	Writable bool
}

// Hidden reports whether this parameter is internal-only; names
// beginning with "_" stay out of the visible parameter listing.
func (p Param) Hidden() bool {
	return len(p.Name) > 0 && p.Name[0] == '_'
}

// Magic is the constant (1331) that must appear at offset 2 tagging a
// valid EEPROM image.
const Magic = 0x0533

// layout is the exact ordered field list of the module EEPROM.
// Reserved fields are given names beginning with "_" so they stay out
// of the visible name listing but remain addressable.
var layout = []struct {
	name     string
	width    int
	encoding Encoding
}{
	{"_Reserved0", 2, EncodingUint},
	{"_Magic", 2, EncodingUint},
	{"SerialNumber", 4, EncodingUint},
	{"PartNumber", 12, EncodingString},
	{"DrawingNumber", 12, EncodingString},
	{"Name", 20, EncodingString},
	{"OrderNumber", 8, EncodingString},
	{"TestDate", 8, EncodingString},
	{"HardwareVersion", 2, EncodingUint},
	{"ResetCounter", 1, EncodingUint},
	{"LibraryVersion", 2, EncodingUint},
	{"ResetReasonLVD", 1, EncodingUint},
	{"ResetReasonLOC", 1, EncodingUint},
	{"ResetReasonILAD", 1, EncodingUint},
	{"ResetReasonILOP", 1, EncodingUint},
	{"ResetReasonCOP", 1, EncodingUint},
	{"MCUType", 1, EncodingUint},
	{"HardwareCANActive", 1, EncodingUint},
	{"_Reserved1", 3, EncodingUint},
	{"BootloaderVersion", 2, EncodingUint},
	{"ProgramState", 2, EncodingUint},
	{"Portbyte1", 2, EncodingUint},
	{"Portbyte2", 2, EncodingUint},
	{"BaudrateBootloader1", 2, EncodingUint},
	{"BaudrateBootloader2", 2, EncodingUint},
	{"BootloaderIDExt1", 1, EncodingUint},
	{"BootloaderID1", 4, EncodingUint},
	{"BootloaderIDCRC1", 1, EncodingUint},
	{"BootloaderIDExt2", 1, EncodingUint},
	{"BootloaderID2", 4, EncodingUint},
	{"BootloaderIDCRC2", 1, EncodingUint},
	{"SoftwareVersion", 20, EncodingString},
	{"ModuleName", 30, EncodingString},
	{"BootloaderCANBus", 1, EncodingUint},
	{"COPWatchdogTimeout", 2, EncodingUint},
	{"_Reserved2", 7, EncodingUint},
}

// writable is the set of parameters the bootloader permits the host to
// rewrite. Everything else is factory data and read-only.
var writable = map[string]bool{
	"BaudrateBootloader1": true,
	"SoftwareVersion":     true,
	"ModuleName":          true,
}

// Table is the computed, offset-resolved parameter map, built once at
// package init from layout.
var Table = buildTable()

func buildTable() []Param {
	table := make([]Param, 0, len(layout))
	offset := 0
	for _, rec := range layout {
		table = append(table, Param{
			Name:     rec.name,
			Offset:   offset,
			Width:    rec.width,
			Encoding: rec.encoding,
			Writable: writable[rec.name],
		})
		offset += rec.width
	}
	return table
}

// Size is the total width of the EEPROM parameter table in bytes.
var Size = func() int {
	total := 0
	for _, p := range Table {
		total += p.Width
	}
	return total
}()

// Lookup finds a parameter by name. An unknown name is a caller bug,
// not a module fault.
func Lookup(name string) (Param, error) {
	for _, p := range Table {
		if p.Name == name {
			return p, nil
		}
	}
	return Param{}, fmt.Errorf("params: unknown parameter %q", name)
}

// Names returns the visible parameter names in table order, excluding
// hidden (leading "_") and reserved fields.
func Names() []string {
	var names []string
	for _, p := range Table {
		if p.Hidden() {
			continue
		}
		names = append(names, p.Name)
	}
	return names
}
