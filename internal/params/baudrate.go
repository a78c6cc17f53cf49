package params

import "fmt"

// baudrateCodes is the fixed 2-byte EEPROM code table for the
// bootloader CAN baudrate parameter.
var baudrateCodes = map[int][2]byte{
	1000: {0xFE, 0x01},
	800:  {0xFD, 0x02},
	500:  {0xFC, 0x03},
	250:  {0xFB, 0x04},
	125:  {0xFA, 0x05},
	100:  {0xF6, 0x09},
}

// EncodeBaudrate looks up the 2-byte EEPROM code for a bootloader CAN
// baudrate given in kbit/s. An unknown rate is rejected before any bus
// traffic happens.
func EncodeBaudrate(kbps int) ([]byte, error) {
	code, ok := baudrateCodes[kbps]
	if !ok {
		return nil, fmt.Errorf("params: unsupported bootloader baudrate %d kbit/s", kbps)
	}
	return code[:], nil
}
