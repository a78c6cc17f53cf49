package canbus

import (
	"bufio"
	"fmt"
	"strconv"
	"time"

	serial "github.com/daedaluz/goserial"
	"github.com/john-titor/mrsflash/internal/canproto"
)

// slcanBaudCodes maps a CAN bitrate in kbit/s to the Lawicel "S" command
// argument (the ASCII SLCAN protocol's own bitrate-selection table,
// independent of the EEPROM baudrate code table in internal/params).
var slcanBaudCodes = map[int]byte{
	10: '0', 20: '1', 50: '2', 100: '3', 125: '4',
	250: '5', 500: '6', 800: '7', 1000: '8',
}

// SLCANBus drives a USB-CAN adapter that presents the Lawicel/"slcan"
// ASCII protocol over a plain serial device. Many low-cost USB-CAN
// adapters speak this protocol.
type SLCANBus struct {
	port    *serial.Port
	reader  *bufio.Reader
	partial string
}

// OpenSLCAN opens device at the given CAN bitrate (kbit/s) and puts the
// adapter into open/listen mode. Close must be called when done.
func OpenSLCAN(device string, bitrateKbps int) (*SLCANBus, error) {
	code, ok := slcanBaudCodes[bitrateKbps]
	if !ok {
		return nil, fmt.Errorf("canbus: unsupported SLCAN bitrate %d kbit/s", bitrateKbps)
	}

	port, err := serial.Open(device, serial.NewOptions())
	if err != nil {
		return nil, fmt.Errorf("canbus: opening %s: %w", device, err)
	}
	if err := port.MakeRaw(); err != nil {
		port.Close()
		return nil, fmt.Errorf("canbus: setting raw mode on %s: %w", device, err)
	}

	b := &SLCANBus{port: port, reader: bufio.NewReader(port)}
	if err := b.writeLine(fmt.Sprintf("S%c", code)); err != nil {
		port.Close()
		return nil, err
	}
	if err := b.writeLine("O"); err != nil {
		port.Close()
		return nil, err
	}
	return b, nil
}

func (b *SLCANBus) writeLine(s string) error {
	_, err := b.port.Write([]byte(s + "\r"))
	return err
}

// Send packs f as an extended-frame Lawicel "T" command:
// T<8 hex ID digits><1 DLC digit><DLC*2 hex data digits>\r
func (b *SLCANBus) Send(f canproto.Frame) error {
	line := fmt.Sprintf("T%08X%d", uint32(f.ID), len(f.Data))
	for _, d := range f.Data {
		line += fmt.Sprintf("%02X", d)
	}
	return b.writeLine(line)
}

// Recv blocks for one line from the adapter until deadline, parses it
// as a Lawicel extended-frame receive record, and returns only frames
// whose ID is in canproto.ReceiveFilter; anything else (status replies,
// standard-frame records this protocol never uses) is silently dropped
// and the read loop continues until deadline.
func (b *SLCANBus) Recv(deadline time.Time) (canproto.Frame, bool, error) {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return canproto.Frame{}, false, nil
		}
		b.port.SetReadTimeout(remaining)

		line, err := b.reader.ReadString('\r')
		if err != nil {
			// A record can arrive split across reads; keep whatever
			// was buffered for the next attempt.
			b.partial += line
			// A failed read at or past the deadline is the timeout
			// case, not a transport fault.
			if time.Until(deadline) <= 0 {
				return canproto.Frame{}, false, nil
			}
			return canproto.Frame{}, false, fmt.Errorf("canbus: reading from adapter: %w", err)
		}
		line, b.partial = b.partial+line, ""

		frame, ok := parseSLCANLine(line)
		if !ok {
			continue
		}
		if !canproto.IsFiltered(frame.ID) {
			continue
		}
		return frame, true, nil
	}
}

// parseSLCANLine decodes a Lawicel extended-frame receive record
// ("T" + 8 hex ID digits + 1 DLC digit + DLC*2 hex data digits).
// Any other leading byte (status replies, standard-frame "t" records)
// is not a frame this transport understands and is reported as ok=false.
func parseSLCANLine(line string) (canproto.Frame, bool) {
	if len(line) < 10 || line[0] != 'T' {
		return canproto.Frame{}, false
	}
	id, err := strconv.ParseUint(line[1:9], 16, 32)
	if err != nil {
		return canproto.Frame{}, false
	}
	dlc, err := strconv.Atoi(line[9:10])
	if err != nil || dlc < 0 || dlc > 8 {
		return canproto.Frame{}, false
	}
	want := 10 + dlc*2
	if len(line) < want {
		return canproto.Frame{}, false
	}
	data := make([]byte, dlc)
	for i := 0; i < dlc; i++ {
		b, err := strconv.ParseUint(line[10+i*2:12+i*2], 16, 8)
		if err != nil {
			return canproto.Frame{}, false
		}
		data[i] = byte(b)
	}
	return canproto.Frame{ID: canproto.ID(id), Data: data}, true
}

// Drain consumes buffered frames until a quiet window or frame cap is
// reached.
func (b *SLCANBus) Drain() {
	drainFrom(b.Recv)
}

// Close releases the adapter, closing the listen channel first.
func (b *SLCANBus) Close() error {
	_ = b.writeLine("C")
	return b.port.Close()
}
