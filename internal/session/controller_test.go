package session

import (
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/john-titor/mrsflash/internal/canbus"
	"github.com/john-titor/mrsflash/internal/canproto"
)

// fakePower records calls without driving any real rail.
type fakePower struct {
	calls []string

	// onT30, if set, runs when T30 is applied, so a test can script the
	// module's power-on traffic to arrive after Detect's drain.
	onT30 func()
}

func (f *fakePower) Off() error { f.calls = append(f.calls, "off"); return nil }
func (f *fakePower) T30() error {
	f.calls = append(f.calls, "t30")
	if f.onT30 != nil {
		f.onT30()
	}
	return nil
}
func (f *fakePower) T30T15() error { f.calls = append(f.calls, "t30t15"); return nil }

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func newTestController(bus *canbus.Fake, pwr *fakePower) *Controller {
	c := New(bus, pwr, testLogger())
	c.DetectTimeout = 50 * time.Millisecond
	c.SelectTimeout = 50 * time.Millisecond
	c.ScanWindow = 60 * time.Millisecond
	c.ScanInterval = 10 * time.Millisecond
	return c
}

// TestDetect walks the full power-cycle/ACK/select exchange.
func TestDetect(t *testing.T) {
	bus := canbus.NewFake()
	pwr := &fakePower{onT30: func() {
		bus.Push(
			canproto.Frame{ID: canproto.IDAck, Data: []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x00, 0x00, 0x00}},
			canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x21, 0x10, 0x01, 0x02, 0x03, 0x04, 0x00, 0x00}},
		)
	}}
	ctrl := newTestController(bus, pwr)

	moduleID, err := ctrl.Detect()

	require.NoError(t, err)
	assert.Equal(t, uint32(0x01020304), moduleID)
	assert.Equal(t, []string{"off", "t30"}, pwr.calls)
	require.Len(t, bus.Sent, 1)
	assert.Equal(t, canproto.PackSelect(0x01020304), bus.Sent[0])
}

func TestDetect_TimesOutWithNoACK(t *testing.T) {
	bus := canbus.NewFake()
	ctrl := newTestController(bus, &fakePower{})

	_, err := ctrl.Detect()

	require.Error(t, err)
	var modErr *ModuleError
	assert.ErrorAs(t, err, &modErr)
}

func TestDetect_RejectsMismatchedSelectEcho(t *testing.T) {
	bus := canbus.NewFake()
	pwr := &fakePower{onT30: func() {
		bus.Push(
			canproto.Frame{ID: canproto.IDAck, Data: []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x00, 0x00, 0x00}},
			canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x21, 0x10, 0xFF, 0xFF, 0xFF, 0xFF, 0x00, 0x00}},
		)
	}}
	ctrl := newTestController(bus, pwr)

	_, err := ctrl.Detect()

	require.Error(t, err)
}

func TestScan_AccumulatesDedupedACKs(t *testing.T) {
	bus := canbus.NewFake()
	bus.Push(
		canproto.Frame{ID: canproto.IDAck, Data: []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x00, 0x00, 0x01}},
		canproto.Frame{ID: canproto.IDAck, Data: []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x00, 0x00, 0x02}},
		canproto.Frame{ID: canproto.IDAck, Data: []byte{0x00, 0x05, 0x06, 0x07, 0x08, 0x00, 0x00, 0x03}},
	)
	ctrl := newTestController(bus, &fakePower{})

	results, err := ctrl.Scan()

	require.NoError(t, err)
	require.Contains(t, results, uint32(0x01020304))
	require.Contains(t, results, uint32(0x05060708))
	assert.Equal(t, uint16(0x0002), results[0x01020304].SWVersion, "later ACK for the same module overwrites the earlier one")
}

func TestScan_NonACKFrameIsFatal(t *testing.T) {
	bus := canbus.NewFake()
	bus.Push(canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x21, 0x10, 0x01, 0x02, 0x03, 0x04, 0x00, 0x00}})
	ctrl := newTestController(bus, &fakePower{})

	_, err := ctrl.Scan()

	require.Error(t, err)
}

func TestGetConsoleData_SkipsACKsUntilConsole(t *testing.T) {
	bus := canbus.NewFake()
	bus.Push(
		canproto.Frame{ID: canproto.IDAck, Data: []byte{0x01, 0x01, 0x02, 0x03, 0x04, 0x00, 0x00, 0x00}},
		canproto.Frame{ID: canproto.IDConsole, Data: []byte("hello")},
	)
	ctrl := newTestController(bus, &fakePower{})

	data, err := ctrl.GetConsoleData()

	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}
