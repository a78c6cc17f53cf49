package module

import (
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/john-titor/mrsflash/internal/canbus"
	"github.com/john-titor/mrsflash/internal/canproto"
	"github.com/john-titor/mrsflash/internal/session"
)

const testModuleID = 0x01020304

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func newTestController(bus *canbus.Fake) *Controller {
	sess := session.New(bus, nil, testLogger())
	sess.SelectTimeout = 50 * time.Millisecond
	ctrl := New(sess, testModuleID, testLogger())
	ctrl.CommandTimeout = 50 * time.Millisecond
	ctrl.EraseFrameTimeout = 50 * time.Millisecond
	ctrl.RebootWaitTimeout = 50 * time.Millisecond
	return ctrl
}

func selectedFrame() canproto.Frame {
	return canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x21, 0x10, 0x01, 0x02, 0x03, 0x04, 0x00, 0x00}}
}

func TestParameter_SerialNumber(t *testing.T) {
	bus := canbus.NewFake()
	bus.Push(
		selectedFrame(),
		canproto.Frame{ID: canproto.IDData, Data: []byte{0x01, 0x02, 0x03, 0x04}},
	)
	ctrl := newTestController(bus)

	value, err := ctrl.Parameter("SerialNumber")

	require.NoError(t, err)
	assert.Equal(t, "0x1020304", value)
	require.Len(t, bus.Sent, 2)
	assert.Equal(t, canproto.PackReadEEPROM(4, 4), bus.Sent[1])
}

func TestSetParameter_ModuleName(t *testing.T) {
	bus := canbus.NewFake()
	bus.Push(
		selectedFrame(),
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x21, 0x11, 0x01, 0x00, 0x00}},
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x20, 0xE8, 0x00, 0x00, 0x00}},
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x20, 0xE8, 0x00, 0x00, 0x00}},
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x20, 0xE8, 0x00, 0x00, 0x00}},
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x20, 0xE8, 0x00, 0x00, 0x00}},
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x20, 0xE8, 0x00, 0x00, 0x00}},
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x20, 0xF0, 0x02, 0x00, 0x00}},
	)
	ctrl := newTestController(bus)

	err := ctrl.SetParameter("ModuleName", "X")

	require.NoError(t, err)
	// select, enable, 5 six-byte chunks (30 bytes total), close.
	require.Len(t, bus.Sent, 8)
	var writes int
	for _, f := range bus.Sent {
		if f.ID == canproto.IDEeprom {
			writes++
			// Every chunk repeats the field's start address (127 for
			// ModuleName); the bootloader tracks the write position.
			assert.Equal(t, []byte{0x00, 0x7F}, f.Data[:2])
			assert.Len(t, f.Data, 8)
		}
	}
	assert.Equal(t, 5, writes)
}

func TestSetParameter_RejectsNonWritable(t *testing.T) {
	ctrl := newTestController(canbus.NewFake())

	err := ctrl.SetParameter("SerialNumber", "1234")

	assert.Error(t, err)
}

// TestEnterFlashMode_FromApplication covers the program_nak path:
// the application reboots, the host re-selects and re-sends program.
func TestEnterFlashMode_FromApplication(t *testing.T) {
	bus := canbus.NewFake()
	bus.Push(
		selectedFrame(),
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x2F, 0xFF, 0x01, 0x02, 0x03, 0x04, 0x00, 0x00}},
		canproto.Frame{ID: canproto.IDAck, Data: []byte{0x01, 0x01, 0x02, 0x03, 0x04, 0x00, 0x00, 0x00}},
		selectedFrame(),
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x21, 0x00, 0x01, 0x02, 0x03, 0x04, 0x00, 0x00}},
	)
	ctrl := newTestController(bus)

	err := ctrl.EnterFlashMode()

	require.NoError(t, err)
}

func TestEnterFlashMode_AlreadyInBootloader(t *testing.T) {
	bus := canbus.NewFake()
	bus.Push(
		selectedFrame(),
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x21, 0x00, 0x01, 0x02, 0x03, 0x04, 0x00, 0x00}},
	)
	ctrl := newTestController(bus)

	err := ctrl.EnterFlashMode()

	require.NoError(t, err)
}

func TestErase_ReportsProgress(t *testing.T) {
	bus := canbus.NewFake()
	bus.Push(
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x00, 0x00, 0x05, 0x00}},
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x00, 0x01, 0x05, 0x00}},
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x00, 0x02, 0x05, 0x00}},
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x00, 0x03, 0x05, 0x00}},
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x00, 0x04, 0x05, 0x00}},
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x00, 0x00, 0x00, 0x01}},
	)
	ctrl := newTestController(bus)

	var calls int
	err := ctrl.Erase(func(cur, max int) { calls++ })

	require.NoError(t, err)
	assert.Equal(t, 5, calls)
}

// fakeSource is a minimal srecord.Source for Program tests.
type fakeSource struct {
	records  [][]byte
	terminal []byte
}

func (f *fakeSource) UploadRecords() ([][]byte, []byte, error) {
	return f.records, f.terminal, nil
}

func (f *fakeSource) TextRecords() ([]string, error) {
	return nil, nil
}

// TestUpload_FullSequence walks flash-mode entry, erase, and the
// S-record stream end to end against a scripted module.
func TestUpload_FullSequence(t *testing.T) {
	bus := canbus.NewFake()
	bus.Push(
		selectedFrame(),
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x21, 0x00, 0x01, 0x02, 0x03, 0x04, 0x00, 0x00}}, // program_ack
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x00, 0x00, 0x02, 0x00}},                         // erase progress
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x00, 0x01, 0x02, 0x00}},
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x00, 0x00, 0x00, 0x01}}, // erase_done
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x00, 0x00, 0x01}},       // srec_end_ok
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x00, 0x12, 0x34}},       // srecords_done
	)
	ctrl := newTestController(bus)
	source := &fakeSource{records: [][]byte{{0x01, 0x02, 0x03, 0x04}}, terminal: []byte{0x09, 0x00}}

	var eraseCalls, uploadCalls int
	err := ctrl.Upload(source,
		func(cur, max int) { eraseCalls++ },
		func(cur, max int) { uploadCalls++ })

	require.NoError(t, err)
	assert.Equal(t, 2, eraseCalls)
	assert.Equal(t, 1, uploadCalls)
}

// TestProgram_RejectedImage: the ROM answers the terminal record with
// no_program when the image has no usable reset vector.
func TestProgram_RejectedImage(t *testing.T) {
	bus := canbus.NewFake()
	bus.Push(
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x00, 0x00, 0x01}}, // srec_end_ok for the single memory record
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x00, 0x02, 0x02, 0x02, 0x02}},
	)
	ctrl := newTestController(bus)
	source := &fakeSource{records: [][]byte{{0x01, 0x02, 0x03, 0x04}}, terminal: []byte{0x09, 0x00}}

	err := ctrl.Program(source, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected response to terminal S-record")
}

func TestProgram_FragmentsLongRecord(t *testing.T) {
	bus := canbus.NewFake()
	bus.Push(
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x00, 0x01, 0x01, 0x01, 0x01}}, // start
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x00, 0x01}},                   // middle
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x00, 0x00, 0x01}},             // end
		canproto.Frame{ID: canproto.IDRsp, Data: []byte{0x00, 0x12, 0x34}},             // srecords_done
	)
	ctrl := newTestController(bus)
	// 20 bytes: start(8) + middle(8) + end(4)
	record := make([]byte, 20)
	source := &fakeSource{records: [][]byte{record}, terminal: []byte{0x09, 0x00}}

	progressCalls := 0
	err := ctrl.Program(source, func(cur, max int) { progressCalls++ })

	require.NoError(t, err)
	assert.Equal(t, 1, progressCalls, "progress is per-record, not per-fragment")
	require.Len(t, bus.Sent, 4)
}
