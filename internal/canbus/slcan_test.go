package canbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/john-titor/mrsflash/internal/canproto"
)

func TestParseSLCANLine_ExtendedFrame(t *testing.T) {
	frame, ok := parseSLCANLine("T1FFFFFF0401020304\r")

	require.True(t, ok)
	assert.Equal(t, canproto.IDAck, frame.ID)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, frame.Data)
}

func TestParseSLCANLine_EmptyPayload(t *testing.T) {
	frame, ok := parseSLCANLine("T1FFFFFF20\r")

	require.True(t, ok)
	assert.Equal(t, canproto.IDRsp, frame.ID)
	assert.Empty(t, frame.Data)
}

func TestParseSLCANLine_RejectsNonFrameLines(t *testing.T) {
	for _, line := range []string{
		"\r",                    // bare status reply
		"z\r",                   // send acknowledgement
		"t12340\r",              // standard-frame record
		"T1FFFFFF0\r",           // truncated: no DLC
		"T1FFFFFF09\r",          // DLC out of range
		"T1FFFFFF0401\r",        // fewer data digits than DLC
		"TGGGGGGGG401020304\r",  // bad hex in ID
		"T1FFFFFF04010203XX\r",  // bad hex in data
	} {
		_, ok := parseSLCANLine(line)
		assert.False(t, ok, "line %q", line)
	}
}

func TestFakeDrain_StopsAtCap(t *testing.T) {
	bus := NewFake()
	for i := 0; i < DrainCap+50; i++ {
		bus.Push(canproto.Frame{ID: canproto.IDAck, Data: []byte{byte(i)}})
	}

	bus.Drain()

	assert.Len(t, bus.Inbox, 50, "drain consumes at most DrainCap frames")
}

func TestFakeDrain_EmptiesShortInbox(t *testing.T) {
	bus := NewFake()
	bus.Push(canproto.Frame{ID: canproto.IDAck, Data: []byte{0x00}})

	bus.Drain()

	assert.Empty(t, bus.Inbox)
}
