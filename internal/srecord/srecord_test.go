package srecord

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hcs08Image = `S0050000686929
S1071000DEADBEEFB0
S9030000FC
`

func TestHCS08Source_UploadRecords(t *testing.T) {
	source, err := NewHCS08Source(strings.NewReader(hcs08Image))
	require.NoError(t, err)

	records, terminal, err := source.UploadRecords()

	require.NoError(t, err)
	require.Len(t, records, 1, "the S0 header is not a memory record")
	assert.Equal(t, []byte{'S', '1', 0x07, 0x10, 0x00, 0xDE, 0xAD, 0xBE, 0xEF, 0xB0}, records[0])
	assert.Equal(t, []byte{'S', '9', 0x03, 0x00, 0x00, 0xFC}, terminal)
}

func TestS32KSource_UploadRecords(t *testing.T) {
	source, err := NewS32KSource(strings.NewReader("S307000010000102E5\nS70500001000EA\n"))
	require.NoError(t, err)

	records, terminal, err := source.UploadRecords()

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []byte{'S', '3', 0x07, 0x00, 0x00, 0x10, 0x00, 0x01, 0x02, 0xE5}, records[0])
	assert.Len(t, terminal, 8, "an S7 terminal record fills a CAN frame exactly")
	assert.Equal(t, []byte{'S', '7', 0x05, 0x00, 0x00, 0x10, 0x00, 0xEA}, terminal)
}

func TestUploadRecords_MissingTerminalErrors(t *testing.T) {
	source, err := NewHCS08Source(strings.NewReader("S1071000DEADBEEFB0\n"))
	require.NoError(t, err)

	_, _, err = source.UploadRecords()

	assert.ErrorContains(t, err, "no terminal record")
}

func TestUploadRecords_BadChecksumErrors(t *testing.T) {
	source, err := NewHCS08Source(strings.NewReader("S1071000DEADBEEFB1\nS9030000FC\n"))
	require.NoError(t, err)

	_, _, err = source.UploadRecords()

	assert.ErrorContains(t, err, "checksum")
}

func TestUploadRecords_TruncatedLineErrors(t *testing.T) {
	source, err := NewHCS08Source(strings.NewReader("S1071000DEAD\nS9030000FC\n"))
	require.NoError(t, err)

	_, _, err = source.UploadRecords()

	assert.Error(t, err)
}

func TestTextRecords_ReturnsLinesVerbatim(t *testing.T) {
	source, err := NewHCS08Source(strings.NewReader(hcs08Image))
	require.NoError(t, err)

	lines, err := source.TextRecords()

	require.NoError(t, err)
	assert.Equal(t, []string{"S0050000686929", "S1071000DEADBEEFB0", "S9030000FC"}, lines)
}

func TestNewFileSource_RejectsGarbage(t *testing.T) {
	_, err := NewHCS08Source(strings.NewReader("hello\n"))
	assert.Error(t, err)

	_, err = NewHCS08Source(strings.NewReader(""))
	assert.Error(t, err)
}
