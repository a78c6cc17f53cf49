// Package srecord supplies firmware images to the upload engine as
// sequences of opaque record bytes. It defines the Source interface
// plus two concrete file-backed sources, one per supported MCU family
// (HCS08 uses S1/S9 records, S32K uses S3/S7).
package srecord

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Source exposes a finite sequence of opaque S-record byte payloads:
// memory records plus a terminal record for uploading, and the textual
// form for printing.
type Source interface {
	// UploadRecords returns the memory records (S1/S3, 2-N bytes each)
	// and the single terminal record (S9/S7, <= 8 bytes).
	UploadRecords() (records [][]byte, terminal []byte, err error)
	// TextRecords returns every record (memory and terminal) in its
	// original textual form, for the print-hcs08-srecords and
	// print-s32k-srecords CLI actions.
	TextRecords() ([]string, error)
}

// family distinguishes the two supported MCU record conventions: which
// type tags are memory records vs. the terminal record.
type family struct {
	memoryTypes  string // e.g. "13" for S1/S3
	terminalType byte   // e.g. '9' for S9
}

var (
	hcs08 = family{memoryTypes: "1", terminalType: '9'}
	s32k  = family{memoryTypes: "3", terminalType: '7'}
)

// fileSource reads Motorola S-record text and groups lines by family.
type fileSource struct {
	fam   family
	lines []string
}

// NewHCS08Source reads an HCS08 S-record file (S1 memory records, S9
// terminal record) from r.
func NewHCS08Source(r io.Reader) (Source, error) {
	return newFileSource(r, hcs08)
}

// NewS32KSource reads an S32K S-record file (S3 memory records, S7
// terminal record) from r.
func NewS32KSource(r io.Reader) (Source, error) {
	return newFileSource(r, s32k)
}

func newFileSource(r io.Reader, fam family) (*fileSource, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line[0] != 'S' {
			return nil, fmt.Errorf("srecord: line %q does not start with 'S'", line)
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("srecord: reading: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("srecord: no records found")
	}
	return &fileSource{fam: fam, lines: lines}, nil
}

// UploadRecords converts every memory-type line and the terminal line
// into the byte form the bootloader ROM consumes: the two ASCII type
// characters ("S1", "S3", ...) followed by the remaining hex pairs
// (length, address, data, checksum) decoded to raw bytes. This is the
// exact framing the SREC CAN stream carries; a terminal S9 record is 6
// bytes and a terminal S7 record is 8, which is why the terminal record
// always fits in a single CAN frame.
func (s *fileSource) UploadRecords() ([][]byte, []byte, error) {
	var records [][]byte
	var terminal []byte

	for _, line := range s.lines {
		typ := line[1]
		record, err := decodeRecord(line)
		if err != nil {
			return nil, nil, err
		}
		switch {
		case typ == s.fam.terminalType:
			terminal = record
		case strings.IndexByte(s.fam.memoryTypes, typ) >= 0:
			records = append(records, record)
		default:
			// Records outside this family's memory/terminal types
			// (e.g. an S0 header) carry nothing the ROM wants and
			// are skipped.
		}
	}

	if terminal == nil {
		return nil, nil, fmt.Errorf("srecord: no terminal record found")
	}
	return records, terminal, nil
}

// TextRecords returns every line verbatim.
func (s *fileSource) TextRecords() ([]string, error) {
	return s.lines, nil
}

// decodeRecord keeps the two ASCII type characters and decodes the rest
// of the line (length, address+data, checksum) from hex to raw bytes.
func decodeRecord(line string) ([]byte, error) {
	if len(line) < 6 || len(line)%2 != 0 {
		return nil, fmt.Errorf("srecord: line %q has invalid length", line)
	}
	length, err := strconv.ParseUint(line[2:4], 16, 8)
	if err != nil {
		return nil, fmt.Errorf("srecord: line %q has invalid length field: %w", line, err)
	}
	// The length byte counts address+data+checksum; the line must hold
	// exactly that many hex pairs after the type and length fields.
	if len(line) != 4+int(length)*2 {
		return nil, fmt.Errorf("srecord: line %q does not match declared length %d", line, length)
	}

	record := make([]byte, 2, 2+1+length)
	record[0], record[1] = line[0], line[1]
	for i := 2; i < len(line); i += 2 {
		b, err := strconv.ParseUint(line[i:i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("srecord: line %q has invalid hex: %w", line, err)
		}
		record = append(record, byte(b))
	}

	// The checksum is the ones' complement of the sum of length,
	// address, and data; summing everything including the checksum
	// must give 0xFF in the low byte.
	var sum byte
	for _, b := range record[2:] {
		sum += b
	}
	if sum != 0xFF {
		return nil, fmt.Errorf("srecord: line %q has bad checksum", line)
	}
	return record, nil
}
