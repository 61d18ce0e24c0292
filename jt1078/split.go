package jt1078

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/maxenergy/MediaServer/limits"
)

var markerBytes = []byte{0x30, 0x31, 0x63, 0x64}

// SplitRecords returns a bufio.SplitFunc that yields one complete record
// per token. Bytes before a frame marker are skipped, so the scanner
// resynchronizes after garbage. A truncated record at EOF is discarded.
func SplitRecords(v Version) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if !v.Valid() {
			return 0, nil, fmt.Errorf("%w: %d", ErrInvalidVersion, int(v))
		}
		if len(data) == 0 {
			return 0, nil, nil
		}

		idx := bytes.Index(data, markerBytes)
		switch {
		case idx > 0:
			return idx, nil, nil
		case idx < 0:
			if atEOF {
				return len(data), nil, nil
			}
			// Keep a possible partial marker at the tail.
			if keep := len(markerBytes) - 1; len(data) > keep {
				return len(data) - keep, nil, nil
			}
			return 0, nil, nil
		}

		fixed := FixedSize(v)
		if len(data) < fixed {
			return needMore(data, atEOF)
		}
		size := HeaderSize(v, data[fixed-1]>>4)
		if len(data) < size {
			return needMore(data, atEOF)
		}
		total := size + int(binary.BigEndian.Uint16(data[size-2:]))
		if len(data) < total {
			return needMore(data, atEOF)
		}
		return total, data[:total], nil
	}
}

func needMore(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF {
		return len(data), nil, nil
	}
	return 0, nil, nil
}

// NewScanner returns a scanner over r yielding records of version v, with a
// buffer large enough for the biggest record.
func NewScanner(r io.Reader, v Version) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), limits.MaxRecordSize)
	s.Split(SplitRecords(v))
	return s
}
