// Package segment implements the on-disk segment file format (spec
// section 4.5): a header, a contiguous vector payload, an id payload,
// and, for indexed segments, an opaque index blob produced by an
// external ANN builder.
//
// Write path: write to a .tmp sibling, fsync, rename to the final
// name, fsync the containing directory. Read path validates the
// header checksum and rejects on mismatch.
package segment

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"github.com/vecshelf/lifecycle/kernel"
)

// Magic identifies a segment file produced by this engine.
var magic = [4]byte{'V', 'L', 'E', '1'}

const headerVersion = 1

// ErrCorruptFile is returned when a segment's header checksum does
// not match its contents (spec: CORRUPT_FILE).
var ErrCorruptFile = errors.New("segment: corrupt file")

// Header is the fixed-size prefix of a segment file.
type Header struct {
	Version  uint32
	Metric   kernel.Metric
	Dim      uint32
	RowCount uint64
	LSN      uint64
	HasIndex bool
}

// headerLen is the on-disk size of the encoded header, including its
// own trailing CRC32.
const headerLen = 4 /*magic*/ + 4 /*version*/ + 1 /*metric*/ + 4 /*dim*/ + 8 /*rowcount*/ + 8 /*lsn*/ + 1 /*hasindex*/ + 4 /*crc*/

func encodeHeader(h Header) []byte {
	buf := make([]byte, headerLen)
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	buf[8] = byte(h.Metric)
	binary.LittleEndian.PutUint32(buf[9:13], h.Dim)
	binary.LittleEndian.PutUint64(buf[13:21], h.RowCount)
	binary.LittleEndian.PutUint64(buf[21:29], h.LSN)
	if h.HasIndex {
		buf[29] = 1
	}
	crc := crc32.ChecksumIEEE(buf[:headerLen-4])
	binary.LittleEndian.PutUint32(buf[headerLen-4:headerLen], crc)
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < headerLen {
		return h, ErrCorruptFile
	}
	if [4]byte(buf[0:4]) != magic {
		return h, ErrCorruptFile
	}
	wantCRC := binary.LittleEndian.Uint32(buf[headerLen-4 : headerLen])
	gotCRC := crc32.ChecksumIEEE(buf[:headerLen-4])
	if wantCRC != gotCRC {
		return h, ErrCorruptFile
	}
	h.Version = binary.LittleEndian.Uint32(buf[4:8])
	h.Metric = kernel.Metric(buf[8])
	h.Dim = binary.LittleEndian.Uint32(buf[9:13])
	h.RowCount = binary.LittleEndian.Uint64(buf[13:21])
	h.LSN = binary.LittleEndian.Uint64(buf[21:29])
	h.HasIndex = buf[29] == 1
	return h, nil
}
