package wal

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

var (
	fileMagic     = [4]byte{'V', 'L', 'W', '0'}
	headerVersion = uint16(1)
	headerLen     = 16 // fixed size, no variable trailer
)

type fileHeader struct {
	Compressed       bool
	CompressionLevel int
}

func writeHeader(w io.Writer, h fileHeader) (int64, error) {
	var flags uint16
	if h.Compressed {
		flags |= 1
	}
	level := uint8(0)
	if h.Compressed {
		level = uint8(h.CompressionLevel) //nolint:gosec // zstd levels fit uint8
	}

	buf := make([]byte, 0, headerLen)
	buf = append(buf, fileMagic[:]...)
	var fixed [12]byte
	binary.LittleEndian.PutUint16(fixed[0:2], headerVersion)
	binary.LittleEndian.PutUint16(fixed[2:4], flags)
	fixed[4] = level
	buf = append(buf, fixed[:]...)

	if _, err := w.Write(buf); err != nil {
		return 0, fmt.Errorf("wal: write header: %w", err)
	}
	return int64(len(buf)), nil
}

func readHeader(f *os.File) (fileHeader, int64, bool, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fileHeader{}, 0, false, fmt.Errorf("wal: seek: %w", err)
	}

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		if err == io.EOF { //nolint:errorlint // io.ReadFull returns io.EOF verbatim on zero bytes read
			return fileHeader{}, 0, false, nil
		}
		return fileHeader{}, 0, false, fmt.Errorf("wal: read header magic: %w", err)
	}
	if magic != fileMagic {
		return fileHeader{}, 0, false, fmt.Errorf("wal: bad header magic")
	}

	fixed := make([]byte, headerLen-4)
	if _, err := io.ReadFull(f, fixed); err != nil {
		return fileHeader{}, 0, true, fmt.Errorf("wal: read header: %w", err)
	}
	version := binary.LittleEndian.Uint16(fixed[0:2])
	if version != headerVersion {
		return fileHeader{}, 0, true, fmt.Errorf("wal: unsupported header version %d", version)
	}
	flags := binary.LittleEndian.Uint16(fixed[2:4])
	h := fileHeader{
		Compressed:       flags&1 != 0,
		CompressionLevel: int(fixed[4]),
	}
	return h, int64(headerLen), true, nil
}
