package segment

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// Read loads a segment file from disk, validating the header checksum.
// Returns ErrCorruptFile on mismatch (spec: CORRUPT_FILE).
func Read(path string) (Data, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is engine-controlled
	if err != nil {
		return Data{}, fmt.Errorf("segment: open: %w", err)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 1<<20)

	hdrBuf := make([]byte, headerLen)
	if _, err := io.ReadFull(br, hdrBuf); err != nil {
		return Data{}, fmt.Errorf("segment: read header: %w", err)
	}
	hdr, err := decodeHeader(hdrBuf)
	if err != nil {
		return Data{}, err
	}

	d := Data{
		Metric:   hdr.Metric,
		Dim:      int(hdr.Dim),
		LSN:      hdr.LSN,
		HasIndex: hdr.HasIndex,
	}

	vecCount := int(hdr.RowCount) * int(hdr.Dim)
	d.Vectors = make([]float32, vecCount)
	vecBuf := make([]byte, 4)
	for i := 0; i < vecCount; i++ {
		if _, err := io.ReadFull(br, vecBuf); err != nil {
			return Data{}, fmt.Errorf("segment: read vector payload: %w", err)
		}
		d.Vectors[i] = math.Float32frombits(binary.LittleEndian.Uint32(vecBuf))
	}

	d.IDs = make([]int64, hdr.RowCount)
	idBuf := make([]byte, 8)
	for i := range d.IDs {
		if _, err := io.ReadFull(br, idBuf); err != nil {
			return Data{}, fmt.Errorf("segment: read id payload: %w", err)
		}
		d.IDs[i] = int64(binary.LittleEndian.Uint64(idBuf))
	}

	return d, nil
}

// ReadIndex reads a raw index blob previously written by WriteIndex.
func ReadIndex(path string) ([]byte, error) {
	blob, err := os.ReadFile(path) //nolint:gosec // G304: path is engine-controlled
	if err != nil {
		return nil, fmt.Errorf("segment: read index: %w", err)
	}
	return blob, nil
}

// ReadHeader reads and validates only the header, for callers that
// need row_count/dim/lsn without materializing the payload.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is engine-controlled
	if err != nil {
		return Header{}, fmt.Errorf("segment: open: %w", err)
	}
	defer f.Close()

	hdrBuf := make([]byte, headerLen)
	if _, err := io.ReadFull(f, hdrBuf); err != nil {
		return Header{}, fmt.Errorf("segment: read header: %w", err)
	}
	return decodeHeader(hdrBuf)
}
