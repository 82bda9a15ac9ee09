package segment

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/vecshelf/lifecycle/kernel"
)

// Data is the decoded payload of a segment's vector file: parallel row
// vectors and ids, plus whether a sibling index file exists. The index
// blob itself, when present, is a separate file written by WriteIndex
// (spec section 6: "<file_id>.vec" and "<file_id>.idx" are distinct
// files in the same segment directory).
type Data struct {
	Metric    kernel.Metric
	Dim       int
	LSN       uint64
	IDs       []int64
	Vectors   []float32 // len == len(IDs)*Dim, row-major
	IndexBlob []byte    // set on Write only, to flag the header; never populated by Read
	HasIndex  bool      // populated by Read from the header; true means a sibling .idx file exists
}

// Write atomically materializes d's header/vectors/ids to path: it
// writes to path+".tmp", fsyncs the file, renames it into place, then
// fsyncs the containing directory so the rename itself is durable.
// Grounded on the teacher's manifest.Store.Save tmp/fsync/rename/
// fsync-dir sequence. d.IndexBlob is not written here — it only sets
// the header's HasIndex flag; the blob bytes go to the sibling .idx
// file via WriteIndex.
func Write(path string, d Data) error {
	if len(d.IDs)*d.Dim != len(d.Vectors) {
		return fmt.Errorf("segment: vector payload length mismatch: ids=%d dim=%d vectors=%d",
			len(d.IDs), d.Dim, len(d.Vectors))
	}

	hdr := Header{
		Version:  headerVersion,
		Metric:   d.Metric,
		Dim:      uint32(d.Dim),
		RowCount: uint64(len(d.IDs)),
		LSN:      d.LSN,
		HasIndex: d.IndexBlob != nil,
	}

	return writeAtomic(path, func(bw *bufio.Writer) error {
		if _, err := bw.Write(encodeHeader(hdr)); err != nil {
			return fmt.Errorf("segment: write header: %w", err)
		}

		vecBuf := make([]byte, 4)
		for _, v := range d.Vectors {
			binary.LittleEndian.PutUint32(vecBuf, math.Float32bits(v))
			if _, err := bw.Write(vecBuf); err != nil {
				return fmt.Errorf("segment: write vector payload: %w", err)
			}
		}

		idBuf := make([]byte, 8)
		for _, id := range d.IDs {
			binary.LittleEndian.PutUint64(idBuf, uint64(id))
			if _, err := bw.Write(idBuf); err != nil {
				return fmt.Errorf("segment: write id payload: %w", err)
			}
		}
		return nil
	})
}

// WriteIndex atomically writes a serialized index blob (produced by an
// external ANN builder, spec section 1) to path, using the same
// tmp/fsync/rename/fsync-dir sequence as Write.
func WriteIndex(path string, blob []byte) error {
	return writeAtomic(path, func(bw *bufio.Writer) error {
		if _, err := bw.Write(blob); err != nil {
			return fmt.Errorf("segment: write index blob: %w", err)
		}
		return nil
	})
}

// writeAtomic runs body against a buffered writer over a .tmp sibling
// of path, then fsyncs the file, renames it into place, and fsyncs
// the containing directory.
func writeAtomic(path string, body func(*bufio.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("segment: mkdir: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640) //nolint:gosec // G304: path is engine-controlled
	if err != nil {
		return fmt.Errorf("segment: create temp: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}()

	bw := bufio.NewWriterSize(f, 1<<20)
	if err := body(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("segment: flush temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("segment: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("segment: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("segment: rename into place: %w", err)
	}

	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("segment: open dir for fsync: %w", err)
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return fmt.Errorf("segment: fsync dir: %w", err)
	}
	return nil
}
