package wal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// WAL is a single append-only log segment file: <root>/wal/<seq>.log
// in the on-disk layout of spec section 6. LSNs are strictly
// monotonic and gap-free (spec 4.3): every appended record is
// assigned lsn = last LSN + 1 under w.mu.
type WAL struct {
	mu         sync.Mutex
	file       *os.File
	bufWriter  *bufio.Writer
	writer     io.Writer
	compressor *zstd.Encoder
	path       string
	dataOffset int64
	compressed bool

	lastLSN uint64

	durabilityMode      DurabilityMode
	groupCommitInterval time.Duration
	groupCommitMaxOps   int
	groupCommitPending  int
	groupCommitStopCh   chan struct{}
	groupCommitWg       sync.WaitGroup

	syncCond     *sync.Cond
	persistedLSN uint64
}

// Open opens or creates the WAL segment file at <root>/wal/<seq>.log.
func Open(root string, seq int, optFns ...func(*Options)) (*WAL, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	dir := filepath.Join(root, "wal")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("wal: mkdir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%06d.log", seq))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o640) //nolint:gosec // G304: path is engine-controlled
	if err != nil {
		return nil, fmt.Errorf("wal: open: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: stat: %w", err)
	}

	w := &WAL{
		file:                f,
		path:                path,
		durabilityMode:      opts.DurabilityMode,
		groupCommitInterval: opts.GroupCommitInterval,
		groupCommitMaxOps:   opts.GroupCommitMaxOps,
	}
	w.syncCond = sync.NewCond(&w.mu)

	if st.Size() == 0 {
		off, err := writeHeader(f, fileHeader{Compressed: opts.Compress, CompressionLevel: opts.CompressionLevel})
		if err != nil {
			f.Close()
			return nil, err
		}
		w.dataOffset = off
		w.compressed = opts.Compress
	} else {
		hdr, off, valid, err := readHeader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		if !valid {
			f.Close()
			return nil, fmt.Errorf("wal: missing header in non-empty file %s", path)
		}
		w.dataOffset = off
		w.compressed = hdr.Compressed
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: seek end: %w", err)
	}

	if w.compressed {
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.CompressionLevel)))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("wal: new zstd writer: %w", err)
		}
		w.compressor = enc
		w.bufWriter = bufio.NewWriter(enc)
	} else {
		w.bufWriter = bufio.NewWriter(f)
	}
	w.writer = w.bufWriter

	if w.durabilityMode == DurabilityGroupCommit && w.groupCommitInterval > 0 {
		w.groupCommitStopCh = make(chan struct{})
		w.groupCommitWg.Add(1)
		go w.groupCommitWorker()
	}

	return w, nil
}

// Path returns the log segment's file path.
func (w *WAL) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

// Append writes rec with the next LSN and blocks until the batch
// containing it has been fsync'd, per the durability mode (spec
// 4.3: "acknowledgement to the caller is deferred until the batch
// that includes the record has been fsync'd").
func (w *WAL) Append(rec Record) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastLSN++
	rec.LSN = w.lastLSN

	if _, err := w.writer.Write(Encode(rec)); err != nil {
		return 0, fmt.Errorf("wal: encode append: %w", err)
	}
	if err := w.bufWriter.Flush(); err != nil {
		return 0, fmt.Errorf("wal: flush: %w", err)
	}
	if w.compressor != nil {
		if err := w.compressor.Flush(); err != nil {
			return 0, fmt.Errorf("wal: flush compressor: %w", err)
		}
	}
	if err := w.syncLocked(); err != nil {
		return 0, err
	}
	return rec.LSN, nil
}

func (w *WAL) syncLocked() error {
	switch w.durabilityMode {
	case DurabilityAsync:
		return nil
	case DurabilitySync:
		return w.file.Sync()
	case DurabilityGroupCommit:
		w.groupCommitPending++
		target := w.lastLSN
		if w.groupCommitPending >= w.groupCommitMaxOps {
			return w.commitLocked()
		}
		for w.persistedLSN < target {
			w.syncCond.Wait()
		}
		return nil
	default:
		return nil
	}
}

// commitLocked fsyncs and releases every writer waiting on the
// current batch. Caller must hold w.mu.
func (w *WAL) commitLocked() error {
	if w.groupCommitPending == 0 {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: fsync: %w", err)
	}
	w.groupCommitPending = 0
	w.persistedLSN = w.lastLSN
	w.syncCond.Broadcast()
	return nil
}

func (w *WAL) groupCommitWorker() {
	defer w.groupCommitWg.Done()
	ticker := time.NewTicker(w.groupCommitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.groupCommitStopCh:
			w.mu.Lock()
			_ = w.commitLocked()
			w.mu.Unlock()
			return
		case <-ticker.C:
			w.mu.Lock()
			_ = w.commitLocked()
			w.mu.Unlock()
		}
	}
}

// LastLSN returns the highest LSN appended to this segment.
func (w *WAL) LastLSN() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastLSN
}

// SetLastLSN seeds the LSN counter after recovery, so appends
// following a replay continue the sequence without a gap.
func (w *WAL) SetLastLSN(lsn uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastLSN = lsn
}

// Close stops the group-commit worker, flushes, and closes the file.
func (w *WAL) Close() error {
	w.mu.Lock()
	if w.groupCommitStopCh != nil {
		close(w.groupCommitStopCh)
		w.mu.Unlock()
		w.groupCommitWg.Wait()
		w.mu.Lock()
		w.groupCommitStopCh = nil
	}
	defer w.mu.Unlock()

	if err := w.bufWriter.Flush(); err != nil {
		return fmt.Errorf("wal: flush on close: %w", err)
	}
	if w.compressor != nil {
		if err := w.compressor.Close(); err != nil {
			return fmt.Errorf("wal: close compressor: %w", err)
		}
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: fsync on close: %w", err)
	}
	return w.file.Close()
}
