package wal

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAssignsMonotonicLSN(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 1, WithDurabilityMode(DurabilitySync))
	require.NoError(t, err)
	defer w.Close()

	lsn1, err := w.Append(Record{Op: OpInsert, TableID: "t", Dim: 1, IDs: []int64{1}, Vectors: []float32{1}})
	require.NoError(t, err)
	lsn2, err := w.Append(Record{Op: OpDelete, TableID: "t", IDs: []int64{1}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), lsn1)
	assert.Equal(t, uint64(2), lsn2)
}

func TestAppendAndReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 1, WithDurabilityMode(DurabilitySync))
	require.NoError(t, err)

	_, err = w.Append(Record{Op: OpInsert, TableID: "orders", Dim: 2, IDs: []int64{1, 2}, Vectors: []float32{1, 2, 3, 4}})
	require.NoError(t, err)
	_, err = w.Append(Record{Op: OpDelete, TableID: "orders", IDs: []int64{1}})
	require.NoError(t, err)
	_, err = w.Append(Record{Op: OpFlushMark, TableID: "orders"})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var replayed []Record
	err = Replay(w.Path(), func(string) int { return 2 }, func(r Record) error {
		replayed = append(replayed, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, replayed, 3)
	assert.Equal(t, OpInsert, replayed[0].Op)
	assert.Equal(t, []float32{1, 2, 3, 4}, replayed[0].Vectors)
	assert.Equal(t, OpDelete, replayed[1].Op)
	assert.Equal(t, OpFlushMark, replayed[2].Op)
}

func TestReplayTruncatesTornTrailingRecord(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 1, WithDurabilityMode(DurabilitySync))
	require.NoError(t, err)
	_, err = w.Append(Record{Op: OpInsert, TableID: "t", Dim: 1, IDs: []int64{1}, Vectors: []float32{1}})
	require.NoError(t, err)
	path := w.Path()
	require.NoError(t, w.Close())

	// Simulate a crash mid-write: append a length prefix promising a
	// body that never arrives.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o640)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xFF, 0xFF, 0x00, 0x00}) // huge bogus length
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var replayed []Record
	err = Replay(path, func(string) int { return 1 }, func(r Record) error {
		replayed = append(replayed, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, replayed, 1)
}

func TestGroupCommitReleasesWaitersOnMaxOps(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 1, WithDurabilityMode(DurabilityGroupCommit), WithGroupCommit(time.Hour, 2))
	require.NoError(t, err)
	defer w.Close()

	done := make(chan error, 2)
	go func() {
		_, err := w.Append(Record{Op: OpDelete, TableID: "t", IDs: []int64{1}})
		done <- err
	}()
	go func() {
		_, err := w.Append(Record{Op: OpDelete, TableID: "t", IDs: []int64{2}})
		done <- err
	}()

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("group commit never released waiter")
		}
	}
}

func TestCompressedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 1, WithDurabilityMode(DurabilitySync), WithCompression(3))
	require.NoError(t, err)
	_, err = w.Append(Record{Op: OpInsert, TableID: "t", Dim: 2, IDs: []int64{5}, Vectors: []float32{1.5, -2.5}})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var replayed []Record
	err = Replay(w.Path(), func(string) int { return 2 }, func(r Record) error {
		replayed = append(replayed, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, replayed, 1)
	assert.Equal(t, []float32{1.5, -2.5}, replayed[0].Vectors)
}
