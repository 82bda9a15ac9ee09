package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vecshelf/lifecycle/kernel"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0001.vec")

	d := Data{
		Metric:  kernel.L2,
		Dim:     4,
		LSN:     42,
		IDs:     []int64{10, 11, 12},
		Vectors: []float32{0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2},
	}

	require.NoError(t, Write(path, d))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, d.Metric, got.Metric)
	assert.Equal(t, d.Dim, got.Dim)
	assert.Equal(t, d.LSN, got.LSN)
	assert.Equal(t, d.IDs, got.IDs)
	assert.Equal(t, d.Vectors, got.Vectors)
	assert.Nil(t, got.IndexBlob)

	// The .tmp sibling must not survive a successful write.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteReadWithIndexBlob(t *testing.T) {
	dir := t.TempDir()
	vecPath := filepath.Join(dir, "seg.vec")
	idxPath := filepath.Join(dir, "seg.idx")

	blob := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	d := Data{
		Metric:    kernel.InnerProduct,
		Dim:       2,
		LSN:       7,
		IDs:       []int64{1},
		Vectors:   []float32{1, 2},
		IndexBlob: blob,
	}
	require.NoError(t, Write(vecPath, d))
	require.NoError(t, WriteIndex(idxPath, blob))

	got, err := Read(vecPath)
	require.NoError(t, err)
	assert.True(t, got.HasIndex)

	gotBlob, err := ReadIndex(idxPath)
	require.NoError(t, err)
	assert.Equal(t, blob, gotBlob)
}

func TestReadCorruptHeaderIsRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seg.vec")

	require.NoError(t, Write(path, Data{Metric: kernel.L2, Dim: 1, IDs: []int64{1}, Vectors: []float32{1}}))

	// Flip a byte inside the header to break its checksum.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[10] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o640))

	_, err = Read(path)
	assert.ErrorIs(t, err, ErrCorruptFile)
}

func TestWriteRejectsMismatchedPayload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.vec")
	err := Write(path, Data{Dim: 4, IDs: []int64{1, 2}, Vectors: []float32{1, 2, 3}})
	assert.Error(t, err)
}
