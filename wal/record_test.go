package wal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeInsertRoundTrip(t *testing.T) {
	r := Record{
		Op:      OpInsert,
		LSN:     7,
		TableID: "orders",
		Dim:     3,
		IDs:     []int64{1, 2},
		Vectors: []float32{1, 2, 3, 4, 5, 6},
	}
	buf := Encode(r)

	bodyLen := len(buf) - 4
	got, err := Decode(buf[4:4+bodyLen], func(string) int { return 3 })
	require.NoError(t, err)
	assert.Equal(t, r.Op, got.Op)
	assert.Equal(t, r.LSN, got.LSN)
	assert.Equal(t, r.TableID, got.TableID)
	assert.Equal(t, r.IDs, got.IDs)
	assert.Equal(t, r.Vectors, got.Vectors)
}

func TestEncodeDecodeDeleteHasNoVectors(t *testing.T) {
	r := Record{Op: OpDelete, LSN: 1, TableID: "t", IDs: []int64{9}}
	buf := Encode(r)
	bodyLen := len(buf) - 4
	got, err := Decode(buf[4:4+bodyLen], func(string) int { return 128 })
	require.NoError(t, err)
	assert.Equal(t, OpDelete, got.Op)
	assert.Equal(t, []int64{9}, got.IDs)
	assert.Empty(t, got.Vectors)
}

func TestDecodeRejectsCorruptChecksum(t *testing.T) {
	r := Record{Op: OpInsert, LSN: 1, TableID: "t", Dim: 1, IDs: []int64{1}, Vectors: []float32{1}}
	buf := Encode(r)
	buf[len(buf)-1] ^= 0xFF // flip last byte of the vector payload
	bodyLen := len(buf) - 4
	_, err := Decode(buf[4:4+bodyLen], func(string) int { return 1 })
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestDecodeRejectsTruncatedBody(t *testing.T) {
	r := Record{Op: OpInsert, LSN: 1, TableID: "t", Dim: 4, IDs: []int64{1, 2}, Vectors: []float32{1, 2, 3, 4, 5, 6, 7, 8}}
	buf := Encode(r)
	bodyLen := len(buf) - 4
	truncated := buf[4 : 4+bodyLen-6]
	_, err := Decode(truncated, func(string) int { return 4 })
	assert.ErrorIs(t, err, ErrTruncatedRecord)
}
