// Package ann is the boundary to the ANN index builder this engine
// treats as an opaque external collaborator (spec section 1): the
// index algorithms themselves — HNSW, IVF, product quantization — are
// out of scope, and this package owns only the interface shape and a
// minimal stand-in implementation that lets the build-index loop
// exercise that boundary without depending on a real ANN library.
package ann

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/vecshelf/lifecycle/kernel"
)

// Builder builds a serialized index blob from a file's raw vectors.
// A real deployment would swap this for a client of an actual ANN
// library; the build-index loop only depends on this interface.
type Builder interface {
	Build(ctx context.Context, ids []int64, vectors []float32, dim int, metric kernel.Metric, params []byte) ([]byte, error)
}

// gobPayload is the wire shape FlatBuilder serializes: dimension,
// metric and the raw rows, mirroring the teacher's index/flat GobEncode
// field order (dimension, nodes, opts) adapted to this file's schema.
type gobPayload struct {
	Dim     int
	Metric  kernel.Metric
	IDs     []int64
	Vectors []float32
}

// FlatBuilder is the default Builder: it gob-encodes the raw rows
// unchanged, producing an index blob that carries no acceleration
// structure of its own. It exists so CreateIndex/the build-index loop
// have a concrete collaborator to call without pretending to
// implement a real ANN algorithm.
type FlatBuilder struct{}

// Build implements Builder.
func (FlatBuilder) Build(_ context.Context, ids []int64, vectors []float32, dim int, metric kernel.Metric, _ []byte) ([]byte, error) {
	if len(ids)*dim != len(vectors) {
		return nil, fmt.Errorf("ann: vector payload length mismatch: ids=%d dim=%d vectors=%d", len(ids), dim, len(vectors))
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(gobPayload{Dim: dim, Metric: metric, IDs: ids, Vectors: vectors}); err != nil {
		return nil, fmt.Errorf("ann: encode: %w", err)
	}
	return buf.Bytes(), nil
}
