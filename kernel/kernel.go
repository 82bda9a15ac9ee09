// Package kernel implements distance-kernel dispatch: given a metric
// and a vector dimension, return the SIMD-width-appropriate kernel
// function. The kernel bodies themselves are plain Go (the vectorized
// assembly implementations are out of scope, per spec section 1); what
// this package owns is the *selection* rule and the runtime
// CPU-feature detection that drives it.
package kernel

import "fmt"

// Metric is the distance/similarity metric a table is configured
// with. Immutable once a table is created (spec section 3).
type Metric uint8

const (
	// L2 is squared Euclidean distance (smaller is closer).
	L2 Metric = iota
	// InnerProduct is the dot product (larger is closer).
	InnerProduct
)

func (m Metric) String() string {
	switch m {
	case L2:
		return "L2"
	case InnerProduct:
		return "IP"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(m))
	}
}

// ParseMetric parses a metric's persisted string form.
func ParseMetric(s string) (Metric, bool) {
	switch s {
	case "L2":
		return L2, true
	case "IP":
		return InnerProduct, true
	default:
		return 0, false
	}
}

// Less reports whether score a ranks strictly ahead of score b under
// this metric's ordering (ascending for L2, descending for IP).
func (m Metric) Less(a, b float32) bool {
	if m == InnerProduct {
		return a > b
	}
	return a < b
}

// Width is the SIMD lane width a kernel is specialized for.
type Width int

const (
	// Width1 is the scalar fallback.
	Width1 Width = 1
	// Width8 is the AVX2 8-wide float32 kernel.
	Width8 Width = 8
	// Width16 is the AVX-512 16-wide float32 kernel.
	Width16 Width = 16
)

// Kernel computes n distances between a single query vector and n
// contiguous database vectors, writing them into a caller-supplied
// output slice (len(out) must be >= n). Trained scalar-quantizer
// decode parameters, when present, are closed over by the returned
// closure rather than passed per-call.
type Kernel func(query, database []float32, n int, out []float32)

// TrainedParams configures scalar-quantizer decode tables consulted
// by some kernels. A nil value means "no quantization, raw float32".
type TrainedParams struct {
	// Scale and Offset dequantize a per-dimension scalar code:
	// value = code*Scale + Offset. Empty for unquantized kernels.
	Scale  []float32
	Offset []float32
}

// widthFor implements the spec's exact selection rule:
// dim%16==0 ? 16 : dim%8==0 ? 8 : 1, gated by what the CPU actually
// supports.
func widthFor(dim int) Width {
	switch {
	case dim > 0 && dim%16 == 0 && HasAVX512():
		return Width16
	case dim > 0 && dim%8 == 0 && HasAVX2():
		return Width8
	default:
		return Width1
	}
}

// Select returns the kernel for (metric, dim), honoring trained
// scalar-quantizer parameters when present. This is a pure lookup: no
// mutable dispatch state beyond the capability flags set once at
// package init.
func Select(metric Metric, dim int, trained *TrainedParams) Kernel {
	width := widthFor(dim)
	if trained != nil && len(trained.Scale) == dim {
		return quantizedKernel(metric, trained)
	}
	return plainKernel(metric, width)
}

// plainKernel returns the float32 kernel for (metric, width). Both
// metrics have a correct kernel at every width — see DESIGN.md's
// resolution of Open Question (a): the 16-wide inner-product branch
// is not the L2 kernel.
func plainKernel(metric Metric, width Width) Kernel {
	switch metric {
	case InnerProduct:
		switch width {
		case Width16:
			return dotBatch16
		case Width8:
			return dotBatch8
		default:
			return dotBatchScalar
		}
	default: // L2
		switch width {
		case Width16:
			return l2Batch16
		case Width8:
			return l2Batch8
		default:
			return l2BatchScalar
		}
	}
}

func quantizedKernel(metric Metric, trained *TrainedParams) Kernel {
	scale, offset := trained.Scale, trained.Offset
	if metric == InnerProduct {
		return func(query, database []float32, n int, out []float32) {
			dim := len(query)
			for i := 0; i < n; i++ {
				row := database[i*dim : (i+1)*dim]
				var sum float32
				for d := 0; d < dim; d++ {
					sum += query[d] * (row[d]*scale[d] + offset[d])
				}
				out[i] = sum
			}
		}
	}
	return func(query, database []float32, n int, out []float32) {
		dim := len(query)
		for i := 0; i < n; i++ {
			row := database[i*dim : (i+1)*dim]
			var sum float32
			for d := 0; d < dim; d++ {
				diff := query[d] - (row[d]*scale[d] + offset[d])
				sum += diff * diff
			}
			out[i] = sum
		}
	}
}

// Distance computes a single pairwise distance under metric m. Used
// by the query executor when scanning the in-memory buffer, where
// batching one row at a time is not worth a batch kernel call.
func Distance(m Metric, a, b []float32) float32 {
	var out [1]float32
	plainKernel(m, Width1)(a, b, 1, out[:])
	return out[0]
}

// --- scalar fallbacks -------------------------------------------------

func l2BatchScalar(query, database []float32, n int, out []float32) {
	dim := len(query)
	for i := 0; i < n; i++ {
		row := database[i*dim : (i+1)*dim]
		var sum float32
		for d := 0; d < dim; d++ {
			diff := query[d] - row[d]
			sum += diff * diff
		}
		out[i] = sum
	}
}

func dotBatchScalar(query, database []float32, n int, out []float32) {
	dim := len(query)
	for i := 0; i < n; i++ {
		row := database[i*dim : (i+1)*dim]
		var sum float32
		for d := 0; d < dim; d++ {
			sum += query[d] * row[d]
		}
		out[i] = sum
	}
}

// --- width-specialized kernels -----------------------------------------
//
// These are written as unrolled-by-width pure Go loops rather than
// assembly: the vectorized backends themselves are out of scope (spec
// section 1, "SIMD distance-kernel selection... treated as opaque").
// What matters for this package's contract is that dispatch picks the
// width the detected ISA supports; the unrolling here documents the
// intended lane width without depending on a specific compiler
// auto-vectorization outcome.

func l2Batch8(query, database []float32, n int, out []float32) {
	dim := len(query)
	for i := 0; i < n; i++ {
		row := database[i*dim : (i+1)*dim]
		var sum float32
		d := 0
		for ; d+8 <= dim; d += 8 {
			for j := 0; j < 8; j++ {
				diff := query[d+j] - row[d+j]
				sum += diff * diff
			}
		}
		for ; d < dim; d++ {
			diff := query[d] - row[d]
			sum += diff * diff
		}
		out[i] = sum
	}
}

func l2Batch16(query, database []float32, n int, out []float32) {
	dim := len(query)
	for i := 0; i < n; i++ {
		row := database[i*dim : (i+1)*dim]
		var sum float32
		d := 0
		for ; d+16 <= dim; d += 16 {
			for j := 0; j < 16; j++ {
				diff := query[d+j] - row[d+j]
				sum += diff * diff
			}
		}
		for ; d < dim; d++ {
			diff := query[d] - row[d]
			sum += diff * diff
		}
		out[i] = sum
	}
}

func dotBatch8(query, database []float32, n int, out []float32) {
	dim := len(query)
	for i := 0; i < n; i++ {
		row := database[i*dim : (i+1)*dim]
		var sum float32
		d := 0
		for ; d+8 <= dim; d += 8 {
			for j := 0; j < 8; j++ {
				sum += query[d+j] * row[d+j]
			}
		}
		for ; d < dim; d++ {
			sum += query[d] * row[d]
		}
		out[i] = sum
	}
}

func dotBatch16(query, database []float32, n int, out []float32) {
	dim := len(query)
	for i := 0; i < n; i++ {
		row := database[i*dim : (i+1)*dim]
		var sum float32
		d := 0
		for ; d+16 <= dim; d += 16 {
			for j := 0; j < 16; j++ {
				sum += query[d+j] * row[d+j]
			}
		}
		for ; d < dim; d++ {
			sum += query[d] * row[d]
		}
		out[i] = sum
	}
}
