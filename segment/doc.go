// Package segment implements the immutable on-disk segment file
// format used by every file in the RAW/TO_INDEX/INDEX states: a
// checksummed header, a contiguous row-major float32 vector payload,
// a parallel id payload, and — for INDEX segments — an opaque index
// blob produced by an external ANN builder.
package segment
