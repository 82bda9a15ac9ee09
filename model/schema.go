package model

import "github.com/vecshelf/lifecycle/kernel"

// TableSchema is a table or partition row (spec section 3, "Table" /
// "Partition"). A partition is a TableSchema whose OwnerTable is
// non-empty; nesting partitions is forbidden.
type TableSchema struct {
	ID            int64
	TableID       string
	Dimension     int
	IndexFileSize int64
	EngineType    string
	EngineParams  string // opaque JSON, interpreted by the ANN builder
	Metric        kernel.Metric
	CreatedOn     int64 // unix micros
	FlushLSN      uint64
	State         TableState
	OwnerTable    string
	PartitionTag  string
	SchemaVersion int

	// Flag is an opaque bitfield for caller-defined table markers (e.g.
	// "read-only", "compaction-disabled"). The catalog never inspects
	// it; UpdateTableFlag overwrites it unconditionally.
	Flag int64
}

// IsPartition reports whether this row is a partition of another table.
func (t TableSchema) IsPartition() bool {
	return t.OwnerTable != ""
}

// FileSchema is a segment file row (spec section 3, "Segment file").
// Table-level fields (Dimension, EngineType, Metric) are denormalized
// onto the row at read time so callers don't need a second lookup.
type FileSchema struct {
	ID          int64
	FileID      string
	SegmentID   int64
	TableID     string
	FileType    FileState
	FileSize    int64
	RowCount    int64
	Date        string // YYYYMMDD, used for directory sharding
	EngineType  string
	CreatedOn   int64 // unix micros
	UpdatedTime int64 // unix micros
	FlushLSN    uint64

	// Denormalized from the owning table, populated by catalog reads.
	Dimension int
	Metric    kernel.Metric
}
