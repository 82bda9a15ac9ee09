package engine

import (
	"fmt"
	"strings"

	"github.com/vecshelf/lifecycle"
	"github.com/vecshelf/lifecycle/catalog"
	"github.com/vecshelf/lifecycle/model"
)

// trimTag normalizes a partition tag for comparison (spec 3:
// "(owner_table, partition_tag) is unique; tags are compared after
// trimming surrounding whitespace").
func trimTag(tag string) string {
	return strings.TrimSpace(tag)
}

// CreatePartition creates a partition of ownerTable identified by
// tag, deriving the partition's table_id as "<ownerTable>_<tag>".
// Fails if ownerTable does not exist, is itself a partition
// (nesting is forbidden), or already has a partition with the same
// trimmed tag.
func (db *DB) CreatePartition(ownerTable, tag string) (model.TableSchema, error) {
	owner, err := db.catalog.DescribeTable(ownerTable)
	if err != nil {
		return model.TableSchema{}, lifecycle.TranslateError(err)
	}
	if owner.IsPartition() {
		return model.TableSchema{}, fmt.Errorf("engine: %w: %q is itself a partition", catalog.ErrPartitionNested, ownerTable)
	}

	trimmed := trimTag(tag)
	existing, err := db.catalog.Partitions(ownerTable)
	if err != nil {
		return model.TableSchema{}, lifecycle.TranslateError(err)
	}
	for _, p := range existing {
		if trimTag(p.PartitionTag) == trimmed {
			return model.TableSchema{}, fmt.Errorf("engine: partition tag %q already exists on table %q", tag, ownerTable)
		}
	}

	schema, err := db.catalog.CreateTable(model.TableSchema{
		TableID:       ownerTable + "_" + trimmed,
		Dimension:     owner.Dimension,
		IndexFileSize: owner.IndexFileSize,
		EngineType:    owner.EngineType,
		EngineParams:  owner.EngineParams,
		Metric:        owner.Metric,
		OwnerTable:    ownerTable,
		PartitionTag:  tag,
	})
	return schema, lifecycle.TranslateError(err)
}

// DropPartition soft-deletes the partition row and its files.
func (db *DB) DropPartition(partitionTableID string) error {
	return lifecycle.TranslateError(db.catalog.DropTable(partitionTableID, true))
}

// DropPartitionByTag resolves ownerTable's partition by trimmed tag
// and drops it.
func (db *DB) DropPartitionByTag(ownerTable, tag string) error {
	target, err := db.resolveTarget(ownerTable, tag)
	if err != nil {
		return err
	}
	return db.DropPartition(target.TableID)
}

// ShowPartitions lists ownerTable's active partitions.
func (db *DB) ShowPartitions(ownerTable string) ([]model.TableSchema, error) {
	p, err := db.catalog.Partitions(ownerTable)
	return p, lifecycle.TranslateError(err)
}
