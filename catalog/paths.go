package catalog

import (
	"path/filepath"
	"strconv"

	"github.com/vecshelf/lifecycle/model"
)

// TableDir returns the directory holding every segment of tableID.
func (c *Catalog) TableDir(tableID string) string {
	return filepath.Join(c.root, "tables", tableID)
}

// SegmentDir returns the directory holding every file in one
// (date, segment_id) group.
func (c *Catalog) SegmentDir(f model.FileSchema) string {
	return filepath.Join(c.TableDir(f.TableID), f.Date, strconv.FormatInt(f.SegmentID, 10))
}

// VectorPath returns the on-disk path of a file's raw vector+id payload.
func (c *Catalog) VectorPath(f model.FileSchema) string {
	return filepath.Join(c.SegmentDir(f), f.FileID+".vec")
}

// IndexPath returns the on-disk path of a file's index blob, valid
// only when the file's state is INDEX.
func (c *Catalog) IndexPath(f model.FileSchema) string {
	return filepath.Join(c.SegmentDir(f), f.FileID+".idx")
}
