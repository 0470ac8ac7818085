package vectra

import (
	"github.com/Stevenic/vectra-sub001/metadata"
)

// MetadataConfig controls which metadata fields are kept inline in the
// index file. When Indexed is non-empty, all other fields are written to
// a per-item side file instead.
type MetadataConfig struct {
	Indexed []string `json:"indexed,omitempty"`
}

// CreateIndexConfig configures index creation.
type CreateIndexConfig struct {
	// Version is the index schema version. Zero means the current one.
	Version int

	// DeleteIfExists replaces an existing index instead of failing.
	DeleteIfExists bool

	// MetadataConfig controls inline vs side-file metadata placement.
	MetadataConfig MetadataConfig
}

// Item is a stored vector with its metadata.
type Item struct {
	ID           string            `json:"id"`
	Vector       []float32         `json:"vector"`
	Norm         float32           `json:"norm"`
	Metadata     metadata.Metadata `json:"metadata,omitempty"`
	MetadataFile string            `json:"metadataFile,omitempty"`
}

// Clone returns a copy of the item. The vector is shared; it is never
// mutated after insert.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	clone := *i
	clone.Metadata = i.Metadata.Clone()
	return &clone
}

// QueryResult pairs an item with its similarity score.
type QueryResult struct {
	Item  *Item   `json:"item"`
	Score float32 `json:"score"`
}

// IndexStats summarizes an index.
type IndexStats struct {
	Version        int
	MetadataConfig MetadataConfig
	Items          int
}
