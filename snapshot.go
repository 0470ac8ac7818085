package vectra

import (
	"context"
	"fmt"
	"path"

	"github.com/Stevenic/vectra-sub001/codec"
	"github.com/Stevenic/vectra-sub001/storage"
)

// indexFile is the name of the index snapshot inside the index folder.
const indexFile = "index.json"

// currentVersion is the index schema version written by this package.
const currentVersion = 1

// indexSnapshot is the whole on-disk state of an index.
type indexSnapshot struct {
	Version        int            `json:"version"`
	MetadataConfig MetadataConfig `json:"metadata_config"`
	Items          []*Item        `json:"items"`
}

// clone returns a deep copy suitable as a transaction working copy.
func (s *indexSnapshot) clone() *indexSnapshot {
	items := make([]*Item, len(s.Items))
	for i, item := range s.Items {
		items[i] = item.Clone()
	}
	return &indexSnapshot{
		Version:        s.Version,
		MetadataConfig: s.MetadataConfig,
		Items:          items,
	}
}

// find returns the position of the item with the given id, or -1.
func (s *indexSnapshot) find(id string) int {
	for i, item := range s.Items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func loadSnapshot(ctx context.Context, st storage.Storage, c codec.Codec, folderPath string) (*indexSnapshot, error) {
	data, err := st.ReadFile(ctx, path.Join(folderPath, indexFile))
	if err != nil {
		return nil, translateError(err)
	}
	var snapshot indexSnapshot
	if err := c.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode %s: %w", indexFile, err)
	}
	return &snapshot, nil
}

func saveSnapshot(ctx context.Context, st storage.Storage, c codec.Codec, folderPath string, snapshot *indexSnapshot) error {
	data, err := c.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode %s: %w", indexFile, err)
	}
	return st.UpsertFile(ctx, path.Join(folderPath, indexFile), data)
}
