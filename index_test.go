package vectra

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stevenic/vectra-sub001/metadata"
	"github.com/Stevenic/vectra-sub001/storage"
)

// flakyStorage fails the next failUpserts UpsertFile calls before
// delegating to the wrapped storage.
type flakyStorage struct {
	storage.Storage
	failUpserts int
}

func (f *flakyStorage) UpsertFile(ctx context.Context, filePath string, data []byte) error {
	if f.failUpserts > 0 {
		f.failUpserts--
		return errors.New("upsert failed")
	}
	return f.Storage.UpsertFile(ctx, filePath, data)
}

func newTestIndex(t *testing.T, config CreateIndexConfig) *LocalIndex {
	t.Helper()
	index := NewLocalIndex("index", WithStorage(storage.NewMemory()))
	require.NoError(t, index.CreateIndex(context.Background(), config))
	return index
}

func TestCreateIndex(t *testing.T) {
	ctx := context.Background()

	t.Run("creates empty index", func(t *testing.T) {
		index := newTestIndex(t, CreateIndexConfig{})

		created, err := index.IsIndexCreated(ctx)
		require.NoError(t, err)
		assert.True(t, created)

		stats, err := index.GetIndexStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, currentVersion, stats.Version)
		assert.Equal(t, 0, stats.Items)
	})

	t.Run("fails when index exists", func(t *testing.T) {
		index := newTestIndex(t, CreateIndexConfig{})
		assert.ErrorIs(t, index.CreateIndex(ctx, CreateIndexConfig{}), ErrIndexExists)
	})

	t.Run("delete if exists replaces index", func(t *testing.T) {
		index := newTestIndex(t, CreateIndexConfig{})
		_, err := index.InsertItem(ctx, &Item{ID: "1", Vector: []float32{1}})
		require.NoError(t, err)

		require.NoError(t, index.CreateIndex(ctx, CreateIndexConfig{DeleteIfExists: true}))

		stats, err := index.GetIndexStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Items)
	})

	t.Run("delete index removes everything", func(t *testing.T) {
		index := newTestIndex(t, CreateIndexConfig{})
		require.NoError(t, index.DeleteIndex(ctx))

		created, err := index.IsIndexCreated(ctx)
		require.NoError(t, err)
		assert.False(t, created)

		_, err = index.GetIndexStats(ctx)
		assert.ErrorIs(t, err, ErrIndexNotFound)
	})
}

func TestTransactionStateMachine(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t, CreateIndexConfig{})

	t.Run("begin twice fails", func(t *testing.T) {
		require.NoError(t, index.BeginUpdate(ctx))
		assert.ErrorIs(t, index.BeginUpdate(ctx), ErrUpdateInProgress)
		require.NoError(t, index.CancelUpdate(ctx))
	})

	t.Run("end without begin fails", func(t *testing.T) {
		assert.ErrorIs(t, index.EndUpdate(ctx), ErrNoUpdateInProgress)
	})

	t.Run("cancel without begin fails", func(t *testing.T) {
		assert.ErrorIs(t, index.CancelUpdate(ctx), ErrNoUpdateInProgress)
	})

	t.Run("cancel discards mutations", func(t *testing.T) {
		require.NoError(t, index.BeginUpdate(ctx))
		_, err := index.InsertItem(ctx, &Item{ID: "discarded", Vector: []float32{1}})
		require.NoError(t, err)
		require.NoError(t, index.CancelUpdate(ctx))

		item, err := index.GetItem(ctx, "discarded")
		require.NoError(t, err)
		assert.Nil(t, item)
	})

	t.Run("end commits mutations", func(t *testing.T) {
		require.NoError(t, index.BeginUpdate(ctx))
		_, err := index.InsertItem(ctx, &Item{ID: "kept", Vector: []float32{1}})
		require.NoError(t, err)
		require.NoError(t, index.EndUpdate(ctx))

		item, err := index.GetItem(ctx, "kept")
		require.NoError(t, err)
		require.NotNil(t, item)
		assert.Equal(t, "kept", item.ID)
	})
}

func TestInsertItem(t *testing.T) {
	ctx := context.Background()

	t.Run("requires vector", func(t *testing.T) {
		index := newTestIndex(t, CreateIndexConfig{})
		_, err := index.InsertItem(ctx, &Item{ID: "1"})
		assert.ErrorIs(t, err, ErrNoVector)
	})

	t.Run("assigns id when absent", func(t *testing.T) {
		index := newTestIndex(t, CreateIndexConfig{})
		item, err := index.InsertItem(ctx, &Item{Vector: []float32{1, 2}})
		require.NoError(t, err)
		assert.NotEmpty(t, item.ID)
	})

	t.Run("computes norm", func(t *testing.T) {
		index := newTestIndex(t, CreateIndexConfig{})
		item, err := index.InsertItem(ctx, &Item{ID: "1", Vector: []float32{3, 4}})
		require.NoError(t, err)
		assert.InDelta(t, 5.0, item.Norm, 1e-6)
	})

	t.Run("duplicate id fails", func(t *testing.T) {
		index := newTestIndex(t, CreateIndexConfig{})
		_, err := index.InsertItem(ctx, &Item{ID: "1", Vector: []float32{1}})
		require.NoError(t, err)
		_, err = index.InsertItem(ctx, &Item{ID: "1", Vector: []float32{2}})
		assert.ErrorIs(t, err, ErrItemExists)
	})

	t.Run("copies caller vector", func(t *testing.T) {
		index := newTestIndex(t, CreateIndexConfig{})
		vector := []float32{3, 4}
		_, err := index.InsertItem(ctx, &Item{ID: "1", Vector: vector})
		require.NoError(t, err)

		vector[0] = 100

		item, err := index.GetItem(ctx, "1")
		require.NoError(t, err)
		require.NotNil(t, item)
		assert.Equal(t, []float32{3, 4}, item.Vector)
		assert.InDelta(t, 5.0, item.Norm, 1e-6)
	})

	t.Run("upsert replaces in place", func(t *testing.T) {
		index := newTestIndex(t, CreateIndexConfig{})
		for _, id := range []string{"1", "2"} {
			_, err := index.InsertItem(ctx, &Item{ID: id, Vector: []float32{1}})
			require.NoError(t, err)
		}
		_, err := index.UpsertItem(ctx, &Item{ID: "1", Vector: []float32{9}})
		require.NoError(t, err)

		items, err := index.ListItems(ctx)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "1", items[0].ID)
		assert.Equal(t, []float32{9}, items[0].Vector)
	})
}

func TestBatchInsertItemsAtomic(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t, CreateIndexConfig{})

	_, err := index.InsertItem(ctx, &Item{ID: "existing", Vector: []float32{1}})
	require.NoError(t, err)

	_, err = index.BatchInsertItems(ctx, []*Item{
		{ID: "a", Vector: []float32{1}},
		{ID: "existing", Vector: []float32{2}},
		{ID: "b", Vector: []float32{3}},
	})
	assert.ErrorIs(t, err, ErrItemExists)

	items, err := index.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "existing", items[0].ID)
}

func TestBatchInsertItemsAtomicInsideTransaction(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t, CreateIndexConfig{})

	require.NoError(t, index.BeginUpdate(ctx))
	_, err := index.InsertItem(ctx, &Item{ID: "tx", Vector: []float32{1}})
	require.NoError(t, err)

	_, err = index.BatchInsertItems(ctx, []*Item{
		{ID: "a", Vector: []float32{1}},
		{ID: "tx", Vector: []float32{2}},
	})
	assert.ErrorIs(t, err, ErrItemExists)

	// The failed batch must not leak into the still-open transaction.
	items, err := index.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "tx", items[0].ID)

	require.NoError(t, index.EndUpdate(ctx))
}

func TestDeleteItem(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t, CreateIndexConfig{})

	_, err := index.InsertItem(ctx, &Item{ID: "1", Vector: []float32{1}})
	require.NoError(t, err)

	require.NoError(t, index.DeleteItem(ctx, "1"))
	require.NoError(t, index.DeleteItem(ctx, "missing")) // no-op

	items, err := index.ListItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestQueryItemsRanking(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t, CreateIndexConfig{})

	for _, item := range []*Item{
		{ID: "1", Vector: []float32{1, 2, 3}},
		{ID: "2", Vector: []float32{2, 3, 4}},
		{ID: "3", Vector: []float32{3, 4, 5}},
	} {
		_, err := index.InsertItem(ctx, item)
		require.NoError(t, err)
	}

	results, err := index.QueryItems(ctx, []float32{0, 0, 1}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for pos := 1; pos < len(results); pos++ {
		assert.GreaterOrEqual(t, results[pos-1].Score, results[pos].Score)
	}
	// [1,2,3] points closest to the z axis.
	assert.Equal(t, "1", results[0].Item.ID)
}

func TestQueryItemsFilter(t *testing.T) {
	ctx := context.Background()

	categories := []string{"food", "food", "electronics", "drink", "food"}
	ids := []string{"1", "2", "3", "4", "5"}

	run := func(t *testing.T, index *LocalIndex) {
		for pos, id := range ids {
			_, err := index.InsertItem(ctx, &Item{
				ID:       id,
				Vector:   []float32{1, float32(pos)},
				Metadata: metadata.Metadata{"category": categories[pos]},
			})
			require.NoError(t, err)
		}

		items, err := index.ListItemsByMetadata(ctx, metadata.Filter{
			"category": metadata.Filter{"$eq": "food"},
		})
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, "1", items[0].ID)
		assert.Equal(t, "2", items[1].ID)
		assert.Equal(t, "5", items[2].ID)

		results, err := index.QueryItems(ctx, []float32{1, 0}, 10, metadata.Filter{
			"category": metadata.Filter{"$eq": "food"},
		})
		require.NoError(t, err)
		require.Len(t, results, 3)
		for _, result := range results {
			assert.Equal(t, "food", result.Item.Metadata["category"])
		}
	}

	t.Run("unindexed metadata", func(t *testing.T) {
		run(t, newTestIndex(t, CreateIndexConfig{}))
	})

	t.Run("indexed metadata uses postings", func(t *testing.T) {
		run(t, newTestIndex(t, CreateIndexConfig{
			MetadataConfig: MetadataConfig{Indexed: []string{"category"}},
		}))
	})
}

func TestQueryItemsTopK(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t, CreateIndexConfig{})

	for pos := 0; pos < 5; pos++ {
		_, err := index.InsertItem(ctx, &Item{Vector: []float32{1, float32(pos)}})
		require.NoError(t, err)
	}

	t.Run("truncates to topK", func(t *testing.T) {
		results, err := index.QueryItems(ctx, []float32{1, 0}, 2, nil)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("zero returns nothing", func(t *testing.T) {
		results, err := index.QueryItems(ctx, []float32{1, 0}, 0, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("negative returns every match", func(t *testing.T) {
		results, err := index.QueryItems(ctx, []float32{1, 0}, -1, nil)
		require.NoError(t, err)
		assert.Len(t, results, 5)
	})
}

func TestAutoWrappedCommitFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	flaky := &flakyStorage{Storage: store}
	index := NewLocalIndex("index", WithStorage(flaky))
	require.NoError(t, index.CreateIndex(ctx, CreateIndexConfig{}))

	flaky.failUpserts = 1
	_, err := index.InsertItem(ctx, &Item{ID: "1", Vector: []float32{1}})
	require.Error(t, err)

	// The failed wrap must leave no transaction behind.
	require.NoError(t, index.BeginUpdate(ctx))
	require.NoError(t, index.CancelUpdate(ctx))

	_, err = index.InsertItem(ctx, &Item{ID: "2", Vector: []float32{2}})
	require.NoError(t, err)

	// Only the second insert reached storage.
	fresh := NewLocalIndex("index", WithStorage(store))
	item, err := fresh.GetItem(ctx, "2")
	require.NoError(t, err)
	require.NotNil(t, item)

	item, err = fresh.GetItem(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestExplicitCommitFailureStaysOpen(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStorage{Storage: storage.NewMemory()}
	index := NewLocalIndex("index", WithStorage(flaky))
	require.NoError(t, index.CreateIndex(ctx, CreateIndexConfig{}))

	require.NoError(t, index.BeginUpdate(ctx))
	_, err := index.InsertItem(ctx, &Item{ID: "1", Vector: []float32{1}})
	require.NoError(t, err)

	flaky.failUpserts = 1
	require.Error(t, index.EndUpdate(ctx))

	// An explicitly opened transaction survives a failed commit and can
	// be retried.
	require.NoError(t, index.EndUpdate(ctx))

	item, err := index.GetItem(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, item)
}

func TestDeleteItemRemovesSideFile(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	index := NewLocalIndex("index", WithStorage(store))
	require.NoError(t, index.CreateIndex(ctx, CreateIndexConfig{
		MetadataConfig: MetadataConfig{Indexed: []string{"category"}},
	}))

	insert := func(t *testing.T, id string) {
		t.Helper()
		_, err := index.InsertItem(ctx, &Item{
			ID:     id,
			Vector: []float32{1},
			Metadata: metadata.Metadata{
				"category":    "food",
				"description": "kept in a side file",
			},
		})
		require.NoError(t, err)
	}

	sideFileExists := func(t *testing.T, id string) bool {
		t.Helper()
		exists, err := store.PathExists(ctx, "index/"+id+".json")
		require.NoError(t, err)
		return exists
	}

	t.Run("delete removes committed side file", func(t *testing.T) {
		insert(t, "1")
		require.True(t, sideFileExists(t, "1"))

		require.NoError(t, index.DeleteItem(ctx, "1"))
		assert.False(t, sideFileExists(t, "1"))
	})

	t.Run("upsert dropping side metadata removes file", func(t *testing.T) {
		insert(t, "2")
		require.True(t, sideFileExists(t, "2"))

		_, err := index.UpsertItem(ctx, &Item{
			ID:       "2",
			Vector:   []float32{1},
			Metadata: metadata.Metadata{"category": "food"},
		})
		require.NoError(t, err)
		assert.False(t, sideFileExists(t, "2"))
	})

	t.Run("staged side file is never written", func(t *testing.T) {
		require.NoError(t, index.BeginUpdate(ctx))
		insert(t, "3")
		require.NoError(t, index.DeleteItem(ctx, "3"))
		require.NoError(t, index.EndUpdate(ctx))

		assert.False(t, sideFileExists(t, "3"))
	})
}

func TestSideFileMetadata(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t, CreateIndexConfig{
		MetadataConfig: MetadataConfig{Indexed: []string{"category"}},
	})

	_, err := index.InsertItem(ctx, &Item{
		ID:     "1",
		Vector: []float32{1},
		Metadata: metadata.Metadata{
			"category":    "food",
			"description": "a very long description kept out of the snapshot",
		},
	})
	require.NoError(t, err)

	// The snapshot keeps only the indexed subset.
	item, err := index.GetItem(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, metadata.Metadata{"category": "food"}, item.Metadata)
	assert.Equal(t, "1.json", item.MetadataFile)

	// Queries hydrate the full metadata from the side file.
	results, err := index.QueryItems(ctx, []float32{1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "food", results[0].Item.Metadata["category"])
	assert.Equal(t, "a very long description kept out of the snapshot", results[0].Item.Metadata["description"])
}

func TestIndexPersistence(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	first := NewLocalIndex("index", WithStorage(store))
	require.NoError(t, first.CreateIndex(ctx, CreateIndexConfig{}))
	_, err := first.InsertItem(ctx, &Item{
		ID:       "1",
		Vector:   []float32{1, 2},
		Metadata: metadata.Metadata{"category": "food"},
	})
	require.NoError(t, err)

	// A fresh handle over the same storage sees the committed state.
	second := NewLocalIndex("index", WithStorage(store))
	item, err := second.GetItem(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, []float32{1, 2}, item.Vector)
	assert.Equal(t, "food", item.Metadata["category"])
	assert.Greater(t, item.Norm, float32(0))
}
