package vectra

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Stevenic/vectra-sub001/metadata"
	"github.com/Stevenic/vectra-sub001/similarity"
	"github.com/Stevenic/vectra-sub001/storage"
)

// txState tracks whether an update transaction is open. The two states
// remove any ambiguity between "no transaction" and "empty transaction".
type txState int

const (
	txIdle txState = iota
	txUpdating
)

// LocalIndex is a file-backed vector index. All state lives in a single
// folder: the index.json snapshot plus per-item metadata side files.
//
// Mutations run inside an update transaction. Callers can open one
// explicitly with BeginUpdate to batch several mutations into one
// commit; single mutations outside a transaction are wrapped in their
// own. At most one transaction can be open at a time.
type LocalIndex struct {
	folderPath string
	opts       options

	mu         sync.Mutex
	tx         txState
	working    *indexSnapshot
	pending    map[string][]byte
	pendingDel map[string]struct{}

	snapshot *indexSnapshot
	postings *metadata.Postings
}

// NewLocalIndex creates a handle for the index stored in folderPath.
// The folder does not need to exist until CreateIndex is called.
func NewLocalIndex(folderPath string, optFns ...Option) *LocalIndex {
	return &LocalIndex{
		folderPath: folderPath,
		opts:       applyOptions(optFns),
	}
}

// FolderPath returns the folder holding the index.
func (i *LocalIndex) FolderPath() string {
	return i.folderPath
}

// IsIndexCreated reports whether an index exists in the folder.
func (i *LocalIndex) IsIndexCreated(ctx context.Context) (bool, error) {
	return i.opts.storage.PathExists(ctx, path.Join(i.folderPath, indexFile))
}

// CreateIndex initializes a new index in the folder. It fails with
// ErrIndexExists when one is already present, unless DeleteIfExists is
// set. A partially created index is removed on failure.
func (i *LocalIndex) CreateIndex(ctx context.Context, config CreateIndexConfig) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	exists, err := i.opts.storage.PathExists(ctx, path.Join(i.folderPath, indexFile))
	if err != nil {
		return err
	}
	if exists {
		if !config.DeleteIfExists {
			return ErrIndexExists
		}
		if err := i.deleteIndex(ctx); err != nil {
			return err
		}
	}

	version := config.Version
	if version == 0 {
		version = currentVersion
	}
	snapshot := &indexSnapshot{
		Version:        version,
		MetadataConfig: config.MetadataConfig,
		Items:          []*Item{},
	}

	if err := i.createIndexFiles(ctx, snapshot); err != nil {
		// Remove whatever was partially created.
		_ = i.deleteIndex(ctx)
		return err
	}

	i.snapshot = snapshot
	i.postings = nil
	i.opts.logger.InfoContext(ctx, "index created", "folder", i.folderPath)
	return nil
}

func (i *LocalIndex) createIndexFiles(ctx context.Context, snapshot *indexSnapshot) error {
	if err := i.opts.storage.CreateFolder(ctx, i.folderPath); err != nil {
		return err
	}
	data, err := i.opts.codec.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode %s: %w", indexFile, err)
	}
	if err := i.opts.storage.CreateFile(ctx, path.Join(i.folderPath, indexFile), data); err != nil {
		return translateError(err)
	}
	return nil
}

// DeleteIndex removes the index folder and all of its contents. Any
// open transaction is discarded.
func (i *LocalIndex) DeleteIndex(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.deleteIndex(ctx)
}

func (i *LocalIndex) deleteIndex(ctx context.Context) error {
	if err := i.opts.storage.DeleteFolder(ctx, i.folderPath); err != nil {
		return err
	}
	i.discardUpdate()
	i.snapshot = nil
	i.postings = nil
	return nil
}

// BeginUpdate opens an update transaction. It fails with
// ErrUpdateInProgress when one is already open.
func (i *LocalIndex) BeginUpdate(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.beginUpdate(ctx)
}

func (i *LocalIndex) beginUpdate(ctx context.Context) error {
	if i.tx == txUpdating {
		return ErrUpdateInProgress
	}
	snapshot, err := i.load(ctx)
	if err != nil {
		return err
	}
	i.working = snapshot.clone()
	i.pending = make(map[string][]byte)
	i.pendingDel = make(map[string]struct{})
	i.tx = txUpdating
	return nil
}

// EndUpdate commits the open transaction: staged metadata side files
// are written first, then the index snapshot. It fails with
// ErrNoUpdateInProgress when no transaction is open. On failure the
// transaction stays open so the caller can retry or cancel.
func (i *LocalIndex) EndUpdate(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	start := time.Now()
	wasOpen := i.tx == txUpdating
	err := i.endUpdate(ctx)
	if wasOpen {
		i.opts.metricsCollector.RecordCommit(time.Since(start), err)
	}
	return err
}

func (i *LocalIndex) endUpdate(ctx context.Context) error {
	if i.tx != txUpdating {
		return ErrNoUpdateInProgress
	}

	for name, data := range i.pending {
		if err := i.opts.storage.UpsertFile(ctx, path.Join(i.folderPath, name), data); err != nil {
			i.opts.logger.LogCommit(ctx, len(i.working.Items), err)
			return err
		}
	}
	if err := saveSnapshot(ctx, i.opts.storage, i.opts.codec, i.folderPath, i.working); err != nil {
		i.opts.logger.LogCommit(ctx, len(i.working.Items), err)
		return err
	}

	i.snapshot = i.working
	i.postings = nil

	// The snapshot no longer references these side files; removal is
	// best-effort since the commit itself already succeeded.
	for name := range i.pendingDel {
		err := i.opts.storage.DeleteFile(ctx, path.Join(i.folderPath, name))
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			i.opts.logger.WarnContext(ctx, "orphaned side file not removed", "file", name, "error", err)
		}
	}

	i.opts.logger.LogCommit(ctx, len(i.snapshot.Items), nil)
	i.discardUpdate()
	return nil
}

// CancelUpdate discards the open transaction without writing anything.
// It fails with ErrNoUpdateInProgress when no transaction is open.
func (i *LocalIndex) CancelUpdate(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.tx != txUpdating {
		return ErrNoUpdateInProgress
	}
	i.discardUpdate()
	return nil
}

func (i *LocalIndex) discardUpdate() {
	i.tx = txIdle
	i.working = nil
	i.pending = nil
	i.pendingDel = nil
}

// withUpdate runs fn against the transaction's working snapshot. When no
// transaction is open, the mutation is wrapped in its own begin and
// commit. The wrapped transaction is discarded on any failure, commit
// included: the caller never saw it, so it must not stay open.
func (i *LocalIndex) withUpdate(ctx context.Context, fn func(w *indexSnapshot) error) error {
	if i.tx == txUpdating {
		return fn(i.working)
	}
	if err := i.beginUpdate(ctx); err != nil {
		return err
	}
	if err := fn(i.working); err != nil {
		i.discardUpdate()
		return err
	}
	if err := i.endUpdate(ctx); err != nil {
		i.discardUpdate()
		return err
	}
	return nil
}

// stageFile stages a file write into the open transaction so it is
// committed together with the snapshot. Fails when no transaction is
// open.
func (i *LocalIndex) stageFile(name string, data []byte) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.tx != txUpdating {
		return ErrNoUpdateInProgress
	}
	i.pending[name] = data
	delete(i.pendingDel, name)
	return nil
}

// unstageFile drops a staged write from the open transaction, if any.
func (i *LocalIndex) unstageFile(name string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.tx == txUpdating {
		delete(i.pending, name)
	}
}

// load returns the current snapshot: the working copy inside a
// transaction, the cached committed one otherwise.
func (i *LocalIndex) load(ctx context.Context) (*indexSnapshot, error) {
	if i.tx == txUpdating {
		return i.working, nil
	}
	if i.snapshot != nil {
		return i.snapshot, nil
	}
	snapshot, err := loadSnapshot(ctx, i.opts.storage, i.opts.codec, i.folderPath)
	if err != nil {
		return nil, err
	}
	i.snapshot = snapshot
	i.postings = nil
	return snapshot, nil
}

// InsertItem adds a new item. The vector is required; a missing id is
// assigned a fresh UUID. Inserting an existing id fails with
// ErrItemExists. Returns the stored item.
func (i *LocalIndex) InsertItem(ctx context.Context, item *Item) (*Item, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	start := time.Now()
	var stored *Item
	err := i.withUpdate(ctx, func(w *indexSnapshot) error {
		var err error
		stored, err = i.addItem(w, item, true)
		return err
	})
	i.opts.metricsCollector.RecordInsert(time.Since(start), err)
	i.opts.logger.LogInsert(ctx, item.ID, err)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// UpsertItem adds a new item or replaces the existing one with the same
// id in place. Returns the stored item.
func (i *LocalIndex) UpsertItem(ctx context.Context, item *Item) (*Item, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	start := time.Now()
	var stored *Item
	err := i.withUpdate(ctx, func(w *indexSnapshot) error {
		var err error
		stored, err = i.addItem(w, item, false)
		return err
	})
	i.opts.metricsCollector.RecordInsert(time.Since(start), err)
	i.opts.logger.LogInsert(ctx, item.ID, err)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// BatchInsertItems adds several items atomically: an id collision
// partway through leaves the index exactly as it was before the call.
func (i *LocalIndex) BatchInsertItems(ctx context.Context, items []*Item) ([]*Item, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	start := time.Now()
	var stored []*Item
	err := i.withUpdate(ctx, func(w *indexSnapshot) error {
		savedItems := append([]*Item(nil), w.Items...)
		savedPending := clonePending(i.pending)
		savedDeletes := clonePendingDel(i.pendingDel)

		for _, item := range items {
			s, err := i.addItem(w, item, true)
			if err != nil {
				w.Items = savedItems
				i.pending = savedPending
				i.pendingDel = savedDeletes
				stored = nil
				return err
			}
			stored = append(stored, s)
		}
		return nil
	})
	i.opts.metricsCollector.RecordBatchInsert(len(items), time.Since(start), err)
	i.opts.logger.LogBatchInsert(ctx, len(items), err)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func clonePending(pending map[string][]byte) map[string][]byte {
	clone := make(map[string][]byte, len(pending))
	for k, v := range pending {
		clone[k] = v
	}
	return clone
}

func clonePendingDel(pendingDel map[string]struct{}) map[string]struct{} {
	clone := make(map[string]struct{}, len(pendingDel))
	for k := range pendingDel {
		clone[k] = struct{}{}
	}
	return clone
}

// addItem validates and stores an item in the working snapshot. With
// unique set an id collision fails; otherwise the item is replaced in
// place. Non-indexed metadata is staged for a side file.
func (i *LocalIndex) addItem(w *indexSnapshot, item *Item, unique bool) (*Item, error) {
	if len(item.Vector) == 0 {
		return nil, ErrNoVector
	}

	id := item.ID
	if id == "" {
		id = uuid.NewString()
	}
	pos := w.find(id)
	if pos >= 0 && unique {
		return nil, fmt.Errorf("%w: %s", ErrItemExists, id)
	}

	stored := &Item{
		ID:     id,
		Vector: append([]float32(nil), item.Vector...),
		Norm:   similarity.Norm(item.Vector),
	}

	if len(w.MetadataConfig.Indexed) > 0 && len(item.Metadata) > 0 {
		indexed := make(map[string]struct{}, len(w.MetadataConfig.Indexed))
		for _, field := range w.MetadataConfig.Indexed {
			indexed[field] = struct{}{}
		}
		inline := make(metadata.Metadata)
		side := make(metadata.Metadata)
		for k, v := range item.Metadata {
			if _, ok := indexed[k]; ok {
				inline[k] = v
			} else {
				side[k] = v
			}
		}
		if len(inline) > 0 {
			stored.Metadata = inline
		}
		if len(side) > 0 {
			data, err := i.opts.codec.Marshal(side)
			if err != nil {
				return nil, fmt.Errorf("encode metadata for %s: %w", id, err)
			}
			stored.MetadataFile = id + ".json"
			i.pending[stored.MetadataFile] = data
			delete(i.pendingDel, stored.MetadataFile)
		}
	} else if len(item.Metadata) > 0 {
		stored.Metadata = item.Metadata.Clone()
	}

	if pos >= 0 {
		if prev := w.Items[pos]; prev.MetadataFile != "" && prev.MetadataFile != stored.MetadataFile {
			delete(i.pending, prev.MetadataFile)
			i.pendingDel[prev.MetadataFile] = struct{}{}
		}
		w.Items[pos] = stored
	} else {
		w.Items = append(w.Items, stored)
	}
	return stored.Clone(), nil
}

// DeleteItem removes an item. Deleting an absent id is a no-op.
func (i *LocalIndex) DeleteItem(ctx context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	start := time.Now()
	err := i.withUpdate(ctx, func(w *indexSnapshot) error {
		pos := w.find(id)
		if pos < 0 {
			return nil
		}
		if name := w.Items[pos].MetadataFile; name != "" {
			delete(i.pending, name)
			i.pendingDel[name] = struct{}{}
		}
		w.Items = append(w.Items[:pos], w.Items[pos+1:]...)
		return nil
	})
	i.opts.metricsCollector.RecordDelete(time.Since(start), err)
	i.opts.logger.LogDelete(ctx, id, err)
	return err
}

// GetItem returns the item with the given id, or nil when absent.
func (i *LocalIndex) GetItem(ctx context.Context, id string) (*Item, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	snapshot, err := i.load(ctx)
	if err != nil {
		return nil, err
	}
	pos := snapshot.find(id)
	if pos < 0 {
		return nil, nil
	}
	return snapshot.Items[pos].Clone(), nil
}

// ListItems returns all items in insertion order.
func (i *LocalIndex) ListItems(ctx context.Context) ([]*Item, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	snapshot, err := i.load(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]*Item, len(snapshot.Items))
	for pos, item := range snapshot.Items {
		items[pos] = item.Clone()
	}
	return items, nil
}

// ListItemsByMetadata returns the items whose indexed metadata matches
// the filter, in insertion order.
func (i *LocalIndex) ListItemsByMetadata(ctx context.Context, filter metadata.Filter) ([]*Item, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	snapshot, err := i.load(ctx)
	if err != nil {
		return nil, err
	}
	positions := i.matchPositions(snapshot, filter)
	items := make([]*Item, 0, len(positions))
	for _, pos := range positions {
		items = append(items, snapshot.Items[pos].Clone())
	}
	return items, nil
}

// QueryItems returns the topK items most similar to the vector, highest
// score first. A topK of zero returns no items; a negative topK returns
// every match. An optional filter restricts candidates by their indexed
// metadata. Side-file metadata is loaded into the returned items.
func (i *LocalIndex) QueryItems(ctx context.Context, vector []float32, topK int, filter metadata.Filter) ([]QueryResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	start := time.Now()
	results, err := i.queryItems(ctx, vector, topK, filter)
	i.opts.metricsCollector.RecordQuery(topK, time.Since(start), err)
	i.opts.logger.LogQuery(ctx, topK, len(results), err)
	return results, err
}

func (i *LocalIndex) queryItems(ctx context.Context, vector []float32, topK int, filter metadata.Filter) ([]QueryResult, error) {
	snapshot, err := i.load(ctx)
	if err != nil {
		return nil, err
	}

	positions := i.matchPositions(snapshot, filter)
	queryNorm := similarity.Norm(vector)

	results := make([]QueryResult, 0, len(positions))
	for _, pos := range positions {
		item := snapshot.Items[pos]
		results = append(results, QueryResult{
			Item:  item,
			Score: similarity.NormalizedCosine(vector, queryNorm, item.Vector, item.Norm),
		})
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}

	for pos := range results {
		item := results[pos].Item.Clone()
		if item.MetadataFile != "" {
			side, err := i.loadSideMetadata(ctx, item.MetadataFile)
			if err != nil {
				return nil, err
			}
			merged := item.Metadata
			if merged == nil {
				merged = make(metadata.Metadata, len(side))
			}
			for k, v := range side {
				merged[k] = v
			}
			item.Metadata = merged
		}
		results[pos].Item = item
	}
	return results, nil
}

func (i *LocalIndex) loadSideMetadata(ctx context.Context, name string) (metadata.Metadata, error) {
	// Uncommitted side files are still staged in the transaction.
	if data, ok := i.pending[name]; ok {
		var side metadata.Metadata
		if err := i.opts.codec.Unmarshal(data, &side); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return side, nil
	}
	data, err := i.opts.storage.ReadFile(ctx, path.Join(i.folderPath, name))
	if err != nil {
		return nil, err
	}
	var side metadata.Metadata
	if err := i.opts.codec.Unmarshal(data, &side); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return side, nil
}

// matchPositions returns the snapshot positions matching the filter in
// insertion order, narrowing through the postings index when possible.
func (i *LocalIndex) matchPositions(snapshot *indexSnapshot, filter metadata.Filter) []int {
	if len(filter) == 0 {
		positions := make([]int, len(snapshot.Items))
		for pos := range snapshot.Items {
			positions[pos] = pos
		}
		return positions
	}

	if p := i.postingsFor(snapshot); p != nil {
		if candidates, ok := p.Candidates(filter); ok {
			positions := make([]int, 0, candidates.GetCardinality())
			candidates.Iterate(func(pos uint32) bool {
				// Candidates are a superset; verify each one.
				if metadata.Select(snapshot.Items[pos].Metadata, filter) {
					positions = append(positions, int(pos))
				}
				return true
			})
			return positions
		}
	}

	var positions []int
	for pos, item := range snapshot.Items {
		if metadata.Select(item.Metadata, filter) {
			positions = append(positions, pos)
		}
	}
	return positions
}

// postingsFor returns the postings index for the committed snapshot,
// building it on first use. Working snapshots are never indexed.
func (i *LocalIndex) postingsFor(snapshot *indexSnapshot) *metadata.Postings {
	if i.tx == txUpdating || snapshot != i.snapshot {
		return nil
	}
	if i.postings == nil {
		p := metadata.NewPostings()
		for pos, item := range snapshot.Items {
			p.Add(uint32(pos), item.Metadata)
		}
		i.postings = p
	}
	return i.postings
}

// GetIndexStats returns version, metadata configuration, and item count.
func (i *LocalIndex) GetIndexStats(ctx context.Context) (IndexStats, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	snapshot, err := i.load(ctx)
	if err != nil {
		return IndexStats{}, err
	}
	return IndexStats{
		Version:        snapshot.Version,
		MetadataConfig: snapshot.MetadataConfig,
		Items:          len(snapshot.Items),
	}, nil
}
