package vectra

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Stevenic/vectra-sub001/embeddings"
	"github.com/Stevenic/vectra-sub001/metadata"
	"github.com/Stevenic/vectra-sub001/splitter"
	"github.com/Stevenic/vectra-sub001/storage"
)

// LocalDocumentIndex layers a document catalog over a LocalIndex. It
// chunks documents, embeds the chunks through the configured embeddings
// model, and keeps the URI to document id mapping in catalog.json.
type LocalDocumentIndex struct {
	*LocalIndex
	docOpts documentOptions

	docMu          sync.Mutex
	catalog        *documentCatalog
	workingCatalog *documentCatalog
}

// NewLocalDocumentIndex wraps an index with document-level operations.
func NewLocalDocumentIndex(index *LocalIndex, optFns ...DocumentOption) *LocalDocumentIndex {
	return &LocalDocumentIndex{
		LocalIndex: index,
		docOpts:    applyDocumentOptions(optFns),
	}
}

// BeginUpdate opens a transaction spanning both the index and the
// catalog. Both working copies are committed together by EndUpdate.
func (d *LocalDocumentIndex) BeginUpdate(ctx context.Context) error {
	d.docMu.Lock()
	defer d.docMu.Unlock()
	return d.beginUpdate(ctx)
}

func (d *LocalDocumentIndex) beginUpdate(ctx context.Context) error {
	if err := d.LocalIndex.BeginUpdate(ctx); err != nil {
		return err
	}
	catalog, err := d.loadCommittedCatalog(ctx)
	if err != nil {
		_ = d.LocalIndex.CancelUpdate(ctx)
		return err
	}
	d.workingCatalog = catalog.clone()
	return nil
}

// EndUpdate persists the catalog and then commits the index. On failure
// both working copies stay intact so the caller can retry or cancel.
func (d *LocalDocumentIndex) EndUpdate(ctx context.Context) error {
	d.docMu.Lock()
	defer d.docMu.Unlock()
	return d.endUpdate(ctx)
}

func (d *LocalDocumentIndex) endUpdate(ctx context.Context) error {
	if d.workingCatalog == nil {
		return ErrNoUpdateInProgress
	}
	if err := saveCatalog(ctx, d.LocalIndex, d.workingCatalog); err != nil {
		return fmt.Errorf("persist catalog: %w", err)
	}
	if err := d.LocalIndex.EndUpdate(ctx); err != nil {
		return err
	}
	d.catalog = d.workingCatalog
	d.workingCatalog = nil
	return nil
}

// CancelUpdate discards both working copies.
func (d *LocalDocumentIndex) CancelUpdate(ctx context.Context) error {
	d.docMu.Lock()
	defer d.docMu.Unlock()
	return d.cancelUpdate(ctx)
}

func (d *LocalDocumentIndex) cancelUpdate(ctx context.Context) error {
	if d.workingCatalog == nil {
		return ErrNoUpdateInProgress
	}
	d.workingCatalog = nil
	return d.LocalIndex.CancelUpdate(ctx)
}

// withUpdate runs fn against the working catalog, opening and committing
// a transaction around it when none is open. The wrapped transaction is
// discarded on any failure, commit included: the caller never saw it, so
// it must not stay open.
func (d *LocalDocumentIndex) withUpdate(ctx context.Context, fn func(catalog *documentCatalog) error) error {
	if d.workingCatalog != nil {
		return fn(d.workingCatalog)
	}
	if err := d.beginUpdate(ctx); err != nil {
		return err
	}
	if err := fn(d.workingCatalog); err != nil {
		_ = d.cancelUpdate(ctx)
		return err
	}
	if err := d.endUpdate(ctx); err != nil {
		_ = d.cancelUpdate(ctx)
		return err
	}
	return nil
}

// currentCatalog returns the working catalog inside a transaction, the
// committed one otherwise.
func (d *LocalDocumentIndex) currentCatalog(ctx context.Context) (*documentCatalog, error) {
	if d.workingCatalog != nil {
		return d.workingCatalog, nil
	}
	return d.loadCommittedCatalog(ctx)
}

func (d *LocalDocumentIndex) loadCommittedCatalog(ctx context.Context) (*documentCatalog, error) {
	if d.catalog != nil {
		return d.catalog, nil
	}
	catalog, err := loadCatalog(ctx, d.LocalIndex)
	if err != nil {
		return nil, err
	}
	d.catalog = catalog
	return catalog, nil
}

// UpsertDocumentOptions configure a document upsert.
type UpsertDocumentOptions struct {
	// DocType selects chunking defaults, e.g. "md". Empty means the
	// URI's file extension.
	DocType string

	// Metadata is attached to the document and to every chunk item.
	Metadata metadata.Metadata
}

// UpsertDocument chunks and embeds text and stores it under uri. An
// existing document at the same URI is fully replaced, keeping its id.
// The chunk items, raw text, metadata, and catalog update are committed
// in one transaction.
func (d *LocalDocumentIndex) UpsertDocument(ctx context.Context, uri, text string, optFns ...func(*UpsertDocumentOptions)) (*Document, error) {
	if d.docOpts.model == nil {
		return nil, ErrEmbeddingsNotConfigured
	}

	var opts UpsertDocumentOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	d.docMu.Lock()
	defer d.docMu.Unlock()

	start := time.Now()
	doc, chunks, err := d.upsertDocument(ctx, uri, text, opts)
	d.opts.logger.LogUpsertDocument(ctx, uri, chunks, err)
	d.opts.metricsCollector.RecordInsert(time.Since(start), err)
	return doc, err
}

func (d *LocalDocumentIndex) upsertDocument(ctx context.Context, uri, text string, opts UpsertDocumentOptions) (*Document, int, error) {
	docType := opts.DocType
	if docType == "" {
		docType = strings.TrimPrefix(path.Ext(uri), ".")
	}

	sp, err := splitter.New(d.docOpts.tokenizer, append(d.docOpts.chunkOptions, func(o *splitter.Options) {
		o.DocType = docType
	})...)
	if err != nil {
		return nil, 0, err
	}
	chunks := sp.Split(text)

	vectors, err := d.embedChunks(ctx, chunks)
	if err != nil {
		return nil, 0, err
	}

	var documentID string
	err = d.withUpdate(ctx, func(catalog *documentCatalog) error {
		// Replace any prior document at this URI, keeping its id.
		if id, ok := catalog.URIToID[uri]; ok {
			documentID = id
			if err := d.deleteDocument(ctx, catalog, uri); err != nil {
				return err
			}
		} else {
			documentID = uuid.NewString()
		}

		items := make([]*Item, len(chunks))
		for pos, chunk := range chunks {
			meta := opts.Metadata.Clone()
			if meta == nil {
				meta = make(metadata.Metadata, 3)
			}
			meta["documentId"] = documentID
			meta["startPos"] = chunk.StartPos
			meta["endPos"] = chunk.EndPos
			items[pos] = &Item{
				Vector:   vectors[pos],
				Metadata: meta,
			}
		}
		if _, err := d.BatchInsertItems(ctx, items); err != nil {
			return err
		}

		if err := d.stageFile(documentID+".txt", []byte(text)); err != nil {
			return err
		}
		if len(opts.Metadata) > 0 {
			data, err := d.opts.codec.Marshal(opts.Metadata)
			if err != nil {
				return fmt.Errorf("encode document metadata: %w", err)
			}
			if err := d.stageFile(documentID+".json", data); err != nil {
				return err
			}
		}

		catalog.put(uri, documentID)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return newDocument(d, documentID, uri), len(chunks), nil
}

// embedChunks embeds chunk texts in batches bounded by the model's
// MaxTokens hint. A non-success response fails the whole operation.
func (d *LocalDocumentIndex) embedChunks(ctx context.Context, chunks []splitter.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	maxTokens := d.docOpts.model.MaxTokens()

	var batch []string
	var batchTokens int
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		resp, err := d.docOpts.model.CreateEmbeddings(ctx, batch)
		if err != nil {
			return fmt.Errorf("create embeddings: %w", err)
		}
		if resp.Status != embeddings.StatusSuccess {
			return &ErrEmbeddings{Status: resp.Status, Message: resp.Message}
		}
		if len(resp.Output) != len(batch) {
			return fmt.Errorf("embeddings returned %d vectors for %d inputs", len(resp.Output), len(batch))
		}
		vectors = append(vectors, resp.Output...)
		batch = nil
		batchTokens = 0
		return nil
	}

	for _, chunk := range chunks {
		if len(batch) > 0 && batchTokens+len(chunk.Tokens) > maxTokens {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		batch = append(batch, chunk.Text)
		batchTokens += len(chunk.Tokens)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// DeleteDocument removes the document stored under uri. An unknown URI
// is a no-op. Chunk and raw-text deletion failures abort the operation;
// a metadata side file that cannot be removed is ignored.
func (d *LocalDocumentIndex) DeleteDocument(ctx context.Context, uri string) error {
	d.docMu.Lock()
	defer d.docMu.Unlock()

	catalog, err := d.currentCatalog(ctx)
	if err != nil {
		return err
	}
	if _, ok := catalog.URIToID[uri]; !ok {
		return nil
	}

	err = d.withUpdate(ctx, func(catalog *documentCatalog) error {
		return d.deleteDocument(ctx, catalog, uri)
	})
	d.opts.logger.LogDeleteDocument(ctx, uri, err)
	return err
}

func (d *LocalDocumentIndex) deleteDocument(ctx context.Context, catalog *documentCatalog, uri string) error {
	documentID, ok := catalog.URIToID[uri]
	if !ok {
		return nil
	}

	items, err := d.ListItemsByMetadata(ctx, metadata.Filter{
		"documentId": metadata.Filter{"$eq": documentID},
	})
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := d.DeleteItem(ctx, item.ID); err != nil {
			return err
		}
	}

	// Drop writes still staged in the open transaction before touching
	// the committed files.
	d.unstageFile(documentID + ".txt")
	d.unstageFile(documentID + ".json")

	err = d.opts.storage.DeleteFile(ctx, path.Join(d.folderPath, documentID+".txt"))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	// The document is already gone from the index at this point, so a
	// leftover metadata file is tolerable.
	_ = d.opts.storage.DeleteFile(ctx, path.Join(d.folderPath, documentID+".json"))

	catalog.remove(uri, documentID)
	return nil
}

// QueryDocumentsOptions configure a document query.
type QueryDocumentsOptions struct {
	// MaxDocuments bounds the number of returned documents.
	MaxDocuments int

	// MaxChunks bounds the underlying chunk query.
	MaxChunks int

	// Filter restricts chunk candidates by their metadata.
	Filter metadata.Filter

	// BM25 restricts the query to chunks flagged with isBm25.
	BM25 bool
}

// DefaultQueryDocumentsOptions are the options used when none are
// overridden.
var DefaultQueryDocumentsOptions = QueryDocumentsOptions{
	MaxDocuments: 10,
	MaxChunks:    50,
}

// QueryDocuments embeds the query text and returns the best-matching
// documents, each scored by the mean similarity of its matched chunks.
func (d *LocalDocumentIndex) QueryDocuments(ctx context.Context, query string, optFns ...func(*QueryDocumentsOptions)) ([]*DocumentResult, error) {
	if d.docOpts.model == nil {
		return nil, ErrEmbeddingsNotConfigured
	}

	opts := DefaultQueryDocumentsOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	// Embeddings models expect single-line input.
	query = strings.ReplaceAll(query, "\n", " ")

	resp, err := d.docOpts.model.CreateEmbeddings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if resp.Status != embeddings.StatusSuccess {
		return nil, &ErrEmbeddings{Status: resp.Status, Message: resp.Message}
	}
	if len(resp.Output) != 1 {
		return nil, fmt.Errorf("embeddings returned %d vectors for 1 input", len(resp.Output))
	}

	filter := opts.Filter
	if opts.BM25 {
		bm25 := metadata.Filter{"isBm25": metadata.Filter{"$eq": true}}
		if filter == nil {
			filter = bm25
		} else {
			filter = metadata.Filter{"$and": []metadata.Filter{filter, bm25}}
		}
	}

	results, err := d.QueryItems(ctx, resp.Output[0], opts.MaxChunks, filter)
	if err != nil {
		return nil, err
	}

	d.docMu.Lock()
	catalog, err := d.currentCatalog(ctx)
	d.docMu.Unlock()
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]QueryResult)
	var order []string
	for _, result := range results {
		id, _ := result.Item.Metadata["documentId"].(string)
		if id == "" {
			continue
		}
		if _, ok := grouped[id]; !ok {
			order = append(order, id)
		}
		grouped[id] = append(grouped[id], result)
	}

	docResults := make([]*DocumentResult, 0, len(order))
	for _, id := range order {
		uri, ok := catalog.IDToURI[id]
		if !ok {
			continue
		}
		hits := grouped[id]
		var total float32
		for _, hit := range hits {
			total += hit.Score
		}
		docResults = append(docResults, &DocumentResult{
			Document: newDocument(d, id, uri),
			chunks:   hits,
			score:    total / float32(len(hits)),
		})
	}

	sort.SliceStable(docResults, func(a, b int) bool {
		return docResults[a].score > docResults[b].score
	})
	if len(docResults) > opts.MaxDocuments {
		docResults = docResults[:opts.MaxDocuments]
	}
	return docResults, nil
}

// ListDocuments returns all catalogued documents, ordered by URI.
func (d *LocalDocumentIndex) ListDocuments(ctx context.Context) ([]*Document, error) {
	d.docMu.Lock()
	defer d.docMu.Unlock()

	catalog, err := d.currentCatalog(ctx)
	if err != nil {
		return nil, err
	}

	uris := make([]string, 0, len(catalog.URIToID))
	for uri := range catalog.URIToID {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	docs := make([]*Document, len(uris))
	for pos, uri := range uris {
		docs[pos] = newDocument(d, catalog.URIToID[uri], uri)
	}
	return docs, nil
}

// GetDocumentID returns the id catalogued for uri, or "" when unknown.
func (d *LocalDocumentIndex) GetDocumentID(ctx context.Context, uri string) (string, error) {
	d.docMu.Lock()
	defer d.docMu.Unlock()

	catalog, err := d.currentCatalog(ctx)
	if err != nil {
		return "", err
	}
	return catalog.URIToID[uri], nil
}

// GetDocumentURI returns the URI catalogued for a document id, or ""
// when unknown.
func (d *LocalDocumentIndex) GetDocumentURI(ctx context.Context, id string) (string, error) {
	d.docMu.Lock()
	defer d.docMu.Unlock()

	catalog, err := d.currentCatalog(ctx)
	if err != nil {
		return "", err
	}
	return catalog.IDToURI[id], nil
}

// CatalogStats combines catalog and index counts.
type CatalogStats struct {
	Version        int
	Documents      int
	Chunks         int
	MetadataConfig MetadataConfig
}

// GetCatalogStats returns document and chunk counts for the index.
func (d *LocalDocumentIndex) GetCatalogStats(ctx context.Context) (CatalogStats, error) {
	d.docMu.Lock()
	defer d.docMu.Unlock()

	catalog, err := d.currentCatalog(ctx)
	if err != nil {
		return CatalogStats{}, err
	}
	stats, err := d.GetIndexStats(ctx)
	if err != nil {
		return CatalogStats{}, err
	}
	return CatalogStats{
		Version:        catalog.Version,
		Documents:      catalog.Count,
		Chunks:         stats.Items,
		MetadataConfig: stats.MetadataConfig,
	}, nil
}
