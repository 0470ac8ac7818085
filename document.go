package vectra

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"

	"github.com/Stevenic/vectra-sub001/metadata"
	"github.com/Stevenic/vectra-sub001/storage"
	"github.com/Stevenic/vectra-sub001/tokenizer"
)

// exactLengthLimit is the text size up to which GetLength tokenizes the
// full body instead of estimating.
const exactLengthLimit = 40000

// Document is a catalogued document. Raw text and metadata are loaded
// lazily from their side files and cached.
type Document struct {
	index *LocalDocumentIndex
	id    string
	uri   string

	mu       sync.Mutex
	text     *string
	metadata metadata.Metadata
	hasMeta  bool
}

func newDocument(index *LocalDocumentIndex, id, uri string) *Document {
	return &Document{
		index: index,
		id:    id,
		uri:   uri,
	}
}

// ID returns the document id.
func (d *Document) ID() string {
	return d.id
}

// URI returns the document URI.
func (d *Document) URI() string {
	return d.uri
}

// GetText returns the document's raw text, loading it on first access.
func (d *Document) GetText(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.text != nil {
		return *d.text, nil
	}
	data, err := d.index.opts.storage.ReadFile(ctx, path.Join(d.index.folderPath, d.id+".txt"))
	if err != nil {
		return "", err
	}
	text := string(data)
	d.text = &text
	return text, nil
}

// GetMetadata returns the document's metadata, loading it on first
// access. Documents stored without metadata yield nil.
func (d *Document) GetMetadata(ctx context.Context) (metadata.Metadata, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.hasMeta {
		return d.metadata, nil
	}
	data, err := d.index.opts.storage.ReadFile(ctx, path.Join(d.index.folderPath, d.id+".json"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			d.hasMeta = true
			return nil, nil
		}
		return nil, err
	}
	var meta metadata.Metadata
	if err := d.index.opts.codec.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", d.id, err)
	}
	d.metadata = meta
	d.hasMeta = true
	return meta, nil
}

// GetLength returns the document's token count: exact for texts up to
// 40,000 characters, a chars/4 estimate above that.
func (d *Document) GetLength(ctx context.Context) (int, error) {
	text, err := d.GetText(ctx)
	if err != nil {
		return 0, err
	}
	if len(text) <= exactLengthLimit {
		return len(d.index.docOpts.tokenizer.Encode(text)), nil
	}
	return tokenizer.Estimate(text), nil
}
