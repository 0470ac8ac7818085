package vectra

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/Stevenic/vectra-sub001/storage"
)

// catalogFile is the name of the document catalog inside the index folder.
const catalogFile = "catalog.json"

// documentCatalog maps document URIs to ids and back. It is persisted
// independently of the index snapshot.
type documentCatalog struct {
	Version int               `json:"version"`
	Count   int               `json:"count"`
	URIToID map[string]string `json:"uriToId"`
	IDToURI map[string]string `json:"idToUri"`
}

func newDocumentCatalog() *documentCatalog {
	return &documentCatalog{
		Version: currentVersion,
		URIToID: map[string]string{},
		IDToURI: map[string]string{},
	}
}

// clone returns a deep copy suitable as a transaction working copy.
func (c *documentCatalog) clone() *documentCatalog {
	uriToID := make(map[string]string, len(c.URIToID))
	for k, v := range c.URIToID {
		uriToID[k] = v
	}
	idToURI := make(map[string]string, len(c.IDToURI))
	for k, v := range c.IDToURI {
		idToURI[k] = v
	}
	return &documentCatalog{
		Version: c.Version,
		Count:   c.Count,
		URIToID: uriToID,
		IDToURI: idToURI,
	}
}

func (c *documentCatalog) put(uri, id string) {
	c.URIToID[uri] = id
	c.IDToURI[id] = uri
	c.Count = len(c.URIToID)
}

func (c *documentCatalog) remove(uri, id string) {
	delete(c.URIToID, uri)
	delete(c.IDToURI, id)
	c.Count = len(c.URIToID)
}

// loadCatalog reads the catalog file, creating and persisting an empty
// one when the folder does not hold a catalog yet.
func loadCatalog(ctx context.Context, i *LocalIndex) (*documentCatalog, error) {
	data, err := i.opts.storage.ReadFile(ctx, path.Join(i.folderPath, catalogFile))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		catalog := newDocumentCatalog()
		if err := saveCatalog(ctx, i, catalog); err != nil {
			return nil, err
		}
		return catalog, nil
	}

	var catalog documentCatalog
	if err := i.opts.codec.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("decode %s: %w", catalogFile, err)
	}
	if catalog.URIToID == nil {
		catalog.URIToID = map[string]string{}
	}
	if catalog.IDToURI == nil {
		catalog.IDToURI = map[string]string{}
	}
	return &catalog, nil
}

func saveCatalog(ctx context.Context, i *LocalIndex, catalog *documentCatalog) error {
	data, err := i.opts.codec.Marshal(catalog)
	if err != nil {
		return fmt.Errorf("encode %s: %w", catalogFile, err)
	}
	return i.opts.storage.UpsertFile(ctx, path.Join(i.folderPath, catalogFile), data)
}
