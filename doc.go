// Package vectra is an embedded, file-backed vector database. An index
// lives in a single folder: a JSON snapshot of vectors and indexed
// metadata, plus side files for overflow metadata and raw document
// text.
//
// LocalIndex is the item-level store: insert, delete, and query vectors
// with Mongo-style metadata filters under a single-writer transaction
// protocol. LocalDocumentIndex layers a document catalog on top: it
// chunks text, embeds the chunks through a pluggable embeddings model,
// and renders query hits back into token-bounded text sections.
//
// Basic usage:
//
//	index := vectra.NewLocalIndex("./data")
//	if err := index.CreateIndex(ctx, vectra.CreateIndexConfig{}); err != nil {
//		log.Fatal(err)
//	}
//	item, err := index.InsertItem(ctx, &vectra.Item{
//		Vector:   []float32{0.1, 0.2, 0.3},
//		Metadata: metadata.Metadata{"category": "demo"},
//	})
package vectra
