package vectra

import (
	"errors"
	"fmt"

	"github.com/Stevenic/vectra-sub001/embeddings"
	"github.com/Stevenic/vectra-sub001/storage"
)

var (
	// ErrNoVector is returned when an item is inserted without a vector.
	ErrNoVector = errors.New("vector is required")

	// ErrItemExists is returned when inserting an item whose id is
	// already present in the index.
	ErrItemExists = errors.New("item with the same id already exists")

	// ErrIndexExists is returned when creating an index over a folder
	// that already holds one.
	ErrIndexExists = errors.New("index already exists")

	// ErrIndexNotFound is returned when operating on a folder with no
	// index in it.
	ErrIndexNotFound = errors.New("index does not exist")

	// ErrUpdateInProgress is returned by BeginUpdate when a transaction
	// is already open.
	ErrUpdateInProgress = errors.New("transaction already in progress")

	// ErrNoUpdateInProgress is returned by EndUpdate and CancelUpdate
	// when no transaction is open.
	ErrNoUpdateInProgress = errors.New("no transaction in progress")

	// ErrEmbeddingsNotConfigured is returned by document operations that
	// require an embeddings model when none was configured.
	ErrEmbeddingsNotConfigured = errors.New("embeddings model not configured")
)

// ErrEmbeddings indicates a non-success response from the embeddings
// model, surfaced to callers of the document layer.
type ErrEmbeddings struct {
	Status  embeddings.Status
	Message string
}

func (e *ErrEmbeddings) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("embeddings request failed (%s): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("embeddings request failed (%s)", e.Status)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, storage.ErrExists) {
		return fmt.Errorf("%w: %w", ErrIndexExists, err)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrIndexNotFound, err)
	}

	return err
}
