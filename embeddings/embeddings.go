// Package embeddings defines the embedding model contract used by the
// document layer, plus an OpenAI-compatible HTTP client.
package embeddings

import "context"

// Status classifies the outcome of an embeddings call.
type Status string

const (
	StatusSuccess     Status = "success"
	StatusError       Status = "error"
	StatusRateLimited Status = "rate_limited"
)

// Response is the result of an embeddings call. Output is populated only
// on success; Message carries the upstream error text otherwise.
type Response struct {
	Status  Status
	Output  [][]float32
	Message string
}

// Model produces embedding vectors for batches of input text.
//
// CreateEmbeddings returns a non-success Response for upstream failures
// and reserves the error return for transport-level problems. MaxTokens
// is the batching hint callers must respect when sizing inputs.
type Model interface {
	CreateEmbeddings(ctx context.Context, inputs []string) (*Response, error)
	MaxTokens() int
}
