package vectra

import (
	"log/slog"

	"github.com/Stevenic/vectra-sub001/codec"
	"github.com/Stevenic/vectra-sub001/embeddings"
	"github.com/Stevenic/vectra-sub001/splitter"
	"github.com/Stevenic/vectra-sub001/storage"
	"github.com/Stevenic/vectra-sub001/tokenizer"
)

type options struct {
	storage          storage.Storage
	codec            codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures LocalIndex constructor behavior.
type Option func(*options)

// WithStorage configures the storage backend for the index folder.
//
// If nil is passed, local filesystem storage is used.
func WithStorage(s storage.Storage) Option {
	return func(o *options) {
		if s == nil {
			s = storage.NewLocal()
		}
		o.storage = s
	}
}

// WithCodec configures the codec used for the index and catalog files.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		storage:          storage.NewLocal(),
		codec:            codec.Default,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

type documentOptions struct {
	model        embeddings.Model
	tokenizer    tokenizer.Tokenizer
	chunkOptions []func(*splitter.Options)
}

// DocumentOption configures LocalDocumentIndex behavior.
type DocumentOption func(*documentOptions)

// WithEmbeddings configures the embeddings model used to vectorize
// document chunks and queries. Document upserts and queries fail with
// ErrEmbeddingsNotConfigured when no model is set.
func WithEmbeddings(m embeddings.Model) DocumentOption {
	return func(o *documentOptions) {
		o.model = m
	}
}

// WithTokenizer configures the tokenizer used for chunking and section
// rendering. If nil is passed, a fresh vocabulary tokenizer is used.
func WithTokenizer(tk tokenizer.Tokenizer) DocumentOption {
	return func(o *documentOptions) {
		if tk == nil {
			tk = tokenizer.NewVocab()
		}
		o.tokenizer = tk
	}
}

// WithChunkOptions configures the text splitter used for document
// chunking, e.g. chunk size, overlap, and separators.
func WithChunkOptions(optFns ...func(*splitter.Options)) DocumentOption {
	return func(o *documentOptions) {
		o.chunkOptions = append(o.chunkOptions, optFns...)
	}
}

func applyDocumentOptions(optFns []DocumentOption) documentOptions {
	o := documentOptions{
		tokenizer: tokenizer.NewVocab(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
