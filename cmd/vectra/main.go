// Command vectra manages file-backed vector indexes: create and delete
// indexes, ingest documents, and run similarity queries against them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	vectra "github.com/Stevenic/vectra-sub001"
	"github.com/Stevenic/vectra-sub001/embeddings"
	"github.com/Stevenic/vectra-sub001/internal/config"
	"github.com/Stevenic/vectra-sub001/splitter"
	"github.com/Stevenic/vectra-sub001/storage"
	minioStorage "github.com/Stevenic/vectra-sub001/storage/minio"
	s3Storage "github.com/Stevenic/vectra-sub001/storage/s3"
)

const usage = `Usage: vectra [--config=config.yaml] <command> [args]

Commands:
  create-index           create a new index
  delete-index           delete the index
  stats                  print index and catalog statistics
  add <uri> <file>       ingest a document from a file
  remove <uri>           remove a document
  query <text>           query documents
  list                   list catalogued documents
`

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to config YAML")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Print(usage)
		os.Exit(1)
	}

	// Missing .env is fine; keys may come from the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()
	if err := run(ctx, cfg, args[0], args[1:]); err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}

func run(ctx context.Context, cfg *config.AppConfig, command string, args []string) error {
	index, err := newIndex(ctx, cfg)
	if err != nil {
		return err
	}

	switch command {
	case "create-index":
		return index.CreateIndex(ctx, vectra.CreateIndexConfig{
			DeleteIfExists: cfg.Index.DeleteIfExists,
			MetadataConfig: vectra.MetadataConfig{Indexed: cfg.Index.IndexedFields},
		})

	case "delete-index":
		return index.DeleteIndex(ctx)

	case "stats":
		docIndex, err := newDocumentIndex(index, cfg)
		if err != nil {
			return err
		}
		stats, err := docIndex.GetCatalogStats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("version:   %d\ndocuments: %d\nchunks:    %d\n", stats.Version, stats.Documents, stats.Chunks)
		return nil

	case "add":
		if len(args) != 2 {
			return fmt.Errorf("usage: add <uri> <file>")
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		docIndex, err := newDocumentIndex(index, cfg)
		if err != nil {
			return err
		}
		doc, err := docIndex.UpsertDocument(ctx, args[0], string(data))
		if err != nil {
			return err
		}
		fmt.Printf("added %s as %s\n", args[0], doc.ID())
		return nil

	case "remove":
		if len(args) != 1 {
			return fmt.Errorf("usage: remove <uri>")
		}
		docIndex, err := newDocumentIndex(index, cfg)
		if err != nil {
			return err
		}
		return docIndex.DeleteDocument(ctx, args[0])

	case "query":
		if len(args) != 1 {
			return fmt.Errorf("usage: query <text>")
		}
		docIndex, err := newDocumentIndex(index, cfg)
		if err != nil {
			return err
		}
		results, err := docIndex.QueryDocuments(ctx, args[0])
		if err != nil {
			return err
		}
		for _, result := range results {
			fmt.Printf("%.4f  %s (%d chunks)\n", result.Score(), result.URI(), len(result.Chunks()))
		}
		return nil

	case "list":
		docIndex, err := newDocumentIndex(index, cfg)
		if err != nil {
			return err
		}
		docs, err := docIndex.ListDocuments(ctx)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			fmt.Printf("%s  %s\n", doc.ID(), doc.URI())
		}
		return nil

	default:
		fmt.Print(usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func newIndex(ctx context.Context, cfg *config.AppConfig) (*vectra.LocalIndex, error) {
	store, err := newStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return vectra.NewLocalIndex(cfg.Index.Folder,
		vectra.WithStorage(store),
		vectra.WithLogger(vectra.NewTextLogger(logLevel(cfg.LogLevel))),
	), nil
}

func newStorage(ctx context.Context, cfg *config.AppConfig) (storage.Storage, error) {
	switch cfg.Storage.Type {
	case "local", "":
		return storage.NewLocal(), nil

	case "s3":
		if cfg.Storage.S3 == nil {
			return nil, fmt.Errorf("s3 storage config missing")
		}
		return s3Storage.New(ctx, cfg.Storage.S3.Bucket, cfg.Storage.S3.Prefix)

	case "minio":
		mc := cfg.Storage.MinIO
		if mc == nil {
			return nil, fmt.Errorf("minio storage config missing")
		}
		client, err := minio.New(mc.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(os.Getenv(mc.AccessKeyEnv), os.Getenv(mc.SecretKeyEnv), ""),
			Secure: mc.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return minioStorage.New(client, mc.Bucket, mc.Prefix), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

func newDocumentIndex(index *vectra.LocalIndex, cfg *config.AppConfig) (*vectra.LocalDocumentIndex, error) {
	apiKey := os.Getenv(cfg.Embedder.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.Embedder.APIKeyEnv)
	}

	model, err := embeddings.NewOpenAI(apiKey, func(o *embeddings.OpenAIOptions) {
		o.BaseURL = cfg.Embedder.BaseURL
		o.Model = cfg.Embedder.Model
		o.MaxTokens = cfg.Embedder.MaxTokens
		o.Dimensions = cfg.Embedder.Dimensions
		o.RequestsPerSecond = cfg.Embedder.RequestsPerSecond
	})
	if err != nil {
		return nil, err
	}

	return vectra.NewLocalDocumentIndex(index,
		vectra.WithEmbeddings(model),
		vectra.WithChunkOptions(func(o *splitter.Options) {
			o.ChunkSize = cfg.Chunker.ChunkSize
			o.ChunkOverlap = cfg.Chunker.ChunkOverlap
			if len(cfg.Chunker.Separators) > 0 {
				o.Separators = cfg.Chunker.Separators
			}
			o.KeepSeparators = cfg.Chunker.KeepSeparators
		}),
	), nil
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
