// Package s3 implements storage.Storage on top of Amazon S3.
//
// Keys are laid out as <prefix>/<path>. Folders are purely a key-prefix
// convention; CreateFolder is a no-op beyond validating the context.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"

	"github.com/Stevenic/vectra-sub001/storage"
)

// deleteConcurrency bounds parallel object deletes in DeleteFolder.
const deleteConcurrency = 8

// Storage implements storage.Storage for an S3 bucket.
type Storage struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// New creates an S3 storage using the default AWS configuration chain.
func New(ctx context.Context, bucket, prefix string) (*Storage, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewWithClient creates an S3 storage with a preconfigured client.
func NewWithClient(client *s3.Client, bucket, prefix string) *Storage {
	return &Storage{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}
}

func (s *Storage) key(p string) string {
	return path.Join(s.prefix, p)
}

// CreateFile uploads a new object, failing if the key already exists.
func (s *Storage) CreateFile(ctx context.Context, p string, data []byte) error {
	exists, err := s.PathExists(ctx, p)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("create %s: %w", p, storage.ErrExists)
	}
	return s.UpsertFile(ctx, p, data)
}

// CreateFolder is a no-op; S3 folders exist implicitly through keys.
func (s *Storage) CreateFolder(ctx context.Context, _ string) error {
	return ctx.Err()
}

// DeleteFile removes an object.
func (s *Storage) DeleteFile(ctx context.Context, p string) error {
	exists, err := s.PathExists(ctx, p)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("delete %s: %w", p, storage.ErrNotFound)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	}); err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	return nil
}

// DeleteFolder removes every object under the folder's key prefix.
func (s *Storage) DeleteFolder(ctx context.Context, p string) error {
	keys, err := s.listKeys(ctx, s.key(p)+"/")
	if err != nil {
		return fmt.Errorf("delete folder %s: %w", p, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteConcurrency)
	for _, key := range keys {
		g.Go(func() error {
			_, err := s.client.DeleteObject(gctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(key),
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("delete folder %s: %w", p, err)
	}
	return nil
}

// GetDetails returns object details via HeadObject.
func (s *Storage) GetDetails(ctx context.Context, p string) (storage.FileDetails, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return storage.FileDetails{}, fmt.Errorf("stat %s: %w", p, storage.ErrNotFound)
		}
		return storage.FileDetails{}, fmt.Errorf("stat %s: %w", p, err)
	}
	details := storage.FileDetails{}
	if head.ContentLength != nil {
		details.Size = *head.ContentLength
	}
	if head.LastModified != nil {
		details.ModTime = *head.LastModified
	}
	return details, nil
}

// ListFiles returns the names of objects directly under the folder prefix.
func (s *Storage) ListFiles(ctx context.Context, p string) ([]string, error) {
	prefix := s.key(p) + "/"
	keys, err := s.listKeys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p, err)
	}
	var names []string
	for _, key := range keys {
		rel := strings.TrimPrefix(key, prefix)
		if rel != "" && !strings.Contains(rel, "/") {
			names = append(names, rel)
		}
	}
	return names, nil
}

// PathExists reports whether an object or folder prefix exists.
func (s *Storage) PathExists(ctx context.Context, p string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err == nil {
		return true, nil
	}
	if !isNotFound(err) {
		return false, fmt.Errorf("stat %s: %w", p, err)
	}

	// Fall back to a prefix probe so folders report existence too.
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.key(p) + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", p, err)
	}
	return len(out.Contents) > 0, nil
}

// ReadFile downloads the full contents of an object.
func (s *Storage) ReadFile(ctx context.Context, p string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("read %s: %w", p, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

// UpsertFile uploads an object, replacing any existing content.
func (s *Storage) UpsertFile(ctx context.Context, p string, data []byte) error {
	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
		Body:   bytes.NewReader(data),
	}); err != nil {
		return fmt.Errorf("upsert %s: %w", p, err)
	}
	return nil
}

func (s *Storage) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}
