// Package minio implements storage.Storage for MinIO and other
// S3-compatible object stores via the native MinIO client.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/Stevenic/vectra-sub001/storage"
)

// Storage implements storage.Storage for a MinIO bucket.
type Storage struct {
	client *minio.Client
	bucket string
	prefix string
}

// New creates a MinIO storage. prefix is prepended to all keys.
func New(client *minio.Client, bucket, prefix string) *Storage {
	return &Storage{
		client: client,
		bucket: bucket,
		prefix: prefix,
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

// CreateFolder is a no-op; object-store folders exist implicitly.
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
	if err := s.client.RemoveObject(ctx, s.bucket, s.key(p), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	return nil
}

// DeleteFolder removes every object under the folder's key prefix.
func (s *Storage) DeleteFolder(ctx context.Context, p string) error {
	prefix := s.key(p) + "/"
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return fmt.Errorf("delete folder %s: %w", p, obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("delete folder %s: %w", p, err)
		}
	}
	return nil
}

// GetDetails returns object details via StatObject.
func (s *Storage) GetDetails(ctx context.Context, p string) (storage.FileDetails, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.key(p), minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return storage.FileDetails{}, fmt.Errorf("stat %s: %w", p, storage.ErrNotFound)
		}
		return storage.FileDetails{}, fmt.Errorf("stat %s: %w", p, err)
	}
	return storage.FileDetails{Size: info.Size, ModTime: info.LastModified}, nil
}

// ListFiles returns the names of objects directly under the folder prefix.
func (s *Storage) ListFiles(ctx context.Context, p string) ([]string, error) {
	prefix := s.key(p) + "/"
	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", p, obj.Err)
		}
		rel := strings.TrimPrefix(obj.Key, prefix)
		if rel != "" && !strings.HasSuffix(rel, "/") {
			names = append(names, rel)
		}
	}
	return names, nil
}

// PathExists reports whether an object or folder prefix exists.
func (s *Storage) PathExists(ctx context.Context, p string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, s.key(p), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if !isNotFound(err) {
		return false, fmt.Errorf("stat %s: %w", p, err)
	}

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:  s.key(p) + "/",
		MaxKeys: 1,
	}) {
		if obj.Err != nil {
			return false, fmt.Errorf("stat %s: %w", p, obj.Err)
		}
		return true, nil
	}
	return false, nil
}

// ReadFile downloads the full contents of an object.
func (s *Storage) ReadFile(ctx context.Context, p string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(p), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("read %s: %w", p, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

// UpsertFile uploads an object, replacing any existing content.
func (s *Storage) UpsertFile(ctx context.Context, p string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(p), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("upsert %s: %w", p, err)
	}
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}
