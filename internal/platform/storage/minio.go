// Package storage persists uploaded files in S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore stores objects under a key and returns their location.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

// Config describes the MinIO connection.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Secure    bool
}

// ErrNotConfigured is returned by Disabled on every call.
var ErrNotConfigured = errors.New("storage: object storage not configured")

// MinioStore implements ObjectStore with minio-go.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinio connects to MinIO and makes sure the bucket exists.
func NewMinio(ctx context.Context, cfg Config) (*MinioStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}
	if err := ensureBucket(ctx, client, cfg.Bucket, cfg.Region); err != nil {
		return nil, err
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("storage: check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("storage: create bucket %s: %w", bucket, err)
	}
	return nil
}

// Put uploads body and returns "<bucket>/<key>".
func (s *MinioStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("storage: put %s: %w", key, err)
	}
	return info.Bucket + "/" + info.Key, nil
}

// Disabled rejects every upload. It stands in when no endpoint is configured.
type Disabled struct{}

// Put implements ObjectStore.
func (Disabled) Put(context.Context, string, io.Reader, int64, string) (string, error) {
	return "", ErrNotConfigured
}

// Memory keeps objects in process memory.
type Memory struct {
	mu      sync.Mutex
	objects map[string]Object
}

// Object is a stored blob.
type Object struct {
	Data        []byte
	ContentType string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: map[string]Object{}}
}

// Put implements ObjectStore.
func (m *Memory) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{Data: data, ContentType: contentType}
	return "memory/" + key, nil
}

// Get returns the object stored under key.
func (m *Memory) Get(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Keys lists stored keys.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
