// Package s3 imports allow-listed objects below a bucket prefix as one
// batch. Objects are streamed lazily when the engine registers them.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/querydeck/querydeck/internal/collect"
)

// ErrObjectNotFound reports a key that disappeared between listing and read.
var ErrObjectNotFound = errors.New("s3: object not found")

type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
}

type ObjectInfo struct {
	Key  string
	Size int64
}

type client interface {
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

type Source struct {
	client client
	bucket string
	prefix string
}

func New(cfg Config) (*Source, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	mc, err := newMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Source{
		client: mc,
		bucket: strings.TrimSpace(cfg.Bucket),
		prefix: cleanPrefix(cfg.Prefix),
	}, nil
}

func NewWithClient(bucket, prefix string, c client) (*Source, error) {
	if c == nil {
		return nil, fmt.Errorf("client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &Source{client: c, bucket: strings.TrimSpace(bucket), prefix: cleanPrefix(prefix)}, nil
}

func (s *Source) Name() string {
	if s.prefix == "" {
		return "s3:" + s.bucket
	}
	return "s3:" + s.bucket + "/" + s.prefix
}

// Collect lists the prefix and returns every allow-listed object, keyed by
// its path relative to the prefix. Objects are not downloaded here; each
// file's Open fetches it on demand.
func (s *Source) Collect(ctx context.Context) (collect.Batch, error) {
	objects, err := s.client.List(ctx, s.bucket, s.prefix)
	if err != nil {
		return collect.Batch{}, fmt.Errorf("list objects under %q: %w", s.prefix, err)
	}

	batch := collect.Batch{}
	seen := map[string]struct{}{}
	for _, object := range objects {
		relPath := s.relativeKey(object.Key)
		if relPath == "" {
			continue
		}
		mediaType, ok := collect.MediaTypeFor(relPath)
		if !ok {
			continue
		}
		if _, dup := seen[relPath]; dup {
			continue
		}
		key := object.Key
		seen[relPath] = struct{}{}
		batch.Files = append(batch.Files, collect.File{
			Path:      relPath,
			Size:      object.Size,
			MediaType: mediaType,
			Open: func(ctx context.Context) (io.ReadCloser, error) {
				return s.client.Get(ctx, s.bucket, key)
			},
		})
	}
	return batch, nil
}

func (s *Source) relativeKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.prefix != "" {
		if !strings.HasPrefix(key, s.prefix+"/") {
			return ""
		}
		key = strings.TrimPrefix(key, s.prefix+"/")
	}
	return strings.TrimSpace(key)
}

func cleanPrefix(prefix string) string {
	prefix = strings.TrimSpace(strings.TrimPrefix(prefix, "/"))
	if prefix == "" {
		return ""
	}
	prefix = path.Clean(prefix)
	if prefix == "." {
		return ""
	}
	return prefix
}

func newMinioClient(cfg Config) (*minioClient, error) {
	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	clientImpl, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &minioClient{client: clientImpl}, nil
}

func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("endpoint is required")
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		parsed, err := url.Parse(raw)
		if err != nil {
			return "", false, fmt.Errorf("parse endpoint URL: %w", err)
		}
		if parsed.Host == "" {
			return "", false, fmt.Errorf("endpoint host is required")
		}
		if parsed.Scheme == "https" {
			return parsed.Host, true, nil
		}
		return parsed.Host, useSSL, nil
	}
	return raw, useSSL, nil
}

type minioClient struct {
	client *minio.Client
}

func (m *minioClient) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	listPrefix := prefix
	if listPrefix != "" {
		listPrefix += "/"
	}
	var objects []ObjectInfo
	for object := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: listPrefix, Recursive: true}) {
		if object.Err != nil {
			return nil, mapMinioErr(object.Err)
		}
		if strings.HasSuffix(object.Key, "/") {
			continue
		}
		objects = append(objects, ObjectInfo{Key: object.Key, Size: object.Size})
	}
	return objects, nil
}

func (m *minioClient) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioErr(err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, mapMinioErr(err)
	}
	return obj, nil
}

func mapMinioErr(err error) error {
	if err == nil {
		return nil
	}
	var response minio.ErrorResponse
	if errors.As(err, &response) {
		switch response.Code {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return ErrObjectNotFound
		}
	}
	return err
}
