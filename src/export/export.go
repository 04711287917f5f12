// Package export stores rendered charts and raw responses, either in a local
// directory or in an S3-compatible bucket.
package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/iafilius/ThreadPerfMonitor/src/config"
	"github.com/iafilius/ThreadPerfMonitor/src/monitor"
	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

// Sink stores one named artifact and returns where it went.
type Sink interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// ObjectName builds a stable artifact name like svMain-20240102T150405Z.png.
func ObjectName(thread types.ThreadName, at time.Time, ext string) string {
	return fmt.Sprintf("%s-%s.%s", thread, at.UTC().Format("20060102T150405Z"), strings.TrimPrefix(ext, "."))
}

// DirSink writes artifacts below Dir.
type DirSink struct {
	Dir string
}

func (s DirSink) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	if strings.Contains(name, "..") || filepath.IsAbs(name) {
		return "", fmt.Errorf("export: refusing name %q", name)
	}
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("export: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("export: write %s: %w", path, err)
	}
	return path, nil
}

// MinioSink uploads artifacts into Bucket.
type MinioSink struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioSink connects to the configured endpoint and creates the bucket when missing.
func NewMinioSink(ctx context.Context, cfg config.Minio, prefix string) (*MinioSink, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("export: minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("export: check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("export: create bucket %s: %w", cfg.Bucket, err)
		}
		monitor.Infof("[export] created bucket %s", cfg.Bucket)
	}
	return &MinioSink{client: client, bucket: cfg.Bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (s *MinioSink) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	object := name
	if s.prefix != "" {
		object = s.prefix + "/" + name
	}
	info, err := s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("export: upload %s: %w", object, err)
	}
	monitor.Debugf("[export] uploaded %s/%s (%d bytes, etag %s)", s.bucket, object, info.Size, info.ETag)
	return fmt.Sprintf("s3://%s/%s", s.bucket, object), nil
}

// FromConfig picks the bucket sink when an endpoint is configured, else the directory.
func FromConfig(ctx context.Context, c *config.Config) (Sink, error) {
	if c.Minio.Endpoint != "" {
		return NewMinioSink(ctx, c.Minio, "perfmon")
	}
	return DirSink{Dir: c.ExportDir}, nil
}
