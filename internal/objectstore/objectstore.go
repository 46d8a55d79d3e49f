// Package objectstore wraps MinIO as the content-addressed blob store for
// raw images, thumbnails, annotated frames, crops and project assets.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Bucket names are fixed logical buckets, not configurable per deployment.
const (
	BucketRawImages        = "raw-images"
	BucketThumbnails       = "thumbnails"
	BucketCrops            = "crops"
	BucketProjectImages    = "project-images"
	BucketProjectDocuments = "project-documents"
)

// AnnotatedPrefix lives inside BucketThumbnails per the spec's "may live
// inside thumbnails" allowance.
const AnnotatedPrefix = "annotated/"

var AllBuckets = []string{
	BucketRawImages, BucketThumbnails, BucketCrops, BucketProjectImages, BucketProjectDocuments,
}

type Store struct {
	client *minio.Client
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

func New(cfg Config) (*Store, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("objectstore: access key / secret key not configured")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: create client: %w", err)
	}

	s := &Store{client: client}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, bucket := range AllBuckets {
		if err := s.ensureBucket(ctx, bucket); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("objectstore: check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("objectstore: create bucket %s: %w", bucket, err)
	}
	return nil
}

// CameraObjectPath builds the path convention for camera blobs: the UUID
// prefix is mandatory so filenames can't collide across cameras.
func CameraObjectPath(cameraIdentifier string, capturedAt time.Time, imageUUID, filename string) string {
	return fmt.Sprintf("%s/%04d/%02d/%s_%s", cameraIdentifier, capturedAt.Year(), capturedAt.Month(), imageUUID, filename)
}

func (s *Store) Put(ctx context.Context, bucket, key string, data io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, bucket, key, data, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("objectstore: put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("objectstore: get %s/%s: %w", bucket, key, err)
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// OpenReader returns a streaming reader for large blobs (raw images before
// local-temp-file download for inference); the caller must Close it.
func (s *Store) OpenReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("objectstore: open %s/%s: %w", bucket, key, err)
	}
	return obj, nil
}

// Delete is idempotent: deleting a missing key is not an error, matching
// the spec's "deletions are idempotent" requirement.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("objectstore: delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("objectstore: list %s/%s: %w", bucket, prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}
