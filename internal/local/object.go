package local

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"finished/api/internal/config"
)

// ObjectSlot keeps the blob as <key>.json in an S3-compatible bucket.
type ObjectSlot struct {
	client *minio.Client
	bucket string
	object string
}

// NewObjectSlot connects to the endpoint and creates the bucket if needed.
func NewObjectSlot(ctx context.Context, cfg config.ObjectConfig, key string) (*ObjectSlot, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &ObjectSlot{client: client, bucket: cfg.Bucket, object: key + ".json"}, nil
}

func (s *ObjectSlot) Read(ctx context.Context) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get slot object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, fmt.Errorf("read slot object: %w", err)
	}
	return data, nil
}

func (s *ObjectSlot) Write(ctx context.Context, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put slot object: %w", err)
	}
	return nil
}

func (s *ObjectSlot) Clear(ctx context.Context) error {
	if err := s.client.RemoveObject(ctx, s.bucket, s.object, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove slot object: %w", err)
	}
	return nil
}

func (s *ObjectSlot) Close() error {
	return nil
}
