package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ObjectCache stores rendered documents in an S3-compatible bucket under
// "<key>/<variant>".
type ObjectCache struct {
	client *minio.Client
	bucket string
}

// NewObjectCache connects to the bucket, creating it if needed.
func NewObjectCache(ctx context.Context, cfg ObjectConfig) (*ObjectCache, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
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
	return &ObjectCache{client: client, bucket: cfg.Bucket}, nil
}

func objectName(key, variant string) string {
	return key + "/" + variant
}

func (c *ObjectCache) Get(ctx context.Context, key, variant string) (Entry, bool, error) {
	name := objectName(key, variant)
	obj, err := c.client.GetObject(ctx, c.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return Entry{}, false, fmt.Errorf("object get %s: %w", name, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("object stat %s: %w", name, err)
	}
	body, err := io.ReadAll(obj)
	if err != nil {
		return Entry{}, false, fmt.Errorf("object read %s: %w", name, err)
	}
	return Entry{ContentType: info.ContentType, Body: body}, true, nil
}

func (c *ObjectCache) Put(ctx context.Context, key, variant string, entry Entry) error {
	name := objectName(key, variant)
	_, err := c.client.PutObject(ctx, c.bucket, name, bytes.NewReader(entry.Body), int64(len(entry.Body)), minio.PutObjectOptions{
		ContentType: entry.ContentType,
	})
	if err != nil {
		return fmt.Errorf("object put %s: %w", name, err)
	}
	return nil
}

// Invalidate removes every variant stored under each key.
func (c *ObjectCache) Invalidate(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := c.removePrefix(ctx, key+"/"); err != nil {
			return err
		}
	}
	return nil
}

func (c *ObjectCache) removePrefix(ctx context.Context, prefix string) error {
	// Cancelling stops the listing goroutine when we return early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for info := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return fmt.Errorf("list objects %s: %w", prefix, info.Err)
		}
		if err := c.client.RemoveObject(ctx, c.bucket, info.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove object %s: %w", info.Key, err)
		}
	}
	return nil
}
