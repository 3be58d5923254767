package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"manifest2cloud/internal/checksum"
)

// GCSOptions configures the Google Cloud Storage client. With no
// credentials file the SDK's application default credentials are used.
type GCSOptions struct {
	CredentialsFile string
	ChunkSize       int64
}

// GCSClient implements Client for Google Cloud Storage.
type GCSClient struct {
	client    *gcs.Client
	chunkSize int64
}

func NewGCSClient(ctx context.Context, opts GCSOptions) (*GCSClient, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}
	return &GCSClient{client: client, chunkSize: opts.ChunkSize}, nil
}

func (c *GCSClient) Scheme() string { return "gs" }

func (c *GCSClient) Upload(ctx context.Context, bucket, key string, r io.Reader, size int64) (ObjectInfo, error) {
	w := c.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if c.chunkSize > 0 {
		w.ChunkSize = int(c.chunkSize)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return ObjectInfo{}, err
	}
	if err := w.Close(); err != nil {
		return ObjectInfo{}, err
	}
	return objectInfoFromAttrs(bucket, key, w.Attrs()), nil
}

func (c *GCSClient) Download(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	r, err := c.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return io.Copy(w, r)
}

func (c *GCSClient) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	attrs, err := c.client.Bucket(bucket).Object(key).Attrs(ctx)
	if err != nil {
		return ObjectInfo{}, err
	}
	return objectInfoFromAttrs(bucket, key, attrs), nil
}

func (c *GCSClient) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.client.Bucket(bucket).Object(key).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func objectInfoFromAttrs(bucket, key string, attrs *gcs.ObjectAttrs) ObjectInfo {
	info := ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         attrs.Size,
		LastModified: attrs.Updated,
		CRC32C:       checksum.EncodeCRC32C(attrs.CRC32C),
	}
	if len(attrs.MD5) > 0 {
		info.MD5 = hex.EncodeToString(attrs.MD5)
	}
	return info
}
