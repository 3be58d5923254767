package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options configures the S3 client. Credentials are passed in
// explicitly; when the static pair is empty the standard AWS chain
// (environment, shared credentials file, IAM role) is used.
type S3Options struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	Insecure     bool
	ChunkSize    int64
}

// S3Client implements Client for AWS S3 and compatible stores.
type S3Client struct {
	client    *minio.Client
	chunkSize int64
}

func NewS3Client(opts S3Options) (*S3Client, error) {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
	}

	var creds *credentials.Credentials
	if opts.AccessKey != "" {
		creds = credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, opts.SessionToken)
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{},
		})
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: !opts.Insecure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}
	return &S3Client{client: client, chunkSize: opts.ChunkSize}, nil
}

func (c *S3Client) Scheme() string { return "s3" }

// Upload streams the object and then stats it, so the returned metadata
// is what the store actually recorded rather than what was sent.
func (c *S3Client) Upload(ctx context.Context, bucket, key string, r io.Reader, size int64) (ObjectInfo, error) {
	putOpts := minio.PutObjectOptions{ContentType: "application/octet-stream"}
	if c.chunkSize > 0 {
		putOpts.PartSize = uint64(c.chunkSize)
	}
	if _, err := c.client.PutObject(ctx, bucket, key, r, size, putOpts); err != nil {
		return ObjectInfo{}, err
	}
	return c.Stat(ctx, bucket, key)
}

func (c *S3Client) Download(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	obj, err := c.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return 0, err
	}
	defer obj.Close()
	return io.Copy(w, obj)
}

func (c *S3Client) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	info, err := c.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         info.Size,
		LastModified: info.LastModified,
		MD5:          strings.Trim(info.ETag, `"`),
	}, nil
}

func (c *S3Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
