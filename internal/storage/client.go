package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Client is the capability set the pipeline needs from an object store.
// Upload takes a byte stream rather than a path so that direct uploads
// and download-then-upload transfers share the same call shape.
type Client interface {
	// Scheme returns the URI scheme this client serves ("s3" or "gs").
	Scheme() string

	Upload(ctx context.Context, bucket, key string, r io.Reader, size int64) (ObjectInfo, error)
	Download(ctx context.Context, bucket, key string, w io.Writer) (int64, error)
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// ObjectInfo is the store-reported metadata for an object. MD5 is hex
// (the S3 ETag form; empty or multipart-style for composite uploads),
// CRC32C is base64 (the GCS metadata form; empty on S3).
type ObjectInfo struct {
	Bucket       string
	Key          string
	Size         int64
	LastModified time.Time
	MD5          string
	CRC32C       string
}

// URI returns the object's location under the given scheme.
func (o ObjectInfo) URI(scheme string) string {
	return scheme + "://" + o.Bucket + "/" + o.Key
}

// URI is a parsed s3:// or gs:// object location.
type URI struct {
	Scheme string
	Bucket string
	Key    string
}

func (u URI) String() string {
	return u.Scheme + "://" + u.Bucket + "/" + u.Key
}

// IsCloudURI reports whether the path names a cloud-resident object.
func IsCloudURI(path string) bool {
	return strings.HasPrefix(path, "s3://") || strings.HasPrefix(path, "gs://")
}

// ParseURI splits an s3:// or gs:// path into bucket and key.
func ParseURI(raw string) (URI, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || (scheme != "s3" && scheme != "gs") {
		return URI{}, fmt.Errorf("%q is not an s3:// or gs:// URI", raw)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return URI{}, fmt.Errorf("%q is missing a bucket or object key", raw)
	}
	return URI{Scheme: scheme, Bucket: bucket, Key: key}, nil
}
