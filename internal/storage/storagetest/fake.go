// Package storagetest provides an in-memory storage.Client for tests.
package storagetest

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"sync"
	"time"

	"manifest2cloud/internal/checksum"
	"manifest2cloud/internal/storage"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// FixedModTime is the LastModified reported for every fake object.
var FixedModTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

// FakeClient is an in-memory Client. It computes real checksums over
// uploaded bytes so content-addressed behavior can be asserted.
type FakeClient struct {
	scheme string

	mu      sync.Mutex
	objects map[string][]byte

	uploads   int
	downloads int

	// UploadFailures injects that many transient upload errors before
	// uploads start succeeding.
	UploadFailures int
	// CorruptChecksums makes reported checksums disagree with content.
	CorruptChecksums bool
}

func NewFakeClient(scheme string) *FakeClient {
	return &FakeClient{scheme: scheme, objects: make(map[string][]byte)}
}

func (c *FakeClient) Scheme() string { return c.scheme }

// Put seeds an object directly.
func (c *FakeClient) Put(bucket, key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[bucket+"/"+key] = append([]byte(nil), data...)
}

// Object returns a stored object's bytes.
func (c *FakeClient) Object(bucket, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.objects[bucket+"/"+key]
	return data, ok
}

// ObjectCount returns how many objects the store holds.
func (c *FakeClient) ObjectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.objects)
}

// Uploads returns how many Upload calls were made.
func (c *FakeClient) Uploads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploads
}

// Downloads returns how many Download calls were made.
func (c *FakeClient) Downloads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.downloads
}

func (c *FakeClient) Upload(ctx context.Context, bucket, key string, r io.Reader, size int64) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectInfo{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploads++
	if c.UploadFailures > 0 {
		c.UploadFailures--
		return storage.ObjectInfo{}, fmt.Errorf("connection reset by peer")
	}
	c.objects[bucket+"/"+key] = data
	return c.infoLocked(bucket, key, data), nil
}

func (c *FakeClient) Download(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	c.mu.Lock()
	data, ok := c.objects[bucket+"/"+key]
	c.downloads++
	c.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return io.Copy(w, bytes.NewReader(data))
}

func (c *FakeClient) Stat(ctx context.Context, bucket, key string) (storage.ObjectInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.objects[bucket+"/"+key]
	if !ok {
		return storage.ObjectInfo{}, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return c.infoLocked(bucket, key, data), nil
}

func (c *FakeClient) Exists(ctx context.Context, bucket, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.objects[bucket+"/"+key]
	return ok, nil
}

func (c *FakeClient) infoLocked(bucket, key string, data []byte) storage.ObjectInfo {
	info := storage.ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         int64(len(data)),
		LastModified: FixedModTime,
	}
	sum := md5.Sum(data)
	crc := crc32.Checksum(data, castagnoli)
	if c.CorruptChecksums {
		sum[0] ^= 0xff
		crc ^= 0xffffffff
	}
	info.MD5 = hex.EncodeToString(sum[:])
	if c.scheme == "gs" {
		info.CRC32C = checksum.EncodeCRC32C(crc)
	}
	return info
}
