package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	u, err := ParseURI("s3://bucket/dir/file.cram")
	require.NoError(t, err)
	assert.Equal(t, URI{Scheme: "s3", Bucket: "bucket", Key: "dir/file.cram"}, u)
	assert.Equal(t, "s3://bucket/dir/file.cram", u.String())

	u, err = ParseURI("gs://b/k")
	require.NoError(t, err)
	assert.Equal(t, "gs", u.Scheme)

	for _, raw := range []string{"/local/path", "http://b/k", "s3://bucket", "gs://bucket/", "s3:///key"} {
		_, err := ParseURI(raw)
		assert.Error(t, err, raw)
	}
}

func TestIsCloudURI(t *testing.T) {
	assert.True(t, IsCloudURI("s3://b/k"))
	assert.True(t, IsCloudURI("gs://b/k"))
	assert.False(t, IsCloudURI("/data/f.cram"))
}

func TestObjectInfoURI(t *testing.T) {
	info := ObjectInfo{Bucket: "b", Key: "p/k", Size: 1, LastModified: time.Now()}
	assert.Equal(t, "gs://b/p/k", info.URI("gs"))
}
