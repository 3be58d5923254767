package checksum

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CRC32C check value for "123456789" per RFC 3720 appendix B.4.
func TestWriterKnownVectors(t *testing.T) {
	w := NewWriter()
	_, err := w.Write([]byte("123456789"))
	require.NoError(t, err)

	sums := w.Sums()
	assert.Equal(t, uint32(0xE3069283), sums.CRC32C)
	assert.Equal(t, "25f9e794323b453885f5181f1b624d0b", sums.MD5Hex())
	assert.Equal(t, "4waSgw==", sums.CRC32CBase64())
	assert.Equal(t, "3808858755", sums.CRC32CDecimal())
	assert.Equal(t, int64(9), sums.Size)
}

func TestWriterEmpty(t *testing.T) {
	sums := NewWriter().Sums()
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", sums.MD5Hex())
	assert.Equal(t, uint32(0), sums.CRC32C)
	assert.Equal(t, int64(0), sums.Size)
}

func TestEncodeDecodeCRC32C(t *testing.T) {
	v, err := DecodeCRC32C(EncodeCRC32C(0xE3069283))
	require.NoError(t, err)
	assert.Equal(t, uint32(0xE3069283), v)

	_, err = DecodeCRC32C("not base64!")
	assert.Error(t, err)

	_, err = DecodeCRC32C("AAAA") // decodes to 3 bytes
	assert.Error(t, err)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("123456789"), 0o644))

	sums, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xE3069283), sums.CRC32C)
	assert.Equal(t, int64(9), sums.Size)

	_, err = File(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
