package checksum

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"strconv"
)

// castagnoli is the CRC32C polynomial table used by Google Cloud Storage.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Sums holds the digests produced by a single pass over file content.
type Sums struct {
	MD5    [md5.Size]byte
	CRC32C uint32
	Size   int64
}

// MD5Hex returns the md5 digest in the hex form used in manifest columns
// and S3 object keys.
func (s Sums) MD5Hex() string {
	return hex.EncodeToString(s.MD5[:])
}

// CRC32CBase64 returns the crc32c digest in the big-endian base64 form
// that Google Cloud Storage reports in object metadata.
func (s Sums) CRC32CBase64() string {
	return EncodeCRC32C(s.CRC32C)
}

// CRC32CDecimal returns the crc32c digest as an unsigned decimal string.
// Base64 characters are unsafe inside object keys, so keys embed this
// form instead.
func (s Sums) CRC32CDecimal() string {
	return strconv.FormatUint(uint64(s.CRC32C), 10)
}

// EncodeCRC32C converts a crc32c value to its base64 metadata form.
func EncodeCRC32C(v uint32) string {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return base64.StdEncoding.EncodeToString(buf[:])
}

// DecodeCRC32C converts the base64 metadata form back to a crc32c value.
func DecodeCRC32C(s string) (uint32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid crc32c encoding %q: %w", s, err)
	}
	if len(buf) != 4 {
		return 0, fmt.Errorf("invalid crc32c encoding %q: want 4 bytes, got %d", s, len(buf))
	}
	return binary.BigEndian.Uint32(buf), nil
}

// Writer computes md5 and crc32c in lockstep so that one read of the
// content satisfies both destination stores.
type Writer struct {
	md5 hash.Hash
	crc hash.Hash32
	n   int64
}

func NewWriter() *Writer {
	return &Writer{
		md5: md5.New(),
		crc: crc32.New(castagnoli),
	}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.md5.Write(p)
	w.crc.Write(p)
	w.n += int64(len(p))
	return len(p), nil
}

// Sums returns the digests over everything written so far.
func (w *Writer) Sums() Sums {
	var s Sums
	copy(s.MD5[:], w.md5.Sum(nil))
	s.CRC32C = w.crc.Sum32()
	s.Size = w.n
	return s
}

// File streams a local file exactly once and returns both digests.
func File(path string) (Sums, error) {
	f, err := os.Open(path)
	if err != nil {
		return Sums{}, err
	}
	defer f.Close()

	w := NewWriter()
	if _, err := io.Copy(w, f); err != nil {
		return Sums{}, fmt.Errorf("checksumming %s: %w", path, err)
	}
	return w.Sums(), nil
}
