package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Destination names a requested target store family.
type Destination string

const (
	DestGS Destination = "gs"
	DestS3 Destination = "s3"
)

// SizeLimitError marks a cross-cloud transfer whose source exceeds the
// configured download bound. Never retried.
type SizeLimitError struct {
	Source string
	Size   int64
	Limit  int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("oversized cross-cloud transfer: %s is %d bytes, limit %d", e.Source, e.Size, e.Limit)
}

// IntegrityError marks a remote checksum that disagrees with the
// locally computed one. Fatal for the destination, never retried.
type IntegrityError struct {
	Object string
	Want   string
	Got    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: computed %s, store reported %s", e.Object, e.Want, e.Got)
}

// SourceError marks a source file or object that could not be read.
// Retried a bounded number of times.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Retriable classifies an error for the retry policy. Size and
// integrity violations are final; source and transport failures are
// worth another attempt.
func Retriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var sizeErr *SizeLimitError
	var integrityErr *IntegrityError
	if errors.As(err, &sizeErr) || errors.As(err, &integrityErr) {
		return false
	}
	var srcErr *SourceError
	if errors.As(err, &srcErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"timeout",
		"connection",
		"temporary",
		"network",
		"dns",
		"internal server error",
		"bad gateway",
		"service unavailable",
		"gateway timeout",
		"slowdown",
		"too many requests",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
