package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"manifest2cloud/internal/checksum"
	"manifest2cloud/internal/manifest"
	"manifest2cloud/internal/metrics"
	"manifest2cloud/internal/storage"
	"manifest2cloud/internal/storage/storagetest"
	"manifest2cloud/internal/transfer"
)

func testRetry() transfer.RetryPolicy {
	return transfer.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond}
}

func testConfig() Config {
	return Config{GSBucket: "gs-dst", S3Bucket: "s3-dst", Retry: testRetry()}
}

func newRecord(inputPath string) *manifest.Record {
	rec := &manifest.Record{
		StudyRegistration:    "phs001234",
		StudyID:              "study1",
		ConsentGroup:         "c1",
		ParticipantID:        "p1",
		SpecimenID:           "sp1",
		ExperimentalStrategy: "WGS",
		InputFilePath:        inputPath,
		FileFormat:           "CRAM",
		FileType:             "aligned reads",
	}
	rec.FileName = rec.BaseName()
	return rec
}

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func planJob(t *testing.T, clients map[string]storage.Client, rec *manifest.Record, maxDownload int64, pending ...transfer.Destination) *transfer.Job {
	t.Helper()
	planner := &transfer.Planner{Clients: clients, MaxDownloadSize: maxDownload, Retry: testRetry()}
	job, err := planner.Plan(context.Background(), 0, rec, pending)
	require.NoError(t, err)
	return job
}

func TestProcessLocalFileBothDestinations(t *testing.T) {
	content := "local file bound for two clouds"
	path := writeInput(t, "sample.cram", content)
	rec := newRecord(path)

	s3 := storagetest.NewFakeClient("s3")
	gs := storagetest.NewFakeClient("gs")
	clients := map[string]storage.Client{"s3": s3, "gs": gs}

	proc := NewProcessor(testConfig(), clients, nil, metrics.New(), zap.NewNop())
	job := planJob(t, clients, rec, 0, transfer.DestGS, transfer.DestS3)

	result := proc.Process(context.Background(), job)
	require.Empty(t, result.Errors)
	result.Apply(rec)

	sums, err := checksum.File(path)
	require.NoError(t, err)

	s3Key := fmt.Sprintf("study1-c1/sample.cram.%s", sums.MD5Hex())
	gsKey := fmt.Sprintf("study1-c1/sample.cram.%s", sums.CRC32CDecimal())

	data, ok := s3.Object("s3-dst", s3Key)
	require.True(t, ok)
	assert.Equal(t, content, string(data))
	data, ok = gs.Object("gs-dst", gsKey)
	require.True(t, ok)
	assert.Equal(t, content, string(data))

	assert.Equal(t, sums.MD5Hex(), rec.MD5Sum)
	assert.Equal(t, sums.MD5Hex(), rec.S3.Checksum)
	assert.Equal(t, sums.CRC32CBase64(), rec.GS.Checksum)
	assert.Equal(t, "s3://s3-dst/"+s3Key, rec.S3.Path)
	assert.Equal(t, "gs://gs-dst/"+gsKey, rec.GS.Path)
	assert.Equal(t, fmt.Sprintf("%d", len(content)), rec.S3.FileSize)
	assert.Equal(t, storagetest.FixedModTime.Format(time.RFC3339), rec.GS.ModifiedDate)
	assert.True(t, rec.GS.Complete())
	assert.True(t, rec.S3.Complete())
}

func TestProcessIdempotentReupload(t *testing.T) {
	path := writeInput(t, "again.cram", "same bytes both runs")

	s3 := storagetest.NewFakeClient("s3")
	clients := map[string]storage.Client{"s3": s3}
	proc := NewProcessor(testConfig(), clients, nil, metrics.New(), zap.NewNop())

	first := newRecord(path)
	result := proc.Process(context.Background(), planJob(t, clients, first, 0, transfer.DestS3))
	require.Empty(t, result.Errors)
	result.Apply(first)
	require.Equal(t, 1, s3.Uploads())

	// Same content lands on the same key; the second run must not move
	// bytes again.
	second := newRecord(path)
	result = proc.Process(context.Background(), planJob(t, clients, second, 0, transfer.DestS3))
	require.Empty(t, result.Errors)
	result.Apply(second)
	assert.Equal(t, 1, s3.Uploads())
	assert.Equal(t, 1, s3.ObjectCount())
	assert.Equal(t, first.S3, second.S3)
}

func TestProcessPassthroughSameCloud(t *testing.T) {
	s3 := storagetest.NewFakeClient("s3")
	s3.Put("src-bucket", "in/huge.cram", []byte("already resident"))
	clients := map[string]storage.Client{"s3": s3}

	rec := newRecord("s3://src-bucket/in/huge.cram")
	proc := NewProcessor(testConfig(), clients, nil, metrics.New(), zap.NewNop())
	job := planJob(t, clients, rec, 0, transfer.DestS3)
	require.Equal(t, transfer.StrategyPassthrough, job.Plans[0].Strategy)

	result := proc.Process(context.Background(), job)
	require.Empty(t, result.Errors)
	result.Apply(rec)

	// No bytes moved; the source object itself is the outcome.
	assert.Equal(t, 0, s3.Uploads())
	assert.Equal(t, 0, s3.Downloads())
	assert.Equal(t, "s3://src-bucket/in/huge.cram", rec.S3.Path)
	assert.Equal(t, fmt.Sprintf("%d", len("already resident")), rec.S3.FileSize)
	assert.NotEmpty(t, rec.S3.Checksum)
	assert.Equal(t, rec.S3.Checksum, rec.MD5Sum)
}

func TestProcessCrossCloudDownloadUpload(t *testing.T) {
	content := "resident in gs, wanted in s3"
	gs := storagetest.NewFakeClient("gs")
	gs.Put("src-bucket", "in/sample.cram", []byte(content))
	s3 := storagetest.NewFakeClient("s3")
	clients := map[string]storage.Client{"s3": s3, "gs": gs}

	rec := newRecord("gs://src-bucket/in/sample.cram")
	proc := NewProcessor(testConfig(), clients, nil, metrics.New(), zap.NewNop())
	job := planJob(t, clients, rec, 1024*1024, transfer.DestS3)
	require.Equal(t, transfer.StrategyDownloadUpload, job.Plans[0].Strategy)

	result := proc.Process(context.Background(), job)
	require.Empty(t, result.Errors)
	result.Apply(rec)

	assert.Equal(t, 1, gs.Downloads())
	assert.Equal(t, 1, s3.Uploads())
	assert.NotEmpty(t, rec.MD5Sum)
	assert.Contains(t, rec.S3.Path, "s3://s3-dst/study1-c1/sample.cram.")
}

func TestProcessOversizeSourceRejected(t *testing.T) {
	gs := storagetest.NewFakeClient("gs")
	gs.Put("src-bucket", "in/too-big.cram", make([]byte, 2048))
	s3 := storagetest.NewFakeClient("s3")
	clients := map[string]storage.Client{"s3": s3, "gs": gs}

	rec := newRecord("gs://src-bucket/in/too-big.cram")
	proc := NewProcessor(testConfig(), clients, nil, metrics.New(), zap.NewNop())
	job := planJob(t, clients, rec, 1024, transfer.DestS3)

	result := proc.Process(context.Background(), job)
	require.Len(t, result.Errors, 1)
	result.Apply(rec)

	var sizeErr *transfer.SizeLimitError
	require.ErrorAs(t, result.Errors[transfer.DestS3], &sizeErr)
	assert.Equal(t, int64(2048), sizeErr.Size)

	// Rejection happens before any byte movement.
	assert.Equal(t, 0, gs.Downloads())
	assert.Equal(t, 0, s3.Uploads())
	assert.False(t, rec.S3.Complete())
}

func TestProcessIntegrityMismatchNotRetried(t *testing.T) {
	path := writeInput(t, "flaky.cram", "bytes that will verify badly")

	s3 := storagetest.NewFakeClient("s3")
	s3.CorruptChecksums = true
	clients := map[string]storage.Client{"s3": s3}

	rec := newRecord(path)
	proc := NewProcessor(testConfig(), clients, nil, metrics.New(), zap.NewNop())

	result := proc.Process(context.Background(), planJob(t, clients, rec, 0, transfer.DestS3))
	require.Len(t, result.Errors, 1)
	result.Apply(rec)

	var integrityErr *transfer.IntegrityError
	require.ErrorAs(t, result.Errors[transfer.DestS3], &integrityErr)
	// A checksum disagreement is final, not worth re-sending bytes for.
	assert.Equal(t, 1, s3.Uploads())
	assert.False(t, rec.S3.Complete())
}

func TestProcessTransientUploadRetried(t *testing.T) {
	path := writeInput(t, "retry.cram", "eventually makes it")

	s3 := storagetest.NewFakeClient("s3")
	s3.UploadFailures = 2
	clients := map[string]storage.Client{"s3": s3}

	rec := newRecord(path)
	proc := NewProcessor(testConfig(), clients, nil, metrics.New(), zap.NewNop())

	result := proc.Process(context.Background(), planJob(t, clients, rec, 0, transfer.DestS3))
	require.Empty(t, result.Errors)
	result.Apply(rec)
	assert.Equal(t, 3, s3.Uploads())
	assert.True(t, rec.S3.Complete())
}

func TestProcessMissingLocalFile(t *testing.T) {
	s3 := storagetest.NewFakeClient("s3")
	clients := map[string]storage.Client{"s3": s3}

	rec := newRecord(filepath.Join(t.TempDir(), "nope.cram"))
	proc := NewProcessor(testConfig(), clients, nil, metrics.New(), zap.NewNop())

	result := proc.Process(context.Background(), planJob(t, clients, rec, 0, transfer.DestS3))
	require.Len(t, result.Errors, 1)

	var srcErr *transfer.SourceError
	require.ErrorAs(t, result.Errors[transfer.DestS3], &srcErr)
	assert.Equal(t, 0, s3.Uploads())
}

func TestProcessOneDestinationFailureIsolated(t *testing.T) {
	path := writeInput(t, "partial.cram", "gs works, s3 does not")

	s3 := storagetest.NewFakeClient("s3")
	s3.UploadFailures = 10
	gs := storagetest.NewFakeClient("gs")
	clients := map[string]storage.Client{"s3": s3, "gs": gs}

	rec := newRecord(path)
	proc := NewProcessor(testConfig(), clients, nil, metrics.New(), zap.NewNop())

	result := proc.Process(context.Background(), planJob(t, clients, rec, 0, transfer.DestGS, transfer.DestS3))
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors, transfer.DestS3)
	result.Apply(rec)

	assert.True(t, rec.GS.Complete())
	assert.False(t, rec.S3.Complete())
}

func TestProcessNeverWritesSharedRecord(t *testing.T) {
	path := writeInput(t, "shared.cram", "outcome travels in the result")
	rec := newRecord(path)

	s3 := storagetest.NewFakeClient("s3")
	gs := storagetest.NewFakeClient("gs")
	clients := map[string]storage.Client{"s3": s3, "gs": gs}
	proc := NewProcessor(testConfig(), clients, nil, metrics.New(), zap.NewNop())

	job := planJob(t, clients, rec, 0, transfer.DestGS, transfer.DestS3)
	before := *rec
	result := proc.Process(context.Background(), job)
	require.Empty(t, result.Errors)

	// A snapshot writer may read the record while the job runs, so the
	// worker must leave it untouched until Apply is called.
	assert.Equal(t, before, *rec)
	assert.NotEmpty(t, result.MD5Sum)
	assert.True(t, result.GS.Complete())
	assert.True(t, result.S3.Complete())

	result.Apply(rec)
	assert.True(t, rec.GS.Complete())
	assert.True(t, rec.S3.Complete())
	assert.Equal(t, result.MD5Sum, rec.MD5Sum)
}
