package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"manifest2cloud/internal/checksum"
	"manifest2cloud/internal/journal"
	"manifest2cloud/internal/manifest"
	"manifest2cloud/internal/metrics"
	"manifest2cloud/internal/storage"
	"manifest2cloud/internal/transfer"
)

// Config carries the per-destination targets and the retry policy the
// processor applies to every attempt.
type Config struct {
	GSBucket string
	S3Bucket string
	Retry    transfer.RetryPolicy
}

// Result is the outcome of one job. Workers never write the shared
// record themselves; the computed fields travel here and are folded in
// with Apply on the collector side, so a receipt snapshot taken while
// sibling jobs are still running never reads a half-written row.
type Result struct {
	Index  int
	MD5Sum string
	GS     manifest.DestinationFields
	S3     manifest.DestinationFields
	Errors map[transfer.Destination]error
}

// Apply folds the computed outcome into the record the job was planned
// from. Must be called from a single goroutine, never concurrently with
// a reader of the same record.
func (r Result) Apply(rec *manifest.Record) {
	rec.MD5Sum = r.MD5Sum
	rec.GS = r.GS
	rec.S3 = r.S3
}

// Processor executes a single job: it checksums content at most once,
// then moves bytes (or just metadata) to each pending destination.
type Processor struct {
	config  Config
	clients map[string]storage.Client
	journal journal.Store
	metrics *metrics.Collector
	logger  *zap.Logger
}

func NewProcessor(cfg Config, clients map[string]storage.Client, jstore journal.Store, collector *metrics.Collector, logger *zap.Logger) *Processor {
	if jstore == nil {
		jstore = journal.Noop{}
	}
	return &Processor{
		config:  cfg,
		clients: clients,
		journal: jstore,
		metrics: collector,
		logger:  logger,
	}
}

// Process runs all destination plans of one job. Failures on one
// destination never abort the sibling destination. The job's record is
// only read, never written: all work happens on a private copy whose
// outcome fields are returned in the Result.
func (p *Processor) Process(ctx context.Context, job *transfer.Job) Result {
	result := Result{Index: job.Index, Errors: map[transfer.Destination]error{}}
	work := *job.Record
	rec := &work

	// One content read covers every destination that needs bytes.
	var sums checksum.Sums
	var sumsErr error
	if job.Source == transfer.SourceLocal && needsContent(job) {
		sumsErr = p.config.Retry.Do(ctx, func() error {
			s, err := checksum.File(rec.InputFilePath)
			if err != nil {
				return &transfer.SourceError{Source: rec.InputFilePath, Err: err}
			}
			sums = s
			return nil
		})
		if sumsErr == nil && rec.MD5Sum == "" {
			rec.MD5Sum = sums.MD5Hex()
		}
	}

	for _, plan := range job.Plans {
		dest := plan.Destination
		start := time.Now()

		var err error
		switch {
		case plan.Reject != nil:
			err = plan.Reject
		case sumsErr != nil:
			err = sumsErr
		default:
			p.saveJournal(rec, dest, journal.StatusRunning, nil, 0)
			err = p.runPlan(ctx, job, rec, plan, sums)
		}

		if err != nil {
			result.Errors[dest] = err
			p.saveJournal(rec, dest, journal.StatusFailed, err, p.config.Retry.MaxAttempts)
			p.metrics.IncFailed(string(dest))
			p.logger.Error("destination failed",
				zap.String("input", rec.InputFilePath),
				zap.String("destination", string(dest)),
				zap.String("strategy", plan.Strategy.String()),
				zap.Error(err),
			)
			continue
		}

		p.saveJournal(rec, dest, journal.StatusCompleted, nil, 0)
		p.metrics.ObserveDuration(string(dest), time.Since(start))
		p.logger.Info("destination complete",
			zap.String("input", rec.InputFilePath),
			zap.String("destination", string(dest)),
			zap.String("strategy", plan.Strategy.String()),
			zap.Duration("duration", time.Since(start)),
		)
	}

	result.MD5Sum = rec.MD5Sum
	result.GS = rec.GS
	result.S3 = rec.S3
	return result
}

func needsContent(job *transfer.Job) bool {
	for _, plan := range job.Plans {
		if plan.Reject == nil && plan.Strategy != transfer.StrategyPassthrough {
			return true
		}
	}
	return false
}

func (p *Processor) runPlan(ctx context.Context, job *transfer.Job, rec *manifest.Record, plan transfer.DestinationPlan, sums checksum.Sums) error {
	switch plan.Strategy {
	case transfer.StrategyPassthrough:
		return p.passthrough(job, rec, plan.Destination)
	case transfer.StrategyDownloadUpload:
		return p.config.Retry.Do(ctx, func() error {
			return p.downloadUpload(ctx, job, rec, plan.Destination)
		})
	default:
		return p.config.Retry.Do(ctx, func() error {
			return p.uploadVerified(ctx, rec, plan.Destination, sums, func() (io.ReadCloser, error) {
				f, err := os.Open(rec.InputFilePath)
				if err != nil {
					return nil, &transfer.SourceError{Source: rec.InputFilePath, Err: err}
				}
				return f, nil
			})
		})
	}
}

// passthrough records the source object itself as the destination
// outcome. Only metadata moves; the stat was taken at planning time.
func (p *Processor) passthrough(job *transfer.Job, rec *manifest.Record, dest transfer.Destination) error {
	info := job.SourceInfo

	fields := manifest.DestinationFields{
		Path:         job.SourceURI.String(),
		ModifiedDate: info.LastModified.UTC().Format(time.RFC3339),
		FileSize:     strconv.FormatInt(info.Size, 10),
	}
	switch dest {
	case transfer.DestS3:
		if info.MD5 == "" {
			return &transfer.SourceError{Source: job.SourceURI.String(), Err: fmt.Errorf("store reported no checksum")}
		}
		fields.Checksum = info.MD5
		if rec.MD5Sum == "" && !strings.Contains(info.MD5, "-") {
			rec.MD5Sum = info.MD5
		}
		rec.S3 = fields
	case transfer.DestGS:
		if info.CRC32C == "" {
			return &transfer.SourceError{Source: job.SourceURI.String(), Err: fmt.Errorf("store reported no checksum")}
		}
		fields.Checksum = info.CRC32C
		if rec.MD5Sum == "" && info.MD5 != "" {
			rec.MD5Sum = info.MD5
		}
		rec.GS = fields
	}
	p.metrics.IncSkipped(string(dest), info.Size)
	return nil
}

// downloadUpload pulls a cross-cloud source to a temporary file,
// checksumming during the download, then uploads from the local copy.
func (p *Processor) downloadUpload(ctx context.Context, job *transfer.Job, rec *manifest.Record, dest transfer.Destination) error {
	src := p.clients[job.SourceURI.Scheme]
	if src == nil {
		return fmt.Errorf("no %s client configured for source %s", job.SourceURI.Scheme, job.SourceURI)
	}

	tmp, err := os.CreateTemp("", "manifest2cloud-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	digest := checksum.NewWriter()
	if _, err := src.Download(ctx, job.SourceURI.Bucket, job.SourceURI.Key, io.MultiWriter(tmp, digest)); err != nil {
		return &transfer.SourceError{Source: job.SourceURI.String(), Err: err}
	}
	sums := digest.Sums()
	if rec.MD5Sum == "" {
		rec.MD5Sum = sums.MD5Hex()
	}

	return p.uploadVerified(ctx, rec, dest, sums, func() (io.ReadCloser, error) {
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return io.NopCloser(tmp), nil
	})
}

// uploadVerified moves content to one destination under its
// content-addressed key. Re-uploading identical bytes is a no-op: an
// existing object whose checksum matches short-circuits the transfer.
func (p *Processor) uploadVerified(ctx context.Context, rec *manifest.Record, dest transfer.Destination, sums checksum.Sums, open func() (io.ReadCloser, error)) error {
	client := p.clients[string(dest)]
	if client == nil {
		return fmt.Errorf("no %s client configured", dest)
	}
	bucket := p.destBucket(dest)
	key := objectKey(rec, dest, sums)

	exists, err := client.Exists(ctx, bucket, key)
	if err != nil {
		return err
	}
	if exists {
		info, err := client.Stat(ctx, bucket, key)
		if err != nil {
			return err
		}
		if matches(dest, info, sums) {
			p.logger.Debug("object already present, skipping upload",
				zap.String("destination", info.URI(string(dest))))
			fold(rec, dest, info)
			p.metrics.IncSkipped(string(dest), info.Size)
			return nil
		}
		// Same key, different content: the key embeds the checksum, so
		// the existing object is damaged. Re-upload over it.
	}

	r, err := open()
	if err != nil {
		return err
	}
	defer r.Close()

	info, err := client.Upload(ctx, bucket, key, r, sums.Size)
	if err != nil {
		return err
	}
	if err := verify(dest, info, sums); err != nil {
		return err
	}
	fold(rec, dest, info)
	p.metrics.IncSucceeded(string(dest), info.Size)
	return nil
}

// objectKey derives the content-addressed key: distinct content never
// collides, identical content re-uploads to the same key.
func objectKey(rec *manifest.Record, dest transfer.Destination, sums checksum.Sums) string {
	sum := sums.MD5Hex()
	if dest == transfer.DestGS {
		// Base64 characters are unsafe in keys; embed the unsigned
		// decimal form instead.
		sum = sums.CRC32CDecimal()
	}
	return fmt.Sprintf("%s-%s/%s.%s", rec.StudyID, rec.ConsentGroup, rec.FileName, sum)
}

func (p *Processor) destBucket(dest transfer.Destination) string {
	if dest == transfer.DestGS {
		return p.config.GSBucket
	}
	return p.config.S3Bucket
}

func fold(rec *manifest.Record, dest transfer.Destination, info storage.ObjectInfo) {
	fields := manifest.DestinationFields{
		Path:         info.URI(string(dest)),
		ModifiedDate: info.LastModified.UTC().Format(time.RFC3339),
		FileSize:     strconv.FormatInt(info.Size, 10),
	}
	if dest == transfer.DestGS {
		fields.Checksum = info.CRC32C
		rec.GS = fields
	} else {
		fields.Checksum = info.MD5
		rec.S3 = fields
	}
}

// matches reports whether an existing object carries the content we
// were about to upload.
func matches(dest transfer.Destination, info storage.ObjectInfo, sums checksum.Sums) bool {
	if dest == transfer.DestGS {
		crc, err := checksum.DecodeCRC32C(info.CRC32C)
		return err == nil && crc == sums.CRC32C
	}
	if strings.Contains(info.MD5, "-") {
		// Multipart ETag: not an md5 of the content, fall back to size.
		return info.Size == sums.Size
	}
	return info.MD5 == sums.MD5Hex()
}

// verify compares the store-reported checksum against the locally
// computed one. A disagreement is final for the destination.
func verify(dest transfer.Destination, info storage.ObjectInfo, sums checksum.Sums) error {
	if dest == transfer.DestGS {
		crc, err := checksum.DecodeCRC32C(info.CRC32C)
		if err != nil {
			return err
		}
		if crc != sums.CRC32C {
			return &transfer.IntegrityError{
				Object: info.URI("gs"),
				Want:   sums.CRC32CBase64(),
				Got:    info.CRC32C,
			}
		}
		return nil
	}
	// Multipart ETags are not content md5s; nothing to compare then.
	if strings.Contains(info.MD5, "-") {
		return nil
	}
	if info.MD5 != sums.MD5Hex() {
		return &transfer.IntegrityError{
			Object: info.URI("s3"),
			Want:   sums.MD5Hex(),
			Got:    info.MD5,
		}
	}
	return nil
}

func (p *Processor) saveJournal(rec *manifest.Record, dest transfer.Destination, status journal.Status, cause error, attempts int) {
	entry := &journal.Entry{
		RowKey:      rec.Key(),
		Input:       rec.InputFilePath,
		Destination: string(dest),
		Status:      status,
		Attempts:    attempts,
	}
	if cause != nil {
		entry.LastError = cause.Error()
	}
	if err := p.journal.Save(entry); err != nil {
		p.logger.Warn("failed to record journal entry",
			zap.String("input", rec.InputFilePath),
			zap.String("destination", string(dest)),
			zap.Error(err),
		)
	}
}
