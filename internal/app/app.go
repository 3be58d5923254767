// Package app wires the manifest pipeline together: read and validate
// the manifest, plan transfers, run them on the worker pool, and keep
// the receipt manifest current as rows settle.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"manifest2cloud/internal/config"
	"manifest2cloud/internal/journal"
	"manifest2cloud/internal/manifest"
	"manifest2cloud/internal/metrics"
	"manifest2cloud/internal/progress"
	"manifest2cloud/internal/storage"
	"manifest2cloud/internal/transfer"
	"manifest2cloud/internal/worker"
)

// ClientFactory builds a storage client for one scheme ("gs" or "s3").
// Clients are created lazily, only for the schemes a run actually needs.
type ClientFactory func(ctx context.Context, cfg *config.Config, scheme string) (storage.Client, error)

// DefaultClientFactory builds real cloud clients from configuration.
func DefaultClientFactory(ctx context.Context, cfg *config.Config, scheme string) (storage.Client, error) {
	switch scheme {
	case "s3":
		return storage.NewS3Client(storage.S3Options{
			Endpoint:     cfg.S3.Endpoint,
			Region:       cfg.S3.Region,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			SessionToken: cfg.S3.SessionToken,
			Insecure:     cfg.S3.Insecure,
			ChunkSize:    cfg.Transfer.ChunkSize,
		})
	case "gs":
		return storage.NewGCSClient(ctx, storage.GCSOptions{
			CredentialsFile: cfg.GS.CredentialsFile,
			ChunkSize:       cfg.Transfer.ChunkSize,
		})
	default:
		return nil, fmt.Errorf("unsupported storage scheme %q", scheme)
	}
}

// Pipeline represents one manifest transfer run.
type Pipeline struct {
	cfg     *config.Config
	logger  *zap.Logger
	factory ClientFactory
	journal journal.Store
	metrics *metrics.Collector
	now     func() time.Time
}

// New creates a pipeline with real cloud clients.
func New(cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	return NewWithFactory(cfg, logger, DefaultClientFactory)
}

// NewWithFactory creates a pipeline with a custom client factory.
func NewWithFactory(cfg *config.Config, logger *zap.Logger, factory ClientFactory) (*Pipeline, error) {
	var jstore journal.Store = journal.Noop{}
	if cfg.Transfer.Journal != "" {
		store, err := journal.NewSQLiteStore(cfg.Transfer.Journal)
		if err != nil {
			return nil, fmt.Errorf("failed to create journal: %w", err)
		}
		jstore = store
	}

	return &Pipeline{
		cfg:     cfg,
		logger:  logger,
		factory: factory,
		journal: jstore,
		metrics: metrics.New(),
		now:     time.Now,
	}, nil
}

// Run executes the pipeline to completion or cancellation.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("Starting transfer run",
		zap.String("manifest", p.cfg.Transfer.TSV),
		zap.Bool("gs", p.cfg.Transfer.GS),
		zap.Bool("aws", p.cfg.Transfer.AWS),
		zap.Bool("resume", p.cfg.Transfer.Resume),
		zap.Int("threads", p.cfg.Transfer.Threads),
	)

	read, err := manifest.ReadFile(p.cfg.Transfer.TSV, false)
	if err != nil {
		return err
	}
	for _, schemaErr := range read.Invalid {
		p.logger.Warn("Row excluded by validation",
			zap.Int("line", schemaErr.Line),
			zap.String("field", schemaErr.Field),
			zap.String("reason", schemaErr.Reason),
		)
	}

	if p.cfg.Transfer.Test {
		p.logger.Info("Validation finished",
			zap.Int("valid_rows", len(read.Records)),
			zap.Int("invalid_rows", len(read.Invalid)),
		)
		if len(read.Invalid) > 0 {
			return fmt.Errorf("%d of %d rows failed validation", len(read.Invalid), len(read.Records)+len(read.Invalid))
		}
		return nil
	}

	records := read.Records
	if len(records) == 0 {
		p.logger.Warn("No valid rows to transfer")
		return nil
	}

	// A resumed run re-reads the same file trusting its outcome columns
	// and seeds by natural row identity, so reordered or edited rows
	// still line up with their prior state.
	if p.cfg.Transfer.Resume {
		prior, err := manifest.ReadFile(p.cfg.Transfer.TSV, true)
		if err != nil {
			return err
		}
		ledger := manifest.NewLedger(prior.Records)
		seeded := 0
		for _, rec := range records {
			if ledger.Seed(rec) {
				seeded++
			}
		}
		p.logger.Info("Resume state loaded", zap.Int("seeded_rows", seeded))
	}

	for _, rec := range records {
		rec.EnsureDRSURI()
	}

	requested := p.requestedDestinations()
	clients, err := p.buildClients(ctx, records, requested)
	if err != nil {
		return err
	}

	retry := transfer.RetryPolicy{
		MaxAttempts:    p.cfg.Transfer.Retries,
		InitialBackoff: time.Duration(p.cfg.Transfer.RetryBackoffMs) * time.Millisecond,
	}
	planner := &transfer.Planner{
		Clients:         clients,
		MaxDownloadSize: p.cfg.Transfer.MaxDownloadBytes(),
		Retry:           retry,
	}

	var jobs []*transfer.Job
	var plannedBytes int64
	settled := 0
	for i, rec := range records {
		pending := pendingDestinations(rec, requested)
		if len(pending) == 0 {
			settled++
			continue
		}
		job, err := planner.Plan(ctx, i, rec, pending)
		if err != nil {
			return err
		}
		jobs = append(jobs, job)
		plannedBytes += sourceSize(job)
	}
	p.logger.Info("Transfer plan ready",
		zap.Int("rows", len(records)),
		zap.Int("already_settled", settled),
		zap.Int("jobs", len(jobs)),
	)

	if p.cfg.Transfer.MetricsAddr != "" {
		go func() {
			if err := p.metrics.StartServer(p.cfg.Transfer.MetricsAddr); err != nil {
				p.logger.Error("Failed to start metrics server", zap.Error(err))
			}
		}()
	}
	p.metrics.SetTotals(int64(len(jobs)), plannedBytes)

	stopProgress := p.startProgressLog()
	defer stopProgress()

	receiptPath := manifest.ReceiptPath(p.cfg.Transfer.TSV, p.now())
	processor := worker.NewProcessor(worker.Config{
		GSBucket: p.cfg.GS.Bucket,
		S3Bucket: p.cfg.S3.Bucket,
		Retry:    retry,
	}, clients, p.journal, p.metrics, p.logger)
	pool := worker.NewPool(p.cfg.Transfer.Threads, processor, p.logger)

	// Fold each outcome into its record and snapshot the receipt as rows
	// settle. The pool invokes this serially from its collector, so the
	// records slice has exactly one writer and the snapshot never reads
	// a row mid-update; the writer renames atomically so an interrupt
	// never leaves a torn file behind.
	results := pool.Run(ctx, jobs, func(result worker.Result) {
		result.Apply(records[result.Index])
		if err := manifest.WriteFile(receiptPath, records); err != nil {
			p.logger.Warn("Failed to snapshot receipt manifest", zap.Error(err))
		}
	})

	if err := manifest.WriteFile(receiptPath, records); err != nil {
		return fmt.Errorf("writing receipt manifest: %w", err)
	}
	p.logger.Info("Receipt manifest written", zap.String("path", receiptPath))

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}

	p.uploadReceipt(ctx, clients, requested, receiptPath)

	// A row with at least one settled destination is recorded, not
	// fatal; only rows that failed every requested destination flip the
	// exit status.
	planCount := make(map[int]int, len(jobs))
	for _, job := range jobs {
		planCount[job.Index] = len(job.Plans)
	}
	failedRows := 0
	for _, result := range results {
		if len(result.Errors) > 0 && len(result.Errors) == planCount[result.Index] {
			failedRows++
		}
	}
	if failedRows > 0 {
		return fmt.Errorf("%d of %d rows failed on every requested destination; see %s", failedRows, len(records), receiptPath)
	}

	p.logger.Info("Transfer run completed",
		zap.Int("rows", len(records)),
		zap.Int("transferred", len(jobs)),
	)
	return nil
}

// Close cleans up resources
func (p *Pipeline) Close() error {
	return p.journal.Close()
}

func (p *Pipeline) requestedDestinations() []transfer.Destination {
	var dests []transfer.Destination
	if p.cfg.Transfer.GS {
		dests = append(dests, transfer.DestGS)
	}
	if p.cfg.Transfer.AWS {
		dests = append(dests, transfer.DestS3)
	}
	return dests
}

// buildClients creates one client per scheme the run touches: every
// requested destination plus every cloud scheme appearing as a source.
func (p *Pipeline) buildClients(ctx context.Context, records []*manifest.Record, requested []transfer.Destination) (map[string]storage.Client, error) {
	schemes := map[string]bool{}
	for _, dest := range requested {
		schemes[string(dest)] = true
	}
	for _, rec := range records {
		if storage.IsCloudURI(rec.InputFilePath) {
			uri, err := storage.ParseURI(rec.InputFilePath)
			if err != nil {
				return nil, err
			}
			schemes[uri.Scheme] = true
		}
	}

	clients := make(map[string]storage.Client, len(schemes))
	for scheme := range schemes {
		client, err := p.factory(ctx, p.cfg, scheme)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", scheme, err)
		}
		clients[scheme] = client
	}
	return clients, nil
}

func pendingDestinations(rec *manifest.Record, requested []transfer.Destination) []transfer.Destination {
	var pending []transfer.Destination
	for _, dest := range requested {
		switch dest {
		case transfer.DestGS:
			if !rec.GS.Complete() {
				pending = append(pending, dest)
			}
		case transfer.DestS3:
			if !rec.S3.Complete() {
				pending = append(pending, dest)
			}
		}
	}
	return pending
}

// sourceSize reports the job's content size when it is knowable up
// front, for progress totals only.
func sourceSize(job *transfer.Job) int64 {
	if job.Source != transfer.SourceLocal {
		return job.SourceInfo.Size
	}
	if info, err := os.Stat(job.Record.InputFilePath); err == nil {
		return info.Size()
	}
	return 0
}

// startProgressLog periodically logs run progress until stopped.
func (p *Pipeline) startProgressLog() func() {
	ticker := time.NewTicker(10 * time.Second)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				status := p.metrics.Tracker().GetStatus()
				if status.TotalObjects == 0 {
					continue
				}
				p.logger.Info("Progress",
					zap.Int64("processed", status.ProcessedObjects),
					zap.Int64("total", status.TotalObjects),
					zap.Int64("failed", status.FailedObjects),
					zap.String("percent", fmt.Sprintf("%.1f%%", p.metrics.Tracker().GetProgressPercent())),
					zap.String("bytes", progress.FormatBytes(status.ProcessedBytes)+"/"+progress.FormatBytes(status.TotalBytes)),
					zap.String("speed", progress.FormatSpeed(status.AverageSpeed)),
					zap.String("eta", progress.FormatDuration(status.ETA)),
				)
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

// uploadReceipt pushes the receipt manifest next to the data on every
// destination bucket. Failures are reported but do not fail the run;
// the local receipt is authoritative.
func (p *Pipeline) uploadReceipt(ctx context.Context, clients map[string]storage.Client, requested []transfer.Destination, receiptPath string) {
	key := filepath.Base(receiptPath)
	for _, dest := range requested {
		bucket := p.cfg.S3.Bucket
		if dest == transfer.DestGS {
			bucket = p.cfg.GS.Bucket
		}

		f, err := os.Open(receiptPath)
		if err != nil {
			p.logger.Warn("Failed to open receipt for upload", zap.Error(err))
			return
		}
		stat, err := f.Stat()
		if err != nil {
			f.Close()
			p.logger.Warn("Failed to stat receipt for upload", zap.Error(err))
			return
		}
		info, err := clients[string(dest)].Upload(ctx, bucket, key, f, stat.Size())
		f.Close()
		if err != nil {
			p.logger.Warn("Failed to upload receipt manifest",
				zap.String("destination", string(dest)),
				zap.Error(err),
			)
			continue
		}
		p.logger.Info("Receipt manifest uploaded", zap.String("path", info.URI(string(dest))))
	}
}
