package transfer

import (
	"context"
	"fmt"

	"manifest2cloud/internal/manifest"
	"manifest2cloud/internal/storage"
)

// SourceKind is the resolved location class of an input file, decided
// once at planning time.
type SourceKind int

const (
	SourceLocal SourceKind = iota
	SourceS3
	SourceGS
)

func (k SourceKind) String() string {
	switch k {
	case SourceS3:
		return "s3-resident"
	case SourceGS:
		return "gs-resident"
	default:
		return "local"
	}
}

// scheme returns the cloud scheme for a cloud-resident kind.
func (k SourceKind) scheme() string {
	switch k {
	case SourceS3:
		return "s3"
	case SourceGS:
		return "gs"
	default:
		return ""
	}
}

// Strategy is how bytes reach one destination.
type Strategy int

const (
	StrategyDirectUpload Strategy = iota
	StrategyPassthrough
	StrategyDownloadUpload
)

func (s Strategy) String() string {
	switch s {
	case StrategyPassthrough:
		return "passthrough"
	case StrategyDownloadUpload:
		return "download-then-upload"
	default:
		return "direct-upload"
	}
}

// DestinationPlan is the planner's decision for one (row, destination)
// pair. Reject carries the planning-time failure for destinations that
// must not be attempted at all.
type DestinationPlan struct {
	Destination Destination
	Strategy    Strategy
	Reject      error
}

// Job is the unit of work handed to the worker pool: one manifest row
// and the decisions for each of its pending destinations. Workers treat
// the record as read-only; outcomes come back in the pool's results.
type Job struct {
	Index  int
	Record *manifest.Record
	Source SourceKind

	// SourceURI and SourceInfo are set for cloud-resident sources.
	SourceURI  storage.URI
	SourceInfo storage.ObjectInfo

	Plans []DestinationPlan
}

// Planner decides a transfer strategy per (source, destination) pair.
// Cloud sources are stat'ed once here so every later decision, the
// passthrough metadata included, comes from a single lookup.
type Planner struct {
	Clients         map[string]storage.Client
	MaxDownloadSize int64
	Retry           RetryPolicy
}

// Plan builds the job for one pending row. An unreachable cloud source
// rejects every destination rather than aborting the run; a missing
// client for the source scheme is a configuration error and does abort.
func (p *Planner) Plan(ctx context.Context, index int, rec *manifest.Record, pending []Destination) (*Job, error) {
	job := &Job{Index: index, Record: rec, Source: SourceLocal}

	if storage.IsCloudURI(rec.InputFilePath) {
		uri, err := storage.ParseURI(rec.InputFilePath)
		if err != nil {
			return nil, err
		}
		job.SourceURI = uri
		if uri.Scheme == "s3" {
			job.Source = SourceS3
		} else {
			job.Source = SourceGS
		}

		client, ok := p.Clients[uri.Scheme]
		if !ok {
			return nil, fmt.Errorf("no %s client configured for source %s", uri.Scheme, rec.InputFilePath)
		}

		statErr := p.Retry.Do(ctx, func() error {
			info, err := client.Stat(ctx, uri.Bucket, uri.Key)
			if err != nil {
				return &SourceError{Source: uri.String(), Err: err}
			}
			job.SourceInfo = info
			return nil
		})
		if statErr != nil {
			for _, dest := range pending {
				job.Plans = append(job.Plans, DestinationPlan{Destination: dest, Reject: statErr})
			}
			return job, nil
		}
	}

	for _, dest := range pending {
		job.Plans = append(job.Plans, p.decide(job, dest))
	}
	return job, nil
}

// decide applies the strategy table for one destination.
func (p *Planner) decide(job *Job, dest Destination) DestinationPlan {
	plan := DestinationPlan{Destination: dest}
	if job.Source == SourceLocal {
		plan.Strategy = StrategyDirectUpload
		return plan
	}
	if job.Source.scheme() == string(dest) {
		plan.Strategy = StrategyPassthrough
		return plan
	}
	if p.MaxDownloadSize > 0 && job.SourceInfo.Size > p.MaxDownloadSize {
		plan.Reject = &SizeLimitError{
			Source: job.SourceURI.String(),
			Size:   job.SourceInfo.Size,
			Limit:  p.MaxDownloadSize,
		}
		return plan
	}
	plan.Strategy = StrategyDownloadUpload
	return plan
}
