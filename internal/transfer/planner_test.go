package transfer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manifest2cloud/internal/manifest"
	"manifest2cloud/internal/storage"
	"manifest2cloud/internal/storage/storagetest"
)

func plannerRecord(path string) *manifest.Record {
	return &manifest.Record{
		StudyRegistration:    "dbgap",
		StudyID:              "study1",
		ConsentGroup:         "c1",
		ParticipantID:        "p1",
		SpecimenID:           "sp1",
		ExperimentalStrategy: "wgs",
		InputFilePath:        path,
		FileFormat:           "cram",
		FileType:             "aligned reads",
		FileName:             "f.cram",
	}
}

func newPlanner(clients ...storage.Client) *Planner {
	p := &Planner{
		Clients:         map[string]storage.Client{},
		MaxDownloadSize: 1024,
		Retry:           RetryPolicy{MaxAttempts: 1},
	}
	for _, c := range clients {
		p.Clients[c.Scheme()] = c
	}
	return p
}

func planFor(t *testing.T, job *Job, dest Destination) DestinationPlan {
	t.Helper()
	for _, plan := range job.Plans {
		if plan.Destination == dest {
			return plan
		}
	}
	t.Fatalf("no plan for destination %s", dest)
	return DestinationPlan{}
}

func TestPlanLocalSource(t *testing.T) {
	p := newPlanner()
	job, err := p.Plan(context.Background(), 0, plannerRecord("/data/f.cram"), []Destination{DestGS, DestS3})
	require.NoError(t, err)

	assert.Equal(t, SourceLocal, job.Source)
	require.Len(t, job.Plans, 2)
	for _, plan := range job.Plans {
		assert.Equal(t, StrategyDirectUpload, plan.Strategy)
		assert.NoError(t, plan.Reject)
	}
}

func TestPlanPassthroughAndCrossCloud(t *testing.T) {
	s3 := storagetest.NewFakeClient("s3")
	s3.Put("bucket", "f.cram", []byte("content"))

	p := newPlanner(s3)
	job, err := p.Plan(context.Background(), 0, plannerRecord("s3://bucket/f.cram"), []Destination{DestS3, DestGS})
	require.NoError(t, err)

	assert.Equal(t, SourceS3, job.Source)
	assert.Equal(t, int64(7), job.SourceInfo.Size)
	assert.Equal(t, StrategyPassthrough, planFor(t, job, DestS3).Strategy)
	assert.Equal(t, StrategyDownloadUpload, planFor(t, job, DestGS).Strategy)
}

func TestPlanRejectsOversizedCrossCloud(t *testing.T) {
	gs := storagetest.NewFakeClient("gs")
	gs.Put("bucket", "big.cram", make([]byte, 2048))

	p := newPlanner(gs)
	job, err := p.Plan(context.Background(), 0, plannerRecord("gs://bucket/big.cram"), []Destination{DestGS, DestS3})
	require.NoError(t, err)

	// Same-cloud passthrough is unaffected by the size bound.
	assert.Equal(t, StrategyPassthrough, planFor(t, job, DestGS).Strategy)

	reject := planFor(t, job, DestS3).Reject
	require.Error(t, reject)
	var sizeErr *SizeLimitError
	require.ErrorAs(t, reject, &sizeErr)
	assert.Equal(t, int64(2048), sizeErr.Size)
	assert.False(t, Retriable(reject))
}

func TestPlanMissingSourceRejectsAllDestinations(t *testing.T) {
	s3 := storagetest.NewFakeClient("s3")

	p := newPlanner(s3)
	job, err := p.Plan(context.Background(), 0, plannerRecord("s3://bucket/gone.cram"), []Destination{DestS3, DestGS})
	require.NoError(t, err)

	require.Len(t, job.Plans, 2)
	for _, plan := range job.Plans {
		var srcErr *SourceError
		require.ErrorAs(t, plan.Reject, &srcErr)
	}
}

func TestPlanMissingClientIsConfigError(t *testing.T) {
	p := newPlanner()
	_, err := p.Plan(context.Background(), 0, plannerRecord("gs://bucket/f.cram"), []Destination{DestS3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no gs client")
}
