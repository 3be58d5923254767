package worker

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"manifest2cloud/internal/transfer"
)

// Pool is a bounded set of workers draining a job queue. Each job is
// submitted exactly once and processed to completion by one worker, so
// no (row, destination) pair ever has two in-flight executions.
type Pool struct {
	size      int
	processor *Processor
	logger    *zap.Logger
}

func NewPool(size int, processor *Processor, logger *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{size: size, processor: processor, logger: logger}
}

// Run blocks until every job has settled and returns the results in
// original row order regardless of completion order. onResult, when
// set, is invoked serially as each job settles so the caller can flush
// intermediate state; it must not be called concurrently and is not.
func (p *Pool) Run(ctx context.Context, jobs []*transfer.Job, onResult func(Result)) []Result {
	tasks := make(chan *transfer.Job)
	resultCh := make(chan Result)

	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go p.worker(ctx, i, tasks, resultCh, &wg)
	}

	go func() {
		defer close(tasks)
		for _, job := range jobs {
			select {
			case tasks <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]Result, 0, len(jobs))
	for result := range resultCh {
		if onResult != nil {
			onResult(result)
		}
		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results
}

func (p *Pool) worker(ctx context.Context, id int, tasks <-chan *transfer.Job, results chan<- Result, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := p.logger.With(zap.Int("worker_id", id))
	logger.Debug("worker started")

	for {
		select {
		case job, ok := <-tasks:
			if !ok {
				logger.Debug("worker finished, queue drained")
				return
			}
			results <- p.processor.Process(ctx, job)
		case <-ctx.Done():
			logger.Debug("worker stopped, context cancelled")
			return
		}
	}
}
