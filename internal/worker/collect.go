package worker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ppiankov/painpoint/internal/model"
)

// Collector is one signal provider as seen by the worker pool.
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]model.RawSignal, error)
}

// CollectJob runs one provider. Calls to the same provider stay serial
// because each provider gets exactly one job.
type CollectJob struct {
	Collector Collector
}

// Execute runs the collector and converts a panic into an error so one
// broken adapter cannot take down the run.
func (j *CollectJob) Execute(ctx context.Context) (result Result) {
	name := j.Collector.Name()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result = &CollectResult{
				Source:   name,
				Err:      fmt.Errorf("collector %s panicked: %v", name, r),
				Duration: time.Since(start),
			}
		}
	}()

	signals, err := j.Collector.Collect(ctx)
	return &CollectResult{
		Source:   name,
		Signals:  signals,
		Err:      err,
		Duration: time.Since(start),
	}
}

// CollectResult is the per-provider outcome: signals, an error, or both
// when a provider failed part way.
type CollectResult struct {
	Source   string
	Signals  []model.RawSignal
	Err      error
	Duration time.Duration
}

// GetError returns the error from the collect result
func (r *CollectResult) GetError() error {
	return r.Err
}

// CollectProcessor runs many providers concurrently.
type CollectProcessor struct {
	concurrency int
}

// NewCollectProcessor creates a new collect processor
func NewCollectProcessor(concurrency int) *CollectProcessor {
	return &CollectProcessor{concurrency: concurrency}
}

// Run collects from every provider and returns results ordered by source
// name. A provider skipped because ctx ended reports the context error.
func (p *CollectProcessor) Run(ctx context.Context, collectors []Collector) []*CollectResult {
	if len(collectors) == 0 {
		return []*CollectResult{}
	}

	jobs := make([]Job, 0, len(collectors))
	for _, c := range collectors {
		jobs = append(jobs, &CollectJob{Collector: c})
	}

	results := NewPool(ctx, p.concurrency).Run(jobs)

	out := make([]*CollectResult, 0, len(results))
	for i, r := range results {
		if r == nil {
			name := collectors[i].Name()
			out = append(out, &CollectResult{Source: name, Err: fmt.Errorf("collector %s not started: %w", name, ctx.Err())})
			continue
		}
		out = append(out, r.(*CollectResult))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
