package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool runs jobs on a fixed number of goroutines.
type Pool struct {
	workers int
	ctx     context.Context
}

// NewPool creates a pool whose jobs run under ctx.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers, ctx: ctx}
}

// Run executes jobs and returns their results in job order. Once ctx is done
// no further job is started; the slots of jobs that never started are nil.
// Jobs already running are left to observe ctx themselves.
func (p *Pool) Run(jobs []Job) []Result {
	results := make([]Result, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	next := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < min(p.workers, len(jobs)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				results[i] = jobs[i].Execute(p.ctx)
			}
		}()
	}

feed:
	for i := range jobs {
		if p.ctx.Err() != nil {
			break
		}
		select {
		case next <- i:
		case <-p.ctx.Done():
			break feed
		}
	}
	close(next)
	wg.Wait()

	return results
}
