package dispatch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Job is one dispatch request in a batch.
type Job[K comparable, P any] struct {
	Key     K
	Payload P
}

// Outcome is the result of one Job. Err is nil on success.
type Outcome[K comparable, R any] struct {
	Key    K
	Result R
	Err    error
}

// ProcessBatch dispatches jobs with at most concurrency in flight and returns
// one outcome per job in input order. A failing job never cancels the others.
// concurrency <= 0 means unbounded.
func (d *Dispatcher[K, P, R]) ProcessBatch(ctx context.Context, jobs []Job[K, P], concurrency int) []Outcome[K, R] {
	outcomes := make([]Outcome[K, R], len(jobs))

	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, job := range jobs {
		g.Go(func() error {
			res, err := d.Process(ctx, job.Key, job.Payload)
			outcomes[i] = Outcome[K, R]{Key: job.Key, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// Failed returns the outcomes that carry an error.
func Failed[K comparable, R any](outcomes []Outcome[K, R]) []Outcome[K, R] {
	var failed []Outcome[K, R]
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}
