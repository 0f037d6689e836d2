package store

import (
	"context"
	"errors"

	"github.com/iticjobs/jobscrape/internal/models"
)

const DefaultBatchSize = 20

// Inserter is the write side of Store.
type Inserter interface {
	InsertJobs(ctx context.Context, table string, jobs []models.Job) (int, error)
}

// Batcher buffers jobs for one table and writes them in groups. It is not
// safe for concurrent use; each site gets its own.
//
// Every buffered job ends up either written or failed; Drain hands both
// lists to the caller.
type Batcher struct {
	sink     Inserter
	table    string
	size     int
	pending  []models.Job
	written  []models.Job
	failed   []models.Job
	inserted int
}

func NewBatcher(sink Inserter, table string, size int) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Batcher{sink: sink, table: table, size: size}
}

// Add buffers jobs and flushes every time a full batch is reached. A failed
// flush does not stop the remaining jobs from being buffered.
func (b *Batcher) Add(ctx context.Context, jobs ...models.Job) error {
	var errs []error
	for _, job := range jobs {
		b.pending = append(b.pending, job)
		if len(b.pending) >= b.size {
			if err := b.Flush(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Flush writes the buffered jobs as one batch. On error the whole batch is
// moved to the failed list.
func (b *Batcher) Flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	batch := b.pending
	b.pending = nil

	n, err := b.sink.InsertJobs(ctx, b.table, batch)
	b.inserted += n
	if err != nil {
		b.failed = append(b.failed, batch...)
		return err
	}
	b.written = append(b.written, batch...)
	return nil
}

// Close writes whatever is still buffered.
func (b *Batcher) Close(ctx context.Context) error {
	return b.Flush(ctx)
}

// Drain returns and clears the jobs flushed since the last call, split into
// those written and those whose batch failed. Jobs still buffered are in
// neither list.
func (b *Batcher) Drain() (written, failed []models.Job) {
	written, failed = b.written, b.failed
	b.written, b.failed = nil, nil
	return written, failed
}

// Inserted is the number of rows added so far.
func (b *Batcher) Inserted() int {
	return b.inserted
}
