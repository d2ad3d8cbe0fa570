package export

import (
	"context"
	"sync"

	"mangrove-composite/jobstore"
)

// Job is the handle of one submitted export.
type Job struct {
	mu   sync.Mutex
	rec  *jobstore.Record
	err  error
	done chan struct{}
}

func newJob(rec *jobstore.Record) *Job {
	return &Job{rec: rec, done: make(chan struct{})}
}

func (j *Job) ID() string {
	return j.rec.ID
}

// Record returns a snapshot of the job record.
func (j *Job) Record() *jobstore.Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rec.Clone()
}

func (j *Job) State() jobstore.State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rec.State
}

// Done is closed once the job reached a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finished and returns its error, if any.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-j.done:
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// update applies fn to the record under the lock and returns a snapshot.
func (j *Job) update(fn func(r *jobstore.Record)) *jobstore.Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(j.rec)
	return j.rec.Clone()
}

func (j *Job) finish(err error) {
	j.mu.Lock()
	j.err = err
	j.mu.Unlock()
	close(j.done)
}
