package core

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/radishdb/keyspace/log"
)

// reclaimerMaxInflight bounds how many reclamation batches may run
// concurrently, so a burst of FLUSHALL ASYNC / UNLINK calls can't spawn
// unbounded goroutines.
const reclaimerMaxInflight = 4

// Reclaimer runs value teardown off the hot path, per spec.md §5's
// "background reclamation only" rule: delete_lazy and Empty(async)
// unlink a key synchronously, then hand its Value(s) here to be
// dereferenced once the caller has already moved on. Grounded on the
// semaphore worker-pool idiom the pack's zmux-server uses for bounded
// background work, with google/uuid batch IDs for log correlation the
// way that server tags its own background jobs.
type Reclaimer struct {
	sem *semaphore.Weighted
}

// NewReclaimer constructs a Reclaimer with the default concurrency cap.
func NewReclaimer() *Reclaimer {
	return &Reclaimer{sem: semaphore.NewWeighted(reclaimerMaxInflight)}
}

// Reclaim asynchronously dereferences values, logging the batch under a
// fresh correlation id. It never blocks the caller waiting for a free
// worker slot -- if the pool is saturated, the batch queues inline in
// its own goroutine rather than stalling delete_lazy's caller.
func (r *Reclaimer) Reclaim(values []*Value) {
	if len(values) == 0 {
		return
	}
	batchID := uuid.New()

	go func() {
		ctx := context.Background()
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer r.sem.Release(1)

		for _, v := range values {
			v.DecRef()
		}
		keyspaceReclaimed.Add(len(values))
		log.Debugf("reclaimer: batch %s freed %d values", batchID, len(values))
	}()
}
