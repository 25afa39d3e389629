package services

import "sync"

// leaseArena tracks which job currently owns each source. At most one
// active job may exist per source; Enqueue takes a lease before a job
// is persisted and the worker releases it when the job reaches a
// terminal state. Leases are re-derived from the job store on startup,
// so the arena itself is purely in-memory.
type leaseArena struct {
	mu     sync.Mutex
	bySrce map[string]string // sourceID -> jobID
}

func newLeaseArena() *leaseArena {
	return &leaseArena{bySrce: make(map[string]string)}
}

// Acquire claims the source for jobID. It returns false and the
// holding job's ID when another job already owns the source.
func (a *leaseArena) Acquire(sourceID, jobID string) (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if holder, ok := a.bySrce[sourceID]; ok {
		return false, holder
	}
	a.bySrce[sourceID] = jobID
	return true, ""
}

// Release drops the lease if jobID still holds it.
func (a *leaseArena) Release(sourceID, jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.bySrce[sourceID] == jobID {
		delete(a.bySrce, sourceID)
	}
}

// Holder returns the job currently holding the source, if any.
func (a *leaseArena) Holder(sourceID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	jobID, ok := a.bySrce[sourceID]
	return jobID, ok
}
