package service

import (
	"fmt"
	"sync"
)

// DedupLedger tracks which recipients of a job have already been
// delivered to, so a job that stays due across ticks (or whose pass was
// cut short mid-batch) never double-sends to the same recipient.
//
// Entries are keyed per job so a completed job can be evicted wholesale
// once its sent flag is persisted; the ledger's footprint is bounded by
// the set of jobs still in flight.
type DedupLedger struct {
	mu   sync.Mutex
	jobs map[string]map[string]struct{}
}

func NewDedupLedger() *DedupLedger {
	return &DedupLedger{
		jobs: make(map[string]map[string]struct{}),
	}
}

// JobKey builds the ledger key for one scheduled job.
func JobKey(kind, jobID string) string {
	return fmt.Sprintf("%s:%s", kind, jobID)
}

// AlreadyProcessed reports whether the recipient was delivered to in a
// previous pass over the job.
func (l *DedupLedger) AlreadyProcessed(jobKey, recipient string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.jobs[jobKey][recipient]
	return ok
}

// MarkProcessed records a successful delivery. Failed sends are not
// marked, so the recipient is retried on the next pass.
func (l *DedupLedger) MarkProcessed(jobKey, recipient string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.jobs[jobKey]
	if !ok {
		set = make(map[string]struct{})
		l.jobs[jobKey] = set
	}
	set[recipient] = struct{}{}
}

// Forget evicts all entries for a job. Called after the job's sent flag
// is persisted; the flag keeps the job out of future scans, so the
// entries have nothing left to guard.
func (l *DedupLedger) Forget(jobKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.jobs, jobKey)
}

// Size returns the number of jobs currently tracked.
func (l *DedupLedger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.jobs)
}
