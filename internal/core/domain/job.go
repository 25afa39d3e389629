package domain

import "time"

// JobState is a state in the ingestion job lifecycle.
type JobState string

// Ingestion job states. The happy path runs Queued through Succeeded in
// order; Failed is reachable from any non-terminal state after retry
// exhaustion, and Cancelled only from Queued or Fetching.
const (
	JobQueued      JobState = "queued"
	JobFetching    JobState = "fetching"
	JobChunking    JobState = "chunking"
	JobEmbedding   JobState = "embedding"
	JobIndexing    JobState = "indexing"
	JobSummarizing JobState = "summarizing"
	JobSucceeded   JobState = "succeeded"
	JobFailed      JobState = "failed"
	JobCancelled   JobState = "cancelled"
)

// Terminal reports whether the state ends the job.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCancelled
}

// Cancellable reports whether a cancellation request is honoured in
// this state. Once embedding or indexing writes begin the job must run
// to a terminal state to avoid leaving half-indexed garbage.
func (s JobState) Cancellable() bool {
	return s == JobQueued || s == JobFetching
}

// jobOrder maps pipeline states to their position for CanTransition.
var jobOrder = map[JobState]int{
	JobQueued:      0,
	JobFetching:    1,
	JobChunking:    2,
	JobEmbedding:   3,
	JobIndexing:    4,
	JobSummarizing: 5,
	JobSucceeded:   6,
}

// CanTransition reports whether moving from s to next is legal.
func (s JobState) CanTransition(next JobState) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case JobFailed:
		return true
	case JobCancelled:
		return s.Cancellable()
	default:
		from, okFrom := jobOrder[s]
		to, okTo := jobOrder[next]
		return okFrom && okTo && to == from+1
	}
}

// IngestionJob is the unit of ingestion work for one source.
// The job queue exclusively owns its lifecycle.
type IngestionJob struct {
	// ID is the unique job identifier.
	ID string

	// SourceID is the source this job ingests. At most one non-terminal
	// job exists per source id.
	SourceID string

	// State is the current lifecycle state.
	State JobState

	// Attempts counts stage retries across the job's lifetime.
	Attempts int

	// LastError is the most recent stage failure, human readable.
	LastError string

	// ChunksIndexed, ChunksSkipped and ChunksFailed record the per-chunk
	// outcome. Failed chunks are never rolled back; re-running the job
	// picks them up again.
	ChunksIndexed int
	ChunksSkipped int
	ChunksFailed  int

	// EnqueuedAt is when the job entered the queue.
	EnqueuedAt time.Time

	// StartedAt is when a worker picked the job up.
	StartedAt time.Time

	// FinishedAt is when the job reached a terminal state.
	FinishedAt time.Time

	// Transitions records each state entry time, oldest first.
	Transitions []JobTransition

	// CancelRequested is set when a cancellation arrives after the job
	// passed its cancellable window. It is accepted but has no effect
	// until the job terminates naturally.
	CancelRequested bool
}

// JobTransition is one recorded state entry.
type JobTransition struct {
	State JobState
	At    time.Time
}

// Transition moves the job to next, recording the timestamp.
// Returns false without mutating if the move is illegal.
func (j *IngestionJob) Transition(next JobState, now time.Time) bool {
	if !j.State.CanTransition(next) {
		return false
	}
	j.State = next
	j.Transitions = append(j.Transitions, JobTransition{State: next, At: now})
	if next.Terminal() {
		j.FinishedAt = now
	}
	return true
}
