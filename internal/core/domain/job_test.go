package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestJobState_Terminal tests terminal state classification
func TestJobState_Terminal(t *testing.T) {
	assert.True(t, JobSucceeded.Terminal())
	assert.True(t, JobFailed.Terminal())
	assert.True(t, JobCancelled.Terminal())

	assert.False(t, JobQueued.Terminal())
	assert.False(t, JobFetching.Terminal())
	assert.False(t, JobChunking.Terminal())
	assert.False(t, JobEmbedding.Terminal())
	assert.False(t, JobIndexing.Terminal())
	assert.False(t, JobSummarizing.Terminal())
}

// TestJobState_Cancellable tests the cancellation window
func TestJobState_Cancellable(t *testing.T) {
	assert.True(t, JobQueued.Cancellable())
	assert.True(t, JobFetching.Cancellable())

	// Once embedding/indexing writes begin, cancellation is refused.
	assert.False(t, JobChunking.Cancellable())
	assert.False(t, JobEmbedding.Cancellable())
	assert.False(t, JobIndexing.Cancellable())
	assert.False(t, JobSummarizing.Cancellable())
	assert.False(t, JobSucceeded.Cancellable())
}

// TestJobState_CanTransition tests legal pipeline moves
func TestJobState_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from JobState
		to   JobState
		want bool
	}{
		{"queued to fetching", JobQueued, JobFetching, true},
		{"fetching to chunking", JobFetching, JobChunking, true},
		{"chunking to embedding", JobChunking, JobEmbedding, true},
		{"embedding to indexing", JobEmbedding, JobIndexing, true},
		{"indexing to summarizing", JobIndexing, JobSummarizing, true},
		{"summarizing to succeeded", JobSummarizing, JobSucceeded, true},
		{"skip a stage", JobQueued, JobChunking, false},
		{"backwards", JobIndexing, JobChunking, false},
		{"failed from any non-terminal", JobEmbedding, JobFailed, true},
		{"cancel while queued", JobQueued, JobCancelled, true},
		{"cancel while fetching", JobFetching, JobCancelled, true},
		{"cancel while embedding refused", JobEmbedding, JobCancelled, false},
		{"no transition out of succeeded", JobSucceeded, JobFailed, false},
		{"no transition out of cancelled", JobCancelled, JobFetching, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

// TestIngestionJob_Transition tests transitions record timestamps
func TestIngestionJob_Transition(t *testing.T) {
	job := &IngestionJob{ID: "job-1", SourceID: "src-1", State: JobQueued}
	now := time.Now()

	assert.True(t, job.Transition(JobFetching, now))
	assert.Equal(t, JobFetching, job.State)
	assert.Len(t, job.Transitions, 1)
	assert.Equal(t, JobFetching, job.Transitions[0].State)
	assert.True(t, job.FinishedAt.IsZero())

	// Illegal move leaves the job untouched.
	assert.False(t, job.Transition(JobIndexing, now))
	assert.Equal(t, JobFetching, job.State)
	assert.Len(t, job.Transitions, 1)

	assert.True(t, job.Transition(JobCancelled, now.Add(time.Second)))
	assert.Equal(t, JobCancelled, job.State)
	assert.Equal(t, now.Add(time.Second), job.FinishedAt)
}
