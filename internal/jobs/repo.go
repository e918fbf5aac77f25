package jobs

import (
	"context"

	"clinical-backend/internal/analysis"
)

// Repo persists jobs. Each mutation is atomic with respect to concurrent
// callers: readers observe a job either before or after a mutation, never a
// partially applied one.
type Repo interface {
	// Create stores a new pending job.
	Create(ctx context.Context, job Job) error

	// GetByID returns the job or ErrNotFound.
	GetByID(ctx context.Context, jobID string) (Job, error)

	// SetResult marks the job processed with the given record.
	SetResult(ctx context.Context, jobID string, rec analysis.Record) error

	// SetFailed marks the job failed, recording the error message and a
	// degraded record so result consumers still see a well-formed payload.
	SetFailed(ctx context.Context, jobID string, errMsg string, rec analysis.Record) error

	// AppendChatTurns appends turns to the job transcript. Appends from
	// concurrent callers interleave but never overwrite one another.
	AppendChatTurns(ctx context.Context, jobID string, turns ...ChatTurn) error

	// UpdateExtraction records the storage key of the derived plain-text copy.
	UpdateExtraction(ctx context.Context, jobID string, extractedTextKey string) error
}
