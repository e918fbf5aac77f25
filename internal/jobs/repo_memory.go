package jobs

import (
	"context"
	"sync"
	"time"

	"clinical-backend/internal/analysis"
)

// MemoryRepo is an in-memory Repo for local development and tests.
type MemoryRepo struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewMemoryRepo returns an empty in-memory repo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{jobs: make(map[string]Job)}
}

var _ Repo = (*MemoryRepo)(nil)

// Create stores a new pending job.
func (r *MemoryRepo) Create(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetByID returns the job or ErrNotFound.
func (r *MemoryRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return cloneJob(job), nil
}

// SetResult marks the job processed with the given record.
func (r *MemoryRepo) SetResult(ctx context.Context, jobID string, rec analysis.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	job.Status = StatusProcessed
	job.Result = &rec
	job.ErrorMessage = ""
	job.CompletedAt = &now
	r.jobs[jobID] = job
	return nil
}

// SetFailed marks the job failed with a degraded record attached.
func (r *MemoryRepo) SetFailed(ctx context.Context, jobID string, errMsg string, rec analysis.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	job.Status = StatusFailed
	job.Result = &rec
	job.ErrorMessage = errMsg
	job.CompletedAt = &now
	r.jobs[jobID] = job
	return nil
}

// AppendChatTurns appends turns to the transcript under the write lock, so
// concurrent pairs interleave without loss.
func (r *MemoryRepo) AppendChatTurns(ctx context.Context, jobID string, turns ...ChatTurn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	job.Chat = append(job.Chat, turns...)
	r.jobs[jobID] = job
	return nil
}

// UpdateExtraction records the derived plain-text storage key.
func (r *MemoryRepo) UpdateExtraction(ctx context.Context, jobID string, extractedTextKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	job.ExtractedTextKey = extractedTextKey
	r.jobs[jobID] = job
	return nil
}

// cloneJob copies the job so callers cannot mutate repo state through shared
// slices or pointers.
func cloneJob(job Job) Job {
	out := job
	if job.Chat != nil {
		out.Chat = make([]ChatTurn, len(job.Chat))
		copy(out.Chat, job.Chat)
	}
	if job.Result != nil {
		rec := *job.Result
		out.Result = &rec
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
