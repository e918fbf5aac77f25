package jobs

import (
	"time"

	"clinical-backend/internal/analysis"
)

// Job statuses. Processed and failed are terminal; no transition leaves them.
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Job is one uploaded document moving through the analysis pipeline.
type Job struct {
	ID               string
	FileName         string
	MimeType         string
	SizeBytes        int64
	StorageKey       string
	ExtractedTextKey string
	Status           string
	Result           *analysis.Record
	ErrorMessage     string
	Chat             []ChatTurn
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

// ChatTurn is a single transcript entry attached to a job.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Terminal reports whether the job has reached a final status.
func (j Job) Terminal() bool {
	return j.Status == StatusProcessed || j.Status == StatusFailed
}
