package queue

import "context"

// Client sends job messages to a dispatch backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// Processor executes the analysis pipeline for one job.
type Processor interface {
	ProcessJob(ctx context.Context, jobID string) error
}
