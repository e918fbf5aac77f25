package jobs

import "errors"

// ErrNotFound indicates the job does not exist.
var ErrNotFound = errors.New("job not found")

// ErrNotReady indicates the job exists but has not finished processing.
var ErrNotReady = errors.New("job not ready")
