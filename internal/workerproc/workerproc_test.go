package workerproc

import (
	"context"
	"errors"
	"testing"

	"clinical-backend/internal/queue"
)

type stubProcessor struct {
	jobIDs []string
	err    error
}

func (p *stubProcessor) ProcessJob(ctx context.Context, jobID string) error {
	p.jobIDs = append(p.jobIDs, jobID)
	return p.err
}

func TestParseMessage(t *testing.T) {
	msg, meta, err := ParseMessage(`{"jobId":"job-1","requestId":"req-1","version":1}`)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msg.JobID != "job-1" || msg.RequestID != "req-1" {
		t.Errorf("msg = %+v", msg)
	}
	if meta.BodyLen == 0 || meta.BodySHA == "" {
		t.Errorf("meta = %+v", meta)
	}
}

func TestParseMessageEmptyBody(t *testing.T) {
	_, _, err := ParseMessage("   ")
	var empty ErrEmptyBody
	if !errors.As(err, &empty) {
		t.Fatalf("err = %v, want ErrEmptyBody", err)
	}
}

func TestParseMessageBadJSON(t *testing.T) {
	_, _, err := ParseMessage("{not json")
	var decode ErrDecode
	if !errors.As(err, &decode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}

func TestParseMessageMissingJobID(t *testing.T) {
	_, _, err := ParseMessage(`{"requestId":"req-1"}`)
	var missing ErrMissingJobID
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want ErrMissingJobID", err)
	}
	if missing.RequestID != "req-1" {
		t.Errorf("requestId = %q", missing.RequestID)
	}
}

func TestHandleMessageProcesses(t *testing.T) {
	proc := &stubProcessor{}
	if err := HandleMessage(context.Background(), proc, `{"jobId":"job-1"}`); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(proc.jobIDs) != 1 || proc.jobIDs[0] != "job-1" {
		t.Errorf("processed = %v", proc.jobIDs)
	}
}

func TestHandleMessageReusesParsedContext(t *testing.T) {
	proc := &stubProcessor{}
	ctx := WithParsedMessage(context.Background(), queue.Message{JobID: "job-2"})
	// Body is ignored when the context already carries a decoded message.
	if err := HandleMessage(ctx, proc, "garbage"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(proc.jobIDs) != 1 || proc.jobIDs[0] != "job-2" {
		t.Errorf("processed = %v", proc.jobIDs)
	}
}

func TestHandleMessageWrapsProcessError(t *testing.T) {
	cause := errors.New("boom")
	proc := &stubProcessor{err: cause}
	err := HandleMessage(context.Background(), proc, `{"jobId":"job-1","requestId":"req-9"}`)
	var perr ErrProcess
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want ErrProcess", err)
	}
	if perr.JobID != "job-1" || perr.RequestID != "req-9" {
		t.Errorf("ErrProcess = %+v", perr)
	}
	if !errors.Is(err, cause) {
		t.Error("ErrProcess should unwrap to the cause")
	}
}
