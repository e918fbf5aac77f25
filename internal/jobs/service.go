package jobs

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"clinical-backend/internal/analysis"
	"clinical-backend/internal/extract"
	"clinical-backend/internal/llm"
	"clinical-backend/internal/queue"
	"clinical-backend/internal/shared/metrics"
	"clinical-backend/internal/shared/storage/object"
	"clinical-backend/internal/shared/telemetry"
)

// Service orchestrates the document pipeline: upload, extraction, completion,
// and the chat/rewrite operations over finished jobs.
type Service struct {
	Repo         Repo
	Store        object.ObjectStore
	LLM          llm.Client
	Queue        queue.Client
	Timeout      time.Duration
	Model        string
	RewriteModel string
}

var _ queue.Processor = (*Service)(nil)

// ChatSource is the provenance tag attached to chat replies.
const ChatSource = "Document Analysis"

// Submit stores the uploaded file, creates a pending job, and enqueues it for
// processing. The returned job is already durable: if dispatch fails, the job
// is marked failed with a degraded record rather than left dangling.
func (s *Service) Submit(ctx context.Context, fileName string, r io.Reader, requestID string) (Job, error) {
	storageKey, sizeBytes, mimeType, err := s.Store.Save(ctx, fileName, r)
	if err != nil {
		return Job{}, fmt.Errorf("save upload: %w", err)
	}

	job := Job{
		ID:         uuid.NewString(),
		FileName:   fileName,
		MimeType:   mimeType,
		SizeBytes:  sizeBytes,
		StorageKey: storageKey,
		Status:     StatusPending,
		Chat:       []ChatTurn{},
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, job); err != nil {
		return Job{}, fmt.Errorf("create job: %w", err)
	}

	msg := queue.Message{
		JobID:      job.ID,
		RequestID:  requestID,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    1,
	}
	if err := s.Queue.Send(ctx, msg); err != nil {
		telemetry.Error("job.enqueue_failed", map[string]any{
			"job_id": job.ID,
			"error":  err.Error(),
		})
		rec := analysis.Fallback("enqueue: "+err.Error(), job.ID, job.FileName)
		rec.UploadedAt = job.CreatedAt
		if ferr := s.Repo.SetFailed(ctx, job.ID, "enqueue: "+err.Error(), rec); ferr != nil {
			return Job{}, fmt.Errorf("enqueue job: %w", err)
		}
		metrics.IncJobFailed()
		job.Status = StatusFailed
		return job, nil
	}

	metrics.IncJobSubmitted()
	telemetry.Info("job.submitted", map[string]any{
		"job_id":     job.ID,
		"file_name":  job.FileName,
		"mime_type":  job.MimeType,
		"size_bytes": job.SizeBytes,
	})
	return job, nil
}

// ProcessJob runs the extraction and completion pipeline for one job. It is
// idempotent: a job already in a terminal status is left untouched. Model
// failures still produce a processed job carrying the degraded record; only
// repo faults surface as errors.
func (s *Service) ProcessJob(ctx context.Context, jobID string) error {
	job, err := s.Repo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Terminal() {
		telemetry.Info("job.already_terminal", map[string]any{"job_id": jobID, "status": job.Status})
		return nil
	}

	started := metrics.NowMillis()
	defer func() {
		metrics.ObserveProcessingDurationMs(metrics.NowMillis() - started)
	}()

	pctx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	text, err := extract.ExtractText(pctx, s.Store, job.StorageKey, job.MimeType, job.FileName)
	if err != nil {
		// Extraction is best effort: analysis proceeds on an empty
		// document and the record degrades to the fallback downstream.
		telemetry.Error("job.extract_failed", map[string]any{"job_id": jobID, "error": err.Error()})
		text = ""
	} else if uerr := s.Repo.UpdateExtraction(ctx, jobID, extract.ExtractedKey(job.StorageKey)); uerr != nil {
		telemetry.Error("job.extraction_key_update_failed", map[string]any{"job_id": jobID, "error": uerr.Error()})
	}

	rec := s.analyze(pctx, job, text)
	rec.UploadedAt = job.CreatedAt

	if err := s.Repo.SetResult(ctx, jobID, rec); err != nil {
		ferr := s.Repo.SetFailed(ctx, jobID, "persist result: "+err.Error(), rec)
		if ferr != nil {
			telemetry.Error("job.fail_mark_failed", map[string]any{"job_id": jobID, "error": ferr.Error()})
		}
		metrics.IncJobFailed()
		return fmt.Errorf("persist result for job %s: %w", jobID, err)
	}

	metrics.IncJobProcessed()
	if rec.Error != "" {
		metrics.IncJobDegraded()
	}
	telemetry.Info("job.processed", map[string]any{
		"job_id":   jobID,
		"degraded": rec.Error != "",
	})
	return nil
}

func (s *Service) analyze(ctx context.Context, job Job, text string) analysis.Record {
	raw, err := s.LLM.Complete(ctx, llm.Request{
		Model:    s.Model,
		Messages: llm.BuildAnalysisPrompt(text, job.FileName),
		JSONOnly: true,
	})
	if err != nil {
		telemetry.Error("job.completion_failed", map[string]any{"job_id": job.ID, "error": err.Error()})
		return analysis.Fallback("completion: "+err.Error(), job.ID, job.FileName)
	}
	return analysis.Normalize(raw, job.ID, job.FileName)
}

// Status returns the job for status reporting, or ErrNotFound.
func (s *Service) Status(ctx context.Context, jobID string) (Job, error) {
	return s.Repo.GetByID(ctx, jobID)
}

// Result returns the analysis record for a finished job. Pending jobs return
// ErrNotReady; unknown jobs return ErrNotFound.
func (s *Service) Result(ctx context.Context, jobID string) (analysis.Record, error) {
	job, err := s.Repo.GetByID(ctx, jobID)
	if err != nil {
		return analysis.Record{}, err
	}
	if !job.Terminal() {
		return analysis.Record{}, ErrNotReady
	}
	if job.Result == nil {
		// Terminal jobs always carry a record; guard against legacy rows.
		rec := analysis.Fallback(job.ErrorMessage, job.ID, job.FileName)
		rec.UploadedAt = job.CreatedAt
		return rec, nil
	}
	return *job.Result, nil
}

// Converse answers a question about a finished job's document and appends the
// user/assistant pair to the job transcript. The server-held transcript is
// authoritative; no repo lock is held across the completion call.
func (s *Service) Converse(ctx context.Context, jobID string, message string) (string, error) {
	job, err := s.Repo.GetByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	if !job.Terminal() {
		return "", ErrNotReady
	}

	text, err := s.documentText(ctx, job)
	if err != nil {
		telemetry.Error("chat.context_load_failed", map[string]any{"job_id": jobID, "error": err.Error()})
		text = ""
	}

	history := make([]llm.Message, 0, len(job.Chat))
	for _, turn := range job.Chat {
		history = append(history, llm.Message{Role: turn.Role, Content: turn.Content})
	}

	cctx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	reply, err := s.LLM.Complete(cctx, llm.Request{
		Model:    s.Model,
		Messages: llm.BuildChatPrompt(text, history, message),
	})
	if err != nil {
		// Surface the failure as the reply and keep the transcript
		// consistent, matching what pollers of a degraded analysis see.
		telemetry.Error("chat.completion_failed", map[string]any{"job_id": jobID, "error": err.Error()})
		reply = "Error processing chat: " + err.Error()
	}

	turns := []ChatTurn{
		{Role: llm.RoleUser, Content: message},
		{Role: llm.RoleAssistant, Content: reply},
	}
	if err := s.Repo.AppendChatTurns(ctx, jobID, turns...); err != nil {
		return "", fmt.Errorf("append chat turns: %w", err)
	}
	metrics.IncChatTurn()
	return reply, nil
}

// Rewrite transforms text in the requested style. It is stateless and touches
// no job. Completion failures come back as an in-band error message, the same
// recovery the chat path applies.
func (s *Service) Rewrite(ctx context.Context, text, style string) string {
	rctx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	out, err := s.LLM.Complete(rctx, llm.Request{
		Model:    s.RewriteModel,
		Messages: llm.BuildRewritePrompt(text, style),
	})
	if err != nil {
		telemetry.Error("rewrite.completion_failed", map[string]any{"error": err.Error()})
		out = "Error rewriting text: " + err.Error()
	}
	metrics.IncRewriteRequest()
	return out
}

// documentText loads the cached plain-text extraction for chat context.
func (s *Service) documentText(ctx context.Context, job Job) (string, error) {
	if job.ExtractedTextKey == "" {
		return "", nil
	}
	body, err := s.Store.Open(ctx, job.ExtractedTextKey)
	if err != nil {
		return "", err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
