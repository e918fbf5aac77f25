package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clinical-backend/internal/analysis"
)

// PGRepo implements Repo using Postgres. Every mutation is a single UPDATE,
// so per-job changes apply atomically without explicit transactions.
type PGRepo struct {
	DB *sql.DB
}

var _ Repo = (*PGRepo)(nil)

// Create inserts a new pending job.
func (r *PGRepo) Create(ctx context.Context, job Job) error {
	const query = `
INSERT INTO jobs (id, file_name, mime_type, size_bytes, storage_key, extracted_text_key, status, result, error_message, chat, created_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	resultPayload, err := marshalRecord(job.Result)
	if err != nil {
		return err
	}
	chatPayload, err := marshalChat(job.Chat)
	if err != nil {
		return err
	}

	_, err = r.DB.ExecContext(ctx, query,
		job.ID,
		job.FileName,
		job.MimeType,
		job.SizeBytes,
		job.StorageKey,
		nullString(job.ExtractedTextKey),
		job.Status,
		resultPayload,
		nullString(job.ErrorMessage),
		chatPayload,
		job.CreatedAt,
		nullTime(job.CompletedAt),
	)
	return err
}

// GetByID returns a job by ID.
func (r *PGRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	const query = `
SELECT id, file_name, mime_type, size_bytes, storage_key, extracted_text_key, status, result, error_message, chat, created_at, completed_at
FROM jobs
WHERE id = $1
LIMIT 1`

	var (
		job          Job
		extractedKey sql.NullString
		result       sql.NullString
		errMsg       sql.NullString
		chat         sql.NullString
		completedAt  sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID,
		&job.FileName,
		&job.MimeType,
		&job.SizeBytes,
		&job.StorageKey,
		&extractedKey,
		&job.Status,
		&result,
		&errMsg,
		&chat,
		&job.CreatedAt,
		&completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}

	job.ExtractedTextKey = extractedKey.String
	job.ErrorMessage = errMsg.String
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if result.Valid && result.String != "" {
		var rec analysis.Record
		if err := json.Unmarshal([]byte(result.String), &rec); err != nil {
			return Job{}, fmt.Errorf("decode job result: %w", err)
		}
		job.Result = &rec
	}
	if chat.Valid && chat.String != "" {
		if err := json.Unmarshal([]byte(chat.String), &job.Chat); err != nil {
			return Job{}, fmt.Errorf("decode job chat: %w", err)
		}
	}
	if job.Chat == nil {
		job.Chat = []ChatTurn{}
	}
	return job, nil
}

// SetResult marks the job processed with the given record.
func (r *PGRepo) SetResult(ctx context.Context, jobID string, rec analysis.Record) error {
	const query = `
UPDATE jobs
SET status = $2, result = $3, error_message = NULL, completed_at = $4
WHERE id = $1`

	payload, err := marshalRecord(&rec)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query, jobID, StatusProcessed, payload, time.Now().UTC())
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// SetFailed marks the job failed with a degraded record attached.
func (r *PGRepo) SetFailed(ctx context.Context, jobID string, errMsg string, rec analysis.Record) error {
	const query = `
UPDATE jobs
SET status = $2, result = $3, error_message = $4, completed_at = $5
WHERE id = $1`

	payload, err := marshalRecord(&rec)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query, jobID, StatusFailed, payload, errMsg, time.Now().UTC())
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// AppendChatTurns appends turns to the transcript. The jsonb concatenation
// happens inside Postgres, so concurrent appends interleave without loss.
func (r *PGRepo) AppendChatTurns(ctx context.Context, jobID string, turns ...ChatTurn) error {
	if len(turns) == 0 {
		return nil
	}
	const query = `
UPDATE jobs
SET chat = COALESCE(chat, '[]'::jsonb) || $2::jsonb
WHERE id = $1`

	payload, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encode chat turns: %w", err)
	}
	res, err := r.DB.ExecContext(ctx, query, jobID, string(payload))
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// UpdateExtraction records the derived plain-text storage key.
func (r *PGRepo) UpdateExtraction(ctx context.Context, jobID string, extractedTextKey string) error {
	const query = `UPDATE jobs SET extracted_text_key = $2 WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, jobID, extractedTextKey)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalRecord(rec *analysis.Record) (interface{}, error) {
	if rec == nil {
		return nil, nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode job result: %w", err)
	}
	return string(data), nil
}

func marshalChat(chat []ChatTurn) (string, error) {
	if chat == nil {
		chat = []ChatTurn{}
	}
	data, err := json.Marshal(chat)
	if err != nil {
		return "", fmt.Errorf("encode job chat: %w", err)
	}
	return string(data), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
