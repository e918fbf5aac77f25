package jobs

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"clinical-backend/internal/shared/server/middleware"
	"clinical-backend/internal/shared/server/respond"
)

// Handler exposes the job pipeline over HTTP.
type Handler struct {
	Service        *Service
	MaxUploadBytes int64
}

// Register mounts the job routes on the given router group.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/api/upload", h.Upload)
	r.GET("/api/status", h.Status)
	r.GET("/api/results", h.Results)
	r.POST("/api/chat", h.Chat)
	r.POST("/api/rewrite", h.Rewrite)
}

// Upload accepts a multipart document, creates a job, and starts processing.
func (h *Handler) Upload(c *gin.Context) {
	if h.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "uploaded file exceeds the size limit", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "invalid_upload", "multipart field 'file' is required", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_upload", "could not read uploaded file", nil)
		return
	}
	defer file.Close()

	job, err := h.Service.Submit(c.Request.Context(), fileHeader.Filename, file, middleware.RequestIDFromContext(c))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "uploaded file exceeds the size limit", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "upload_failed", "could not store uploaded document", nil)
		return
	}
	c.Set("jobId", job.ID)

	respond.OK(c, gin.H{
		"jobId":  job.ID,
		"status": "processing",
	})
}

// Status reports the job status. Unknown IDs report status "not_found" with a
// 200 so pollers keep a single decode path.
func (h *Handler) Status(c *gin.Context) {
	jobID := strings.TrimSpace(c.Query("jobId"))
	if jobID == "" {
		respond.Error(c, http.StatusBadRequest, "missing_job_id", "query parameter 'jobId' is required", nil)
		return
	}
	c.Set("jobId", jobID)

	job, err := h.Service.Status(c.Request.Context(), jobID)
	if errors.Is(err, ErrNotFound) {
		respond.OK(c, gin.H{"jobId": jobID, "status": "not_found"})
		return
	}
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "status_failed", "could not load job status", nil)
		return
	}

	percent := 0
	if job.Terminal() {
		percent = 100
	}
	respond.OK(c, gin.H{"jobId": job.ID, "status": job.Status, "percent": percent})
}

// Results returns the analysis record for a finished job.
func (h *Handler) Results(c *gin.Context) {
	jobID := strings.TrimSpace(c.Query("jobId"))
	if jobID == "" {
		respond.Error(c, http.StatusBadRequest, "missing_job_id", "query parameter 'jobId' is required", nil)
		return
	}
	c.Set("jobId", jobID)

	rec, err := h.Service.Result(c.Request.Context(), jobID)
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "job_not_found", "no job with that ID", nil)
		return
	case errors.Is(err, ErrNotReady):
		respond.JSON(c, http.StatusAccepted, gin.H{"jobId": jobID, "status": StatusPending})
		return
	case err != nil:
		respond.Error(c, http.StatusInternalServerError, "results_failed", "could not load analysis results", nil)
		return
	}

	respond.OK(c, rec)
}

type chatRequest struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
	// History is accepted for wire compatibility but ignored; the server
	// transcript is authoritative.
	History []ChatTurn `json:"history"`
}

// Chat answers a question about a finished document.
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "body must be JSON with jobId and message", nil)
		return
	}
	req.JobID = strings.TrimSpace(req.JobID)
	if req.JobID == "" || strings.TrimSpace(req.Message) == "" {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "jobId and message are required", nil)
		return
	}
	c.Set("jobId", req.JobID)

	reply, err := h.Service.Converse(c.Request.Context(), req.JobID, req.Message)
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "job_not_found", "no job with that ID", nil)
		return
	case errors.Is(err, ErrNotReady):
		respond.Error(c, http.StatusConflict, "job_not_ready", "job is still processing", nil)
		return
	case err != nil:
		respond.Error(c, http.StatusBadGateway, "chat_failed", "could not complete chat request", nil)
		return
	}

	respond.OK(c, gin.H{
		"reply":   reply,
		"sources": []string{ChatSource},
	})
}

type rewriteRequest struct {
	Text  string `json:"text"`
	Style string `json:"style"`
}

// Rewrite transforms text in the requested style.
func (h *Handler) Rewrite(c *gin.Context) {
	var req rewriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "body must be JSON with text and style", nil)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "text is required", nil)
		return
	}

	out := h.Service.Rewrite(c.Request.Context(), req.Text, req.Style)
	respond.OK(c, gin.H{"text": out})
}
