package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func setupJobRouter(t *testing.T, svc *Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := &Handler{Service: svc, MaxUploadBytes: 10 << 20}
	h.Register(router)
	return router
}

func multipartBody(t *testing.T, fieldName, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile(fieldName, fileName)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return buf, w.FormDataContentType()
}

func TestUploadCreatesJob(t *testing.T) {
	svc, repo := newTestService(newMemStore(), &stubLLM{}, &recordingQueue{})
	router := setupJobRouter(t, svc)

	body, contentType := multipartBody(t, "file", "note.txt", "patient note")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.Code, resp.Body.String())
	}

	var out struct {
		JobID  string `json:"jobId"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.JobID == "" {
		t.Fatal("expected jobId")
	}
	if out.Status != "processing" {
		t.Errorf("status = %q, want processing", out.Status)
	}

	if _, err := repo.GetByID(context.Background(), out.JobID); err != nil {
		t.Fatalf("job not persisted: %v", err)
	}
}

func TestUploadMissingFile(t *testing.T) {
	svc, _ := newTestService(newMemStore(), &stubLLM{}, &recordingQueue{})
	router := setupJobRouter(t, svc)

	body, contentType := multipartBody(t, "attachment", "note.txt", "patient note")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Code)
	}
}

func TestStatusLifecycle(t *testing.T) {
	svc, _ := newTestService(newMemStore(), &stubLLM{response: analysisPayload}, &recordingQueue{})
	router := setupJobRouter(t, svc)

	job, err := svc.Submit(context.Background(), "note.txt", strings.NewReader("text"), "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	status := func(jobID string) (int, string) {
		req := httptest.NewRequest(http.MethodGet, "/api/status?jobId="+jobID, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		var out struct {
			Status string `json:"status"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp.Code, out.Status
	}

	if code, s := status(job.ID); code != http.StatusOK || s != StatusPending {
		t.Fatalf("pending status = %d/%q", code, s)
	}

	if err := svc.ProcessJob(context.Background(), job.ID); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if code, s := status(job.ID); code != http.StatusOK || s != StatusProcessed {
		t.Fatalf("processed status = %d/%q", code, s)
	}

	// Unknown jobs report not_found with 200 so pollers keep one decode path.
	if code, s := status("does-not-exist"); code != http.StatusOK || s != "not_found" {
		t.Fatalf("unknown status = %d/%q", code, s)
	}
}

func TestStatusMissingJobID(t *testing.T) {
	svc, _ := newTestService(newMemStore(), &stubLLM{}, &recordingQueue{})
	router := setupJobRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Code)
	}
}

func TestResultsLifecycle(t *testing.T) {
	svc, _ := newTestService(newMemStore(), &stubLLM{response: analysisPayload}, &recordingQueue{})
	router := setupJobRouter(t, svc)

	job, err := svc.Submit(context.Background(), "note.txt", strings.NewReader("text"), "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	get := func(jobID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/results?jobId="+jobID, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		return resp
	}

	if resp := get("unknown"); resp.Code != http.StatusNotFound {
		t.Fatalf("unknown job status = %d, want 404", resp.Code)
	}
	if resp := get(job.ID); resp.Code != http.StatusAccepted {
		t.Fatalf("pending job status = %d, want 202", resp.Code)
	}

	if err := svc.ProcessJob(context.Background(), job.ID); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	resp := get(job.ID)
	if resp.Code != http.StatusOK {
		t.Fatalf("finished job status = %d, body = %s", resp.Code, resp.Body.String())
	}

	var rec struct {
		JobID      string   `json:"jobId"`
		Summary    string   `json:"summary"`
		TopActions []any    `json:"topActions"`
		Sugg       []string `json:"suggestions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.JobID != job.ID {
		t.Errorf("jobId = %q", rec.JobID)
	}
	if rec.Summary != "Patient has diabetes." {
		t.Errorf("summary = %q", rec.Summary)
	}
	if rec.TopActions == nil {
		t.Error("topActions must marshal as an array")
	}
}

func TestChatEndpoint(t *testing.T) {
	client := &stubLLM{response: analysisPayload}
	svc, repo := newTestService(newMemStore(), client, &recordingQueue{})
	router := setupJobRouter(t, svc)

	job, _ := svc.Submit(context.Background(), "note.txt", strings.NewReader("patient on metformin"), "")
	if err := svc.ProcessJob(context.Background(), job.ID); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}

	client.response = "The patient takes metformin."
	payload := `{"jobId":"` + job.ID + `","message":"What medications?","history":[{"role":"user","content":"client junk"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.Code, resp.Body.String())
	}
	var out struct {
		Reply   string   `json:"reply"`
		Sources []string `json:"sources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Reply != "The patient takes metformin." {
		t.Errorf("reply = %q", out.Reply)
	}
	if len(out.Sources) != 1 || out.Sources[0] != ChatSource {
		t.Errorf("sources = %v", out.Sources)
	}

	// Client-supplied history never enters the stored transcript.
	got, _ := repo.GetByID(context.Background(), job.ID)
	if len(got.Chat) != 2 {
		t.Fatalf("chat has %d turns, want 2", len(got.Chat))
	}
	for _, turn := range got.Chat {
		if turn.Content == "client junk" {
			t.Fatal("client history leaked into transcript")
		}
	}
}

func TestChatValidation(t *testing.T) {
	svc, _ := newTestService(newMemStore(), &stubLLM{response: analysisPayload}, &recordingQueue{})
	router := setupJobRouter(t, svc)

	post := func(payload string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := post(`{"message":"hi"}`); code != http.StatusBadRequest {
		t.Errorf("missing jobId status = %d, want 400", code)
	}
	if code := post(`{"jobId":"x"}`); code != http.StatusBadRequest {
		t.Errorf("missing message status = %d, want 400", code)
	}
	if code := post(`{"jobId":"unknown","message":"hi"}`); code != http.StatusNotFound {
		t.Errorf("unknown job status = %d, want 404", code)
	}

	job, _ := svc.Submit(context.Background(), "note.txt", strings.NewReader("text"), "")
	if code := post(`{"jobId":"` + job.ID + `","message":"hi"}`); code != http.StatusConflict {
		t.Errorf("pending job status = %d, want 409", code)
	}
}

func TestRewriteEndpoint(t *testing.T) {
	client := &stubLLM{response: "Shortness of breath when active."}
	svc, _ := newTestService(newMemStore(), client, &recordingQueue{})
	router := setupJobRouter(t, svc)

	payload := `{"text":"Dyspnea on exertion.","style":"Remove Jargon"}`
	req := httptest.NewRequest(http.MethodPost, "/api/rewrite", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.Code, resp.Body.String())
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Text != "Shortness of breath when active." {
		t.Errorf("text = %q", out.Text)
	}
}

func TestRewriteCompletionFailureStillOK(t *testing.T) {
	client := &stubLLM{err: errors.New("upstream down")}
	svc, _ := newTestService(newMemStore(), client, &recordingQueue{})
	router := setupJobRouter(t, svc)

	payload := `{"text":"Dyspnea on exertion.","style":"Simplify Text"}`
	req := httptest.NewRequest(http.MethodPost, "/api/rewrite", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with in-band error text", resp.Code)
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(out.Text, "Error rewriting text:") {
		t.Errorf("text = %q", out.Text)
	}
}

func TestRewriteRequiresText(t *testing.T) {
	svc, _ := newTestService(newMemStore(), &stubLLM{}, &recordingQueue{})
	router := setupJobRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/rewrite", strings.NewReader(`{"style":"Simplify Text"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Code)
	}
}
