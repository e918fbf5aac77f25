package jobs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"clinical-backend/internal/analysis"
)

func newTestJob(id string) Job {
	return Job{
		ID:         id,
		FileName:   "visit-note.pdf",
		MimeType:   "application/pdf",
		SizeBytes:  2048,
		StorageKey: "uploads/abc123_visit-note.pdf",
		Status:     StatusPending,
		Chat:       []ChatTurn{},
		CreatedAt:  time.Now().UTC(),
	}
}

func TestMemoryRepoCreateGet(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	if err := repo.Create(ctx, newTestJob("j1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(ctx, "j1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("status = %q, want %q", got.Status, StatusPending)
	}
	if got.FileName != "visit-note.pdf" {
		t.Errorf("file name = %q", got.FileName)
	}

	if _, err := repo.GetByID(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("GetByID missing = %v, want ErrNotFound", err)
	}
}

func TestMemoryRepoSetResult(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	if err := repo.Create(ctx, newTestJob("j1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec := analysis.Fallback("", "j1", "visit-note.pdf")
	rec.Summary = "Patient stable."
	if err := repo.SetResult(ctx, "j1", rec); err != nil {
		t.Fatalf("SetResult: %v", err)
	}

	got, err := repo.GetByID(ctx, "j1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusProcessed {
		t.Errorf("status = %q, want %q", got.Status, StatusProcessed)
	}
	if got.Result == nil || got.Result.Summary != "Patient stable." {
		t.Errorf("result = %+v", got.Result)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}

	if err := repo.SetResult(ctx, "missing", rec); err != ErrNotFound {
		t.Fatalf("SetResult missing = %v, want ErrNotFound", err)
	}
}

func TestMemoryRepoSetFailed(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	if err := repo.Create(ctx, newTestJob("j1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec := analysis.Fallback("store unavailable", "j1", "visit-note.pdf")
	if err := repo.SetFailed(ctx, "j1", "store unavailable", rec); err != nil {
		t.Fatalf("SetFailed: %v", err)
	}

	got, _ := repo.GetByID(ctx, "j1")
	if got.Status != StatusFailed {
		t.Errorf("status = %q, want %q", got.Status, StatusFailed)
	}
	if got.ErrorMessage != "store unavailable" {
		t.Errorf("error message = %q", got.ErrorMessage)
	}
	if got.Result == nil {
		t.Error("failed job should still carry a record")
	}
}

func TestMemoryRepoUpdateExtraction(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	if err := repo.Create(ctx, newTestJob("j1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.UpdateExtraction(ctx, "j1", "uploads/abc123_visit-note.pdf.extracted.txt"); err != nil {
		t.Fatalf("UpdateExtraction: %v", err)
	}
	got, _ := repo.GetByID(ctx, "j1")
	if got.ExtractedTextKey == "" {
		t.Error("extracted text key not recorded")
	}
}

func TestMemoryRepoConcurrentAppendsLoseNothing(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	if err := repo.Create(ctx, newTestJob("j1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const pairs = 50
	var wg sync.WaitGroup
	for i := 0; i < pairs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.AppendChatTurns(ctx, "j1",
				ChatTurn{Role: "user", Content: fmt.Sprintf("q%d", i)},
				ChatTurn{Role: "assistant", Content: fmt.Sprintf("a%d", i)},
			)
			if err != nil {
				t.Errorf("AppendChatTurns: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := repo.GetByID(ctx, "j1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.Chat) != pairs*2 {
		t.Fatalf("chat has %d turns, want %d", len(got.Chat), pairs*2)
	}
	// Pairs must stay adjacent and ordered within themselves.
	for i := 0; i < len(got.Chat); i += 2 {
		if got.Chat[i].Role != "user" || got.Chat[i+1].Role != "assistant" {
			t.Fatalf("turns %d/%d roles = %q/%q", i, i+1, got.Chat[i].Role, got.Chat[i+1].Role)
		}
	}
}

func TestMemoryRepoGetReturnsCopy(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	if err := repo.Create(ctx, newTestJob("j1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.AppendChatTurns(ctx, "j1", ChatTurn{Role: "user", Content: "hello"}); err != nil {
		t.Fatalf("AppendChatTurns: %v", err)
	}

	got, _ := repo.GetByID(ctx, "j1")
	got.Chat[0].Content = "mutated"
	got.Status = StatusFailed

	again, _ := repo.GetByID(ctx, "j1")
	if again.Chat[0].Content != "hello" {
		t.Error("caller mutation leaked into repo state")
	}
	if again.Status != StatusPending {
		t.Errorf("status = %q, want %q", again.Status, StatusPending)
	}
}
